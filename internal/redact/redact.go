// Package redact scrubs credential material from tool output. Commands
// routinely print tokens (env dumps, curl verbose, cloud CLI output);
// whatever a tool hands back gets recorded and replayed, so secrets are
// replaced before the result leaves the tool layer.
package redact

import "regexp"

// Rule pairs a credential shape with the label that replaces it.
type Rule struct {
	Name string
	re   *regexp.Regexp
}

// Credential shapes worth matching without context. Broad patterns like
// bare AWS secret keys are left out: 40 base64 characters also describe a
// git object hash, and a false replacement corrupts the command output.
// The anthropic rule precedes the openai one; both start with sk- and the
// more specific label should win.
var defaultRules = []Rule{
	{"aws-access-key-id", regexp.MustCompile(`(A3T[A-Z0-9]|AKIA|AGPA|AIDA|AROA|AIPA|ANPA|ANVA|ASIA)[A-Z0-9]{16}`)},
	{"anthropic-api-key", regexp.MustCompile(`sk-ant-api03-[a-zA-Z0-9_\-]{20,}`)},
	{"openai-api-key", regexp.MustCompile(`sk-(proj-)?[a-zA-Z0-9_\-]{32,}`)},
	{"google-api-key", regexp.MustCompile(`AIza[0-9A-Za-z\-_]{35}`)},
	{"github-token", regexp.MustCompile(`gh[pousr]_[a-zA-Z0-9]{36,}`)},
	{"slack-token", regexp.MustCompile(`xox[bpoas]-[0-9]{10,13}-[a-zA-Z0-9\-]{10,}`)},
	{"private-key", regexp.MustCompile(`-----BEGIN (RSA |OPENSSH |EC |PGP |DSA )?PRIVATE KEY( BLOCK)?-----`)},
}

// Secrets replaces every recognized credential in s with a labelled
// placeholder. The input comes back unchanged when nothing matches.
func Secrets(s string) string {
	if s == "" {
		return s
	}
	for _, r := range defaultRules {
		s = r.re.ReplaceAllString(s, "[REDACTED:"+r.Name+"]")
	}
	return s
}

// Found lists the rule names that match s, in rule order, for logging.
func Found(s string) []string {
	if s == "" {
		return nil
	}
	var names []string
	for _, r := range defaultRules {
		if r.re.MatchString(s) {
			names = append(names, r.Name)
		}
	}
	return names
}
