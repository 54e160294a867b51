package authz

import (
	"fmt"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/codefionn/schleuse/internal/logger"
	"github.com/codefionn/schleuse/internal/sandbox"
)

// ApprovalDecision is the user's answer to an approval request. The zero
// value is Denied so a lost or malformed answer never approves anything.
type ApprovalDecision int

const (
	// Denied rejects this one command.
	Denied ApprovalDecision = iota
	// Abort rejects the command and stops the whole task.
	Abort
	// Approved permits exactly this invocation, once.
	Approved
	// ApprovedForSession permits this invocation for the rest of the
	// session.
	ApprovedForSession
)

func (d ApprovalDecision) String() string {
	switch d {
	case Denied:
		return "denied"
	case Abort:
		return "abort"
	case Approved:
		return "approved"
	case ApprovedForSession:
		return "approved-for-session"
	default:
		return fmt.Sprintf("approval-decision(%d)", int(d))
	}
}

// ParseApprovalDecision maps the wire form back onto the decision.
func ParseApprovalDecision(s string) (ApprovalDecision, error) {
	switch s {
	case "denied":
		return Denied, nil
	case "abort":
		return Abort, nil
	case "approved":
		return Approved, nil
	case "approved-for-session":
		return ApprovedForSession, nil
	default:
		return Denied, fmt.Errorf("unknown approval decision %q", s)
	}
}

// IsApproval reports whether the decision grants permission at all.
func (d ApprovalDecision) IsApproval() bool {
	return d == Approved || d == ApprovedForSession
}

// ApprovalKey identifies one command under one working directory and one
// sandbox permission set. Approvals granted under a broader sandbox
// policy must not carry over to a narrower one, so the policy digest is
// part of the key.
type ApprovalKey uint64

func (k ApprovalKey) String() string { return fmt.Sprintf("%016x", uint64(k)) }

// ComputeApprovalKey hashes the canonicalized command, the working
// directory and the sandbox permission digest into a stable key.
func ComputeApprovalKey(argv []string, cwd, sandboxDigest string) ApprovalKey {
	h := xxhash.New()
	for _, a := range argv {
		_, _ = h.WriteString(a)
		_, _ = h.Write([]byte{0})
	}
	_, _ = h.WriteString(cwd)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(sandboxDigest)
	return ApprovalKey(h.Sum64())
}

// SandboxPolicyDigest canonicalizes the parts of a sandbox policy that
// change what an approval covers.
func SandboxPolicyDigest(sp sandbox.Policy) string {
	parts := make([]string, 0, 4+len(sp.WritableRoots)+len(sp.DenyWrite))
	parts = append(parts, sp.Mode.String())
	parts = append(parts, sp.WritableRoots...)
	parts = append(parts, sp.DenyWrite...)
	if sp.NetworkAccess {
		parts = append(parts, "network")
	}
	if sp.ExcludeTmpdirEnvVar {
		parts = append(parts, "no-tmpdir")
	}
	if sp.ExcludeSlashTmp {
		parts = append(parts, "no-slash-tmp")
	}
	return strings.Join(parts, "|")
}

// SessionStore caches the approvals of one session. It is bound to the
// session's working directory and sandbox policy, so keys stay stable for
// the session's lifetime. Only ApprovedForSession enters the cache:
// Approved applies once at the point of answer, and Denied/Abort are
// never cached. The cache is cleared only by an explicit Reset.
type SessionStore struct {
	mu      sync.RWMutex
	cwd     string
	digest  string
	entries map[ApprovalKey]ApprovalDecision
	log     *logger.Logger
}

// NewSessionStore builds an empty approval cache for one session.
func NewSessionStore(cwd string, sp sandbox.Policy, log *logger.Logger) *SessionStore {
	if log == nil {
		log = logger.Global()
	}
	return &SessionStore{
		cwd:     cwd,
		digest:  SandboxPolicyDigest(sp),
		entries: make(map[ApprovalKey]ApprovalDecision),
		log:     log.WithPrefix("approvals"),
	}
}

// Key computes the approval key for a command under this session's
// working directory and sandbox policy.
func (s *SessionStore) Key(argv []string) ApprovalKey {
	return ComputeApprovalKey(argv, s.cwd, s.digest)
}

// Approved reports whether exactly this command is approved for the
// session.
func (s *SessionStore) Approved(argv []string) bool {
	key := s.Key(argv)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[key] == ApprovedForSession
}

// Record stores the user's answer for a command. Only ApprovedForSession
// persists; every other decision leaves the cache untouched.
func (s *SessionStore) Record(argv []string, decision ApprovalDecision) {
	if decision != ApprovedForSession {
		return
	}
	key := s.Key(argv)
	s.mu.Lock()
	s.entries[key] = decision
	s.mu.Unlock()
	s.log.Debug("cached session approval for %q (key %s)", argv, key)
}

// Seed marks a command as approved for the session without a fresh user
// answer, e.g. when restoring persisted workspace approvals.
func (s *SessionStore) Seed(argv []string) {
	s.Record(argv, ApprovedForSession)
}

// Reset drops every cached approval.
func (s *SessionStore) Reset() {
	s.mu.Lock()
	n := len(s.entries)
	s.entries = make(map[ApprovalKey]ApprovalDecision)
	s.mu.Unlock()
	s.log.Info("cleared %d session approvals", n)
}

// Len reports the number of cached approvals.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
