package sandbox

import (
	"fmt"
	"strings"
)

// buildSeatbeltProfile renders the SBPL profile plus the -D parameters
// for one attempt. Writable roots reach sandbox-exec as named parameters
// rather than being spliced into the profile text, so paths never need
// SBPL escaping.
func buildSeatbeltProfile(policy Policy, roots []WritableRoot) (string, []string) {
	b := newProfileBuilder()

	b.writeBase()
	b.writeFileRead()
	params := b.writeFileWrite(roots)
	b.writeNetwork(policy)
	b.writeDevices()

	return b.String(), params
}

// profileBuilder constructs an SBPL (Sandbox Profile Language) profile.
// SBPL uses Scheme-like S-expression syntax.
type profileBuilder struct {
	buf strings.Builder
}

func newProfileBuilder() *profileBuilder {
	return &profileBuilder{}
}

func (b *profileBuilder) writeBase() {
	b.line("(version 1)")
	b.line("(deny default)")
	b.blank()
	b.comment("Process lifecycle within the sandbox")
	b.line("(allow process-exec)")
	b.line("(allow process-fork)")
	b.line("(allow signal (target same-sandbox))")
	b.line("(allow process-info* (target same-sandbox))")
	b.blank()
	b.comment("System information queries")
	b.line("(allow sysctl-read)")
	b.line("(allow mach-lookup")
	b.line(`  (global-name "com.apple.logd")`)
	b.line(`  (global-name "com.apple.lsd.mapdb")`)
	b.line(`  (global-name "com.apple.system.logger")`)
	b.line(`  (global-name "com.apple.system.notification_center")`)
	b.line(`  (global-name "com.apple.system.opendirectoryd.libinfo")`)
	b.line(`  (global-name "com.apple.system.opendirectoryd.membership")`)
	b.line(`  (global-name "com.apple.SecurityServer")`)
	b.line(`  (global-name "com.apple.coreservices.launchservicesd")`)
	b.line(")")
	b.blank()
	b.comment("POSIX IPC for shared memory and semaphores")
	b.line("(allow ipc-posix-shm)")
	b.line("(allow ipc-posix-sem)")
	b.blank()
}

func (b *profileBuilder) writeFileRead() {
	b.comment("Reads are always unrestricted")
	b.line("(allow file-read*)")
	b.blank()
}

// writeFileWrite emits the write rules for the given roots and returns
// the sandbox-exec parameters they reference. Each root becomes a
// WRITABLE_ROOT_i parameter; its read-only subpaths become
// WRITABLE_ROOT_i_RO_j parameters excluded via require-not.
func (b *profileBuilder) writeFileWrite(roots []WritableRoot) []string {
	if len(roots) == 0 {
		b.comment("No writable roots; the deny default covers all writes")
		b.blank()
		return nil
	}

	var params []string
	b.comment("Writable roots, minus their read-only subpaths")
	b.line("(allow file-write*")
	for i, root := range roots {
		rootParam := fmt.Sprintf("WRITABLE_ROOT_%d", i)
		params = append(params, rootParam+"="+root.Root)

		if len(root.ReadOnlySubpaths) == 0 {
			b.linef(`  (subpath (param "%s"))`, rootParam)
			continue
		}

		clauses := make([]string, 0, len(root.ReadOnlySubpaths)+1)
		clauses = append(clauses, fmt.Sprintf(`(subpath (param "%s"))`, rootParam))
		for j, ro := range root.ReadOnlySubpaths {
			roParam := fmt.Sprintf("WRITABLE_ROOT_%d_RO_%d", i, j)
			params = append(params, roParam+"="+ro)
			clauses = append(clauses, fmt.Sprintf(`(require-not (subpath (param "%s")))`, roParam))
		}
		b.linef("  (require-all %s)", strings.Join(clauses, " "))
	}
	b.line(")")
	b.blank()
	return params
}

func (b *profileBuilder) writeNetwork(policy Policy) {
	if !policy.HasFullNetworkAccess() {
		b.comment("Network stays denied by default")
		b.blank()
		return
	}
	b.comment("Network access granted by policy")
	b.line("(allow network-outbound)")
	b.line("(allow network-inbound)")
	b.line("(allow system-socket)")
	b.blank()
}

func (b *profileBuilder) writeDevices() {
	b.comment("Device nodes commands rely on regardless of policy")
	b.line(`(allow file-write-data (literal "/dev/null"))`)
	b.line(`(allow file-write-data (literal "/dev/zero"))`)
	b.line(`(allow file-write-data (literal "/dev/dtracehelper"))`)
	b.line(`(allow file-write* (regex #"^/dev/ttys[0-9]*$"))`)
	b.line(`(allow file-ioctl (regex #"^/dev/(tty|ttys[0-9]*)$"))`)
	b.blank()
}

func (b *profileBuilder) line(s string) {
	b.buf.WriteString(s)
	b.buf.WriteByte('\n')
}

func (b *profileBuilder) linef(format string, args ...any) {
	b.buf.WriteString(fmt.Sprintf(format, args...))
	b.buf.WriteByte('\n')
}

func (b *profileBuilder) comment(s string) {
	b.buf.WriteString("; ")
	b.buf.WriteString(s)
	b.buf.WriteByte('\n')
}

func (b *profileBuilder) blank() {
	b.buf.WriteByte('\n')
}

func (b *profileBuilder) String() string {
	return b.buf.String()
}
