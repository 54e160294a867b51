package sandbox

import (
	"strings"
	"testing"
)

func TestBuildSeatbeltProfileReadOnly(t *testing.T) {
	profile, params := buildSeatbeltProfile(ReadOnly(), nil)

	if len(params) != 0 {
		t.Errorf("read-only profile should carry no parameters, got %v", params)
	}
	for _, want := range []string{"(version 1)", "(deny default)", "(allow file-read*)"} {
		if !strings.Contains(profile, want) {
			t.Errorf("profile missing %q:\n%s", want, profile)
		}
	}
	if strings.Contains(profile, "(allow file-write*\n") {
		t.Errorf("read-only profile grants writes:\n%s", profile)
	}
	if strings.Contains(profile, "network-outbound") {
		t.Errorf("read-only profile grants network:\n%s", profile)
	}
}

func TestBuildSeatbeltProfileWritableRoots(t *testing.T) {
	roots := []WritableRoot{
		{Root: "/work", ReadOnlySubpaths: []string{"/work/.git"}},
		{Root: "/tmp"},
	}
	profile, params := buildSeatbeltProfile(WorkspaceWrite(), roots)

	wantParams := []string{
		"WRITABLE_ROOT_0=/work",
		"WRITABLE_ROOT_0_RO_0=/work/.git",
		"WRITABLE_ROOT_1=/tmp",
	}
	if len(params) != len(wantParams) {
		t.Fatalf("params = %v, want %v", params, wantParams)
	}
	for i := range wantParams {
		if params[i] != wantParams[i] {
			t.Errorf("params[%d] = %q, want %q", i, params[i], wantParams[i])
		}
	}

	if !strings.Contains(profile, `(require-all (subpath (param "WRITABLE_ROOT_0")) (require-not (subpath (param "WRITABLE_ROOT_0_RO_0"))))`) {
		t.Errorf("profile missing require-all clause for carved root:\n%s", profile)
	}
	if !strings.Contains(profile, `(subpath (param "WRITABLE_ROOT_1"))`) {
		t.Errorf("profile missing plain subpath clause:\n%s", profile)
	}
}

func TestBuildSeatbeltProfileNetwork(t *testing.T) {
	policy := Policy{Mode: ModeWorkspaceWrite, NetworkAccess: true}
	profile, _ := buildSeatbeltProfile(policy, nil)

	for _, want := range []string{"(allow network-outbound)", "(allow network-inbound)", "(allow system-socket)"} {
		if !strings.Contains(profile, want) {
			t.Errorf("profile missing %q:\n%s", want, profile)
		}
	}
}
