// Package config holds the application configuration: approval policy,
// sandbox policy, logging, and the paths to the approval database and
// the custom rules file. Loading is merge-over-defaults so a partial
// config file only overrides what it names.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/codefionn/schleuse/internal/authz"
	"github.com/codefionn/schleuse/internal/sandbox"
)

// SandboxSettings is the on-disk form of a sandbox policy.
type SandboxSettings struct {
	// Mode is "danger-full-access", "read-only" or "workspace-write".
	Mode string `json:"mode"`
	// WritableRoots lists extra writable directories for
	// workspace-write mode, beyond the working directory and tmp.
	WritableRoots []string `json:"writable_roots,omitempty"`
	// DenyWrite lists paths or doublestar globs that stay read-only
	// even inside writable roots.
	DenyWrite []string `json:"deny_write,omitempty"`
	// NetworkAccess opens the network inside workspace-write mode.
	NetworkAccess bool `json:"network_access,omitempty"`
	// ExcludeTmpdirEnvVar keeps $TMPDIR out of the writable roots.
	ExcludeTmpdirEnvVar bool `json:"exclude_tmpdir_env_var,omitempty"`
	// ExcludeSlashTmp keeps /tmp out of the writable roots.
	ExcludeSlashTmp bool `json:"exclude_slash_tmp,omitempty"`
}

// Config represents application configuration.
type Config struct {
	WorkingDir     string          `json:"working_dir"`
	ApprovalPolicy string          `json:"approval_policy"` // untrusted, on-failure, on-request, never
	Sandbox        SandboxSettings `json:"sandbox"`
	DefaultTimeout int             `json:"default_timeout_seconds"`
	LogLevel       string          `json:"log_level"` // debug, info, warn, error, none
	LogPath        string          `json:"-"`
	// HelperPath overrides the binary re-executed as the landlock
	// helper. Empty means the running executable.
	HelperPath string `json:"helper_path,omitempty"`
	// PersistApprovals enables the per-workspace approval database.
	PersistApprovals bool   `json:"persist_approvals"`
	ApprovalDBPath   string `json:"approval_db_path,omitempty"`
	// RulesPath points at the YAML file with custom classification
	// rules. The file is optional; a missing file means no custom
	// rules.
	RulesPath string `json:"rules_path,omitempty"`
}

func defaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, "schleuse")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Roaming", "schleuse")
	default:
		if configHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); configHome != "" {
			return filepath.Join(configHome, "schleuse")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "schleuse")
	}
}

func defaultStateDir() string {
	switch runtime.GOOS {
	case "windows":
		if localAppData := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); localAppData != "" {
			return filepath.Join(localAppData, "schleuse")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Local", "schleuse")
	default:
		if stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); stateHome != "" {
			return filepath.Join(stateHome, "schleuse")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "state", "schleuse")
	}
}

// DefaultConfig returns the default configuration: ask on request, write
// only inside the workspace, persist nothing.
func DefaultConfig() *Config {
	configDir := defaultConfigDir()
	stateDir := defaultStateDir()

	return &Config{
		WorkingDir:     ".",
		ApprovalPolicy: "on-request",
		Sandbox: SandboxSettings{
			Mode: "workspace-write",
		},
		DefaultTimeout:   10,
		LogLevel:         "info",
		LogPath:          filepath.Join(stateDir, "schleuse.log"),
		PersistApprovals: false,
		ApprovalDBPath:   filepath.Join(stateDir, "approvals.db"),
		RulesPath:        filepath.Join(configDir, "rules.yaml"),
	}
}

// Load loads configuration from file. A missing file yields the
// defaults; a present file overrides only the fields it sets.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	stateDir := defaultStateDir()
	if config.WorkingDir == "" {
		config.WorkingDir = "."
	}
	if config.ApprovalPolicy == "" {
		config.ApprovalPolicy = "on-request"
	}
	if config.Sandbox.Mode == "" {
		config.Sandbox.Mode = "workspace-write"
	}
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = 10
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.LogPath == "" {
		config.LogPath = filepath.Join(stateDir, "schleuse.log")
	}
	if config.ApprovalDBPath == "" {
		config.ApprovalDBPath = filepath.Join(stateDir, "approvals.db")
	}
	if config.RulesPath == "" {
		config.RulesPath = filepath.Join(defaultConfigDir(), "rules.yaml")
	}

	return config, nil
}

// Save saves configuration to file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

// GetConfigPath returns the default config path.
func GetConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.json")
}

// DecisionPolicy parses the configured approval policy.
func (c *Config) DecisionPolicy() (authz.ApprovalPolicy, error) {
	return authz.ParseApprovalPolicy(c.ApprovalPolicy)
}

// SandboxPolicy builds the sandbox policy from the configured settings.
func (c *Config) SandboxPolicy() (sandbox.Policy, error) {
	var mode sandbox.PolicyMode
	switch strings.ToLower(strings.TrimSpace(c.Sandbox.Mode)) {
	case "danger-full-access":
		mode = sandbox.ModeDangerFullAccess
	case "read-only":
		mode = sandbox.ModeReadOnly
	case "workspace-write", "":
		mode = sandbox.ModeWorkspaceWrite
	default:
		return sandbox.Policy{}, fmt.Errorf("unknown sandbox mode %q", c.Sandbox.Mode)
	}

	return sandbox.Policy{
		Mode:                mode,
		WritableRoots:       c.Sandbox.WritableRoots,
		DenyWrite:           c.Sandbox.DenyWrite,
		NetworkAccess:       c.Sandbox.NetworkAccess,
		ExcludeTmpdirEnvVar: c.Sandbox.ExcludeTmpdirEnvVar,
		ExcludeSlashTmp:     c.Sandbox.ExcludeSlashTmp,
	}, nil
}
