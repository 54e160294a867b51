package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/codefionn/schleuse/internal/actor"
	"github.com/codefionn/schleuse/internal/authz"
	"github.com/codefionn/schleuse/internal/config"
	"github.com/codefionn/schleuse/internal/exec"
	"github.com/codefionn/schleuse/internal/lockfile"
	"github.com/codefionn/schleuse/internal/logger"
	"github.com/codefionn/schleuse/internal/pprof"
	"github.com/codefionn/schleuse/internal/sandbox"
	"github.com/codefionn/schleuse/internal/session"
	"github.com/codefionn/schleuse/internal/tools"
	"github.com/codefionn/schleuse/internal/vcs"
)

type stringSlice []string

func (s *stringSlice) String() string {
	if s == nil {
		return ""
	}
	return strings.Join(*s, ",")
}

func (s *stringSlice) Set(value string) error {
	if value == "" {
		return fmt.Errorf("value cannot be empty")
	}
	*s = append(*s, value)
	return nil
}

func (s stringSlice) toStrings() []string {
	if len(s) == 0 {
		return nil
	}
	return append([]string(nil), s...)
}

// exitCodeError carries the child's exit status up to main so deferred
// cleanup still runs before the process exits.
type exitCodeError struct{ code int }

func (e exitCodeError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	// The landlock sandbox re-execs this binary as its helper. That path
	// must stay free of config loading and logging.
	if len(os.Args) > 1 && os.Args[1] == sandbox.InitSubcommand {
		os.Exit(sandbox.RunInit(os.Args[2:]))
	}

	if err := run(); err != nil {
		var ec exitCodeError
		if errors.As(err, &ec) {
			os.Exit(ec.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath     string
	workdir        string
	approval       string
	sandboxMode    string
	allowDirs      stringSlice
	allowCommands  stringSlice
	nonInteractive bool
	dangerous      bool
	timeoutSec     int

	command string // exec | check | apply
	argv    []string
	patch   string
}

func parseArgs(args []string) (*options, error) {
	fs := flag.NewFlagSet("schleuse", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := &options{}
	fs.StringVar(&opts.configPath, "config", "", "Path to the config file (default: the user config dir)")
	fs.StringVar(&opts.workdir, "workdir", "", "Working directory for commands and patches")
	fs.StringVar(&opts.approval, "approval", "", "Approval policy: untrusted, on-failure, on-request, never")
	fs.StringVar(&opts.sandboxMode, "sandbox", "", "Sandbox policy: read-only, workspace-write, danger-full-access")
	fs.Var(&opts.allowDirs, "allow-dir", "Extra writable root for workspace-write mode (repeatable)")
	fs.Var(&opts.allowCommands, "allow-command", "Pre-approved command prefix for non-interactive runs (repeatable)")
	fs.BoolVar(&opts.nonInteractive, "non-interactive", false, "Answer approval prompts from flags instead of the terminal")
	fs.BoolVar(&opts.dangerous, "dangerously-bypass-approvals", false, "Approve every prompt without asking (dangerous)")
	fs.IntVar(&opts.timeoutSec, "timeout", 0, "Command timeout in seconds (0 uses the configured default)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [options] <command> [args]\n\n", os.Args[0])
		fmt.Fprintln(fs.Output(), "Commands:")
		fmt.Fprintln(fs.Output(), "  exec [--] <argv...>   authorize and run one command")
		fmt.Fprintln(fs.Output(), "  check [--] <argv...>  print the decision for a command without running it")
		fmt.Fprintln(fs.Output(), "  apply <patch-file>    apply a unified diff (use - for stdin)")
		fmt.Fprintln(fs.Output(), "\nOptions:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	remaining := fs.Args()
	if len(remaining) == 0 {
		fs.Usage()
		return nil, flag.ErrHelp
	}

	opts.command = remaining[0]
	rest := remaining[1:]
	if len(rest) > 0 && rest[0] == "--" {
		rest = rest[1:]
	}

	switch opts.command {
	case "exec", "check":
		if len(rest) == 0 {
			return nil, fmt.Errorf("%s requires a command to evaluate", opts.command)
		}
		opts.argv = rest
	case "apply":
		if len(rest) != 1 {
			return nil, fmt.Errorf("apply takes exactly one patch file (or - for stdin)")
		}
		opts.patch = rest[0]
	default:
		return nil, fmt.Errorf("unknown command %q", opts.command)
	}

	return opts, nil
}

func run() (err error) {
	opts, parseErr := parseArgs(os.Args[1:])
	if parseErr != nil {
		if errors.Is(parseErr, flag.ErrHelp) {
			return nil
		}
		return parseErr
	}

	configPath := opts.configPath
	if configPath == "" {
		configPath = config.GetConfigPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Environment and flags override the file.
	if envLevel := strings.TrimSpace(os.Getenv("SCHLEUSE_LOG_LEVEL")); envLevel != "" {
		cfg.LogLevel = envLevel
	}
	if envPath := strings.TrimSpace(os.Getenv("SCHLEUSE_LOG_PATH")); envPath != "" {
		cfg.LogPath = envPath
	}
	if opts.workdir != "" {
		cfg.WorkingDir = opts.workdir
	}
	if opts.approval != "" {
		cfg.ApprovalPolicy = opts.approval
	}
	if opts.sandboxMode != "" {
		cfg.Sandbox.Mode = opts.sandboxMode
	}
	if len(opts.allowDirs) > 0 {
		cfg.Sandbox.WritableRoots = append(cfg.Sandbox.WritableRoots, opts.allowDirs.toStrings()...)
	}
	if opts.timeoutSec > 0 {
		cfg.DefaultTimeout = opts.timeoutSec
	}

	var loggerInitialized bool
	defer func() {
		if !loggerInitialized {
			return
		}
		if err != nil {
			logger.Error("fatal: %v", err)
		}
		if closeErr := logger.Global().Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close logger: %v\n", closeErr)
		}
	}()

	if initErr := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); initErr != nil {
		return fmt.Errorf("failed to initialize logger: %w", initErr)
	}
	loggerInitialized = true
	logger.Info("schleuse starting (%s)", opts.command)

	profiler := pprof.FromEnv()
	if profErr := profiler.Start(); profErr != nil {
		logger.Warn("profiling disabled: %v", profErr)
	} else {
		defer func() {
			if stopErr := profiler.Stop(); stopErr != nil {
				logger.Warn("failed to write profiles: %v", stopErr)
			}
		}()
	}

	workingDir, err := filepath.Abs(cfg.WorkingDir)
	if err != nil {
		return fmt.Errorf("failed to resolve working directory: %w", err)
	}

	approvalPolicy, err := cfg.DecisionPolicy()
	if err != nil {
		return err
	}
	sandboxPolicy, err := cfg.SandboxPolicy()
	if err != nil {
		return err
	}

	classifier := authz.NewClassifier(nil, logger.Global())
	watcher, watchErr := authz.WatchRulesFile(cfg.RulesPath, classifier, logger.Global())
	if watchErr != nil {
		logger.Warn("rules file %s not watched: %v", cfg.RulesPath, watchErr)
		rules, loadErr := authz.LoadRulesFile(cfg.RulesPath)
		if loadErr != nil {
			return loadErr
		}
		classifier.Reload(rules)
	} else {
		defer func() { _ = watcher.Close() }()
	}

	platform := sandbox.PlatformSandbox()
	engine := authz.NewEngine(classifier, platform, logger.Global())
	approvals := authz.NewSessionStore(workingDir, sandboxPolicy, logger.Global())

	if opts.command == "check" {
		return runCheck(engine, approvals, approvalPolicy, sandboxPolicy, opts.argv)
	}

	helperPath := cfg.HelperPath
	if helperPath == "" {
		helperPath, err = os.Executable()
		if err != nil {
			return fmt.Errorf("failed to locate own executable for the sandbox helper: %w", err)
		}
	}
	manager := sandbox.NewManager(platform, helperPath, logger.Global())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persisted approvals are scoped to the enclosing repository so a
	// grant made in one subdirectory holds across the whole checkout.
	workspace := vcs.NewResolver().Workspace(ctx, workingDir)

	var workspaceStore *authz.WorkspaceStore
	if cfg.PersistApprovals {
		// One writer per database. A second instance keeps working, it
		// just forgets its approvals when it exits.
		dbLock := lockfile.New(cfg.ApprovalDBPath + ".lock")
		if lockErr := dbLock.Acquire(); lockErr != nil {
			logger.Warn("approval database in use, approvals will not persist: %v", lockErr)
		} else {
			defer func() { _ = dbLock.Release() }()
			workspaceStore, err = authz.OpenWorkspaceStore(cfg.ApprovalDBPath, logger.Global())
			if err != nil {
				logger.Warn("approval database unavailable, approvals will not persist: %v", err)
				workspaceStore = nil
			} else {
				defer func() { _ = workspaceStore.Close() }()
				seedApprovals(workspaceStore, approvals, workspace)
			}
		}
	}

	system := actor.NewSystem()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = system.StopAll(stopCtx)
	}()

	var prompter actor.Prompter
	if opts.nonInteractive || opts.dangerous {
		prompter = actor.NewNonInteractivePrompter(actor.NonInteractiveOptions{
			DangerouslyAllowAll: opts.dangerous,
			AllowedCommands:     opts.allowCommands.toStrings(),
			AllowedPaths:        opts.allowDirs.toStrings(),
		}, logger.Global())
	} else {
		prompter = newTerminalPrompter()
	}
	coordinatorRef, err := system.Spawn(ctx, "approvals", actor.NewApprovalCoordinator("approvals", prompter, logger.Global()), 16)
	if err != nil {
		return fmt.Errorf("failed to start approval coordinator: %w", err)
	}
	approver := actor.NewApprovalClient(coordinatorRef)

	auth := tools.NewAuthorizer(tools.AuthorizerConfig{
		Engine:       engine,
		Approvals:    approvals,
		Workspace:    workspaceStore,
		WorkspaceDir: workspace,
		Approver:     approver,
		Approval:     approvalPolicy,
		Sandbox:      sandboxPolicy,
		Log:          logger.Global(),
	})

	runner := exec.NewRunner(logger.Global())
	sink := func(kind exec.StreamKind, chunk []byte) {
		if kind == exec.StreamStderr {
			_, _ = os.Stderr.Write(chunk)
			return
		}
		_, _ = os.Stdout.Write(chunk)
	}

	registry := tools.NewRegistry()
	registry.Register(tools.NewShellTool(auth, manager, runner, workingDir, cfg.DefaultTimeout*1000, sink, logger.Global()))
	registry.Register(tools.NewApplyPatchTool(auth, workingDir, logger.Global()))
	registry.Register(tools.NewReadFileTool(workingDir))
	registry.Register(tools.NewLsTool(workingDir))

	sess := session.NewSession("", workingDir, approvals)
	supervisor := session.NewSupervisor(sess, registry, logger.Global())
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = supervisor.Shutdown(shutdownCtx)
	}()
	logger.Debug("session %s ready in %s (approval=%s, sandbox=%s, platform=%s)",
		sess.ID, workingDir, approvalPolicy, sandboxPolicy.Mode, platform)

	switch opts.command {
	case "exec":
		return runExec(ctx, supervisor, opts.argv)
	case "apply":
		return runApply(ctx, supervisor, opts.patch)
	default:
		return fmt.Errorf("unknown command %q", opts.command)
	}
}

// runCheck consults the decision engine without executing anything. The
// exit code mirrors the decision: 0 permit, 1 deny, 3 ask.
func runCheck(engine *authz.Engine, approvals *authz.SessionStore, approval authz.ApprovalPolicy, sp sandbox.Policy, argv []string) error {
	decision := engine.AssessCommand(argv, approval, sp, approvals, false)
	switch decision.Kind {
	case authz.DecisionPermit:
		fmt.Printf("permit: sandbox=%s record=%v\n", decision.Sandbox, decision.UserApproved)
		return nil
	case authz.DecisionAsk:
		fmt.Println("ask: requires user approval")
		return exitCodeError{code: 3}
	default:
		fmt.Printf("deny: %s\n", decision.Reason)
		return exitCodeError{code: 1}
	}
}

func runExec(ctx context.Context, supervisor *session.Supervisor, argv []string) error {
	params := map[string]interface{}{"command": toAnySlice(argv)}

	var meta *tools.ExecutionMetadata
	taskID, err := supervisor.Spawn(ctx, session.TaskRegular, func(ctx context.Context, turn *session.Turn) (string, error) {
		res, err := turn.Dispatcher.Dispatch(&tools.ToolCall{Name: tools.ToolNameShell, Parameters: params})
		if err != nil {
			return "", err
		}
		meta = res.Metadata
		if res.Error != "" {
			return "", errors.New(res.Error)
		}
		return "", nil
	})
	if err != nil {
		return err
	}

	ev := waitForTask(supervisor, taskID)
	if ev.Kind != session.EventTaskComplete {
		return describeAbort(ev)
	}
	if meta != nil && meta.Escalated {
		logger.Info("command reran without the sandbox after user approval")
	}
	if meta != nil && meta.ExitCode != 0 {
		return exitCodeError{code: meta.ExitCode}
	}
	return nil
}

func runApply(ctx context.Context, supervisor *session.Supervisor, patchPath string) error {
	var data []byte
	var err error
	if patchPath == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(patchPath)
	}
	if err != nil {
		return fmt.Errorf("failed to read patch: %w", err)
	}

	var applied interface{}
	taskID, err := supervisor.Spawn(ctx, session.TaskRegular, func(ctx context.Context, turn *session.Turn) (string, error) {
		res, err := turn.Dispatcher.Dispatch(&tools.ToolCall{
			Name:       tools.ToolNameApplyPatch,
			Parameters: map[string]interface{}{"patch": string(data)},
		})
		if err != nil {
			return "", err
		}
		if res.Error != "" {
			return "", errors.New(res.Error)
		}
		applied = res.Result
		return "", nil
	})
	if err != nil {
		return err
	}

	ev := waitForTask(supervisor, taskID)
	if ev.Kind != session.EventTaskComplete {
		return describeAbort(ev)
	}
	if payload, ok := applied.(map[string]interface{}); ok {
		if files, ok := payload["files"].([]map[string]interface{}); ok {
			for _, f := range files {
				fmt.Printf("%v %v\n", f["action"], f["path"])
			}
		}
	}
	return nil
}

// waitForTask drains the event stream until the task's terminal event.
func waitForTask(supervisor *session.Supervisor, taskID string) session.Event {
	for ev := range supervisor.Events() {
		if ev.TaskID == taskID && ev.Kind != session.EventTaskStarted {
			return ev
		}
	}
	return session.Event{Kind: session.EventTurnAborted, TaskID: taskID, Reason: session.AbortError}
}

func describeAbort(ev session.Event) error {
	if ev.Reason == session.AbortError && ev.Err != nil {
		return ev.Err
	}
	return fmt.Errorf("turn aborted: %s", ev.Reason)
}

func seedApprovals(store *authz.WorkspaceStore, approvals *authz.SessionStore, workspace string) {
	commands, err := store.ApprovedCommands(workspace)
	if err != nil {
		logger.Warn("failed to load persisted approvals: %v", err)
		return
	}
	for _, argv := range commands {
		approvals.Seed(argv)
	}
	if len(commands) > 0 {
		logger.Info("restored %d persisted approval(s) for %s", len(commands), workspace)
	}
}

func toAnySlice(argv []string) []interface{} {
	out := make([]interface{}, len(argv))
	for i, a := range argv {
		out[i] = a
	}
	return out
}
