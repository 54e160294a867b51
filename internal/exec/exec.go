// Package exec runs commands as supervised child processes. It captures
// stdout and stderr separately and interleaved, streams chunks to an
// optional sink, enforces timeouts, and kills the whole process group on
// timeout or cancellation.
package exec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/codefionn/schleuse/internal/logger"
)

const (
	// DefaultTimeout applies when a CommandSpec carries no timeout.
	DefaultTimeout = 10 * time.Second

	// TimeoutExitCode is reported for commands killed by the timeout,
	// matching the convention of timeout(1).
	TimeoutExitCode = 124

	readChunkSize = 8192

	// maxCaptureBytes caps each captured stream; a runaway command
	// cannot balloon the result. Sinks still see every chunk live.
	maxCaptureBytes = 1 << 20
)

// CommandSpec describes one command to execute. It is the unit the
// authorization and sandbox layers operate on.
type CommandSpec struct {
	Argv      []string
	Cwd       string
	Env       []string // nil inherits the parent environment
	TimeoutMs int

	// WithEscalatedPermissions is set when the model asked to run the
	// command outside the sandbox; Justification carries its reason.
	WithEscalatedPermissions bool
	Justification            string
}

// Timeout returns the effective timeout for the spec.
func (s CommandSpec) Timeout() time.Duration {
	if s.TimeoutMs <= 0 {
		return DefaultTimeout
	}
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// RawExecResult is the unprocessed outcome of one command attempt.
type RawExecResult struct {
	ExitCode         int
	Stdout           string
	Stderr           string
	AggregatedOutput string
	Duration         time.Duration
	TimedOut         bool
	Truncated        bool
}

// StreamKind identifies which stream a chunk came from.
type StreamKind int

const (
	StreamStdout StreamKind = iota
	StreamStderr
)

// OutputSink receives output chunks as they arrive. Calls are serialized;
// the chunk is only valid for the duration of the call.
type OutputSink func(kind StreamKind, chunk []byte)

// Runner executes CommandSpecs.
type Runner struct {
	log *logger.Logger
}

// NewRunner creates a Runner logging through log. A nil log falls back to
// the global logger.
func NewRunner(log *logger.Logger) *Runner {
	if log == nil {
		log = logger.Global()
	}
	return &Runner{log: log.WithPrefix("exec")}
}

// Run executes the spec and blocks until it finishes, times out, or ctx is
// cancelled. A non-zero exit is a successful Run with a non-zero
// RawExecResult.ExitCode; an error means the command could not be run or
// was cancelled.
func (r *Runner) Run(ctx context.Context, spec CommandSpec, sink OutputSink) (*RawExecResult, error) {
	if len(spec.Argv) == 0 {
		return nil, errors.New("empty argv")
	}

	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Cwd
	if spec.Env != nil {
		cmd.Env = spec.Env
	} else {
		cmd.Env = os.Environ()
	}
	cmd.Stdin = nil
	configureProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	startedAt := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start command: %w", err)
	}

	out := newOutputBuffer(sink)
	var wg sync.WaitGroup
	startStreamReader(&wg, stdout, StreamStdout, out, r.log)
	startStreamReader(&wg, stderr, StreamStderr, out, r.log)

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	timeout := spec.Timeout()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	timedOut := false

	for {
		select {
		case waitErr := <-done:
			wg.Wait()
			return r.buildResult(cmd, waitErr, out, startedAt, timeout, timedOut)

		case <-ctx.Done():
			r.log.Warn("killing process (pid=%d): %v", cmd.Process.Pid, ctx.Err())
			r.killTree(cmd)
			<-done
			wg.Wait()
			return nil, ctx.Err()

		case <-timer.C:
			timedOut = true
			r.log.Warn("killing process (pid=%d) after timeout %s", cmd.Process.Pid, timeout)
			r.killTree(cmd)
			// loop back to drain done
		}
	}
}

func (r *Runner) buildResult(cmd *exec.Cmd, waitErr error, out *outputBuffer, startedAt time.Time, timeout time.Duration, timedOut bool) (*RawExecResult, error) {
	res := &RawExecResult{
		Stdout:           out.stdout(),
		Stderr:           out.stderr(),
		AggregatedOutput: out.aggregated(),
		Duration:         time.Since(startedAt),
		TimedOut:         timedOut,
		Truncated:        out.isTruncated(),
	}

	if timedOut {
		res.ExitCode = TimeoutExitCode
		res.Stderr = appendLine(res.Stderr, fmt.Sprintf("command timed out after %s", timeout))
		res.AggregatedOutput = appendLine(res.AggregatedOutput, fmt.Sprintf("command timed out after %s", timeout))
		return res, nil
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitCodeFromState(exitErr.ProcessState)
			r.log.Debug("command exited with code %d", res.ExitCode)
			return res, nil
		}
		return nil, fmt.Errorf("wait for command: %w", waitErr)
	}

	res.ExitCode = 0
	return res, nil
}

func (r *Runner) killTree(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if pgid := processGroupID(cmd); pgid > 0 {
		if err := signalProcessGroup(pgid, killSignal); err == nil || isIgnorableSignalError(err) {
			return
		}
	}
	if err := cmd.Process.Kill(); err != nil && !isIgnorableSignalError(err) {
		r.log.Warn("failed to kill process %d: %v", cmd.Process.Pid, err)
	}
}

func startStreamReader(wg *sync.WaitGroup, reader io.Reader, kind StreamKind, out *outputBuffer, log *logger.Logger) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		buf := make([]byte, readChunkSize)
		for {
			n, err := reader.Read(buf)
			if n > 0 {
				out.append(kind, buf[:n])
			}
			if err != nil {
				if err != io.EOF && !errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, os.ErrClosed) {
					log.Debug("stream read error: %v", err)
				}
				return
			}
		}
	}()
}

// outputBuffer accumulates both streams plus their interleaving and
// forwards each chunk to the sink. One mutex serializes the two reader
// goroutines.
type outputBuffer struct {
	mu        sync.Mutex
	stdoutBuf strings.Builder
	stderrBuf strings.Builder
	aggregate strings.Builder
	truncated bool
	sink      OutputSink
}

func newOutputBuffer(sink OutputSink) *outputBuffer {
	return &outputBuffer{sink: sink}
}

func (o *outputBuffer) append(kind StreamKind, chunk []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch kind {
	case StreamStdout:
		o.writeCapped(&o.stdoutBuf, chunk)
	case StreamStderr:
		o.writeCapped(&o.stderrBuf, chunk)
	}
	o.writeCapped(&o.aggregate, chunk)
	if o.sink != nil {
		o.sink(kind, chunk)
	}
}

func (o *outputBuffer) writeCapped(b *strings.Builder, chunk []byte) {
	remaining := maxCaptureBytes - b.Len()
	if remaining <= 0 {
		o.truncated = true
		return
	}
	if len(chunk) > remaining {
		b.Write(chunk[:remaining])
		o.truncated = true
		return
	}
	b.Write(chunk)
}

func (o *outputBuffer) isTruncated() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.truncated
}

func (o *outputBuffer) stdout() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stdoutBuf.String()
}

func (o *outputBuffer) stderr() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stderrBuf.String()
}

func (o *outputBuffer) aggregated() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.aggregate.String()
}

func appendLine(s, line string) string {
	if s == "" {
		return line + "\n"
	}
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s + line + "\n"
}
