//go:build !windows

package exec

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestRunCapturesStreams(t *testing.T) {
	r := NewRunner(nil)
	spec := CommandSpec{
		Argv: []string{"sh", "-c", "echo out; echo err 1>&2"},
		Cwd:  t.TempDir(),
	}

	res, err := r.Run(context.Background(), spec, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", res.ExitCode)
	}
	if !strings.Contains(res.Stdout, "out") {
		t.Errorf("stdout missing output: %q", res.Stdout)
	}
	if !strings.Contains(res.Stderr, "err") {
		t.Errorf("stderr missing output: %q", res.Stderr)
	}
	if !strings.Contains(res.AggregatedOutput, "out") || !strings.Contains(res.AggregatedOutput, "err") {
		t.Errorf("aggregated output incomplete: %q", res.AggregatedOutput)
	}
	if res.TimedOut {
		t.Errorf("unexpected timeout")
	}
}

func TestRunNonZeroExit(t *testing.T) {
	r := NewRunner(nil)
	spec := CommandSpec{Argv: []string{"sh", "-c", "exit 3"}, Cwd: t.TempDir()}

	res, err := r.Run(context.Background(), spec, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
}

func TestRunHonorsEnv(t *testing.T) {
	r := NewRunner(nil)
	spec := CommandSpec{
		Argv: []string{"sh", "-c", "echo $SCHLEUSE_TEST_VALUE"},
		Cwd:  t.TempDir(),
		Env:  []string{"PATH=/usr/bin:/bin", "SCHLEUSE_TEST_VALUE=marker"},
	}

	res, err := r.Run(context.Background(), spec, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(res.Stdout, "marker") {
		t.Errorf("stdout missing env value: %q", res.Stdout)
	}
}

func TestRunTimeout(t *testing.T) {
	r := NewRunner(nil)
	spec := CommandSpec{
		Argv:      []string{"sh", "-c", "sleep 30"},
		Cwd:       t.TempDir(),
		TimeoutMs: 100,
	}

	start := time.Now()
	res, err := r.Run(context.Background(), spec, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !res.TimedOut {
		t.Errorf("expected TimedOut")
	}
	if res.ExitCode != TimeoutExitCode {
		t.Errorf("exit code = %d, want %d", res.ExitCode, TimeoutExitCode)
	}
	if !strings.Contains(res.Stderr, "timed out") {
		t.Errorf("stderr missing timeout notice: %q", res.Stderr)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("timeout took too long: %s", elapsed)
	}
}

func TestRunContextCancel(t *testing.T) {
	r := NewRunner(nil)
	spec := CommandSpec{
		Argv:      []string{"sh", "-c", "sleep 30"},
		Cwd:       t.TempDir(),
		TimeoutMs: 60_000,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := r.Run(ctx, spec, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("cancellation took too long: %s", elapsed)
	}
}

func TestRunEmptyArgv(t *testing.T) {
	r := NewRunner(nil)
	if _, err := r.Run(context.Background(), CommandSpec{}, nil); err == nil {
		t.Fatal("expected error for empty argv")
	}
}

func TestRunStreamsToSink(t *testing.T) {
	r := NewRunner(nil)
	spec := CommandSpec{
		Argv: []string{"sh", "-c", "echo hello"},
		Cwd:  t.TempDir(),
	}

	var mu sync.Mutex
	var got strings.Builder
	sink := func(kind StreamKind, chunk []byte) {
		mu.Lock()
		defer mu.Unlock()
		if kind == StreamStdout {
			got.Write(chunk)
		}
	}

	if _, err := r.Run(context.Background(), spec, sink); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !strings.Contains(got.String(), "hello") {
		t.Errorf("sink missed stdout chunk: %q", got.String())
	}
}

func TestCommandSpecTimeoutDefault(t *testing.T) {
	if got := (CommandSpec{}).Timeout(); got != DefaultTimeout {
		t.Errorf("default timeout = %s, want %s", got, DefaultTimeout)
	}
	if got := (CommandSpec{TimeoutMs: 250}).Timeout(); got != 250*time.Millisecond {
		t.Errorf("timeout = %s, want 250ms", got)
	}
}
