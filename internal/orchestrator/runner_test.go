package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func shCmd(script string) Cmd {
	return Cmd{Path: "/bin/sh", Args: []string{"-c", script}}
}

func TestRunnerCapturesExitCodeAndStderr(t *testing.T) {
	r := NewRunner(0, zerolog.Nop())
	res, err := r.Run(context.Background(), shCmd("echo boom >&2; exit 3"))
	if err == nil {
		t.Fatalf("expected error for exit 3")
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
	if !strings.Contains(res.StderrTail, "boom") {
		t.Errorf("stderr tail = %q, want it to contain boom", res.StderrTail)
	}
	if res.Duration <= 0 {
		t.Errorf("duration not recorded")
	}
}

func TestRunnerSuccess(t *testing.T) {
	r := NewRunner(0, zerolog.Nop())
	res, err := r.Run(context.Background(), shCmd("exit 0"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", res.ExitCode)
	}
}

func TestRunnerWritesLogFile(t *testing.T) {
	log := filepath.Join(t.TempDir(), "stage.log")
	r := NewRunner(0, zerolog.Nop())
	c := shCmd("echo to-stdout; echo to-stderr >&2")
	c.LogFile = log
	res, err := r.Run(context.Background(), c)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	b, err := os.ReadFile(log)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	for _, want := range []string{"to-stdout", "to-stderr"} {
		if !strings.Contains(string(b), want) {
			t.Errorf("log file missing %q:\n%s", want, b)
		}
	}
	if !strings.Contains(res.StderrTail, "to-stderr") || strings.Contains(res.StderrTail, "to-stdout") {
		t.Errorf("stderr tail should carry only stderr, got %q", res.StderrTail)
	}
}

func TestRunnerMergesEnv(t *testing.T) {
	r := NewRunner(0, zerolog.Nop())
	c := shCmd(`printf %s "$EDGEFORGE_TEST_VAR" >&2`)
	c.Env = map[string]string{"EDGEFORGE_TEST_VAR": "hello"}
	res, err := r.Run(context.Background(), c)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.StderrTail != "hello" {
		t.Errorf("env var not passed, stderr = %q", res.StderrTail)
	}
}

func TestRunnerWorkdir(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner(0, zerolog.Nop())
	c := shCmd("pwd >&2")
	c.Dir = dir
	res, err := r.Run(context.Background(), c)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(res.StderrTail, filepath.Base(dir)) {
		t.Errorf("workdir not honored, pwd = %q", res.StderrTail)
	}
}

func TestRunnerTimeoutKillsProcessGroup(t *testing.T) {
	r := NewRunner(200*time.Millisecond, zerolog.Nop())
	r.Grace = 100 * time.Millisecond

	start := time.Now()
	_, err := r.Run(context.Background(), shCmd("sleep 30"))
	elapsed := time.Since(start)

	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("want deadline exceeded, got %v", err)
	}
	if elapsed > 5*time.Second {
		t.Errorf("runner took %v to give up, child not killed", elapsed)
	}
}

func TestRunnerCancelStopsChild(t *testing.T) {
	r := NewRunner(0, zerolog.Nop())
	r.Grace = 100 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := r.Run(ctx, shCmd("sleep 30"))
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("want canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("runner took %v after cancel", elapsed)
	}
}

func TestRunnerStartFailure(t *testing.T) {
	r := NewRunner(0, zerolog.Nop())
	_, err := r.Run(context.Background(), Cmd{Path: "/nonexistent/tool"})
	if err == nil || !strings.Contains(err.Error(), "start") {
		t.Fatalf("expected start error, got %v", err)
	}
}

func TestRunnerLookPath(t *testing.T) {
	r := NewRunner(0, zerolog.Nop())
	if _, err := r.LookPath("sh"); err != nil {
		t.Fatalf("sh not found: %v", err)
	}
	if _, err := r.LookPath("definitely-not-a-tool-4711"); err == nil {
		t.Fatalf("expected lookup failure")
	}
}

func TestTailBufferKeepsLastBytes(t *testing.T) {
	var tail tailBuffer
	chunk := bytes.Repeat([]byte("x"), 1000)
	for i := 0; i < 10; i++ {
		if _, err := tail.Write(chunk); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	tail.Write([]byte("THE-END"))

	s := tail.String()
	if len(s) > stderrTailBytes {
		t.Errorf("tail length %d exceeds cap %d", len(s), stderrTailBytes)
	}
	if !strings.HasSuffix(s, "THE-END") {
		t.Errorf("tail lost the most recent bytes")
	}
}
