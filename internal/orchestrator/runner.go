package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

const stderrTailBytes = 4096

// Cmd describes one external tool invocation.
type Cmd struct {
	Path string
	Args []string
	Env  map[string]string // additional env vars
	Dir  string            // working directory
	// LogFile, when set, receives the tool's combined output so partial
	// artifacts keep their build logs next to them.
	LogFile string
}

// Result carries the diagnostics every stage failure must report.
type Result struct {
	ExitCode   int
	Duration   time.Duration
	StderrTail string
}

// CommandRunner abstracts subprocess execution so pipeline logic can be
// tested without compilers installed.
type CommandRunner interface {
	Run(ctx context.Context, c Cmd) (Result, error)
	LookPath(name string) (string, error)
}

// Runner executes external tools with a per-invocation timeout. Children
// are started in their own process group: compilers and conversion scripts
// fork freely, and killing only the parent would leave orphans holding
// file locks in the build cache.
type Runner struct {
	Timeout time.Duration // 0 means no timeout
	Grace   time.Duration // SIGTERM to SIGKILL escalation window
	Log     zerolog.Logger
}

func NewRunner(timeout time.Duration, log zerolog.Logger) *Runner {
	return &Runner{Timeout: timeout, Grace: 2 * time.Second, Log: log}
}

func (r *Runner) LookPath(name string) (string, error) { return exec.LookPath(name) }

func (r *Runner) Run(ctx context.Context, c Cmd) (Result, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = os.Environ()
	for k, v := range c.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// Keep the last few KiB of stderr in memory for error reports; the
	// full stream goes to the stage log file when one is configured.
	var tail tailBuffer
	stderr := io.Writer(&tail)
	stdout := io.Writer(io.Discard)
	var logFile *os.File
	if c.LogFile != "" {
		f, err := os.Create(c.LogFile)
		if err != nil {
			return Result{}, fmt.Errorf("create log file: %w", err)
		}
		logFile = f
		stdout = f
		stderr = io.MultiWriter(f, &tail)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return Result{}, fmt.Errorf("start %s: %w", c.Path, err)
	}
	r.Log.Debug().Str("path", c.Path).Strs("args", c.Args).Int("pid", cmd.Process.Pid).Msg("tool start")

	waitErrCh := make(chan error, 1)
	go func() { waitErrCh <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-waitErrCh:
	case <-ctx.Done():
		r.terminateGroup(cmd.Process.Pid)
		waitErr = <-waitErrCh
		if waitErr == nil || ctx.Err() != nil {
			waitErr = ctx.Err()
		}
	}
	if logFile != nil {
		logFile.Close()
	}

	res := Result{
		ExitCode:   exitCode(cmd, waitErr),
		Duration:   time.Since(start),
		StderrTail: tail.String(),
	}
	if waitErr != nil {
		r.Log.Debug().Str("path", c.Path).Int("exit_code", res.ExitCode).Dur("dur", res.Duration).Err(waitErr).Msg("tool end")
		return res, fmt.Errorf("%s: %w", c.Path, waitErr)
	}
	r.Log.Debug().Str("path", c.Path).Dur("dur", res.Duration).Msg("tool end")
	return res, nil
}

// terminateGroup sends SIGTERM to the whole process group, waits out the
// grace window, then SIGKILLs whatever is left.
func (r *Runner) terminateGroup(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	grace := r.Grace
	if grace <= 0 {
		grace = 2 * time.Second
	}
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		// Signal 0 probes for surviving group members.
		if err := syscall.Kill(-pid, syscall.Signal(0)); err != nil {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

func exitCode(cmd *exec.Cmd, err error) int {
	if err == nil {
		return 0
	}
	if ee, ok := err.(*exec.ExitError); ok {
		return ee.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}

// tailBuffer keeps the last stderrTailBytes of what was written to it.
type tailBuffer struct {
	buf bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf.Write(p)
	if t.buf.Len() > stderrTailBytes {
		b := t.buf.Bytes()
		trimmed := append([]byte(nil), b[len(b)-stderrTailBytes:]...)
		t.buf.Reset()
		t.buf.Write(trimmed)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return t.buf.String() }
