package orchestrator

import (
	"fmt"

	"edgeforge/pkg/types"
)

// backendUnavailableError signals that the external toolkit a decision
// requires is not installed/reachable, so callers can distinguish "your
// hardware can't do this" from "a tool is missing".
type backendUnavailableError struct {
	backend types.Backend
	detail  string
}

func (e backendUnavailableError) Error() string {
	return fmt.Sprintf("backend %s unavailable: %s", e.backend, e.detail)
}

// ErrBackendUnavailable constructs a backendUnavailableError.
func ErrBackendUnavailable(backend types.Backend, detail string) error {
	return backendUnavailableError{backend: backend, detail: detail}
}

// IsBackendUnavailable reports whether err indicates a missing external toolkit.
func IsBackendUnavailable(err error) bool {
	_, ok := err.(backendUnavailableError)
	return ok
}

// buildInProgressError signals that another build already holds the lock
// for the same (model, architecture, quant) triple.
type buildInProgressError struct{ triple string }

func (e buildInProgressError) Error() string { return "build in progress for " + e.triple }

func ErrBuildInProgress(triple string) error { return buildInProgressError{triple: triple} }

// IsBuildInProgress reports whether err indicates a conflicting in-flight build.
func IsBuildInProgress(err error) bool {
	_, ok := err.(buildInProgressError)
	return ok
}

// stageError marks a pipeline stage failure. It wraps the underlying error
// and carries the external tool's exit code and stderr tail, which is what
// a user needs to debug a failed build.
type stageError struct {
	stage      types.Stage
	err        error
	exitCode   int
	stderrTail string
}

func (e *stageError) Error() string {
	msg := fmt.Sprintf("stage %s failed: %v", e.stage, e.err)
	if e.exitCode != 0 {
		msg += fmt.Sprintf(" (exit code %d)", e.exitCode)
	}
	if e.stderrTail != "" {
		msg += "; stderr tail: " + e.stderrTail
	}
	return msg
}

func (e *stageError) Unwrap() error { return e.err }

// ErrStage wraps err as a failure of the given stage. A nil err returns nil.
func ErrStage(stage types.Stage, err error) error {
	if err == nil {
		return nil
	}
	if se, ok := err.(*stageError); ok {
		return se
	}
	return &stageError{stage: stage, err: err}
}

// ErrStageExec is ErrStage plus the subprocess diagnostics.
func ErrStageExec(stage types.Stage, err error, exitCode int, stderrTail string) error {
	if err == nil {
		return nil
	}
	return &stageError{stage: stage, err: err, exitCode: exitCode, stderrTail: stderrTail}
}

// FailedStage returns the stage a pipeline error belongs to.
func FailedStage(err error) (types.Stage, bool) {
	se, ok := err.(*stageError)
	if !ok {
		return "", false
	}
	return se.stage, true
}

// StderrTail returns the captured stderr tail of a stage failure, if any.
func StderrTail(err error) string {
	if se, ok := err.(*stageError); ok {
		return se.stderrTail
	}
	return ""
}

// Exit codes reported by the CLI. Pre-pipeline failures (parse, dispatch,
// preflight) share one code; each stage failure gets its own so scripts can
// tell where a build died without parsing logs.
const (
	ExitOK          = 0
	ExitPrePipeline = 2
	ExitInProgress  = 3

	exitStageBase = 10 // acquire=11, configure=12, ... package=17
)

// ExitCode maps a pipeline error to the CLI exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if IsBuildInProgress(err) {
		return ExitInProgress
	}
	if stage, ok := FailedStage(err); ok {
		for i, s := range types.Stages() {
			if s == stage {
				return exitStageBase + i + 1
			}
		}
	}
	return ExitPrePipeline
}

// IsPrePipeline reports whether err happened before any subprocess was
// spawned (profile, dispatch or preflight problems).
func IsPrePipeline(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := FailedStage(err); ok {
		return false
	}
	return !IsBuildInProgress(err)
}
