package manager

import "fmt"

// tooBusyError signals queue overflow or a draining manager for 429 mapping.
type tooBusyError struct{}

func (tooBusyError) Error() string { return "build queue is full" }

// ErrTooBusy constructs a tooBusyError.
func ErrTooBusy() error { return tooBusyError{} }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	_, ok := err.(tooBusyError)
	return ok
}

// conflictError signals that the same (model, quant) pair is already
// queued or building, for 409 mapping.
type conflictError struct {
	model   string
	quant   string
	buildID string
}

func (e conflictError) Error() string {
	return fmt.Sprintf("build already in progress for %s/%s (build %s)", e.model, e.quant, e.buildID)
}

// ErrBuildConflict constructs a conflictError.
func ErrBuildConflict(model, quant, buildID string) error {
	return conflictError{model: model, quant: quant, buildID: buildID}
}

// IsBuildConflict reports whether err indicates a duplicate in-flight build.
func IsBuildConflict(err error) bool {
	_, ok := err.(conflictError)
	return ok
}

// validationError signals a malformed submission for 400 mapping.
type validationError struct{ msg string }

func (e validationError) Error() string { return e.msg }

// ErrValidation constructs a validationError.
func ErrValidation(msg string) error { return validationError{msg: msg} }

// IsValidation reports whether err indicates a bad request.
func IsValidation(err error) bool {
	_, ok := err.(validationError)
	return ok
}

// notFoundError signals an unknown build id for 404 mapping.
type notFoundError struct{ id string }

func (e notFoundError) Error() string { return "build not found: " + e.id }

// ErrBuildNotFound constructs a notFoundError.
func ErrBuildNotFound(id string) error { return notFoundError{id: id} }

// IsBuildNotFound reports whether err indicates a missing build id.
func IsBuildNotFound(err error) bool {
	_, ok := err.(notFoundError)
	return ok
}
