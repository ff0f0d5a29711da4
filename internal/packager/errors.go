package packager

import "fmt"

// packagingIntegrityError rejects implausible build outputs before they
// are published: a truncated model or missing binary must never become a
// deployable package.
type packagingIntegrityError struct{ detail string }

func (e packagingIntegrityError) Error() string { return "packaging integrity: " + e.detail }

// ErrPackagingIntegrity constructs a packagingIntegrityError.
func ErrPackagingIntegrity(format string, a ...any) error {
	return packagingIntegrityError{detail: fmt.Sprintf(format, a...)}
}

// IsPackagingIntegrity reports whether err indicates a rejected package.
func IsPackagingIntegrity(err error) bool {
	_, ok := err.(packagingIntegrityError)
	return ok
}
