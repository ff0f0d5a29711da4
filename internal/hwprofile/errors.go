package hwprofile

import "fmt"

// profileMissingError signals that the probe report file does not exist.
// This is deliberately distinct from a parse failure: a missing probe must
// never be treated as "generic CPU, no accelerator".
type profileMissingError struct{ path string }

func (e profileMissingError) Error() string { return "hardware profile missing: " + e.path }

// ErrProfileMissing constructs a profileMissingError.
func ErrProfileMissing(path string) error { return profileMissingError{path: path} }

// IsProfileMissing reports whether err indicates an absent probe report.
func IsProfileMissing(err error) bool {
	_, ok := err.(profileMissingError)
	return ok
}

// parseError reports a malformed probe report with the offending line.
type parseError struct {
	line int
	msg  string
}

func (e parseError) Error() string {
	if e.line > 0 {
		return fmt.Sprintf("profile parse: line %d: %s", e.line, e.msg)
	}
	return "profile parse: " + e.msg
}

func errParse(line int, format string, a ...any) error {
	return parseError{line: line, msg: fmt.Sprintf(format, a...)}
}

// IsParseError reports whether err indicates a malformed probe report.
func IsParseError(err error) bool {
	_, ok := err.(parseError)
	return ok
}

// unsupportedArchitectureError is returned by consumers of a profile whose
// architecture normalized to unknown. The parser itself never raises it;
// it must finish parsing so the caller can report exactly this error
// instead of crashing mid-parse.
type unsupportedArchitectureError struct{ raw string }

func (e unsupportedArchitectureError) Error() string {
	return "unsupported architecture: " + e.raw
}

// ErrUnsupportedArchitecture constructs an unsupportedArchitectureError.
func ErrUnsupportedArchitecture(raw string) error {
	return unsupportedArchitectureError{raw: raw}
}

// IsUnsupportedArchitecture reports whether err indicates an architecture
// that no toolchain rule can describe.
func IsUnsupportedArchitecture(err error) bool {
	_, ok := err.(unsupportedArchitectureError)
	return ok
}
