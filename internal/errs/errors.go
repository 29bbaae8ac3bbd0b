package errs

import "errors"

var (
	// ErrUsage is returned for missing or invalid input such as an empty config
	// name or a project that cannot be determined.
	ErrUsage = errors.New("usage error")
	// ErrAuthentication is returned when no credentials could be obtained.
	ErrAuthentication = errors.New("authentication error")
	// ErrTransport is returned when the variable listing cannot be retrieved.
	ErrTransport = errors.New("transport error")
)
