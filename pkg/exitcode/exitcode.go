// Package exitcode provides standardized exit codes for reportdeploy
package exitcode

import (
	"context"
	"errors"
	"io/fs"
)

// Exit codes for reportdeploy CLI
const (
	Success         = 0
	GeneralError    = 1
	ConfigError     = 2
	ValidationError = 3
	FileSystemError = 4
	NetworkError    = 5
	PermissionError = 6
	TimeoutError    = 7
	RemoteFault     = 10
	Interrupted     = 130
)

// String returns a human-readable description of the exit code
func String(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case ConfigError:
		return "Configuration error"
	case ValidationError:
		return "Validation error"
	case FileSystemError:
		return "File system error"
	case NetworkError:
		return "Network error"
	case PermissionError:
		return "Permission error"
	case TimeoutError:
		return "Timeout error"
	case RemoteFault:
		return "Remote catalog error"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}

// Coder is implemented by errors that know which exit code they map to.
type Coder interface {
	ExitCode() int
}

// FromError picks the exit code for err. The first Coder in the chain wins;
// otherwise cancellation, deadlines and file system errors are recognized.
func FromError(err error) int {
	if err == nil {
		return Success
	}
	var c Coder
	if errors.As(err, &c) {
		return c.ExitCode()
	}
	switch {
	case errors.Is(err, context.Canceled):
		return Interrupted
	case errors.Is(err, context.DeadlineExceeded):
		return TimeoutError
	case errors.Is(err, fs.ErrPermission):
		return PermissionError
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return FileSystemError
	}
	return GeneralError
}
