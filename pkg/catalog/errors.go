package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/fulmenhq/reportdeploy/pkg/exitcode"
)

var (
	// ErrItemNotFound matches faults reporting a missing catalog path.
	ErrItemNotFound = errors.New("catalog item not found")

	// ErrAlreadyExists matches faults reporting a name conflict.
	ErrAlreadyExists = errors.New("catalog item already exists")
)

// Fault codes used by the report server.
const (
	CodeItemNotFound      = "rsItemNotFound"
	CodeItemAlreadyExists = "rsItemAlreadyExists"
	CodeInvalidItemPath   = "rsInvalidItemPath"
	CodeInvalidDefinition = "rsInvalidReportDefinition"
	CodeDataSourceMissing = "rsDataSourceNotFound"
	CodeWrongItemType     = "rsWrongItemType"
)

// Fault is a logical error reported by the catalog server. The request
// reached the server and was rejected, so retrying cannot help.
type Fault struct {
	Operation string
	Code      string
	Message   string
}

func (f *Fault) Error() string {
	if f.Code == "" {
		return fmt.Sprintf("%s: %s", f.Operation, f.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", f.Operation, f.Message, f.Code)
}

// Is lets errors.Is match faults against the sentinel errors above.
func (f *Fault) Is(target error) bool {
	switch target {
	case ErrItemNotFound:
		return f.Code == CodeItemNotFound
	case ErrAlreadyExists:
		return f.Code == CodeItemAlreadyExists
	}
	return false
}

// ExitCode maps faults to exitcode.RemoteFault.
func (f *Fault) ExitCode() int {
	return exitcode.RemoteFault
}

// TransportError indicates the call did not complete: connection failures,
// authentication rejections and unexpected HTTP statuses.
type TransportError struct {
	Operation  string
	URL        string
	StatusCode int
	Wrapped    error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: HTTP %d: %v", e.Operation, e.URL, e.StatusCode, e.Wrapped)
	}
	return fmt.Sprintf("%s %s: %v", e.Operation, e.URL, e.Wrapped)
}

func (e *TransportError) Unwrap() error {
	return e.Wrapped
}

// ExitCode maps rejected credentials to exitcode.PermissionError, timeouts to
// exitcode.TimeoutError and every other transport failure to
// exitcode.NetworkError.
func (e *TransportError) ExitCode() int {
	var timeout interface{ Timeout() bool }
	switch {
	case e.StatusCode == http.StatusUnauthorized, e.StatusCode == http.StatusForbidden:
		return exitcode.PermissionError
	case errors.Is(e.Wrapped, context.Canceled):
		return exitcode.Interrupted
	case errors.Is(e.Wrapped, context.DeadlineExceeded):
		return exitcode.TimeoutError
	case errors.As(e.Wrapped, &timeout) && timeout.Timeout():
		return exitcode.TimeoutError
	default:
		return exitcode.NetworkError
	}
}

// Transient reports whether the failure may succeed on a later attempt.
// Authentication failures and client errors are not transient.
func (e *TransportError) Transient() bool {
	switch e.StatusCode {
	case 0:
		return true
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// IsFault reports whether err carries a server fault.
func IsFault(err error) bool {
	var f *Fault
	return errors.As(err, &f)
}

// IsTransportError reports whether err carries a transport failure.
func IsTransportError(err error) bool {
	var t *TransportError
	return errors.As(err, &t)
}

// IsTransient reports whether err is a transport failure worth retrying.
func IsTransient(err error) bool {
	var t *TransportError
	if errors.As(err, &t) {
		return t.Transient()
	}
	return false
}
