package fleet

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes produced by the adapters themselves rather than the provider.
const (
	CodeNotFound    = "NotFound"
	CodeWaitTimeout = "WaitTimeout"
	CodeUnknown     = "Unknown"
)

// ClientError is a provider-reported failure carrying a machine-readable code
// and the provider's message.
type ClientError struct {
	Op       string // e.g. StopInstances, CreateSnapshot
	Resource string // instance or volume id, when known
	Code     string
	Message  string
	Cause    error
}

func (e *ClientError) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		if e.Resource != "" {
			fmt.Fprintf(&b, " %s", e.Resource)
		}
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	return b.String()
}

func (e *ClientError) Unwrap() error { return e.Cause }

// NotFound reports whether the provider said the resource does not exist.
func (e *ClientError) NotFound() bool {
	return e.Code == CodeNotFound || strings.HasSuffix(e.Code, ".NotFound")
}

// IsNotFound reports whether err is a ClientError for a missing resource.
func IsNotFound(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce) && ce.NotFound()
}

// IsClientError reports whether err originated from the provider.
func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}

func notFound(op, resource string) *ClientError {
	return &ClientError{Op: op, Resource: resource, Code: CodeNotFound, Message: "resource " + resource + " does not exist"}
}
