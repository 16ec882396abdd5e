package pipeline

import "fmt"

// Kind categorizes a failed pipeline run. None of these are retried; the
// transport layer maps each kind to an HTTP status and the message is shown
// to the user as-is.
type Kind int

const (
	KindUnexpected Kind = iota
	KindInvalidInput
	KindNotFound
	KindTimeout
	KindHTTPError
	KindInsufficientContent
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindTimeout:
		return "timeout"
	case KindHTTPError:
		return "http_error"
	case KindInsufficientContent:
		return "insufficient_content"
	case KindUpstream:
		return "upstream_error"
	default:
		return "unexpected"
	}
}

type Error struct {
	Kind    Kind
	Message string

	// Status is the origin server's status code, set for KindHTTPError only.
	Status int

	// Title and Favicon carry the already-derived page metadata for
	// KindInsufficientContent, so the caller can still show a weak result.
	Title   string
	Favicon string

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Cause keeps pkg/errors chains working.
func (e *Error) Cause() error { return e.cause }
