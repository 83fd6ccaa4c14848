package fillerr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	MalformedInput         Kind = "MALFORMED_INPUT"
	DocumentNotFound       Kind = "DOCUMENT_NOT_FOUND"
	UnsupportedFormat      Kind = "UNSUPPORTED_FORMAT"
	ExtractionParseFailure Kind = "EXTRACTION_PARSE_FAILURE"
)

// Error is a terminal failure of one fill operation. Input names the offending
// input (a placeholder, a session id, a field key) so callers can surface it.
type Error struct {
	Kind   Kind
	Input  string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Input != "" {
		msg += fmt.Sprintf(" %q", e.Input)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, &Error{Kind: k}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Input == "" || t.Input == e.Input)
}

func New(kind Kind, input, reason string) *Error {
	return &Error{Kind: kind, Input: input, Reason: reason}
}

func Wrap(kind Kind, input string, err error) *Error {
	return &Error{Kind: kind, Input: input, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }

func Status(kind Kind) int {
	switch kind {
	case MalformedInput:
		return http.StatusBadRequest
	case DocumentNotFound:
		return http.StatusNotFound
	case UnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case ExtractionParseFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
