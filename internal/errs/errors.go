package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MimeLyc/pipeline-console/pkg/log"
)

type Kind int

const (
	Validation Kind = iota
	NotFound
	RemoteRead
	RemoteWrite
	Trigger
	Timeout
	Config
	Unknown
)

// ErrNotFound is returned by stores when the addressed row does not exist.
var ErrNotFound = errors.New("record not found")

// Error is the error type returned across the console's services.
type Error struct {
	Kind    Kind
	Message string
	Context map[string]any
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Context: make(map[string]any),
	}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

func Wrap(err error, kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Context: make(map[string]any),
		Cause:   err,
	}
}

// WrapStore wraps a store failure as kind, or as NotFound when the store
// reported a missing row.
func WrapStore(err error, kind Kind, message string) *Error {
	if errors.Is(err, ErrNotFound) {
		kind = NotFound
	}
	return Wrap(err, kind, message)
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Kind.String(), e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ctxParts := make([]string, 0, len(keys))
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) WithContext(key string, value any) *Error {
	e.Context[key] = value
	return e
}

func (k Kind) String() string {
	switch k {
	case Validation:
		return "Validation"
	case NotFound:
		return "NotFound"
	case RemoteRead:
		return "RemoteRead"
	case RemoteWrite:
		return "RemoteWrite"
	case Trigger:
		return "Trigger"
	case Timeout:
		return "Timeout"
	case Config:
		return "Config"
	default:
		return "Unknown"
	}
}

// KindOf returns the kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Advice returns the operator-facing hint for a failure kind.
func Advice(kind Kind) string {
	switch kind {
	case Validation:
		return "Check the submitted values and try again"
	case NotFound:
		return "The record no longer exists; refresh the list"
	case RemoteRead:
		return "The data store could not be read; refresh to try again"
	case RemoteWrite:
		return "The change was not saved; repeat the action"
	case Trigger:
		return "The workflow backend rejected the request; check the webhook status and retry"
	case Timeout:
		return "The workflow backend did not answer in time; the external job may still be running"
	case Config:
		return "Check environment variables and the settings file"
	default:
		return "Review the error details and the service logs"
	}
}

// Report logs err with its advice and reports whether it was a typed error.
func Report(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		log.Error("Unknown error: %v", err)
		return false
	}
	log.Error("Error detail: %v | advice: %s", err, Advice(e.Kind))
	return true
}
