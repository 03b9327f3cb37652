package errors

import (
	"fmt"
	"runtime"
	"strings"
)

// ErrorType represents the category of error within the pipeline
type ErrorType int

const (
	// Input errors - malformed URLs, non-existent PRs
	ErrorTypeInput ErrorType = iota
	// Clone errors - git clone, fetch, or checkout failures
	ErrorTypeClone
	// Indexing errors - working-tree walk or read failures
	ErrorTypeIndexing
	// Tool errors - adapter crash, timeout, or parse failure
	ErrorTypeTool
	// Cache errors - distributed or in-process tier failures
	ErrorTypeCache
	// Internal errors - invariant violations, unexpected state
	ErrorTypeInternal
)

// Severity represents how critical an error is to the run
type Severity int

const (
	// SeverityLow - swallowed per item, run continues
	SeverityLow Severity = iota
	// SeverityMedium - degrades quality, recorded in metadata
	SeverityMedium
	// SeverityHigh - component-level failure, caller decides
	SeverityHigh
	// SeverityCritical - fatal to the run, triggers cleanup
	SeverityCritical
)

// Error is a structured error with pipeline context
type Error struct {
	Type       ErrorType
	Severity   Severity
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds a key/value pair to the error context
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Is matches on error type so errors.Is can distinguish taxonomy categories
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// IsFatal returns true if this error should abort the run
func (e *Error) IsFatal() bool {
	return e.Severity == SeverityCritical
}

// DetailedString returns the message with context and stack trace
func (e *Error) DetailedString() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[%s] [%s] %s\n",
		severityString(e.Severity), typeString(e.Type), e.Message))

	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf("Caused by: %v\n", e.Cause))
	}
	if len(e.Context) > 0 {
		sb.WriteString("Context:\n")
		for k, v := range e.Context {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", k, v))
		}
	}
	if e.StackTrace != "" {
		sb.WriteString(fmt.Sprintf("Stack trace:\n%s\n", e.StackTrace))
	}
	return sb.String()
}

func typeString(t ErrorType) string {
	switch t {
	case ErrorTypeInput:
		return "INPUT"
	case ErrorTypeClone:
		return "CLONE"
	case ErrorTypeIndexing:
		return "INDEXING"
	case ErrorTypeTool:
		return "TOOL"
	case ErrorTypeCache:
		return "CACHE"
	case ErrorTypeInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

func severityString(s Severity) string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

func captureStackTrace(skip int) string {
	var sb strings.Builder
	for i := skip; i < skip+10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			break
		}
		sb.WriteString(fmt.Sprintf("  %s:%d %s\n", file, line, fn.Name()))
	}
	return sb.String()
}

// New creates a new error with the given type, severity, and message
func New(errType ErrorType, severity Severity, message string) *Error {
	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
	}
}

// Wrap wraps an existing error with pipeline context. Returns nil for a nil
// cause so call sites can wrap unconditionally.
func Wrap(err error, errType ErrorType, severity Severity, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Cause:      err,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
	}
}

// InputError creates an input validation error (malformed URL, bad PR ref)
func InputError(message string) *Error {
	return New(ErrorTypeInput, SeverityCritical, message)
}

// InputErrorf creates an input validation error with formatting
func InputErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeInput, SeverityCritical, fmt.Sprintf(format, args...))
}

// CloneError wraps a git clone/fetch/checkout failure
func CloneError(err error, message string) *Error {
	return Wrap(err, ErrorTypeClone, SeverityCritical, message)
}

// CloneErrorf wraps a git clone/fetch/checkout failure with formatting
func CloneErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, ErrorTypeClone, SeverityCritical, fmt.Sprintf(format, args...))
}

// IndexingError wraps a per-file indexing failure (non-fatal)
func IndexingError(err error, message string) *Error {
	return Wrap(err, ErrorTypeIndexing, SeverityLow, message)
}

// ToolError wraps an adapter failure (degrades quality, never fatal)
func ToolError(err error, message string) *Error {
	return Wrap(err, ErrorTypeTool, SeverityMedium, message)
}

// ToolErrorf wraps an adapter failure with formatting
func ToolErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, ErrorTypeTool, SeverityMedium, fmt.Sprintf(format, args...))
}

// CacheError wraps a cache tier failure (never propagates past the cache)
func CacheError(err error, message string) *Error {
	return Wrap(err, ErrorTypeCache, SeverityLow, message)
}

// InternalError creates an invariant-violation error
func InternalError(message string) *Error {
	return New(ErrorTypeInternal, SeverityCritical, message)
}

// InternalErrorf creates an invariant-violation error with formatting
func InternalErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeInternal, SeverityCritical, fmt.Sprintf(format, args...))
}

// IsFatal checks if an error should stop the run
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*Error); ok {
		return e.IsFatal()
	}
	return false
}

// GetType returns the taxonomy type of an error
func GetType(err error) ErrorType {
	if e, ok := err.(*Error); ok {
		return e.Type
	}
	return ErrorTypeInternal
}
