// Package errors provides structured error handling for cohortkit.
// It implements errors with codes, context, and stack traces.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Error codes for programmatic handling
type Code string

const (
	// Configuration errors (1xx) - fatal, reported before any I/O
	CodeFilterInvalid    Code = "E101"
	CodeFilterMissingKey Code = "E102"
	CodeUnknownKind      Code = "E103"
	CodeNoSuffixGroups   Code = "E104"
	CodeListingInvalid   Code = "E105"

	// Selection errors (2xx) - recovered locally, reflected in the manifest
	CodeLayoutNotFound        Code = "E201"
	CodeParticipantNotPresent Code = "E202"
	CodeRetrievalFailure      Code = "E203"

	// Materialization errors (3xx) - per-item, surfaced in the run summary
	CodeSourceMissing       Code = "E301"
	CodeDestinationConflict Code = "E302"
	CodeCopyFailed          Code = "E303"

	// System errors (4xx) - fatal, abort remaining scheduled work
	CodeOutputUnwritable Code = "E401"
	CodeDiskFull         Code = "E402"
	CodeContextCanceled  Code = "E403"

	// Unknown
	CodeUnknown Code = "E999"
)

// CohortError is the base error type for all cohortkit errors.
type CohortError struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *CohortError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		sb.WriteString(" (")
		first := true
		for k, v := range e.Context {
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, v))
			first = false
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *CohortError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target error.
func (e *CohortError) Is(target error) bool {
	if t, ok := target.(*CohortError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *CohortError) WithContext(key string, value interface{}) *CohortError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new CohortError.
func New(code Code, message string) *CohortError {
	return &CohortError{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code Code, message string) *CohortError {
	if err == nil {
		return nil
	}

	return &CohortError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *CohortError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// captureStack captures the current stack trace.
func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *CohortError) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// --- Convenience constructors ---

// LayoutNotFound reports a dataset or derivative root missing on disk.
func LayoutNotFound(root string) *CohortError {
	return New(CodeLayoutNotFound, "dataset root not found").WithContext("root", root)
}

// ParticipantNotPresent reports a participant absent from a dataset kind's tree.
func ParticipantNotPresent(dataset, kind, participant string) *CohortError {
	return New(CodeParticipantNotPresent, "participant not present").
		WithContext("dataset", dataset).
		WithContext("kind", kind).
		WithContext("participant", participant)
}

// RetrievalFailure reports the external fetch layer failing for a participant.
func RetrievalFailure(dataset, kind, participant string, err error) *CohortError {
	return Wrap(err, CodeRetrievalFailure, "retrieval failed").
		WithContext("dataset", dataset).
		WithContext("kind", kind).
		WithContext("participant", participant)
}

// DestinationConflict reports a materialization target holding different content.
func DestinationConflict(dst string) *CohortError {
	return New(CodeDestinationConflict, "destination exists with different content").
		WithContext("destination", dst)
}

// FilterMissingKey reports a suffix group missing a required field.
func FilterMissingKey(kind, group, key string) *CohortError {
	return New(CodeFilterMissingKey, "required key not found in suffix group").
		WithContext("kind", kind).
		WithContext("group", group).
		WithContext("key", key)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var cErr *CohortError
	if errors.As(err, &cErr) {
		return cErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var cErr *CohortError
	if errors.As(err, &cErr) {
		return cErr.Code
	}
	return CodeUnknown
}

// IsConfiguration returns true for errors that must abort before any I/O.
func IsConfiguration(err error) bool {
	switch GetCode(err) {
	case CodeFilterInvalid, CodeFilterMissingKey, CodeUnknownKind,
		CodeNoSuffixGroups, CodeListingInvalid:
		return true
	default:
		return false
	}
}

// IsFatal returns true if the error aborts remaining scheduled work.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case CodeOutputUnwritable, CodeDiskFull:
		return true
	default:
		return false
	}
}

// IsRecoverable returns true for selection-time errors that downgrade to
// zero entries rather than aborting the run.
func IsRecoverable(err error) bool {
	switch GetCode(err) {
	case CodeLayoutNotFound, CodeParticipantNotPresent, CodeRetrievalFailure:
		return true
	default:
		return false
	}
}

// MultiError collects multiple errors.
type MultiError struct {
	Errors []error
}

// Error implements the error interface.
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(m.Errors)))
	for i, err := range m.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Unwrap exposes the collected errors to errors.Is/errors.As.
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Add adds an error to the collection.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if any errors were collected.
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// Combined returns nil if no errors, the single error if one, or the MultiError.
func (m *MultiError) Combined() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}
