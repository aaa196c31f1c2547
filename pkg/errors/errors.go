// Package errors provides structured error types for ctfctl.
package errors

import (
	"fmt"
	"time"
)

// ErrorCode identifies specific error conditions
type ErrorCode string

const (
	ErrCodeValidation       ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeParse            ErrorCode = "PARSE_ERROR"
	ErrCodeLocked           ErrorCode = "STATE_LOCKED"
	ErrCodeBackend          ErrorCode = "BACKEND_ERROR"
	ErrCodePlugin           ErrorCode = "PLUGIN_ERROR"
	ErrCodeCycle            ErrorCode = "DEPENDENCY_CYCLE"
	ErrCodeUnknownReference ErrorCode = "UNKNOWN_REFERENCE"
	ErrCodeMissingOutput    ErrorCode = "MISSING_DEPENDENCY_OUTPUT"
	ErrCodeApply            ErrorCode = "APPLY_ERROR"
	ErrCodeDestroy          ErrorCode = "DESTROY_ERROR"
	ErrCodeTimeout          ErrorCode = "TIMEOUT"
	ErrCodeCancelled        ErrorCode = "CANCELLED"
	ErrCodeSkipped          ErrorCode = "SKIPPED"
	ErrCodeCredentials      ErrorCode = "CREDENTIALS_ERROR"
)

// Error is the base error type for ctfctl
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
	Details map[string]interface{}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Wrap creates a new error wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
		Details: make(map[string]interface{}),
	}
}

// WithDetails adds details to an error
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail adds a single detail to an error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	e.Details[key] = value
	return e
}

// ValidationError creates a validation error
func ValidationError(message string, details map[string]interface{}) *Error {
	return &Error{
		Code:    ErrCodeValidation,
		Message: message,
		Details: details,
	}
}

// NotFoundError creates a not found error
func NotFoundError(resourceType, name string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s %q not found", resourceType, name),
		Details: map[string]interface{}{
			"resource_type": resourceType,
			"name":          name,
		},
	}
}

// ParseError creates a parse error
func ParseError(filePath string, err error) *Error {
	return &Error{
		Code:    ErrCodeParse,
		Message: fmt.Sprintf("failed to parse %s", filePath),
		Cause:   err,
		Details: map[string]interface{}{
			"file": filePath,
		},
	}
}

// CycleError reports a dependency cycle. The cycle is the ordered list of
// challenge ids forming the loop, starting and ending at the same id.
func CycleError(cycle []string) *Error {
	return &Error{
		Code:    ErrCodeCycle,
		Message: fmt.Sprintf("dependency cycle detected: %s", joinCycle(cycle)),
		Details: map[string]interface{}{
			"cycle": cycle,
		},
	}
}

// UnknownReferenceError reports a dependency or placeholder that names a
// challenge id absent from the registered set.
func UnknownReferenceError(challenge, reference string) *Error {
	return &Error{
		Code:    ErrCodeUnknownReference,
		Message: fmt.Sprintf("challenge %q references unknown challenge %q", challenge, reference),
		Details: map[string]interface{}{
			"challenge": challenge,
			"reference": reference,
		},
	}
}

// MissingOutputError reports a placeholder whose source challenge has no
// recorded value for the named output.
func MissingOutputError(challenge, dependency, output string) *Error {
	return &Error{
		Code:    ErrCodeMissingOutput,
		Message: fmt.Sprintf("challenge %q requires output %q from %q which is not available", challenge, output, dependency),
		Details: map[string]interface{}{
			"challenge":  challenge,
			"dependency": dependency,
			"output":     output,
		},
	}
}

// ApplyError creates an error for a failed provisioning apply
func ApplyError(challenge string, err error) *Error {
	return &Error{
		Code:    ErrCodeApply,
		Message: fmt.Sprintf("apply failed for challenge %q", challenge),
		Cause:   err,
		Details: map[string]interface{}{
			"challenge": challenge,
		},
	}
}

// DestroyError creates an error for a failed provisioning destroy
func DestroyError(challenge string, err error) *Error {
	return &Error{
		Code:    ErrCodeDestroy,
		Message: fmt.Sprintf("destroy failed for challenge %q", challenge),
		Cause:   err,
		Details: map[string]interface{}{
			"challenge": challenge,
		},
	}
}

// TimeoutError creates an error for a challenge whose provisioning call
// exceeded its deadline
func TimeoutError(challenge string, timeout time.Duration) *Error {
	return &Error{
		Code:    ErrCodeTimeout,
		Message: fmt.Sprintf("challenge %q timed out after %s", challenge, timeout),
		Details: map[string]interface{}{
			"challenge": challenge,
			"timeout":   timeout.String(),
		},
	}
}

// CancelledError creates an error for challenges abandoned because the run
// was cancelled
func CancelledError(challenge string) *Error {
	return &Error{
		Code:    ErrCodeCancelled,
		Message: fmt.Sprintf("challenge %q skipped: run cancelled", challenge),
		Details: map[string]interface{}{
			"challenge": challenge,
		},
	}
}

// SkippedError creates an error for challenges skipped because something
// upstream of them failed
func SkippedError(challenge, upstream string) *Error {
	return &Error{
		Code:    ErrCodeSkipped,
		Message: fmt.Sprintf("challenge %q skipped: dependency %q did not deploy", challenge, upstream),
		Details: map[string]interface{}{
			"challenge": challenge,
			"upstream":  upstream,
		},
	}
}

// BackendError creates a backend error
func BackendError(backend string, operation string, err error) *Error {
	return &Error{
		Code:    ErrCodeBackend,
		Message: fmt.Sprintf("backend %s failed during %s", backend, operation),
		Cause:   err,
		Details: map[string]interface{}{
			"backend":   backend,
			"operation": operation,
		},
	}
}

// PluginError creates a plugin execution error
func PluginError(plugin string, operation string, err error) *Error {
	return &Error{
		Code:    ErrCodePlugin,
		Message: fmt.Sprintf("plugin %s failed during %s", plugin, operation),
		Cause:   err,
		Details: map[string]interface{}{
			"plugin":    plugin,
			"operation": operation,
		},
	}
}

// CredentialsError creates a missing or invalid credentials error
func CredentialsError(provider string, missing []string) *Error {
	return &Error{
		Code:    ErrCodeCredentials,
		Message: fmt.Sprintf("missing credentials for provider %s", provider),
		Details: map[string]interface{}{
			"provider": provider,
			"missing":  missing,
		},
	}
}

// LockInfo contains metadata about a lock
type LockInfo struct {
	ID        string
	Path      string
	Who       string
	Operation string
	Created   time.Time
}

// StateLocked creates a state locked error
func StateLocked(lockInfo LockInfo) *Error {
	return &Error{
		Code:    ErrCodeLocked,
		Message: "state is locked",
		Details: map[string]interface{}{
			"lock_id":   lockInfo.ID,
			"locked_by": lockInfo.Who,
			"operation": lockInfo.Operation,
			"created":   lockInfo.Created,
		},
	}
}

// Is checks if the error matches the given code
func Is(err error, code ErrorCode) bool {
	if e, ok := err.(*Error); ok {
		return e.Code == code
	}
	return false
}

// IsStructural reports whether the error is a configuration-level failure
// that aborts a run before any challenge is touched.
func IsStructural(err error) bool {
	return Is(err, ErrCodeCycle) || Is(err, ErrCodeUnknownReference) ||
		Is(err, ErrCodeParse) || Is(err, ErrCodeValidation)
}

func joinCycle(cycle []string) string {
	s := ""
	for i, id := range cycle {
		if i > 0 {
			s += " -> "
		}
		s += id
	}
	return s
}
