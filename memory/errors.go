package memory

import "fmt"

// ErrorCode classifies memory store failures.
type ErrorCode string

const (
	ErrCodeInvalidValue      ErrorCode = "INVALID_VALUE"
	ErrCodeInvalidKey        ErrorCode = "INVALID_KEY"
	ErrCodeStorageCorruption ErrorCode = "STORAGE_CORRUPTION"
	ErrCodeStorageWrite      ErrorCode = "STORAGE_WRITE_FAILED"
	ErrCodeUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
)

// Error is the error type returned by the memory store.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
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

// Is matches any *Error carrying the same code, so the sentinels below work
// with errors.Is regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrInvalidValue      = &Error{Code: ErrCodeInvalidValue, Message: "invalid value"}
	ErrInvalidKey        = &Error{Code: ErrCodeInvalidKey, Message: "invalid key"}
	ErrStorageCorruption = &Error{Code: ErrCodeStorageCorruption, Message: "storage corrupted"}
	ErrStorageWrite      = &Error{Code: ErrCodeStorageWrite, Message: "storage write failed"}
	ErrUnsupportedFormat = &Error{Code: ErrCodeUnsupportedFormat, Message: "unsupported storage format"}
)

// NewInvalidValueError reports a value that cannot be stored.
func NewInvalidValueError(key, reason string) *Error {
	return &Error{Code: ErrCodeInvalidValue, Message: fmt.Sprintf("value for %q %s", key, reason)}
}

// NewInvalidKeyError reports a key that cannot be stored.
func NewInvalidKeyError(key, reason string) *Error {
	return &Error{Code: ErrCodeInvalidKey, Message: fmt.Sprintf("key %q %s", key, reason)}
}

// NewStorageCorruptionError reports a backing file that could not be decoded.
func NewStorageCorruptionError(path string, cause error) *Error {
	return &Error{Code: ErrCodeStorageCorruption, Message: "cannot decode " + path, Cause: cause}
}

// NewStorageWriteError reports a failed flush of the backing file.
func NewStorageWriteError(path string, cause error) *Error {
	return &Error{Code: ErrCodeStorageWrite, Message: "cannot write " + path, Cause: cause}
}
