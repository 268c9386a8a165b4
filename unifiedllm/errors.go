package unifiedllm

import (
	"errors"
	"fmt"
)

// SDKError is the base of every error the model client returns.
type SDKError struct {
	Message string
	Cause   error
}

func (e *SDKError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *SDKError) Unwrap() error { return e.Cause }

// ProviderError is a failure reported by the endpoint itself, usually a
// non-2xx status.
type ProviderError struct {
	SDKError
	Provider   string
	StatusCode int
	ErrorCode  string
	Retryable  bool
	RetryAfter *float64 // seconds, from the Retry-After header
	Raw        map[string]interface{}
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
}

func (e *ProviderError) providerError() *ProviderError { return e }

type (
	AuthenticationError struct{ ProviderError }
	AccessDeniedError   struct{ ProviderError }
	NotFoundError       struct{ ProviderError }
	InvalidRequestError struct{ ProviderError }
	RateLimitError      struct{ ProviderError }
	ServerError         struct{ ProviderError }
	ContentFilterError  struct{ ProviderError }
	ContextLengthError  struct{ ProviderError }
	QuotaExceededError  struct{ ProviderError }
)

// Failures that happen before or around the exchange with the endpoint.
type (
	RequestTimeoutError struct{ SDKError }
	AbortError          struct{ SDKError }
	NetworkError        struct{ SDKError }
	ConfigurationError  struct{ SDKError }
)

// AsProviderError returns the ProviderError embedded in whichever concrete
// provider error err wraps.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe interface{ providerError() *ProviderError }
	if !errors.As(err, &pe) {
		return nil, false
	}
	return pe.providerError(), true
}

// IsTransportError reports whether the endpoint was unreachable, too slow,
// or answered with a failure.
func IsTransportError(err error) bool {
	if _, ok := AsProviderError(err); ok {
		return true
	}
	var (
		network *NetworkError
		timeout *RequestTimeoutError
	)
	return errors.As(err, &network) || errors.As(err, &timeout)
}

// statusErrors builds the concrete error for each recognised status.
// Statuses missing here produce a bare, retryable *ProviderError.
var statusErrors = map[int]func(ProviderError) error{
	400: func(pe ProviderError) error { return &InvalidRequestError{pe} },
	401: func(pe ProviderError) error { return &AuthenticationError{pe} },
	402: func(pe ProviderError) error { return &QuotaExceededError{pe} },
	403: func(pe ProviderError) error { return &AccessDeniedError{pe} },
	404: func(pe ProviderError) error { return &NotFoundError{pe} },
	413: func(pe ProviderError) error { return &ContextLengthError{pe} },
	422: func(pe ProviderError) error { return &InvalidRequestError{pe} },
	429: func(pe ProviderError) error { return &RateLimitError{pe} },
	500: func(pe ProviderError) error { return &ServerError{pe} },
	502: func(pe ProviderError) error { return &ServerError{pe} },
	503: func(pe ProviderError) error { return &ServerError{pe} },
	504: func(pe ProviderError) error { return &ServerError{pe} },
}

var retryableStatus = map[int]bool{429: true, 500: true, 502: true, 503: true, 504: true}

// ErrorFromStatusCode maps an HTTP failure status to its error type. 408 is
// reported as a RequestTimeoutError.
func ErrorFromStatusCode(statusCode int, message, provider, errorCode string, raw map[string]interface{}, retryAfter *float64) error {
	if statusCode == 408 {
		return &RequestTimeoutError{SDKError{Message: message}}
	}
	pe := ProviderError{
		SDKError:   SDKError{Message: message},
		Provider:   provider,
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Raw:        raw,
		RetryAfter: retryAfter,
	}
	build, known := statusErrors[statusCode]
	if !known {
		pe.Retryable = true
		return &pe
	}
	pe.Retryable = retryableStatus[statusCode]
	return build(pe)
}

// IsRetryable reports whether repeating the call could succeed. Aborts and
// configuration problems never can; provider errors carry their own flag;
// anything else is assumed transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var (
		abort *AbortError
		conf  *ConfigurationError
	)
	switch {
	case errors.As(err, &abort), errors.As(err, &conf):
		return false
	}
	if pe, ok := AsProviderError(err); ok {
		return pe.Retryable
	}
	return true
}
