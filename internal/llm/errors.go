package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrTokenCountUnavailable is returned by providers without a token
// counting endpoint. Callers fall back to heuristic estimation.
var ErrTokenCountUnavailable = errors.New("token count unavailable")

// Kind categorizes a provider failure for retry decisions.
type Kind string

const (
	KindRateLimited  Kind = "rate_limited"
	KindTimeout      Kind = "timeout"
	KindConnection   Kind = "connection"
	KindServerError  Kind = "server_error"
	KindBadRequest   Kind = "bad_request"
	KindUnauthorized Kind = "unauthorized"
	KindNotFound     Kind = "not_found"
	KindValidation   Kind = "validation"
	KindUnknown      Kind = "unknown"
)

// Retryable reports whether the whole stream should be retried with
// backoff. Unknown errors are retried; a transient blip and an unclassified
// failure look the same from here.
func (k Kind) Retryable() bool {
	switch k {
	case KindRateLimited, KindTimeout, KindConnection, KindServerError, KindUnknown:
		return true
	default:
		return false
	}
}

// Error is a structured provider failure. It captures the context needed
// for retry decisions and debugging.
type Error struct {
	Kind     Kind
	Provider string
	Model    string
	Status   int
	Code     string
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	parts := []string{fmt.Sprintf("[%s]", e.Kind)}
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Code != "" {
		parts = append(parts, "code="+e.Code)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Cause }

// NewError wraps a raw provider failure, classifying it from the cause.
func NewError(provider, model string, cause error) *Error {
	e := &Error{
		Kind:     KindUnknown,
		Provider: provider,
		Model:    model,
		Cause:    cause,
	}
	if cause != nil {
		e.Message = cause.Error()
		e.Kind = Classify(cause)
	}
	return e
}

// WithStatus sets the HTTP status and reclassifies from it.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	if kind := classifyStatus(status); kind != KindUnknown {
		e.Kind = kind
	}
	return e
}

// WithCode sets the provider-specific error code and reclassifies when the
// code is recognized.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	if kind := classifyCode(code); kind != KindUnknown {
		e.Kind = kind
	}
	return e
}

// KindOf extracts the failure kind from an error chain, classifying raw
// errors when no structured Error is present.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return Classify(err)
}

// Retryable reports whether the error warrants retrying the stream.
func Retryable(err error) bool {
	return KindOf(err).Retryable()
}

// Classify inspects a raw error and returns the matching kind.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindConnection
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"):
		return KindTimeout
	case strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "rate_limit"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "overloaded"),
		strings.Contains(msg, "429"):
		return KindRateLimited
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "eof"):
		return KindConnection
	case strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "invalid api key"),
		strings.Contains(msg, "invalid_api_key"),
		strings.Contains(msg, "authentication"),
		strings.Contains(msg, "permission"),
		strings.Contains(msg, "401"),
		strings.Contains(msg, "403"):
		return KindUnauthorized
	case strings.Contains(msg, "not found"),
		strings.Contains(msg, "not_found"),
		strings.Contains(msg, "does not exist"),
		strings.Contains(msg, "404"):
		return KindNotFound
	case strings.Contains(msg, "validation"),
		strings.Contains(msg, "invalid_request"),
		strings.Contains(msg, "invalid request"),
		strings.Contains(msg, "422"):
		return KindValidation
	case strings.Contains(msg, "bad request"),
		strings.Contains(msg, "400"):
		return KindBadRequest
	case strings.Contains(msg, "internal server"),
		strings.Contains(msg, "server error"),
		strings.Contains(msg, "500"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "504"):
		return KindServerError
	default:
		return KindUnknown
	}
}

// classifyStatus maps HTTP status codes onto the taxonomy.
func classifyStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusBadRequest:
		return KindBadRequest
	case status >= 500:
		return KindServerError
	default:
		return KindUnknown
	}
}

// classifyCode maps provider-specific error codes onto the taxonomy.
func classifyCode(code string) Kind {
	switch strings.ToLower(code) {
	case "rate_limit_error", "rate_limit_exceeded", "overloaded_error":
		return KindRateLimited
	case "timeout_error":
		return KindTimeout
	case "authentication_error", "permission_error", "invalid_api_key":
		return KindUnauthorized
	case "not_found_error", "model_not_found":
		return KindNotFound
	case "invalid_request_error":
		return KindBadRequest
	case "validation_error":
		return KindValidation
	case "api_error", "internal_error", "server_error":
		return KindServerError
	default:
		return KindUnknown
	}
}
