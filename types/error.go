package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unified error code across the orchestrator.
type ErrorCode string

// Provider error codes
const (
	// ErrTransientProvider 网络抖动、限流等可重试的上游错误
	ErrTransientProvider ErrorCode = "TRANSIENT_PROVIDER"
	// ErrPermanentProvider 请求无效、认证失败等不可重试的上游错误
	ErrPermanentProvider ErrorCode = "PERMANENT_PROVIDER"
)

// Connection and session error codes
const (
	ErrConnectionLost     ErrorCode = "CONNECTION_LOST"
	ErrReconnectExhausted ErrorCode = "RECONNECT_EXHAUSTED"
	ErrSessionClosed      ErrorCode = "SESSION_CLOSED"
	ErrSessionNotFound    ErrorCode = "SESSION_NOT_FOUND"
	ErrSessionLimit       ErrorCode = "SESSION_LIMIT"
	ErrInvalidFrame       ErrorCode = "INVALID_FRAME"
	ErrTurnTimeout        ErrorCode = "TURN_TIMEOUT"
)

// HTTP surface error codes
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
	ErrInternalError  ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := string(e.Code)
	if e.Provider != "" {
		prefix = e.Provider + "/" + prefix
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", prefix, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by code so errors.Is(err, &Error{Code: X}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// =============================================================================
// 🏷️ 分类辅助函数
// =============================================================================

// NewTransientError 创建可重试的上游错误
func NewTransientError(provider, message string, cause error) *Error {
	return NewError(ErrTransientProvider, message).
		WithProvider(provider).
		WithCause(cause).
		WithRetryable(true)
}

// NewPermanentError 创建不可重试的上游错误
func NewPermanentError(provider, message string, cause error) *Error {
	return NewError(ErrPermanentProvider, message).
		WithProvider(provider).
		WithCause(cause)
}

// ProviderHTTPError 按上游 HTTP 状态码归类：429 与 5xx 可重试，其余 4xx 不可重试
func ProviderHTTPError(provider string, status int, body string) *Error {
	msg := fmt.Sprintf("status=%d body=%s", status, body)
	if ClassifyHTTPStatus(status) == ErrTransientProvider {
		return NewTransientError(provider, msg, nil).WithHTTPStatus(status)
	}
	return NewPermanentError(provider, msg, nil).WithHTTPStatus(status)
}

// ClassifyHTTPStatus maps an upstream status code onto the provider taxonomy.
func ClassifyHTTPStatus(status int) ErrorCode {
	switch {
	case status == http.StatusTooManyRequests,
		status == http.StatusRequestTimeout,
		status >= 500:
		return ErrTransientProvider
	default:
		return ErrPermanentProvider
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
