package apierrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Code is the machine readable classification of a failure.
type Code string

const (
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeSessionExpired      Code = "SESSION_EXPIRED"
	CodeForbidden           Code = "FORBIDDEN"
	CodeBadRequest          Code = "BAD_REQUEST"
	CodeNotFound            Code = "NOT_FOUND"
	CodeServerError         Code = "SERVER_ERROR"
	CodeHTTPError           Code = "HTTP_ERROR"
	CodeTokenRefreshFailed  Code = "TOKEN_REFRESH_FAILED"
	CodeServiceNotFound     Code = "SERVICE_NOT_FOUND"
	CodeEnvironmentNotFound Code = "ENVIRONMENT_NOT_FOUND"
	CodeActionNotFound      Code = "ACTION_NOT_FOUND"
	CodeNetworkError        Code = "NETWORK_ERROR"
)

// RefreshState sub-classifies a TOKEN_REFRESH_FAILED error.
type RefreshState string

const (
	RefreshStateExpired RefreshState = "expired"
	RefreshStateFailed  RefreshState = "failed"
)

// Sentinels for errors.Is matching. Comparison is by Code only.
var (
	ErrUnauthorized        = &Error{Code: CodeUnauthorized}
	ErrSessionExpired      = &Error{Code: CodeSessionExpired}
	ErrForbidden           = &Error{Code: CodeForbidden}
	ErrBadRequest          = &Error{Code: CodeBadRequest}
	ErrNotFound            = &Error{Code: CodeNotFound}
	ErrServerError         = &Error{Code: CodeServerError}
	ErrHTTPError           = &Error{Code: CodeHTTPError}
	ErrTokenRefreshFailed  = &Error{Code: CodeTokenRefreshFailed}
	ErrServiceNotFound     = &Error{Code: CodeServiceNotFound}
	ErrEnvironmentNotFound = &Error{Code: CodeEnvironmentNotFound}
	ErrActionNotFound      = &Error{Code: CodeActionNotFound}
	ErrNetwork             = &Error{Code: CodeNetworkError}
)

// Error is the uniform failure value returned by the client.
type Error struct {
	Code      Code
	Message   string
	Status    int          // HTTP status, zero when no response was received
	Retryable bool         // whether repeating the same call may succeed
	State     RefreshState // only set for TOKEN_REFRESH_FAILED
	Body      any          // raw parsed error body, for caller inspection
	cause     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error carrying the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// ShouldRefreshToken reports whether a token refresh may recover the call.
func (e *Error) ShouldRefreshToken() bool {
	return e.Code == CodeSessionExpired || e.Code == CodeUnauthorized
}

// ShouldRedirectToLogin reports whether the session is gone and the user has to sign in again.
func (e *Error) ShouldRedirectToLogin() bool {
	return e.Code == CodeTokenRefreshFailed
}

// FromStatus classifies a non-2xx HTTP response. body is the parsed error body
// (decoded JSON or raw text) and may be nil.
func FromStatus(status int, body any) *Error {
	e := &Error{Status: status, Body: body}
	switch {
	case status == http.StatusUnauthorized:
		e.Code, e.Retryable = CodeUnauthorized, true
		if mentionsExpiry(body, tokenExpired) {
			e.Code = CodeSessionExpired
		}
	case status == http.StatusForbidden:
		e.Code = CodeForbidden
	case status == http.StatusBadRequest:
		e.Code = CodeBadRequest
	case status == http.StatusNotFound:
		e.Code = CodeNotFound
	case status >= http.StatusInternalServerError:
		e.Code, e.Retryable = CodeServerError, true
	default:
		e.Code = CodeHTTPError
	}
	e.Message = messageOr(body, statusFallback(e.Code, status))
	return e
}

// RefreshFailed classifies a failed refresh-token exchange. cause is the
// transport error, if any.
func RefreshFailed(body any, cause error) *Error {
	e := &Error{
		Code:  CodeTokenRefreshFailed,
		State: RefreshStateFailed,
		Body:  body,
		cause: cause,
	}
	if mentionsExpiry(body, containsExpired) {
		e.State = RefreshStateExpired
	}
	fallback := "Token refresh failed"
	if e.State == RefreshStateExpired {
		fallback = "Refresh token expired"
	}
	e.Message = messageOr(body, fallback)
	return e
}

// NoRefreshToken is returned when a refresh is requested without a stored refresh token.
func NoRefreshToken() *Error {
	return &Error{
		Code:    CodeTokenRefreshFailed,
		State:   RefreshStateFailed,
		Message: "no refresh token available",
	}
}

func ServiceNotFound(service string) *Error {
	return &Error{
		Code:    CodeServiceNotFound,
		Message: fmt.Sprintf("service %q is not configured", service),
	}
}

func EnvironmentNotFound(service, environment string) *Error {
	return &Error{
		Code:    CodeEnvironmentNotFound,
		Message: fmt.Sprintf("service %q has no base URL for environment %q", service, environment),
	}
}

func ActionNotFound(domain, method string) *Error {
	return &Error{
		Code:    CodeActionNotFound,
		Message: fmt.Sprintf("action %s.%s is not configured", domain, method),
	}
}

// MalformedResponse is a successful status whose body could not be decoded.
// raw is the undecoded body text.
func MalformedResponse(status int, raw string, cause error) *Error {
	return &Error{
		Code:    CodeHTTPError,
		Message: "Malformed response body",
		Status:  status,
		Body:    raw,
		cause:   cause,
	}
}

// Network wraps a transport level failure where no response was received.
func Network(cause error) *Error {
	msg := "network request failed"
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Code:      CodeNetworkError,
		Message:   msg,
		Retryable: true,
		cause:     cause,
	}
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the Code of the first *Error in err's chain, or "" if there is none.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

func statusFallback(code Code, status int) string {
	switch code {
	case CodeUnauthorized:
		return "Authentication required"
	case CodeSessionExpired:
		return "Session expired"
	case CodeForbidden:
		return "Access denied"
	case CodeBadRequest:
		return "Invalid request"
	case CodeNotFound:
		return "Resource not found"
	case CodeServerError:
		return "Server error, please try again later"
	}
	if text := http.StatusText(status); text != "" {
		return fmt.Sprintf("Request failed: %s", text)
	}
	return fmt.Sprintf("Request failed with status %d", status)
}

// messageFields are checked in order; the first non-empty string wins.
var messageFields = []string{"message", "errorMessage", "error_description"}

// signalFields carry machine readable hints such as "access_token_expired".
var signalFields = []string{"error", "code", "status", "message", "errorMessage", "error_description"}

func messageOr(body any, fallback string) string {
	m, ok := body.(map[string]any)
	if !ok {
		return fallback
	}
	for _, field := range messageFields {
		if s, ok := m[field].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return fallback
}

func mentionsExpiry(body any, match func(string) bool) bool {
	switch b := body.(type) {
	case string:
		return match(b)
	case map[string]any:
		for _, field := range signalFields {
			if s, ok := b[field].(string); ok && match(s) {
				return true
			}
		}
		if nested, ok := b["error"].(map[string]any); ok {
			return mentionsExpiry(nested, match)
		}
	}
	return false
}

func containsExpired(s string) bool {
	return strings.Contains(strings.ToLower(s), "expired")
}

// tokenExpired matches expiry wording about the credential itself, such as
// "access_token_expired" or "jwt expired", and ignores other expiries like
// "subscription expired".
func tokenExpired(s string) bool {
	s = strings.ToLower(s)
	if !strings.Contains(s, "expired") {
		return false
	}
	return strings.Contains(s, "token") || strings.Contains(s, "jwt")
}
