package atlassian

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/stellarlinkco/atlastools/internal/tool"
)

// Kind classifies a failed Atlassian request.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindNotFound       Kind = "not_found"
	KindRateLimit      Kind = "rate_limit"
	KindService        Kind = "service"
	KindNetwork        Kind = "network"
	KindTimeout        Kind = "timeout"
	KindConfiguration  Kind = "configuration"
	KindUnknown        Kind = "unknown"
)

// Error is a failed request against a Jira or Confluence REST API.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Code maps the kind to the failure code tools report.
func (e *Error) Code() tool.FailureCode {
	switch e.Kind {
	case KindValidation:
		return tool.CodeInvalidRequest
	case KindAuthentication:
		return tool.CodeUnauthorized
	case KindAuthorization:
		return tool.CodeForbidden
	case KindNotFound:
		return tool.CodeNotFound
	case KindRateLimit:
		return tool.CodeRateLimited
	case KindNetwork:
		return tool.CodeNetwork
	case KindTimeout:
		return tool.CodeTimeout
	case KindConfiguration:
		return tool.CodeConfiguration
	default:
		return tool.CodeRemoteError
	}
}

// Retryable reports whether another attempt may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimit || e.Kind == KindService
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// IsNotFound reports whether err is a 404 from the remote API.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsAuth reports whether the credentials were rejected or lack permission.
func IsAuth(err error) bool {
	k := KindOf(err)
	return k == KindAuthentication || k == KindAuthorization
}

// ConfigurationError reports missing or invalid settings.
func ConfigurationError(err error) *Error {
	return &Error{Kind: KindConfiguration, Message: err.Error(), Err: err}
}

func responseError(resp *http.Response, body []byte) *Error {
	status := resp.StatusCode
	msg := errorMessage(body, status)

	switch {
	case status == http.StatusBadRequest:
		return &Error{Kind: KindValidation, StatusCode: status, Message: "Validation failed: " + msg}
	case status == http.StatusUnauthorized:
		return &Error{Kind: KindAuthentication, StatusCode: status, Message: "Authentication failed: " + msg}
	case status == http.StatusForbidden:
		return &Error{Kind: KindAuthorization, StatusCode: status, Message: "Permission denied: " + msg}
	case status == http.StatusNotFound:
		return &Error{Kind: KindNotFound, StatusCode: status, Message: "Not found: " + msg}
	case status == http.StatusTooManyRequests:
		return &Error{
			Kind:       KindRateLimit,
			StatusCode: status,
			Message:    "Rate limit exceeded: " + msg,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case status >= 500:
		return &Error{Kind: KindService, StatusCode: status, Message: "Server error: " + msg}
	default:
		return &Error{Kind: KindUnknown, StatusCode: status, Message: fmt.Sprintf("HTTP %d: %s", status, msg)}
	}
}

// errorMessage pulls the human-readable message out of an Atlassian error
// body. Jira uses errorMessages plus a field map under errors; Confluence
// uses message.
func errorMessage(body []byte, status int) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return fmt.Sprintf("HTTP %d", status)
	}
	if !gjson.ValidBytes(body) {
		return text
	}

	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return doc.String()
	}

	if msgs := doc.Get("errorMessages"); msgs.Exists() {
		if msgs.IsArray() {
			var parts []string
			for _, m := range msgs.Array() {
				if s := m.String(); s != "" {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, "; ")
			}
		} else if s := msgs.String(); s != "" {
			return s
		}
	}
	if fields := doc.Get("errors"); fields.IsObject() {
		var parts []string
		fields.ForEach(func(key, value gjson.Result) bool {
			parts = append(parts, key.String()+": "+value.String())
			return true
		})
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
	}
	if m := doc.Get("message"); m.Exists() && m.String() != "" {
		return m.String()
	}
	return text
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
