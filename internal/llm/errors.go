package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// TransientError is a failure worth retrying: timeouts, network errors,
// rate limits and upstream 5xx responses.
type TransientError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s 临时错误（HTTP %d）：%v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s 临时错误：%v", e.Provider, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RateLimited reports whether the upstream asked us to slow down.
func (e *TransientError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// RefusalError means the model declined the request on content policy grounds.
// Retrying the same prompt does not help.
type RefusalError struct {
	Provider string
	Reason   string
}

func (e *RefusalError) Error() string {
	return fmt.Sprintf("%s 拒绝生成：%s", e.Provider, e.Reason)
}

// AuthError is a rejected or missing credential.
type AuthError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s 鉴权失败（HTTP %d）：%v", e.Provider, e.StatusCode, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

func IsRefusal(err error) bool {
	var r *RefusalError
	return errors.As(err, &r)
}

func IsAuth(err error) bool {
	var a *AuthError
	return errors.As(err, &a)
}

// IsRateLimited reports whether err is a transient rate limit error.
func IsRateLimited(err error) bool {
	var t *TransientError
	return errors.As(err, &t) && t.RateLimited()
}

var refusalMarkers = []string{"content_policy", "content_filter", "safety", "responsible ai", "policy violation"}

// ResponseError is an unexpected upstream reply. Body keeps the raw response
// for logs and never appears in Error().
type ResponseError struct {
	StatusCode int
	Message    string
	Body       string
	Err        error
}

func (e *ResponseError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = fmt.Sprintf("响应 %d 字节", len(e.Body))
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, msg)
}

func (e *ResponseError) Unwrap() error { return e.Err }

// ResponseBody returns the raw upstream body carried by err, if any.
func ResponseBody(err error) string {
	var re *ResponseError
	if errors.As(err, &re) {
		return re.Body
	}
	return ""
}

var providerMessagePaths = []string{"error.message", "message", "error", "detail"}

// providerMessage pulls the provider's own error message out of a JSON error
// body. Anything else in the body is left out.
func providerMessage(body string) string {
	if !gjson.Valid(body) {
		return ""
	}
	for _, p := range providerMessagePaths {
		if v := gjson.Get(body, p); v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
			return truncate(strings.TrimSpace(v.Str), 200)
		}
	}
	return ""
}

// classifyStatus maps a non-2xx reply to an error kind. message is the
// provider's error message; body is the raw response, kept for logs only.
func classifyStatus(provider string, status int, message, body string) error {
	cause := &ResponseError{StatusCode: status, Message: truncate(message, 200), Body: body}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthError{Provider: provider, StatusCode: status, Err: cause}
	case status == http.StatusRequestTimeout || status == http.StatusConflict || status == http.StatusTooEarly ||
		status == http.StatusTooManyRequests || status >= 500:
		return &TransientError{Provider: provider, StatusCode: status, Err: cause}
	case status == http.StatusBadRequest && containsAny(strings.ToLower(message+" "+body), refusalMarkers):
		reason := cause.Message
		if reason == "" {
			reason = "内容策略拦截"
		}
		return &RefusalError{Provider: provider, Reason: reason}
	default:
		return cause
	}
}

func classifyTransport(provider string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("请求已取消：%w", err)
	}
	return &TransientError{Provider: provider, Err: fmt.Errorf("请求失败：%w", err)}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
