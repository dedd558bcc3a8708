package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// AuthError means an account's vendor credentials were rejected or no token
// could be obtained. Nothing else against that account can succeed, so the
// run aborts.
type AuthError struct {
	Account    string
	StatusCode int
	Detail     string
}

func (e *AuthError) Error() string {
	if e == nil {
		return "authentication failed"
	}
	msg := fmt.Sprintf("authentication failed for %s account", e.Account)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (%d)", msg, e.StatusCode)
	}
	if strings.TrimSpace(e.Detail) != "" {
		msg = msg + ": " + e.Detail
	}
	return msg
}

func (e *AuthError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// RequestError is any non-2xx, non-429 response. Callers decide whether one
// failed entity is skippable or the whole stage is lost.
type RequestError struct {
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	if e == nil {
		return "request failed"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("request failed (%d)", e.StatusCode)
	}
	return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Body)
}

func (e *RequestError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// RateLimitError reports a request abandoned because consecutive 429
// responses exhausted the retry policy. Fatal: continuing would drop data.
type RateLimitError struct {
	Attempts int
	Elapsed  time.Duration
}

func (e *RateLimitError) Error() string {
	if e == nil {
		return "rate limit retries exhausted"
	}
	return fmt.Sprintf("rate limit retries exhausted after %d attempts (%s elapsed)", e.Attempts, e.Elapsed)
}

// ResponseDecodeError means a 2xx response body could not be decoded.
type ResponseDecodeError struct {
	StatusCode int
	Detail     string
}

func (e *ResponseDecodeError) Error() string {
	if e == nil {
		return "invalid response"
	}
	if strings.TrimSpace(e.Detail) == "" {
		return fmt.Sprintf("invalid response (%d)", e.StatusCode)
	}
	return fmt.Sprintf("invalid response (%d): %s", e.StatusCode, e.Detail)
}

func (e *ResponseDecodeError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// HTTPStatusCode returns the HTTP status carried by typed client errors.
func HTTPStatusCode(err error) (int, bool) {
	var statusErr interface {
		HTTPStatusCode() int
	}
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	status := statusErr.HTTPStatusCode()
	if status <= 0 {
		return 0, false
	}
	return status, true
}

// IsFatal reports whether err belongs to the run-fatal classes: rejected
// credentials, an exhausted rate-limit budget, or cancellation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return true
	}
	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func summarizeBody(payload []byte) string {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return ""
	}
	if msg, ok := extractErrorMessage(payload); ok {
		return msg
	}
	return truncateBody(trimmed, 200)
}

// extractErrorMessage pulls a human-readable summary out of the platform's
// JSON error envelopes ({"errors": [...]}, {"message": ...}).
func extractErrorMessage(payload []byte) (string, bool) {
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		return "", false
	}

	if raw, ok := body["errors"].([]any); ok {
		parts := make([]string, 0, len(raw))
		for _, entry := range raw {
			if text, ok := entry.(string); ok && strings.TrimSpace(text) != "" {
				parts = append(parts, strings.TrimSpace(text))
			}
		}
		if len(parts) > 0 {
			return truncateBody(strings.Join(parts, "; "), 200), true
		}
	}

	for _, key := range []string{"message", "error", "detail"} {
		if text, ok := body[key].(string); ok && strings.TrimSpace(text) != "" {
			return truncateBody(strings.TrimSpace(text), 200), true
		}
	}

	return "", false
}

func truncateBody(value string, max int) string {
	collapsed := strings.Join(strings.Fields(value), " ")
	if len(collapsed) <= max {
		return collapsed
	}
	if max <= 3 {
		return collapsed[:max]
	}
	return collapsed[:max-3] + "..."
}
