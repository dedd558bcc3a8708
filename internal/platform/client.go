package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	maxResponseBodyBytes = 1 << 20
	vendorAuthPath       = "/auth/vendor"
	tenantHeader         = "frontegg-tenant-id"

	// Tokens are treated as expired this long before the server-reported
	// instant so one never dies mid-request.
	tokenExpirySlack = time.Minute

	// Wait when a 429 carries no usable Retry-After value.
	defaultRetryAfter = time.Second
)

type Option func(*Client)

// Client issues authenticated requests against either account's API. It is
// shared by both sessions: all per-account state lives on the Session, all
// behavior knobs live here.
type Client struct {
	httpClient *http.Client
	retry      RetryPolicy
	logger     *zap.Logger
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	stats      *Stats
}

func NewClient(options ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      DefaultRetryPolicy(),
		logger:     zap.NewNop(),
		now:        time.Now,
		sleep:      sleepContext,
		stats:      NewStats(),
	}
	for _, option := range options {
		option(client)
	}
	return client
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(client *Client) {
		if httpClient != nil {
			client.httpClient = httpClient
		}
	}
}

func WithRetryPolicy(policy RetryPolicy) Option {
	return func(client *Client) {
		client.retry = policy
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(client *Client) {
		if logger != nil {
			client.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(client *Client) {
		if now != nil {
			client.now = now
		}
	}
}

// WithSleep replaces the throttle wait. Tests record durations instead of
// sleeping.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(client *Client) {
		if sleep != nil {
			client.sleep = sleep
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// StatsSnapshot reports the request counters accumulated so far, keyed by
// account name.
func (c *Client) StatsSnapshot() map[string]AccountStats {
	return c.stats.Snapshot()
}

func (c *Client) ensureToken(ctx context.Context, sess *Session) (string, error) {
	if token := sess.currentToken(c.now()); token != "" {
		return token, nil
	}
	return c.authenticate(ctx, sess)
}

// authenticate trades the session's vendor credentials for a bearer token
// and caches it on the session. Every failure is an AuthError.
func (c *Client) authenticate(ctx context.Context, sess *Session) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"clientId": sess.creds.ClientID,
		"secret":   sess.creds.Secret,
	})
	if err != nil {
		return "", &AuthError{Account: sess.Name, Detail: err.Error()}
	}

	build := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, sess.BaseURL+vendorAuthPath, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	status, body, err := c.roundTrip(ctx, sess.Name, build)
	if err != nil {
		if IsFatal(err) {
			return "", err
		}
		return "", &AuthError{Account: sess.Name, Detail: err.Error()}
	}
	if status >= http.StatusBadRequest {
		return "", &AuthError{Account: sess.Name, StatusCode: status, Detail: summarizeBody(body)}
	}

	var auth struct {
		AccessToken string  `json:"accessToken"`
		Token       string  `json:"token"`
		ExpiresIn   float64 `json:"expiresIn"`
	}
	if err := json.Unmarshal(body, &auth); err != nil {
		return "", &AuthError{Account: sess.Name, StatusCode: status, Detail: fmt.Sprintf("invalid auth response: %v", err)}
	}
	token := auth.AccessToken
	if token == "" {
		token = auth.Token
	}
	if token == "" {
		return "", &AuthError{Account: sess.Name, StatusCode: status, Detail: "auth response carried no token"}
	}

	expiresAt := c.now().Add(time.Duration(auth.ExpiresIn)*time.Second - tokenExpirySlack)
	sess.storeToken(token, expiresAt)
	c.logger.Debug("vendor token refreshed",
		zap.String("account", sess.Name),
		zap.Time("expires_at", expiresAt))
	return token, nil
}

// do sends one authenticated request and decodes the 2xx response into out
// (out == nil discards the body). 429s are waited out inside roundTrip; any
// other non-2xx becomes a RequestError.
func (c *Client) do(ctx context.Context, sess *Session, method, path string, query url.Values, tenantID string, body, out any) error {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		payload = encoded
	}

	endpoint := sess.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	// The token is resolved per attempt: a long throttle wait must not
	// leave a retry holding an expired credential.
	build := func() (*http.Request, error) {
		token, err := c.ensureToken(ctx, sess)
		if err != nil {
			return nil, err
		}
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if tenantID != "" {
			req.Header.Set(tenantHeader, tenantID)
		}
		return req, nil
	}

	status, respBody, err := c.roundTrip(ctx, sess.Name, build)
	if err != nil {
		return err
	}
	if status >= http.StatusBadRequest {
		return &RequestError{StatusCode: status, Body: summarizeBody(respBody)}
	}
	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return &ResponseDecodeError{StatusCode: status, Detail: "empty response body"}
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &ResponseDecodeError{StatusCode: status, Detail: fmt.Sprintf("invalid JSON response: %v", err)}
	}
	return nil
}

// roundTrip issues the request, reissuing it after each 429 until the retry
// policy is exhausted. Returns the first non-429 outcome.
func (c *Client) roundTrip(ctx context.Context, account string, build func() (*http.Request, error)) (int, []byte, error) {
	start := c.now()
	for attempt := 1; ; attempt++ {
		req, err := build()
		if err != nil {
			return 0, nil, err
		}

		c.stats.recordRequest(account)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return 0, nil, err
		}
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
		resp.Body.Close()
		if readErr != nil {
			return 0, nil, readErr
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp.StatusCode, body, nil
		}

		c.stats.recordRateLimited(account)
		elapsed := c.now().Sub(start)
		if attempt >= c.retry.MaxAttempts {
			return 0, nil, &RateLimitError{Attempts: attempt, Elapsed: elapsed}
		}
		wait := c.retryWait(resp.Header, attempt)
		if c.retry.MaxElapsed > 0 && elapsed+wait > c.retry.MaxElapsed {
			return 0, nil, &RateLimitError{Attempts: attempt, Elapsed: elapsed}
		}

		c.logger.Warn("rate limited, backing off",
			zap.String("account", account),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait))
		c.stats.recordThrottleWait(account, wait)
		if err := c.sleep(ctx, wait); err != nil {
			return 0, nil, err
		}
		c.stats.recordRetry(account)
	}
}

// retryWait prefers the server's Retry-After (seconds or HTTP-date), falling
// back to exponential backoff when the header is absent.
func (c *Client) retryWait(header http.Header, attempt int) time.Duration {
	raw := strings.TrimSpace(header.Get("Retry-After"))
	if raw != "" {
		if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		if at, err := http.ParseTime(raw); err == nil {
			if wait := at.Sub(c.now()); wait > 0 {
				return wait
			}
		}
		return defaultRetryAfter
	}
	return c.retry.Backoff(attempt)
}
