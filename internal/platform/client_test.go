package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testSession(t *testing.T, name, baseURL string) *Session {
	t.Helper()
	sess, err := NewSession(name, baseURL, Credentials{ClientID: "client-1", Secret: "secret-1"})
	require.NoError(t, err)
	return sess
}

type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func (s *sleepRecorder) total() time.Duration {
	var sum time.Duration
	for _, d := range s.waits {
		sum += d
	}
	return sum
}

func TestClientAuthenticatesOnceAndSendsBearer(t *testing.T) {
	var (
		mu         sync.Mutex
		authCalls  int
		authBodies []map[string]string
		bearers    []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/vendor":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			authCalls++
			authBodies = append(authBodies, body)
			mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"accessToken":"tok-1","expiresIn":3600}`)
		case "/identity/resources/roles/v1":
			mu.Lock()
			bearers = append(bearers, r.Header.Get("Authorization"))
			mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `[]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClient()
	sess := testSession(t, "source", srv.URL)

	_, err := client.ListRoles(context.Background(), sess)
	require.NoError(t, err)
	_, err = client.ListRoles(context.Background(), sess)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, authCalls)
	require.Equal(t, []map[string]string{{"clientId": "client-1", "secret": "secret-1"}}, authBodies)
	require.Equal(t, []string{"Bearer tok-1", "Bearer tok-1"}, bearers)
}

func TestClientRefreshesExpiredToken(t *testing.T) {
	var (
		mu        sync.Mutex
		authCalls int
		bearers   []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/vendor":
			mu.Lock()
			authCalls++
			n := authCalls
			mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"accessToken":"tok-%d","expiresIn":120}`, n)
		case "/identity/resources/roles/v1":
			mu.Lock()
			bearers = append(bearers, r.Header.Get("Authorization"))
			mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `[]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	client := NewClient(WithClock(func() time.Time { return now }))
	sess := testSession(t, "source", srv.URL)

	_, err := client.ListRoles(context.Background(), sess)
	require.NoError(t, err)

	// expiresIn 120s minus the 60s slack leaves the token valid for one minute.
	now = now.Add(61 * time.Second)
	_, err = client.ListRoles(context.Background(), sess)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 2, authCalls)
	require.Equal(t, []string{"Bearer tok-1", "Bearer tok-2"}, bearers)
}

func TestClientAuthFailureIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"errors":["invalid secret"]}`)
	}))
	defer srv.Close()

	client := NewClient()
	sess := testSession(t, "source", srv.URL)

	_, err := client.ListRoles(context.Background(), sess)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	require.Equal(t, "source", authErr.Account)
	require.Contains(t, authErr.Detail, "invalid secret")
	require.True(t, IsFatal(err))
}

func TestClientHonorsRetryAfterSeconds(t *testing.T) {
	var (
		mu       sync.Mutex
		attempts int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/vendor" {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"accessToken":"tok-1","expiresIn":3600}`)
			return
		}
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n <= 3 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	sleeper := &sleepRecorder{}
	client := NewClient(WithSleep(sleeper.sleep))
	sess := testSession(t, "source", srv.URL)

	roles, err := client.ListRoles(context.Background(), sess)
	require.NoError(t, err)
	require.Empty(t, roles)

	mu.Lock()
	total := attempts
	mu.Unlock()
	require.Equal(t, 4, total)
	require.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second}, sleeper.waits)
	require.GreaterOrEqual(t, sleeper.total(), 6*time.Second)

	stats := client.StatsSnapshot()["source"]
	require.Equal(t, int64(5), stats.Requests) // one auth call plus four list attempts
	require.Equal(t, int64(3), stats.RateLimited)
	require.Equal(t, int64(3), stats.Retries)
	require.Equal(t, 6*time.Second, stats.ThrottleWait)
}

func TestClientRateLimitAttemptsExhausted(t *testing.T) {
	var (
		mu   sync.Mutex
		hits int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/vendor" {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"accessToken":"tok-1","expiresIn":3600}`)
			return
		}
		mu.Lock()
		hits++
		mu.Unlock()
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	sleeper := &sleepRecorder{}
	client := NewClient(
		WithSleep(sleeper.sleep),
		WithRetryPolicy(RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}),
	)
	sess := testSession(t, "dest", srv.URL)

	_, err := client.ListRoles(context.Background(), sess)
	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	require.Equal(t, 3, rateErr.Attempts)
	require.True(t, IsFatal(err))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 3, hits)
	require.Len(t, sleeper.waits, 2)
}

func TestClientRateLimitElapsedBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/vendor" {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"accessToken":"tok-1","expiresIn":3600}`)
			return
		}
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	client := NewClient(
		WithClock(func() time.Time { return now }),
		WithSleep(func(_ context.Context, d time.Duration) error {
			now = now.Add(d)
			return nil
		}),
		WithRetryPolicy(RetryPolicy{MaxAttempts: 10, MaxElapsed: 3 * time.Second, BaseDelay: time.Second, MaxDelay: time.Second}),
	)
	sess := testSession(t, "dest", srv.URL)

	_, err := client.ListRoles(context.Background(), sess)
	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	// Attempt one sleeps two seconds; the next two-second wait would cross
	// the three second budget, so the second attempt gives up.
	require.Equal(t, 2, rateErr.Attempts)
	require.Equal(t, 2*time.Second, rateErr.Elapsed)
}

func TestClientRetryAfterHTTPDate(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var (
		mu   sync.Mutex
		hits int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/vendor" {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"accessToken":"tok-1","expiresIn":3600}`)
			return
		}
		mu.Lock()
		hits++
		n := hits
		mu.Unlock()
		if n == 1 {
			w.Header().Set("Retry-After", start.Add(5*time.Second).Format(http.TimeFormat))
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	sleeper := &sleepRecorder{}
	client := NewClient(WithClock(func() time.Time { return start }), WithSleep(sleeper.sleep))
	sess := testSession(t, "source", srv.URL)

	_, err := client.ListRoles(context.Background(), sess)
	require.NoError(t, err)
	require.Equal(t, []time.Duration{5 * time.Second}, sleeper.waits)
}

func TestClientRetryAfterUnparseableFallsBack(t *testing.T) {
	var (
		mu   sync.Mutex
		hits int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/vendor" {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"accessToken":"tok-1","expiresIn":3600}`)
			return
		}
		mu.Lock()
		hits++
		n := hits
		mu.Unlock()
		if n == 1 {
			w.Header().Set("Retry-After", "soon")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	sleeper := &sleepRecorder{}
	client := NewClient(WithSleep(sleeper.sleep))
	sess := testSession(t, "source", srv.URL)

	_, err := client.ListRoles(context.Background(), sess)
	require.NoError(t, err)
	require.Equal(t, []time.Duration{time.Second}, sleeper.waits)
}

func TestClientBackoffWhenNoRetryAfter(t *testing.T) {
	var (
		mu   sync.Mutex
		hits int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/vendor" {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"accessToken":"tok-1","expiresIn":3600}`)
			return
		}
		mu.Lock()
		hits++
		n := hits
		mu.Unlock()
		if n <= 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	sleeper := &sleepRecorder{}
	client := NewClient(
		WithSleep(sleeper.sleep),
		WithRetryPolicy(RetryPolicy{MaxAttempts: 6, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}),
	)
	sess := testSession(t, "source", srv.URL)

	_, err := client.ListRoles(context.Background(), sess)
	require.NoError(t, err)
	require.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}, sleeper.waits)
}

func TestClientRemoteErrorCarriesStatusAndDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/vendor" {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"accessToken":"tok-1","expiresIn":3600}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"errors":["no such role"]}`)
	}))
	defer srv.Close()

	client := NewClient()
	sess := testSession(t, "source", srv.URL)

	_, err := client.ListRoles(context.Background(), sess)
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	require.Equal(t, http.StatusNotFound, reqErr.StatusCode)
	require.Equal(t, "no such role", reqErr.Body)

	status, ok := HTTPStatusCode(err)
	require.True(t, ok)
	require.Equal(t, http.StatusNotFound, status)
	require.False(t, IsFatal(err))
}

func TestClientDecodeErrorOnBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/vendor" {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"accessToken":"tok-1","expiresIn":3600}`)
			return
		}
		fmt.Fprint(w, `this is not json`)
	}))
	defer srv.Close()

	client := NewClient()
	sess := testSession(t, "source", srv.URL)

	_, err := client.ListRoles(context.Background(), sess)
	var decodeErr *ResponseDecodeError
	require.ErrorAs(t, err, &decodeErr)
	require.Equal(t, http.StatusOK, decodeErr.StatusCode)
}
