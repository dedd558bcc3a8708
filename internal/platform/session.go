package platform

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Credentials is one account's vendor API credential pair.
type Credentials struct {
	ClientID string
	Secret   string
}

// Session is the authenticated handle for one account. Exactly one exists
// per account per run; the orchestrator constructs both explicitly and
// passes them into every component, so nothing reads sessions from ambient
// state. The client refreshes the token transparently before a request when
// it is missing or expired.
type Session struct {
	Name    string
	BaseURL string

	creds Credentials

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewSession(name, baseURL string, creds Credentials) (*Session, error) {
	label := strings.TrimSpace(name)
	if label == "" {
		return nil, fmt.Errorf("session name is required")
	}

	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse base url for %s account: %w", label, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("base url for %s account must include scheme and host", label)
	}

	if strings.TrimSpace(creds.ClientID) == "" || strings.TrimSpace(creds.Secret) == "" {
		return nil, fmt.Errorf("client id and secret are required for %s account", label)
	}

	return &Session{
		Name:    label,
		BaseURL: trimmed,
		creds: Credentials{
			ClientID: strings.TrimSpace(creds.ClientID),
			Secret:   strings.TrimSpace(creds.Secret),
		},
	}, nil
}

// currentToken returns the cached bearer token, or "" when absent or past
// its expiry instant.
func (s *Session) currentToken(now time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" || !now.Before(s.expiresAt) {
		return ""
	}
	return s.token
}

func (s *Session) storeToken(token string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.expiresAt = expiresAt
}
