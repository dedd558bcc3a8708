package platform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewSessionNormalizesBaseURL(t *testing.T) {
	sess, err := NewSession("  source  ", "https://api.example.com/ ", Credentials{ClientID: " c ", Secret: " s "})
	require.NoError(t, err)
	require.Equal(t, "source", sess.Name)
	require.Equal(t, "https://api.example.com", sess.BaseURL)
	require.Equal(t, Credentials{ClientID: "c", Secret: "s"}, sess.creds)
}

func TestNewSessionRejectsBadInput(t *testing.T) {
	_, err := NewSession("", "https://api.example.com", Credentials{ClientID: "c", Secret: "s"})
	require.ErrorContains(t, err, "session name")

	_, err = NewSession("source", "api.example.com", Credentials{ClientID: "c", Secret: "s"})
	require.ErrorContains(t, err, "scheme and host")

	_, err = NewSession("source", "https://api.example.com", Credentials{ClientID: "c"})
	require.ErrorContains(t, err, "client id and secret")
}

func TestSessionTokenExpiry(t *testing.T) {
	sess, err := NewSession("source", "https://api.example.com", Credentials{ClientID: "c", Secret: "s"})
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.Empty(t, sess.currentToken(now))

	sess.storeToken("tok-1", now.Add(time.Minute))
	require.Equal(t, "tok-1", sess.currentToken(now))
	require.Equal(t, "tok-1", sess.currentToken(now.Add(59*time.Second)))
	require.Empty(t, sess.currentToken(now.Add(time.Minute)))
}
