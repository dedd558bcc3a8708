package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewHonorsLevel(t *testing.T) {
	logger := New("production", "warn")
	if logger.Core().Enabled(zap.InfoLevel) {
		t.Fatalf("expected info to be suppressed at warn level")
	}
	if !logger.Core().Enabled(zap.WarnLevel) {
		t.Fatalf("expected warn to be enabled at warn level")
	}

	logger = New("production", "debug")
	if !logger.Core().Enabled(zap.DebugLevel) {
		t.Fatalf("expected debug to be enabled at debug level")
	}
}

func TestNewDefaultsToInfo(t *testing.T) {
	for _, level := range []string{"", "verbose", "INFO"} {
		logger := New("dev", level)
		if logger.Core().Enabled(zap.DebugLevel) {
			t.Fatalf("level %q: expected debug to be suppressed", level)
		}
		if !logger.Core().Enabled(zap.InfoLevel) {
			t.Fatalf("level %q: expected info to be enabled", level)
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zap.DebugLevel,
		"info":    zap.InfoLevel,
		"warn":    zap.WarnLevel,
		"warning": zap.WarnLevel,
		"error":   zap.ErrorLevel,
		" Error ": zap.ErrorLevel,
		"chatty":  zap.InfoLevel,
	}
	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}
