package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestGetEnvDefaults(t *testing.T) {
	if got := GetEnv("AUTOPILOT_TEST_UNSET", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}

	t.Setenv("AUTOPILOT_TEST_SET", "value")
	if got := GetEnv("AUTOPILOT_TEST_SET", "fallback"); got != "value" {
		t.Fatalf("expected value, got %q", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("AUTOPILOT_TEST_INT", "42")
	if got := GetEnvInt("AUTOPILOT_TEST_INT", 7); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}

	t.Setenv("AUTOPILOT_TEST_INT", "not-a-number")
	if got := GetEnvInt("AUTOPILOT_TEST_INT", 7); got != 7 {
		t.Fatalf("expected default 7, got %d", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("AUTOPILOT_TEST_DUR", "90s")
	if got := GetEnvDuration("AUTOPILOT_TEST_DUR", time.Minute); got != 90*time.Second {
		t.Fatalf("expected 90s, got %s", got)
	}

	t.Setenv("AUTOPILOT_TEST_DUR", "bogus")
	if got := GetEnvDuration("AUTOPILOT_TEST_DUR", time.Minute); got != time.Minute {
		t.Fatalf("expected default 1m, got %s", got)
	}
}

func TestGetLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	if got := GetLogLevel(); got != logrus.WarnLevel {
		t.Fatalf("expected warn level, got %s", got)
	}

	t.Setenv("LOG_LEVEL", "")
	if got := GetLogLevel(); got != logrus.InfoLevel {
		t.Fatalf("expected info level, got %s", got)
	}
}
