package utils

import "testing"

func TestGetEnv(t *testing.T) {
	if got := GetEnv("DECISION_TEST_UNSET", "fallback", nil); got != "fallback" {
		t.Fatalf("expected fallback for unset var, got %q", got)
	}
	t.Setenv("DECISION_TEST_SET", "value")
	if got := GetEnv("DECISION_TEST_SET", "fallback", nil); got != "value" {
		t.Fatalf("expected env value, got %q", got)
	}
}

func TestGetEnvAsInt(t *testing.T) {
	if got := GetEnvAsInt("DECISION_TEST_UNSET", 8080, nil); got != 8080 {
		t.Fatalf("expected default for unset var, got %d", got)
	}
	t.Setenv("DECISION_TEST_PORT", "9090")
	if got := GetEnvAsInt("DECISION_TEST_PORT", 8080, nil); got != 9090 {
		t.Fatalf("expected parsed value, got %d", got)
	}
	t.Setenv("DECISION_TEST_PORT", "not-a-number")
	if got := GetEnvAsInt("DECISION_TEST_PORT", 8080, nil); got != 8080 {
		t.Fatalf("expected default for unparsable value, got %d", got)
	}
}
