package logger

import "testing"

func TestSanitizeKVsRedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{"user_id", "u1", "api_token", "abc", "Authorization", "Bearer x", "dangling"})
	if len(out) != 7 {
		t.Fatalf("expected 7 items, got %d", len(out))
	}
	if out[1] != "u1" {
		t.Fatalf("user_id must pass through, got %v", out[1])
	}
	if out[3] != "[REDACTED]" || out[5] != "[REDACTED]" {
		t.Fatalf("expected secrets to be redacted: %v", out)
	}
	if out[6] != "dangling" {
		t.Fatalf("expected dangling key to be kept: %v", out)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("dev", "loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	l, err := New("prod", "warn")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	l.With("component", "test").Info("ignored below warn")
}
