package gemini

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		msg  string
		want errorKind
	}{
		{msg: "Error 429: quota metric generate_content_free_tier_requests, limit: 20", want: errQuota},
		{msg: "Error 429: Resource exhausted", want: errRateLimit},
		{msg: "Error 503: The model is overloaded", want: errUnavailable},
		{msg: "Error 502: Bad Gateway", want: errTemporary},
		{msg: "Error 403: quota exceeded for project", want: errQuota},
		{msg: "Error 400: invalid argument", want: errFatal},
	}
	for _, tt := range tests {
		if got := classifyError(tt.msg); got != tt.want {
			t.Errorf("classifyError(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

func TestClient_GenerateText_RetriesTemporary(t *testing.T) {
	calls := 0
	c := newClient(func(ctx context.Context, model, prompt string) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("Error 503: overloaded")
		}
		return "ok", nil
	}, RetryPolicy{MaxAttempts: 3}, testLogger())

	got, err := c.GenerateText(context.Background(), "m", "p")
	if err != nil {
		t.Fatalf("GenerateText() error = %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Errorf("GenerateText() = %q after %d calls", got, calls)
	}
}

func TestClient_GenerateText_StopsOnQuota(t *testing.T) {
	calls := 0
	c := newClient(func(ctx context.Context, model, prompt string) (string, error) {
		calls++
		return "", errors.New("429 generate_content_free_tier_requests")
	}, RetryPolicy{MaxAttempts: 5}, testLogger())

	_, err := c.GenerateText(context.Background(), "m", "p")
	if err == nil || !strings.Contains(err.Error(), "quota") {
		t.Fatalf("GenerateText() error = %v, want quota error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestClient_GenerateText_MaxRetries(t *testing.T) {
	c := newClient(func(ctx context.Context, model, prompt string) (string, error) {
		return "", errors.New("500 internal server error")
	}, RetryPolicy{MaxAttempts: 2}, testLogger())

	_, err := c.GenerateText(context.Background(), "m", "p")
	if err == nil || !strings.Contains(err.Error(), "max retries exceeded") {
		t.Fatalf("GenerateText() error = %v", err)
	}
}
