package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiClient определяет интерфейс для работы с Gemini API.
// Это позволяет легко создавать моки для тестирования.
type GeminiClient interface {
	GenerateText(ctx context.Context, model string, prompt string) (string, error)
}

// RetryPolicy задаёт паузы между повторами.
type RetryPolicy struct {
	MaxAttempts      int
	BaseDelay        time.Duration
	RateLimitDelay   time.Duration
	UnavailableDelay time.Duration
	MaxDelay         time.Duration
}

// DefaultRetryPolicy - паузы под бесплатный тариф (RPM=5).
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:      3,
	BaseDelay:        12 * time.Second,
	RateLimitDelay:   time.Minute,
	UnavailableDelay: time.Minute,
	MaxDelay:         time.Minute,
}

type generateFunc func(ctx context.Context, model, prompt string) (string, error)

// Client инкапсулирует работу с Gemini API через официальный SDK.
type Client struct {
	generate generateFunc
	retry    RetryPolicy
	log      *slog.Logger
}

// Убеждаемся, что Client реализует интерфейс GeminiClient.
var _ GeminiClient = (*Client)(nil)

// NewClient создаёт клиент Gemini с явно переданным API-ключом.
func NewClient(ctx context.Context, apiKey string, log *slog.Logger) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini api key is empty")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	generate := func(ctx context.Context, model, prompt string) (string, error) {
		result, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
		if err != nil {
			return "", err
		}
		text, err := result.Text()
		if err != nil {
			return "", fmt.Errorf("get text from result: %w", err)
		}
		return text, nil
	}
	return newClient(generate, DefaultRetryPolicy, log), nil
}

func newClient(generate generateFunc, retry RetryPolicy, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	return &Client{generate: generate, retry: retry, log: log}
}

// GenerateText отправляет запрос и повторяет его при временных ошибках.
// Исчерпанная дневная квота и прочие ошибки возвращаются сразу.
func (c *Client) GenerateText(ctx context.Context, model string, prompt string) (string, error) {
	var lastErr error
	var delay time.Duration

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			c.log.Info("retrying gemini request", "attempt", attempt, "max_attempts", c.retry.MaxAttempts, "delay", delay)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		text, err := c.generate(ctx, model, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err

		switch classifyError(err.Error()) {
		case errQuota:
			return "", fmt.Errorf("gemini API quota exceeded: %w", err)
		case errRateLimit:
			c.log.Warn("gemini rate limit", "error", err)
			delay = c.retry.RateLimitDelay
		case errUnavailable:
			c.log.Warn("gemini service unavailable", "error", err)
			delay = c.retry.UnavailableDelay
		case errTemporary:
			c.log.Warn("gemini temporary error", "error", err)
			delay = c.retry.BaseDelay * time.Duration(attempt)
			if c.retry.MaxDelay > 0 && delay > c.retry.MaxDelay {
				delay = c.retry.MaxDelay
			}
		default:
			return "", fmt.Errorf("generate content: %w", err)
		}
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

type errorKind int

const (
	errFatal errorKind = iota
	errQuota
	errRateLimit
	errUnavailable
	errTemporary
)

// classifyError определяет тип ошибки по тексту: SDK не отдаёт типизированных кодов.
func classifyError(errStr string) errorKind {
	s := strings.ToLower(errStr)
	is429 := strings.Contains(s, "429") || strings.Contains(s, "resource exhausted") || strings.Contains(s, "too many requests")

	switch {
	case is429 && (strings.Contains(s, "generate_content_free_tier_requests") || strings.Contains(s, "per day")):
		return errQuota
	case is429 || strings.Contains(s, "rate limit"):
		return errRateLimit
	case strings.Contains(s, "503") || strings.Contains(s, "service unavailable") || strings.Contains(s, "overloaded"):
		return errUnavailable
	case strings.Contains(s, "500") || strings.Contains(s, "502") || strings.Contains(s, "504") ||
		strings.Contains(s, "internal server error") || strings.Contains(s, "bad gateway") || strings.Contains(s, "gateway timeout"):
		return errTemporary
	case strings.Contains(s, "quota") || strings.Contains(s, "daily limit"):
		return errQuota
	default:
		return errFatal
	}
}
