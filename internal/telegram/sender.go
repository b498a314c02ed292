package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/maine/latam_digest_bot/internal/config"
	"github.com/maine/latam_digest_bot/internal/news"
)

// ErrPublish означает, что дайджест не был доставлен. Состояние при этом не фиксируется.
var ErrPublish = errors.New("telegram publish failed")

const (
	// retryDelay - базовая задержка между попытками
	retryDelay = 2 * time.Second
	// maxRetryDelay - верхняя граница задержки
	maxRetryDelay = 30 * time.Second
)

// ImageFinder ищет картинку превью для страницы новости.
type ImageFinder interface {
	FindImage(ctx context.Context, pageURL string) (string, error)
}

// Sender реализует app.Publisher: отправляет дайджест в один чат или канал.
// Если есть картинка главной новости или HeaderPhotoURL, сначала отправляется
// фото с подписью, при отказе Telegram - обычное текстовое сообщение.
type Sender struct {
	client   TelegramClient
	chatID   string
	photoURL string
	images   ImageFinder
	attempts int
	delay    time.Duration
	log      *slog.Logger
}

// NewSender создаёт новый экземпляр отправителя.
func NewSender(client TelegramClient, chatID string, cfg config.Telegram, log *slog.Logger) *Sender {
	if log == nil {
		log = slog.Default()
	}
	attempts := cfg.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}
	return &Sender{
		client:   client,
		chatID:   chatID,
		photoURL: strings.TrimSpace(cfg.HeaderPhotoURL),
		attempts: attempts,
		delay:    retryDelay,
		log:      log,
	}
}

// WithImageFinder включает поиск og:image главной новости для фото.
// Картинка из шапки остаётся запасным вариантом.
func (s *Sender) WithImageFinder(f ImageFinder) *Sender {
	s.images = f
	return s
}

// Publish реализует app.Publisher.
// Возвращает id новостей, которые вошли в доставленный вариант, и только
// после подтверждения от Telegram.
func (s *Sender) Publish(ctx context.Context, post news.Post) ([]string, error) {
	if s.chatID == "" {
		return nil, fmt.Errorf("%w: chat_id is empty", ErrPublish)
	}
	if post.Empty() {
		return nil, fmt.Errorf("%w: nothing to send", ErrPublish)
	}

	if post.Caption != "" {
		for _, photo := range s.photos(ctx, post.LeadURL) {
			err := s.withRetry(ctx, func(ctx context.Context) error {
				return s.client.SendPhoto(ctx, s.chatID, photo, post.Caption, ParseModeHTML)
			})
			if err == nil {
				s.log.Info("digest sent", "chat_id", s.chatID, "mode", "photo", "items", len(post.CaptionIDs))
				return post.CaptionIDs, nil
			}
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrPublish, ctx.Err())
			}
			// Без ответа API фото могло дойти: повторная отправка текстом задублирует пост.
			if !rejected(err) {
				return nil, fmt.Errorf("%w: send photo: %w", ErrPublish, err)
			}
			s.log.Warn("photo rejected, trying next option", "photo", photo, "error", err)
		}
	}

	if post.Text == "" {
		return nil, fmt.Errorf("%w: no text variant to fall back to", ErrPublish)
	}
	err := s.withRetry(ctx, func(ctx context.Context) error {
		return s.client.SendMessage(ctx, s.chatID, post.Text, ParseModeHTML)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPublish, err)
	}
	s.log.Info("digest sent", "chat_id", s.chatID, "mode", "text", "items", len(post.TextIDs))
	return post.TextIDs, nil
}

// photos возвращает адреса картинок в порядке попыток: og:image главной новости, затем шапка.
func (s *Sender) photos(ctx context.Context, leadURL string) []string {
	var out []string
	if s.images != nil && leadURL != "" {
		img, err := s.images.FindImage(ctx, leadURL)
		if err != nil {
			s.log.Debug("lead image not found", "url", leadURL, "error", err)
		} else if img != "" {
			out = append(out, img)
		}
	}
	if s.photoURL != "" && (len(out) == 0 || out[0] != s.photoURL) {
		out = append(out, s.photoURL)
	}
	return out
}

// rejected сообщает, что Telegram ответил ошибкой, то есть сообщение точно не опубликовано.
func rejected(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// withRetry выполняет send с повторными попытками при временных ошибках.
func (s *Sender) withRetry(ctx context.Context, send func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < s.attempts; attempt++ {
		if attempt > 0 {
			delay := s.backoff(attempt, lastErr)
			s.log.Info("retrying telegram request", "attempt", attempt+1, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := send(ctx)
		if err == nil {
			return nil
		}

		lastErr = err

		// Для некоторых ошибок (например, чат не найден, бот заблокирован) повтор не поможет
		if !isRetryableError(err) {
			return err
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (s *Sender) backoff(attempt int, err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter
	}
	delay := s.delay * time.Duration(attempt)
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

// isRetryableError определяет, можно ли повторить отправку при данной ошибке.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}

	errStr := strings.ToLower(err.Error())

	// Ошибки, при которых повтор не поможет
	nonRetryableErrors := []string{
		"chat not found",
		"bot was blocked",
		"user is deactivated",
		"chat_id is empty",
		"message is too long",
		"bad request",
	}
	for _, nonRetryable := range nonRetryableErrors {
		if strings.Contains(errStr, nonRetryable) {
			return false
		}
	}

	// По умолчанию считаем ошибку повторяемой (сетевые ошибки, временные проблемы API)
	return true
}
