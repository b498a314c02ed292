package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNotConfigured возвращается, когда для режима не хватает обязательных настроек.
var ErrNotConfigured = errors.New("not configured")

// EnvConfig содержит токены и другие переменные окружения.
type EnvConfig struct {
	TelegramBotToken string
	TelegramChatID   string
	GeminiAPIKey     string
	LogLevel         string
}

// LoadEnvConfig читает переменные окружения. Проверка обязательности - в Require*.
func LoadEnvConfig() EnvConfig {
	return EnvConfig{
		TelegramBotToken: strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		TelegramChatID:   strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")),
		GeminiAPIKey:     strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		LogLevel:         strings.TrimSpace(os.Getenv("LOG_LEVEL")),
	}
}

// RequireTelegram проверяет наличие переменных для публикации.
func (e EnvConfig) RequireTelegram() error {
	var missing []string
	if e.TelegramBotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if e.TelegramChatID == "" {
		missing = append(missing, "TELEGRAM_CHAT_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s environment variable is required", ErrNotConfigured, strings.Join(missing, ", "))
	}
	return nil
}

// GeminiEnabled сообщает, можно ли использовать обогащение.
func (e EnvConfig) GeminiEnabled() bool {
	return e.GeminiAPIKey != ""
}
