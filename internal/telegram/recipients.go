package telegram

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ChatInfo - чат, из которого боту писали. Нужен, чтобы узнать TELEGRAM_CHAT_ID.
type ChatInfo struct {
	ChatID string
	Type   string
	Name   string
}

// ListChats читает последние обновления бота и возвращает уникальные чаты,
// отсортированные по имени. Offset не сдвигается, обновления остаются на сервере.
func ListChats(ctx context.Context, client TelegramClient) ([]ChatInfo, error) {
	if client == nil {
		return nil, fmt.Errorf("telegram client not configured")
	}

	updates, err := client.GetUpdates(ctx, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}

	chats := map[string]ChatInfo{}
	for _, upd := range updates {
		msg := upd.Message
		if msg == nil {
			msg = upd.ChannelPost
		}
		if msg == nil || msg.Chat.ID == 0 {
			continue
		}

		chatID := strconv.FormatInt(msg.Chat.ID, 10)
		chats[chatID] = ChatInfo{
			ChatID: chatID,
			Type:   msg.Chat.Type,
			Name:   deriveChatName(msg),
		}
	}

	res := make([]ChatInfo, 0, len(chats))
	for _, c := range chats {
		res = append(res, c)
	}

	sort.Slice(res, func(i, j int) bool {
		if res[i].Name != res[j].Name {
			return strings.Compare(res[i].Name, res[j].Name) < 0
		}
		return res[i].ChatID < res[j].ChatID
	})

	return res, nil
}

func deriveChatName(msg *Message) string {
	if msg.Chat.Username != "" {
		return msg.Chat.Username
	}
	if msg.From != nil && msg.From.Username != "" {
		return msg.From.Username
	}
	if msg.Chat.Title != "" {
		return msg.Chat.Title
	}
	if msg.Chat.FirstName != "" || msg.Chat.LastName != "" {
		return strings.TrimSpace(msg.Chat.FirstName + " " + msg.Chat.LastName)
	}
	return fmt.Sprintf("chat-%d", msg.Chat.ID)
}
