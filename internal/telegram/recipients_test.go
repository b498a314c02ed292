package telegram

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestListChats(t *testing.T) {
	updates := []Update{
		{UpdateID: 1, Message: &Message{Chat: Chat{ID: 123, Type: "private", Username: "zoe"}, Text: "/start"}},
		{UpdateID: 2, ChannelPost: &Message{Chat: Chat{ID: -1001, Type: "channel", Title: "LATAM Digest"}}},
		{UpdateID: 3, Message: &Message{Chat: Chat{ID: 123, Type: "private", Username: "zoe"}, Text: "again"}},
		{UpdateID: 4},
		{UpdateID: 5, Message: &Message{Chat: Chat{ID: 77, Type: "private", FirstName: "Ana", LastName: "Paz"}}},
	}
	client := &mockTelegramClient{getUpdatesFunc: func(ctx context.Context, offset int64, timeout int) ([]Update, error) {
		if offset != 0 {
			t.Errorf("offset = %d, want 0", offset)
		}
		return updates, nil
	}}

	got, err := ListChats(context.Background(), client)
	if err != nil {
		t.Fatalf("ListChats() error = %v", err)
	}
	want := []ChatInfo{
		{ChatID: "77", Type: "private", Name: "Ana Paz"},
		{ChatID: "-1001", Type: "channel", Name: "LATAM Digest"},
		{ChatID: "123", Type: "private", Name: "zoe"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ListChats() = %+v, want %+v", got, want)
	}
}

func TestListChats_Errors(t *testing.T) {
	if _, err := ListChats(context.Background(), nil); err == nil {
		t.Error("ListChats(nil) expected error")
	}

	client := &mockTelegramClient{getUpdatesFunc: func(ctx context.Context, offset int64, timeout int) ([]Update, error) {
		return nil, errors.New("unauthorized")
	}}
	if _, err := ListChats(context.Background(), client); err == nil {
		t.Error("ListChats() expected error")
	}
}

func TestDeriveChatName(t *testing.T) {
	tests := []struct {
		msg  *Message
		want string
	}{
		{msg: &Message{Chat: Chat{ID: 1, Username: "chan"}}, want: "chan"},
		{msg: &Message{Chat: Chat{ID: 1}, From: &User{Username: "from"}}, want: "from"},
		{msg: &Message{Chat: Chat{ID: 1, Title: "Group"}}, want: "Group"},
		{msg: &Message{Chat: Chat{ID: 42}}, want: "chat-42"},
	}
	for _, tt := range tests {
		if got := deriveChatName(tt.msg); got != tt.want {
			t.Errorf("deriveChatName() = %q, want %q", got, tt.want)
		}
	}
}
