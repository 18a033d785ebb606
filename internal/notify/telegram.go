package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/store"
)

// chatSender is the part of *tgbotapi.BotAPI the notifier uses.
type chatSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts course completions to a chat.
type Telegram struct {
	api    chatSender
	chatID int64
}

var _ Subscriber = (*Telegram)(nil)

// NewTelegram connects to the Bot API with token.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &Telegram{api: api, chatID: chatID}, nil
}

func (n *Telegram) Name() string { return "telegram" }

// Handle posts the completion message.
func (n *Telegram) Handle(_ context.Context, ev store.Event) error {
	c, err := completionOf(ev)
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(n.chatID, "🎓 "+c.text())
	msg.DisableWebPagePreview = true
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}
