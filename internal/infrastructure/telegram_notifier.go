package infrastructure

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"supportbridge/internal/entities"
)

// TelegramNotifier pings the support team's Telegram chat when a visitor registers.
type TelegramNotifier struct {
	Bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramNotifier{Bot: bot, chatID: chatID}, nil
}

// NewTelegramNotifierWithEndpoint is NewTelegramNotifier against a custom Bot API endpoint,
// formatted like tgbotapi.APIEndpoint.
func NewTelegramNotifierWithEndpoint(token, endpoint string, chatID int64, client tgbotapi.HTTPClient) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramNotifier{Bot: bot, chatID: chatID}, nil
}

func (t *TelegramNotifier) NotifyRegistration(ctx context.Context, visitor entities.Visitor, reg entities.Registration) error {
	if t.Bot == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, FormatRegistrationNotice(visitor, reg))
	_, err := t.Bot.Send(msg)
	return err
}

// FormatRegistrationNotice is plain text on purpose: names are user input and
// would break Markdown parsing.
func FormatRegistrationNotice(visitor entities.Visitor, reg entities.Registration) string {
	return fmt.Sprintf("New support chat\nVisitor: %s %s <%s>\nCustomer: %s\nChannel: %s",
		visitor.FirstName, visitor.LastName, visitor.Email, reg.CustomerID, reg.ChannelID)
}
