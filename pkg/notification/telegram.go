package notification

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

// Telegram sends notifications to a fixed set of chats. The message body is
// sent as a preformatted block so tables keep their layout.
type Telegram struct {
	client  *tgbotapi.BotAPI
	chatIDs []int64
}

func NewTelegram(token string) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "connecting telegram bot")
	}
	return &Telegram{client: bot}, nil
}

// SetClient replaces the bot client, e.g. one built with a custom API
// endpoint.
func (t *Telegram) SetClient(client *tgbotapi.BotAPI) {
	t.client = client
}

func (t *Telegram) AddReceivers(chatIDs ...int64) {
	t.chatIDs = append(t.chatIDs, chatIDs...)
}

func (t *Telegram) Send(ctx context.Context, subject, message string) error {
	text := formatTelegram(subject, message)
	for _, chatID := range t.chatIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeMarkdownV2
		if _, err := t.client.Send(msg); err != nil {
			return errors.Wrapf(err, "sending telegram message to %d", chatID)
		}
	}
	return nil
}

var codeEscaper = strings.NewReplacer("\\", "\\\\", "`", "\\`")

func formatTelegram(subject, message string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, subject) + "\n```\n" + codeEscaper.Replace(message) + "```"
}
