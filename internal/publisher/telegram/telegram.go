// Package telegram mirrors notifications into a Telegram chat.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/meizi0715/bdt-v1.5/internal/publisher"
)

// maxMessageRunes is Telegram's limit for one text message.
const maxMessageRunes = 4096

// Sender is the subset of *tgbotapi.BotAPI the publisher uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Publisher posts the subject and body as text, then each attachment as a
// document.
type Publisher struct {
	bot    Sender
	chatID int64
}

// New authenticates the bot token against the Telegram API.
func New(token string, chatID int64) (*Publisher, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return NewWithSender(bot, chatID)
}

// NewWithSender wraps an existing sender.
func NewWithSender(bot Sender, chatID int64) (*Publisher, error) {
	if bot == nil {
		return nil, fmt.Errorf("telegram sender is required")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("telegram chat id is required")
	}
	return &Publisher{bot: bot, chatID: chatID}, nil
}

// Name implements publisher.Publisher.
func (p *Publisher) Name() string { return "telegram" }

// Publish sends the message, splitting long bodies on line boundaries.
func (p *Publisher) Publish(ctx context.Context, msg publisher.Message) error {
	text := strings.TrimSpace(msg.Subject + "\n\n" + msg.Body)
	for _, chunk := range Split(text, maxMessageRunes) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("telegram publish: %w", err)
		}
		if _, err := p.bot.Send(tgbotapi.NewMessage(p.chatID, chunk)); err != nil {
			return fmt.Errorf("telegram send message: %w", err)
		}
	}
	for _, a := range msg.Attachments {
		doc := tgbotapi.NewDocument(p.chatID, tgbotapi.FileBytes{Name: a.Name, Bytes: a.Data})
		if _, err := p.bot.Send(doc); err != nil {
			return fmt.Errorf("telegram send %s: %w", a.Name, err)
		}
	}
	return nil
}

// Split breaks text into chunks of at most limit runes, preferring line
// boundaries. A single line longer than limit is cut mid-line.
func Split(text string, limit int) []string {
	if text == "" {
		return nil
	}
	var (
		chunks []string
		cur    strings.Builder
		n      int
	)
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			n = 0
		}
	}
	for _, line := range strings.Split(text, "\n") {
		for utf8.RuneCountInString(line) > limit {
			flush()
			runes := []rune(line)
			chunks = append(chunks, string(runes[:limit]))
			line = string(runes[limit:])
		}
		size := utf8.RuneCountInString(line)
		extra := size
		if n > 0 {
			extra++
		}
		if n+extra > limit {
			flush()
			extra = size
		}
		if n > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
		n += extra
	}
	flush()
	return chunks
}
