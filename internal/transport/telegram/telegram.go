// Package telegram implements the Telegram bot transport. Inbound calls the
// Bot API's getUpdates without a long-poll timeout, at the controller's
// cadence, with the update offset as the cursor; outbound is a plain
// sendMessage.
package telegram

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/clawplaza/clawlink/internal/config"
	"github.com/clawplaza/clawlink/internal/transport"
)

// Transport is the Telegram adapter.
type Transport struct {
	cfg    config.TelegramConfig
	logger *log.Logger
	api    *tgbotapi.BotAPI
}

// New builds the Telegram transport. Authorizing the bot token happens here,
// so a bad token fails at startup rather than at first poll.
func New(cfg config.TelegramConfig, logger *log.Logger) (*Transport, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	logger.Printf("telegram: authorized as @%s", api.Self.UserName)
	return &Transport{cfg: cfg, logger: logger, api: api}, nil
}

// Name implements transport.Inbound and transport.Outbound.
func (t *Transport) Name() string { return "telegram" }

// Poll fetches updates with an offset strictly past the cursor. The cursor
// is the last consumed update ID as a decimal string.
func (t *Transport) Poll(ctx context.Context, cursor string) ([]transport.Message, string, error) {
	last, _ := strconv.Atoi(cursor)
	u := tgbotapi.NewUpdate(last + 1)
	u.Timeout = 0 // non-blocking; the controller owns the cadence

	updates, err := t.api.GetUpdates(u)
	if err != nil {
		return nil, cursor, transport.Transientf("telegram getUpdates", err)
	}

	var out []transport.Message
	maxID := last
	for _, update := range updates {
		if update.UpdateID > maxID {
			maxID = update.UpdateID
		}
		if update.Message == nil || update.Message.Text == "" {
			continue
		}
		out = append(out, transport.Message{
			ID:       strconv.Itoa(update.UpdateID),
			Sender:   strconv.FormatInt(update.Message.Chat.ID, 10),
			Body:     update.Message.Text,
			ReplyRef: strconv.Itoa(update.Message.MessageID),
			Received: time.Unix(int64(update.Message.Date), 0),
		})
	}
	return out, strconv.Itoa(maxID), nil
}

// Authenticate enforces the chat-ID whitelist.
func (t *Transport) Authenticate(m transport.Message) transport.AuthResult {
	id, err := strconv.ParseInt(m.Sender, 10, 64)
	if err != nil {
		return transport.AuthResult{OK: false, Reason: "malformed chat id " + m.Sender}
	}
	allowed := t.cfg.AllowedIDs
	if len(allowed) == 0 {
		allowed = []int64{t.cfg.To}
	}
	for _, a := range allowed {
		if id == a {
			return transport.AuthResult{OK: true}
		}
	}
	return transport.AuthResult{OK: false, Reason: fmt.Sprintf("telegram chat %d not whitelisted", id)}
}

// Send delivers a payload as one text message.
func (t *Transport) Send(ctx context.Context, recipient string, p transport.Payload) (string, error) {
	chatID := t.cfg.To
	if recipient != "" {
		id, err := strconv.ParseInt(recipient, 10, 64)
		if err != nil {
			return "", transport.Permanentf("telegram recipient", err)
		}
		chatID = id
	}

	text := p.Body
	if p.Subject != "" {
		text = p.Subject + "\n\n" + text
	}
	if p.Token != "" {
		text += fmt.Sprintf("\n\nToken %s\nReply: /cmd %s <command>", p.Token, p.Token)
	}

	msg := tgbotapi.NewMessage(chatID, text)
	sent, err := t.api.Send(msg)
	if err != nil {
		return "", transport.Transientf("telegram send", err)
	}
	return strconv.Itoa(sent.MessageID), nil
}
