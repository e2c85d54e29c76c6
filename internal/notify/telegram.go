package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	tele "gopkg.in/telebot.v3"
)

// TelegramSender posts notifications to one chat through the Bot API.
type TelegramSender struct {
	bot  *tele.Bot
	chat *tele.Chat
}

// TelegramConfig configures a TelegramSender. APIURL is only set in tests.
type TelegramConfig struct {
	Token  string
	ChatID string
	APIURL string
}

// NewTelegramSender builds an offline bot: it sends messages but never
// polls for updates.
func NewTelegramSender(cfg TelegramConfig) (*TelegramSender, error) {
	chatID, err := strconv.ParseInt(cfg.ChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("telegram: invalid chat id %q: %w", cfg.ChatID, err)
	}

	bot, err := tele.NewBot(tele.Settings{
		URL:     cfg.APIURL,
		Token:   cfg.Token,
		Offline: true,
		Client:  &http.Client{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: new bot: %w", err)
	}
	return &TelegramSender{bot: bot, chat: &tele.Chat{ID: chatID}}, nil
}

// telegramMax is the Bot API limit on message text.
const telegramMax = 4096

// format renders msg as Telegram HTML. Market questions are user text, so
// everything is escaped.
func (t *TelegramSender) format(msg Message) (string, tele.ParseMode) {
	prefix := ""
	if msg.Alert() {
		prefix = "⚠️ "
	}
	text := fmt.Sprintf("%s<b>%s</b>\n%s\n<i>%s</i>",
		prefix,
		html.EscapeString(msg.Title),
		html.EscapeString(msg.Body),
		html.EscapeString(msg.Event),
	)
	if utf8.RuneCountInString(text) <= telegramMax {
		return text, tele.ModeHTML
	}
	// Cutting HTML could split a tag; oversized messages go out as plain text.
	return truncate(prefix+msg.Title+"\n"+msg.Body, telegramMax), tele.ModeDefault
}

// Send posts msg to the configured chat.
func (t *TelegramSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text, mode := t.format(msg)
	opts := &tele.SendOptions{ParseMode: mode, DisableWebPagePreview: true}
	if _, err := t.bot.Send(t.chat, text, opts); err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
