// Package telegram connects the command dispatcher and the notifier to the
// Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/op/go-logging"

	"github.com/sweeney/power-monitor/internal/command"
)

var log = logging.MustGetLogger("telegram")

// API is the part of tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Handler answers a command.
type Handler interface {
	Handle(ctx context.Context, req command.Request) command.Reply
}

// pollTimeout is the long-polling timeout for getUpdates, in seconds.
const pollTimeout = 60

// Bot sends messages and feeds incoming commands to a Handler.
type Bot struct {
	api API
}

// New connects to the Bot API with token. Requests are bounded by timeout
// plus the long-polling window.
func New(token string, timeout time.Duration) (*Bot, error) {
	client := &http.Client{Timeout: timeout + pollTimeout*time.Second}
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	log.Infof("authorized as @%s", api.Self.UserName)
	return NewWithAPI(api), nil
}

// NewWithAPI wraps an existing API client.
func NewWithAPI(api API) *Bot {
	return &Bot{api: api}
}

// Send delivers text to a chat. It implements notify.Sender.
func (b *Bot) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("send to %d: %w", chatID, err)
	}
	return nil
}

// Run receives updates and answers commands until ctx is done.
func (b *Bot) Run(ctx context.Context, h Handler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	log.Info("receiving updates")
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, h, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, h Handler, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("update %d: %v", update.UpdateID, r)
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, h, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		msg := update.Message
		reply := h.Handle(ctx, command.Request{ChatID: msg.Chat.ID, Command: msg.Command()})
		out := tgbotapi.NewMessage(msg.Chat.ID, reply.Text)
		if kb := Keyboard(reply.Menu); kb != nil {
			out.ReplyMarkup = *kb
		}
		if _, err := b.api.Send(out); err != nil {
			log.Warningf("reply to %d: %v", msg.Chat.ID, err)
		}
	}
}

func (b *Bot) handleCallback(ctx context.Context, h Handler, q *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		log.Debugf("answer callback: %v", err)
	}
	if q.Message == nil || q.Message.Chat == nil {
		return
	}
	chatID := q.Message.Chat.ID
	reply := h.Handle(ctx, command.Request{ChatID: chatID, Command: q.Data})

	var edit tgbotapi.EditMessageTextConfig
	if kb := Keyboard(reply.Menu); kb != nil {
		edit = tgbotapi.NewEditMessageTextAndMarkup(chatID, q.Message.MessageID, reply.Text, *kb)
	} else {
		edit = tgbotapi.NewEditMessageText(chatID, q.Message.MessageID, reply.Text)
	}
	if _, err := b.api.Send(edit); err != nil {
		log.Warningf("edit message for %d: %v", chatID, err)
	}
}

// Keyboard renders a menu as an inline keyboard, or nil for an empty menu.
func Keyboard(menu [][]command.Button) *tgbotapi.InlineKeyboardMarkup {
	if len(menu) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(menu))
	for _, row := range menu {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(btn.Label, btn.Command))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}
