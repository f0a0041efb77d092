// Package chatbridge routes chat-platform messages into the Session
// Manager. The platform itself stays behind this thin boundary: the
// bridge only turns updates into Manager.SendMessage calls and relays
// the reply — a long-polling loop via tgbotapi.NewUpdate/GetUpdatesChan
// with per-update goroutine dispatch, one session thread per chat id.
package chatbridge

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/fleetherd/herd/internal/roles"
	"github.com/fleetherd/herd/internal/session"
)

// TelegramBridge relays long-polled Telegram updates into a
// session.Manager, one thread per chat id.
type TelegramBridge struct {
	bot      *tgbotapi.BotAPI
	sessions *session.Manager
	roleName string
	roles    *roles.Store
	log      *slog.Logger
}

// NewTelegramBridge connects to Telegram with token and routes every
// chat's messages to sessions under roleName's system prompt.
func NewTelegramBridge(token, roleName string, sessions *session.Manager, roleStore *roles.Store, log *slog.Logger) (*TelegramBridge, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("chatbridge: telegram init: %w", err)
	}
	bot.Debug = false
	if log == nil {
		log = slog.Default()
	}
	return &TelegramBridge{bot: bot, sessions: sessions, roleName: roleName, roles: roleStore, log: log}, nil
}

// Start runs the long-polling loop until ctx is cancelled.
func (b *TelegramBridge) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.bot.GetUpdatesChan(u)

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			go b.handle(ctx, update)
		case <-ctx.Done():
			b.bot.StopReceivingUpdates()
			return
		}
	}
}

func (b *TelegramBridge) handle(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}

	threadID := strconv.FormatInt(update.Message.Chat.ID, 10)
	userName := update.Message.From.UserName
	if userName == "" {
		userName = strconv.FormatInt(update.Message.From.ID, 10)
	}

	systemPrompt := b.roles.RoleDefinition(b.roleName)
	reply, err := b.sessions.SendMessage(ctx, threadID, update.Message.Text, userName, systemPrompt)
	if err != nil {
		b.log.Error("chatbridge: session exchange failed", "thread", threadID, "error", err)
		b.bot.Send(tgbotapi.NewMessage(update.Message.Chat.ID, "Error: "+err.Error()))
		return
	}
	if reply == "" {
		return
	}
	if _, err := b.bot.Send(tgbotapi.NewMessage(update.Message.Chat.ID, reply)); err != nil {
		b.log.Warn("chatbridge: failed to send reply", "error", err)
	}
}
