// Package telegram hosts the Telegram client and the update dispatcher that
// routes commands, button presses and questionnaire answers.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/config"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/feature/principal"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/logging"
)

type botRunner interface {
	Start(ctx context.Context)
}

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
		"callback_query",
	}

	createBot = func(token string, options ...bot.Option) (botRunner, error) {
		return bot.New(token, options...)
	}
)

// Client wraps the Telegram bot instance and logging dependencies.
type Client struct {
	bot    botRunner
	logger *logrus.Entry
}

// NewClient initializes the Telegram bot with long polling and hands every
// update to dispatcher.
func NewClient(cfg config.Config, dispatcher *Dispatcher, logger *logrus.Entry) (*Client, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	tgBot, err := createBot(cfg.TelegramToken,
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(updateHandler(dispatcher, logger)),
		bot.WithErrorsHandler(errorHandler(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}

	return &Client{
		bot:    tgBot,
		logger: logger,
	}, nil
}

// Start begins receiving updates via long polling until the context is canceled.
func (c *Client) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger.WithFields(logging.Fields{
		"event":           "telegram_listen",
		"allowed_updates": defaultAllowedUpdates,
	}).Info("starting telegram long polling")

	c.bot.Start(ctx)

	c.logger.WithField("event", "telegram_stopped").Info("telegram polling stopped")
}

// inbound is the part of an update the dispatcher acts on.
type inbound struct {
	identity   principal.Identity
	chatID     int64
	text       string
	callbackID string
	isCallback bool
	updateType string
}

func updateHandler(dispatcher *Dispatcher, logger *logrus.Entry) bot.HandlerFunc {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		if update == nil {
			return
		}

		in, _ := classify(update)
		fields := logging.Fields{
			"event":       "telegram_update",
			"update_type": in.updateType,
		}
		if in.identity.UserID != 0 {
			fields["user_id"] = in.identity.UserID
		}
		if in.chatID != 0 {
			fields["chat_id"] = in.chatID
		}
		logger.WithFields(fields).Debug("telegram update received")

		if b == nil {
			return
		}
		dispatcher.Dispatch(ctx, b, update)
	}
}

// classify extracts the sender and payload of a message or callback query.
// It reports false for updates without a human sender.
func classify(update *models.Update) (inbound, bool) {
	switch {
	case update.Message != nil:
		msg := update.Message
		if msg.From == nil || msg.From.IsBot {
			return inbound{updateType: "message"}, false
		}
		return inbound{
			identity:   identityOf(msg.From, msg.Chat.ID),
			chatID:     msg.Chat.ID,
			text:       strings.TrimSpace(msg.Text),
			updateType: "message",
		}, true
	case update.CallbackQuery != nil:
		query := update.CallbackQuery
		chat := messageChatID(query.Message)
		if chat == 0 {
			chat = query.From.ID
		}
		return inbound{
			identity:   identityOf(&query.From, 0),
			chatID:     chat,
			text:       strings.TrimSpace(query.Data),
			callbackID: query.ID,
			isCallback: true,
			updateType: "callback_query",
		}, true
	default:
		return inbound{updateType: "unknown"}, false
	}
}

func identityOf(user *models.User, privateChatID int64) principal.Identity {
	identity := principal.Identity{
		UserID:       user.ID,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Username:     user.Username,
		LanguageCode: user.LanguageCode,
	}
	// Only a private chat is a safe destination for later notifications.
	if privateChatID == user.ID {
		identity.ChatID = privateChatID
	}
	return identity
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		logger.WithField("event", "telegram_error").WithError(err).Error("telegram polling error")
	}
}

func messageChatID(msg models.MaybeInaccessibleMessage) int64 {
	switch msg.Type {
	case models.MaybeInaccessibleMessageTypeMessage:
		if msg.Message == nil {
			return 0
		}
		return msg.Message.Chat.ID
	case models.MaybeInaccessibleMessageTypeInaccessibleMessage:
		if msg.InaccessibleMessage == nil {
			return 0
		}
		return msg.InaccessibleMessage.Chat.ID
	default:
		return 0
	}
}
