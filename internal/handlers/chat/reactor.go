package handlers

import (
	"context"
	"fmt"

	api "github.com/OvyFlash/telegram-bot-api"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/strikeguard/internal/db"
	"github.com/iamwavecut/strikeguard/internal/i18n"
	"github.com/iamwavecut/strikeguard/internal/infrastructure/telegram"
	"github.com/iamwavecut/strikeguard/internal/moderation"
	"github.com/iamwavecut/strikeguard/internal/moderation/guard"
)

const maxLastResults = 1000

type (
	moderationEngine interface {
		Evaluate(ctx context.Context, msg moderation.Message) (moderation.Directive, error)
		ToggleStrictMode(ctx context.Context, chatID int64) (bool, error)
		Settings(ctx context.Context, chatID int64) (*db.Settings, error)
		ActiveStrikes(ctx context.Context, chatID, userID int64) (int, error)
		ForgiveStrikes(ctx context.Context, chatID, userID int64) error
		SetList(ctx context.Context, chatID, userID int64, kind db.ListKind) error
		Unlist(ctx context.Context, chatID, userID int64) error
		Ping(ctx context.Context) error
	}

	enforcer interface {
		Apply(ctx context.Context, t telegram.Target, d moderation.Directive) error
	}

	memberships interface {
		guard.MembershipChecker
		CanEnforce(ctx context.Context, chatID, userID int64) (bool, error)
	}

	messenger interface {
		SendText(ctx context.Context, chatID int64, text string, replyTo, threadID int) (api.Message, error)
	}

	Config struct {
		DefaultLanguage string
		// BotID enables the moderation rights line in /status.
		BotID int64
	}

	resultKey struct {
		chatID    int64
		messageID int
	}
)

// Reactor moderates group messages and serves the moderation commands.
type Reactor struct {
	engine    moderationEngine
	enforcer  enforcer
	messenger messenger
	admins    memberships
	config    Config

	lastResults *lru.Cache[resultKey, moderation.Directive]
}

func NewReactor(engine moderationEngine, enforcer enforcer, messenger messenger, admins memberships, config Config) *Reactor {
	lastResults, err := lru.New[resultKey, moderation.Directive](maxLastResults)
	if err != nil {
		panic(fmt.Sprintf("cant create results cache: %v", err))
	}
	r := &Reactor{
		engine:      engine,
		enforcer:    enforcer,
		messenger:   messenger,
		admins:      admins,
		config:      config,
		lastResults: lastResults,
	}
	r.getLogEntry().Debug("created new reactor")
	return r
}

func (r *Reactor) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	entry := r.getLogEntry().WithFields(log.Fields{"method": "Handle"})
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if u == nil {
		return false, errors.New("nil update")
	}

	msg := u.Message
	if msg == nil {
		msg = u.EditedMessage
	}
	if msg == nil || chat == nil {
		return true, nil
	}
	if user == nil {
		return false, errors.New("nil user")
	}
	if chat.IsChannel() {
		return true, nil
	}
	if chat.IsPrivate() {
		if u.Message != nil && msg.IsCommand() {
			return true, r.reply(ctx, msg, i18n.Get("This command can only be used in groups", r.language(user)))
		}
		return true, nil
	}

	if u.Message != nil && msg.IsCommand() {
		if err := r.handleCommand(ctx, msg, chat, user); err != nil {
			entry.WithField("error", err.Error()).Error("error handling command")
			return true, err
		}
		return true, nil
	}
	if err := r.handleMessage(ctx, msg, chat, user); err != nil {
		entry.WithField("error", err.Error()).Error("error handling message")
		return true, err
	}
	return true, nil
}

func (r *Reactor) language(user *api.User) string {
	if user == nil {
		return r.config.DefaultLanguage
	}
	return i18n.Pick(user.LanguageCode, r.config.DefaultLanguage)
}

func (r *Reactor) getLogEntry() *log.Entry {
	return log.WithField("object", "Reactor")
}

func (r *Reactor) storeLastResult(chatID int64, messageID int, d moderation.Directive) {
	r.lastResults.Add(resultKey{chatID: chatID, messageID: messageID}, d)
}

func (r *Reactor) GetLastProcessingResult(chatID int64, messageID int) (moderation.Directive, bool) {
	return r.lastResults.Get(resultKey{chatID: chatID, messageID: messageID})
}
