package handlers

import (
	"context"
	"fmt"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/strikeguard/internal/db"
	sgerrors "github.com/iamwavecut/strikeguard/internal/errors"
	"github.com/iamwavecut/strikeguard/internal/i18n"
	"github.com/iamwavecut/strikeguard/internal/infrastructure/telegram"
)

func (r *Reactor) handleCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	switch msg.Command() {
	case "status":
		return r.statusCommand(ctx, msg, chat, user)
	case "togglestrict":
		return r.adminOnly(ctx, msg, chat, user, r.toggleStrictCommand)
	case "forgive":
		return r.adminOnly(ctx, msg, chat, user, r.forgiveCommand)
	case "allow":
		return r.adminOnly(ctx, msg, chat, user, r.listCommand(db.ListAllow))
	case "deny":
		return r.adminOnly(ctx, msg, chat, user, r.listCommand(db.ListDeny))
	case "unlist":
		return r.adminOnly(ctx, msg, chat, user, r.unlistCommand)
	case "skipreason":
		return r.adminOnly(ctx, msg, chat, user, r.skipReasonCommand)
	}
	return nil
}

type commandFunc func(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error

func (r *Reactor) adminOnly(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User, next commandFunc) error {
	if isSentOnBehalfOfChat(msg, chat) {
		return next(ctx, msg, chat, user)
	}
	isAdmin, err := r.admins.IsAdminOrOwner(ctx, chat.ID, user.ID)
	if err != nil {
		r.getLogEntry().WithError(err).WithField("chat_id", chat.ID).Warn("cant resolve command author rights")
	}
	if err != nil || !isAdmin {
		return r.reply(ctx, msg, i18n.Get("Only admins can use this command", r.language(user)))
	}
	return next(ctx, msg, chat, user)
}

func (r *Reactor) reply(ctx context.Context, msg *api.Message, text string) error {
	_, err := r.messenger.SendText(ctx, msg.Chat.ID, text, msg.MessageID, msg.MessageThreadID)
	return err
}

func (r *Reactor) replyStoreError(ctx context.Context, msg *api.Message, user *api.User, err error) error {
	if !errors.Is(err, sgerrors.ErrStoreUnavailable) {
		return err
	}
	r.getLogEntry().WithError(err).Warn("command failed on store")
	return r.reply(ctx, msg, i18n.Get("Storage is unavailable, try again later", r.language(user)))
}

func (r *Reactor) statusCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	lang := r.language(user)

	storeStatus := i18n.Get("OK", lang)
	if err := r.engine.Ping(ctx); err != nil {
		storeStatus = i18n.Get("ERROR", lang)
	}

	strictStatus := i18n.Get("OFF", lang)
	if settings, err := r.engine.Settings(ctx, chat.ID); err == nil && settings.StrictMode {
		strictStatus = i18n.Get("ON", lang)
	}

	strikes, _ := r.engine.ActiveStrikes(ctx, chat.ID, user.ID)

	text := fmt.Sprintf("✅ %s\n%s: %s\n%s: %s\n%s: %d",
		i18n.Get("Bot online", lang),
		i18n.Get("Store", lang), storeStatus,
		i18n.Get("Strict mode", lang), strictStatus,
		i18n.Get("Your strikes", lang), strikes,
	)
	if r.config.BotID != 0 {
		rightsStatus := i18n.Get("OK", lang)
		if ok, err := r.admins.CanEnforce(ctx, chat.ID, r.config.BotID); err != nil || !ok {
			rightsStatus = i18n.Get("MISSING", lang)
		}
		text += fmt.Sprintf("\n%s: %s", i18n.Get("Moderation rights", lang), rightsStatus)
	}
	return r.reply(ctx, msg, text)
}

func (r *Reactor) toggleStrictCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	strict, err := r.engine.ToggleStrictMode(ctx, chat.ID)
	if err != nil {
		return r.replyStoreError(ctx, msg, user, err)
	}
	r.getLogEntry().WithFields(log.Fields{
		"chat_id": chat.ID,
		"user_id": user.ID,
		"strict":  strict,
	}).Info("strict mode toggled by admin")

	if strict {
		return r.reply(ctx, msg, "🔴 "+i18n.Get("Strict mode enabled", r.language(user)))
	}
	return r.reply(ctx, msg, "🟢 "+i18n.Get("Strict mode disabled", r.language(user)))
}

// replyTarget returns the author of the message the command replies to.
func (r *Reactor) replyTarget(ctx context.Context, msg *api.Message, user *api.User) (*api.User, error) {
	if msg.ReplyToMessage == nil || msg.ReplyToMessage.From == nil {
		return nil, r.reply(ctx, msg, i18n.Get("This command must be used as a reply to a message", r.language(user)))
	}
	return msg.ReplyToMessage.From, nil
}

func (r *Reactor) forgiveCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	target, err := r.replyTarget(ctx, msg, user)
	if target == nil {
		return err
	}
	if err := r.engine.ForgiveStrikes(ctx, chat.ID, target.ID); err != nil {
		return r.replyStoreError(ctx, msg, user, err)
	}
	return r.reply(ctx, msg, fmt.Sprintf(i18n.Get("Strikes reset for %s", r.language(user)), telegram.Mention(target)))
}

func (r *Reactor) listCommand(kind db.ListKind) commandFunc {
	return func(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
		target, err := r.replyTarget(ctx, msg, user)
		if target == nil {
			return err
		}
		if err := r.engine.SetList(ctx, chat.ID, target.ID, kind); err != nil {
			return r.replyStoreError(ctx, msg, user, err)
		}
		text := i18n.Get("%s added to the allow list", r.language(user))
		if kind == db.ListDeny {
			text = i18n.Get("%s added to the deny list", r.language(user))
		}
		return r.reply(ctx, msg, fmt.Sprintf(text, telegram.Mention(target)))
	}
}

func (r *Reactor) unlistCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	target, err := r.replyTarget(ctx, msg, user)
	if target == nil {
		return err
	}
	if err := r.engine.Unlist(ctx, chat.ID, target.ID); err != nil {
		return r.replyStoreError(ctx, msg, user, err)
	}
	return r.reply(ctx, msg, fmt.Sprintf(i18n.Get("%s removed from the lists", r.language(user)), telegram.Mention(target)))
}

func (r *Reactor) skipReasonCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	if msg.ReplyToMessage == nil {
		return r.reply(ctx, msg, i18n.Get("This command must be used as a reply to a message", r.language(user)))
	}
	d, ok := r.GetLastProcessingResult(chat.ID, msg.ReplyToMessage.MessageID)
	if !ok {
		return r.reply(ctx, msg, "No processing information available for this message")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Action: %s\nTier: %s\nScore: %d", d.Action, d.Tier, d.Score)
	if d.SkipReason != "" {
		fmt.Fprintf(&b, "\nSkipped: %s", d.SkipReason)
	}
	if len(d.AuditReasons) > 0 {
		fmt.Fprintf(&b, "\nReasons: %s", strings.Join(d.AuditReasons, ", "))
	}
	if d.NewStrikeCount > 0 {
		fmt.Fprintf(&b, "\nStrikes: %d", d.NewStrikeCount)
	}
	return r.reply(ctx, msg, b.String())
}
