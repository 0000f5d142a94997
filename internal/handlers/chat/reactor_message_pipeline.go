package handlers

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/strikeguard/internal/bot"
	sgerrors "github.com/iamwavecut/strikeguard/internal/errors"
	"github.com/iamwavecut/strikeguard/internal/infrastructure/telegram"
	"github.com/iamwavecut/strikeguard/internal/moderation"
	"github.com/iamwavecut/strikeguard/internal/moderation/features"
)

func (r *Reactor) handleMessage(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	entry := r.getLogEntry().WithFields(log.Fields{
		"chat_id": chat.ID,
		"user_id": user.ID,
	})

	if isLinkedChannelAutoForward(msg) || isSentOnBehalfOfChat(msg, chat) {
		entry.Trace("skipping message sent on behalf of a chat")
		return nil
	}

	d, err := r.engine.Evaluate(ctx, moderation.Message{
		ChatID:   chat.ID,
		UserID:   user.ID,
		Text:     bot.ExtractContentFromMessage(msg),
		Metadata: features.Metadata{URLs: bot.ExtractLinkTargets(msg)},
	})
	r.storeLastResult(chat.ID, msg.MessageID, d)
	if err != nil {
		if errors.Is(err, sgerrors.ErrGuardUnavailable) || errors.Is(err, sgerrors.ErrStoreUnavailable) {
			entry.WithError(err).Warn("message left unmoderated")
			return nil
		}
		return errors.WithMessage(err, "evaluate message")
	}
	if !d.IsAction() {
		return nil
	}

	target := telegram.Target{
		ChatID:    chat.ID,
		MessageID: msg.MessageID,
		ThreadID:  msg.MessageThreadID,
		User:      user,
		Language:  r.language(user),
	}
	if err := r.enforcer.Apply(ctx, target, d); err != nil {
		entry.WithError(err).WithField("audit_id", d.AuditID).Error("directive applied partially")
	}
	return nil
}

func isLinkedChannelAutoForward(msg *api.Message) bool {
	if msg == nil || !msg.IsAutomaticForward || msg.SenderChat == nil {
		return false
	}
	return msg.SenderChat.IsChannel()
}

// isSentOnBehalfOfChat matches anonymous administrators, who post as the group itself.
func isSentOnBehalfOfChat(msg *api.Message, chat *api.Chat) bool {
	if msg == nil || chat == nil || msg.SenderChat == nil {
		return false
	}
	return msg.SenderChat.ID == chat.ID
}
