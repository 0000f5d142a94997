package telegram

import (
	"context"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
)

// BotAPI is the part of *api.BotAPI the moderation layer talks to.
type BotAPI interface {
	Request(c api.Chattable) (*api.APIResponse, error)
	Send(c api.Chattable) (api.Message, error)
	GetChatMember(config api.GetChatMemberConfig) (api.ChatMember, error)
}

// Operations wraps the Telegram calls used for enforcement. Every call
// checks the context first because the bot client itself is not cancellable.
type Operations struct {
	bot BotAPI
}

func NewOperations(bot BotAPI) *Operations {
	return &Operations{bot: bot}
}

func (o *Operations) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := o.bot.Request(api.NewDeleteMessage(chatID, messageID)); err != nil {
		return errors.WithMessage(err, "cant delete message")
	}
	return nil
}

// RestrictUser revokes every send permission until the given moment.
func (o *Operations) RestrictUser(ctx context.Context, chatID, userID int64, until time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := o.bot.Request(api.RestrictChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{ChatID: chatID},
			UserID:     userID,
		},
		UntilDate:   until.Unix(),
		Permissions: &api.ChatPermissions{},
	})
	if err != nil {
		return errors.WithMessage(err, "cant restrict")
	}
	return nil
}

// BanUser bans without an expiry date and revokes the user's recent messages.
func (o *Operations) BanUser(ctx context.Context, chatID, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := o.bot.Request(api.BanChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{ChatID: chatID},
			UserID:     userID,
		},
		RevokeMessages: true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "not enough rights") {
			return errors.New("not enough rights to ban user")
		}
		return errors.WithMessage(err, "cant ban")
	}
	return nil
}

// SendText posts a plain message. replyTo and threadID are ignored when zero.
func (o *Operations) SendText(ctx context.Context, chatID int64, text string, replyTo, threadID int) (api.Message, error) {
	if err := ctx.Err(); err != nil {
		return api.Message{}, err
	}
	msg := api.NewMessage(chatID, text)
	msg.DisableNotification = true
	msg.LinkPreviewOptions.IsDisabled = true
	msg.MessageThreadID = threadID
	if replyTo != 0 {
		msg.ReplyParameters.MessageID = replyTo
		msg.ReplyParameters.ChatID = chatID
		msg.ReplyParameters.AllowSendingWithoutReply = true
	}
	sent, err := o.bot.Send(msg)
	if err != nil {
		return api.Message{}, errors.WithMessage(err, "cant send message")
	}
	return sent, nil
}

func (o *Operations) GetChatMember(ctx context.Context, chatID, userID int64) (api.ChatMember, error) {
	if err := ctx.Err(); err != nil {
		return api.ChatMember{}, err
	}
	member, err := o.bot.GetChatMember(api.GetChatMemberConfig{
		ChatConfigWithUser: api.ChatConfigWithUser{
			ChatConfig: api.ChatConfig{ChatID: chatID},
			UserID:     userID,
		},
	})
	if err != nil {
		return api.ChatMember{}, errors.WithMessage(err, "cant get chat member")
	}
	return member, nil
}
