package bot

import (
	"context"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	UpdateTimeout = 5 * time.Minute
)

type (
	UpdateProcessor struct {
		updateHandlers []Handler
	}

	MessageType string
)

const (
	MessageTypeText      MessageType = "text"
	MessageTypeAnimation MessageType = "animation"
	MessageTypeAudio     MessageType = "audio"
	MessageTypeContact   MessageType = "contact"
	MessageTypeDocument  MessageType = "document"
	MessageTypeLocation  MessageType = "location"
	MessageTypePhoto     MessageType = "photo"
	MessageTypePoll      MessageType = "poll"
	MessageTypeSticker   MessageType = "sticker"
	MessageTypeVenue     MessageType = "venue"
	MessageTypeVideo     MessageType = "video"
	MessageTypeVoice     MessageType = "voice"
)

func NewUpdateProcessor(handlers ...Handler) *UpdateProcessor {
	return &UpdateProcessor{updateHandlers: handlers}
}

// Process runs the handler chain for one update. Updates older than
// UpdateTimeout are dropped so a restart does not replay a backlog of punishments.
func (up *UpdateProcessor) Process(ctx context.Context, u *api.Update) error {
	if u == nil {
		return errors.New("update is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var updateTime time.Time
	switch {
	case u.Message != nil:
		updateTime = time.Unix(int64(u.Message.Date), 0)
	case u.EditedMessage != nil:
		updateTime = time.Unix(int64(u.EditedMessage.Date), 0)
		if u.EditedMessage.EditDate != 0 {
			updateTime = time.Unix(int64(u.EditedMessage.EditDate), 0)
		}
	default:
		updateTime = time.Now()
	}
	if age := time.Since(updateTime); age > UpdateTimeout {
		log.WithFields(log.Fields{
			"update_time": updateTime,
			"age":         age,
		}).Debug("Skipping outdated update")
		return nil
	}

	chat := u.FromChat()
	user := u.SentFrom()

	for _, handler := range up.updateHandlers {
		if handler == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		proceed, err := handler.Handle(ctx, u, chat, user)
		if err != nil {
			return errors.WithMessage(err, "handling error")
		}
		if !proceed {
			log.Trace("not proceeding")
			return nil
		}
	}
	return nil
}

// GetUpdatesChans long-polls source until ctx is done or polling fails.
func GetUpdatesChans(ctx context.Context, source UpdatesSource, config api.UpdateConfig, buffer int) (<-chan api.Update, <-chan error) {
	ch := make(chan api.Update, buffer)
	chErr := make(chan error, 1)

	go func() {
		defer close(ch)
		defer close(chErr)
		for {
			if err := ctx.Err(); err != nil {
				chErr <- err
				return
			}
			updates, err := source.GetUpdates(config)
			if err != nil {
				chErr <- err
				return
			}
			for _, update := range updates {
				if update.UpdateID < config.Offset {
					continue
				}
				config.Offset = update.UpdateID + 1
				select {
				case ch <- update:
				case <-ctx.Done():
					chErr <- ctx.Err()
					return
				}
			}
		}
	}()

	return ch, chErr
}

func GetUN(user *api.User) string {
	if user == nil {
		return ""
	}
	userName := user.UserName
	if len(userName) == 0 {
		userName = strings.TrimSpace(user.FirstName + " " + user.LastName)
	}
	return userName
}

// ExtractContentFromMessage joins everything a spammer can put text into:
// the body, the caption, media titles and inline button labels.
func ExtractContentFromMessage(msg *api.Message) string {
	if msg == nil {
		return ""
	}
	parts := []string{msg.Text, msg.Caption}

	switch GetMessageType(msg) {
	case MessageTypeAudio:
		parts = append(parts, msg.Audio.Title)
	case MessageTypeContact:
		parts = append(parts, msg.Contact.FirstName+" "+msg.Contact.LastName)
	case MessageTypeDocument:
		parts = append(parts, msg.Document.FileName)
	case MessageTypePoll:
		parts = append(parts, msg.Poll.Question)
		for _, option := range msg.Poll.Options {
			parts = append(parts, option.Text)
		}
	case MessageTypeVenue:
		parts = append(parts, msg.Venue.Title, msg.Venue.Address)
	}

	if msg.ReplyMarkup != nil {
		for _, row := range msg.ReplyMarkup.InlineKeyboard {
			for _, button := range row {
				parts = append(parts, button.Text)
			}
		}
	}

	nonEmpty := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}

// ExtractLinkTargets collects URLs that are not visible in the text: hidden
// text_link targets and inline button URLs.
func ExtractLinkTargets(msg *api.Message) []string {
	if msg == nil {
		return nil
	}
	var urls []string
	for _, entities := range [][]api.MessageEntity{msg.Entities, msg.CaptionEntities} {
		for _, entity := range entities {
			if entity.Type == "text_link" && entity.URL != "" {
				urls = append(urls, entity.URL)
			}
		}
	}
	if msg.ReplyMarkup != nil {
		for _, row := range msg.ReplyMarkup.InlineKeyboard {
			for _, button := range row {
				if button.URL != nil && *button.URL != "" {
					urls = append(urls, *button.URL)
				}
			}
		}
	}
	return urls
}

func GetMessageType(msg *api.Message) MessageType {
	switch {
	case msg.Animation != nil:
		return MessageTypeAnimation
	case msg.Audio != nil:
		return MessageTypeAudio
	case msg.Contact != nil:
		return MessageTypeContact
	case msg.Document != nil:
		return MessageTypeDocument
	case msg.Location != nil:
		return MessageTypeLocation
	case msg.Photo != nil:
		return MessageTypePhoto
	case msg.Poll != nil:
		return MessageTypePoll
	case msg.Sticker != nil:
		return MessageTypeSticker
	case msg.Venue != nil:
		return MessageTypeVenue
	case msg.Video != nil:
		return MessageTypeVideo
	case msg.Voice != nil:
		return MessageTypeVoice
	default:
		return MessageTypeText
	}
}
