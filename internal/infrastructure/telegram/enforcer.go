package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamwavecut/tool"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/strikeguard/internal/bot"
	"github.com/iamwavecut/strikeguard/internal/i18n"
	"github.com/iamwavecut/strikeguard/internal/moderation"
	"github.com/iamwavecut/strikeguard/internal/moderation/escalation"
	"github.com/iamwavecut/strikeguard/internal/observability"
)

const adminLogTemplate = `{{ .icon }} [{{ .action }}] Chat: {{ .chat_id }}
User: {{ .user }} ({{ .user_id }})
Score: {{ .score }} | {{ .reasons }}
Strikes: {{ .strikes }} | Audit: {{ .audit_id }}`

type (
	// Target is the offending message as seen by the transport.
	Target struct {
		ChatID    int64
		MessageID int
		ThreadID  int
		User      *api.User
		Language  string
	}

	EnforcerConfig struct {
		AdminLogChatID int64
		WarnMessageTTL time.Duration
		Notify         bool
	}
)

// Enforcer carries out directives against a chat. Failures of single steps
// are logged, counted and returned together; the remaining steps still run.
type Enforcer struct {
	ops    *Operations
	config EnforcerConfig
	now    func() time.Time
	after  func(d time.Duration, f func())
}

func NewEnforcer(ops *Operations, config EnforcerConfig) *Enforcer {
	return &Enforcer{
		ops:    ops,
		config: config,
		now:    time.Now,
		after: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

func (e *Enforcer) getLogEntry() *log.Entry {
	return log.WithField("object", "Enforcer")
}

func (e *Enforcer) Apply(ctx context.Context, t Target, d moderation.Directive) error {
	if !d.IsAction() {
		return nil
	}
	entry := e.getLogEntry().WithFields(log.Fields{
		"chat_id":  t.ChatID,
		"action":   d.Action,
		"audit_id": d.AuditID,
	})

	var errs []error
	fail := func(step string, err error) {
		observability.RecordEnforcementFailure(step)
		entry.WithError(err).WithField("step", step).Error("enforcement step failed")
		errs = append(errs, err)
	}

	if t.MessageID != 0 {
		if err := e.ops.DeleteMessage(ctx, t.ChatID, t.MessageID); err != nil {
			fail("delete", err)
		}
	}

	userID := int64(0)
	if t.User != nil {
		userID = t.User.ID
	}
	mention := Mention(t.User)

	var notice string
	switch d.Action {
	case escalation.ActionDeleteAndWarn:
		notice = fmt.Sprintf(i18n.Get("%s, your message was removed as spam. Reason: %s", t.Language), mention, strings.Join(d.AuditReasons, ", "))
	case escalation.ActionDeleteAndMute:
		if err := e.ops.RestrictUser(ctx, t.ChatID, userID, e.now().Add(d.MuteDuration)); err != nil {
			fail("mute", err)
		}
		notice = fmt.Sprintf(i18n.Get("%s is muted for %s for repeated spam.", t.Language), mention, d.MuteDuration)
	case escalation.ActionDeleteAndBan:
		if err := e.ops.BanUser(ctx, t.ChatID, userID); err != nil {
			fail("ban", err)
		}
		notice = fmt.Sprintf(i18n.Get("%s is banned for repeated spam.", t.Language), mention)
	}

	if e.config.Notify && notice != "" {
		sent, err := e.ops.SendText(ctx, t.ChatID, notice, 0, t.ThreadID)
		if err != nil {
			fail("notify", err)
		} else if e.config.WarnMessageTTL > 0 {
			e.after(e.config.WarnMessageTTL, func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := e.ops.DeleteMessage(ctx, t.ChatID, sent.MessageID); err != nil {
					entry.WithError(err).Debug("cant remove notice")
				}
			})
		}
	}

	if err := e.logToAdmins(ctx, t, d); err != nil {
		fail("admin_log", err)
	}
	return errors.Join(errs...)
}

func (e *Enforcer) logToAdmins(ctx context.Context, t Target, d moderation.Directive) error {
	if e.config.AdminLogChatID == 0 {
		return nil
	}
	userID := int64(0)
	if t.User != nil {
		userID = t.User.ID
	}
	text := tool.ExecTemplate(adminLogTemplate, map[string]any{
		"icon":     actionIcon(d.Action),
		"action":   actionLabel(d.Action),
		"chat_id":  t.ChatID,
		"user":     Mention(t.User),
		"user_id":  userID,
		"score":    d.Score,
		"reasons":  strings.Join(d.AuditReasons, ", "),
		"strikes":  d.NewStrikeCount,
		"audit_id": d.AuditID,
	})
	_, err := e.ops.SendText(ctx, e.config.AdminLogChatID, text, 0, 0)
	return err
}

// NotifyStartup posts a startup line to the admin log chat, if one is configured.
func (e *Enforcer) NotifyStartup(ctx context.Context, backend string) error {
	if e.config.AdminLogChatID == 0 {
		return nil
	}
	text := tool.ExecTemplate(`Bot started
Store: {{ .backend }}
Time: {{ .time }}`, map[string]any{
		"backend": backend,
		"time":    e.now().UTC().Format("2006-01-02 15:04:05 UTC"),
	})
	_, err := e.ops.SendText(ctx, e.config.AdminLogChatID, text, 0, 0)
	return err
}

func actionLabel(a escalation.Action) string {
	switch a {
	case escalation.ActionDeleteAndWarn:
		return "DELETE+WARN"
	case escalation.ActionDeleteAndMute:
		return "DELETE+MUTE"
	case escalation.ActionDeleteAndBan:
		return "DELETE+BAN"
	}
	return strings.ToUpper(string(a))
}

func actionIcon(a escalation.Action) string {
	if a == escalation.ActionDeleteAndWarn {
		return "🟡"
	}
	return "🔴"
}

// Mention renders @username when there is one and the full name otherwise.
func Mention(user *api.User) string {
	if user == nil {
		return ""
	}
	name := bot.GetUN(user)
	switch {
	case user.UserName != "":
		return "@" + name
	case name == "":
		return fmt.Sprintf("ID:%d", user.ID)
	}
	return name
}
