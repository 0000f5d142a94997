package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"

	"github.com/iamwavecut/strikeguard/internal/db"
	sgerrors "github.com/iamwavecut/strikeguard/internal/errors"
	"github.com/iamwavecut/strikeguard/internal/infrastructure/telegram"
	"github.com/iamwavecut/strikeguard/internal/moderation"
	"github.com/iamwavecut/strikeguard/internal/moderation/escalation"
	"github.com/iamwavecut/strikeguard/internal/moderation/scoring"
)

const (
	testChatID = int64(-100)
	botID      = int64(999)
)

type fakeEngine struct {
	mu        sync.Mutex
	directive moderation.Directive
	err       error
	evaluated []moderation.Message

	strict   bool
	strikes  map[int64]int
	lists    map[int64]db.ListKind
	forgiven []int64
	pingErr  error
	storeErr error
}

func (f *fakeEngine) Evaluate(_ context.Context, msg moderation.Message) (moderation.Directive, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evaluated = append(f.evaluated, msg)
	return f.directive, f.err
}

func (f *fakeEngine) ToggleStrictMode(context.Context, int64) (bool, error) {
	if f.storeErr != nil {
		return false, f.storeErr
	}
	f.strict = !f.strict
	return f.strict, nil
}

func (f *fakeEngine) Settings(_ context.Context, chatID int64) (*db.Settings, error) {
	return &db.Settings{ID: chatID, StrictMode: f.strict}, nil
}

func (f *fakeEngine) ActiveStrikes(_ context.Context, _, userID int64) (int, error) {
	return f.strikes[userID], nil
}

func (f *fakeEngine) ForgiveStrikes(_ context.Context, _, userID int64) error {
	f.forgiven = append(f.forgiven, userID)
	return nil
}

func (f *fakeEngine) SetList(_ context.Context, _, userID int64, kind db.ListKind) error {
	if f.lists == nil {
		f.lists = map[int64]db.ListKind{}
	}
	f.lists[userID] = kind
	return nil
}

func (f *fakeEngine) Unlist(_ context.Context, _, userID int64) error {
	delete(f.lists, userID)
	return nil
}

func (f *fakeEngine) Ping(context.Context) error {
	return f.pingErr
}

type fakeEnforcer struct {
	targets    []telegram.Target
	directives []moderation.Directive
}

func (f *fakeEnforcer) Apply(_ context.Context, t telegram.Target, d moderation.Directive) error {
	f.targets = append(f.targets, t)
	f.directives = append(f.directives, d)
	return nil
}

type fakeMessenger struct {
	texts []string
}

func (f *fakeMessenger) SendText(_ context.Context, _ int64, text string, _, _ int) (api.Message, error) {
	f.texts = append(f.texts, text)
	return api.Message{}, nil
}

func (f *fakeMessenger) last() string {
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

type stubAdmins map[int64]bool

func (s stubAdmins) IsAdminOrOwner(_ context.Context, _, userID int64) (bool, error) {
	return s[userID], nil
}

func (s stubAdmins) CanEnforce(_ context.Context, _, userID int64) (bool, error) {
	return s[userID], nil
}

type fixture struct {
	reactor   *Reactor
	engine    *fakeEngine
	enforcer  *fakeEnforcer
	messenger *fakeMessenger
}

func newFixture() *fixture {
	f := &fixture{
		engine:    &fakeEngine{strikes: map[int64]int{}},
		enforcer:  &fakeEnforcer{},
		messenger: &fakeMessenger{},
	}
	f.reactor = NewReactor(f.engine, f.enforcer, f.messenger, stubAdmins{1: true, botID: true}, Config{DefaultLanguage: "en", BotID: botID})
	return f
}

func (f *fixture) handle(t *testing.T, raw string) {
	t.Helper()
	u := &api.Update{}
	if err := json.Unmarshal([]byte(raw), u); err != nil {
		t.Fatalf("decode update: %v", err)
	}
	if _, err := f.reactor.Handle(context.Background(), u, u.FromChat(), u.SentFrom()); err != nil {
		t.Fatalf("handle: %v", err)
	}
}

func messageJSON(messageID int, userID int64, text string, extra string) string {
	if extra != "" {
		extra = "," + extra
	}
	return fmt.Sprintf(`{"update_id": 1, "message": {
		"message_id": %d,
		"date": %d,
		"chat": {"id": %d, "type": "supergroup"},
		"from": {"id": %d, "is_bot": false, "first_name": "User", "language_code": "ru"},
		"text": %q%s
	}}`, messageID, time.Now().Unix(), testChatID, userID, text, extra)
}

func commandJSON(userID int64, command string, replyToUserID int64) string {
	extra := fmt.Sprintf(`"entities": [{"type": "bot_command", "offset": 0, "length": %d}]`, len(strings.Fields(command)[0]))
	if replyToUserID != 0 {
		extra += fmt.Sprintf(`, "reply_to_message": {
			"message_id": 50,
			"date": 0,
			"chat": {"id": %d, "type": "supergroup"},
			"from": {"id": %d, "is_bot": false, "first_name": "Target", "username": "target"},
			"text": "spam"
		}`, testChatID, replyToUserID)
	}
	return messageJSON(60, userID, command, extra)
}

func TestHandleMessageEnforcesDirective(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.engine.directive = moderation.Directive{Action: escalation.ActionDeleteAndWarn, Score: 7, Tier: scoring.TierWarn}

	f.handle(t, messageJSON(10, 42, "buy now", `"entities": [{"type": "text_link", "offset": 0, "length": 3, "url": "https://bit.ly/x"}]`))

	if len(f.engine.evaluated) != 1 {
		t.Fatalf("expected one evaluation, got %d", len(f.engine.evaluated))
	}
	got := f.engine.evaluated[0]
	if got.ChatID != testChatID || got.UserID != 42 || got.Text != "buy now" {
		t.Fatalf("unexpected evaluation input %+v", got)
	}
	if len(got.Metadata.URLs) != 1 || got.Metadata.URLs[0] != "https://bit.ly/x" {
		t.Fatalf("hidden link must reach the engine: %+v", got.Metadata)
	}
	if len(f.enforcer.targets) != 1 {
		t.Fatalf("expected directive to be enforced")
	}
	target := f.enforcer.targets[0]
	if target.MessageID != 10 || target.ChatID != testChatID || target.User.ID != 42 || target.Language != "ru" {
		t.Fatalf("unexpected target %+v", target)
	}
}

func TestHandleMessageWithoutActionSkipsEnforcer(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.engine.directive = moderation.Directive{Action: escalation.ActionNone, SkipReason: moderation.SkipClean}
	f.handle(t, messageJSON(10, 42, "hello", ""))
	if len(f.enforcer.targets) != 0 {
		t.Fatalf("clean message must not be enforced")
	}
}

func TestHandleMessageDegradedEngineIsNotAnError(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.engine.directive = moderation.Directive{Action: escalation.ActionNone, SkipReason: moderation.SkipStoreUnavailable}
	f.engine.err = errors.Wrap(sgerrors.ErrStoreUnavailable, "record offense: timeout")
	f.handle(t, messageJSON(10, 42, "spam", ""))
	if len(f.enforcer.targets) != 0 {
		t.Fatalf("nothing may be enforced on store failure")
	}
}

func TestHandleSkipsMessagesOnBehalfOfChats(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.handle(t, messageJSON(10, 777000, "channel post", `"is_automatic_forward": true, "sender_chat": {"id": -200, "type": "channel"}`))
	f.handle(t, messageJSON(11, 1087968824, "anonymous admin", fmt.Sprintf(`"sender_chat": {"id": %d, "type": "supergroup"}`, testChatID)))
	if len(f.engine.evaluated) != 0 {
		t.Fatalf("messages on behalf of chats must not be evaluated, got %d", len(f.engine.evaluated))
	}
}

func TestHandleSkipsPrivateChats(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.handle(t, fmt.Sprintf(`{"update_id": 1, "message": {
		"message_id": 1, "date": %d,
		"chat": {"id": 42, "type": "private"},
		"from": {"id": 42, "is_bot": false, "first_name": "User"},
		"text": "free crypto"
	}}`, time.Now().Unix()))
	if len(f.engine.evaluated) != 0 {
		t.Fatalf("private messages must not be evaluated")
	}

	f.handle(t, fmt.Sprintf(`{"update_id": 2, "message": {
		"message_id": 2, "date": %d,
		"chat": {"id": 42, "type": "private"},
		"from": {"id": 42, "is_bot": false, "first_name": "User", "language_code": "uk"},
		"text": "/status",
		"entities": [{"type": "bot_command", "offset": 0, "length": 7}]
	}}`, time.Now().Unix()))
	if f.messenger.last() != "Ця команда працює лише в групах" {
		t.Fatalf("unexpected reply %q", f.messenger.last())
	}
}

func TestHandleEvaluatesEditedMessages(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.handle(t, fmt.Sprintf(`{"update_id": 1, "edited_message": {
		"message_id": 3, "date": %d,
		"chat": {"id": %d, "type": "supergroup"},
		"from": {"id": 42, "is_bot": false, "first_name": "User"},
		"text": "now with a link https://t.me/+abc"
	}}`, time.Now().Unix(), testChatID))
	if len(f.engine.evaluated) != 1 {
		t.Fatalf("edited message must be evaluated")
	}
}

func TestToggleStrictRequiresAdmin(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.handle(t, commandJSON(42, "/togglestrict", 0))
	if f.engine.strict {
		t.Fatalf("non-admin must not toggle strict mode")
	}
	if f.messenger.last() != "Эта команда доступна только администраторам" {
		t.Fatalf("unexpected reply %q", f.messenger.last())
	}

	f.handle(t, commandJSON(1, "/togglestrict", 0))
	if !f.engine.strict {
		t.Fatalf("admin must toggle strict mode")
	}
	if !strings.Contains(f.messenger.last(), "Строгий режим включён") {
		t.Fatalf("unexpected reply %q", f.messenger.last())
	}
}

func TestToggleStrictReportsStoreFailure(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.engine.storeErr = errors.Wrap(sgerrors.ErrStoreUnavailable, "timeout")
	f.handle(t, commandJSON(1, "/togglestrict", 0))
	if f.messenger.last() != "Хранилище недоступно, попробуйте позже" {
		t.Fatalf("unexpected reply %q", f.messenger.last())
	}
}

func TestReplyCommands(t *testing.T) {
	t.Parallel()

	f := newFixture()

	f.handle(t, commandJSON(1, "/forgive", 0))
	if f.messenger.last() != "Эту команду нужно отправить ответом на сообщение" {
		t.Fatalf("unexpected reply %q", f.messenger.last())
	}

	f.handle(t, commandJSON(1, "/forgive", 55))
	if len(f.engine.forgiven) != 1 || f.engine.forgiven[0] != 55 {
		t.Fatalf("forgive must reset the replied user: %v", f.engine.forgiven)
	}

	f.handle(t, commandJSON(1, "/deny", 55))
	if f.engine.lists[55] != db.ListDeny {
		t.Fatalf("deny must list the replied user")
	}
	if !strings.Contains(f.messenger.last(), "@target") {
		t.Fatalf("reply must mention the target: %q", f.messenger.last())
	}

	f.handle(t, commandJSON(1, "/allow", 56))
	if f.engine.lists[56] != db.ListAllow {
		t.Fatalf("allow must list the replied user")
	}

	f.handle(t, commandJSON(1, "/unlist", 55))
	if _, ok := f.engine.lists[55]; ok {
		t.Fatalf("unlist must remove the entry")
	}

	f.handle(t, commandJSON(42, "/deny", 1))
	if _, ok := f.engine.lists[1]; ok {
		t.Fatalf("non-admin must not edit lists")
	}
}

func TestStatusCommand(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.engine.strict = true
	f.engine.strikes[42] = 2
	f.engine.pingErr = errors.New("down")

	f.handle(t, commandJSON(42, "/status", 0))
	reply := f.messenger.last()
	for _, want := range []string{"Бот работает", "Хранилище: ОШИБКА", "Строгий режим: ВКЛ", "Ваши нарушения: 2", "Права модерации: OK"} {
		if !strings.Contains(reply, want) {
			t.Fatalf("status %q misses %q", reply, want)
		}
	}
}

func TestStatusReportsMissingBotRights(t *testing.T) {
	t.Parallel()

	f := &fixture{
		engine:    &fakeEngine{strikes: map[int64]int{}},
		enforcer:  &fakeEnforcer{},
		messenger: &fakeMessenger{},
	}
	f.reactor = NewReactor(f.engine, f.enforcer, f.messenger, stubAdmins{1: true}, Config{DefaultLanguage: "en", BotID: botID})

	f.handle(t, commandJSON(42, "/status", 0))
	if !strings.Contains(f.messenger.last(), "Права модерации: НЕТ") {
		t.Fatalf("status must flag missing rights: %q", f.messenger.last())
	}
}

func TestSkipReasonCommand(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.engine.directive = moderation.Directive{Action: escalation.ActionNone, SkipReason: moderation.SkipDuplicate, Score: 9, Tier: scoring.TierHardAction}
	f.handle(t, messageJSON(50, 55, "spam", ""))

	f.handle(t, commandJSON(1, "/skipreason", 55))
	reply := f.messenger.last()
	if !strings.Contains(reply, "Skipped: duplicate") || !strings.Contains(reply, "Score: 9") {
		t.Fatalf("unexpected skip reason reply %q", reply)
	}
}

func TestIsLinkedChannelAutoForward(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"auto-forward-from-channel", `{"is_automatic_forward": true, "sender_chat": {"id": 1, "type": "channel"}}`, true},
		{"automatic-forward-without-sender-chat", `{"is_automatic_forward": true}`, false},
		{"sender-chat-is-not-channel", `{"is_automatic_forward": true, "sender_chat": {"id": 1, "type": "supergroup"}}`, false},
		{"manual-channel-message", `{"sender_chat": {"id": 1, "type": "channel"}}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg := &api.Message{}
			if err := json.Unmarshal([]byte(tt.raw), msg); err != nil {
				t.Fatalf("decode message: %v", err)
			}
			if got := isLinkedChannelAutoForward(msg); got != tt.want {
				t.Fatalf("isLinkedChannelAutoForward() = %v, want %v", got, tt.want)
			}
		})
	}
	if isLinkedChannelAutoForward(nil) {
		t.Fatalf("nil message is not a forward")
	}
}
