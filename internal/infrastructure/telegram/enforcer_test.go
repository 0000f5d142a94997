package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/strikeguard/internal/moderation"
	"github.com/iamwavecut/strikeguard/internal/moderation/escalation"
)

type fakeBot struct {
	mu       sync.Mutex
	requests []api.Chattable
	sent     []api.MessageConfig
	failBan  bool

	member    api.ChatMember
	memberErr error
}

func (f *fakeBot) Request(c api.Chattable) (*api.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	if _, ok := c.(api.BanChatMemberConfig); ok && f.failBan {
		return nil, errors.New("Bad Request: not enough rights to restrict/unrestrict chat member")
	}
	return &api.APIResponse{Ok: true}, nil
}

func (f *fakeBot) Send(c api.Chattable) (api.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := c.(api.MessageConfig)
	if !ok {
		return api.Message{}, errors.New("unexpected chattable")
	}
	f.sent = append(f.sent, msg)
	return api.Message{MessageID: 1000 + len(f.sent)}, nil
}

func (f *fakeBot) GetChatMember(api.GetChatMemberConfig) (api.ChatMember, error) {
	return f.member, f.memberErr
}

func newTestEnforcer(bot *fakeBot, cfg EnforcerConfig) (*Enforcer, *[]time.Duration) {
	e := NewEnforcer(NewOperations(bot), cfg)
	e.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	scheduled := &[]time.Duration{}
	e.after = func(d time.Duration, _ func()) { *scheduled = append(*scheduled, d) }
	return e, scheduled
}

var spammer = &api.User{ID: 42, UserName: "spammer"}

func TestApplyWarn(t *testing.T) {
	t.Parallel()

	bot := &fakeBot{}
	e, scheduled := newTestEnforcer(bot, EnforcerConfig{AdminLogChatID: -500, WarnMessageTTL: time.Minute, Notify: true})

	err := e.Apply(context.Background(), Target{ChatID: -100, MessageID: 7, User: spammer}, moderation.Directive{
		Action:         escalation.ActionDeleteAndWarn,
		Score:          7,
		NewStrikeCount: 1,
		AuditReasons:   []string{"links(3) +2", "shortener +3"},
		AuditID:        "abc",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if len(bot.requests) != 1 {
		t.Fatalf("expected only the delete request, got %d", len(bot.requests))
	}
	del, ok := bot.requests[0].(api.DeleteMessageConfig)
	if !ok || del.MessageID != 7 {
		t.Fatalf("unexpected request %#v", bot.requests[0])
	}

	if len(bot.sent) != 2 {
		t.Fatalf("expected notice and admin log, got %d messages", len(bot.sent))
	}
	if !strings.Contains(bot.sent[0].Text, "@spammer") || !strings.Contains(bot.sent[0].Text, "shortener +3") {
		t.Fatalf("unexpected notice %q", bot.sent[0].Text)
	}
	log := bot.sent[1]
	if log.ChatID != -500 {
		t.Fatalf("admin log sent to %d", log.ChatID)
	}
	for _, want := range []string{"[DELETE+WARN]", "Chat: -100", "@spammer (42)", "Score: 7 | links(3) +2, shortener +3", "Strikes: 1", "Audit: abc"} {
		if !strings.Contains(log.Text, want) {
			t.Fatalf("admin log %q misses %q", log.Text, want)
		}
	}
	if len(*scheduled) != 1 || (*scheduled)[0] != time.Minute {
		t.Fatalf("notice removal not scheduled: %v", *scheduled)
	}
}

func TestApplyMute(t *testing.T) {
	t.Parallel()

	bot := &fakeBot{}
	e, _ := newTestEnforcer(bot, EnforcerConfig{})

	err := e.Apply(context.Background(), Target{ChatID: -100, MessageID: 8, User: spammer}, moderation.Directive{
		Action:       escalation.ActionDeleteAndMute,
		MuteDuration: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(bot.requests) != 2 {
		t.Fatalf("expected delete and restrict, got %d requests", len(bot.requests))
	}
	restrict, ok := bot.requests[1].(api.RestrictChatMemberConfig)
	if !ok {
		t.Fatalf("unexpected request %#v", bot.requests[1])
	}
	want := time.Unix(1_700_000_000, 0).Add(24 * time.Hour).Unix()
	if restrict.UntilDate != want || restrict.UserID != 42 {
		t.Fatalf("restrict until %d for %d, want %d for 42", restrict.UntilDate, restrict.UserID, want)
	}
	if restrict.Permissions == nil || restrict.Permissions.CanSendMessages {
		t.Fatalf("mute must revoke sending")
	}
	if len(bot.sent) != 0 {
		t.Fatalf("notify disabled and no admin log configured, got %d messages", len(bot.sent))
	}
}

func TestApplyBanFailureStillLogs(t *testing.T) {
	t.Parallel()

	bot := &fakeBot{failBan: true}
	e, _ := newTestEnforcer(bot, EnforcerConfig{AdminLogChatID: -500})

	err := e.Apply(context.Background(), Target{ChatID: -100, MessageID: 9, User: spammer}, moderation.Directive{
		Action: escalation.ActionDeleteAndBan,
	})
	if err == nil || !strings.Contains(err.Error(), "not enough rights") {
		t.Fatalf("expected ban failure, got %v", err)
	}
	if len(bot.sent) != 1 || !strings.Contains(bot.sent[0].Text, "[DELETE+BAN]") {
		t.Fatalf("admin log must still be written: %+v", bot.sent)
	}
}

func TestApplyNoneDoesNothing(t *testing.T) {
	t.Parallel()

	bot := &fakeBot{}
	e, _ := newTestEnforcer(bot, EnforcerConfig{AdminLogChatID: -500, Notify: true})
	if err := e.Apply(context.Background(), Target{ChatID: -100, MessageID: 1, User: spammer}, moderation.Directive{Action: escalation.ActionNone}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(bot.requests)+len(bot.sent) != 0 {
		t.Fatalf("no telegram calls expected")
	}
}

func TestApplyHonorsCancelledContext(t *testing.T) {
	t.Parallel()

	bot := &fakeBot{}
	e, _ := newTestEnforcer(bot, EnforcerConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Apply(ctx, Target{ChatID: -100, MessageID: 1, User: spammer}, moderation.Directive{Action: escalation.ActionDeleteAndBan})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(bot.requests) != 0 {
		t.Fatalf("no request may be sent after cancellation")
	}
}

func TestMembershipChecker(t *testing.T) {
	t.Parallel()

	for status, want := range map[string]bool{"creator": true, "administrator": true, "member": false, "kicked": false} {
		bot := &fakeBot{member: api.ChatMember{Status: status}}
		got, err := NewMembershipChecker(NewOperations(bot)).IsAdminOrOwner(context.Background(), -100, 1)
		if err != nil || got != want {
			t.Fatalf("status %s: got %v, %v; want %v", status, got, err, want)
		}
	}

	bot := &fakeBot{memberErr: errors.New("chat not found")}
	if _, err := NewMembershipChecker(NewOperations(bot)).IsAdminOrOwner(context.Background(), -100, 1); err == nil {
		t.Fatalf("expected lookup error")
	}
	if _, err := NewMembershipChecker(NewOperations(bot)).CanEnforce(context.Background(), -100, 1); err == nil {
		t.Fatalf("expected lookup error")
	}
}

func TestMembershipCheckerCanEnforce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		member api.ChatMember
		want   bool
	}{
		{api.ChatMember{Status: "administrator", CanDeleteMessages: true, CanRestrictMembers: true}, true},
		{api.ChatMember{Status: "administrator", CanDeleteMessages: true}, false},
		{api.ChatMember{Status: "member"}, false},
	}
	for _, tt := range tests {
		got, err := NewMembershipChecker(NewOperations(&fakeBot{member: tt.member})).CanEnforce(context.Background(), -100, 999)
		if err != nil || got != tt.want {
			t.Fatalf("member %+v: got %v, %v; want %v", tt.member, got, err, tt.want)
		}
	}
}

func TestMention(t *testing.T) {
	t.Parallel()

	tests := []struct {
		user *api.User
		want string
	}{
		{nil, ""},
		{&api.User{ID: 1, UserName: "alice"}, "@alice"},
		{&api.User{ID: 2, FirstName: "Bob", LastName: "Smith"}, "Bob Smith"},
		{&api.User{ID: 3}, "ID:3"},
	}
	for _, tt := range tests {
		if got := Mention(tt.user); got != tt.want {
			t.Fatalf("Mention() = %q, want %q", got, tt.want)
		}
	}
}
