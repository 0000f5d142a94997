package moderation

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/iamwavecut/strikeguard/internal/config"
	"github.com/iamwavecut/strikeguard/internal/db"
	sgerrors "github.com/iamwavecut/strikeguard/internal/errors"
	"github.com/iamwavecut/strikeguard/internal/moderation/dedup"
	"github.com/iamwavecut/strikeguard/internal/moderation/escalation"
	"github.com/iamwavecut/strikeguard/internal/moderation/features"
	"github.com/iamwavecut/strikeguard/internal/moderation/guard"
	"github.com/iamwavecut/strikeguard/internal/moderation/ledger"
	"github.com/iamwavecut/strikeguard/internal/moderation/scoring"
	"github.com/iamwavecut/strikeguard/internal/observability"
)

const (
	SkipPrivileged       = "privileged"
	SkipGuardUnavailable = "guard_unavailable"
	SkipAllowListed      = "allow_listed"
	SkipClean            = "clean"
	SkipDuplicate        = "duplicate"
	SkipStoreUnavailable = "store_unavailable"

	RuleDenyList = "deny_list"
)

type (
	Message struct {
		ChatID   int64
		UserID   int64
		Text     string
		Metadata features.Metadata
	}

	// Directive tells the caller what to enforce. Everything needed for the
	// moderation log is already filled in for a non-None action.
	Directive struct {
		Action         escalation.Action
		MuteDuration   time.Duration
		NewStrikeCount int
		Score          int
		Tier           scoring.Tier
		AuditReasons   []string
		AuditID        string
		Fingerprint    string
		SkipReason     string
	}

	snapshot struct {
		rules     *config.Rules
		extractor *features.Extractor
		policy    *escalation.Policy
	}
)

func (d Directive) IsAction() bool {
	return d.Action != "" && d.Action != escalation.ActionNone
}

// Engine evaluates messages one at a time and is safe for concurrent use.
// It keeps no per chat or per user state between calls; all of it lives in the store.
type Engine struct {
	store        db.Client
	guard        *guard.Guard
	ledger       *ledger.Ledger
	dedup        *dedup.Cache
	storeTimeout time.Duration

	current atomic.Pointer[snapshot]
}

func NewEngine(store db.Client, g *guard.Guard, rules *config.RulesHolder, storeTimeout time.Duration) *Engine {
	e := &Engine{
		store:        store,
		guard:        g,
		ledger:       ledger.New(store),
		dedup:        dedup.New(store),
		storeTimeout: storeTimeout,
	}
	rules.Subscribe(func(r *config.Rules) {
		e.current.Store(&snapshot{
			rules:     r,
			extractor: features.NewExtractor(r),
			policy:    escalation.NewPolicy(r.MuteDuration),
		})
	})
	return e
}

func (e *Engine) Rules() *config.Rules {
	return e.current.Load().rules
}

func (e *Engine) withStoreTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.storeTimeout)
}

func storeFailure(err error, op string) error {
	observability.RecordDependencyFailure("store")
	return errors.Wrap(sgerrors.ErrStoreUnavailable, op+": "+err.Error())
}

// Evaluate runs the whole pipeline for one message. Privileged senders,
// duplicates and clean messages yield ActionNone. On guard or store failure
// the directive is ActionNone and the error wraps ErrGuardUnavailable or
// ErrStoreUnavailable.
func (e *Engine) Evaluate(ctx context.Context, msg Message) (Directive, error) {
	started := time.Now()
	entry := log.WithField("object", "Engine").WithField("chat_id", msg.ChatID).WithField("user_id", msg.UserID)

	ctx, span := observability.Tracer().Start(ctx, "moderation.Evaluate")
	defer span.End()
	span.SetAttributes(attribute.Int64("chat_id", msg.ChatID), attribute.Int64("user_id", msg.UserID))

	d, err := e.evaluate(ctx, msg)
	if d.Action == "" {
		d.Action = escalation.ActionNone
	}

	span.SetAttributes(
		attribute.String("action", string(d.Action)),
		attribute.String("tier", d.Tier.String()),
		attribute.Int("score", d.Score),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		entry.WithError(err).Warn("evaluation degraded")
	}
	if d.SkipReason != "" {
		observability.RecordSuppressed(d.SkipReason)
	}
	observability.RecordEvaluation(string(d.Action), d.Tier.String(), time.Since(started))

	if d.IsAction() {
		d.AuditID = uuid.New()
		observability.Audit(observability.AuditEvent{
			AuditID:     d.AuditID,
			ChatID:      msg.ChatID,
			UserID:      msg.UserID,
			Action:      string(d.Action),
			Tier:        d.Tier.String(),
			Score:       d.Score,
			Strikes:     d.NewStrikeCount,
			Reasons:     d.AuditReasons,
			Fingerprint: d.Fingerprint,
		})
		entry.WithField("action", d.Action).WithField("score", d.Score).WithField("strikes", d.NewStrikeCount).Info("enforcement directive")
	} else {
		entry.WithField("skip", d.SkipReason).WithField("score", d.Score).Trace("no action")
	}
	return d, err
}

func (e *Engine) evaluate(ctx context.Context, msg Message) (Directive, error) {
	privileged, err := e.guard.IsPrivileged(ctx, msg.ChatID, msg.UserID)
	if err != nil {
		observability.RecordDependencyFailure("guard")
		return Directive{SkipReason: SkipGuardUnavailable}, err
	}
	if privileged {
		return Directive{SkipReason: SkipPrivileged}, nil
	}

	snap := e.current.Load()

	kind, err := e.listEntry(ctx, msg.ChatID, msg.UserID)
	if err != nil {
		return Directive{SkipReason: SkipStoreUnavailable}, storeFailure(err, "read list entry")
	}
	switch kind {
	case db.ListAllow:
		return Directive{SkipReason: SkipAllowListed}, nil
	case db.ListDeny:
		return e.banDenied(ctx, msg, snap)
	}

	f := snap.extractor.Extract(msg.Text, msg.Metadata)

	strict, err := e.strictMode(ctx, msg.ChatID)
	if err != nil {
		return Directive{SkipReason: SkipStoreUnavailable}, storeFailure(err, "read chat settings")
	}

	res := scoring.Score(f, strict, snap.rules)
	d := Directive{
		Score:        res.Score,
		Tier:         res.Tier,
		AuditReasons: reasonStrings(res.Reasons),
	}
	if res.Tier == scoring.TierClean {
		d.SkipReason = SkipClean
		return d, nil
	}

	d.Fingerprint = dedup.Fingerprint(msg.Text)
	first, err := e.markFingerprint(ctx, snap.rules, msg, d.Fingerprint)
	if err != nil {
		d.SkipReason = SkipStoreUnavailable
		return d, storeFailure(err, "mark fingerprint")
	}
	if !first {
		d.SkipReason = SkipDuplicate
		return d, nil
	}

	count, err := e.recordOffense(ctx, msg.ChatID, msg.UserID, snap.rules.StrikeExpiry)
	if err != nil {
		d.SkipReason = SkipStoreUnavailable
		return d, storeFailure(err, "record offense")
	}

	decision := snap.policy.Decide(res.Tier, count-1)
	d.Action = decision.Action
	d.MuteDuration = decision.MuteDuration
	d.NewStrikeCount = count
	return d, nil
}

func (e *Engine) banDenied(ctx context.Context, msg Message, snap *snapshot) (Directive, error) {
	d := Directive{
		Tier:         scoring.TierHardAction,
		AuditReasons: []string{RuleDenyList},
	}
	count, err := e.recordOffense(ctx, msg.ChatID, msg.UserID, snap.rules.StrikeExpiry)
	if err != nil {
		d.SkipReason = SkipStoreUnavailable
		return d, storeFailure(err, "record offense")
	}
	d.Action = escalation.ActionDeleteAndBan
	d.NewStrikeCount = count
	return d, nil
}

func (e *Engine) listEntry(ctx context.Context, chatID, userID int64) (db.ListKind, error) {
	ctx, cancel := e.withStoreTimeout(ctx)
	defer cancel()
	return e.store.GetListEntry(ctx, chatID, userID)
}

func (e *Engine) strictMode(ctx context.Context, chatID int64) (bool, error) {
	ctx, cancel := e.withStoreTimeout(ctx)
	defer cancel()
	settings, err := e.store.GetSettings(ctx, chatID)
	if err != nil {
		return false, err
	}
	return settings.StrictMode, nil
}

func (e *Engine) markFingerprint(ctx context.Context, rules *config.Rules, msg Message, fp string) (bool, error) {
	ctx, cancel := e.withStoreTimeout(ctx)
	defer cancel()
	return e.dedup.CheckAndMark(ctx, rules.DedupScope, msg.ChatID, msg.UserID, fp, rules.DedupTTL)
}

func (e *Engine) recordOffense(ctx context.Context, chatID, userID int64, expiry time.Duration) (int, error) {
	ctx, cancel := e.withStoreTimeout(ctx)
	defer cancel()
	return e.ledger.RecordOffense(ctx, chatID, userID, expiry)
}

func (e *Engine) Ping(ctx context.Context) error {
	ctx, cancel := e.withStoreTimeout(ctx)
	defer cancel()
	if err := e.store.Ping(ctx); err != nil {
		return storeFailure(err, "ping")
	}
	return nil
}

// ToggleStrictMode flips the chat flag and returns the new value. Callers
// must have checked the requester is a chat admin.
func (e *Engine) ToggleStrictMode(ctx context.Context, chatID int64) (bool, error) {
	ctx, cancel := e.withStoreTimeout(ctx)
	defer cancel()
	strict, err := e.store.ToggleStrictMode(ctx, chatID)
	if err != nil {
		return false, storeFailure(err, "toggle strict mode")
	}
	log.WithField("object", "Engine").WithField("chat_id", chatID).WithField("strict", strict).Info("strict mode toggled")
	return strict, nil
}

func (e *Engine) Settings(ctx context.Context, chatID int64) (*db.Settings, error) {
	ctx, cancel := e.withStoreTimeout(ctx)
	defer cancel()
	settings, err := e.store.GetSettings(ctx, chatID)
	if err != nil {
		return nil, storeFailure(err, "read chat settings")
	}
	return settings, nil
}

func (e *Engine) ActiveStrikes(ctx context.Context, chatID, userID int64) (int, error) {
	ctx, cancel := e.withStoreTimeout(ctx)
	defer cancel()
	count, err := e.ledger.ActiveCount(ctx, chatID, userID)
	if err != nil {
		return 0, storeFailure(err, "read strikes")
	}
	return count, nil
}

func (e *Engine) ForgiveStrikes(ctx context.Context, chatID, userID int64) error {
	ctx, cancel := e.withStoreTimeout(ctx)
	defer cancel()
	if err := e.ledger.Reset(ctx, chatID, userID); err != nil {
		return storeFailure(err, "reset strikes")
	}
	return nil
}

// SetList puts the user on the chat allow or deny list, replacing any previous entry.
func (e *Engine) SetList(ctx context.Context, chatID, userID int64, kind db.ListKind) error {
	if !kind.Valid() {
		return errors.Wrapf(sgerrors.ErrInvalidInput, "list kind %q", kind)
	}
	ctx, cancel := e.withStoreTimeout(ctx)
	defer cancel()
	if err := e.store.SetListEntry(ctx, chatID, userID, kind); err != nil {
		return storeFailure(err, "set list entry")
	}
	return nil
}

func (e *Engine) Unlist(ctx context.Context, chatID, userID int64) error {
	ctx, cancel := e.withStoreTimeout(ctx)
	defer cancel()
	if err := e.store.RemoveListEntry(ctx, chatID, userID); err != nil {
		return storeFailure(err, "remove list entry")
	}
	return nil
}

func reasonStrings(reasons []scoring.Reason) []string {
	if len(reasons) == 0 {
		return nil
	}
	out := make([]string, 0, len(reasons))
	for _, r := range reasons {
		out = append(out, r.String())
	}
	return out
}
