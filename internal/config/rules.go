package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	sgerrors "github.com/iamwavecut/strikeguard/internal/errors"
)

const (
	DedupScopeChat = "chat"
	DedupScopeUser = "user"
)

type (
	// Rules is an immutable snapshot of the moderation tunables.
	// Never mutate a snapshot after it was handed to a RulesHolder.
	Rules struct {
		WarnThreshold       int `yaml:"warn_threshold"`
		HardActionThreshold int `yaml:"hard_action_threshold"`

		Points Points `yaml:"points"`

		SuspiciousTLDs []string `yaml:"suspicious_tlds"`
		Shorteners     []string `yaml:"shorteners"`
		InviteHosts    []string `yaml:"invite_hosts"`
		InvitePaths    []string `yaml:"invite_paths"`
		SpamKeywords   []string `yaml:"spam_keywords"`

		CombiningMarkRatio float64 `yaml:"combining_mark_ratio"`
		NonLatin           NonLatin `yaml:"non_latin"`

		StrikeExpiry time.Duration `yaml:"strike_expiry"`
		DedupTTL     time.Duration `yaml:"dedup_ttl"`
		DedupScope   string        `yaml:"dedup_scope"`
		MuteDuration time.Duration `yaml:"mute_duration"`
	}

	Points struct {
		LinkMinCount int `yaml:"link_min_count"`
		LinkBase     int `yaml:"link_base"`
		LinkMax      int `yaml:"link_max"`
		TLDEach      int `yaml:"tld_each"`
		TLDCap       int `yaml:"tld_cap"`
		Shortener    int `yaml:"shortener"`
		Invite       int `yaml:"invite"`
		Keyword      int `yaml:"keyword"`
		Unicode      int `yaml:"unicode"`
		NonLatin     int `yaml:"non_latin"`
		Strict       int `yaml:"strict"`
	}

	NonLatin struct {
		Enabled   bool    `yaml:"enabled"`
		Threshold float64 `yaml:"threshold"`
	}
)

func DefaultRules() *Rules {
	return &Rules{
		WarnThreshold:       4,
		HardActionThreshold: 8,
		Points: Points{
			LinkMinCount: 2,
			LinkBase:     2,
			LinkMax:      4,
			TLDEach:      2,
			TLDCap:       6,
			Shortener:    3,
			Invite:       4,
			Keyword:      5,
			Unicode:      3,
			NonLatin:     6,
			Strict:       1,
		},
		SuspiciousTLDs: []string{
			"ru", "icu", "xyz", "top", "monster", "tk", "ml", "ga", "cf", "gq",
			"work", "click", "link", "loan", "win", "bid",
		},
		Shorteners: []string{
			"bit.ly", "t.co", "tinyurl.com", "goo.gl", "ow.ly", "is.gd", "buff.ly", "adf.ly",
		},
		InviteHosts: []string{"t.me", "telegram.me", "telegram.dog"},
		InvitePaths: []string{"/joinchat/", "/+"},
		SpamKeywords: []string{
			"free crypto", "airdrop", "giveaway", "claim now",
			"free btc", "free eth", "free tokens",
			"verify your account", "verification team", "verify now", "urgent action required",
			"onlyfans", "xxx", "18+", "hot singles", "dm me",
			"click here", "limited time", "act now",
			"congratulations you won", "prize winner",
			"double your", "investment opportunity", "make money fast",
			"work from home", "no experience needed",
		},
		CombiningMarkRatio: 0.1,
		NonLatin: NonLatin{
			Enabled:   false,
			Threshold: 0.3,
		},
		StrikeExpiry: 7 * 24 * time.Hour,
		DedupTTL:     10 * time.Minute,
		DedupScope:   DedupScopeChat,
		MuteDuration: 24 * time.Hour,
	}
}

// Validate reports the first problem found in the snapshot, wrapped with ErrConfigInvalid.
func (r *Rules) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.Wrap(sgerrors.ErrConfigInvalid, fmt.Sprintf(format, args...))
	}
	switch {
	case r == nil:
		return invalid("nil rules")
	case r.WarnThreshold <= 0:
		return invalid("warn_threshold must be positive, got %d", r.WarnThreshold)
	case r.HardActionThreshold <= r.WarnThreshold:
		return invalid("hard_action_threshold %d must exceed warn_threshold %d", r.HardActionThreshold, r.WarnThreshold)
	case r.StrikeExpiry <= 0:
		return invalid("strike_expiry must be positive")
	case r.DedupTTL <= 0:
		return invalid("dedup_ttl must be positive")
	case r.MuteDuration <= 0:
		return invalid("mute_duration must be positive")
	case r.DedupScope != DedupScopeChat && r.DedupScope != DedupScopeUser:
		return invalid("unknown dedup_scope %q", r.DedupScope)
	case r.CombiningMarkRatio <= 0 || r.CombiningMarkRatio > 1:
		return invalid("combining_mark_ratio must be in (0, 1], got %v", r.CombiningMarkRatio)
	case r.NonLatin.Enabled && (r.NonLatin.Threshold <= 0 || r.NonLatin.Threshold > 1):
		return invalid("non_latin.threshold must be in (0, 1], got %v", r.NonLatin.Threshold)
	}

	p := r.Points
	for name, v := range map[string]int{
		"link_min_count": p.LinkMinCount,
		"link_base":      p.LinkBase,
		"link_max":       p.LinkMax,
		"tld_each":       p.TLDEach,
		"tld_cap":        p.TLDCap,
		"shortener":      p.Shortener,
		"invite":         p.Invite,
		"keyword":        p.Keyword,
		"unicode":        p.Unicode,
		"non_latin":      p.NonLatin,
		"strict":         p.Strict,
	} {
		if v < 0 {
			return invalid("points.%s must not be negative, got %d", name, v)
		}
	}
	if p.LinkMax < p.LinkBase {
		return invalid("points.link_max %d is below link_base %d", p.LinkMax, p.LinkBase)
	}
	if p.LinkMinCount < 1 {
		return invalid("points.link_min_count must be at least 1")
	}
	for _, kw := range r.SpamKeywords {
		if strings.TrimSpace(kw) == "" {
			return invalid("empty spam keyword")
		}
	}
	return nil
}

// ParseRules decodes a YAML document on top of the defaults, so a file only
// needs to carry the keys it overrides.
func ParseRules(data []byte) (*Rules, error) {
	rules := DefaultRules()
	if err := yaml.UnmarshalStrict(data, rules); err != nil {
		return nil, errors.Wrap(sgerrors.ErrConfigInvalid, err.Error())
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return rules, nil
}

func LoadRulesFile(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithMessage(err, "cant read rules file")
	}
	return ParseRules(data)
}

// RulesHolder publishes the current rules snapshot. Readers get the whole
// snapshot in one atomic load.
type RulesHolder struct {
	current atomic.Pointer[Rules]

	mu          sync.Mutex
	subscribers []func(*Rules)
}

func NewRulesHolder(initial *Rules) (*RulesHolder, error) {
	if initial == nil {
		initial = DefaultRules()
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	h := &RulesHolder{}
	h.current.Store(initial)
	return h, nil
}

func (h *RulesHolder) Load() *Rules {
	return h.current.Load()
}

// Store validates and publishes the snapshot. An invalid snapshot is rejected
// and the previous one stays in effect.
func (h *RulesHolder) Store(rules *Rules) error {
	if err := rules.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current.Store(rules)
	for _, fn := range h.subscribers {
		fn(rules)
	}
	return nil
}

// Subscribe registers fn and calls it right away with the current snapshot.
func (h *RulesHolder) Subscribe(fn func(*Rules)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers = append(h.subscribers, fn)
	fn(h.current.Load())
}
