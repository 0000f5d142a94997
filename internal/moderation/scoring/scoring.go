package scoring

import (
	"fmt"

	"github.com/iamwavecut/strikeguard/internal/config"
	"github.com/iamwavecut/strikeguard/internal/moderation/features"
)

type Tier int

const (
	TierClean Tier = iota
	TierWarn
	TierHardAction
)

func (t Tier) String() string {
	switch t {
	case TierClean:
		return "clean"
	case TierWarn:
		return "warn"
	case TierHardAction:
		return "hard_action"
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

const (
	RuleLinks     = "links"
	RuleTLD       = "suspicious_tld"
	RuleShortener = "shortener"
	RuleInvite    = "invite_link"
	RuleKeywords  = "spam_keywords"
	RuleUnicode   = "unicode_trick"
	RuleNonLatin  = "non_latin"
	RuleStrict    = "strict_mode"
)

type (
	Reason struct {
		Rule   string
		Points int
		Detail string
	}

	Result struct {
		Score   int
		Reasons []Reason
		Tier    Tier
	}
)

func (r Reason) String() string {
	if r.Detail == "" {
		return fmt.Sprintf("%s +%d", r.Rule, r.Points)
	}
	return fmt.Sprintf("%s(%s) +%d", r.Rule, r.Detail, r.Points)
}

// Score is a pure function of its inputs. Reasons keep the rule evaluation order.
func Score(f features.Features, strict bool, rules *config.Rules) Result {
	p := rules.Points
	res := Result{}
	add := func(rule string, points int, detail string) {
		if points <= 0 {
			return
		}
		res.Score += points
		res.Reasons = append(res.Reasons, Reason{Rule: rule, Points: points, Detail: detail})
	}

	if f.LinkCount >= p.LinkMinCount {
		add(RuleLinks, clamp(f.LinkCount-1, p.LinkBase, p.LinkMax), fmt.Sprintf("%d", f.LinkCount))
	}
	if f.SuspiciousTLDCount > 0 {
		add(RuleTLD, min(f.SuspiciousTLDCount*p.TLDEach, p.TLDCap), fmt.Sprintf("%d", f.SuspiciousTLDCount))
	}
	if f.HasShortener {
		add(RuleShortener, p.Shortener, "")
	}
	if f.HasInviteLink {
		add(RuleInvite, p.Invite, "")
	}
	if len(f.KeywordHits) > 0 {
		add(RuleKeywords, p.Keyword, f.KeywordHits[0])
	}
	if f.HasUnicodeTrick {
		add(RuleUnicode, p.Unicode, f.UnicodeTrick)
	}
	if rules.NonLatin.Enabled && f.NonLatinRatio >= rules.NonLatin.Threshold {
		add(RuleNonLatin, p.NonLatin, fmt.Sprintf("%.2f", f.NonLatinRatio))
	}
	if strict && res.Score > 0 {
		add(RuleStrict, p.Strict, "")
	}

	res.Tier = TierFor(res.Score, rules)
	return res
}

// TierFor maps a score onto a tier. Threshold values belong to the higher tier.
func TierFor(score int, rules *config.Rules) Tier {
	switch {
	case score >= rules.HardActionThreshold:
		return TierHardAction
	case score >= rules.WarnThreshold:
		return TierWarn
	default:
		return TierClean
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
