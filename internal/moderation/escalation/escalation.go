package escalation

import (
	"time"

	"github.com/iamwavecut/strikeguard/internal/moderation/scoring"
)

type Action string

const (
	ActionNone          Action = "none"
	ActionDeleteAndWarn Action = "delete_warn"
	ActionDeleteAndMute Action = "delete_mute"
	ActionDeleteAndBan  Action = "delete_ban"
)

type Decision struct {
	Action       Action
	MuteDuration time.Duration
	RecordStrike bool
}

type step struct {
	minStrikes int
	action     Action
}

// Policy maps a tier and the strike count before this offense onto an action.
type Policy struct {
	muteDuration time.Duration
	ladder       []step
}

func NewPolicy(muteDuration time.Duration) *Policy {
	return &Policy{
		muteDuration: muteDuration,
		ladder: []step{
			{minStrikes: 3, action: ActionDeleteAndBan},
			{minStrikes: 2, action: ActionDeleteAndMute},
			{minStrikes: 1, action: ActionDeleteAndWarn},
		},
	}
}

// Decide is pure. Warn-tier offenses share the strike counter with hard actions
// but never punish harder than a warning.
func (p *Policy) Decide(tier scoring.Tier, priorStrikes int) Decision {
	switch tier {
	case scoring.TierWarn:
		return Decision{Action: ActionDeleteAndWarn, RecordStrike: true}
	case scoring.TierHardAction:
		return p.forStrikes(priorStrikes + 1)
	default:
		return Decision{Action: ActionNone}
	}
}

func (p *Policy) forStrikes(strikes int) Decision {
	for _, s := range p.ladder {
		if strikes < s.minStrikes {
			continue
		}
		d := Decision{Action: s.action, RecordStrike: true}
		if s.action == ActionDeleteAndMute {
			d.MuteDuration = p.muteDuration
		}
		return d
	}
	return Decision{Action: ActionDeleteAndWarn, RecordStrike: true}
}
