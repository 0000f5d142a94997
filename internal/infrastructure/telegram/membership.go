package telegram

import (
	"context"

	"github.com/iamwavecut/strikeguard/internal/policy/permissions"
)

// MembershipChecker resolves chat administrators through getChatMember.
type MembershipChecker struct {
	ops *Operations
}

func NewMembershipChecker(ops *Operations) *MembershipChecker {
	return &MembershipChecker{ops: ops}
}

func (m *MembershipChecker) IsAdminOrOwner(ctx context.Context, chatID, userID int64) (bool, error) {
	member, err := m.ops.GetChatMember(ctx, chatID, userID)
	if err != nil {
		return false, err
	}
	return permissions.IsAdminOrOwner(&member), nil
}

// CanEnforce reports whether userID, normally the bot itself, may delete
// messages and restrict members in the chat.
func (m *MembershipChecker) CanEnforce(ctx context.Context, chatID, userID int64) (bool, error) {
	member, err := m.ops.GetChatMember(ctx, chatID, userID)
	if err != nil {
		return false, err
	}
	return permissions.CanEnforce(&member), nil
}
