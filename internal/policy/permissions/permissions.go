package permissions

import api "github.com/OvyFlash/telegram-bot-api"

// IsAdminOrOwner is true for the chat creator and any administrator,
// regardless of the rights the administrator was granted.
func IsAdminOrOwner(member *api.ChatMember) bool {
	if member == nil {
		return false
	}
	return member.IsCreator() || member.IsAdministrator()
}

// CanEnforce reports whether the member may delete messages and restrict users.
func CanEnforce(member *api.ChatMember) bool {
	if member == nil {
		return false
	}
	if member.IsCreator() {
		return true
	}
	return member.IsAdministrator() && member.CanDeleteMessages && member.CanRestrictMembers
}
