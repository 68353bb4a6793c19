// Package policy holds the pure authorization decisions over the role
// hierarchy (owner > admin > moderator > user) and the room-scoped overlay
// (room owner / room admin). Nothing here touches the store or produces
// side effects, handlers combine these checks with their own messages.
package policy

import (
	"github.com/justachat/jachat-services/types"
)

// CanModerateGlobally reports whether the caller may use the network-wide
// moderation commands (kick, ban, mute and the role commands that require
// moderator rank).
func CanModerateGlobally(ctx *types.CommandContext) bool {
	return ctx.IsOwner() || ctx.IsAdmin() || ctx.Role == types.RoleModerator
}

// CanModerateRoom reports whether the caller may use the room-scoped
// moderation commands. Global moderators do not qualify, global admins and
// the owner do.
func CanModerateRoom(ctx *types.CommandContext) bool {
	return ctx.IsRoomOwner || ctx.IsRoomAdmin || ctx.IsOwner() || ctx.IsAdmin()
}

// CanManageKlines is stricter than general moderation, K-lines are
// owner/admin territory.
func CanManageKlines(ctx *types.CommandContext) bool {
	return ctx.IsOwner() || ctx.IsAdmin()
}

// CanTarget reports whether the caller may apply a moderation action (kick,
// ban) to a user currently holding targetRole. Owners are untouchable,
// admins may only be targeted by the owner.
func CanTarget(ctx *types.CommandContext, targetRole types.Role) bool {
	if targetRole.Rank() >= types.RoleAdmin.Rank() {
		// admins and the owner can only be outranked by the owner
		return ctx.Role.Rank() > targetRole.Rank()
	}
	return true
}

// CanChangeRole reports whether the caller may move a user from current to
// next. The owner role is a singleton and never reassigned by command.
func CanChangeRole(ctx *types.CommandContext, current, next types.Role) bool {
	if current == types.RoleOwner || next == types.RoleOwner {
		return false
	}
	if current == types.RoleAdmin && !ctx.IsOwner() {
		return false
	}
	switch next {
	case types.RoleAdmin:
		return ctx.IsOwner() || ctx.IsAdmin()
	case types.RoleModerator, types.RoleUser:
		return CanModerateGlobally(ctx)
	}
	return false
}
