package command

import (
	"fmt"
	"strings"

	"github.com/justachat/jachat-services/globals"
	"github.com/justachat/jachat-services/persistence"
	"github.com/justachat/jachat-services/policy"
	"github.com/justachat/jachat-services/types"
)

func (d *Dispatcher) helpCommand(args []string, ctx *types.CommandContext) *types.CommandResult {
	roomOwnerCommands := ""
	if ctx.IsRoomOwner || ctx.IsRoomAdmin {
		roomOwnerCommands = `

**Room Owner Commands:**
/roomban <username> [reason] - Ban user from this room
/roomunban <username> - Unban user from room
/roommute <username> [duration] - Mute user in room (e.g., 5m, 1h, 1d)
/roomunmute <username> - Unmute user in room
/roomkick <username> - Kick user from room`
	}
	modCommands := ""
	if policy.CanModerateGlobally(ctx) {
		modCommands = `

**Moderator Commands:**
/op <username> - Promote user to moderator
/deop <username> - Demote user to regular user
/kick <username> [reason] - Kick user from chat
/ban <username> [reason] - Ban user permanently
/unban <username> - Remove ban
/mute <username> [reason] - Mute user
/unmute <username> - Unmute user
/topic <new topic> - Set channel topic`
	}
	adminCommands := ""
	if ctx.IsOwner() || ctx.IsAdmin() {
		adminCommands = `

**Admin Commands:**
/admin <username> - Promote user to admin
/deadmin <username> - Demote admin to moderator
/kline <pattern> [duration] [reason] - Add global IP ban
/unkline <pattern> - Remove global IP ban
/klines - List global IP bans`
	}
	message := fmt.Sprintf(`**Commands:**
/help - Show this help
/me <action> - Send action message (e.g., /me waves)
/nick <newname> - Change your display name
/users - List online users
/whois <username> - View user info
/stats - View network statistics
/ghost - Toggle invisible mode
/ns register|identify|info|drop - Nickname registration
/cs register|info|access - Channel registration
/oper <username> <password> - Authenticate as operator
/roomadmin <password> - Become a room admin (if password is set)%s%s%s`,
		roomOwnerCommands, modCommands, adminCommands)
	return &types.CommandResult{Success: true, Message: message, IsSystemMessage: true}
}

func (d *Dispatcher) meCommand(args []string, ctx *types.CommandContext) *types.CommandResult {
	if len(args) == 0 {
		return failResult("Usage: /me <action>")
	}
	action := strings.Join(args, " ")
	return &types.CommandResult{
		Success:   true,
		Message:   fmt.Sprintf("* %s %s", ctx.Caller.Nick, action),
		Broadcast: true,
	}
}

func (d *Dispatcher) nickCommand(args []string, ctx *types.CommandContext) *types.CommandResult {
	if len(args) == 0 {
		return failResult("Usage: /nick <newname>")
	}
	newNick := strings.TrimSpace(args[0])
	if len(newNick) < 2 || len(newNick) > 20 {
		return failResult("Username must be 2-20 characters.")
	}
	existing, err := d.store.GetUserByNick(newNick)
	if err != nil && err != persistence.ErrNotFound {
		globals.AppLogger.Error("could not look up user", "nick", newNick, "error", err)
		return failResult("Failed to change username.")
	}
	if existing != nil && existing.Id != ctx.Caller.Id {
		return failResult("That username is already taken.")
	}
	user := *ctx.Caller
	user.Nick = newNick
	if err := d.store.StoreUser(user); err != nil {
		globals.AppLogger.Error("could not store user", "user", user.Id, "error", err)
		return failResult("Failed to change username.")
	}
	return systemResult(fmt.Sprintf("Your username has been changed to %s", newNick), false)
}

func (d *Dispatcher) usersCommand(args []string, ctx *types.CommandContext) *types.CommandResult {
	return &types.CommandResult{
		Success:         true,
		Message:         fmt.Sprintf("There are %d users online.", ctx.OnlineUsers),
		IsSystemMessage: true,
	}
}

func (d *Dispatcher) statsCommand(args []string, ctx *types.CommandContext) *types.CommandResult {
	snap, err := d.stats.Snapshot(ctx.OnlineUsers)
	if err != nil {
		globals.AppLogger.Error("could not aggregate network stats", "error", err)
		return failResult("Failed to fetch network stats.")
	}
	message := fmt.Sprintf("**Network Stats**\nUsers: %d (online: %d)\nChannels: %d\nMessages: %d\nUptime: %d hours",
		snap.TotalUsers, snap.OnlineUsers, snap.TotalChannels, snap.TotalMessages, snap.UptimeHours)
	return &types.CommandResult{Success: true, Message: message, IsSystemMessage: true}
}

func (d *Dispatcher) ghostCommand(args []string, ctx *types.CommandContext) *types.CommandResult {
	res := d.registry.ToggleGhost(ctx.Caller.Id)
	res.IsSystemMessage = true
	return res
}
