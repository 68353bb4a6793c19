package command

import (
	"fmt"
	"strings"

	"github.com/justachat/jachat-services/globals"
	"github.com/justachat/jachat-services/moderation"
	"github.com/justachat/jachat-services/persistence"
	"github.com/justachat/jachat-services/types"
)

const roomPrivMessage = "You need room owner/admin privileges to use this command."
const noChannelMessage = "Cannot determine current channel."

func (d *Dispatcher) roombanCommand(args []string, ctx *types.CommandContext) *types.CommandResult {
	if len(args) == 0 {
		return failResult("Usage: /roomban <username> [reason]")
	}
	target := d.findUser(args[0])
	if target == nil {
		return notFound(args[0])
	}
	reason := reasonFrom(args[1:])
	if err := d.engine.RoomBan(ctx, target, reason); err != nil {
		switch err {
		case moderation.ErrNotAuthorized:
			return failResult(roomPrivMessage)
		case moderation.ErrNoChannel:
			return failResult(noChannelMessage)
		case moderation.ErrRoomOwner:
			return failResult("Cannot ban the room owner.")
		}
		globals.AppLogger.Error("roomban failed", "target", target.Id, "error", err)
		return failResult("Failed to ban user from room.")
	}
	return systemResult(fmt.Sprintf("%s has been banned from this room. Reason: %s", target.Nick, reason), true)
}

func (d *Dispatcher) roomunbanCommand(args []string, ctx *types.CommandContext) *types.CommandResult {
	if len(args) == 0 {
		return failResult("Usage: /roomunban <username>")
	}
	target := d.findUser(args[0])
	if target == nil {
		return notFound(args[0])
	}
	if err := d.engine.RoomUnban(ctx, target); err != nil {
		switch err {
		case moderation.ErrNotAuthorized:
			return failResult(roomPrivMessage)
		case moderation.ErrNoChannel:
			return failResult(noChannelMessage)
		case moderation.ErrRoomOwner:
			return failResult("The room owner is never room-banned.")
		}
		globals.AppLogger.Error("roomunban failed", "target", target.Id, "error", err)
		return failResult("Failed to unban user from room.")
	}
	return systemResult(fmt.Sprintf("%s has been unbanned from this room.", target.Nick), true)
}

func (d *Dispatcher) roommuteCommand(args []string, ctx *types.CommandContext) *types.CommandResult {
	if len(args) == 0 {
		return failResult("Usage: /roommute <username> [duration: 5m/30m/1h/1d]")
	}
	target := d.findUser(args[0])
	if target == nil {
		return notFound(args[0])
	}
	durationToken := ""
	if len(args) > 1 {
		durationToken = args[1]
	}
	expiresAt, err := d.engine.RoomMute(ctx, target, durationToken)
	if err != nil {
		switch err {
		case moderation.ErrNotAuthorized:
			return failResult(roomPrivMessage)
		case moderation.ErrNoChannel:
			return failResult(noChannelMessage)
		case moderation.ErrRoomOwner:
			return failResult("Cannot mute the room owner.")
		}
		globals.AppLogger.Error("roommute failed", "target", target.Id, "error", err)
		return failResult("Failed to mute user in room.")
	}
	durationText := " indefinitely"
	if expiresAt != nil {
		durationText = fmt.Sprintf(" for %s", durationToken)
	}
	return systemResult(fmt.Sprintf("%s has been muted in this room%s.", target.Nick, durationText), true)
}

func (d *Dispatcher) roomunmuteCommand(args []string, ctx *types.CommandContext) *types.CommandResult {
	if len(args) == 0 {
		return failResult("Usage: /roomunmute <username>")
	}
	target := d.findUser(args[0])
	if target == nil {
		return notFound(args[0])
	}
	if err := d.engine.RoomUnmute(ctx, target); err != nil {
		switch err {
		case moderation.ErrNotAuthorized:
			return failResult(roomPrivMessage)
		case moderation.ErrNoChannel:
			return failResult(noChannelMessage)
		case moderation.ErrRoomOwner:
			return failResult("The room owner is never room-muted.")
		}
		globals.AppLogger.Error("roomunmute failed", "target", target.Id, "error", err)
		return failResult("Failed to unmute user in room.")
	}
	return systemResult(fmt.Sprintf("%s has been unmuted in this room.", target.Nick), true)
}

func (d *Dispatcher) roomkickCommand(args []string, ctx *types.CommandContext) *types.CommandResult {
	if len(args) == 0 {
		return failResult("Usage: /roomkick <username>")
	}
	target := d.findUser(args[0])
	if target == nil {
		return notFound(args[0])
	}
	if err := d.engine.RoomKick(ctx, target); err != nil {
		switch err {
		case moderation.ErrNotAuthorized:
			return failResult(roomPrivMessage)
		case moderation.ErrNoChannel:
			return failResult(noChannelMessage)
		case moderation.ErrRoomOwner:
			return failResult("Cannot kick the room owner.")
		}
		globals.AppLogger.Error("roomkick failed", "target", target.Id, "error", err)
		return failResult("Failed to kick user from room.")
	}
	return systemResult(fmt.Sprintf("%s has been kicked from this room by %s.", target.Nick, ctx.Caller.Nick), true)
}

// roomadminCommand grants room admin via the room's stored password. The
// confirmation lists the unlocked commands, it is never broadcast.
func (d *Dispatcher) roomadminCommand(args []string, ctx *types.CommandContext) *types.CommandResult {
	if ctx.ChannelId == "" {
		return failResult(noChannelMessage)
	}
	if len(args) == 0 {
		return failResult("Usage: /roomadmin <password>")
	}
	password := strings.Join(args, " ")
	channel := types.Channel{Id: ctx.ChannelId}
	err := d.store.GetChannel(&channel)
	if err != nil && err != persistence.ErrNotFound {
		globals.AppLogger.Error("could not look up channel", "channel", ctx.ChannelId, "error", err)
		return failResult("Failed to grant room admin.")
	}
	if err == persistence.ErrNotFound || channel.AdminPassword == "" {
		return failResult("This room does not have an admin password set.")
	}
	if password != channel.AdminPassword {
		return failResult("Incorrect password.")
	}
	if err := d.registry.GrantRoomAdmin(ctx.ChannelId, ctx.Caller.Id); err != nil {
		globals.AppLogger.Error("could not grant room admin", "channel", ctx.ChannelId, "error", err)
		return failResult("Failed to grant room admin.")
	}
	return systemResult("You are now a room admin. You can use /roomban, /roommute, /roomkick commands.", false)
}
