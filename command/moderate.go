package command

import (
	"fmt"
	"strings"

	"github.com/justachat/jachat-services/globals"
	"github.com/justachat/jachat-services/moderation"
	"github.com/justachat/jachat-services/persistence"
	"github.com/justachat/jachat-services/policy"
	"github.com/justachat/jachat-services/types"
)

const noReason = "No reason given"

func reasonFrom(args []string) string {
	reason := strings.Join(args, " ")
	if reason == "" {
		return noReason
	}
	return reason
}

func (d *Dispatcher) kickCommand(args []string, ctx *types.CommandContext) *types.CommandResult {
	if !policy.CanModerateGlobally(ctx) {
		return failResult("You need moderator privileges to use this command.")
	}
	if len(args) == 0 {
		return failResult("Usage: /kick <username> [reason]")
	}
	target := d.findUser(args[0])
	if target == nil {
		return notFound(args[0])
	}
	reason := reasonFrom(args[1:])
	if err := d.engine.Kick(ctx, target, reason); err != nil {
		if err == moderation.ErrHierarchy {
			return failResult("Cannot kick this user.")
		}
		globals.AppLogger.Error("kick failed", "target", target.Id, "error", err)
		return failResult("Failed to kick user.")
	}
	return systemResult(fmt.Sprintf("%s has been kicked by %s. Reason: %s", target.Nick, ctx.Caller.Nick, reason), true)
}

func (d *Dispatcher) banCommand(args []string, ctx *types.CommandContext) *types.CommandResult {
	if !policy.CanModerateGlobally(ctx) {
		return failResult("You need moderator privileges to use this command.")
	}
	if len(args) == 0 {
		return failResult("Usage: /ban <username> [reason]")
	}
	target := d.findUser(args[0])
	if target == nil {
		return notFound(args[0])
	}
	reason := reasonFrom(args[1:])
	if err := d.engine.Ban(ctx, target, reason); err != nil {
		if err == moderation.ErrHierarchy {
			return failResult("Cannot ban this user.")
		}
		globals.AppLogger.Error("ban failed", "target", target.Id, "error", err)
		return failResult("Failed to ban user.")
	}
	return systemResult(fmt.Sprintf("%s has been banned by %s. Reason: %s", target.Nick, ctx.Caller.Nick, reason), true)
}

func (d *Dispatcher) unbanCommand(args []string, ctx *types.CommandContext) *types.CommandResult {
	if !policy.CanModerateGlobally(ctx) {
		return failResult("You need moderator privileges to use this command.")
	}
	if len(args) == 0 {
		return failResult("Usage: /unban <username>")
	}
	target := d.findUser(args[0])
	if target == nil {
		return notFound(args[0])
	}
	if err := d.engine.Unban(ctx, target); err != nil {
		if err == moderation.ErrHierarchy {
			return failResult("Cannot unban this user.")
		}
		globals.AppLogger.Error("unban failed", "target", target.Id, "error", err)
		return failResult("Failed to unban user.")
	}
	return systemResult(fmt.Sprintf("%s has been unbanned.", target.Nick), true)
}

func (d *Dispatcher) muteCommand(args []string, ctx *types.CommandContext) *types.CommandResult {
	if !policy.CanModerateGlobally(ctx) {
		return failResult("You need moderator privileges to use this command.")
	}
	if len(args) == 0 {
		return failResult("Usage: /mute <username> [reason]")
	}
	target := d.findUser(args[0])
	if target == nil {
		return notFound(args[0])
	}
	reason := reasonFrom(args[1:])
	if err := d.engine.Mute(ctx, target, reason); err != nil {
		if err == moderation.ErrHierarchy {
			return failResult("Cannot mute this user.")
		}
		globals.AppLogger.Error("mute failed", "target", target.Id, "error", err)
		return failResult("Failed to mute user.")
	}
	return systemResult(fmt.Sprintf("%s has been muted. Reason: %s", target.Nick, reason), true)
}

func (d *Dispatcher) unmuteCommand(args []string, ctx *types.CommandContext) *types.CommandResult {
	if !policy.CanModerateGlobally(ctx) {
		return failResult("You need moderator privileges to use this command.")
	}
	if len(args) == 0 {
		return failResult("Usage: /unmute <username>")
	}
	target := d.findUser(args[0])
	if target == nil {
		return notFound(args[0])
	}
	if err := d.engine.Unmute(ctx, target); err != nil {
		if err == moderation.ErrHierarchy {
			return failResult("Cannot unmute this user.")
		}
		globals.AppLogger.Error("unmute failed", "target", target.Id, "error", err)
		return failResult("Failed to unmute user.")
	}
	return systemResult(fmt.Sprintf("%s has been unmuted.", target.Nick), true)
}

func (d *Dispatcher) whoisCommand(args []string, ctx *types.CommandContext) *types.CommandResult {
	if len(args) == 0 {
		return failResult("Usage: /whois <username>")
	}
	target := d.findUser(args[0])
	if target == nil {
		return notFound(args[0])
	}
	status := ""
	if banned, err := d.engine.IsBanned(target.Id); err == nil && banned {
		status += " [BANNED]"
	}
	if muted, err := d.engine.IsMuted(target.Id); err == nil && muted {
		status += " [MUTED]"
	}
	message := fmt.Sprintf("**User Info: %s**\nRole: %s%s", target.Nick, target.Role, status)
	return &types.CommandResult{Success: true, Message: message, IsSystemMessage: true}
}

func (d *Dispatcher) topicCommand(args []string, ctx *types.CommandContext) *types.CommandResult {
	if !policy.CanModerateGlobally(ctx) {
		return failResult("You need moderator privileges to use this command.")
	}
	if len(args) == 0 {
		return failResult("Usage: /topic <new topic>")
	}
	if ctx.ChannelId == "" {
		return failResult("Cannot determine current channel.")
	}
	newTopic := strings.Join(args, " ")
	if len(newTopic) > 200 {
		newTopic = newTopic[:200]
	}
	channel := types.Channel{Id: ctx.ChannelId}
	err := d.store.GetChannel(&channel)
	if err == persistence.ErrNotFound {
		return failResult("Cannot determine current channel.")
	}
	if err != nil {
		globals.AppLogger.Error("could not look up channel", "channel", ctx.ChannelId, "error", err)
		return failResult("Failed to update topic.")
	}
	channel.Topic = newTopic
	if err := d.store.StoreChannel(channel); err != nil {
		globals.AppLogger.Error("could not store channel", "channel", ctx.ChannelId, "error", err)
		return failResult("Failed to update topic.")
	}
	return systemResult(fmt.Sprintf("%s changed the topic to: %s", ctx.Caller.Nick, newTopic), true)
}
