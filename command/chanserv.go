package command

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/justachat/jachat-services/globals"
	"github.com/justachat/jachat-services/persistence"
	"github.com/justachat/jachat-services/types"
)

const csUsage = "Usage: /cs register [description]|info|access list|access add <user> <level>"

func (d *Dispatcher) chanservCommand(args []string, ctx *types.CommandContext) *types.CommandResult {
	if len(args) == 0 {
		return failResult(csUsage)
	}
	if ctx.ChannelId == "" {
		return failResult(noChannelMessage)
	}
	sub := strings.ToLower(args[0])
	switch sub {
	case "register":
		description := strings.Join(args[1:], " ")
		res := d.registry.RegisterChannel(ctx.Caller.Id, ctx.ChannelId, description)
		res.IsSystemMessage = true
		return res
	case "info":
		return d.channelInfoResult(ctx.ChannelId)
	case "access":
		return d.channelAccessResult(args[1:], ctx)
	}
	return failResult(csUsage)
}

func (d *Dispatcher) channelInfoResult(channelId string) *types.CommandResult {
	info, err := d.registry.ChannelInfo(channelId)
	if err == persistence.ErrNotFound {
		return failResult("This channel is not registered.")
	}
	if err != nil {
		globals.AppLogger.Error("could not look up channel registration", "channel", channelId, "error", err)
		return failResult("Failed to look up channel.")
	}
	description := info.Description
	if description == "" {
		description = "(none)"
	}
	message := fmt.Sprintf("**Channel Info: #%s**\nFounder: %s\nRegistered: %s\nDescription: %s",
		info.ChannelName, info.FounderNick, info.RegisteredAt.Format(time.RFC1123), description)
	return &types.CommandResult{Success: true, Message: message, IsSystemMessage: true}
}

// channelAccessResult handles "access list" and "access add". Modifying the
// list requires the founder or a global admin, the registry layer itself
// does not re-check the granter.
func (d *Dispatcher) channelAccessResult(args []string, ctx *types.CommandContext) *types.CommandResult {
	if len(args) == 0 {
		return failResult(csUsage)
	}
	switch strings.ToLower(args[0]) {
	case "list":
		entries, err := d.registry.ChannelAccessList(ctx.ChannelId)
		if err != nil {
			globals.AppLogger.Error("could not list channel access", "channel", ctx.ChannelId, "error", err)
			return failResult("Failed to list channel access.")
		}
		if len(entries) == 0 {
			return systemResult("The access list is empty.", false)
		}
		lines := make([]string, 0, len(entries)+1)
		lines = append(lines, "**Access list for this channel:**")
		for _, entry := range entries {
			lines = append(lines, fmt.Sprintf("%3d - %s (granted by %s)",
				entry.AccessLevel, d.nickFor(entry.UserId), d.nickFor(entry.GrantedBy)))
		}
		return &types.CommandResult{Success: true, Message: strings.Join(lines, "\n"), IsSystemMessage: true}
	case "add":
		if len(args) < 3 {
			return failResult("Usage: /cs access add <user> <level>")
		}
		reg, err := d.store.GetChannelRegistration(ctx.ChannelId)
		if err == persistence.ErrNotFound {
			return failResult("This channel is not registered.")
		}
		if err != nil {
			globals.AppLogger.Error("could not look up channel registration", "channel", ctx.ChannelId, "error", err)
			return failResult("Failed to set access level.")
		}
		if reg.FounderId != ctx.Caller.Id && !ctx.IsOwner() && !ctx.IsAdmin() {
			return failResult("You do not have permission to modify the access list.")
		}
		target := d.findUser(args[1])
		if target == nil {
			return notFound(args[1])
		}
		level, err := strconv.Atoi(args[2])
		if err != nil || level < 0 || level > 500 {
			return failResult("Access level must be between 0 and 500.")
		}
		res := d.registry.SetChannelAccess(ctx.ChannelId, ctx.Caller.Id, target.Id, level)
		res.IsSystemMessage = true
		return res
	}
	return failResult(csUsage)
}

// nickFor resolves a user id for display, falling back to "Unknown".
func (d *Dispatcher) nickFor(userId string) string {
	user := types.User{Id: userId}
	if err := d.store.GetUser(&user); err != nil {
		return "Unknown"
	}
	return user.Nick
}
