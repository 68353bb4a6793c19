package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/justachat/jachat-services/globals"
	"github.com/justachat/jachat-services/persistence"
	"github.com/justachat/jachat-services/types"
)

const nsUsage = "Usage: /ns register|identify|info <nick>|drop"

// nickservCommand covers the nickname registration workflow. register,
// identify and drop operate on the caller's own identity, info is public.
func (d *Dispatcher) nickservCommand(args []string, ctx *types.CommandContext) *types.CommandResult {
	if len(args) == 0 {
		return failResult(nsUsage)
	}
	sub := strings.ToLower(args[0])
	switch sub {
	case "register":
		res := d.registry.RegisterNick(ctx.Caller.Id, ctx.Caller.Nick)
		res.IsSystemMessage = true
		return res
	case "identify":
		res := d.registry.IdentifyNick(ctx.Caller.Id)
		res.IsSystemMessage = true
		return res
	case "drop":
		res := d.registry.DropNick(ctx.Caller.Id)
		res.IsSystemMessage = true
		return res
	case "info":
		if len(args) < 2 {
			return failResult("Usage: /ns info <nick>")
		}
		reg, err := d.registry.NickInfo(args[1])
		if err == persistence.ErrNotFound {
			return failResult(fmt.Sprintf(`Nickname "%s" is not registered.`, args[1]))
		}
		if err != nil {
			globals.AppLogger.Error("could not look up nick registration", "nick", args[1], "error", err)
			return failResult("Failed to look up nickname.")
		}
		lastIdentified := "never"
		if reg.LastIdentified != nil {
			lastIdentified = reg.LastIdentified.Format(time.RFC1123)
		}
		message := fmt.Sprintf("**Nickname: %s**\nRegistered: %s\nLast identified: %s",
			reg.Nickname, reg.RegisteredAt.Format(time.RFC1123), lastIdentified)
		return &types.CommandResult{Success: true, Message: message, IsSystemMessage: true}
	}
	return failResult(nsUsage)
}
