package command

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/justachat/jachat-services/globals"
	"github.com/justachat/jachat-services/moderation"
	"github.com/justachat/jachat-services/types"
)

// klineCommand adds a global IP ban. An optional duration token may follow
// the pattern, everything after it is the reason.
func (d *Dispatcher) klineCommand(args []string, ctx *types.CommandContext) *types.CommandResult {
	if len(args) == 0 {
		return failResult("Usage: /kline <pattern> [duration] [reason]")
	}
	pattern := args[0]
	duration := ""
	reasonArgs := args[1:]
	if len(args) > 1 && moderation.IsDurationToken(args[1]) {
		duration = args[1]
		reasonArgs = args[2:]
	}
	reason := reasonFrom(reasonArgs)
	expiresAt, err := d.engine.AddKline(ctx, pattern, reason, duration)
	if err != nil {
		if err == moderation.ErrNotAuthorized {
			return failResult("You need admin privileges to use this command.")
		}
		globals.AppLogger.Error("kline failed", "pattern", pattern, "error", err)
		return failResult("Failed to add K-line.")
	}
	message := fmt.Sprintf("K-line added for pattern: %s", pattern)
	if expiresAt != nil {
		message += fmt.Sprintf(" (expires %s)", expiresAt.Format(time.RFC1123))
	}
	return systemResult(message, false)
}

func (d *Dispatcher) unklineCommand(args []string, ctx *types.CommandContext) *types.CommandResult {
	if len(args) == 0 {
		return failResult("Usage: /unkline <pattern>")
	}
	pattern := args[0]
	if err := d.engine.RemoveKline(ctx, pattern); err != nil {
		if err == moderation.ErrNotAuthorized {
			return failResult("You need admin privileges to use this command.")
		}
		globals.AppLogger.Error("unkline failed", "pattern", pattern, "error", err)
		return failResult("Failed to remove K-line.")
	}
	return systemResult(fmt.Sprintf("K-line removed for pattern: %s", pattern), false)
}

func (d *Dispatcher) klinesCommand(args []string, ctx *types.CommandContext) *types.CommandResult {
	klines, err := d.engine.Klines(ctx)
	if err != nil {
		if err == moderation.ErrNotAuthorized {
			return failResult("You need admin privileges to use this command.")
		}
		globals.AppLogger.Error("could not list klines", "error", err)
		return failResult("Failed to list K-lines.")
	}
	if len(klines) == 0 {
		return systemResult("No K-lines set.", false)
	}
	sort.Slice(klines, func(i, j int) bool {
		return klines[i].CreatedAt.After(klines[j].CreatedAt)
	})
	lines := make([]string, 0, len(klines)+1)
	lines = append(lines, "**Active K-lines:**")
	now := time.Now()
	for _, kline := range klines {
		line := fmt.Sprintf("%s - %s", kline.IpPattern, kline.Reason)
		if kline.ExpiresAt != nil {
			if kline.Active(now) {
				line += fmt.Sprintf(" (expires %s)", kline.ExpiresAt.Format(time.RFC1123))
			} else {
				line += " (expired)"
			}
		}
		lines = append(lines, line)
	}
	return systemResult(strings.Join(lines, "\n"), false)
}
