// Package command parses raw input lines and dispatches them to the
// governance handlers. The command table is data: adding a command means
// registering one more handler, dispatch logic never changes.
package command

import (
	"fmt"
	"strings"

	"github.com/justachat/jachat-services/audit"
	"github.com/justachat/jachat-services/config"
	"github.com/justachat/jachat-services/globals"
	"github.com/justachat/jachat-services/moderation"
	"github.com/justachat/jachat-services/persistence"
	"github.com/justachat/jachat-services/services"
	"github.com/justachat/jachat-services/stats"
	"github.com/justachat/jachat-services/types"
)

// Handler is one command implementation. Handlers capture store failures
// themselves and translate them into failed results, raw errors never reach
// the transport layer.
type Handler func(args []string, ctx *types.CommandContext) *types.CommandResult

type Dispatcher struct {
	prefix       string
	operPassword string
	store        persistence.Persister
	engine       *moderation.Engine
	registry     *services.Registry
	stats        *stats.Aggregator
	sink         audit.Sink
	handlers     map[string]Handler
}

func NewDispatcher(cfg *config.Config, store persistence.Persister, engine *moderation.Engine, registry *services.Registry, aggregator *stats.Aggregator, sink audit.Sink) *Dispatcher {
	prefix := cfg.CommandPrefix
	if prefix == "" {
		prefix = "/"
	}
	d := &Dispatcher{
		prefix:       prefix,
		operPassword: cfg.OperPassword,
		store:        store,
		engine:       engine,
		registry:     registry,
		stats:        aggregator,
		sink:         sink,
	}
	d.handlers = map[string]Handler{
		"help":  d.helpCommand,
		"me":    d.meCommand,
		"nick":  d.nickCommand,
		"users": d.usersCommand,
		"whois": d.whoisCommand,
		"topic": d.topicCommand,

		"op":      d.opCommand,
		"deop":    d.deopCommand,
		"admin":   d.adminCommand,
		"deadmin": d.deadminCommand,
		"oper":    d.operCommand,
		"deoper":  d.deoperCommand,

		"kick":   d.kickCommand,
		"ban":    d.banCommand,
		"unban":  d.unbanCommand,
		"mute":   d.muteCommand,
		"unmute": d.unmuteCommand,

		"kline":   d.klineCommand,
		"unkline": d.unklineCommand,
		"klines":  d.klinesCommand,

		"roomban":    d.roombanCommand,
		"roomunban":  d.roomunbanCommand,
		"roommute":   d.roommuteCommand,
		"roomunmute": d.roomunmuteCommand,
		"roomkick":   d.roomkickCommand,
		"roomadmin":  d.roomadminCommand,

		"ns":    d.nickservCommand,
		"cs":    d.chanservCommand,
		"stats": d.statsCommand,
		"ghost": d.ghostCommand,
	}
	return d
}

// IsCommand reports whether the input line is a command invocation.
func (d *Dispatcher) IsCommand(input string) bool {
	return strings.HasPrefix(input, d.prefix)
}

// Parse splits a raw line into a case-folded command token and its
// arguments. ok is false for non-command input, which the caller must treat
// as an ordinary chat message.
func (d *Dispatcher) Parse(input string) (string, []string, bool) {
	if !strings.HasPrefix(input, d.prefix) {
		return "", nil, false
	}
	parts := strings.Fields(input[len(d.prefix):])
	if len(parts) == 0 {
		return "", nil, false
	}
	return strings.ToLower(parts[0]), parts[1:], true
}

// Dispatch looks up and runs the handler. Unknown commands fail without
// broadcasting.
func (d *Dispatcher) Dispatch(cmd string, args []string, ctx *types.CommandContext) *types.CommandResult {
	handler, ok := d.handlers[cmd]
	if !ok {
		return &types.CommandResult{
			Success: false,
			Message: fmt.Sprintf("Unknown command: %s%s. Type %shelp for available commands.", d.prefix, cmd, d.prefix),
		}
	}
	return handler(args, ctx)
}

func failResult(message string) *types.CommandResult {
	return &types.CommandResult{Success: false, Message: message}
}

func systemResult(message string, broadcast bool) *types.CommandResult {
	return &types.CommandResult{Success: true, Message: message, IsSystemMessage: true, Broadcast: broadcast}
}

// findUser resolves a nickname case-insensitively. A store failure is
// reported as not-found after logging, the caller sees the usual message.
func (d *Dispatcher) findUser(nick string) *types.User {
	user, err := d.store.GetUserByNick(nick)
	if err != nil {
		if err != persistence.ErrNotFound {
			globals.AppLogger.Error("could not look up user", "nick", nick, "error", err)
		}
		return nil
	}
	return user
}

func notFound(nick string) *types.CommandResult {
	return failResult(fmt.Sprintf(`User "%s" not found.`, nick))
}
