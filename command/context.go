package command

import (
	"github.com/justachat/jachat-services/globals"
	"github.com/justachat/jachat-services/persistence"
	"github.com/justachat/jachat-services/types"
)

// ContextBuilder assembles the per-invocation command context from the
// store. The context is a snapshot, handlers never re-resolve roles or room
// flags mid-command.
type ContextBuilder struct {
	store persistence.Persister
}

func NewContextBuilder(store persistence.Persister) *ContextBuilder {
	return &ContextBuilder{store: store}
}

// Build resolves the caller's role plus the room overlay for channelId
// (which may be empty for out-of-room invocations). Lookup failures on the
// room overlay degrade to "no room privileges" rather than failing the
// command.
func (b *ContextBuilder) Build(caller *types.User, channelId string, onlineUsers int) *types.CommandContext {
	ctx := &types.CommandContext{
		Caller:      caller,
		Role:        types.ParseRole(string(caller.Role)),
		ChannelId:   channelId,
		OnlineUsers: onlineUsers,
	}
	if channelId == "" {
		return ctx
	}
	channel := types.Channel{Id: channelId}
	if err := b.store.GetChannel(&channel); err == nil {
		ctx.ChannelOwnerId = channel.OwnerId
		ctx.IsRoomOwner = channel.OwnerId == caller.Id
	} else if err != persistence.ErrNotFound {
		globals.AppLogger.Error("could not look up channel", "channel", channelId, "error", err)
	}
	isRoomAdmin, err := b.store.IsRoomAdmin(channelId, caller.Id)
	if err != nil {
		globals.AppLogger.Error("could not look up room admin grant", "channel", channelId, "error", err)
	}
	ctx.IsRoomAdmin = isRoomAdmin
	return ctx
}
