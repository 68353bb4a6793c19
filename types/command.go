package types

// CommandContext is the immutable per-invocation context a command handler
// receives. It is built once by the context builder and never persisted.
type CommandContext struct {
	Caller         *User
	Role           Role
	ChannelId      string // empty outside a room
	ChannelOwnerId string
	IsRoomOwner    bool
	IsRoomAdmin    bool
	OnlineUsers    int // ambient presence count supplied by the transport
}

func (c *CommandContext) IsOwner() bool {
	return c.Role == RoleOwner
}

func (c *CommandContext) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// CommandResult is the uniform contract every handler returns. A result with
// Broadcast set must be safe to show to every room participant.
type CommandResult struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	IsSystemMessage bool   `json:"is_system_message"`
	Broadcast       bool   `json:"broadcast"`
}
