package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Wire event names.
const (
	EventTypeChat    = "chat"
	EventTypeSystem  = "system" // moderation notices, command confirmations
	EventTypeInfo    = "info"   // room/presence info
	EventTypeCommand = "command"
)

// Source identifies who produced an event, either a user or the server
// itself (Origin "services").
type Source struct {
	User   *User  `json:"user"`
	Origin string `json:"origin"`
}

// Event is the unit the transport layer broadcasts and persists. The
// TargetFilter expression restricts delivery per client; an empty filter
// means "everyone in the room".
type Event struct {
	Id           string        `json:"id"`
	ChannelId    string        `json:"channel_id"`
	Source       *Source       `json:"source"`
	Name         string        `json:"name"`
	TargetFilter string        `json:"target_filter"`
	Tags         JSONStringMap `json:"tags"`
	Created      time.Time     `json:"created"`
	History      bool          `json:"history"`
}

func NewEvent(channelId string, source *Source, targetFilter, name string, tags map[string]string) *Event {
	if tags == nil {
		tags = make(map[string]string)
	}
	return &Event{
		Id:           uuid.NewString(),
		ChannelId:    channelId,
		Source:       source,
		Name:         name,
		TargetFilter: targetFilter,
		Tags:         tags,
		Created:      time.Now(),
	}
}

// WireEvent is the envelope sent over the websocket.
type WireEvent struct {
	Event *Event `json:"event"`
}

// MessageTypeChat is the only inbound websocket message type. Commands
// arrive as chat messages starting with the command prefix.
const MessageTypeChat = "message"

// WebsocketMessage is the inbound envelope. Data is decoded according to
// the Event discriminator.
type WebsocketMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ChatPayload is the decoded Data of a MessageTypeChat message.
type ChatPayload struct {
	Message string `json:"message" mapstructure:"message"`
}

// InfoMessage carries room presence information.
type InfoMessage struct {
	ChannelName   string   `json:"channel_name"`
	NoConnections int      `json:"no_connections"`
	Nicks         []string `json:"nicks"` // ghost-mode users excluded
}

type WireInfoMessage struct {
	InfoMessage *InfoMessage `json:"info"`
}
