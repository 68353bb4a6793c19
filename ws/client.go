package ws

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mitchellh/mapstructure"

	"github.com/justachat/jachat-services/globals"
	"github.com/justachat/jachat-services/types"
)

const (
	sendChannelSize = 1000

	mutedNotice = "You are muted. You can still use commands."
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan []byte

	Language string

	user *types.User

	doneChan chan struct{}

	// WaitGroup which keeps track of running read/write loops and write
	// access to Send. If the WaitGroup is done, it is safe to close the
	// channel (all loops are done and there are no more write operations)
	sync.WaitGroup
}

func NewClient(hub *Hub, conn *websocket.Conn, user *types.User, language string, doneChan chan struct{}) *Client {
	lang := language
	if len(lang) > 2 {
		lang = lang[0:2]
	}
	if len(lang) < 2 {
		lang = "en"
	}
	return &Client{
		hub:      hub,
		conn:     conn,
		Send:     make(chan []byte, sendChannelSize),
		user:     user,
		Language: lang,
		doneChan: doneChan,
	}
}

// SendEventHistory replays the buffered history to this client, applying
// each event's target filter.
func (c *Client) SendEventHistory(history []*types.Event, wg *sync.WaitGroup) {
	if wg != nil {
		defer wg.Done()
	}
	for _, event := range history {
		if !c.EvaluateFilterEvent(event) {
			continue
		}
		messageBytes, err := json.Marshal(types.WireEvent{Event: event})
		if err != nil {
			globals.AppLogger.Error("could not marshal event", "error", err)
			continue
		}
		c.hub.RLock()
		if _, ok := c.hub.clients[c]; ok {
			c.Send <- messageBytes
		}
		c.hub.RUnlock()
	}
}

// sendDirect delivers a payload to this client only, guarded by hub
// membership.
func (c *Client) sendDirect(payload []byte) {
	c.hub.RLock()
	if _, ok := c.hub.clients[c]; ok {
		c.Send <- payload
	}
	c.hub.RUnlock()
}

// refreshUser re-reads the caller from the store so role changes, nick
// changes and ghost toggles take effect on the next message.
func (c *Client) refreshUser() *types.User {
	user := types.User{Id: c.user.Id}
	if err := c.hub.store.GetUser(&user); err != nil {
		globals.AppLogger.Error("could not refresh user", "user", c.user.Id, "error", err)
		return c.user
	}
	c.user = &user
	return c.user
}

// handleCommand runs a command line through the dispatcher and turns the
// result into an event. Broadcast results go through the regular event path
// including history, everything else is addressed to the caller only.
func (c *Client) handleCommand(line string) {
	caller := c.refreshUser()
	ctx := c.hub.contexts.Build(caller, c.hub.channel.Id, c.hub.GetInfo().NoConnections)
	cmd, args, ok := c.hub.dispatcher.Parse(line)
	if !ok {
		return
	}
	res := c.hub.dispatcher.Dispatch(cmd, args, ctx)
	tags := map[string]string{
		"message": res.Message,
		"success": fmt.Sprintf("%t", res.Success),
	}
	if res.Broadcast {
		event := types.NewEvent(c.hub.channel.Id, &types.Source{Origin: OriginServices}, "", types.EventTypeSystem, tags)
		c.hub.History <- event
		c.hub.BroadcastEvent <- event
		return
	}
	targetFilter := fmt.Sprintf("Target.User.Id == %q", caller.Id)
	event := types.NewEvent(c.hub.channel.Id, &types.Source{Origin: OriginServices}, targetFilter, types.EventTypeSystem, tags)
	c.hub.BroadcastEvent <- event
}

// handleChat broadcasts a plain chat line. Muted users are told so and can
// still use commands, their chat lines are dropped.
func (c *Client) handleChat(text string) {
	muted, err := c.hub.engine.IsMuted(c.user.Id)
	if err != nil {
		globals.AppLogger.Error("could not check mute", "user", c.user.Id, "error", err)
	}
	if !muted {
		roomMuted, err := c.hub.engine.IsRoomMuted(c.hub.channel.Id, c.user.Id)
		if err != nil {
			globals.AppLogger.Error("could not check room mute", "user", c.user.Id, "error", err)
		}
		muted = roomMuted
	}
	if muted {
		event := types.NewEvent(c.hub.channel.Id, &types.Source{Origin: OriginServices}, "", types.EventTypeSystem, map[string]string{"message": mutedNotice})
		if data, err := json.Marshal(types.WireEvent{Event: event}); err == nil {
			c.sendDirect(data)
		}
		return
	}
	event := types.NewEvent(c.hub.channel.Id, &types.Source{User: c.user, Origin: "user"}, "", types.EventTypeChat, map[string]string{"message": text})
	c.hub.History <- event
	c.hub.BroadcastEvent <- event
}

// ReadLoop pumps messages from the websocket connection to the hub.
//
// The application runs ReadLoop in a per-connection goroutine. The
// application ensures that there is at most one reader on a connection by
// executing all reads from this goroutine.
func (c *Client) ReadLoop() {
	defer func() {
		c.conn.Close()
		close(c.doneChan)
		c.Done()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	message := &types.WebsocketMessage{}
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				globals.AppLogger.Info("ws closed unexpected", "error", err)
			}
			return
		}

		err = json.Unmarshal(raw, &message)
		if err != nil {
			globals.AppLogger.Error("could not unmarshal ws message", "error", err)
			return
		}

		switch message.Event {
		case types.MessageTypeChat:
			payloadMap := make(map[string]interface{})
			err = json.Unmarshal(message.Data, &payloadMap)
			if err != nil {
				globals.AppLogger.Error("could not unmarshal chat payload", "error", err)
				return
			}
			payload := types.ChatPayload{}
			err = mapstructure.WeakDecode(payloadMap, &payload)
			if err != nil {
				globals.AppLogger.Error("could not decode chat payload", "error", err)
				return
			}
			if payload.Message == "" {
				continue
			}
			if c.hub.dispatcher.IsCommand(payload.Message) {
				c.handleCommand(payload.Message)
			} else {
				c.handleChat(payload.Message)
			}
		}
	}
}

// WriteLoop pumps messages from the hub to the websocket connection.
//
// A goroutine running WriteLoop is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.Done()
	}()
	for {
		select {
		case <-c.doneChan:
			return
		default:
		}
		select {
		case message, ok := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.doneChan:
			return
		}
	}
}
