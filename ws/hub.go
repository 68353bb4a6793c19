package ws

import (
	"container/ring"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/antonmedv/expr/vm"
	lru "github.com/hashicorp/golang-lru"
	"github.com/robfig/cron/v3"

	"github.com/justachat/jachat-services/command"
	"github.com/justachat/jachat-services/config"
	"github.com/justachat/jachat-services/globals"
	"github.com/justachat/jachat-services/moderation"
	"github.com/justachat/jachat-services/persistence"
	"github.com/justachat/jachat-services/stats"
	"github.com/justachat/jachat-services/types"
)

const (
	maxMessageSize       = 4096
	pongWait             = 2 * time.Minute
	pingPeriod           = time.Minute
	writeWait            = 10 * time.Second
	defaultHistorySize   = 20
	broadcastChannelSize = 1000
	historyChannelSize   = 1000
	filterCacheSize      = 256
)

// OriginServices marks events produced by the services layer itself rather
// than by a connected user.
const OriginServices = "services"

type Hub struct {
	// there is one hub per channel
	channel *types.Channel

	// channel owner, resolved once for the filter environment
	owner *types.User

	// Registered clients.
	clients map[*Client]struct{}

	// Broadcast raw payloads to all clients, no filtering.
	Broadcast chan []byte

	// BroadcastEvent delivers an event to every client whose filter
	// environment satisfies the event's target filter.
	BroadcastEvent chan *types.Event

	// Register a new client to the hub.
	Register chan *Client

	// Unregister a client from the hub.
	Unregister chan *Client

	// keep the event history in a ring buffer
	History                  chan *types.Event
	historyStart, historyEnd *ring.Ring

	// global configuration
	Cfg *config.Config

	store      persistence.Persister
	engine     *moderation.Engine
	dispatcher *command.Dispatcher
	contexts   *command.ContextBuilder
	aggregator *stats.Aggregator

	// compiled target filter programs, keyed by the filter expression
	progCache *lru.ARCCache

	// mutex for manipulating the clients
	sync.RWMutex
}

func NewHub(channel *types.Channel, cfg *config.Config, store persistence.Persister, engine *moderation.Engine, dispatcher *command.Dispatcher, contexts *command.ContextBuilder, aggregator *stats.Aggregator) *Hub {
	historySize := defaultHistorySize
	if cfg.HistoryConfig.HistorySize > 0 {
		historySize = cfg.HistoryConfig.HistorySize
	}
	history := ring.New(historySize)
	progCache, _ := lru.NewARC(filterCacheSize)
	hub := &Hub{
		channel:        channel,
		clients:        make(map[*Client]struct{}),
		Broadcast:      make(chan []byte, broadcastChannelSize),
		BroadcastEvent: make(chan *types.Event, broadcastChannelSize),
		Register:       make(chan *Client),
		Unregister:     make(chan *Client),
		History:        make(chan *types.Event, historyChannelSize),
		historyStart:   history,
		historyEnd:     history,
		Cfg:            cfg,
		store:          store,
		engine:         engine,
		dispatcher:     dispatcher,
		contexts:       contexts,
		aggregator:     aggregator,
		progCache:      progCache,
	}
	if channel.OwnerId != "" {
		owner := types.User{Id: channel.OwnerId}
		if err := store.GetUser(&owner); err == nil {
			hub.owner = &owner
		} else if err != persistence.ErrNotFound {
			globals.AppLogger.Error("could not resolve channel owner", "channel", channel.Id, "error", err)
		}
	}
	var t time.Time
	n := time.Now().Add(time.Minute)
	events, err := store.GetEventHistory(channel.Id, t, n, 0, historySize)
	if err != nil {
		globals.AppLogger.Error("could not load persisted events", "channel", channel.Id, "error", err)
	}
	// the store returns newest first, the ring replays oldest first
	for i := len(events) - 1; i >= 0; i-- {
		hub.historyEnd.Value = events[i]
		hub.historyEnd = hub.historyEnd.Next()
		if hub.historyEnd == hub.historyStart {
			hub.historyStart = hub.historyStart.Next()
		}
	}
	return hub
}

// ChannelId returns the id of the channel this hub serves.
func (h *Hub) ChannelId() string {
	return h.channel.Id
}

// NoClients returns the number of clients registered
func (h *Hub) NoClients() int {
	h.RLock()
	defer h.RUnlock()
	return len(h.clients)
}

// statsCronSpec returns the effective cron spec for this channel, the room
// override wins over the global setting.
func (h *Hub) statsCronSpec() string {
	spec := h.Cfg.StatsCron
	if rc := h.Cfg.RoomConfigFor(h.channel.Name); rc != nil && rc.StatsCron != "" {
		spec = rc.StatsCron
	}
	return spec
}

// announceStats broadcasts a network statistics summary into the channel.
func (h *Hub) announceStats() {
	snap, err := h.aggregator.Snapshot(h.GetInfo().NoConnections)
	if err != nil {
		globals.AppLogger.Error("could not aggregate network stats", "error", err)
		return
	}
	message := fmt.Sprintf("**Network Stats**\nUsers: %d (online: %d)\nChannels: %d\nMessages: %d\nUptime: %d hours",
		snap.TotalUsers, snap.OnlineUsers, snap.TotalChannels, snap.TotalMessages, snap.UptimeHours)
	event := types.NewEvent(h.channel.Id, &types.Source{Origin: OriginServices}, "", types.EventTypeSystem, map[string]string{"message": message})
	h.BroadcastEvent <- event
}

// Run is the main hub event loop handling register, unregister, history and
// broadcast events.
func (h *Hub) Run() {
	cronRunner := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if spec := h.statsCronSpec(); spec != "" {
		entryId, err := cronRunner.AddFunc(spec, h.announceStats)
		if err != nil {
			globals.AppLogger.Error("could not schedule stats announcement", "spec", spec, "error", err)
		} else {
			defer cronRunner.Remove(entryId)
		}
	}
	defer cronRunner.Stop()
	cronRunner.Start()
	for {
		select {
		case client := <-h.Register:
			h.Lock()
			h.clients[client] = struct{}{}
			h.Unlock()
			go h.SendInfo(h.GetInfo())

		case client := <-h.Unregister:
			go func() {
				h.RLock()
				if _, ok := h.clients[client]; ok {
					h.RUnlock()
					h.Lock()
					delete(h.clients, client)
					// the connection probably already is closed, just to make sure
					client.conn.Close()
					// wait for all loops and write operations to finish,
					// only then it is safe to close the send channel
					client.Wait()
					close(client.Send)
					h.Unlock()
					go h.SendInfo(h.GetInfo())
				} else {
					h.RUnlock()
				}
			}()

		case message := <-h.Broadcast:
			go func() {
				var wg sync.WaitGroup
				h.RLock()
				for client := range h.clients {
					wg.Add(1)
					client.Add(1)
					go func(c *Client) {
						defer wg.Done()
						defer c.Done()
						c.Send <- message
					}(client)
				}
				wg.Wait()
				h.RUnlock()
			}()

		case event := <-h.BroadcastEvent:
			var prog *vm.Program
			if event.TargetFilter != "" {
				var err error
				prog, err = h.compileFilter(event.TargetFilter)
				if err != nil {
					globals.AppLogger.Error("could not compile filter", "filter", event.TargetFilter, "error", err)
				}
			}
			go func() {
				var wg sync.WaitGroup
				h.RLock()
				for client := range h.clients {
					if !client.RunFilterEvent(event, prog) {
						continue
					}
					if data, err := json.Marshal(types.WireEvent{Event: event}); err == nil {
						wg.Add(1)
						client.Add(1)
						go func(c *Client) {
							defer wg.Done()
							defer c.Done()
							c.Send <- data
						}(client)
					}
				}
				wg.Wait()
				h.RUnlock()
			}()

		case event := <-h.History:
			h.historyEnd.Value = event
			h.historyEnd = h.historyEnd.Next()
			if h.historyEnd == h.historyStart {
				h.historyStart = h.historyStart.Next()
			}
			if err := h.store.StoreEvents([]*types.Event{event}); err != nil {
				globals.AppLogger.Error("could not persist event", "event", event.Id, "error", err)
			}
		}
	}
}

// GetInfo assembles the current presence information. Ghost-mode users are
// invisible, they appear in neither the count nor the listing.
func (h *Hub) GetInfo() types.InfoMessage {
	h.RLock()
	nicks := make([]string, 0, len(h.clients))
	for client := range h.clients {
		if client.user.GhostMode {
			continue
		}
		nicks = append(nicks, client.user.Nick)
	}
	h.RUnlock()
	sort.Strings(nicks)
	return types.InfoMessage{
		ChannelName:   h.channel.Name,
		NoConnections: len(nicks),
		Nicks:         nicks,
	}
}

// GetEventHistory returns the buffered event history, oldest first.
func (h *Hub) GetEventHistory() []*types.Event {
	history := make([]*types.Event, 0)
	current := h.historyStart
	for ; current != h.historyEnd; current = current.Next() {
		history = append(history, current.Value.(*types.Event))
	}
	return history
}

// SendInfo broadcasts the presence information to all clients.
func (h *Hub) SendInfo(info types.InfoMessage) {
	msg, err := json.Marshal(types.WireInfoMessage{InfoMessage: &info})
	if err != nil {
		globals.AppLogger.Error("could not marshal ws info", "error", err)
		return
	}
	h.Broadcast <- msg
}
