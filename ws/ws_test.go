package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justachat/jachat-services/config"
	"github.com/justachat/jachat-services/persistence"
	"github.com/justachat/jachat-services/types"
)

func newTestHub(t *testing.T) (*Hub, persistence.Persister) {
	t.Helper()
	cfg := &config.Config{
		PersistenceConfig: config.PersistenceConfig{Type: "buntdb", DSN: ":memory:"},
	}
	store, err := persistence.NewBuntPersister(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	channel := types.Channel{Id: "lobby", Name: "lobby", OwnerId: "owner-1"}
	require.NoError(t, store.StoreChannel(channel))
	require.NoError(t, store.StoreUser(types.User{Id: "owner-1", Nick: "boss", Role: types.RoleOwner}))
	hub := NewHub(&channel, cfg, store, nil, nil, nil, nil)
	return hub, store
}

func testClient(hub *Hub, user *types.User) *Client {
	client := NewClient(hub, nil, user, "en", make(chan struct{}))
	hub.Lock()
	hub.clients[client] = struct{}{}
	hub.Unlock()
	return client
}

func TestEvaluateFilterEvent(t *testing.T) {
	hub, _ := newTestHub(t)
	alice := testClient(hub, &types.User{Id: "alice", Nick: "alice", Role: types.RoleUser})
	bob := testClient(hub, &types.User{Id: "bob", Nick: "bob", Role: types.RoleUser})

	everyone := types.NewEvent("lobby", &types.Source{Origin: OriginServices}, "", types.EventTypeSystem, map[string]string{"message": "hi"})
	assert.True(t, alice.EvaluateFilterEvent(everyone))
	assert.True(t, bob.EvaluateFilterEvent(everyone))

	aliceOnly := types.NewEvent("lobby", &types.Source{Origin: OriginServices}, `Target.User.Id == "alice"`, types.EventTypeSystem, map[string]string{"message": "just you"})
	assert.True(t, alice.EvaluateFilterEvent(aliceOnly))
	assert.False(t, bob.EvaluateFilterEvent(aliceOnly))
}

func TestFilterEnvExposesRoomAndSource(t *testing.T) {
	hub, _ := newTestHub(t)
	client := testClient(hub, &types.User{Id: "alice", Nick: "alice", Role: types.RoleUser})

	sender := &types.User{Id: "mod-1", Nick: "mod", Role: types.RoleModerator, LastOnline: time.Now()}
	event := types.NewEvent("lobby", &types.Source{User: sender, Origin: "user"},
		`Source.User.Role == "moderator" && Room.Owner.Nick == "boss"`, types.EventTypeChat, nil)
	assert.True(t, client.EvaluateFilterEvent(event))
}

func TestBrokenFilterMatchesNoOne(t *testing.T) {
	hub, _ := newTestHub(t)
	client := testClient(hub, &types.User{Id: "alice", Nick: "alice"})

	event := types.NewEvent("lobby", &types.Source{Origin: OriginServices}, `Target.User.`, types.EventTypeSystem, nil)
	assert.False(t, client.EvaluateFilterEvent(event))
}

func TestCompileFilterCaches(t *testing.T) {
	hub, _ := newTestHub(t)
	prog, err := hub.compileFilter(`Target.User.Id == "x"`)
	require.NoError(t, err)
	again, err := hub.compileFilter(`Target.User.Id == "x"`)
	require.NoError(t, err)
	assert.Same(t, prog, again)
}

func TestGetInfoExcludesGhosts(t *testing.T) {
	hub, _ := newTestHub(t)
	testClient(hub, &types.User{Id: "alice", Nick: "alice"})
	testClient(hub, &types.User{Id: "ghost", Nick: "ghost", GhostMode: true})

	info := hub.GetInfo()
	assert.Equal(t, 1, info.NoConnections)
	assert.Equal(t, []string{"alice"}, info.Nicks)
}

func TestHistoryPreload(t *testing.T) {
	cfg := &config.Config{
		PersistenceConfig: config.PersistenceConfig{Type: "buntdb", DSN: ":memory:"},
		HistoryConfig:     config.HistoryConfig{HistorySize: 10},
	}
	store, err := persistence.NewBuntPersister(cfg)
	require.NoError(t, err)
	defer store.Close()
	channel := types.Channel{Id: "lobby", Name: "lobby"}
	require.NoError(t, store.StoreChannel(channel))
	now := time.Now()
	events := []*types.Event{
		types.NewEvent("lobby", &types.Source{Origin: OriginServices}, "", types.EventTypeChat, map[string]string{"message": "one"}),
		types.NewEvent("lobby", &types.Source{Origin: OriginServices}, "", types.EventTypeChat, map[string]string{"message": "two"}),
		types.NewEvent("lobby", &types.Source{Origin: OriginServices}, "", types.EventTypeChat, map[string]string{"message": "three"}),
	}
	for i, event := range events {
		event.Created = now.Add(time.Duration(i-3) * time.Minute)
	}
	require.NoError(t, store.StoreEvents(events))

	// the store hands back newest first, clients must see oldest first
	hub := NewHub(&channel, cfg, store, nil, nil, nil, nil)
	history := hub.GetEventHistory()
	require.Len(t, history, 3)
	assert.Equal(t, "one", history[0].Tags["message"])
	assert.Equal(t, "two", history[1].Tags["message"])
	assert.Equal(t, "three", history[2].Tags["message"])
}
