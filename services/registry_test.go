package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justachat/jachat-services/config"
	"github.com/justachat/jachat-services/persistence"
	"github.com/justachat/jachat-services/types"
)

func newTestRegistry(t *testing.T) (*Registry, persistence.Persister) {
	t.Helper()
	cfg := &config.Config{
		PersistenceConfig: config.PersistenceConfig{Type: "buntdb", DSN: ":memory:"},
	}
	store, err := persistence.NewPersister(cfg)
	require.NoError(t, err)
	require.NotNil(t, store)
	t.Cleanup(func() { _ = store.Close() })
	return NewRegistry(store), store
}

func TestRegisterNick(t *testing.T) {
	registry, _ := newTestRegistry(t)

	res := registry.RegisterNick("u1", "Alice")
	assert.True(t, res.Success)
	assert.Equal(t, `Nickname "Alice" has been registered to you.`, res.Message)

	// same user, same nick
	res = registry.RegisterNick("u1", "Alice")
	assert.False(t, res.Success)
	assert.Equal(t, "You have already registered this nickname.", res.Message)

	// different user, same nick: must not overwrite the first registration
	res = registry.RegisterNick("u2", "alice")
	assert.False(t, res.Success)
	assert.Equal(t, "This nickname is already registered by another user.", res.Message)

	reg, err := registry.NickInfo("Alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", reg.UserId)
}

func TestDropAndReRegisterNick(t *testing.T) {
	registry, _ := newTestRegistry(t)

	require.True(t, registry.RegisterNick("u1", "Alice").Success)

	res := registry.DropNick("u1")
	assert.True(t, res.Success)
	assert.Equal(t, `Nickname "Alice" has been dropped.`, res.Message)

	// no residual ownership after the drop
	res = registry.RegisterNick("u2", "Alice")
	assert.True(t, res.Success)
}

func TestDropNickWithoutRegistration(t *testing.T) {
	registry, _ := newTestRegistry(t)

	res := registry.DropNick("u1")
	assert.False(t, res.Success)
	assert.Equal(t, "You have not registered a nickname.", res.Message)
}

func TestIdentifyNick(t *testing.T) {
	registry, _ := newTestRegistry(t)

	res := registry.IdentifyNick("u1")
	assert.False(t, res.Success)
	assert.Equal(t, "You have not registered a nickname. Use /ns register to register.", res.Message)

	require.True(t, registry.RegisterNick("u1", "Alice").Success)

	res = registry.IdentifyNick("u1")
	assert.True(t, res.Success)
	assert.Equal(t, `You have been identified as the owner of "Alice".`, res.Message)

	reg, err := registry.NickInfo("Alice")
	require.NoError(t, err)
	assert.NotNil(t, reg.LastIdentified)
}

func TestRegisterChannel(t *testing.T) {
	registry, store := newTestRegistry(t)
	require.NoError(t, store.StoreChannel(types.Channel{Id: "c1", Name: "lobby", OwnerId: "u1"}))

	res := registry.RegisterChannel("u2", "c1", "")
	assert.False(t, res.Success)
	assert.Equal(t, "Only the channel founder can register a channel.", res.Message)

	res = registry.RegisterChannel("u1", "missing", "")
	assert.False(t, res.Success)
	assert.Equal(t, "Channel not found.", res.Message)

	res = registry.RegisterChannel("u1", "c1", "the lobby")
	assert.True(t, res.Success)
	assert.Equal(t, "Channel #lobby has been registered.", res.Message)

	// only once
	res = registry.RegisterChannel("u1", "c1", "")
	assert.False(t, res.Success)
	assert.Equal(t, "This channel is already registered.", res.Message)

	info, err := registry.ChannelInfo("c1")
	require.NoError(t, err)
	assert.Equal(t, "lobby", info.ChannelName)
	assert.Equal(t, "the lobby", info.Description)
}

func TestSetChannelAccess(t *testing.T) {
	registry, store := newTestRegistry(t)

	res := registry.SetChannelAccess("c1", "u1", "u2", 300)
	assert.False(t, res.Success)
	assert.Equal(t, "This channel is not registered.", res.Message)

	require.NoError(t, store.StoreChannel(types.Channel{Id: "c1", Name: "lobby", OwnerId: "u1"}))
	require.True(t, registry.RegisterChannel("u1", "c1", "").Success)

	res = registry.SetChannelAccess("c1", "u1", "u2", 300)
	assert.True(t, res.Success)
	assert.Equal(t, "Access level set to 300.", res.Message)

	res = registry.SetChannelAccess("c1", "u1", "u3", 500)
	require.True(t, res.Success)

	entries, err := registry.ChannelAccessList("c1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "u3", entries[0].UserId)
	assert.Equal(t, "u2", entries[1].UserId)
}

func TestToggleGhost(t *testing.T) {
	registry, store := newTestRegistry(t)
	require.NoError(t, store.StoreUser(types.User{Id: "u1", Nick: "alice"}))

	res := registry.ToggleGhost("u1")
	assert.True(t, res.Success)
	assert.Equal(t, "Ghost mode enabled. You are now invisible to other users.", res.Message)

	res = registry.ToggleGhost("u1")
	assert.True(t, res.Success)
	assert.Equal(t, "Ghost mode disabled. You are now visible to other users.", res.Message)
}
