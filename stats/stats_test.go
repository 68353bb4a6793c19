package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justachat/jachat-services/config"
	"github.com/justachat/jachat-services/persistence"
	"github.com/justachat/jachat-services/types"
)

func TestSnapshot(t *testing.T) {
	cfg := &config.Config{
		PersistenceConfig: config.PersistenceConfig{Type: "buntdb", DSN: ":memory:"},
	}
	store, err := persistence.NewPersister(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	agg := NewAggregator(store)

	// empty network
	snap, err := agg.Snapshot(0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.TotalUsers)
	assert.Equal(t, int64(0), snap.UptimeHours)

	require.NoError(t, store.StoreUser(types.User{Id: "u1", Nick: "a", CreatedAt: time.Now().Add(-49 * time.Hour)}))
	require.NoError(t, store.StoreUser(types.User{Id: "u2", Nick: "b", CreatedAt: time.Now()}))
	require.NoError(t, store.StoreChannel(types.Channel{Id: "c1", Name: "lobby"}))
	chat := types.NewEvent("c1", &types.Source{Origin: "services"}, "", types.EventTypeChat, nil)
	system := types.NewEvent("c1", &types.Source{Origin: "services"}, "", types.EventTypeSystem, nil)
	require.NoError(t, store.StoreEvents([]*types.Event{chat, system}))

	snap, err = agg.Snapshot(7)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.TotalUsers)
	assert.Equal(t, 7, snap.OnlineUsers)
	assert.Equal(t, int64(1), snap.TotalChannels)
	// only chat events count as messages
	assert.Equal(t, int64(1), snap.TotalMessages)
	assert.Equal(t, int64(49), snap.UptimeHours)
}
