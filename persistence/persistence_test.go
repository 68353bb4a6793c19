package persistence

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justachat/jachat-services/config"
	"github.com/justachat/jachat-services/types"
)

func newTestStore(t *testing.T) Persister {
	t.Helper()
	cfg := &config.Config{
		PersistenceConfig: config.PersistenceConfig{Type: "buntdb", DSN: ":memory:"},
	}
	store, err := NewPersister(cfg)
	require.NoError(t, err)
	require.NotNil(t, store)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestUserRoundTrip(t *testing.T) {
	store := newTestStore(t)

	user := types.User{Id: "u1", Nick: "Alice", Role: types.RoleUser, CreatedAt: time.Now()}
	require.NoError(t, store.StoreUser(user))

	got := types.User{Id: "u1"}
	require.NoError(t, store.GetUser(&got))
	assert.Equal(t, "Alice", got.Nick)

	byNick, err := store.GetUserByNick("alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", byNick.Id)

	_, err = store.GetUserByNick("nobody")
	assert.Equal(t, ErrNotFound, err)

	require.NoError(t, store.SetUserRole("u1", types.RoleModerator))
	got = types.User{Id: "u1"}
	require.NoError(t, store.GetUser(&got))
	assert.Equal(t, types.RoleModerator, got.Role)
}

func TestToggleGhostMode(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.StoreUser(types.User{Id: "u1", Nick: "alice"}))

	on, err := store.ToggleGhostMode("u1")
	require.NoError(t, err)
	assert.True(t, on)

	off, err := store.ToggleGhostMode("u1")
	require.NoError(t, err)
	assert.False(t, off)

	_, err = store.ToggleGhostMode("missing")
	assert.Equal(t, ErrNotFound, err)
}

func TestBanUpsertAndDelete(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpsertBan(types.Ban{UserId: "u1", SetBy: "mod", Reason: "spamming"}))
	// a second ban for the same user replaces the first
	require.NoError(t, store.UpsertBan(types.Ban{UserId: "u1", SetBy: "admin", Reason: "flooding"}))

	ban, err := store.GetBan("u1")
	require.NoError(t, err)
	assert.Equal(t, "flooding", ban.Reason)
	assert.Nil(t, ban.ExpiresAt)

	require.NoError(t, store.DeleteBan("u1"))
	_, err = store.GetBan("u1")
	assert.Equal(t, ErrNotFound, err)

	// deleting an absent ban is not an error
	require.NoError(t, store.DeleteBan("u1"))
}

func TestChannelAdminPasswordSurvivesStore(t *testing.T) {
	store := newTestStore(t)

	channel := types.Channel{Id: "c1", Name: "lobby", OwnerId: "u1", AdminPassword: "hunter2"}
	require.NoError(t, store.StoreChannel(channel))

	got := types.Channel{Id: "c1"}
	require.NoError(t, store.GetChannel(&got))
	assert.Equal(t, "hunter2", got.AdminPassword)
	assert.Equal(t, "lobby", got.Name)

	channels, err := store.GetChannels()
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, "hunter2", channels[0].AdminPassword)

	// the secret stays out of the wire representation
	raw, err := json.Marshal(got)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hunter2")
}

func TestRoomBanScoping(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpsertRoomBan(types.RoomBan{ChannelId: "c1", UserId: "u1", SetBy: "owner"}))

	_, err := store.GetRoomBan("c1", "u1")
	require.NoError(t, err)

	_, err = store.GetRoomBan("c2", "u1")
	assert.Equal(t, ErrNotFound, err)
}

func TestKlineDuplicatesAllowed(t *testing.T) {
	store := newTestStore(t)

	now := time.Now()
	require.NoError(t, store.AddKline(types.Kline{IpPattern: "10.0.0.*", SetBy: "admin", CreatedAt: now}))
	require.NoError(t, store.AddKline(types.Kline{IpPattern: "10.0.0.*", SetBy: "admin", CreatedAt: now.Add(time.Second)}))
	require.NoError(t, store.AddKline(types.Kline{IpPattern: "192.168.1.1", SetBy: "admin", CreatedAt: now}))

	klines, err := store.GetKlines()
	require.NoError(t, err)
	assert.Len(t, klines, 3)

	require.NoError(t, store.DeleteKlines("10.0.0.*"))
	klines, err = store.GetKlines()
	require.NoError(t, err)
	require.Len(t, klines, 1)
	assert.Equal(t, "192.168.1.1", klines[0].IpPattern)
}

func TestNickRegistrationUniqueness(t *testing.T) {
	store := newTestStore(t)

	reg := types.NickRegistration{UserId: "u1", Nickname: "Alice", RegisteredAt: time.Now()}
	require.NoError(t, store.InsertNickRegistration(reg))

	// same user again
	err := store.InsertNickRegistration(types.NickRegistration{UserId: "u1", Nickname: "Other"})
	assert.Equal(t, ErrConflict, err)

	// same nickname, different case, different user
	err = store.InsertNickRegistration(types.NickRegistration{UserId: "u2", Nickname: "alice"})
	assert.Equal(t, ErrConflict, err)

	got, err := store.GetNickRegistrationByNick("ALICE")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserId)

	require.NoError(t, store.DeleteNickRegistration("u1"))
	require.NoError(t, store.InsertNickRegistration(types.NickRegistration{UserId: "u2", Nickname: "alice"}))
}

func TestChannelAccessListOrdering(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpsertChannelAccess(types.ChannelAccessEntry{ChannelId: "c1", UserId: "u1", AccessLevel: 100}))
	require.NoError(t, store.UpsertChannelAccess(types.ChannelAccessEntry{ChannelId: "c1", UserId: "u2", AccessLevel: 500}))
	require.NoError(t, store.UpsertChannelAccess(types.ChannelAccessEntry{ChannelId: "c1", UserId: "u3", AccessLevel: 300}))
	require.NoError(t, store.UpsertChannelAccess(types.ChannelAccessEntry{ChannelId: "c2", UserId: "u4", AccessLevel: 400}))

	entries, err := store.GetChannelAccessList("c1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []int{500, 300, 100}, []int{entries[0].AccessLevel, entries[1].AccessLevel, entries[2].AccessLevel})

	// re-granting updates in place
	require.NoError(t, store.UpsertChannelAccess(types.ChannelAccessEntry{ChannelId: "c1", UserId: "u1", AccessLevel: 450}))
	entries, err = store.GetChannelAccessList("c1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "u2", entries[0].UserId)
	assert.Equal(t, "u1", entries[1].UserId)
}

func TestChannelRegistrationInsertOnce(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.InsertChannelRegistration(types.ChannelRegistration{ChannelId: "c1", FounderId: "u1"}))
	err := store.InsertChannelRegistration(types.ChannelRegistration{ChannelId: "c1", FounderId: "u2"})
	assert.Equal(t, ErrConflict, err)

	reg, err := store.GetChannelRegistration("c1")
	require.NoError(t, err)
	assert.Equal(t, "u1", reg.FounderId)
}

func TestRoomAdminGrant(t *testing.T) {
	store := newTestStore(t)

	ok, err := store.IsRoomAdmin("c1", "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.UpsertRoomAdmin(types.RoomAdminGrant{ChannelId: "c1", UserId: "u1", GrantedBy: "owner"}))

	ok, err = store.IsRoomAdmin("c1", "u1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAuditEntriesNewestFirst(t *testing.T) {
	store := newTestStore(t)

	base := time.Now()
	for i, action := range []string{types.ActionBanUser, types.ActionUnbanUser, types.ActionAddKline} {
		entry := types.AuditEntry{UserId: "admin", Action: action, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		require.NoError(t, store.StoreAuditEntry(entry))
	}

	entries, err := store.GetAuditEntries(2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, types.ActionAddKline, entries[0].Action)
	assert.Equal(t, types.ActionUnbanUser, entries[1].Action)
}

func TestAuditEntriesSameTimestamp(t *testing.T) {
	store := newTestStore(t)

	// two actions in the same nanosecond must both survive
	at := time.Now()
	require.NoError(t, store.StoreAuditEntry(types.AuditEntry{UserId: "admin", Action: types.ActionBanUser, CreatedAt: at}))
	require.NoError(t, store.StoreAuditEntry(types.AuditEntry{UserId: "admin", Action: types.ActionMuteUser, CreatedAt: at}))

	entries, err := store.GetAuditEntries(0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestEventHistory(t *testing.T) {
	store := newTestStore(t)

	now := time.Now()
	events := make([]*types.Event, 0, 3)
	for i := 0; i < 3; i++ {
		ev := types.NewEvent("c1", &types.Source{Origin: "services"}, "", types.EventTypeChat, map[string]string{"message": "hi"})
		ev.Created = now.Add(time.Duration(i) * time.Minute)
		events = append(events, ev)
	}
	other := types.NewEvent("c2", &types.Source{Origin: "services"}, "", types.EventTypeChat, nil)
	other.Created = now
	events = append(events, other)
	require.NoError(t, store.StoreEvents(events))

	history, err := store.GetEventHistory("c1", now.Add(-time.Hour), now.Add(time.Hour), 0, 10)
	require.NoError(t, err)
	assert.Len(t, history, 3)
	for _, ev := range history {
		assert.True(t, ev.History)
		assert.Equal(t, "c1", ev.ChannelId)
	}

	count, err := store.CountMessages()
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}
