package moderation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justachat/jachat-services/audit"
	"github.com/justachat/jachat-services/config"
	"github.com/justachat/jachat-services/persistence"
	"github.com/justachat/jachat-services/types"
)

func newTestEngine(t *testing.T) (*Engine, persistence.Persister) {
	t.Helper()
	cfg := &config.Config{
		PersistenceConfig: config.PersistenceConfig{Type: "buntdb", DSN: ":memory:"},
	}
	store, err := persistence.NewPersister(cfg)
	require.NoError(t, err)
	require.NotNil(t, store)
	t.Cleanup(func() { _ = store.Close() })
	return NewEngine(store, audit.NewSink(store)), store
}

func modCtx(role types.Role) *types.CommandContext {
	return &types.CommandContext{
		Caller: &types.User{Id: "caller", Nick: "caller", Role: role},
		Role:   role,
	}
}

func TestBanUnbanRoundTrip(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := modCtx(types.RoleAdmin)
	target := &types.User{Id: "bob", Nick: "bob", Role: types.RoleUser}

	require.NoError(t, engine.Ban(ctx, target, "spamming"))

	banned, err := engine.IsBanned("bob")
	require.NoError(t, err)
	assert.True(t, banned)

	ban, err := store.GetBan("bob")
	require.NoError(t, err)
	assert.Equal(t, "spamming", ban.Reason)
	assert.Nil(t, ban.ExpiresAt)

	require.NoError(t, engine.Unban(ctx, target))
	banned, err = engine.IsBanned("bob")
	require.NoError(t, err)
	assert.False(t, banned)

	// unbanning an already-unbanned target succeeds, the operation is
	// idempotent from the caller's perspective
	require.NoError(t, engine.Unban(ctx, target))

	entries, err := store.GetAuditEntries(10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, types.ActionUnbanUser, entries[0].Action)
	assert.Equal(t, types.ActionBanUser, entries[2].Action)
}

func TestBanHierarchy(t *testing.T) {
	engine, store := newTestEngine(t)

	adminTarget := &types.User{Id: "al", Nick: "al", Role: types.RoleAdmin}
	ownerTarget := &types.User{Id: "ow", Nick: "ow", Role: types.RoleOwner}

	assert.Equal(t, ErrHierarchy, engine.Ban(modCtx(types.RoleModerator), adminTarget, ""))
	assert.Equal(t, ErrHierarchy, engine.Ban(modCtx(types.RoleAdmin), adminTarget, ""))
	assert.Equal(t, ErrHierarchy, engine.Ban(modCtx(types.RoleOwner), ownerTarget, ""))
	assert.Equal(t, ErrNotAuthorized, engine.Ban(modCtx(types.RoleUser), &types.User{Id: "x", Role: types.RoleUser}, ""))

	// refusals write neither bans nor audit entries
	_, err := store.GetBan("al")
	assert.Equal(t, persistence.ErrNotFound, err)
	entries, err := store.GetAuditEntries(10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// the owner may ban an admin
	require.NoError(t, engine.Ban(modCtx(types.RoleOwner), adminTarget, "rogue"))
}

func TestMuteHierarchy(t *testing.T) {
	engine, _ := newTestEngine(t)
	adminTarget := &types.User{Id: "al", Nick: "al", Role: types.RoleAdmin}
	assert.Equal(t, ErrHierarchy, engine.Mute(modCtx(types.RoleModerator), adminTarget, ""))
	require.NoError(t, engine.Mute(modCtx(types.RoleModerator), &types.User{Id: "bob", Role: types.RoleUser}, "caps"))
}

func TestKlineLifecycle(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := modCtx(types.RoleAdmin)

	_, err := engine.AddKline(modCtx(types.RoleModerator), "1.2.3.4", "", "")
	assert.Equal(t, ErrNotAuthorized, err)

	expiry, err := engine.AddKline(ctx, "192.168.*.*", "proxy range", "")
	require.NoError(t, err)
	assert.Nil(t, expiry)

	// duplicate patterns are allowed
	_, err = engine.AddKline(ctx, "192.168.*.*", "again", "")
	require.NoError(t, err)

	klines, err := engine.Klines(ctx)
	require.NoError(t, err)
	assert.Len(t, klines, 2)

	matched, err := engine.CheckKline("192.168.1.55")
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = engine.CheckKline("10.0.0.1")
	require.NoError(t, err)
	assert.False(t, matched)

	require.NoError(t, engine.RemoveKline(ctx, "192.168.*.*"))
	klines, err = engine.Klines(ctx)
	require.NoError(t, err)
	assert.Empty(t, klines)

	entries, err := store.GetAuditEntries(10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, types.ActionRemoveKline, entries[0].Action)
}

func TestCheckKlineSkipsExpired(t *testing.T) {
	engine, store := newTestEngine(t)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, store.AddKline(types.Kline{
		IpPattern: "10.0.0.*",
		SetBy:     "admin",
		ExpiresAt: &past,
		CreatedAt: past.Add(-time.Hour),
	}))

	matched, err := engine.CheckKline("10.0.0.1")
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestKlineDurationToken(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := modCtx(types.RoleOwner)

	expiry, err := engine.AddKline(ctx, "1.2.3.4", "", "2h")
	require.NoError(t, err)
	require.NotNil(t, expiry)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), *expiry, time.Second)

	// a bad duration token silently yields a permanent K-line
	expiry, err = engine.AddKline(ctx, "1.2.3.5", "", "forever")
	require.NoError(t, err)
	assert.Nil(t, expiry)
}

func TestRoomModerationOwnerImmune(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := &types.CommandContext{
		Caller:         &types.User{Id: "ra", Nick: "ra", Role: types.RoleUser},
		Role:           types.RoleUser,
		ChannelId:      "c1",
		ChannelOwnerId: "founder",
		IsRoomAdmin:    true,
	}
	owner := &types.User{Id: "founder", Nick: "founder", Role: types.RoleUser}

	assert.Equal(t, ErrRoomOwner, engine.RoomBan(ctx, owner, ""))
	_, err := engine.RoomMute(ctx, owner, "")
	assert.Equal(t, ErrRoomOwner, err)
	assert.Equal(t, ErrRoomOwner, engine.RoomKick(ctx, owner))
	assert.Equal(t, ErrRoomOwner, engine.RoomUnban(ctx, owner))
	assert.Equal(t, ErrRoomOwner, engine.RoomUnmute(ctx, owner))
}

func TestRoomMuteExpiry(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := &types.CommandContext{
		Caller:      &types.User{Id: "ra", Nick: "ra", Role: types.RoleUser},
		Role:        types.RoleUser,
		ChannelId:   "c1",
		IsRoomOwner: true,
	}
	target := &types.User{Id: "bob", Nick: "bob", Role: types.RoleUser}

	expiry, err := engine.RoomMute(ctx, target, "5m")
	require.NoError(t, err)
	require.NotNil(t, expiry)

	muted, err := engine.IsRoomMuted("c1", "bob")
	require.NoError(t, err)
	assert.True(t, muted)

	// scoped to the channel
	muted, err = engine.IsRoomMuted("c2", "bob")
	require.NoError(t, err)
	assert.False(t, muted)

	require.NoError(t, engine.RoomUnmute(ctx, target))
	muted, err = engine.IsRoomMuted("c1", "bob")
	require.NoError(t, err)
	assert.False(t, muted)
}

func TestRoomCommandsRequireChannel(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := modCtx(types.RoleAdmin) // global admin, but no channel in context
	target := &types.User{Id: "bob", Role: types.RoleUser}

	assert.Equal(t, ErrNoChannel, engine.RoomBan(ctx, target, ""))
	assert.Equal(t, ErrNoChannel, engine.RoomUnban(ctx, target))
}
