// Package moderation implements the ban/mute/K-line engine. All records are
// written through the store's upsert semantics, expiry is evaluated lazily
// at read time and expired records are never purged.
package moderation

import (
	"errors"
	"time"

	"github.com/justachat/jachat-services/audit"
	"github.com/justachat/jachat-services/persistence"
	"github.com/justachat/jachat-services/policy"
	"github.com/justachat/jachat-services/types"
)

var (
	// ErrNotAuthorized: the caller's role does not cover the command.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrHierarchy: the target outranks what the caller may act on.
	ErrHierarchy = errors.New("hierarchy violation")
	// ErrRoomOwner: room-scoped actions never touch the room owner.
	ErrRoomOwner = errors.New("target is the room owner")
	// ErrNoChannel: a room-scoped command was issued outside a room.
	ErrNoChannel = errors.New("no channel in context")
)

type Engine struct {
	store persistence.Persister
	sink  audit.Sink
}

func NewEngine(store persistence.Persister, sink audit.Sink) *Engine {
	return &Engine{store: store, sink: sink}
}

// Ban upserts a network-wide ban on the target. Only the mutation is
// audited, refusals are not.
func (e *Engine) Ban(ctx *types.CommandContext, target *types.User, reason string) error {
	if !policy.CanModerateGlobally(ctx) {
		return ErrNotAuthorized
	}
	if !policy.CanTarget(ctx, target.Role) {
		return ErrHierarchy
	}
	ban := types.Ban{
		UserId:    target.Id,
		SetBy:     ctx.Caller.Id,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
	if err := e.store.UpsertBan(ban); err != nil {
		return err
	}
	e.sink.Record(audit.Entry(ctx.Caller.Id, types.ActionBanUser, target.Id, map[string]interface{}{
		"target_username": target.Nick,
		"reason":          reason,
	}))
	return nil
}

// Unban deletes the target's ban. Removing an absent ban succeeds, unban is
// idempotent from the caller's perspective.
func (e *Engine) Unban(ctx *types.CommandContext, target *types.User) error {
	if !policy.CanModerateGlobally(ctx) {
		return ErrNotAuthorized
	}
	if !policy.CanTarget(ctx, target.Role) {
		return ErrHierarchy
	}
	if err := e.store.DeleteBan(target.Id); err != nil {
		return err
	}
	e.sink.Record(audit.Entry(ctx.Caller.Id, types.ActionUnbanUser, target.Id, map[string]interface{}{
		"target_username": target.Nick,
	}))
	return nil
}

func (e *Engine) Mute(ctx *types.CommandContext, target *types.User, reason string) error {
	if !policy.CanModerateGlobally(ctx) {
		return ErrNotAuthorized
	}
	if !policy.CanTarget(ctx, target.Role) {
		return ErrHierarchy
	}
	mute := types.Mute{
		UserId:    target.Id,
		SetBy:     ctx.Caller.Id,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
	if err := e.store.UpsertMute(mute); err != nil {
		return err
	}
	e.sink.Record(audit.Entry(ctx.Caller.Id, types.ActionMuteUser, target.Id, map[string]interface{}{
		"target_username": target.Nick,
		"reason":          reason,
	}))
	return nil
}

func (e *Engine) Unmute(ctx *types.CommandContext, target *types.User) error {
	if !policy.CanModerateGlobally(ctx) {
		return ErrNotAuthorized
	}
	if !policy.CanTarget(ctx, target.Role) {
		return ErrHierarchy
	}
	if err := e.store.DeleteMute(target.Id); err != nil {
		return err
	}
	e.sink.Record(audit.Entry(ctx.Caller.Id, types.ActionUnmuteUser, target.Id, map[string]interface{}{
		"target_username": target.Nick,
	}))
	return nil
}

// Kick writes no record, it is audited and the transport disconnects the
// target.
func (e *Engine) Kick(ctx *types.CommandContext, target *types.User, reason string) error {
	if !policy.CanModerateGlobally(ctx) {
		return ErrNotAuthorized
	}
	if !policy.CanTarget(ctx, target.Role) {
		return ErrHierarchy
	}
	e.sink.Record(audit.Entry(ctx.Caller.Id, types.ActionKickUser, target.Id, map[string]interface{}{
		"target_username": target.Nick,
		"reason":          reason,
	}))
	return nil
}

// AddKline inserts a K-line unconditionally. Duplicate patterns are allowed,
// matching is first-match-wins so duplicates are harmless and removing a
// pattern removes all of them.
func (e *Engine) AddKline(ctx *types.CommandContext, ipPattern, reason, durationToken string) (*time.Time, error) {
	if !policy.CanManageKlines(ctx) {
		return nil, ErrNotAuthorized
	}
	var expiresAt *time.Time
	if durationToken != "" {
		expiresAt = ParseExpiry(durationToken, time.Now())
	}
	kline := types.Kline{
		IpPattern: ipPattern,
		SetBy:     ctx.Caller.Id,
		Reason:    reason,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	if err := e.store.AddKline(kline); err != nil {
		return nil, err
	}
	e.sink.Record(audit.Entry(ctx.Caller.Id, types.ActionAddKline, "", map[string]interface{}{
		"ip_pattern": ipPattern,
		"reason":     reason,
	}))
	return expiresAt, nil
}

func (e *Engine) RemoveKline(ctx *types.CommandContext, ipPattern string) error {
	if !policy.CanManageKlines(ctx) {
		return ErrNotAuthorized
	}
	if err := e.store.DeleteKlines(ipPattern); err != nil {
		return err
	}
	e.sink.Record(audit.Entry(ctx.Caller.Id, types.ActionRemoveKline, "", map[string]interface{}{
		"ip_pattern": ipPattern,
	}))
	return nil
}

func (e *Engine) Klines(ctx *types.CommandContext) ([]*types.Kline, error) {
	if !policy.CanManageKlines(ctx) {
		return nil, ErrNotAuthorized
	}
	return e.store.GetKlines()
}

// CheckKline reports whether the address matches any active K-line. Expired
// patterns are skipped, the first match wins.
func (e *Engine) CheckKline(ip string) (bool, error) {
	klines, err := e.store.GetKlines()
	if err != nil {
		return false, err
	}
	now := time.Now()
	for _, kline := range klines {
		if !kline.Active(now) {
			continue
		}
		if MatchPattern(kline.IpPattern, ip) {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) roomCheck(ctx *types.CommandContext, target *types.User) error {
	if !policy.CanModerateRoom(ctx) {
		return ErrNotAuthorized
	}
	if ctx.ChannelId == "" {
		return ErrNoChannel
	}
	if target != nil && target.Id == ctx.ChannelOwnerId {
		return ErrRoomOwner
	}
	return nil
}

// RoomBan bans the target from the current room only. Room-scoped actions
// are not audited.
func (e *Engine) RoomBan(ctx *types.CommandContext, target *types.User, reason string) error {
	if err := e.roomCheck(ctx, target); err != nil {
		return err
	}
	ban := types.RoomBan{
		ChannelId: ctx.ChannelId,
		UserId:    target.Id,
		SetBy:     ctx.Caller.Id,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
	return e.store.UpsertRoomBan(ban)
}

func (e *Engine) RoomUnban(ctx *types.CommandContext, target *types.User) error {
	if err := e.roomCheck(ctx, target); err != nil {
		return err
	}
	return e.store.DeleteRoomBan(ctx.ChannelId, target.Id)
}

// RoomMute mutes the target in the current room, optionally until the given
// duration token elapses. The returned expiry is nil for an indefinite mute.
func (e *Engine) RoomMute(ctx *types.CommandContext, target *types.User, durationToken string) (*time.Time, error) {
	if err := e.roomCheck(ctx, target); err != nil {
		return nil, err
	}
	var expiresAt *time.Time
	if durationToken != "" {
		expiresAt = ParseExpiry(durationToken, time.Now())
	}
	mute := types.RoomMute{
		ChannelId: ctx.ChannelId,
		UserId:    target.Id,
		SetBy:     ctx.Caller.Id,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	if err := e.store.UpsertRoomMute(mute); err != nil {
		return nil, err
	}
	return expiresAt, nil
}

func (e *Engine) RoomUnmute(ctx *types.CommandContext, target *types.User) error {
	if err := e.roomCheck(ctx, target); err != nil {
		return err
	}
	return e.store.DeleteRoomMute(ctx.ChannelId, target.Id)
}

func (e *Engine) RoomKick(ctx *types.CommandContext, target *types.User) error {
	return e.roomCheck(ctx, target)
}

func (e *Engine) IsBanned(userId string) (bool, error) {
	ban, err := e.store.GetBan(userId)
	if err == persistence.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return ban.Active(time.Now()), nil
}

func (e *Engine) IsMuted(userId string) (bool, error) {
	mute, err := e.store.GetMute(userId)
	if err == persistence.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return mute.Active(time.Now()), nil
}

func (e *Engine) IsRoomBanned(channelId, userId string) (bool, error) {
	ban, err := e.store.GetRoomBan(channelId, userId)
	if err == persistence.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return ban.Active(time.Now()), nil
}

func (e *Engine) IsRoomMuted(channelId, userId string) (bool, error) {
	mute, err := e.store.GetRoomMute(channelId, userId)
	if err == persistence.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return mute.Active(time.Now()), nil
}
