// Package services implements the nickname and channel registration
// workflows (the NickServ/ChanServ analog) plus ghost mode. Methods return
// the uniform command result contract, store failures are logged server-side
// and surfaced as generic failure messages.
package services

import (
	"fmt"
	"time"

	"github.com/justachat/jachat-services/globals"
	"github.com/justachat/jachat-services/persistence"
	"github.com/justachat/jachat-services/types"
)

type Registry struct {
	store persistence.Persister
}

func NewRegistry(store persistence.Persister) *Registry {
	return &Registry{store: store}
}

func fail(message string) *types.CommandResult {
	return &types.CommandResult{Success: false, Message: message}
}

func ok(message string) *types.CommandResult {
	return &types.CommandResult{Success: true, Message: message}
}

// RegisterNick claims a nickname for the user. A nickname belongs to at most
// one user and a user holds at most one registration at a time.
func (r *Registry) RegisterNick(userId, nickname string) *types.CommandResult {
	existing, err := r.store.GetNickRegistrationByNick(nickname)
	if err != nil && err != persistence.ErrNotFound {
		globals.AppLogger.Error("could not look up nick registration", "error", err)
		return fail("Failed to register nickname.")
	}
	if existing != nil {
		if existing.UserId == userId {
			return fail("You have already registered this nickname.")
		}
		return fail("This nickname is already registered by another user.")
	}
	reg := types.NickRegistration{
		UserId:       userId,
		Nickname:     nickname,
		RegisteredAt: time.Now(),
	}
	if err := r.store.InsertNickRegistration(reg); err != nil {
		if err != persistence.ErrConflict {
			globals.AppLogger.Error("could not insert nick registration", "error", err)
		}
		return fail("Failed to register nickname.")
	}
	return ok(fmt.Sprintf(`Nickname "%s" has been registered to you.`, nickname))
}

// IdentifyNick stamps the registration's last-identified timestamp. This is
// informational only, identification does not gate any other command.
func (r *Registry) IdentifyNick(userId string) *types.CommandResult {
	reg, err := r.store.GetNickRegistrationByUser(userId)
	if err == persistence.ErrNotFound {
		return fail("You have not registered a nickname. Use /ns register to register.")
	}
	if err != nil {
		globals.AppLogger.Error("could not look up nick registration", "error", err)
		return fail("Failed to identify.")
	}
	if err := r.store.TouchNickIdentified(userId, time.Now()); err != nil {
		globals.AppLogger.Error("could not update nick registration", "error", err)
		return fail("Failed to identify.")
	}
	return ok(fmt.Sprintf(`You have been identified as the owner of "%s".`, reg.Nickname))
}

func (r *Registry) DropNick(userId string) *types.CommandResult {
	reg, err := r.store.GetNickRegistrationByUser(userId)
	if err == persistence.ErrNotFound {
		return fail("You have not registered a nickname.")
	}
	if err != nil {
		globals.AppLogger.Error("could not look up nick registration", "error", err)
		return fail("Failed to drop nickname.")
	}
	if err := r.store.DeleteNickRegistration(userId); err != nil {
		globals.AppLogger.Error("could not delete nick registration", "error", err)
		return fail("Failed to drop nickname.")
	}
	return ok(fmt.Sprintf(`Nickname "%s" has been dropped.`, reg.Nickname))
}

// NickInfo is a public lookup.
func (r *Registry) NickInfo(nickname string) (*types.NickRegistration, error) {
	return r.store.GetNickRegistrationByNick(nickname)
}

// RegisterChannel registers a channel to its creator, once.
func (r *Registry) RegisterChannel(userId, channelId, description string) *types.CommandResult {
	channel := types.Channel{Id: channelId}
	err := r.store.GetChannel(&channel)
	if err == persistence.ErrNotFound {
		return fail("Channel not found.")
	}
	if err != nil {
		globals.AppLogger.Error("could not look up channel", "error", err)
		return fail("Failed to register channel.")
	}
	if channel.OwnerId != userId {
		return fail("Only the channel founder can register a channel.")
	}
	reg := types.ChannelRegistration{
		ChannelId:    channelId,
		FounderId:    userId,
		Description:  description,
		RegisteredAt: time.Now(),
	}
	if err := r.store.InsertChannelRegistration(reg); err != nil {
		if err == persistence.ErrConflict {
			return fail("This channel is already registered.")
		}
		globals.AppLogger.Error("could not insert channel registration", "error", err)
		return fail("Failed to register channel.")
	}
	return ok(fmt.Sprintf("Channel #%s has been registered.", channel.Name))
}

// ChannelInfo is the resolved registration record for display.
type ChannelInfo struct {
	ChannelName  string
	FounderNick  string
	RegisteredAt time.Time
	Description  string
}

func (r *Registry) ChannelInfo(channelId string) (*ChannelInfo, error) {
	reg, err := r.store.GetChannelRegistration(channelId)
	if err != nil {
		return nil, err
	}
	info := &ChannelInfo{
		ChannelName:  "Unknown",
		FounderNick:  "Unknown",
		RegisteredAt: reg.RegisteredAt,
		Description:  reg.Description,
	}
	channel := types.Channel{Id: channelId}
	if err := r.store.GetChannel(&channel); err == nil {
		info.ChannelName = channel.Name
	}
	founder := types.User{Id: reg.FounderId}
	if err := r.store.GetUser(&founder); err == nil {
		info.FounderNick = founder.Nick
	}
	return info, nil
}

// SetChannelAccess upserts an access entry on a registered channel. The
// granter's own access level is not re-checked here, callers gate the
// operation before reaching the registry.
func (r *Registry) SetChannelAccess(channelId, grantedBy, targetUserId string, level int) *types.CommandResult {
	_, err := r.store.GetChannelRegistration(channelId)
	if err == persistence.ErrNotFound {
		return fail("This channel is not registered.")
	}
	if err != nil {
		globals.AppLogger.Error("could not look up channel registration", "error", err)
		return fail("Failed to set access level.")
	}
	entry := types.ChannelAccessEntry{
		ChannelId:   channelId,
		UserId:      targetUserId,
		AccessLevel: level,
		GrantedBy:   grantedBy,
		GrantedAt:   time.Now(),
	}
	if err := r.store.UpsertChannelAccess(entry); err != nil {
		globals.AppLogger.Error("could not upsert channel access", "error", err)
		return fail("Failed to set access level.")
	}
	return ok(fmt.Sprintf("Access level set to %d.", level))
}

// ChannelAccessList returns the access entries ordered by descending level.
func (r *Registry) ChannelAccessList(channelId string) ([]*types.ChannelAccessEntry, error) {
	return r.store.GetChannelAccessList(channelId)
}

// GrantRoomAdmin records a password-granted room admin.
func (r *Registry) GrantRoomAdmin(channelId, userId string) error {
	grant := types.RoomAdminGrant{
		ChannelId: channelId,
		UserId:    userId,
		GrantedBy: userId,
	}
	return r.store.UpsertRoomAdmin(grant)
}

// ToggleGhost flips the caller's visibility flag in a single conditional
// update, concurrent toggles from two sessions cannot lose an update.
func (r *Registry) ToggleGhost(userId string) *types.CommandResult {
	enabled, err := r.store.ToggleGhostMode(userId)
	if err != nil {
		globals.AppLogger.Error("could not toggle ghost mode", "error", err)
		return fail("Failed to update ghost mode.")
	}
	if enabled {
		return ok("Ghost mode enabled. You are now invisible to other users.")
	}
	return ok("Ghost mode disabled. You are now visible to other users.")
}
