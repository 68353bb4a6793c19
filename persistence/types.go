package persistence

import (
	"errors"
	"time"

	"github.com/justachat/jachat-services/types"
)

// ErrNotFound is returned by lookups when no record exists. Both backends
// map their native not-found errors to this sentinel.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned by insert-if-absent operations when the uniqueness
// key is already taken. The store guarantees the check-and-insert is atomic,
// concurrent duplicate registrations cannot both succeed.
var ErrConflict = errors.New("record already exists")

// Persister is the storage contract of the governance subsystem. All
// mutations with a natural uniqueness key are atomic upserts, registration
// inserts are atomic insert-if-absent. Expired ban/mute/kline records are
// returned as stored, expiry is evaluated by the callers at read time.
type Persister interface {
	// users
	StoreUser(types.User) error
	GetUser(*types.User) error
	GetUserByNick(nick string) (*types.User, error)
	GetUsers() ([]*types.User, error)
	DeleteUser(*types.User) error
	CountUsers() (int64, error)
	EarliestUserCreation() (time.Time, error)
	SetUserRole(userId string, role types.Role) error
	// ToggleGhostMode flips the flag in a single conditional update and
	// returns the new value.
	ToggleGhostMode(userId string) (bool, error)

	// channels
	StoreChannel(types.Channel) error
	GetChannel(*types.Channel) error
	GetChannels() ([]*types.Channel, error)
	DeleteChannel(*types.Channel) error
	CountChannels() (int64, error)

	// network-wide bans and mutes, keyed by target user
	UpsertBan(types.Ban) error
	GetBan(userId string) (*types.Ban, error)
	DeleteBan(userId string) error
	UpsertMute(types.Mute) error
	GetMute(userId string) (*types.Mute, error)
	DeleteMute(userId string) error

	// room-scoped bans and mutes, keyed by (channel, target user)
	UpsertRoomBan(types.RoomBan) error
	GetRoomBan(channelId, userId string) (*types.RoomBan, error)
	DeleteRoomBan(channelId, userId string) error
	UpsertRoomMute(types.RoomMute) error
	GetRoomMute(channelId, userId string) (*types.RoomMute, error)
	DeleteRoomMute(channelId, userId string) error

	// k-lines; duplicates of the same pattern are allowed,
	// DeleteKlines removes every record with the pattern
	AddKline(types.Kline) error
	DeleteKlines(ipPattern string) error
	GetKlines() ([]*types.Kline, error)

	// nick registrations
	InsertNickRegistration(types.NickRegistration) error
	GetNickRegistrationByNick(nick string) (*types.NickRegistration, error)
	GetNickRegistrationByUser(userId string) (*types.NickRegistration, error)
	TouchNickIdentified(userId string, at time.Time) error
	DeleteNickRegistration(userId string) error

	// channel registrations and access lists
	InsertChannelRegistration(types.ChannelRegistration) error
	GetChannelRegistration(channelId string) (*types.ChannelRegistration, error)
	UpsertChannelAccess(types.ChannelAccessEntry) error
	// GetChannelAccessList returns entries ordered by descending access level.
	GetChannelAccessList(channelId string) ([]*types.ChannelAccessEntry, error)

	// room admin grants
	UpsertRoomAdmin(types.RoomAdminGrant) error
	IsRoomAdmin(channelId, userId string) (bool, error)

	// event history
	StoreEvents([]*types.Event) error
	GetEventHistory(channelId string, fromTs, toTs time.Time, fromIdx, maxCount int) ([]*types.Event, error)
	CountMessages() (int64, error)

	// audit log (write-only sink)
	StoreAuditEntry(types.AuditEntry) error
	GetAuditEntries(limit int) ([]*types.AuditEntry, error)

	Close() error
}
