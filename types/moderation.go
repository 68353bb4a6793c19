package types

import "time"

// Ban is a network-wide ban. At most one active record per user, a new ban
// overwrites the previous one.
type Ban struct {
	UserId    string     `json:"user_id" gorm:"primaryKey"`
	SetBy     string     `json:"set_by"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expires_at"` // nil = permanent
	CreatedAt time.Time  `json:"created_at"`
}

// Mute mirrors Ban on the mute table.
type Mute struct {
	UserId    string     `json:"user_id" gorm:"primaryKey"`
	SetBy     string     `json:"set_by"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// RoomBan is a ban scoped to a single channel.
type RoomBan struct {
	ChannelId string     `json:"channel_id" gorm:"primaryKey"`
	UserId    string     `json:"user_id" gorm:"primaryKey"`
	SetBy     string     `json:"set_by"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
}

type RoomMute struct {
	ChannelId string     `json:"channel_id" gorm:"primaryKey"`
	UserId    string     `json:"user_id" gorm:"primaryKey"`
	SetBy     string     `json:"set_by"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// Kline is a global IP ban keyed on a wildcard pattern. Duplicate patterns
// may coexist, matching is first-match-wins.
type Kline struct {
	Id        uint       `json:"id" gorm:"primaryKey"`
	IpPattern string     `json:"ip_pattern"`
	SetBy     string     `json:"set_by"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// Active reports whether the record has not expired at the given time.
// Expired records stay in the store and are filtered out at read time.
func active(expiresAt *time.Time, now time.Time) bool {
	return expiresAt == nil || expiresAt.After(now)
}

func (b *Ban) Active(now time.Time) bool      { return active(b.ExpiresAt, now) }
func (m *Mute) Active(now time.Time) bool     { return active(m.ExpiresAt, now) }
func (b *RoomBan) Active(now time.Time) bool  { return active(b.ExpiresAt, now) }
func (m *RoomMute) Active(now time.Time) bool { return active(m.ExpiresAt, now) }
func (k *Kline) Active(now time.Time) bool    { return active(k.ExpiresAt, now) }
