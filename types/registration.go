package types

import "time"

// NickRegistration ties a nickname to its owning user. A nickname maps to at
// most one user, and a user holds at most one registration at a time.
type NickRegistration struct {
	UserId         string     `json:"user_id" gorm:"primaryKey"`
	Nickname       string     `json:"nickname" gorm:"uniqueIndex"`
	RegisteredAt   time.Time  `json:"registered_at"`
	LastIdentified *time.Time `json:"last_identified"` // informational only
}

// ChannelRegistration is created once by the channel's creator.
type ChannelRegistration struct {
	ChannelId    string    `json:"channel_id" gorm:"primaryKey"`
	FounderId    string    `json:"founder_id"`
	Description  string    `json:"description"`
	RegisteredAt time.Time `json:"registered_at"`
}

// ChannelAccessEntry grants an access level (0-500) on a registered channel.
type ChannelAccessEntry struct {
	ChannelId   string    `json:"channel_id" gorm:"primaryKey"`
	UserId      string    `json:"user_id" gorm:"primaryKey"`
	AccessLevel int       `json:"access_level"`
	GrantedBy   string    `json:"granted_by"`
	GrantedAt   time.Time `json:"granted_at"`
}

// RoomAdminGrant records a successful roomadmin password challenge.
type RoomAdminGrant struct {
	ChannelId string `json:"channel_id" gorm:"primaryKey"`
	UserId    string `json:"user_id" gorm:"primaryKey"`
	GrantedBy string `json:"granted_by"`
}
