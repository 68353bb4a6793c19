package types

import "time"

type Channel struct {
	Id            string        `json:"id" gorm:"primaryKey"`
	Name          string        `json:"name" gorm:"uniqueIndex"`
	OwnerId       string        `json:"owner_id"` // creator, immune to room-scoped moderation
	Topic         string        `json:"topic"`
	AdminPassword string        `json:"-"` // per-room secret for the roomadmin challenge, never serialized
	Tags          JSONStringMap `json:"tags"`
	CreatedAt     time.Time     `json:"created_at"`
}
