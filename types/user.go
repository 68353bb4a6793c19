package types

import "time"

type User struct {
	Id         string        `json:"id" gorm:"primaryKey"`
	Nick       string        `json:"nick" gorm:"uniqueIndex"` // unique at any instant, looked up case-insensitively
	Role       Role          `json:"role"`
	GhostMode  bool          `json:"ghost_mode"` // hidden from presence listings
	Language   string        `json:"language"`   // alpha-2 iso
	Tags       JSONStringMap `json:"tags"`
	CreatedAt  time.Time     `json:"created_at"`
	LastOnline time.Time     `json:"last_online"`
}
