package types

import (
	"time"

	"gorm.io/datatypes"
)

// Moderation audit actions. Only successful privileged actions are recorded.
const (
	ActionBanUser     = "ban_user"
	ActionUnbanUser   = "unban_user"
	ActionMuteUser    = "mute_user"
	ActionUnmuteUser  = "unmute_user"
	ActionChangeRole  = "change_role"
	ActionKickUser    = "kick_user"
	ActionAddKline    = "add_kline"
	ActionRemoveKline = "remove_kline"
	ActionOperAuth    = "oper_auth"
	ActionDeoperAuth  = "deoper_auth"
)

type AuditEntry struct {
	Id           uint           `json:"id" gorm:"primaryKey"`
	UserId       string         `json:"user_id"` // the moderator
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceId   string         `json:"resource_id"` // usually the target user
	Details      datatypes.JSON `json:"details"`
	CreatedAt    time.Time      `json:"created_at"`
}
