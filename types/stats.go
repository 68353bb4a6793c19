package types

// NetworkStats is a read-only snapshot. OnlineUsers comes from ambient
// presence data injected by the caller, it is never derived from the store.
type NetworkStats struct {
	TotalUsers    int64 `json:"total_users"`
	OnlineUsers   int   `json:"online_users"`
	TotalChannels int64 `json:"total_channels"`
	TotalMessages int64 `json:"total_messages"`
	UptimeHours   int64 `json:"uptime_hours"` // network age, not process uptime
}
