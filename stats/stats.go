// Package stats aggregates read-only network counters.
package stats

import (
	"time"

	"github.com/justachat/jachat-services/persistence"
	"github.com/justachat/jachat-services/types"
)

type Aggregator struct {
	store persistence.Persister
}

func NewAggregator(store persistence.Persister) *Aggregator {
	return &Aggregator{store: store}
}

// Snapshot counts users, channels and messages. Uptime is the age of the
// oldest account, a proxy for network age rather than process uptime. The
// online count comes from the caller's presence data, it is not derived
// here.
func (a *Aggregator) Snapshot(onlineUsers int) (*types.NetworkStats, error) {
	totalUsers, err := a.store.CountUsers()
	if err != nil {
		return nil, err
	}
	totalChannels, err := a.store.CountChannels()
	if err != nil {
		return nil, err
	}
	totalMessages, err := a.store.CountMessages()
	if err != nil {
		return nil, err
	}
	var uptimeHours int64
	earliest, err := a.store.EarliestUserCreation()
	if err != nil && err != persistence.ErrNotFound {
		return nil, err
	}
	if err == nil {
		uptimeHours = int64(time.Since(earliest).Hours())
	}
	return &types.NetworkStats{
		TotalUsers:    totalUsers,
		OnlineUsers:   onlineUsers,
		TotalChannels: totalChannels,
		TotalMessages: totalMessages,
		UptimeHours:   uptimeHours,
	}, nil
}
