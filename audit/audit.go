// Package audit records privileged actions. Recording is fire-and-forget,
// a failed write must never fail the action that triggered it.
package audit

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/justachat/jachat-services/globals"
	"github.com/justachat/jachat-services/persistence"
	"github.com/justachat/jachat-services/types"
)

type Sink interface {
	Record(entry types.AuditEntry)
}

// NewSink returns a store-backed sink, or a log-only sink when no persister
// is configured.
func NewSink(store persistence.Persister) Sink {
	if store == nil {
		return &logSink{}
	}
	return &storeSink{store: store}
}

// Entry builds a moderation audit entry. Details values must be
// JSON-marshalable.
func Entry(moderatorId, action, resourceId string, details map[string]interface{}) types.AuditEntry {
	var raw []byte
	if details != nil {
		var err error
		raw, err = json.Marshal(details)
		if err != nil {
			globals.AppLogger.Error("could not marshal audit details", "error", err)
			raw = nil
		}
	}
	return types.AuditEntry{
		UserId:       moderatorId,
		Action:       action,
		ResourceType: "moderation",
		ResourceId:   resourceId,
		Details:      datatypes.JSON(raw),
		CreatedAt:    time.Now(),
	}
}

type storeSink struct {
	store persistence.Persister
}

func (s *storeSink) Record(entry types.AuditEntry) {
	if err := s.store.StoreAuditEntry(entry); err != nil {
		globals.AppLogger.Error("could not store audit entry", "action", entry.Action, "error", err)
	}
}

type logSink struct{}

func (s *logSink) Record(entry types.AuditEntry) {
	globals.AppLogger.Info("audit", "action", entry.Action, "user", entry.UserId, "resource", entry.ResourceId)
}
