package persistence

import (
	"github.com/justachat/jachat-services/config"
)

// NewPersister picks the backend from the configuration. "sqlite" and
// "postgres" run through gorm, "buntdb" uses the embedded key-value store.
// A missing or incomplete persistence section yields a nil persister.
func NewPersister(cfg *config.Config) (Persister, error) {
	switch cfg.PersistenceConfig.Type {
	case "buntdb":
		return NewBuntPersister(cfg)
	case "sqlite", "postgres":
		return NewGormPersister(cfg)
	}
	return nil, nil
}
