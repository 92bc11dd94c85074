package persistence

import (
	"fmt"

	"github.com/MimeLyc/pipeline-console/internal/config"
	"github.com/MimeLyc/pipeline-console/pkg/log"
)

// Open returns the store selected by cfg.Store.Driver.
func Open(cfg *config.Config) (Store, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		store, err := NewPostgresStore(cfg.Store.PostgresDSN)
		if err != nil {
			return nil, err
		}
		log.Info("Using postgres store")
		return store, nil
	case config.DriverSQLite, "":
		store, err := NewSQLiteStore(cfg.DBPath())
		if err != nil {
			return nil, err
		}
		log.Info("Using sqlite store at %s", cfg.DBPath())
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}
