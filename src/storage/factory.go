package storage

import (
	"fmt"

	"price-relay/src/interfaces"
	"price-relay/src/logger"
	"price-relay/src/models"
)

// New returns the database backend selected by storage.db_type.
func New(cfg *models.MConfig, log *logger.Logger) (interfaces.IDatabase, error) {
	switch cfg.Storage.DBType {
	case "sqlite":
		return NewSQLiteDB(cfg, log)
	case "postgres":
		return NewPostgresDB(cfg, log)
	case "memory":
		return NewMemoryDB(), nil
	default:
		return nil, fmt.Errorf("unknown database type %q", cfg.Storage.DBType)
	}
}
