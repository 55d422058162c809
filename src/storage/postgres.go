package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"price-relay/src/helpers"
	"price-relay/src/logger"
	"price-relay/src/models"
)

// -----------------------------------------------------------------------------

type PostgresDB struct {
	sqlStore
	Config *models.MConfig
}

// -----------------------------------------------------------------------------

func NewPostgresDB(cfg *models.MConfig, log *logger.Logger) (*PostgresDB, error) {
	return &PostgresDB{
		sqlStore: sqlStore{Dialect: dialectPostgres, Logger: log},
		Config:   cfg,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Initialize() error {
	dsn := d.Config.Storage.DBConnectionString
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}

	// The database container may still be coming up at boot
	if _, err := helpers.RetryWithBackoff("postgres connect", 3, time.Second, func() (interface{}, error) {
		return nil, db.Ping()
	}); err != nil {
		return err
	}

	d.DB = db

	if err := d.ensureTables(); err != nil {
		return err
	}

	d.Logger.Info("PostgresDB initialized successfully")
	return nil
}

// -----------------------------------------------------------------------------

// ensureTables creates missing tables. Booleans are SMALLINT 0/1 and times
// are unix seconds so the shared query layer scans identically on both
// backends.
func (d *PostgresDB) ensureTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS providers (
			id TEXT PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			display_name TEXT,
			kind TEXT NOT NULL,
			interval_seconds INTEGER DEFAULT 0,
			priority INTEGER DEFAULT 0,
			active SMALLINT DEFAULT 1,
			reliability DOUBLE PRECISION DEFAULT 0,
			success_count BIGINT DEFAULT 0,
			error_count BIGINT DEFAULT 0,
			last_update BIGINT DEFAULT 0,
			last_error TEXT DEFAULT '',
			created_at BIGINT DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS field_mappings (
			id TEXT PRIMARY KEY,
			provider_id TEXT NOT NULL,
			source_field TEXT NOT NULL,
			target_symbol TEXT NOT NULL,
			target_kind TEXT DEFAULT 'currency',
			multiplier DOUBLE PRECISION DEFAULT 1,
			offset_value DOUBLE PRECISION DEFAULT 0,
			formula TEXT DEFAULT '',
			priority INTEGER DEFAULT 0,
			active SMALLINT DEFAULT 1,
			UNIQUE (provider_id, source_field)
		);`,
		`CREATE TABLE IF NOT EXISTS current_prices (
			symbol TEXT NOT NULL,
			provider_id TEXT NOT NULL,
			provider_name TEXT,
			currency TEXT,
			buy_price DOUBLE PRECISION,
			sell_price DOUBLE PRECISION,
			previous_buy_price DOUBLE PRECISION,
			previous_sell_price DOUBLE PRECISION,
			change_percent_buy DOUBLE PRECISION,
			change_percent_sell DOUBLE PRECISION,
			day_date TEXT,
			open_buy DOUBLE PRECISION, open_sell DOUBLE PRECISION,
			high_buy DOUBLE PRECISION, high_sell DOUBLE PRECISION,
			low_buy DOUBLE PRECISION, low_sell DOUBLE PRECISION,
			closing_buy_price DOUBLE PRECISION, closing_sell_price DOUBLE PRECISION,
			active SMALLINT DEFAULT 1,
			last_updated_at BIGINT DEFAULT 0,
			last_checked_at BIGINT DEFAULT 0,
			PRIMARY KEY (symbol, provider_id)
		);`,
		`CREATE TABLE IF NOT EXISTS price_history (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			provider_id TEXT NOT NULL,
			buy_price DOUBLE PRECISION,
			sell_price DOUBLE PRECISION,
			day_date TEXT,
			open_buy DOUBLE PRECISION, open_sell DOUBLE PRECISION,
			high_buy DOUBLE PRECISION, high_sell DOUBLE PRECISION,
			low_buy DOUBLE PRECISION, low_sell DOUBLE PRECISION,
			closing_buy_price DOUBLE PRECISION, closing_sell_price DOUBLE PRECISION,
			quoted_at BIGINT DEFAULT 0,
			archived_at BIGINT DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_price_history_archived ON price_history (archived_at);`,
		`CREATE TABLE IF NOT EXISTS run_logs (
			id TEXT PRIMARY KEY,
			job TEXT NOT NULL,
			started_at BIGINT DEFAULT 0,
			duration_ms BIGINT DEFAULT 0,
			entry_count INTEGER DEFAULT 0,
			errors TEXT DEFAULT '[]',
			success SMALLINT DEFAULT 0,
			skipped SMALLINT DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			active SMALLINT DEFAULT 1,
			expires_at BIGINT DEFAULT 0,
			selected_provider_id TEXT DEFAULT '',
			site_open SMALLINT DEFAULT 1
		);`,
		`CREATE TABLE IF NOT EXISTS access_tokens (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			token TEXT UNIQUE NOT NULL,
			allowed_channels TEXT DEFAULT '[]',
			active SMALLINT DEFAULT 1,
			expires_at BIGINT DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS user_products (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			section TEXT DEFAULT '',
			name TEXT NOT NULL,
			base_symbol TEXT NOT NULL,
			buying_formula TEXT DEFAULT '',
			selling_formula TEXT DEFAULT '',
			buy_method TEXT DEFAULT 'none',
			buy_precision DOUBLE PRECISION DEFAULT 0,
			buy_decimal_places INTEGER DEFAULT 2,
			sell_method TEXT DEFAULT 'none',
			sell_precision DOUBLE PRECISION DEFAULT 0,
			sell_decimal_places INTEGER DEFAULT 2,
			active SMALLINT DEFAULT 1,
			display_order INTEGER DEFAULT 0
		);`,
	}

	for _, query := range queries {
		if _, err := d.DB.Exec(query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
