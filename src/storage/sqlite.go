package storage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"price-relay/src/logger"
	"price-relay/src/models"
)

// -----------------------------------------------------------------------------

type SQLiteDB struct {
	sqlStore
	Config *models.MConfig
}

// -----------------------------------------------------------------------------

func NewSQLiteDB(cfg *models.MConfig, log *logger.Logger) (*SQLiteDB, error) {
	return &SQLiteDB{
		sqlStore: sqlStore{Dialect: dialectSQLite, Logger: log},
		Config:   cfg,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) Initialize() error {
	dsn := d.Config.Storage.DBPath

	// Open DB
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		d.Logger.Warning("Failed to enable foreign keys: %v", err)
	}

	if err := d.ensureTables(); err != nil {
		return err
	}

	d.Logger.Info("SQLiteDB initialized successfully (Path: %s)", dsn)
	return nil
}

// -----------------------------------------------------------------------------

// ensureTables creates missing tables. Current prices and history must
// survive restarts, so nothing is dropped here.
func (d *SQLiteDB) ensureTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS providers (
			id TEXT PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			display_name TEXT,
			kind TEXT NOT NULL,
			interval_seconds INTEGER DEFAULT 0,
			priority INTEGER DEFAULT 0,
			active INTEGER DEFAULT 1,
			reliability REAL DEFAULT 0,
			success_count INTEGER DEFAULT 0,
			error_count INTEGER DEFAULT 0,
			last_update INTEGER DEFAULT 0,
			last_error TEXT DEFAULT '',
			created_at INTEGER DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS field_mappings (
			id TEXT PRIMARY KEY,
			provider_id TEXT NOT NULL,
			source_field TEXT NOT NULL,
			target_symbol TEXT NOT NULL,
			target_kind TEXT DEFAULT 'currency',
			multiplier REAL DEFAULT 1,
			offset_value REAL DEFAULT 0,
			formula TEXT DEFAULT '',
			priority INTEGER DEFAULT 0,
			active INTEGER DEFAULT 1,
			UNIQUE (provider_id, source_field)
		);`,
		`CREATE TABLE IF NOT EXISTS current_prices (
			symbol TEXT NOT NULL,
			provider_id TEXT NOT NULL,
			provider_name TEXT,
			currency TEXT,
			buy_price REAL,
			sell_price REAL,
			previous_buy_price REAL,
			previous_sell_price REAL,
			change_percent_buy REAL,
			change_percent_sell REAL,
			day_date TEXT,
			open_buy REAL, open_sell REAL,
			high_buy REAL, high_sell REAL,
			low_buy REAL, low_sell REAL,
			closing_buy_price REAL, closing_sell_price REAL,
			active INTEGER DEFAULT 1,
			last_updated_at INTEGER DEFAULT 0,
			last_checked_at INTEGER DEFAULT 0,
			PRIMARY KEY (symbol, provider_id)
		);`,
		`CREATE TABLE IF NOT EXISTS price_history (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			provider_id TEXT NOT NULL,
			buy_price REAL,
			sell_price REAL,
			day_date TEXT,
			open_buy REAL, open_sell REAL,
			high_buy REAL, high_sell REAL,
			low_buy REAL, low_sell REAL,
			closing_buy_price REAL, closing_sell_price REAL,
			quoted_at INTEGER DEFAULT 0,
			archived_at INTEGER DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_price_history_archived ON price_history (archived_at);`,
		`CREATE TABLE IF NOT EXISTS run_logs (
			id TEXT PRIMARY KEY,
			job TEXT NOT NULL,
			started_at INTEGER DEFAULT 0,
			duration_ms INTEGER DEFAULT 0,
			entry_count INTEGER DEFAULT 0,
			errors TEXT DEFAULT '[]',
			success INTEGER DEFAULT 0,
			skipped INTEGER DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			active INTEGER DEFAULT 1,
			expires_at INTEGER DEFAULT 0,
			selected_provider_id TEXT DEFAULT '',
			site_open INTEGER DEFAULT 1
		);`,
		`CREATE TABLE IF NOT EXISTS access_tokens (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			token TEXT UNIQUE NOT NULL,
			allowed_channels TEXT DEFAULT '[]',
			active INTEGER DEFAULT 1,
			expires_at INTEGER DEFAULT 0
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
			buy_precision REAL DEFAULT 0,
			buy_decimal_places INTEGER DEFAULT 2,
			sell_method TEXT DEFAULT 'none',
			sell_precision REAL DEFAULT 0,
			sell_decimal_places INTEGER DEFAULT 2,
			active INTEGER DEFAULT 1,
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

func (d *SQLiteDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
