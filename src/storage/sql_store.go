package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"price-relay/src/logger"
	"price-relay/src/models"
)

const (
	dialectSQLite   = "sqlite"
	dialectPostgres = "postgres"
)

// -----------------------------------------------------------------------------
// sqlStore holds the queries shared by the SQLite and Postgres backends.
// Queries are written with "?" placeholders; bind rewrites them to $n for
// Postgres. Booleans are stored as 0/1 and times as unix seconds so both
// drivers scan through the same code path.
// -----------------------------------------------------------------------------

type sqlStore struct {
	DB      *sql.DB
	Dialect string
	Logger  *logger.Logger
}

// -----------------------------------------------------------------------------

func (s *sqlStore) bind(query string) string {
	if s.Dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func b2i(v bool) int {
	if v {
		return 1
	}
	return 0
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeFromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(n, 0)
}

// -----------------------------------------------------------------------------
// Providers

func (s *sqlStore) FindProviderByName(name string) (*models.MProvider, error) {
	query := s.bind(`
		SELECT id, name, display_name, kind, interval_seconds, priority, active,
		       reliability, success_count, error_count, last_update, last_error, created_at
		FROM providers WHERE name = ?
	`)

	row := s.DB.QueryRow(query, name)
	p, err := scanProvider(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query provider '%s': %w", name, err)
	}
	return p, nil
}

// -----------------------------------------------------------------------------

func (s *sqlStore) InsertProvider(p *models.MProvider) (string, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	query := s.bind(`
		INSERT INTO providers (id, name, display_name, kind, interval_seconds, priority, active,
		                       reliability, success_count, error_count, last_update, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := s.DB.Exec(query,
		p.ID, p.Name, p.DisplayName, p.Kind, p.IntervalSecs, p.Priority, b2i(p.Active),
		p.Reliability, p.SuccessCount, p.ErrorCount, unixOrZero(p.LastUpdate), p.LastError, unixOrZero(p.CreatedAt))
	if err != nil {
		return "", fmt.Errorf("failed to insert provider '%s': %w", p.Name, err)
	}
	return p.ID, nil
}

// -----------------------------------------------------------------------------

func (s *sqlStore) UpdateProviderStatus(id string, status models.MProviderStatus) error {
	var query string
	if status.Success {
		query = `
			UPDATE providers SET last_update = ?, last_error = '', success_count = success_count + 1,
			       reliability = CAST(success_count + 1 AS REAL) / (success_count + error_count + 1)
			WHERE id = ?
		`
	} else {
		query = `
			UPDATE providers SET last_update = ?, last_error = ?, error_count = error_count + 1,
			       reliability = CAST(success_count AS REAL) / (success_count + error_count + 1)
			WHERE id = ?
		`
	}

	var err error
	if status.Success {
		_, err = s.DB.Exec(s.bind(query), unixOrZero(status.LastUpdate), id)
	} else {
		_, err = s.DB.Exec(s.bind(query), unixOrZero(status.LastUpdate), status.LastError, id)
	}
	if err != nil {
		return fmt.Errorf("failed to update provider status: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *sqlStore) ListProviders() ([]models.MProvider, error) {
	query := `
		SELECT id, name, display_name, kind, interval_seconds, priority, active,
		       reliability, success_count, error_count, last_update, last_error, created_at
		FROM providers ORDER BY priority, name
	`

	rows, err := s.DB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	defer rows.Close()

	var providers []models.MProvider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		providers = append(providers, *p)
	}
	return providers, rows.Err()
}

// -----------------------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProvider(row rowScanner) (*models.MProvider, error) {
	var p models.MProvider
	var active int
	var lastUpdate, createdAt int64
	err := row.Scan(&p.ID, &p.Name, &p.DisplayName, &p.Kind, &p.IntervalSecs, &p.Priority, &active,
		&p.Reliability, &p.SuccessCount, &p.ErrorCount, &lastUpdate, &p.LastError, &createdAt)
	if err != nil {
		return nil, err
	}
	p.Active = active != 0
	p.LastUpdate = timeFromUnix(lastUpdate)
	p.CreatedAt = timeFromUnix(createdAt)
	return &p, nil
}

// -----------------------------------------------------------------------------
// Field mappings

func (s *sqlStore) FindActiveMappings(providerID string) ([]models.MFieldMapping, error) {
	query := s.bind(`
		SELECT id, provider_id, source_field, target_symbol, target_kind,
		       multiplier, offset_value, formula, priority, active
		FROM field_mappings WHERE provider_id = ? AND active = 1
		ORDER BY priority, source_field
	`)

	rows, err := s.DB.Query(query, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query mappings: %w", err)
	}
	defer rows.Close()

	var mappings []models.MFieldMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, *m)
	}
	return mappings, rows.Err()
}

// -----------------------------------------------------------------------------

func (s *sqlStore) FindMapping(providerID, field string) (*models.MFieldMapping, error) {
	query := s.bind(`
		SELECT id, provider_id, source_field, target_symbol, target_kind,
		       multiplier, offset_value, formula, priority, active
		FROM field_mappings WHERE provider_id = ? AND source_field = ? AND active = 1
		ORDER BY priority LIMIT 1
	`)

	row := s.DB.QueryRow(query, providerID, field)
	m, err := scanMapping(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query mapping: %w", err)
	}
	return m, nil
}

// -----------------------------------------------------------------------------

func scanMapping(row rowScanner) (*models.MFieldMapping, error) {
	var m models.MFieldMapping
	var active int
	err := row.Scan(&m.ID, &m.ProviderID, &m.SourceField, &m.TargetSymbol, &m.TargetKind,
		&m.Multiplier, &m.Offset, &m.Formula, &m.Priority, &active)
	if err != nil {
		return nil, err
	}
	m.Active = active != 0
	return &m, nil
}

// -----------------------------------------------------------------------------
// Current prices

func (s *sqlStore) UpsertCurrentPrice(q *models.MQuote) error {
	query := s.bind(`
		INSERT INTO current_prices (symbol, provider_id, provider_name, currency,
			buy_price, sell_price, previous_buy_price, previous_sell_price,
			change_percent_buy, change_percent_sell,
			day_date, open_buy, open_sell, high_buy, high_sell, low_buy, low_sell,
			closing_buy_price, closing_sell_price,
			active, last_updated_at, last_checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, provider_id) DO UPDATE SET
			provider_name = EXCLUDED.provider_name,
			currency = EXCLUDED.currency,
			buy_price = EXCLUDED.buy_price,
			sell_price = EXCLUDED.sell_price,
			previous_buy_price = EXCLUDED.previous_buy_price,
			previous_sell_price = EXCLUDED.previous_sell_price,
			change_percent_buy = EXCLUDED.change_percent_buy,
			change_percent_sell = EXCLUDED.change_percent_sell,
			day_date = EXCLUDED.day_date,
			open_buy = EXCLUDED.open_buy,
			open_sell = EXCLUDED.open_sell,
			high_buy = EXCLUDED.high_buy,
			high_sell = EXCLUDED.high_sell,
			low_buy = EXCLUDED.low_buy,
			low_sell = EXCLUDED.low_sell,
			closing_buy_price = EXCLUDED.closing_buy_price,
			closing_sell_price = EXCLUDED.closing_sell_price,
			active = EXCLUDED.active,
			last_updated_at = EXCLUDED.last_updated_at,
			last_checked_at = EXCLUDED.last_checked_at
	`)

	_, err := s.DB.Exec(query,
		q.Symbol, q.ProviderID, q.ProviderName, q.Currency,
		q.BuyPrice, q.SellPrice, q.PreviousBuyPrice, q.PreviousSellPrice,
		q.ChangePercentBuy, q.ChangePercentSell,
		q.Daily.Date, q.Daily.OpenBuy, q.Daily.OpenSell,
		q.Daily.HighBuy, q.Daily.HighSell, q.Daily.LowBuy, q.Daily.LowSell,
		q.Daily.ClosingBuyPrice, q.Daily.ClosingSellPrice,
		b2i(q.Active), unixOrZero(q.LastUpdatedAt), unixOrZero(q.LastCheckedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert price %s/%s: %w", q.Symbol, q.ProviderID, err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *sqlStore) QueryCurrentPrices(filter models.MPriceFilter) ([]models.MQuote, error) {
	query := `
		SELECT symbol, provider_id, provider_name, currency,
		       buy_price, sell_price, previous_buy_price, previous_sell_price,
		       change_percent_buy, change_percent_sell,
		       day_date, open_buy, open_sell, high_buy, high_sell, low_buy, low_sell,
		       closing_buy_price, closing_sell_price,
		       active, last_updated_at, last_checked_at
		FROM current_prices
	`
	where, args := priceFilterClause(filter)
	query += where + " ORDER BY symbol, provider_id"

	rows, err := s.DB.Query(s.bind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query current prices: %w", err)
	}
	defer rows.Close()

	var quotes []models.MQuote
	for rows.Next() {
		var q models.MQuote
		var active int
		var updatedAt, checkedAt int64
		err := rows.Scan(&q.Symbol, &q.ProviderID, &q.ProviderName, &q.Currency,
			&q.BuyPrice, &q.SellPrice, &q.PreviousBuyPrice, &q.PreviousSellPrice,
			&q.ChangePercentBuy, &q.ChangePercentSell,
			&q.Daily.Date, &q.Daily.OpenBuy, &q.Daily.OpenSell,
			&q.Daily.HighBuy, &q.Daily.HighSell, &q.Daily.LowBuy, &q.Daily.LowSell,
			&q.Daily.ClosingBuyPrice, &q.Daily.ClosingSellPrice,
			&active, &updatedAt, &checkedAt)
		if err != nil {
			return nil, err
		}
		q.Active = active != 0
		q.LastUpdatedAt = timeFromUnix(updatedAt)
		q.LastCheckedAt = timeFromUnix(checkedAt)
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

// -----------------------------------------------------------------------------

func (s *sqlStore) DistinctSymbols(filter models.MPriceFilter) ([]string, error) {
	query := "SELECT DISTINCT symbol FROM current_prices"
	where, args := priceFilterClause(filter)
	query += where + " ORDER BY symbol"

	rows, err := s.DB.Query(s.bind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// -----------------------------------------------------------------------------

func priceFilterClause(filter models.MPriceFilter) (string, []any) {
	var conds []string
	var args []any
	if filter.Symbol != "" {
		conds = append(conds, "symbol = ?")
		args = append(args, filter.Symbol)
	}
	if filter.ProviderID != "" {
		conds = append(conds, "provider_id = ?")
		args = append(args, filter.ProviderID)
	}
	if filter.ActiveOnly {
		conds = append(conds, "active = 1")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// -----------------------------------------------------------------------------
// History and run logs

func (s *sqlStore) InsertHistoryBatch(entries []models.MHistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := s.bind(`
		INSERT INTO price_history (id, symbol, provider_id, buy_price, sell_price,
			day_date, open_buy, open_sell, high_buy, high_sell, low_buy, low_sell,
			closing_buy_price, closing_sell_price, quoted_at, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	stmt, err := tx.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range entries {
		e := &entries[i]
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		_, err := stmt.Exec(e.ID, e.Symbol, e.ProviderID, e.BuyPrice, e.SellPrice,
			e.Daily.Date, e.Daily.OpenBuy, e.Daily.OpenSell,
			e.Daily.HighBuy, e.Daily.HighSell, e.Daily.LowBuy, e.Daily.LowSell,
			e.Daily.ClosingBuyPrice, e.Daily.ClosingSellPrice,
			unixOrZero(e.QuotedAt), unixOrZero(e.ArchivedAt))
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (s *sqlStore) DeleteHistoryOlderThan(cutoff time.Time) (int64, error) {
	res, err := s.DB.Exec(s.bind("DELETE FROM price_history WHERE archived_at < ?"), cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge history: %w", err)
	}
	return res.RowsAffected()
}

// -----------------------------------------------------------------------------

func (s *sqlStore) InsertRunLog(r *models.MRunLog) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	errorsJSON, err := json.Marshal(r.Errors)
	if err != nil {
		return err
	}

	query := s.bind(`
		INSERT INTO run_logs (id, job, started_at, duration_ms, entry_count, errors, success, skipped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err = s.DB.Exec(query, r.ID, r.Job, unixOrZero(r.StartedAt), r.Duration.Milliseconds(),
		r.Count, string(errorsJSON), b2i(r.Success), b2i(r.Skipped))
	if err != nil {
		return fmt.Errorf("failed to insert run log: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *sqlStore) DeleteRunLogsOlderThan(cutoff time.Time) (int64, error) {
	res, err := s.DB.Exec(s.bind("DELETE FROM run_logs WHERE started_at < ?"), cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge run logs: %w", err)
	}
	return res.RowsAffected()
}

// -----------------------------------------------------------------------------
// Users, products, tokens

func (s *sqlStore) FindUserProductsByUser(userID string, activeOnly bool) ([]models.MUserProduct, error) {
	query := `
		SELECT id, user_id, section, name, base_symbol, buying_formula, selling_formula,
		       buy_method, buy_precision, buy_decimal_places,
		       sell_method, sell_precision, sell_decimal_places,
		       active, display_order
		FROM user_products WHERE user_id = ?
	`
	if activeOnly {
		query += " AND active = 1"
	}
	query += " ORDER BY display_order, name"

	rows, err := s.DB.Query(s.bind(query), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user products: %w", err)
	}
	defer rows.Close()

	var products []models.MUserProduct
	for rows.Next() {
		var p models.MUserProduct
		var active int
		err := rows.Scan(&p.ID, &p.UserID, &p.Section, &p.Name, &p.BaseSymbol,
			&p.BuyingFormula, &p.SellingFormula,
			&p.BuyRounding.Method, &p.BuyRounding.Precision, &p.BuyRounding.DecimalPlaces,
			&p.SellRounding.Method, &p.SellRounding.Precision, &p.SellRounding.DecimalPlaces,
			&active, &p.DisplayOrder)
		if err != nil {
			return nil, err
		}
		p.Active = active != 0
		products = append(products, p)
	}
	return products, rows.Err()
}

// -----------------------------------------------------------------------------

func (s *sqlStore) FindUsersBySelectedProvider(providerID string) ([]models.MUser, error) {
	now := time.Now().Unix()

	query := s.bind(`
		SELECT u.id, u.username, u.active, u.expires_at, u.selected_provider_id, u.site_open
		FROM users u
		WHERE u.active = 1
		  AND (u.expires_at = 0 OR u.expires_at > ?)
		  AND u.selected_provider_id = ?
		  AND (
			NOT EXISTS (SELECT 1 FROM access_tokens t WHERE t.user_id = u.id)
			OR EXISTS (
				SELECT 1 FROM access_tokens t
				WHERE t.user_id = u.id AND t.active = 1
				  AND (t.expires_at = 0 OR t.expires_at > ?)
			)
		  )
		ORDER BY u.username
	`)

	rows, err := s.DB.Query(query, now, providerID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query users for provider: %w", err)
	}
	defer rows.Close()

	var users []models.MUser
	for rows.Next() {
		var u models.MUser
		var active, siteOpen int
		var expiresAt int64
		if err := rows.Scan(&u.ID, &u.Username, &active, &expiresAt, &u.SelectedProviderID, &siteOpen); err != nil {
			return nil, err
		}
		u.Active = active != 0
		u.SiteOpen = siteOpen != 0
		u.ExpiresAt = timeFromUnix(expiresAt)
		users = append(users, u)
	}
	return users, rows.Err()
}

// -----------------------------------------------------------------------------

func (s *sqlStore) FindAccessToken(token string) (*models.MAccessToken, error) {
	query := s.bind(`
		SELECT id, user_id, token, allowed_channels, active, expires_at
		FROM access_tokens WHERE token = ?
	`)

	var t models.MAccessToken
	var channelsJSON string
	var active int
	var expiresAt int64
	err := s.DB.QueryRow(query, token).Scan(&t.ID, &t.UserID, &t.Token, &channelsJSON, &active, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query access token: %w", err)
	}

	if channelsJSON != "" {
		if err := json.Unmarshal([]byte(channelsJSON), &t.AllowedChannels); err != nil {
			return nil, fmt.Errorf("failed to decode token channels: %w", err)
		}
	}
	t.Active = active != 0
	t.ExpiresAt = timeFromUnix(expiresAt)
	return &t, nil
}
