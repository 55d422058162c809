package models

import "time"

// MHistoryEntry is an immutable snapshot of a quote taken by the archive job.
type MHistoryEntry struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	ProviderID string    `json:"provider_id"`
	BuyPrice   float64   `json:"buy_price"`
	SellPrice  float64   `json:"sell_price"`
	Daily      MDailyStats `json:"daily"`
	QuotedAt   time.Time `json:"quoted_at"`   // last update of the live quote
	ArchivedAt time.Time `json:"archived_at"`
}

// -----------------------------------------------------------------------------

// MRunLog records one scheduler run (archive or retention).
type MRunLog struct {
	ID         string        `json:"id"`
	Job        string        `json:"job"` // "archive" | "retention"
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Count      int           `json:"count"` // entries archived or rows purged
	Errors     []string      `json:"errors"`
	Success    bool          `json:"success"`
	Skipped    bool          `json:"skipped"` // run refused because one was in flight
}
