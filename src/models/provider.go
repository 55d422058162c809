package models

import "time"

// MProvider is the persisted record for one upstream quote source.
type MProvider struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	DisplayName  string    `json:"display_name"`
	Kind         string    `json:"kind"` // push-socket | poll-json | poll-xml
	IntervalSecs int       `json:"interval_seconds"`
	Priority     int       `json:"priority"`
	Active       bool      `json:"active"`
	Reliability  float64   `json:"reliability"` // rolling success ratio
	SuccessCount int64     `json:"success_count"`
	ErrorCount   int64     `json:"error_count"`
	LastUpdate   time.Time `json:"last_update"`
	LastError    string    `json:"last_error"`
	CreatedAt    time.Time `json:"created_at"`
}

// -----------------------------------------------------------------------------

// MProviderStatus carries the per-attempt mutation applied after each cycle.
type MProviderStatus struct {
	LastUpdate time.Time
	LastError  string
	Success    bool // increments success or error counter
}
