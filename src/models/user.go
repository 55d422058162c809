package models

import "time"

// MUser is the slice of the account state the pricing dispatcher needs.
type MUser struct {
	ID                 string    `json:"id"`
	Username           string    `json:"username"`
	Active             bool      `json:"active"`
	ExpiresAt          time.Time `json:"expires_at"` // zero means no expiry
	SelectedProviderID string    `json:"selected_provider_id"`
	SiteOpen           bool      `json:"site_open"`
}

// -----------------------------------------------------------------------------

// MAccessToken gates websocket channel access for authenticated connections.
// AllowedChannels holds explicit channel names or the "*" wildcard.
type MAccessToken struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Token           string    `json:"token"`
	AllowedChannels []string  `json:"allowed_channels"`
	Active          bool      `json:"active"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// -----------------------------------------------------------------------------

// MRounding is the per-side rounding policy of a user product.
// Method "none" or Precision 0 only truncates to DecimalPlaces.
type MRounding struct {
	Method        string  `json:"method"` // none | up | down | nearest
	Precision     float64 `json:"precision"`
	DecimalPlaces int     `json:"decimal_places"`
}

// -----------------------------------------------------------------------------

// MUserProduct is a user-owned derived price definition.
type MUserProduct struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Section        string    `json:"section"`
	Name           string    `json:"name"`
	BaseSymbol     string    `json:"base_symbol"`
	BuyingFormula  string    `json:"buying_formula"`
	SellingFormula string    `json:"selling_formula"`
	BuyRounding    MRounding `json:"buy_rounding"`
	SellRounding   MRounding `json:"sell_rounding"`
	Active         bool      `json:"active"`
	DisplayOrder   int       `json:"display_order"`
}
