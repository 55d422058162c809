package models

import "time"

// MQuote is the canonical live state for one (symbol, provider) pair.
type MQuote struct {
	Symbol            string      `json:"symbol"`
	ProviderID        string      `json:"provider_id"`
	ProviderName      string      `json:"provider_name"`
	Currency          string      `json:"currency"`
	BuyPrice          float64     `json:"buy_price"`
	SellPrice         float64     `json:"sell_price"`
	PreviousBuyPrice  float64     `json:"previous_buy_price"`
	PreviousSellPrice float64     `json:"previous_sell_price"`
	ChangePercentBuy  float64     `json:"change_percent_buy"`
	ChangePercentSell float64     `json:"change_percent_sell"`
	Daily             MDailyStats `json:"daily"`
	Active            bool        `json:"active"`
	LastUpdatedAt     time.Time   `json:"last_updated_at"`
	LastCheckedAt     time.Time   `json:"last_checked_at"`
}

// MDailyStats tracks the open/high/low per side for the current calendar day.
// Date is "YYYY-MM-DD" in local time; closing fields hold the previous day's
// last values after a rollover.
type MDailyStats struct {
	Date             string  `json:"date"`
	OpenBuy          float64 `json:"open_buy"`
	OpenSell         float64 `json:"open_sell"`
	HighBuy          float64 `json:"high_buy"`
	HighSell         float64 `json:"high_sell"`
	LowBuy           float64 `json:"low_buy"`
	LowSell          float64 `json:"low_sell"`
	ClosingBuyPrice  float64 `json:"closing_buy_price"`
	ClosingSellPrice float64 `json:"closing_sell_price"`
}

// -----------------------------------------------------------------------------

// MPriceFilter narrows current-price queries. Zero values mean "any".
type MPriceFilter struct {
	Symbol     string
	ProviderID string
	ActiveOnly bool
}

// -----------------------------------------------------------------------------

// MUpsertResult is what the price store reports back to the tick pipeline.
type MUpsertResult struct {
	Updated       bool    // false when buy and sell both matched the stored values
	First         bool    // true on the very first tick for the key
	ChangePercent float64 // average of the buy/sell percent deltas
	AbsoluteDelta float64 // max absolute delta across the two sides
	PreviousZero  bool    // a stored side was zero; percent delta is undefined
}
