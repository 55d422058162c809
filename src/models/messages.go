package models

// -----------------------------------------------------------------------------
// Fan-out wire payloads
// -----------------------------------------------------------------------------

// MPriceUpdate is the payload published on the global "price" channel and on
// the provider-named channel for every significant update.
type MPriceUpdate struct {
	Symbol            string  `json:"symbol"`
	BuyPrice          float64 `json:"buyPrice"`
	SellPrice         float64 `json:"sellPrice"`
	Currency          string  `json:"currency"`
	Change            float64 `json:"change"`
	Source            string  `json:"source"`
	SourceID          string  `json:"sourceId"`
	PreviousBuyPrice  float64 `json:"previousBuyPrice"`
	PreviousSellPrice float64 `json:"previousSellPrice"`
	Timestamp         int64   `json:"timestamp"`
}

// -----------------------------------------------------------------------------

// MProductPrice is one computed product inside a user feed update.
// Prices are pointers so a failed formula renders as null, not zero.
type MProductPrice struct {
	ProductID     string   `json:"productId"`
	Name          string   `json:"name"`
	BuyingPrice   *float64 `json:"buyingPrice"`
	SellingPrice  *float64 `json:"sellingPrice"`
	DecimalPlaces int      `json:"decimalPlaces"`
	Section       string   `json:"section"`
}

type MUserPricesData struct {
	Products []MProductPrice `json:"products"`
}

// MUserPricesUpdate is published on "user:<id>" after a recomputation pass.
type MUserPricesUpdate struct {
	SourceID string          `json:"sourceId"`
	Data     MUserPricesData `json:"data"`
}

// -----------------------------------------------------------------------------

// MAnomalyAlert is published on "alerts" for disruption transitions.
type MAnomalyAlert struct {
	Service  string `json:"service"`
	Type     string `json:"type"` // "data_disruption"
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// MServiceAlert is published on "system" for background-job failures.
type MServiceAlert struct {
	Service string `json:"service"`
	Message string `json:"message"`
}

// -----------------------------------------------------------------------------
// Subscription protocol
// -----------------------------------------------------------------------------

// MClientCommand for client messages ("subscribe" / "unsubscribe").
type MClientCommand struct {
	Command string `json:"command"`
	Channel string `json:"channel"`
}

// MEnvelope wraps every message pushed over a websocket connection.
type MEnvelope struct {
	Event   string      `json:"event"`
	Channel string      `json:"channel,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
}
