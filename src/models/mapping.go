package models

// MFieldMapping translates one provider's raw field code into a canonical
// symbol. (ProviderID, SourceField) is unique among active mappings.
type MFieldMapping struct {
	ID           string  `json:"id"`
	ProviderID   string  `json:"provider_id"`
	SourceField  string  `json:"source_field"`
	TargetSymbol string  `json:"target_symbol"`
	TargetKind   string  `json:"target_kind"` // currency | metal
	Multiplier   float64 `json:"multiplier"`
	Offset       float64 `json:"offset"`
	Formula      string  `json:"formula"` // optional transform, overrides multiplier/offset
	Priority     int     `json:"priority"`
	Active       bool    `json:"active"`
}
