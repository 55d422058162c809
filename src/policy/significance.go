package policy

import "price-relay/src/models"

// -----------------------------------------------------------------------------
// Significance gates every downstream broadcast so sub-threshold noise does
// not trigger fan-out or per-user recomputation.
// -----------------------------------------------------------------------------

type Significance struct {
	AbsoluteThreshold float64
	PercentThreshold  float64
}

// -----------------------------------------------------------------------------

func NewSignificance(cfg models.MPolicyConfig) *Significance {
	return &Significance{
		AbsoluteThreshold: cfg.AbsoluteThreshold,
		PercentThreshold:  cfg.PercentThreshold,
	}
}

// -----------------------------------------------------------------------------

// IsSignificant reports whether a delta is large enough to broadcast.
// Either threshold crossing qualifies.
func (s *Significance) IsSignificant(absoluteDelta, avgPercentDelta float64) bool {
	if absoluteDelta < 0 {
		absoluteDelta = -absoluteDelta
	}
	if avgPercentDelta < 0 {
		avgPercentDelta = -avgPercentDelta
	}
	return absoluteDelta >= s.AbsoluteThreshold || avgPercentDelta >= s.PercentThreshold
}

// -----------------------------------------------------------------------------

// Judge applies the policy to an upsert result. The very first tick for a
// key is always significant, as is an update whose previous price was zero
// (the percent delta is undefined there, never a numeric fallback).
func (s *Significance) Judge(res models.MUpsertResult) bool {
	if !res.Updated {
		return false
	}
	if res.First || res.PreviousZero {
		return true
	}
	return s.IsSignificant(res.AbsoluteDelta, res.ChangePercent)
}
