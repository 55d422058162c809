package utils

import (
	"time"

	"github.com/scmhub/calendar"
)

// -----------------------------------------------------------------------------
// MarketSession answers "is this provider's market open right now". Providers
// configured with a MIC code (ISO 10383) use the exchange calendar; anything
// else falls back to a continuous Mon-Fri session, which matches OTC metal
// and currency quoting closing only over the weekend.
// -----------------------------------------------------------------------------

type MarketSession struct {
	Calendar *calendar.Calendar
	Fallback bool
	Timezone *time.Location
}

// -----------------------------------------------------------------------------

func GetSession(mic string) *MarketSession {
	if mic != "" {
		if cal := calendar.GetCalendar(mic); cal != nil {
			return &MarketSession{Calendar: cal, Timezone: cal.Loc}
		}
	}
	return &MarketSession{Fallback: true, Timezone: time.UTC}
}

// -----------------------------------------------------------------------------

// IsOpen checks whether the market trades at the given instant.
func (s *MarketSession) IsOpen(t time.Time) bool {
	if s.Timezone != nil {
		t = t.In(s.Timezone)
	}

	if s.Fallback {
		weekday := t.Weekday()
		return weekday != time.Saturday && weekday != time.Sunday
	}
	return s.Calendar.IsOpen(t)
}

// -----------------------------------------------------------------------------

// IsTradingDay reports whether the date is a business day for the market.
func (s *MarketSession) IsTradingDay(t time.Time) bool {
	if s.Timezone != nil {
		t = t.In(s.Timezone)
	}

	if s.Fallback {
		weekday := t.Weekday()
		return weekday != time.Saturday && weekday != time.Sunday
	}
	return s.Calendar.IsBusinessDay(t)
}
