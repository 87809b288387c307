// Package expiration selects upcoming option-expiration dates from a
// broker-supplied calendar. Dates are compared on trading days in the
// exchange's local timezone, not the caller's wall clock.
package expiration

import (
	"fmt"
	"time"

	"github.com/brokerpilot/api/internal/types"
)

// tradingZone is the exchange's local timezone. The trading day runs
// midnight to midnight in this zone, so "today" rolls over at Eastern
// midnight whatever the host timezone is.
const tradingZone = "America/New_York"

// Calendar answers "what expires next" questions against the exchange's
// trading-day boundary. The zero value is unusable; construct with New.
type Calendar struct {
	loc *time.Location
	now func() time.Time
}

// New creates a Calendar using the real timezone database and clock.
func New() (*Calendar, error) {
	loc, err := time.LoadLocation(tradingZone)
	if err != nil {
		return nil, fmt.Errorf("load trading timezone: %w", err)
	}
	return &Calendar{loc: loc, now: time.Now}, nil
}

// NewWithClock creates a Calendar with an injected clock for tests.
func NewWithClock(now func() time.Time) (*Calendar, error) {
	c, err := New()
	if err != nil {
		return nil, err
	}
	c.now = now
	return c, nil
}

// Location returns the exchange's trading timezone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Today returns the current trading day as local midnight in the exchange
// timezone. The instant's UTC offset varies with daylight saving.
func (c *Calendar) Today() time.Time {
	now := c.now().In(c.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.loc)
}

// NextOfType returns the earliest calendar entry of the given type that
// falls strictly after today's trading day, or nil when none qualifies.
// Today's date never qualifies even if listed. WEEKLY entries only qualify
// when they fall on a Friday; non-Friday weeklies are ignored outright.
func (c *Calendar) NextOfType(calendar []types.OptionExpirationDate, expiryType types.ExpiryType) *types.OptionExpirationDate {
	today := c.Today()

	var best *types.OptionExpirationDate
	for i := range calendar {
		entry := calendar[i]
		if entry.ExpiryType != expiryType {
			continue
		}
		if expiryType == types.ExpiryWeekly && entry.Weekday() != time.Friday {
			continue
		}
		if !entry.Time(c.loc).After(today) {
			continue
		}
		if best == nil || entry.Before(*best) {
			best = &entry
		}
	}
	return best
}
