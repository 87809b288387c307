package types

import (
	"fmt"
	"time"
)

// ExpiryType is the cadence of an option expiration entry.
type ExpiryType string

const (
	ExpiryDaily     ExpiryType = "DAILY"
	ExpiryWeekly    ExpiryType = "WEEKLY"
	ExpiryMonthly   ExpiryType = "MONTHLY"
	ExpiryMonthEnd  ExpiryType = "MONTHEND"
	ExpiryQuarterly ExpiryType = "QUARTERLY"
)

// OptionExpirationDate is one entry of a broker-supplied expiration
// calendar. It is an immutable value; the stored year/month/day are a
// calendar date in the exchange's local trading timezone.
type OptionExpirationDate struct {
	Year       int        `json:"year"`
	Month      time.Month `json:"month"`
	Day        int        `json:"day"`
	ExpiryType ExpiryType `json:"expiry_type"`
}

// Time maps the calendar date to its midnight instant in the given trading
// timezone. The instant shifts with daylight saving, so callers must pass a
// real timezone database location, not a fixed offset.
func (d OptionExpirationDate) Time(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// Weekday returns the day of the week the entry falls on.
func (d OptionExpirationDate) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday()
}

func (d OptionExpirationDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d (%s)", d.Year, int(d.Month), d.Day, d.ExpiryType)
}

// Before reports whether d falls on an earlier calendar day than other.
func (d OptionExpirationDate) Before(other OptionExpirationDate) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}
