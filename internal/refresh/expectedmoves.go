package refresh

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/brokerpilot/api/internal/broker"
	"github.com/brokerpilot/api/internal/expiration"
	"github.com/brokerpilot/api/internal/types"
	"github.com/rs/zerolog/log"
)

// fallbackHorizonDays is used when no broker supplies an expiration
// calendar for a symbol.
const fallbackHorizonDays = 30

// RecomputeExpectedMoves recalculates the expected price move for every
// symbol with a stored quote snapshot, using the time to the next weekly
// option expiration as the horizon. Per-symbol failures are recorded and do
// not abort the run.
func (c *Conductor) RecomputeExpectedMoves(ctx context.Context, cal *expiration.Calendar) (Result, error) {
	logger := log.With().Str("component", "expected_moves").Logger()

	quotes, err := c.ledger.GetQuoteSnapshots()
	if err != nil {
		return Result{}, err
	}

	result := Result{Failures: make(map[string]error)}
	for _, quote := range quotes {
		horizon := c.horizonDays(ctx, cal, quote.Symbol)
		move := expectedMove(quote, horizon)
		if err := c.ledger.UpdateQuoteExpectedMove(quote.Symbol, move); err != nil {
			result.Failures[quote.Symbol] = err
			continue
		}
		result.Refreshed = append(result.Refreshed, quote.Symbol)
		logger.Debug().
			Str("symbol", quote.Symbol).
			Int("horizon_days", horizon).
			Float64("expected_move", move).
			Msg("expected move recomputed")
	}

	logger.Info().
		Int("recomputed", len(result.Refreshed)).
		Int("failures", len(result.Failures)).
		Msg("expected move recompute complete")
	return result, nil
}

// horizonDays finds the number of trading-zone days to the next weekly
// expiration for a symbol, asking each broker in turn until one supplies a
// calendar.
func (c *Conductor) horizonDays(ctx context.Context, cal *expiration.Calendar, symbol string) int {
	for _, gw := range c.registry.All() {
		dates, err := gw.GetOptionExpirations(ctx, symbol)
		if err != nil {
			if !errors.Is(err, broker.ErrNotSupported) {
				log.Debug().Err(err).
					Str("broker", gw.Name()).
					Str("symbol", symbol).
					Msg("expiration calendar fetch failed")
			}
			continue
		}
		next := cal.NextOfType(dates, types.ExpiryWeekly)
		if next == nil {
			continue
		}
		days := int(next.Time(cal.Location()).Sub(cal.Today()).Hours() / 24)
		if days > 0 {
			return days
		}
	}
	return fallbackHorizonDays
}

// expectedMove estimates the one-sigma price move over the horizon. With an
// implied volatility it is the standard annualised-vol scaling; without one
// the previous close-to-close change stands in as the daily move.
func expectedMove(quote types.QuoteSnapshot, horizonDays int) float64 {
	yearFraction := float64(horizonDays) / 365.0
	if quote.ImpliedVol > 0 {
		return quote.Last * quote.ImpliedVol * math.Sqrt(yearFraction)
	}
	daily := math.Abs(quote.Last - quote.PrevClose)
	return daily * math.Sqrt(float64(horizonDays))
}

// CheckAccessTokens reports which brokers' sessions expire soon, as an
// operator-facing message.
func (c *Conductor) CheckAccessTokens() (string, int) {
	var expiring []string
	for _, gw := range c.registry.All() {
		if gw.AccessTokenExpiresSoon() {
			expiring = append(expiring, gw.Name())
		}
	}
	if len(expiring) == 0 {
		return "all broker access tokens are current", 0
	}
	msg := fmt.Sprintf("%d broker access token(s) expiring soon:", len(expiring))
	for _, id := range expiring {
		msg += "\n  " + id
	}
	return msg, len(expiring)
}
