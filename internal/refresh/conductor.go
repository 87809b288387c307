// Package refresh orchestrates account and quote synchronisation across
// every configured broker, throttled so a scheduled run stays inside broker
// API quotas, and recomputes expected price-move statistics from the stored
// quote snapshots.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/brokerpilot/api/internal/broker"
	"github.com/brokerpilot/api/internal/ledger"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Conductor fans refresh work out across brokers. One broker's failure is
// captured and never prevents the rest of the fleet from refreshing.
type Conductor struct {
	ledger   *ledger.Ledger
	registry *broker.Registry

	staleAfter time.Duration

	mu            sync.Mutex
	lastRefreshed map[string]time.Time
}

// NewConductor creates a conductor. staleAfter is how long a broker's data
// stays fresh before a non-forced run touches it again.
func NewConductor(l *ledger.Ledger, r *broker.Registry, staleAfter time.Duration) *Conductor {
	return &Conductor{
		ledger:        l,
		registry:      r,
		staleAfter:    staleAfter,
		lastRefreshed: make(map[string]time.Time),
	}
}

// Result reports the outcome of one fleet refresh.
type Result struct {
	Refreshed      []string
	SkippedAsFresh []string
	Failures       map[string]error
}

// FormatFailures returns a human-readable summary of the per-broker
// failures, empty exactly when every broker succeeded.
func (r Result) FormatFailures() string {
	if len(r.Failures) == 0 {
		return ""
	}
	ids := make([]string, 0, len(r.Failures))
	for id := range r.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	msg := fmt.Sprintf("%d broker refresh failure(s):", len(ids))
	for _, id := range ids {
		msg += fmt.Sprintf("\n  %s: %v", id, r.Failures[id])
	}
	return msg
}

// Message returns the operator-facing summary for the run.
func (r Result) Message() string {
	if len(r.Failures) == 0 {
		return fmt.Sprintf("refreshed %d broker(s)", len(r.Refreshed))
	}
	return fmt.Sprintf("refreshed %d broker(s) with %d failure(s)", len(r.Refreshed), len(r.Failures))
}

// RefreshTheWorld refreshes accounts and quotes for every configured
// broker, spacing consecutive broker calls by throttle. Unless forceAll is
// set, brokers refreshed within the staleness window are skipped. A ledger
// failure is a hard failure and returns an error; broker failures are
// recorded in the result.
func (c *Conductor) RefreshTheWorld(ctx context.Context, forceAll bool, throttle time.Duration) (Result, error) {
	logger := log.With().Str("component", "refresh_conductor").Logger()

	result := Result{Failures: make(map[string]error)}
	limiter := rate.NewLimiter(rate.Every(throttle), 1)

	for _, gw := range c.registry.All() {
		if !forceAll && !c.stale(gw.Name()) {
			result.SkippedAsFresh = append(result.SkippedAsFresh, gw.Name())
			logger.Debug().Str("broker", gw.Name()).Msg("broker data still fresh, skipping")
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			return result, err
		}

		if err := c.refreshBroker(ctx, gw); err != nil {
			if isLedgerError(err) {
				return result, err
			}
			result.Failures[gw.Name()] = err
			logger.Error().Err(err).Str("broker", gw.Name()).Msg("broker refresh failed")
			continue
		}

		c.markRefreshed(gw.Name())
		result.Refreshed = append(result.Refreshed, gw.Name())
		logger.Info().Str("broker", gw.Name()).Msg("broker refreshed")
	}

	logger.Info().
		Int("refreshed", len(result.Refreshed)).
		Int("skipped", len(result.SkippedAsFresh)).
		Int("failures", len(result.Failures)).
		Msg("fleet refresh complete")
	return result, nil
}

// refreshBroker imports the broker's accounts and captures quotes for every
// symbol with a pending order at that broker.
func (c *Conductor) refreshBroker(ctx context.Context, gw broker.Gateway) error {
	accounts, err := gw.ImportAccounts(ctx)
	if err != nil {
		return fmt.Errorf("import accounts: %w", err)
	}
	if err := c.ledger.UpsertAccounts(accounts); err != nil {
		return &ledgerError{err}
	}

	symbols, err := c.pendingSymbols(gw.Name())
	if err != nil {
		return &ledgerError{err}
	}
	if len(symbols) == 0 {
		return nil
	}

	quotes, err := gw.GetQuotes(ctx, symbols)
	if err != nil {
		return fmt.Errorf("fetch quotes: %w", err)
	}
	if err := c.ledger.SaveQuoteSnapshots(quotes); err != nil {
		return &ledgerError{err}
	}
	return nil
}

// pendingSymbols returns the distinct symbols of non-terminal orders whose
// accounts belong to the given broker.
func (c *Conductor) pendingSymbols(brokerID string) ([]string, error) {
	orders, err := c.ledger.GetPlaceOrders("symbol", "asc")
	if err != nil {
		return nil, err
	}
	accounts, err := c.ledger.GetAccounts()
	if err != nil {
		return nil, err
	}
	accountBroker := make(map[string]string, len(accounts))
	for _, a := range accounts {
		accountBroker[a.AccountID] = a.BrokerID
	}

	seen := make(map[string]bool)
	var symbols []string
	for _, o := range orders {
		if o.Status.Terminal() {
			continue
		}
		if accountBroker[o.AccountID] != brokerID {
			continue
		}
		if !seen[o.Symbol] {
			seen[o.Symbol] = true
			symbols = append(symbols, o.Symbol)
		}
	}
	return symbols, nil
}

func (c *Conductor) stale(brokerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.lastRefreshed[brokerID]
	return !ok || time.Since(last) >= c.staleAfter
}

func (c *Conductor) markRefreshed(brokerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastRefreshed[brokerID] = time.Now()
}

// ledgerError marks a storage failure, which is fatal to the run rather
// than a per-broker failure.
type ledgerError struct {
	err error
}

func (e *ledgerError) Error() string { return e.err.Error() }
func (e *ledgerError) Unwrap() error { return e.err }

func isLedgerError(err error) bool {
	var le *ledgerError
	return errors.As(err, &le)
}
