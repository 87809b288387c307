// Package reconcile converges the ledger with the brokers' authoritative
// order status. The ledger is the record of user intent; broker state only
// moves local status forward along the allowed transitions.
package reconcile

import (
	"context"
	"fmt"

	"github.com/brokerpilot/api/internal/broker"
	"github.com/brokerpilot/api/internal/ledger"
	"github.com/brokerpilot/api/internal/types"
	"github.com/rs/zerolog/log"
)

// Service pulls true status for open orders from their brokers and updates
// the ledger when it differs.
type Service struct {
	ledger   *ledger.Ledger
	registry *broker.Registry
}

// NewService creates a reconciliation service.
func NewService(l *ledger.Ledger, r *broker.Registry) *Service {
	return &Service{ledger: l, registry: r}
}

// Result summarises one reconciliation pass.
type Result struct {
	Checked  int
	Updated  int
	Failures []string
}

// FormatFailures returns a human-readable failure summary, empty when the
// pass had no failures.
func (r Result) FormatFailures() string {
	if len(r.Failures) == 0 {
		return ""
	}
	msg := fmt.Sprintf("%d order status refresh failure(s):", len(r.Failures))
	for _, f := range r.Failures {
		msg += "\n  " + f
	}
	return msg
}

// RefreshOrderStatus queries each locally OPEN order's broker and converges
// the ledger. Broker failures are recorded per order and never abort the
// pass; a ledger read failure does.
func (s *Service) RefreshOrderStatus(ctx context.Context) (Result, error) {
	logger := log.With().Str("component", "reconcile").Logger()

	orders, err := s.ledger.GetPlaceOrders("symbol", "asc")
	if err != nil {
		return Result{}, err
	}

	var result Result
	for i := range orders {
		order := &orders[i]
		if order.Status != types.StatusOpen || !order.Submitted() {
			continue
		}
		result.Checked++
		if err := s.RefreshOne(ctx, order); err != nil {
			result.Failures = append(result.Failures,
				fmt.Sprintf("order %d (%s): %v", order.ID, order.Symbol, err))
			logger.Error().Err(err).
				Uint("order_id", order.ID).
				Str("symbol", order.Symbol).
				Msg("failed to refresh order status")
			continue
		}
		if order.Status != types.StatusOpen {
			result.Updated++
		}
	}

	logger.Info().
		Int("checked", result.Checked).
		Int("updated", result.Updated).
		Int("failures", len(result.Failures)).
		Msg("order status refresh complete")
	return result, nil
}

// RefreshOne queries the broker for a single order and applies the status
// if it moved. Orders whose account maps to no configured broker are
// skipped silently. Terminal local statuses never regress: a broker
// reporting OPEN for an EXECUTED order is staleness, logged and ignored.
func (s *Service) RefreshOne(ctx context.Context, order *types.PlaceOrder) error {
	logger := log.With().
		Str("component", "reconcile").
		Uint("order_id", order.ID).
		Str("symbol", order.Symbol).
		Logger()

	if !order.Submitted() {
		return nil
	}

	gw, account, err := s.registry.ForAccount(s.ledger, order.AccountID)
	if err != nil {
		return err
	}
	if gw == nil {
		logger.Debug().Str("account_id", order.AccountID).Msg("account has no configured broker, skipping")
		return nil
	}

	brokerStatus, err := gw.GetOrderStatus(ctx, account, order.BrokerOrderID)
	if err != nil {
		return fmt.Errorf("query %s: %w", gw.Name(), err)
	}

	if brokerStatus == order.Status {
		return nil
	}
	if !order.Status.CanTransition(brokerStatus) {
		logger.Info().
			Str("local_status", string(order.Status)).
			Str("broker_status", string(brokerStatus)).
			Msg("broker status is stale, keeping local status")
		return nil
	}

	logger.Info().
		Str("from", string(order.Status)).
		Str("to", string(brokerStatus)).
		Msg("order status changed at broker")
	order.Status = brokerStatus
	return s.ledger.UpsertPlaceOrder(order)
}

// CancelBeforeMutate issues a best-effort broker cancellation for an OPEN
// order with a live broker id, ahead of a local price/quantity change or
// delete. A cancellation failure is returned as a warning string, never an
// error: local state is the record of user intent and the mutation proceeds
// regardless. The next reconciliation pass cleans up either way.
func (s *Service) CancelBeforeMutate(ctx context.Context, order *types.PlaceOrder) string {
	if order.Status != types.StatusOpen || !order.Submitted() {
		return ""
	}

	logger := log.With().
		Str("component", "reconcile").
		Uint("order_id", order.ID).
		Str("broker_order_id", order.BrokerOrderID).
		Logger()

	gw, account, err := s.registry.ForAccount(s.ledger, order.AccountID)
	if err != nil || gw == nil {
		warning := fmt.Sprintf("broker cancellation skipped for order %d: no gateway", order.ID)
		logger.Warn().Err(err).Msg("could not resolve gateway for cancellation")
		return warning
	}

	if err := gw.CancelOrder(ctx, account, order.BrokerOrder()); err != nil {
		warning := fmt.Sprintf("broker cancellation failed for order %d: %v", order.ID, err)
		logger.Warn().Err(err).Msg("broker cancellation failed, proceeding with local mutation")
		return warning
	}

	logger.Info().Msg("broker order cancelled ahead of local mutation")
	return ""
}
