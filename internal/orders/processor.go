package orders

import (
	"context"
	"fmt"

	"github.com/brokerpilot/api/internal/types"
	"github.com/rs/zerolog/log"
)

// BatchResult summarises one processing pass over the order book.
type BatchResult struct {
	Submitted int
	Skipped   int
	Failures  []string
}

// FormatFailures returns a human-readable failure summary, empty when the
// pass had no failures.
func (r BatchResult) FormatFailures() string {
	if len(r.Failures) == 0 {
		return ""
	}
	msg := fmt.Sprintf("%d order submission failure(s):", len(r.Failures))
	for _, f := range r.Failures {
		msg += "\n  " + f
	}
	return msg
}

// Message returns the operator-facing summary for the pass.
func (r BatchResult) Message() string {
	if len(r.Failures) == 0 {
		return fmt.Sprintf("processed orders: %d submitted, %d skipped", r.Submitted, r.Skipped)
	}
	return fmt.Sprintf("processed orders with %d failure(s): %d submitted, %d skipped",
		len(r.Failures), r.Submitted, r.Skipped)
}

// ProcessOrders ensures every non-terminal PlaceOrder has an active
// broker-side order for the current session. Extended-hours limit orders
// die at the end of each session, so unfilled orders are resubmitted daily
// until filled or cancelled. One order's failure never aborts the batch.
func (s *Service) ProcessOrders(ctx context.Context) (BatchResult, error) {
	logger := log.With().Str("component", "order_processor").Logger()

	orders, err := s.ledger.GetPlaceOrders("symbol", "asc")
	if err != nil {
		return BatchResult{}, err
	}

	var result BatchResult
	for i := range orders {
		order := &orders[i]
		if order.Status.Terminal() {
			result.Skipped++
			continue
		}

		submitted, err := s.processOne(ctx, order)
		if err != nil {
			result.Failures = append(result.Failures,
				fmt.Sprintf("order %d (%s): %v", order.ID, order.Symbol, err))
			logger.Error().Err(err).
				Uint("order_id", order.ID).
				Str("symbol", order.Symbol).
				Msg("order processing failed")
			// The failure is recorded on the order too, so the UI shows the
			// attempt happened.
			if touchErr := s.ledger.UpsertPlaceOrder(order); touchErr != nil {
				logger.Error().Err(touchErr).Uint("order_id", order.ID).Msg("failed to record processing attempt")
			}
			continue
		}
		if submitted {
			result.Submitted++
		} else {
			result.Skipped++
		}
	}

	logger.Info().
		Int("submitted", result.Submitted).
		Int("skipped", result.Skipped).
		Int("failures", len(result.Failures)).
		Msg("order processing complete")
	return result, nil
}

// processOne decides whether a single order needs a fresh broker
// submission and performs it. It returns true when a new broker order was
// placed. An order is only resubmitted when it has never been submitted or
// its previous broker order is confirmed no longer live; an unreachable
// broker is a failure, not a resubmission, so the batch can never
// double-submit.
func (s *Service) processOne(ctx context.Context, order *types.PlaceOrder) (bool, error) {
	gw, account, err := s.registry.ForAccount(s.ledger, order.AccountID)
	if err != nil {
		return false, err
	}
	if gw == nil {
		log.Debug().
			Uint("order_id", order.ID).
			Str("account_id", order.AccountID).
			Msg("account has no configured broker, skipping")
		return false, nil
	}

	if order.Submitted() {
		status, err := gw.GetOrderStatus(ctx, account, order.BrokerOrderID)
		if err != nil {
			return false, fmt.Errorf("check existing broker order: %w", err)
		}
		switch status {
		case types.StatusOpen:
			// Still live for this session, nothing to do.
			return false, nil
		case types.StatusExecuted:
			// Filled since the last reconciliation; record it rather than
			// waiting for the next status refresh.
			if order.Status.CanTransition(types.StatusExecuted) {
				order.Status = types.StatusExecuted
				if err := s.ledger.UpsertPlaceOrder(order); err != nil {
					return false, err
				}
			}
			return false, nil
		}
		// CANCELLED or expired at the broker: the order needs a fresh
		// submission for today's session.
	}

	brokerOrderID, err := gw.PlaceOrder(ctx, account, order.BrokerOrder())
	if err != nil {
		return false, fmt.Errorf("submit to %s: %w", gw.Name(), err)
	}

	order.BrokerOrderID = brokerOrderID
	order.Status = types.StatusOpen
	if err := s.ledger.UpsertPlaceOrder(order); err != nil {
		return false, fmt.Errorf("record submission %s: %w", brokerOrderID, err)
	}

	log.Info().
		Uint("order_id", order.ID).
		Str("symbol", order.Symbol).
		Str("broker", gw.Name()).
		Str("broker_order_id", brokerOrderID).
		Msg("order submitted to broker")
	return true, nil
}
