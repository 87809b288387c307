// Package orders owns the PlaceOrder lifecycle: validation and CRUD for
// pending trade intents, and the daily processing pass that keeps an active
// broker-side order for every non-terminal PlaceOrder.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/brokerpilot/api/internal/broker"
	"github.com/brokerpilot/api/internal/ledger"
	"github.com/brokerpilot/api/internal/reconcile"
	"github.com/brokerpilot/api/internal/types"
	"github.com/rs/zerolog/log"
)

// ErrValidation marks bad caller input, rejected before any broker call.
var ErrValidation = errors.New("validation failed")

// Service handles order management and the daily resubmission pass.
type Service struct {
	ledger     *ledger.Ledger
	registry   *broker.Registry
	reconciler *reconcile.Service
}

// NewService creates an order service.
func NewService(l *ledger.Ledger, r *broker.Registry, rec *reconcile.Service) *Service {
	return &Service{ledger: l, registry: r, reconciler: rec}
}

// CreateOrderRequest is the payload accepted by the create endpoint.
type CreateOrderRequest struct {
	AccountID string  `json:"account_id"`
	Symbol    string  `json:"symbol"`
	Action    string  `json:"action"`
	Price     float64 `json:"price"`
	Quantity  int64   `json:"quantity"`
}

// UpdateOrderRequest is the payload accepted by the update endpoint.
type UpdateOrderRequest struct {
	Price          float64 `json:"price"`
	Quantity       int64   `json:"quantity"`
	CancelExisting bool    `json:"cancel_existing"`
}

// Create validates the request and persists a new PlaceOrder. Nothing is
// submitted to a broker here; submission is the processor's job.
func (s *Service) Create(req CreateOrderRequest) (*types.PlaceOrderView, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrValidation)
	}
	if req.Price <= 0 {
		return nil, fmt.Errorf("%w: price must be greater than zero", ErrValidation)
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be greater than zero", ErrValidation)
	}
	action, err := types.ParseOrderAction(req.Action)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	account, err := s.ledger.GetAccount(req.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("%w: unknown account %q", ErrValidation, req.AccountID)
	}

	order := &types.PlaceOrder{
		AccountID: req.AccountID,
		Symbol:    symbol,
		Action:    action,
		Price:     req.Price,
		Quantity:  req.Quantity,
	}
	if err := s.ledger.UpsertPlaceOrder(order); err != nil {
		return nil, err
	}

	log.Info().
		Uint("order_id", order.ID).
		Str("symbol", order.Symbol).
		Str("action", order.Action.String()).
		Float64("price", order.Price).
		Int64("quantity", order.Quantity).
		Msg("place order created")

	view := types.NewPlaceOrderView(order, account.Name)
	return &view, nil
}

// Update changes price and quantity on an order. Terminal orders are
// immutable. When cancelExisting is set and the order is OPEN with a live
// broker id, the broker order is cancelled best-effort first; the local
// update applies regardless and a status refresh follows.
func (s *Service) Update(ctx context.Context, id uint, req UpdateOrderRequest) (*types.PlaceOrderView, error) {
	order, err := s.ledger.GetPlaceOrder(id)
	if err != nil {
		return nil, err
	}
	if order.Status.Terminal() {
		return nil, fmt.Errorf("%w: order %d is %s and cannot be modified", ErrValidation, id, order.Status)
	}
	if req.Price <= 0 {
		return nil, fmt.Errorf("%w: price must be greater than zero", ErrValidation)
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be greater than zero", ErrValidation)
	}

	var warning string
	if req.CancelExisting {
		warning = s.reconciler.CancelBeforeMutate(ctx, order)
		// The broker order is gone (or dying); the processor will submit a
		// fresh one for the new terms.
		order.BrokerOrderID = ""
		order.Status = ""
	}

	order.Price = req.Price
	order.Quantity = req.Quantity
	if err := s.ledger.UpsertPlaceOrder(order); err != nil {
		return nil, err
	}

	if order.Submitted() {
		if err := s.reconciler.RefreshOne(ctx, order); err != nil {
			log.Warn().Err(err).Uint("order_id", order.ID).Msg("post-update status refresh failed")
		}
	}

	view := s.view(order)
	view.CancelWarning = warning
	return &view, nil
}

// Delete removes an order. An OPEN order with a live broker id gets a
// best-effort broker cancellation first; the delete proceeds regardless of
// the cancellation outcome.
func (s *Service) Delete(ctx context.Context, id uint) (*types.PlaceOrderView, error) {
	order, err := s.ledger.GetPlaceOrder(id)
	if err != nil {
		return nil, err
	}

	warning := s.reconciler.CancelBeforeMutate(ctx, order)
	if err := s.ledger.DeletePlaceOrderByID(id); err != nil {
		return nil, err
	}

	log.Info().Uint("order_id", id).Str("symbol", order.Symbol).Msg("place order deleted")

	view := s.view(order)
	view.CancelWarning = warning
	return &view, nil
}

// DeleteExecuted purges all EXECUTED orders from the ledger.
func (s *Service) DeleteExecuted() (int64, error) {
	n, err := s.ledger.DeleteExecutedPlaceOrders()
	if err != nil {
		return 0, err
	}
	log.Info().Int64("deleted", n).Msg("purged executed place orders")
	return n, nil
}

// List returns all orders as views, sorted by the caller's column, along
// with the freshness of the quote snapshots backing the list.
func (s *Service) List(sortKey, direction string) (*types.OrderListResponse, error) {
	orders, err := s.ledger.GetPlaceOrders(sortKey, direction)
	if err != nil {
		return nil, err
	}
	asOf, err := s.ledger.QuotesAsOf()
	if err != nil {
		return nil, err
	}

	views := make([]types.PlaceOrderView, 0, len(orders))
	for i := range orders {
		views = append(views, s.view(&orders[i]))
	}
	return &types.OrderListResponse{QuotesAsOf: asOf, Orders: views}, nil
}

// Get returns a single order view, or ledger.ErrNotFound.
func (s *Service) Get(id uint) (*types.PlaceOrderView, error) {
	order, err := s.ledger.GetPlaceOrder(id)
	if err != nil {
		return nil, err
	}
	view := s.view(order)
	return &view, nil
}

func (s *Service) view(order *types.PlaceOrder) types.PlaceOrderView {
	name := ""
	if account, err := s.ledger.GetAccount(order.AccountID); err == nil && account != nil {
		name = account.Name
	}
	return types.NewPlaceOrderView(order, name)
}
