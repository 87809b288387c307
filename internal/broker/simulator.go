package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brokerpilot/api/internal/types"
)

// Compile-time interface check.
var _ Gateway = (*Simulator)(nil)

// Simulator is an in-memory gateway used for development and tests. Orders
// rest as OPEN until MarkFilled or MarkCancelled moves them, so tests drive
// the lifecycle deterministically.
type Simulator struct {
	name string

	mu      sync.Mutex
	nextID  int
	orders  map[string]types.OrderStatus
	quotes  map[string]float64
	expires bool
}

// NewSimulator creates a simulator gateway registered under name.
func NewSimulator(name string) *Simulator {
	return &Simulator{
		name:   name,
		orders: make(map[string]types.OrderStatus),
		quotes: map[string]float64{
			"SPY":  500.25,
			"AAPL": 190.10,
		},
	}
}

// Name returns the configured broker id.
func (s *Simulator) Name() string {
	return s.name
}

// ImportAccounts returns one synthetic account per simulator.
func (s *Simulator) ImportAccounts(_ context.Context) ([]types.Account, error) {
	return []types.Account{{
		AccountID: s.name + "-acct-1",
		Name:      "Simulated " + s.name,
		BrokerID:  s.name,
	}}, nil
}

// PlaceOrder accepts any valid order and returns a fresh broker order id.
func (s *Simulator) PlaceOrder(_ context.Context, _ *types.Account, order types.Order) (string, error) {
	if order.Quantity <= 0 || order.Price <= 0 {
		return "", fmt.Errorf("simulator: rejected order for %s", order.Symbol)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := fmt.Sprintf("%s-%d", s.name, s.nextID)
	s.orders[id] = types.StatusOpen
	return id, nil
}

// CancelOrder cancels an open simulated order.
func (s *Simulator) CancelOrder(_ context.Context, _ *types.Account, order types.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.orders[order.BrokerOrderID]
	if !ok {
		return fmt.Errorf("simulator: unknown order %s", order.BrokerOrderID)
	}
	if status == types.StatusOpen {
		s.orders[order.BrokerOrderID] = types.StatusCancelled
	}
	return nil
}

// GetOrderStatus returns the simulated status for an order.
func (s *Simulator) GetOrderStatus(_ context.Context, _ *types.Account, brokerOrderID string) (types.OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.orders[brokerOrderID]
	if !ok {
		return "", fmt.Errorf("simulator: unknown order %s", brokerOrderID)
	}
	return status, nil
}

// GetQuotes returns fixed development quotes for known symbols.
func (s *Simulator) GetQuotes(_ context.Context, symbols []string) ([]types.QuoteSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var quotes []types.QuoteSnapshot
	for _, sym := range symbols {
		last, ok := s.quotes[sym]
		if !ok {
			last = 100.0
		}
		quotes = append(quotes, types.QuoteSnapshot{
			Symbol:    sym,
			Last:      last,
			PrevClose: last * 0.99,
			AsOf:      now,
		})
	}
	return quotes, nil
}

// GetOptionExpirations returns a small synthetic calendar: daily entries
// for the next week plus the next two Fridays as weeklies.
func (s *Simulator) GetOptionExpirations(_ context.Context, _ string) ([]types.OptionExpirationDate, error) {
	var dates []types.OptionExpirationDate
	day := time.Now().AddDate(0, 0, 1)
	fridays := 0
	for i := 0; i < 21 && fridays < 2; i++ {
		d := day.AddDate(0, 0, i)
		dates = append(dates, types.OptionExpirationDate{
			Year: d.Year(), Month: d.Month(), Day: d.Day(), ExpiryType: types.ExpiryDaily,
		})
		if d.Weekday() == time.Friday {
			dates = append(dates, types.OptionExpirationDate{
				Year: d.Year(), Month: d.Month(), Day: d.Day(), ExpiryType: types.ExpiryWeekly,
			})
			fridays++
		}
	}
	return dates, nil
}

// AccessTokenExpiresSoon reports the value set by SetTokenExpiring.
func (s *Simulator) AccessTokenExpiresSoon() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expires
}

// SetTokenExpiring controls what AccessTokenExpiresSoon reports.
func (s *Simulator) SetTokenExpiring(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expires = v
}

// MarkFilled transitions a simulated order to EXECUTED.
func (s *Simulator) MarkFilled(brokerOrderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[brokerOrderID] = types.StatusExecuted
}

// MarkCancelled transitions a simulated order to CANCELLED.
func (s *Simulator) MarkCancelled(brokerOrderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[brokerOrderID] = types.StatusCancelled
}
