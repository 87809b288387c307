package types

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// OrderAction is the side of a trade. It is the only representation of an
// order's action; the canonical wire form is its string value.
type OrderAction string

const (
	ActionBuy        OrderAction = "BUY"
	ActionSell       OrderAction = "SELL"
	ActionBuyToCover OrderAction = "BUY_TO_COVER"
	ActionSellShort  OrderAction = "SELL_SHORT"
)

// ParseOrderAction maps a string to an OrderAction, case-insensitively.
func ParseOrderAction(s string) (OrderAction, error) {
	switch OrderAction(strings.ToUpper(strings.TrimSpace(s))) {
	case ActionBuy:
		return ActionBuy, nil
	case ActionSell:
		return ActionSell, nil
	case ActionBuyToCover:
		return ActionBuyToCover, nil
	case ActionSellShort:
		return ActionSellShort, nil
	}
	return "", fmt.Errorf("unknown order action %q", s)
}

// String returns the canonical wire form of the action.
func (a OrderAction) String() string {
	return string(a)
}

// Valid reports whether the action is one of the known values.
func (a OrderAction) Valid() bool {
	_, err := ParseOrderAction(string(a))
	return err == nil
}

// OrderStatus is the lifecycle state of a submitted order. The empty string
// means the order has not yet been submitted to a broker.
type OrderStatus string

const (
	StatusOpen      OrderStatus = "OPEN"
	StatusExecuted  OrderStatus = "EXECUTED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == StatusExecuted || s == StatusCancelled
}

// CanTransition reports whether a transition from s to next is allowed.
// Statuses are monotonic: EXECUTED and CANCELLED are final, and a submitted
// order never returns to the unsubmitted state.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s == next {
		return false
	}
	switch s {
	case "":
		return next == StatusOpen || next == StatusExecuted || next == StatusCancelled
	case StatusOpen:
		return next == StatusExecuted || next == StatusCancelled
	default:
		return false
	}
}

// PlaceOrder is a locally-owned intent to trade. It exists independently of
// any broker order until the processor submits it and records the broker's
// order id. The ledger stores PlaceOrders only; broker-side Order records
// are never persisted.
type PlaceOrder struct {
	gorm.Model    `json:"-"`
	AccountID     string      `json:"account_id"`
	Symbol        string      `json:"symbol"`
	Action        OrderAction `json:"action"`
	Price         float64     `json:"price"`
	Quantity      int64       `json:"quantity"`
	Status        OrderStatus `json:"status,omitempty"`
	BrokerOrderID string      `json:"broker_order_id,omitempty"`
	LastUpdated   time.Time   `json:"last_updated"`
	Version       int64       `json:"-"` // optimistic lock, bumped on every update
}

// OrderAmount is the notional value of the order. It is always derived;
// there is no stored amount column.
func (p *PlaceOrder) OrderAmount() float64 {
	return p.Price * float64(p.Quantity)
}

// Submitted reports whether the order has ever been accepted by a broker.
func (p *PlaceOrder) Submitted() bool {
	return p.BrokerOrderID != ""
}

// Order is the broker-side view of an order, used only as the payload
// exchanged with a broker gateway.
type Order struct {
	BrokerOrderID string      `json:"broker_order_id"`
	Symbol        string      `json:"symbol"`
	Action        OrderAction `json:"action"`
	Quantity      int64       `json:"quantity"`
	Price         float64     `json:"price"`
	Amount        float64     `json:"amount"`
	Status        OrderStatus `json:"status"`
}

// BrokerOrder projects a PlaceOrder into the payload a gateway expects.
func (p *PlaceOrder) BrokerOrder() Order {
	return Order{
		BrokerOrderID: p.BrokerOrderID,
		Symbol:        p.Symbol,
		Action:        p.Action,
		Quantity:      p.Quantity,
		Price:         p.Price,
		Amount:        p.OrderAmount(),
		Status:        p.Status,
	}
}

// Account routes orders to the broker that holds it. Accounts are imported
// from the brokers during fleet refresh; the core otherwise only reads them.
type Account struct {
	gorm.Model `json:"-"`
	AccountID  string `gorm:"uniqueIndex" json:"account_id"`
	Name       string `json:"name"`
	BrokerID   string `json:"broker_id"`
}

// QuoteSnapshot is the most recent quote seen for a symbol, captured during
// fleet refresh. ExpectedMove is filled in by the expected-move recompute.
type QuoteSnapshot struct {
	gorm.Model   `json:"-"`
	Symbol       string    `gorm:"uniqueIndex" json:"symbol"`
	Last         float64   `json:"last"`
	PrevClose    float64   `json:"prev_close"`
	ImpliedVol   float64   `json:"implied_vol,omitempty"`
	ExpectedMove float64   `json:"expected_move,omitempty"`
	AsOf         time.Time `json:"as_of"`
}
