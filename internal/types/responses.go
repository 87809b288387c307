package types

import "time"

// PlaceOrderView is the shape returned by the order-management endpoints:
// a PlaceOrder joined with its account name and the derived amount.
type PlaceOrderView struct {
	ID            uint        `json:"id"`
	AccountID     string      `json:"account_id"`
	AccountName   string      `json:"account_name"`
	Symbol        string      `json:"symbol"`
	Action        OrderAction `json:"action"`
	Price         float64     `json:"price"`
	Quantity      int64       `json:"quantity"`
	OrderAmount   float64     `json:"order_amount"`
	Status        OrderStatus `json:"status,omitempty"`
	BrokerOrderID string      `json:"broker_order_id,omitempty"`
	LastUpdated   time.Time   `json:"last_updated"`
	CancelWarning string      `json:"cancel_warning,omitempty"`
}

// NewPlaceOrderView projects an order and its account name into a view.
func NewPlaceOrderView(p *PlaceOrder, accountName string) PlaceOrderView {
	return PlaceOrderView{
		ID:            p.ID,
		AccountID:     p.AccountID,
		AccountName:   accountName,
		Symbol:        p.Symbol,
		Action:        p.Action,
		Price:         p.Price,
		Quantity:      p.Quantity,
		OrderAmount:   p.OrderAmount(),
		Status:        p.Status,
		BrokerOrderID: p.BrokerOrderID,
		LastUpdated:   p.LastUpdated,
	}
}

// OrderListResponse is the payload of the order list endpoint.
type OrderListResponse struct {
	QuotesAsOf *time.Time       `json:"quotes_as_of"`
	Orders     []PlaceOrderView `json:"orders"`
}

// TriggerResponse is the payload of the scheduler trigger endpoint.
type TriggerResponse struct {
	Operation string `json:"operation"`
	Message   string `json:"message"`
	Failures  int    `json:"failures"`
}
