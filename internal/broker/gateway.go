// Package broker defines the uniform gateway contract for brokerage APIs
// and provides one implementation per configured broker. Gateways are the
// only components that perform network I/O against brokers; they do not
// retry internally, and retry or skip policy belongs to the caller.
package broker

import (
	"context"
	"errors"

	"github.com/brokerpilot/api/internal/types"
)

var (
	// ErrNotSupported means the broker has no API for the requested
	// operation. Callers treat it as "no data", not as a failure.
	ErrNotSupported = errors.New("operation not supported by broker")
)

// Gateway is the capability contract every broker adapter implements.
type Gateway interface {
	// Name returns the broker id the gateway is registered under.
	Name() string

	// ImportAccounts fetches the accounts held at the broker.
	ImportAccounts(ctx context.Context) ([]types.Account, error)

	// PlaceOrder submits a limit order for the account and returns the
	// broker's order id.
	PlaceOrder(ctx context.Context, account *types.Account, order types.Order) (string, error)

	// CancelOrder requests cancellation of an open broker order.
	CancelOrder(ctx context.Context, account *types.Account, order types.Order) error

	// GetOrderStatus returns the broker's current status for an order.
	GetOrderStatus(ctx context.Context, account *types.Account, brokerOrderID string) (types.OrderStatus, error)

	// GetQuotes returns current quotes for the given symbols.
	GetQuotes(ctx context.Context, symbols []string) ([]types.QuoteSnapshot, error)

	// GetOptionExpirations returns the broker's expiration calendar for a
	// symbol, or ErrNotSupported.
	GetOptionExpirations(ctx context.Context, symbol string) ([]types.OptionExpirationDate, error)

	// AccessTokenExpiresSoon reports whether the broker session will stop
	// working within the renewal window.
	AccessTokenExpiresSoon() bool
}
