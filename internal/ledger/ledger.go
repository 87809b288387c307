// Package ledger is the durable record of pending and placed orders. It is
// the single source of truth: the processor, reconciler, and conductor all
// read and write through it, and broker-side state never overrides it except
// through the explicit status transitions it allows.
package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brokerpilot/api/internal/types"
	"gorm.io/gorm"
)

var (
	// ErrStaleOrder means an update lost an optimistic-lock race: the row's
	// version no longer matches the one the caller read.
	ErrStaleOrder = errors.New("place order was modified concurrently")
	// ErrNotFound means the requested row does not exist.
	ErrNotFound = errors.New("not found")
)

// Sortable columns for the order list, keyed by the caller-facing name.
var sortColumns = map[string]string{
	"symbol":      "symbol",
	"account":     "account_id",
	"action":      "action",
	"price":       "price",
	"quantity":    "quantity",
	"status":      "status",
	"lastUpdated": "last_updated",
}

// Ledger wraps the gorm connection with the operations the core needs.
type Ledger struct {
	db *gorm.DB
}

// New creates a Ledger over an open gorm connection.
func New(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// GetPlaceOrders returns all orders sorted by the given column and
// direction. Unknown sort keys fall back to symbol; direction is "asc"
// unless explicitly "desc".
func (l *Ledger) GetPlaceOrders(sortKey, direction string) ([]types.PlaceOrder, error) {
	column, ok := sortColumns[sortKey]
	if !ok {
		column = "symbol"
	}
	dir := "asc"
	if strings.EqualFold(direction, "desc") {
		dir = "desc"
	}

	var orders []types.PlaceOrder
	if err := l.db.Order(column + " " + dir).Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("list place orders: %w", err)
	}
	return orders, nil
}

// GetPlaceOrder returns the order with the given id, or ErrNotFound.
func (l *Ledger) GetPlaceOrder(id uint) (*types.PlaceOrder, error) {
	var order types.PlaceOrder
	if err := l.db.First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get place order %d: %w", id, err)
	}
	return &order, nil
}

// UpsertPlaceOrder inserts the order when it has no id yet, otherwise
// updates the existing row under the optimistic lock. On success the
// order's ID and Version reflect the stored row.
func (l *Ledger) UpsertPlaceOrder(order *types.PlaceOrder) error {
	order.LastUpdated = time.Now()

	if order.ID == 0 {
		order.Version = 1
		if err := l.db.Create(order).Error; err != nil {
			return fmt.Errorf("create place order: %w", err)
		}
		return nil
	}

	readVersion := order.Version
	res := l.db.Model(&types.PlaceOrder{}).
		Where("id = ? AND version = ?", order.ID, readVersion).
		Updates(map[string]interface{}{
			"account_id":      order.AccountID,
			"symbol":          order.Symbol,
			"action":          order.Action,
			"price":           order.Price,
			"quantity":        order.Quantity,
			"status":          order.Status,
			"broker_order_id": order.BrokerOrderID,
			"last_updated":    order.LastUpdated,
			"version":         readVersion + 1,
		})
	if res.Error != nil {
		return fmt.Errorf("update place order %d: %w", order.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		// Either the row is gone or someone else updated it first.
		var count int64
		if err := l.db.Model(&types.PlaceOrder{}).Where("id = ?", order.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("update place order %d: %w", order.ID, err)
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrStaleOrder
	}
	order.Version = readVersion + 1
	return nil
}

// DeletePlaceOrderByID removes the order with the given id. Deleting a
// missing row is not an error; the caller's intent is already satisfied.
func (l *Ledger) DeletePlaceOrderByID(id uint) error {
	if err := l.db.Unscoped().Delete(&types.PlaceOrder{}, id).Error; err != nil {
		return fmt.Errorf("delete place order %d: %w", id, err)
	}
	return nil
}

// DeleteExecutedPlaceOrders purges all orders in the EXECUTED state and
// returns how many were removed.
func (l *Ledger) DeleteExecutedPlaceOrders() (int64, error) {
	res := l.db.Unscoped().Where("status = ?", types.StatusExecuted).Delete(&types.PlaceOrder{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete executed place orders: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// GetAccount returns the account with the given broker account id, or nil
// when no such account is known.
func (l *Ledger) GetAccount(accountID string) (*types.Account, error) {
	var account types.Account
	if err := l.db.Where("account_id = ?", accountID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get account %s: %w", accountID, err)
	}
	return &account, nil
}

// GetAccounts returns all known accounts.
func (l *Ledger) GetAccounts() ([]types.Account, error) {
	var accounts []types.Account
	if err := l.db.Order("account_id asc").Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// UpsertAccounts stores the accounts imported from a broker, updating rows
// that already exist by account id.
func (l *Ledger) UpsertAccounts(accounts []types.Account) error {
	for i := range accounts {
		a := &accounts[i]
		var existing types.Account
		err := l.db.Where("account_id = ?", a.AccountID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := l.db.Create(a).Error; err != nil {
				return fmt.Errorf("create account %s: %w", a.AccountID, err)
			}
		case err != nil:
			return fmt.Errorf("lookup account %s: %w", a.AccountID, err)
		default:
			existing.Name = a.Name
			existing.BrokerID = a.BrokerID
			if err := l.db.Save(&existing).Error; err != nil {
				return fmt.Errorf("update account %s: %w", a.AccountID, err)
			}
		}
	}
	return nil
}

// SaveQuoteSnapshots stores the latest quotes, replacing any previous
// snapshot for the same symbol.
func (l *Ledger) SaveQuoteSnapshots(quotes []types.QuoteSnapshot) error {
	for i := range quotes {
		q := &quotes[i]
		var existing types.QuoteSnapshot
		err := l.db.Where("symbol = ?", q.Symbol).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := l.db.Create(q).Error; err != nil {
				return fmt.Errorf("create quote %s: %w", q.Symbol, err)
			}
		case err != nil:
			return fmt.Errorf("lookup quote %s: %w", q.Symbol, err)
		default:
			existing.Last = q.Last
			existing.PrevClose = q.PrevClose
			if q.ImpliedVol > 0 {
				existing.ImpliedVol = q.ImpliedVol
			}
			existing.AsOf = q.AsOf
			if err := l.db.Save(&existing).Error; err != nil {
				return fmt.Errorf("update quote %s: %w", q.Symbol, err)
			}
		}
	}
	return nil
}

// GetQuoteSnapshots returns all stored quote snapshots.
func (l *Ledger) GetQuoteSnapshots() ([]types.QuoteSnapshot, error) {
	var quotes []types.QuoteSnapshot
	if err := l.db.Order("symbol asc").Find(&quotes).Error; err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	return quotes, nil
}

// UpdateQuoteExpectedMove stores a recomputed expected move for a symbol.
func (l *Ledger) UpdateQuoteExpectedMove(symbol string, move float64) error {
	res := l.db.Model(&types.QuoteSnapshot{}).
		Where("symbol = ?", symbol).
		Update("expected_move", move)
	if res.Error != nil {
		return fmt.Errorf("update expected move %s: %w", symbol, res.Error)
	}
	return nil
}

// QuotesAsOf returns the newest snapshot timestamp, or nil when no quotes
// have been captured yet.
func (l *Ledger) QuotesAsOf() (*time.Time, error) {
	var quote types.QuoteSnapshot
	err := l.db.Order("as_of desc").First(&quote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("quotes as-of: %w", err)
	}
	t := quote.AsOf
	return &t, nil
}
