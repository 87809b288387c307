package ledger

import (
	"testing"
	"time"

	"github.com/brokerpilot/api/internal/database"
	"github.com/brokerpilot/api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return New(db)
}

func TestUpsertPlaceOrder_InsertAndUpdate(t *testing.T) {
	l := newTestLedger(t)

	order := &types.PlaceOrder{
		AccountID: "acct-1",
		Symbol:    "SPY",
		Action:    types.ActionBuy,
		Price:     500,
		Quantity:  2,
	}
	require.NoError(t, l.UpsertPlaceOrder(order))
	assert.NotZero(t, order.ID)
	assert.Equal(t, int64(1), order.Version)
	assert.False(t, order.LastUpdated.IsZero())

	order.Price = 501
	require.NoError(t, l.UpsertPlaceOrder(order))
	assert.Equal(t, int64(2), order.Version)

	stored, err := l.GetPlaceOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, 501.0, stored.Price)
	assert.Equal(t, stored.Price*float64(stored.Quantity), stored.OrderAmount())
}

func TestUpsertPlaceOrder_OptimisticLock(t *testing.T) {
	l := newTestLedger(t)

	order := &types.PlaceOrder{AccountID: "a", Symbol: "AAPL", Action: types.ActionBuy, Price: 190, Quantity: 1}
	require.NoError(t, l.UpsertPlaceOrder(order))

	// Two readers pick up version 1; the second writer loses.
	first, err := l.GetPlaceOrder(order.ID)
	require.NoError(t, err)
	second, err := l.GetPlaceOrder(order.ID)
	require.NoError(t, err)

	first.Price = 191
	require.NoError(t, l.UpsertPlaceOrder(first))

	second.Price = 192
	err = l.UpsertPlaceOrder(second)
	assert.ErrorIs(t, err, ErrStaleOrder)
}

func TestUpsertPlaceOrder_MissingRow(t *testing.T) {
	l := newTestLedger(t)

	order := &types.PlaceOrder{AccountID: "a", Symbol: "AAPL", Action: types.ActionBuy, Price: 190, Quantity: 1}
	order.ID = 42
	order.Version = 1
	assert.ErrorIs(t, l.UpsertPlaceOrder(order), ErrNotFound)
}

func TestGetPlaceOrders_Sorting(t *testing.T) {
	l := newTestLedger(t)

	for _, sym := range []string{"MSFT", "AAPL", "SPY"} {
		require.NoError(t, l.UpsertPlaceOrder(&types.PlaceOrder{
			AccountID: "a", Symbol: sym, Action: types.ActionBuy, Price: 10, Quantity: 1,
		}))
	}

	orders, err := l.GetPlaceOrders("symbol", "asc")
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, "AAPL", orders[0].Symbol)
	assert.Equal(t, "SPY", orders[2].Symbol)

	orders, err = l.GetPlaceOrders("symbol", "desc")
	require.NoError(t, err)
	assert.Equal(t, "SPY", orders[0].Symbol)

	// Unknown sort keys fall back to symbol rather than erroring.
	orders, err = l.GetPlaceOrders("nope; drop table", "asc")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", orders[0].Symbol)
}

func TestDeletePlaceOrderByID(t *testing.T) {
	l := newTestLedger(t)

	order := &types.PlaceOrder{AccountID: "a", Symbol: "SPY", Action: types.ActionSell, Price: 500, Quantity: 1}
	require.NoError(t, l.UpsertPlaceOrder(order))

	require.NoError(t, l.DeletePlaceOrderByID(order.ID))
	_, err := l.GetPlaceOrder(order.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is a no-op.
	assert.NoError(t, l.DeletePlaceOrderByID(order.ID))
}

func TestDeleteExecutedPlaceOrders(t *testing.T) {
	l := newTestLedger(t)

	open := &types.PlaceOrder{AccountID: "a", Symbol: "SPY", Action: types.ActionBuy, Price: 1, Quantity: 1, Status: types.StatusOpen}
	executed := &types.PlaceOrder{AccountID: "a", Symbol: "AAPL", Action: types.ActionBuy, Price: 1, Quantity: 1, Status: types.StatusExecuted}
	require.NoError(t, l.UpsertPlaceOrder(open))
	require.NoError(t, l.UpsertPlaceOrder(executed))

	n, err := l.DeleteExecutedPlaceOrders()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	orders, err := l.GetPlaceOrders("symbol", "asc")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "SPY", orders[0].Symbol)
}

func TestAccounts(t *testing.T) {
	l := newTestLedger(t)

	missing, err := l.GetAccount("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, l.UpsertAccounts([]types.Account{
		{AccountID: "acct-1", Name: "Main", BrokerID: "tradier"},
	}))

	account, err := l.GetAccount("acct-1")
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, "Main", account.Name)

	// Re-import updates in place, no duplicate rows.
	require.NoError(t, l.UpsertAccounts([]types.Account{
		{AccountID: "acct-1", Name: "Renamed", BrokerID: "tradier"},
	}))
	accounts, err := l.GetAccounts()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "Renamed", accounts[0].Name)
}

func TestQuoteSnapshots(t *testing.T) {
	l := newTestLedger(t)

	asOf, err := l.QuotesAsOf()
	require.NoError(t, err)
	assert.Nil(t, asOf)

	earlier := time.Now().Add(-time.Hour)
	require.NoError(t, l.SaveQuoteSnapshots([]types.QuoteSnapshot{
		{Symbol: "SPY", Last: 500, PrevClose: 498, ImpliedVol: 0.2, AsOf: earlier},
	}))
	require.NoError(t, l.SaveQuoteSnapshots([]types.QuoteSnapshot{
		{Symbol: "SPY", Last: 501, PrevClose: 498, AsOf: time.Now()},
	}))

	quotes, err := l.GetQuoteSnapshots()
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, 501.0, quotes[0].Last)
	// An update without vol keeps the previously captured vol.
	assert.Equal(t, 0.2, quotes[0].ImpliedVol)

	require.NoError(t, l.UpdateQuoteExpectedMove("SPY", 12.5))
	quotes, err = l.GetQuoteSnapshots()
	require.NoError(t, err)
	assert.Equal(t, 12.5, quotes[0].ExpectedMove)

	asOf, err = l.QuotesAsOf()
	require.NoError(t, err)
	require.NotNil(t, asOf)
	assert.True(t, asOf.After(earlier))
}
