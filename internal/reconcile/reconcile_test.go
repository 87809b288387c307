package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/brokerpilot/api/internal/broker"
	"github.com/brokerpilot/api/internal/database"
	"github.com/brokerpilot/api/internal/ledger"
	"github.com/brokerpilot/api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type flakyGateway struct {
	*broker.Simulator
	statusErr error
	cancelErr error
}

func (f *flakyGateway) GetOrderStatus(ctx context.Context, account *types.Account, brokerOrderID string) (types.OrderStatus, error) {
	if f.statusErr != nil {
		return "", f.statusErr
	}
	return f.Simulator.GetOrderStatus(ctx, account, brokerOrderID)
}

func (f *flakyGateway) CancelOrder(ctx context.Context, account *types.Account, order types.Order) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	return f.Simulator.CancelOrder(ctx, account, order)
}

func newTestService(t *testing.T) (*Service, *ledger.Ledger, *flakyGateway) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	l := ledger.New(db)
	gw := &flakyGateway{Simulator: broker.NewSimulator("sim")}
	registry := &broker.Registry{}
	registry.Register(gw)

	require.NoError(t, l.UpsertAccounts([]types.Account{
		{AccountID: "acct-1", Name: "Main", BrokerID: "sim"},
	}))

	return NewService(l, registry), l, gw
}

// submittedOrder inserts an order and places it at the simulator so the
// ledger row carries a live broker order id.
func submittedOrder(t *testing.T, l *ledger.Ledger, gw *flakyGateway, symbol string) *types.PlaceOrder {
	t.Helper()
	order := &types.PlaceOrder{
		AccountID: "acct-1",
		Symbol:    symbol,
		Action:    types.ActionBuy,
		Price:     100,
		Quantity:  2,
	}
	brokerID, err := gw.Simulator.PlaceOrder(context.Background(), nil, order.BrokerOrder())
	require.NoError(t, err)
	order.BrokerOrderID = brokerID
	order.Status = types.StatusOpen
	require.NoError(t, l.UpsertPlaceOrder(order))
	return order
}

func TestRefreshOrderStatus_ConvergesFill(t *testing.T) {
	svc, l, gw := newTestService(t)
	order := submittedOrder(t, l, gw, "SPY")
	gw.MarkFilled(order.BrokerOrderID)

	result, err := svc.RefreshOrderStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Checked)
	assert.Equal(t, 1, result.Updated)
	assert.Empty(t, result.Failures)

	stored, err := l.GetPlaceOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusExecuted, stored.Status)
}

func TestRefreshOrderStatus_UnchangedStatusNotCounted(t *testing.T) {
	svc, l, gw := newTestService(t)
	order := submittedOrder(t, l, gw, "SPY")

	result, err := svc.RefreshOrderStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Checked)
	assert.Equal(t, 0, result.Updated)

	stored, err := l.GetPlaceOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusOpen, stored.Status)
}

func TestRefreshOrderStatus_SkipsUnsubmittedAndTerminal(t *testing.T) {
	svc, l, _ := newTestService(t)

	unsubmitted := &types.PlaceOrder{AccountID: "acct-1", Symbol: "AAPL", Action: types.ActionBuy, Price: 1, Quantity: 1}
	require.NoError(t, l.UpsertPlaceOrder(unsubmitted))
	executed := &types.PlaceOrder{
		AccountID: "acct-1", Symbol: "MSFT", Action: types.ActionBuy, Price: 1, Quantity: 1,
		Status: types.StatusExecuted, BrokerOrderID: "sim-99",
	}
	require.NoError(t, l.UpsertPlaceOrder(executed))

	result, err := svc.RefreshOrderStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Checked)
}

func TestRefreshOrderStatus_BrokerFailureDoesNotAbort(t *testing.T) {
	svc, l, gw := newTestService(t)
	first := submittedOrder(t, l, gw, "AAPL")
	second := submittedOrder(t, l, gw, "SPY")
	gw.MarkFilled(second.BrokerOrderID)

	gw.statusErr = errors.New("gateway timeout")
	result, err := svc.RefreshOrderStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Checked)
	assert.Len(t, result.Failures, 2)
	assert.NotEmpty(t, result.FormatFailures())

	// Broker recovers; the fill converges on the next pass.
	gw.statusErr = nil
	result, err = svc.RefreshOrderStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Empty(t, result.Failures)

	stored, err := l.GetPlaceOrder(second.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusExecuted, stored.Status)
	stored, err = l.GetPlaceOrder(first.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusOpen, stored.Status)
}

func TestRefreshOne_NeverRegressesExecuted(t *testing.T) {
	svc, l, gw := newTestService(t)
	order := submittedOrder(t, l, gw, "SPY")

	// Locally executed; the broker still reports OPEN (stale read).
	order.Status = types.StatusExecuted
	require.NoError(t, l.UpsertPlaceOrder(order))

	require.NoError(t, svc.RefreshOne(context.Background(), order))
	assert.Equal(t, types.StatusExecuted, order.Status)

	stored, err := l.GetPlaceOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusExecuted, stored.Status)
}

func TestRefreshOne_UnmappedAccountSkipped(t *testing.T) {
	svc, _, _ := newTestService(t)
	order := &types.PlaceOrder{
		AccountID:     "unmapped",
		Symbol:        "SPY",
		Action:        types.ActionBuy,
		Price:         1,
		Quantity:      1,
		Status:        types.StatusOpen,
		BrokerOrderID: "elsewhere-1",
	}
	assert.NoError(t, svc.RefreshOne(context.Background(), order))
	assert.Equal(t, types.StatusOpen, order.Status)
}

func TestCancelBeforeMutate(t *testing.T) {
	svc, l, gw := newTestService(t)

	t.Run("open order cancelled", func(t *testing.T) {
		order := submittedOrder(t, l, gw, "SPY")
		warning := svc.CancelBeforeMutate(context.Background(), order)
		assert.Empty(t, warning)

		status, err := gw.Simulator.GetOrderStatus(context.Background(), nil, order.BrokerOrderID)
		require.NoError(t, err)
		assert.Equal(t, types.StatusCancelled, status)
	})

	t.Run("failure becomes warning", func(t *testing.T) {
		order := submittedOrder(t, l, gw, "AAPL")
		gw.cancelErr = errors.New("broker down")
		defer func() { gw.cancelErr = nil }()

		warning := svc.CancelBeforeMutate(context.Background(), order)
		assert.NotEmpty(t, warning)
	})

	t.Run("unsubmitted order is a no-op", func(t *testing.T) {
		order := &types.PlaceOrder{AccountID: "acct-1", Symbol: "MSFT", Action: types.ActionBuy, Price: 1, Quantity: 1}
		assert.Empty(t, svc.CancelBeforeMutate(context.Background(), order))
	})

	t.Run("terminal order is a no-op", func(t *testing.T) {
		order := submittedOrder(t, l, gw, "QQQ")
		order.Status = types.StatusExecuted
		gw.cancelErr = errors.New("would fail if called")
		defer func() { gw.cancelErr = nil }()
		assert.Empty(t, svc.CancelBeforeMutate(context.Background(), order))
	})
}
