package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brokerpilot/api/internal/config"
	"github.com/brokerpilot/api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAlpaca(t *testing.T, handler http.HandlerFunc) *Alpaca {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewAlpaca(config.BrokerConfig{
		ID:        "alpaca",
		Kind:      "alpaca",
		BaseURL:   server.URL,
		DataURL:   server.URL,
		APIKey:    "key-id",
		APISecret: "key-secret",
	})
}

func TestAlpacaImportAccounts(t *testing.T) {
	gw := newTestAlpaca(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/account", r.URL.Path)
		assert.Equal(t, "key-id", r.Header.Get("APCA-API-KEY-ID"))
		assert.Equal(t, "key-secret", r.Header.Get("APCA-API-SECRET-KEY"))
		w.Write([]byte(`{"id":"uuid-1","account_number":"PA3ABC","status":"ACTIVE"}`))
	})

	accounts, err := gw.ImportAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "PA3ABC", accounts[0].AccountID)
	assert.Equal(t, "Alpaca PA3ABC", accounts[0].Name)
	assert.Equal(t, "alpaca", accounts[0].BrokerID)
}

func TestAlpacaPlaceOrder(t *testing.T) {
	gw := newTestAlpaca(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/orders", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "AAPL", body["symbol"])
		assert.Equal(t, "5", body["qty"])
		assert.Equal(t, "buy", body["side"])
		assert.Equal(t, "limit", body["type"])
		assert.Equal(t, "day", body["time_in_force"])
		assert.Equal(t, "190.10", body["limit_price"])
		assert.Equal(t, true, body["extended_hours"])

		w.Write([]byte(`{"id":"ord-1","status":"accepted"}`))
	})

	order := types.Order{Symbol: "AAPL", Action: types.ActionBuy, Price: 190.1, Quantity: 5}
	id, err := gw.PlaceOrder(context.Background(), nil, order)
	require.NoError(t, err)
	assert.Equal(t, "ord-1", id)
}

func TestAlpacaCancelOrder(t *testing.T) {
	var gotMethod, gotPath string
	gw := newTestAlpaca(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})

	err := gw.CancelOrder(context.Background(), nil, types.Order{BrokerOrderID: "ord-1"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/v2/orders/ord-1", gotPath)
}

func TestAlpacaGetOrderStatus(t *testing.T) {
	gw := newTestAlpaca(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/orders/ord-1", r.URL.Path)
		w.Write([]byte(`{"id":"ord-1","status":"done_for_day"}`))
	})

	status, err := gw.GetOrderStatus(context.Background(), nil, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, status)
}

func TestAlpacaGetQuotes(t *testing.T) {
	gw := newTestAlpaca(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/stocks/trades/latest", r.URL.Path)
		assert.Equal(t, "SPY", r.URL.Query().Get("symbols"))
		w.Write([]byte(`{"trades":{"SPY":{"p":500.25}}}`))
	})

	quotes, err := gw.GetQuotes(context.Background(), []string{"SPY"})
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "SPY", quotes[0].Symbol)
	assert.Equal(t, 500.25, quotes[0].Last)
}

func TestAlpacaExpirationsNotSupported(t *testing.T) {
	gw := NewAlpaca(config.BrokerConfig{ID: "alpaca", Kind: "alpaca"})
	_, err := gw.GetOptionExpirations(context.Background(), "SPY")
	assert.ErrorIs(t, err, ErrNotSupported)
	assert.False(t, gw.AccessTokenExpiresSoon())
}

func TestAlpacaSide(t *testing.T) {
	assert.Equal(t, "buy", alpacaSide(types.ActionBuy))
	assert.Equal(t, "buy", alpacaSide(types.ActionBuyToCover))
	assert.Equal(t, "sell", alpacaSide(types.ActionSell))
	assert.Equal(t, "sell", alpacaSide(types.ActionSellShort))
}

func TestMapAlpacaStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    types.OrderStatus
		wantErr bool
	}{
		{"new", types.StatusOpen, false},
		{"partially_filled", types.StatusOpen, false},
		{"held", types.StatusOpen, false},
		{"filled", types.StatusExecuted, false},
		{"canceled", types.StatusCancelled, false},
		{"expired", types.StatusCancelled, false},
		{"bogus", "", true},
	}

	for _, tt := range tests {
		got, err := mapAlpacaStatus(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
