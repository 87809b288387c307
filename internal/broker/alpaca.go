package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brokerpilot/api/internal/config"
	"github.com/brokerpilot/api/internal/types"
)

const (
	// DefaultAlpacaURL is Alpaca's live trading API endpoint.
	DefaultAlpacaURL = "https://api.alpaca.markets"
	// DefaultAlpacaDataURL is Alpaca's market data API endpoint.
	DefaultAlpacaDataURL = "https://data.alpaca.markets"
)

// Compile-time interface check.
var _ Gateway = (*Alpaca)(nil)

// Alpaca implements Gateway against the Alpaca trading REST API using
// key/secret header authentication. Alpaca keys are static credentials, so
// the session never expires.
type Alpaca struct {
	name       string
	baseURL    string
	dataURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
}

// NewAlpaca creates an Alpaca gateway from its broker configuration.
func NewAlpaca(bc config.BrokerConfig) *Alpaca {
	baseURL := bc.BaseURL
	if baseURL == "" {
		baseURL = DefaultAlpacaURL
	}
	dataURL := bc.DataURL
	if dataURL == "" {
		dataURL = DefaultAlpacaDataURL
	}
	return &Alpaca{
		name:      bc.ID,
		baseURL:   strings.TrimRight(baseURL, "/"),
		dataURL:   strings.TrimRight(dataURL, "/"),
		apiKey:    bc.APIKey,
		apiSecret: bc.APISecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name returns the configured broker id.
func (a *Alpaca) Name() string {
	return a.name
}

type alpacaAccountResponse struct {
	ID            string `json:"id"`
	AccountNumber string `json:"account_number"`
	Status        string `json:"status"`
}

// ImportAccounts fetches the trading account. Alpaca exposes one account
// per credential set.
func (a *Alpaca) ImportAccounts(ctx context.Context) ([]types.Account, error) {
	var resp alpacaAccountResponse
	if err := a.do(ctx, http.MethodGet, a.baseURL+"/v2/account", nil, &resp); err != nil {
		return nil, err
	}
	return []types.Account{{
		AccountID: resp.AccountNumber,
		Name:      "Alpaca " + resp.AccountNumber,
		BrokerID:  a.name,
	}}, nil
}

type alpacaOrderRequest struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	LimitPrice    string `json:"limit_price"`
	ExtendedHours bool   `json:"extended_hours"`
}

type alpacaOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// PlaceOrder submits an extended-hours limit order.
func (a *Alpaca) PlaceOrder(ctx context.Context, _ *types.Account, order types.Order) (string, error) {
	req := alpacaOrderRequest{
		Symbol:        order.Symbol,
		Qty:           strconv.FormatInt(order.Quantity, 10),
		Side:          alpacaSide(order.Action),
		Type:          "limit",
		TimeInForce:   "day",
		LimitPrice:    strconv.FormatFloat(order.Price, 'f', 2, 64),
		ExtendedHours: true,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("alpaca: encode order: %w", err)
	}

	var resp alpacaOrderResponse
	if err := a.do(ctx, http.MethodPost, a.baseURL+"/v2/orders", bytes.NewReader(body), &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("alpaca: order response missing id")
	}
	return resp.ID, nil
}

// CancelOrder cancels an open broker order.
func (a *Alpaca) CancelOrder(ctx context.Context, _ *types.Account, order types.Order) error {
	return a.do(ctx, http.MethodDelete, a.baseURL+"/v2/orders/"+order.BrokerOrderID, nil, nil)
}

// GetOrderStatus queries the broker's status for an order.
func (a *Alpaca) GetOrderStatus(ctx context.Context, _ *types.Account, brokerOrderID string) (types.OrderStatus, error) {
	var resp alpacaOrderResponse
	if err := a.do(ctx, http.MethodGet, a.baseURL+"/v2/orders/"+brokerOrderID, nil, &resp); err != nil {
		return "", err
	}
	return mapAlpacaStatus(resp.Status)
}

type alpacaQuotesResponse struct {
	Trades map[string]struct {
		Price float64 `json:"p"`
	} `json:"trades"`
}

// GetQuotes returns the latest trade price for each symbol from the data
// API.
func (a *Alpaca) GetQuotes(ctx context.Context, symbols []string) ([]types.QuoteSnapshot, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	params := url.Values{}
	params.Set("symbols", strings.Join(symbols, ","))

	var resp alpacaQuotesResponse
	endpoint := a.dataURL + "/v2/stocks/trades/latest?" + params.Encode()
	if err := a.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	now := time.Now()
	quotes := make([]types.QuoteSnapshot, 0, len(resp.Trades))
	for symbol, trade := range resp.Trades {
		quotes = append(quotes, types.QuoteSnapshot{
			Symbol: symbol,
			Last:   trade.Price,
			AsOf:   now,
		})
	}
	return quotes, nil
}

// GetOptionExpirations is not available on the Alpaca equities API.
func (a *Alpaca) GetOptionExpirations(_ context.Context, _ string) ([]types.OptionExpirationDate, error) {
	return nil, ErrNotSupported
}

// AccessTokenExpiresSoon always reports false: Alpaca credentials are
// static API keys, not expiring session tokens.
func (a *Alpaca) AccessTokenExpiresSoon() bool {
	return false
}

func alpacaSide(action types.OrderAction) string {
	switch action {
	case types.ActionBuy, types.ActionBuyToCover:
		return "buy"
	default:
		return "sell"
	}
}

func mapAlpacaStatus(status string) (types.OrderStatus, error) {
	switch strings.ToLower(status) {
	case "new", "accepted", "partially_filled", "pending_new", "accepted_for_bidding", "held":
		return types.StatusOpen, nil
	case "filled":
		return types.StatusExecuted, nil
	case "canceled", "cancelled", "expired", "rejected", "stopped", "done_for_day", "pending_cancel":
		return types.StatusCancelled, nil
	}
	return "", fmt.Errorf("alpaca: unknown order status %q", status)
}

func (a *Alpaca) do(ctx context.Context, method, endpoint string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("alpaca: create request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", a.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", a.apiSecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("alpaca: execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("alpaca: API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("alpaca: decode response: %w", err)
	}
	return nil
}
