package broker

import (
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

// DefaultTradierURL is the production Tradier brokerage API endpoint.
const DefaultTradierURL = "https://api.tradier.com"

// Compile-time interface check.
var _ Gateway = (*Tradier)(nil)

// Tradier implements Gateway against the Tradier brokerage REST API using
// a bearer access token.
type Tradier struct {
	name        string
	baseURL     string
	token       string
	tokenExpiry time.Time
	httpClient  *http.Client
}

// NewTradier creates a Tradier gateway from its broker configuration.
func NewTradier(bc config.BrokerConfig) *Tradier {
	baseURL := bc.BaseURL
	if baseURL == "" {
		baseURL = DefaultTradierURL
	}
	var expiry time.Time
	if bc.TokenExpiry != "" {
		if t, err := time.Parse(time.RFC3339, bc.TokenExpiry); err == nil {
			expiry = t
		}
	}
	return &Tradier{
		name:        bc.ID,
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       bc.Token,
		tokenExpiry: expiry,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name returns the configured broker id.
func (t *Tradier) Name() string {
	return t.name
}

type tradierProfileResponse struct {
	Profile struct {
		Account []struct {
			AccountNumber string `json:"account_number"`
			Type          string `json:"type"`
		} `json:"account"`
	} `json:"profile"`
}

// ImportAccounts fetches the user's accounts from the Tradier profile.
func (t *Tradier) ImportAccounts(ctx context.Context) ([]types.Account, error) {
	var resp tradierProfileResponse
	if err := t.get(ctx, "/v1/user/profile", nil, &resp); err != nil {
		return nil, err
	}

	accounts := make([]types.Account, 0, len(resp.Profile.Account))
	for _, a := range resp.Profile.Account {
		accounts = append(accounts, types.Account{
			AccountID: a.AccountNumber,
			Name:      fmt.Sprintf("Tradier %s %s", a.Type, a.AccountNumber),
			BrokerID:  t.name,
		})
	}
	return accounts, nil
}

type tradierOrderResponse struct {
	Order struct {
		ID     json.Number `json:"id"`
		Status string      `json:"status"`
	} `json:"order"`
}

// PlaceOrder submits a limit equity order for extended-hours execution.
func (t *Tradier) PlaceOrder(ctx context.Context, account *types.Account, order types.Order) (string, error) {
	form := url.Values{}
	form.Set("class", "equity")
	form.Set("symbol", order.Symbol)
	form.Set("side", tradierSide(order.Action))
	form.Set("quantity", strconv.FormatInt(order.Quantity, 10))
	form.Set("type", "limit")
	form.Set("duration", "day")
	form.Set("price", strconv.FormatFloat(order.Price, 'f', 2, 64))

	path := fmt.Sprintf("/v1/accounts/%s/orders", account.AccountID)
	var resp tradierOrderResponse
	if err := t.postForm(ctx, path, form, &resp); err != nil {
		return "", err
	}
	if resp.Order.ID.String() == "" {
		return "", fmt.Errorf("tradier: order response missing id")
	}
	return resp.Order.ID.String(), nil
}

// CancelOrder cancels an open broker order.
func (t *Tradier) CancelOrder(ctx context.Context, account *types.Account, order types.Order) error {
	path := fmt.Sprintf("/v1/accounts/%s/orders/%s", account.AccountID, order.BrokerOrderID)
	return t.do(ctx, http.MethodDelete, path, nil, "", nil)
}

type tradierOrderStatusResponse struct {
	Order struct {
		ID     json.Number `json:"id"`
		Status string      `json:"status"`
	} `json:"order"`
}

// GetOrderStatus queries the broker's status for an order and maps it onto
// the local status enum.
func (t *Tradier) GetOrderStatus(ctx context.Context, account *types.Account, brokerOrderID string) (types.OrderStatus, error) {
	path := fmt.Sprintf("/v1/accounts/%s/orders/%s", account.AccountID, brokerOrderID)
	var resp tradierOrderStatusResponse
	if err := t.get(ctx, path, nil, &resp); err != nil {
		return "", err
	}
	return mapTradierStatus(resp.Order.Status)
}

type tradierQuotesResponse struct {
	Quotes struct {
		Quote []struct {
			Symbol    string  `json:"symbol"`
			Last      float64 `json:"last"`
			PrevClose float64 `json:"prevclose"`
		} `json:"quote"`
	} `json:"quotes"`
}

// GetQuotes returns current quotes for the given symbols.
func (t *Tradier) GetQuotes(ctx context.Context, symbols []string) ([]types.QuoteSnapshot, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	params := url.Values{}
	params.Set("symbols", strings.Join(symbols, ","))

	var resp tradierQuotesResponse
	if err := t.get(ctx, "/v1/markets/quotes", params, &resp); err != nil {
		return nil, err
	}

	now := time.Now()
	quotes := make([]types.QuoteSnapshot, 0, len(resp.Quotes.Quote))
	for _, q := range resp.Quotes.Quote {
		quotes = append(quotes, types.QuoteSnapshot{
			Symbol:    q.Symbol,
			Last:      q.Last,
			PrevClose: q.PrevClose,
			AsOf:      now,
		})
	}
	return quotes, nil
}

type tradierExpirationsResponse struct {
	Expirations struct {
		Expiration []struct {
			Date           string `json:"date"`
			ExpirationType string `json:"expiration_type"`
		} `json:"expiration"`
	} `json:"expirations"`
}

// GetOptionExpirations returns the option expiration calendar for a symbol.
func (t *Tradier) GetOptionExpirations(ctx context.Context, symbol string) ([]types.OptionExpirationDate, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("includeAllRoots", "true")
	params.Set("strikes", "false")
	params.Set("expirationType", "true")

	var resp tradierExpirationsResponse
	if err := t.get(ctx, "/v1/markets/options/expirations", params, &resp); err != nil {
		return nil, err
	}

	dates := make([]types.OptionExpirationDate, 0, len(resp.Expirations.Expiration))
	for _, e := range resp.Expirations.Expiration {
		day, err := time.Parse("2006-01-02", e.Date)
		if err != nil {
			return nil, fmt.Errorf("tradier: bad expiration date %q: %w", e.Date, err)
		}
		dates = append(dates, types.OptionExpirationDate{
			Year:       day.Year(),
			Month:      day.Month(),
			Day:        day.Day(),
			ExpiryType: mapTradierExpiryType(e.ExpirationType),
		})
	}
	return dates, nil
}

// AccessTokenExpiresSoon reports whether the access token is inside the
// renewal window.
func (t *Tradier) AccessTokenExpiresSoon() bool {
	return tokenExpiresSoon(t.token, t.tokenExpiry, time.Now())
}

func tradierSide(action types.OrderAction) string {
	switch action {
	case types.ActionBuy:
		return "buy"
	case types.ActionSell:
		return "sell"
	case types.ActionBuyToCover:
		return "buy_to_cover"
	case types.ActionSellShort:
		return "sell_short"
	}
	return strings.ToLower(string(action))
}

func mapTradierStatus(status string) (types.OrderStatus, error) {
	switch strings.ToLower(status) {
	case "open", "partially_filled", "pending", "ok", "accepted", "calculated":
		return types.StatusOpen, nil
	case "filled":
		return types.StatusExecuted, nil
	case "canceled", "cancelled", "expired", "rejected", "error":
		return types.StatusCancelled, nil
	}
	return "", fmt.Errorf("tradier: unknown order status %q", status)
}

func mapTradierExpiryType(t string) types.ExpiryType {
	switch strings.ToLower(t) {
	case "weeklys", "weekly":
		return types.ExpiryWeekly
	case "standard", "monthly":
		return types.ExpiryMonthly
	case "quarterlys", "quarterly":
		return types.ExpiryQuarterly
	case "eom", "monthend":
		return types.ExpiryMonthEnd
	}
	return types.ExpiryDaily
}

// get performs a GET request with query parameters and decodes the JSON
// response into out.
func (t *Tradier) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	fullPath := path
	if len(params) > 0 {
		fullPath = path + "?" + params.Encode()
	}
	return t.do(ctx, http.MethodGet, fullPath, nil, "", out)
}

// postForm performs a form-encoded POST request and decodes the JSON
// response into out.
func (t *Tradier) postForm(ctx context.Context, path string, form url.Values, out interface{}) error {
	body := strings.NewReader(form.Encode())
	return t.do(ctx, http.MethodPost, path, body, "application/x-www-form-urlencoded", out)
}

func (t *Tradier) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("tradier: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.token)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tradier: execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("tradier: API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("tradier: decode response: %w", err)
	}
	return nil
}
