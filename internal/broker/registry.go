package broker

import (
	"fmt"
	"sort"

	"github.com/brokerpilot/api/internal/config"
	"github.com/brokerpilot/api/internal/types"
)

// AccountSource resolves an account id to its account record. The ledger
// satisfies this.
type AccountSource interface {
	GetAccount(accountID string) (*types.Account, error)
}

// Registry is the closed set of configured gateways, keyed by broker id.
// It is built once at startup; brokers are not pluggable at runtime.
type Registry struct {
	gateways map[string]Gateway
}

// NewRegistry builds a registry from the configured broker entries.
func NewRegistry(configs []config.BrokerConfig) (*Registry, error) {
	r := &Registry{gateways: make(map[string]Gateway, len(configs))}
	for _, bc := range configs {
		var gw Gateway
		switch bc.Kind {
		case "tradier":
			gw = NewTradier(bc)
		case "alpaca":
			gw = NewAlpaca(bc)
		case "simulator":
			gw = NewSimulator(bc.ID)
		default:
			return nil, fmt.Errorf("broker %s: unknown kind %q", bc.ID, bc.Kind)
		}
		r.gateways[bc.ID] = gw
	}
	return r, nil
}

// Register adds a gateway under its name. Used by tests to install fakes.
func (r *Registry) Register(gw Gateway) {
	if r.gateways == nil {
		r.gateways = make(map[string]Gateway)
	}
	r.gateways[gw.Name()] = gw
}

// Gateway returns the adapter for a broker id.
func (r *Registry) Gateway(brokerID string) (Gateway, bool) {
	gw, ok := r.gateways[brokerID]
	return gw, ok
}

// All returns every gateway ordered by broker id, so batch runs visit
// brokers in a stable order.
func (r *Registry) All() []Gateway {
	ids := make([]string, 0, len(r.gateways))
	for id := range r.gateways {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Gateway, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.gateways[id])
	}
	return out
}

// ForAccount resolves the gateway that owns an account. A nil gateway with
// a nil error means the account maps to no configured broker: the caller
// skips the item rather than failing the batch.
func (r *Registry) ForAccount(src AccountSource, accountID string) (Gateway, *types.Account, error) {
	account, err := src.GetAccount(accountID)
	if err != nil {
		return nil, nil, err
	}
	if account == nil {
		return nil, nil, nil
	}
	gw, ok := r.gateways[account.BrokerID]
	if !ok {
		return nil, account, nil
	}
	return gw, account, nil
}
