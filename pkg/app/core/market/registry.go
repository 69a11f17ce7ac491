package market

import (
	"fmt"
	"sort"
	"sync"

	"github.com/uhyunpark/darkpool/pkg/app/core/orderbook"
)

// Registry holds the instrument pairs a node serves.
type Registry struct {
	mu      sync.RWMutex
	markets map[string]*Market // symbol -> market
}

func NewRegistry() *Registry {
	return &Registry{markets: make(map[string]*Market)}
}

// Register adds m. Symbols and mint pairs must be unique.
func (r *Registry) Register(m *Market) error {
	if m == nil {
		return fmt.Errorf("cannot register nil market")
	}
	if err := m.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.markets[m.Symbol]; exists {
		return fmt.Errorf("market %s already registered", m.Symbol)
	}
	for _, other := range r.markets {
		if other.BaseMint == m.BaseMint && other.QuoteMint == m.QuoteMint {
			return fmt.Errorf("mint pair of %s already registered as %s", m.Symbol, other.Symbol)
		}
	}
	r.markets[m.Symbol] = m
	return nil
}

func (r *Registry) Get(symbol string) (*Market, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.markets[symbol]
	if !ok {
		return nil, fmt.Errorf("market %s not found", symbol)
	}
	return m, nil
}

// ByMints finds the market trading base against quote.
func (r *Registry) ByMints(base, quote orderbook.Identity) (*Market, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.markets {
		if m.BaseMint == base && m.QuoteMint == quote {
			return m, true
		}
	}
	return nil, false
}

// List returns all markets sorted by symbol.
func (r *Registry) List() []*Market {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Market, 0, len(r.markets))
	for _, m := range r.markets {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// SetStatus changes the trading status. Closed is terminal.
func (r *Registry) SetStatus(symbol string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.markets[symbol]
	if !ok {
		return fmt.Errorf("market %s not found", symbol)
	}
	if m.Status == Closed {
		return fmt.Errorf("cannot change status of %s from Closed (terminal state)", symbol)
	}
	m.Status = status
	return nil
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.markets)
}
