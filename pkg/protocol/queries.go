package protocol

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/lendex-fi/lendex/pkg/app/core/book"
	"github.com/lendex-fi/lendex/pkg/app/core/ledger"
)

// Queries read a consistent snapshot under the engine mutex; they never
// mutate state.

// GetAccount returns the balances for addr.
func (e *Engine) GetAccount(addr common.Address) (ledger.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Account(addr)
}

// GetOrderBook returns every tick in [minPrice, maxPrice] ascending, empty
// levels included. Zero bounds mean the whole grid.
func (e *Engine) GetOrderBook(minPrice, maxPrice int64) []book.LevelSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Snapshot(minPrice, maxPrice)
}

// GetOrdersFor lists addr's live orders.
func (e *Engine) GetOrdersFor(addr common.Address) []book.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.OrdersFor(addr)
}

// GetConfig returns a copy of the live protocol config.
func (e *Engine) GetConfig() ledger.ProtocolConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.cfg
}

// GetRetained returns the protocol's retained stable-asset counter.
func (e *Engine) GetRetained() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Retained()
}

// GetRecentTrades returns the newest trades first, up to limit.
func (e *Engine) GetRecentTrades(limit int) ([]book.Fill, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.LoadRecentTrades(limit)
}
