// Package oracle provides the price feed the protocol values collateral and
// loans with. Prices are int64 in 1e-6 units keyed by asset address. A
// missing price is an error the caller must propagate; there is no default.
package oracle

import (
	"fmt"
	"sync"

	"github.com/lendex-fi/lendex/pkg/app/core"
)

// PriceSource answers spot prices per asset.
type PriceSource interface {
	Price(asset core.Asset) (int64, error)
}

// StaticOracle is an in-process PriceSource fed by an operator or by tests.
type StaticOracle struct {
	mu     sync.RWMutex
	prices map[core.Asset]int64
}

func NewStaticOracle() *StaticOracle {
	return &StaticOracle{prices: make(map[core.Asset]int64)}
}

// Set posts a price for asset. Non-positive prices clear the feed.
func (o *StaticOracle) Set(asset core.Asset, price int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if price <= 0 {
		delete(o.prices, asset)
		return
	}
	o.prices[asset] = price
}

func (o *StaticOracle) Price(asset core.Asset) (int64, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.prices[asset]
	if !ok {
		return 0, fmt.Errorf("%w: no feed for asset %s", core.ErrPriceUnavailable, asset.Hex())
	}
	return p, nil
}
