package book

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/lendex-fi/lendex/pkg/app/core"
)

// Order is a resting limit order. Quantity only ever decreases over the
// order's lifetime; Escrow tracks the funds still locked against the
// unfilled remainder (stable asset for bids, synthetic asset for asks).
type Order struct {
	ID        uint64           `json:"id"`
	Owner     common.Address   `json:"owner"`
	Side      core.Side        `json:"side"`
	Price     int64            `json:"price"`
	Quantity  int64            `json:"quantity"`
	Escrow    int64            `json:"escrow"`
	Status    core.OrderStatus `json:"status"`
	CreatedAt int64            `json:"created_at"` // unix ms
}

// RequiredFunds returns the escrow a placement must lock: the stable-asset
// cost price*quantity for a bid, the synthetic quantity itself for an ask.
func RequiredFunds(side core.Side, price, quantity int64) int64 {
	if side == core.Bid {
		return core.Notional(quantity, price)
	}
	return quantity
}
