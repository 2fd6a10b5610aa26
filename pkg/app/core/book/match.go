package book

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/lendex-fi/lendex/pkg/app/core"
)

// Fill records one executed trade between a bid and an ask.
type Fill struct {
	TradeID    string         `json:"trade_id"`
	BidOrderID uint64         `json:"bid_order_id"`
	AskOrderID uint64         `json:"ask_order_id"`
	Buyer      common.Address `json:"buyer"`
	Seller     common.Address `json:"seller"`
	Price      int64          `json:"price"` // settlement price
	Quantity   int64          `json:"quantity"`
	ExecutedAt int64          `json:"executed_at"` // unix ms
}

// Assets names the two legs a fill settles in, plus the custody account the
// escrowed funds are released from.
type Assets struct {
	Synthetic core.Asset
	Stable    core.Asset
	Custody   common.Address
}

// Matcher runs the crossing loop over an OrderBook. All transitions from one
// Run call belong to a single operation; the caller applies the returned
// instructions together with the book mutations or not at all.
type Matcher struct {
	book *OrderBook
}

func NewMatcher(ob *OrderBook) *Matcher {
	return &Matcher{book: ob}
}

// Run crosses the book until best bid < best ask or a side empties.
//
// Each iteration trades min(bid.Quantity, ask.Quantity) at the resting
// order's price; the resting order is the one with the lower id. Orders
// reaching zero quantity are Filled and removed; partially filled orders
// keep their queue position. The aggressor's price improvement (a bid locked
// at its own limit but settled lower) is refunded from escrow.
func (m *Matcher) Run(assets Assets) ([]Fill, []core.Instruction) {
	ob := m.book
	ob.mu.Lock()
	defer ob.mu.Unlock()

	var (
		fills  []Fill
		instrs []core.Instruction
	)

	for ob.bidHeap.Len() > 0 && ob.askHeap.Len() > 0 {
		bidP := ob.bidHeap.Peek()
		askP := ob.askHeap.Peek()
		if bidP < askP {
			break
		}
		bid := ob.levels[bidP].bids[0]
		ask := ob.levels[askP].asks[0]

		qty := core.Min(bid.Quantity, ask.Quantity)
		settle := bid.Price
		if ask.ID < bid.ID {
			settle = ask.Price
		}
		cost := core.Notional(qty, settle)
		bidSpend := core.Notional(qty, bid.Price)

		instrs = append(instrs,
			core.TransferInstr(assets.Synthetic, assets.Custody, bid.Owner, qty),
			core.TransferInstr(assets.Stable, assets.Custody, ask.Owner, cost),
		)
		if refund := bidSpend - cost; refund > 0 {
			instrs = append(instrs, core.TransferInstr(assets.Stable, assets.Custody, bid.Owner, refund))
		}

		fills = append(fills, Fill{
			TradeID:    uuid.NewString(),
			BidOrderID: bid.ID,
			AskOrderID: ask.ID,
			Buyer:      bid.Owner,
			Seller:     ask.Owner,
			Price:      settle,
			Quantity:   qty,
			ExecutedAt: time.Now().UnixMilli(),
		})

		bid.Quantity -= qty
		bid.Escrow -= bidSpend
		ask.Quantity -= qty
		ask.Escrow -= qty

		if bid.Quantity == 0 {
			bid.Status = core.OrderFilled
			ob.unlinkLocked(bid)
		} else {
			bid.Status = core.OrderPartiallyFilled
		}
		if ask.Quantity == 0 {
			ask.Status = core.OrderFilled
			ob.unlinkLocked(ask)
		} else {
			ask.Status = core.OrderPartiallyFilled
		}
	}
	return fills, instrs
}
