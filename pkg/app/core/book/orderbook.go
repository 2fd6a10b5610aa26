package book

import (
	"container/heap"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lendex-fi/lendex/pkg/app/core"
)

// Config fixes the tick grid the book accepts orders on. Levels are
// pre-allocated across the whole [TickMin, TickMax] range and persist even
// when empty.
type Config struct {
	TickMin  int64
	TickMax  int64
	TickStep int64
}

// DefaultConfig covers 0.50..1.00 in steps of 0.005 at PriceScale.
func DefaultConfig() Config {
	return Config{
		TickMin:  500_000,
		TickMax:  1_000_000,
		TickStep: 5_000,
	}
}

// OnGrid reports whether price is an allowed tick.
func (c Config) OnGrid(price int64) bool {
	if price < c.TickMin || price > c.TickMax {
		return false
	}
	return (price-c.TickMin)%c.TickStep == 0
}

// priceLevel holds the FIFO queues for one tick. Arrival order within a
// queue is time priority; partial fills keep their position.
type priceLevel struct {
	bids []*Order
	asks []*Order
}

// LevelSnapshot is one tick of the book as seen by queries.
type LevelSnapshot struct {
	Price int64   `json:"price"`
	Bids  []Order `json:"bids"`
	Asks  []Order `json:"asks"`
}

// Filter narrows an Orders listing. Zero MinPrice/MaxPrice mean the grid
// bounds; nil Side means both sides; nil Owner means every owner.
type Filter struct {
	Side     *core.Side
	MinPrice int64
	MaxPrice int64
	Owner    *common.Address
}

type OrderBook struct {
	mu  sync.RWMutex
	cfg Config

	// Heap-based best price tracking (O(1) peek). A price is in a heap
	// iff its side queue is non-empty.
	bidHeap *MaxPriceHeap
	askHeap *MinPriceHeap

	levels map[int64]*priceLevel

	// Order index for O(1) cancellation
	orderIndex map[uint64]int64 // order ID -> price

	nextID uint64
}

func NewOrderBook(cfg Config) *OrderBook {
	bidHeap := &MaxPriceHeap{}
	askHeap := &MinPriceHeap{}
	heap.Init(bidHeap)
	heap.Init(askHeap)

	levels := make(map[int64]*priceLevel)
	for p := cfg.TickMin; p <= cfg.TickMax; p += cfg.TickStep {
		levels[p] = &priceLevel{}
	}

	return &OrderBook{
		cfg:        cfg,
		bidHeap:    bidHeap,
		askHeap:    askHeap,
		levels:     levels,
		orderIndex: make(map[uint64]int64),
		nextID:     1,
	}
}

func (ob *OrderBook) Config() Config { return ob.cfg }

// Place validates and rests a new limit order, returning its id. lockedFunds
// must equal RequiredFunds for the side; the caller escrows them before the
// order can rest.
func (ob *OrderBook) Place(owner common.Address, side core.Side, price, quantity, lockedFunds int64) (uint64, error) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	if !ob.cfg.OnGrid(price) {
		return 0, fmt.Errorf("%w: price %d not on [%d, %d] step %d",
			core.ErrOffTickGrid, price, ob.cfg.TickMin, ob.cfg.TickMax, ob.cfg.TickStep)
	}
	if quantity <= 0 {
		return 0, fmt.Errorf("%w: quantity %d", core.ErrInvalidAmount, quantity)
	}
	need := RequiredFunds(side, price, quantity)
	if lockedFunds != need {
		return 0, fmt.Errorf("%w: locked %d, need %d", core.ErrInsufficientFundsSent, lockedFunds, need)
	}

	o := &Order{
		ID:        ob.nextID,
		Owner:     owner,
		Side:      side,
		Price:     price,
		Quantity:  quantity,
		Escrow:    lockedFunds,
		Status:    core.OrderOpen,
		CreatedAt: time.Now().UnixMilli(),
	}
	ob.nextID++
	ob.restLocked(o)
	return o.ID, nil
}

// restLocked appends o to the tail of its side queue at o.Price.
func (ob *OrderBook) restLocked(o *Order) {
	level := ob.levels[o.Price]
	if o.Side == core.Bid {
		if len(level.bids) == 0 {
			heap.Push(ob.bidHeap, o.Price)
		}
		level.bids = append(level.bids, o)
	} else {
		if len(level.asks) == 0 {
			heap.Push(ob.askHeap, o.Price)
		}
		level.asks = append(level.asks, o)
	}
	ob.orderIndex[o.ID] = o.Price
}

// Cancel removes an open order owned by caller and returns its final state;
// Escrow on the returned copy is the amount to release back to the owner.
// Terminal and unknown orders both report ErrNotOwnerOrNotFound, as does a
// caller who does not own the order.
func (ob *OrderBook) Cancel(caller common.Address, id uint64) (Order, error) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	o, err := ob.findLocked(caller, id)
	if err != nil {
		return Order{}, err
	}
	ob.unlinkLocked(o)
	o.Status = core.OrderCancelled
	return *o, nil
}

// Reduce shrinks an open order to newQuantity and returns the escrow to
// release. Growing (or zeroing) an order is rejected; cancel covers removal.
func (ob *OrderBook) Reduce(caller common.Address, id uint64, newQuantity int64) (int64, error) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	o, err := ob.findLocked(caller, id)
	if err != nil {
		return 0, err
	}
	if newQuantity <= 0 || newQuantity >= o.Quantity {
		return 0, fmt.Errorf("%w: new quantity %d must be in (0, %d)", core.ErrInvalidAmount, newQuantity, o.Quantity)
	}
	released := RequiredFunds(o.Side, o.Price, o.Quantity-newQuantity)
	o.Quantity = newQuantity
	o.Escrow -= released
	return released, nil
}

// Order returns a copy of a live order by id.
func (ob *OrderBook) Order(id uint64) (Order, error) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	price, ok := ob.orderIndex[id]
	if !ok {
		return Order{}, fmt.Errorf("%w: order %d", core.ErrNotFound, id)
	}
	level := ob.levels[price]
	for _, o := range level.bids {
		if o.ID == id {
			return *o, nil
		}
	}
	for _, o := range level.asks {
		if o.ID == id {
			return *o, nil
		}
	}
	return Order{}, fmt.Errorf("%w: order %d", core.ErrNotFound, id)
}

func (ob *OrderBook) findLocked(caller common.Address, id uint64) (*Order, error) {
	price, ok := ob.orderIndex[id]
	if ok {
		level := ob.levels[price]
		for _, o := range level.bids {
			if o.ID == id && o.Owner == caller {
				return o, nil
			}
		}
		for _, o := range level.asks {
			if o.ID == id && o.Owner == caller {
				return o, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: order %d", core.ErrNotOwnerOrNotFound, id)
}

// unlinkLocked removes o from its level queue and the order index,
// dropping the price from its heap when the side queue empties.
func (ob *OrderBook) unlinkLocked(o *Order) {
	level := ob.levels[o.Price]
	if o.Side == core.Bid {
		for i, cur := range level.bids {
			if cur.ID == o.ID {
				level.bids = append(level.bids[:i], level.bids[i+1:]...)
				break
			}
		}
		if len(level.bids) == 0 {
			ob.removeFromBidHeap(o.Price)
		}
	} else {
		for i, cur := range level.asks {
			if cur.ID == o.ID {
				level.asks = append(level.asks[:i], level.asks[i+1:]...)
				break
			}
		}
		if len(level.asks) == 0 {
			ob.removeFromAskHeap(o.Price)
		}
	}
	delete(ob.orderIndex, o.ID)
}

// removeFromBidHeap removes a price level from the bid heap (O(N) worst case, but rare)
func (ob *OrderBook) removeFromBidHeap(price int64) {
	for i := 0; i < ob.bidHeap.Len(); i++ {
		if (*ob.bidHeap)[i] == price {
			heap.Remove(ob.bidHeap, i)
			return
		}
	}
}

// removeFromAskHeap removes a price level from the ask heap (O(N) worst case, but rare)
func (ob *OrderBook) removeFromAskHeap(price int64) {
	for i := 0; i < ob.askHeap.Len(); i++ {
		if (*ob.askHeap)[i] == price {
			heap.Remove(ob.askHeap, i)
			return
		}
	}
}

// BestBid returns a copy of the highest-priced, earliest bid.
func (ob *OrderBook) BestBid() (Order, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	if ob.bidHeap.Len() == 0 {
		return Order{}, false
	}
	return *ob.levels[ob.bidHeap.Peek()].bids[0], true
}

// BestAsk returns a copy of the lowest-priced, earliest ask.
func (ob *OrderBook) BestAsk() (Order, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	if ob.askHeap.Len() == 0 {
		return Order{}, false
	}
	return *ob.levels[ob.askHeap.Peek()].asks[0], true
}

// BestAskPrice is the valuation feed for borrow checks: the lowest resting
// ask of the synthetic, when the book has one.
func (ob *OrderBook) BestAskPrice() (int64, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	if ob.askHeap.Len() == 0 {
		return 0, false
	}
	return ob.askHeap.Peek(), true
}

// Orders returns a restartable sequence of order copies matching f: asks in
// ascending price order first, then bids in descending price order, FIFO
// within each level. Each iteration holds the read lock for its duration.
func (ob *OrderBook) Orders(f Filter) iter.Seq[*Order] {
	return func(yield func(*Order) bool) {
		ob.mu.RLock()
		defer ob.mu.RUnlock()

		lo, hi := ob.clampRange(f.MinPrice, f.MaxPrice)

		if f.Side == nil || *f.Side == core.Ask {
			for p := lo; p <= hi; p += ob.cfg.TickStep {
				for _, o := range ob.levels[p].asks {
					if f.Owner != nil && o.Owner != *f.Owner {
						continue
					}
					cp := *o
					if !yield(&cp) {
						return
					}
				}
			}
		}
		if f.Side == nil || *f.Side == core.Bid {
			for p := hi; p >= lo; p -= ob.cfg.TickStep {
				for _, o := range ob.levels[p].bids {
					if f.Owner != nil && o.Owner != *f.Owner {
						continue
					}
					cp := *o
					if !yield(&cp) {
						return
					}
				}
			}
		}
	}
}

// OrdersFor lists every live order owned by addr.
func (ob *OrderBook) OrdersFor(addr common.Address) []Order {
	var out []Order
	for o := range ob.Orders(Filter{Owner: &addr}) {
		out = append(out, *o)
	}
	return out
}

// Snapshot returns every tick in [minPrice, maxPrice] in ascending order,
// empty levels included. Zero bounds mean the whole grid.
func (ob *OrderBook) Snapshot(minPrice, maxPrice int64) []LevelSnapshot {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	lo, hi := ob.clampRange(minPrice, maxPrice)

	var out []LevelSnapshot
	for p := lo; p <= hi; p += ob.cfg.TickStep {
		level := ob.levels[p]
		snap := LevelSnapshot{Price: p}
		for _, o := range level.bids {
			snap.Bids = append(snap.Bids, *o)
		}
		for _, o := range level.asks {
			snap.Asks = append(snap.Asks, *o)
		}
		out = append(out, snap)
	}
	return out
}

// clampRange snaps [min, max] onto the grid, treating zeros as unbounded.
func (ob *OrderBook) clampRange(min, max int64) (int64, int64) {
	lo, hi := ob.cfg.TickMin, ob.cfg.TickMax
	if min > lo {
		lo = min
		if rem := (lo - ob.cfg.TickMin) % ob.cfg.TickStep; rem != 0 {
			lo += ob.cfg.TickStep - rem
		}
	}
	if max != 0 && max < hi {
		hi = max
		// Floor to the grid with a non-negative remainder; a bound below
		// TickMin must not round up into the grid.
		rem := (hi - ob.cfg.TickMin) % ob.cfg.TickStep
		if rem < 0 {
			rem += ob.cfg.TickStep
		}
		hi -= rem
	}
	return lo, hi
}

// Restore rebuilds the book from persisted orders, preserving id and time
// priority. The next assigned id resumes past the highest seen. Live orders
// whose price fell off the configured grid cannot rest and are returned as
// skipped; their escrow needs operator reconciliation.
func (ob *OrderBook) Restore(orders []Order) (skipped []Order) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	sorted := make([]Order, len(orders))
	copy(sorted, orders)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for i := range sorted {
		o := sorted[i]
		if o.Status.Terminal() {
			continue
		}
		if o.ID >= ob.nextID {
			ob.nextID = o.ID + 1
		}
		if !ob.cfg.OnGrid(o.Price) {
			skipped = append(skipped, o)
			continue
		}
		cp := o
		ob.restLocked(&cp)
	}
	return skipped
}
