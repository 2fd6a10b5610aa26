// Package protocol hosts the Engine: the single-writer execution core that
// applies commands against the ledger, the order book, and the liquidation
// controller, persists the results, and returns settlement instructions for
// the host's transfer executor.
package protocol

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/lendex-fi/lendex/pkg/app/core"
	"github.com/lendex-fi/lendex/pkg/app/core/book"
	"github.com/lendex-fi/lendex/pkg/app/core/ledger"
	"github.com/lendex-fi/lendex/pkg/app/core/risk"
	"github.com/lendex-fi/lendex/pkg/oracle"
	"github.com/lendex-fi/lendex/pkg/storage"
	"github.com/lendex-fi/lendex/pkg/util"
)

// Store is the persistence surface the engine drives. *storage.Store is the
// production implementation.
type Store interface {
	ledger.Store
	LoadConfig() (*ledger.ProtocolConfig, error)
	SaveConfig(cfg *ledger.ProtocolConfig) error
	SaveOrder(o *book.Order) error
	DeleteOrder(id uint64) error
	LoadLiveOrders() ([]book.Order, error)
	LoadRecentTrades(limit int) ([]book.Fill, error)
	NewBatch() storage.Batch
}

// Engine executes operations one at a time. Each command runs to completion
// under the mutex: read state, validate, mutate, persist, emit instructions.
// An error at any step leaves ledger and book untouched.
type Engine struct {
	mu sync.Mutex

	log     *zap.Logger
	clock   util.Clock
	store   Store
	ledger  *ledger.Ledger
	book    *book.OrderBook
	matcher *book.Matcher
	risk    *risk.Controller
	oracle  oracle.PriceSource
	cfg     *ledger.ProtocolConfig

	onFill func(book.Fill) // trade feed hook, set once before serving
}

// NewEngine wires the core against a store. genesis seeds the protocol
// config on first boot; an already-persisted config wins on restart. Live
// orders are replayed into the book in id order.
func NewEngine(store Store, src oracle.PriceSource, genesis *ledger.ProtocolConfig, bookCfg book.Config, clock util.Clock, log *zap.Logger) (*Engine, error) {
	cfg, err := store.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg == nil {
		if err := store.SaveConfig(genesis); err != nil {
			return nil, fmt.Errorf("persist genesis config: %w", err)
		}
		cp := *genesis
		cfg = &cp
	}

	led, err := ledger.New(store)
	if err != nil {
		return nil, fmt.Errorf("init ledger: %w", err)
	}

	ob := book.NewOrderBook(bookCfg)
	orders, err := store.LoadLiveOrders()
	if err != nil {
		return nil, fmt.Errorf("load live orders: %w", err)
	}
	restoreBook(ob, orders, log)

	log.Info("engine ready",
		zap.Int("live_orders", len(orders)),
		zap.String("owner", cfg.Owner.Hex()),
		zap.Int64("liquidation_deadline", cfg.LiquidationDeadline))

	return &Engine{
		log:     log,
		clock:   clock,
		store:   store,
		ledger:  led,
		book:    ob,
		matcher: book.NewMatcher(ob),
		risk:    risk.NewController(led),
		oracle:  src,
		cfg:     cfg,
	}, nil
}

// SetFillHandler registers the trade feed sink. Call before serving traffic.
func (e *Engine) SetFillHandler(fn func(book.Fill)) {
	e.onFill = fn
}

// restoreBook replays persisted orders and reports the ones that no longer
// fit the tick grid; their escrow stays in custody until reconciled.
func restoreBook(ob *book.OrderBook, orders []book.Order, log *zap.Logger) {
	for _, o := range ob.Restore(orders) {
		log.Warn("live order off the tick grid, not restored",
			zap.Uint64("order_id", o.ID),
			zap.String("owner", o.Owner.Hex()),
			zap.Int64("price", o.Price),
			zap.Int64("escrow", o.Escrow))
	}
}

// rollbackBook discards the in-memory book after a failed persist and
// rebuilds it from the store, which still holds the pre-command state. The
// caller holds e.mu.
func (e *Engine) rollbackBook(cause error) {
	orders, err := e.store.LoadLiveOrders()
	if err != nil {
		e.log.Error("book rollback failed, state diverged until restart",
			zap.Error(err), zap.NamedError("cause", cause))
		return
	}
	ob := book.NewOrderBook(e.book.Config())
	restoreBook(ob, orders, e.log)
	e.book = ob
	e.matcher = book.NewMatcher(ob)
}

// valuation prices balances: collateral at the oracle, the loan (synthetic)
// at the book's best ask, oracle fallback when the book is one-sided.
func (e *Engine) valuation() (ledger.Valuation, error) {
	collPrice, err := e.oracle.Price(e.cfg.CollateralAsset)
	if err != nil {
		return ledger.Valuation{}, err
	}
	loanPrice, ok := e.book.BestAskPrice()
	if !ok {
		loanPrice, err = e.oracle.Price(e.cfg.LoanAsset)
		if err != nil {
			return ledger.Valuation{}, err
		}
	}
	return ledger.Valuation{CollateralPrice: collPrice, LoanPrice: loanPrice}, nil
}

func (e *Engine) deposit(caller common.Address, amount int64) (*Result, error) {
	instrs, err := e.ledger.Deposit(caller, amount)
	if err != nil {
		return nil, err
	}
	return &Result{Instructions: instrs}, nil
}

func (e *Engine) withdraw(caller common.Address, amount int64) (*Result, error) {
	val, err := e.valuation()
	if err != nil {
		return nil, err
	}
	instrs, err := e.ledger.Withdraw(caller, amount, e.cfg, val)
	if err != nil {
		return nil, err
	}
	return &Result{Instructions: instrs}, nil
}

func (e *Engine) borrow(caller common.Address, amount int64) (*Result, error) {
	val, err := e.valuation()
	if err != nil {
		return nil, err
	}
	instrs, err := e.ledger.Borrow(caller, amount, e.cfg, val)
	if err != nil {
		return nil, err
	}
	return &Result{Instructions: instrs}, nil
}

func (e *Engine) repay(caller common.Address, amount int64) (*Result, error) {
	instrs, err := e.ledger.Repay(caller, amount)
	if err != nil {
		return nil, err
	}
	return &Result{Instructions: instrs}, nil
}

func (e *Engine) redeem(caller common.Address, amount int64) (*Result, error) {
	instrs, err := e.ledger.Redeem(caller, amount, e.cfg, e.clock.Now())
	if err != nil {
		return nil, err
	}
	return &Result{Instructions: instrs}, nil
}

// placeOrder rests a new order, locks its escrow into custody, and runs the
// crossing loop. Book writes for the placed order, every order the match
// touched, and every fill commit in one batch.
func (e *Engine) placeOrder(caller common.Address, side core.Side, price, quantity, lockedFunds int64) (*Result, error) {
	id, err := e.book.Place(caller, side, price, quantity, lockedFunds)
	if err != nil {
		return nil, err
	}

	escrowAsset := e.cfg.StableAsset
	if side == core.Ask {
		escrowAsset = e.cfg.LoanAsset
	}
	instrs := []core.Instruction{
		core.TransferInstr(escrowAsset, caller, e.cfg.Custody, lockedFunds),
	}

	fills, matchInstrs := e.matcher.Run(book.Assets{
		Synthetic: e.cfg.LoanAsset,
		Stable:    e.cfg.StableAsset,
		Custody:   e.cfg.Custody,
	})
	instrs = append(instrs, matchInstrs...)

	if err := e.persistOrderState(id, fills); err != nil {
		e.rollbackBook(err)
		return nil, err
	}

	if e.onFill != nil {
		for _, f := range fills {
			e.onFill(f)
		}
	}

	return &Result{OrderID: id, Fills: fills, Instructions: instrs}, nil
}

// persistOrderState batches the post-match book state: the placed order and
// every order a fill touched are saved while live and deleted when filled,
// alongside the fills themselves.
func (e *Engine) persistOrderState(placedID uint64, fills []book.Fill) error {
	touched := map[uint64]struct{}{placedID: {}}
	for _, f := range fills {
		touched[f.BidOrderID] = struct{}{}
		touched[f.AskOrderID] = struct{}{}
	}

	batch := e.store.NewBatch()
	defer batch.Close()

	for id := range touched {
		o, err := e.book.Order(id)
		if err != nil {
			// No longer in the book: filled and removed.
			if delErr := batch.DeleteOrder(id); delErr != nil {
				return delErr
			}
			continue
		}
		if err := batch.SaveOrder(&o); err != nil {
			return err
		}
	}
	for i := range fills {
		if err := batch.SaveTrade(&fills[i]); err != nil {
			return err
		}
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("persist order state: %w", err)
	}
	return nil
}

func (e *Engine) cancelOrder(caller common.Address, id uint64) (*Result, error) {
	o, err := e.book.Cancel(caller, id)
	if err != nil {
		return nil, err
	}
	if err := e.store.DeleteOrder(id); err != nil {
		e.rollbackBook(err)
		return nil, err
	}

	refundAsset := e.cfg.StableAsset
	if o.Side == core.Ask {
		refundAsset = e.cfg.LoanAsset
	}
	return &Result{
		OrderID: id,
		Instructions: []core.Instruction{
			core.TransferInstr(refundAsset, e.cfg.Custody, o.Owner, o.Escrow),
		},
	}, nil
}

func (e *Engine) reduceOrder(caller common.Address, id uint64, newQuantity int64) (*Result, error) {
	released, err := e.book.Reduce(caller, id, newQuantity)
	if err != nil {
		return nil, err
	}
	o, err := e.book.Order(id)
	if err != nil {
		return nil, err
	}
	if err := e.store.SaveOrder(&o); err != nil {
		e.rollbackBook(err)
		return nil, err
	}

	refundAsset := e.cfg.StableAsset
	if o.Side == core.Ask {
		refundAsset = e.cfg.LoanAsset
	}
	return &Result{
		OrderID:  id,
		Released: released,
		Instructions: []core.Instruction{
			core.TransferInstr(refundAsset, e.cfg.Custody, o.Owner, released),
		},
	}, nil
}

func (e *Engine) liquidate(caller, borrower common.Address) (*Result, error) {
	val, err := e.valuation()
	if err != nil {
		return nil, err
	}
	outcome, err := e.risk.Liquidate(caller, borrower, e.cfg, val, e.clock.Now())
	if err != nil {
		return nil, err
	}
	return &Result{Seized: outcome.Seized, Instructions: outcome.Instructions}, nil
}

// updateConfig applies an owner-gated partial update and persists it before
// swapping the live config.
func (e *Engine) updateConfig(caller common.Address, upd ledger.ConfigUpdate) (*Result, error) {
	next := *e.cfg
	if err := next.Apply(caller, upd); err != nil {
		return nil, err
	}
	if err := e.store.SaveConfig(&next); err != nil {
		return nil, err
	}
	e.cfg = &next
	return &Result{}, nil
}
