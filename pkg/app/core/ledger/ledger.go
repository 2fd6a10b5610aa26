package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lendex-fi/lendex/pkg/app/core"
)

// Store is the narrow persistence interface the ledger consumes. The core
// assumes read-your-writes consistency within one operation and durability
// after a successful save.
type Store interface {
	// LoadAccount returns nil (no error) when the account does not exist.
	LoadAccount(addr common.Address) (*Account, error)
	SaveAccount(acc *Account) error
	LoadRetained() (int64, error)
	SaveRetained(amount int64) error
}

// Valuation carries the prices a ledger operation values balances at.
// CollateralPrice comes from the oracle; LoanPrice from the best ask of the
// synthetic on the book, falling back to the oracle when the book is empty.
type Valuation struct {
	CollateralPrice int64
	LoanPrice       int64
}

// Ledger owns per-account collateral and loan balances plus the protocol's
// retained stable-asset counter. In-memory cache over a persistent store;
// every operation persists before mutating the cache so a failed save
// leaves no partial state.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[common.Address]*Account
	store    Store
	retained int64
}

// New creates a ledger backed by store and loads the retained counter.
func New(store Store) (*Ledger, error) {
	retained, err := store.LoadRetained()
	if err != nil {
		return nil, fmt.Errorf("load retained balance: %w", err)
	}
	return &Ledger{
		accounts: make(map[common.Address]*Account),
		store:    store,
		retained: retained,
	}, nil
}

// getLocked returns the cached account, loading or creating it. Lock held.
func (l *Ledger) getLocked(addr common.Address) (*Account, error) {
	if acc, ok := l.accounts[addr]; ok {
		return acc, nil
	}
	acc, err := l.store.LoadAccount(addr)
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", addr.Hex(), err)
	}
	if acc == nil {
		acc = NewAccount(addr)
	}
	l.accounts[addr] = acc
	return acc, nil
}

// Account returns a copy of the account state, or ErrNotFound if the
// address has never deposited.
func (l *Ledger) Account(addr common.Address) (Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if acc, ok := l.accounts[addr]; ok {
		return *acc, nil
	}
	acc, err := l.store.LoadAccount(addr)
	if err != nil {
		return Account{}, fmt.Errorf("load account %s: %w", addr.Hex(), err)
	}
	if acc == nil {
		return Account{}, fmt.Errorf("%w: account %s", core.ErrNotFound, addr.Hex())
	}
	l.accounts[addr] = acc
	return *acc, nil
}

// Retained returns the protocol's retained stable-asset balance.
func (l *Ledger) Retained() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.retained
}

// Deposit credits collateral. The host moves the asset into custody before
// this call is trusted to have occurred, so no instruction is emitted.
func (l *Ledger) Deposit(addr common.Address, amount int64) ([]core.Instruction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: deposit amount must be positive, got %d", core.ErrInvalidAmount, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acc, err := l.getLocked(addr)
	if err != nil {
		return nil, err
	}

	next := *acc
	next.Collateral += amount
	if err := l.store.SaveAccount(&next); err != nil {
		return nil, fmt.Errorf("save account: %w", err)
	}
	*acc = next
	return nil, nil
}

// Withdraw debits collateral and emits a transfer from custody back to the
// owner. Fails when the post-withdrawal collateralization ratio would fall
// below the liquidation threshold while a loan is outstanding.
func (l *Ledger) Withdraw(addr common.Address, amount int64, cfg *ProtocolConfig, val Valuation) ([]core.Instruction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: withdraw amount must be positive, got %d", core.ErrInvalidAmount, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acc, err := l.getLocked(addr)
	if err != nil {
		return nil, err
	}
	if amount > acc.Collateral {
		return nil, fmt.Errorf("%w: have %d collateral, want %d", core.ErrInsufficientBalance, acc.Collateral, amount)
	}

	if acc.Loan > 0 {
		remaining := acc.Collateral - amount
		ratio, bounded := core.RatioBps(core.Notional(remaining, val.CollateralPrice), core.Notional(acc.Loan, val.LoanPrice))
		if bounded && ratio < cfg.LiquidationThresholdBps {
			return nil, fmt.Errorf("%w: ratio %d bps below threshold %d bps",
				core.ErrWouldTriggerLiquidation, ratio, cfg.LiquidationThresholdBps)
		}
	}

	next := *acc
	next.Collateral -= amount
	if err := l.store.SaveAccount(&next); err != nil {
		return nil, fmt.Errorf("save account: %w", err)
	}
	*acc = next

	return []core.Instruction{
		core.TransferInstr(cfg.CollateralAsset, cfg.Custody, addr, amount),
	}, nil
}

// Borrow mints synthetic against collateral up to a fixed 50% loan-to-value
// cap, valuing collateral at the oracle price and the synthetic at the
// book-derived loan price.
func (l *Ledger) Borrow(addr common.Address, amount int64, cfg *ProtocolConfig, val Valuation) ([]core.Instruction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: borrow amount must be positive, got %d", core.ErrInvalidAmount, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acc, err := l.getLocked(addr)
	if err != nil {
		return nil, err
	}

	maxBorrow := acc.CollateralValue(val.CollateralPrice) / 2
	newLoanValue := core.Notional(acc.Loan+amount, val.LoanPrice)
	if newLoanValue > maxBorrow {
		return nil, fmt.Errorf("%w: loan value %d would exceed cap %d",
			core.ErrInsufficientCollateral, newLoanValue, maxBorrow)
	}

	next := *acc
	next.Loan += amount
	if err := l.store.SaveAccount(&next); err != nil {
		return nil, fmt.Errorf("save account: %w", err)
	}
	*acc = next

	return []core.Instruction{
		core.MintInstr(cfg.LoanAsset, addr, amount),
	}, nil
}

// Repay reduces the loan by the repaid stable amount and adds it to the
// retained counter. Repaying more than owed is rejected rather than
// silently credited.
func (l *Ledger) Repay(addr common.Address, amount int64) ([]core.Instruction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: repay amount must be positive, got %d", core.ErrInvalidAmount, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acc, err := l.getLocked(addr)
	if err != nil {
		return nil, err
	}
	if acc.Loan == 0 {
		return nil, fmt.Errorf("%w: no outstanding loan to repay", core.ErrInvalidAmount)
	}
	if amount > acc.Loan {
		return nil, fmt.Errorf("%w: loan is %d, repayment %d", core.ErrOverRepayment, acc.Loan, amount)
	}

	next := *acc
	next.Loan -= amount
	if err := l.store.SaveAccount(&next); err != nil {
		return nil, fmt.Errorf("save account: %w", err)
	}
	if err := l.store.SaveRetained(l.retained + amount); err != nil {
		return nil, fmt.Errorf("save retained balance: %w", err)
	}
	*acc = next
	l.retained += amount
	return nil, nil
}

// Redeem exchanges presented synthetic tokens for retained stable assets.
// Only permitted once the liquidation deadline has passed; the presented
// synthetic is burned.
func (l *Ledger) Redeem(addr common.Address, amount int64, cfg *ProtocolConfig, now time.Time) ([]core.Instruction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: redeem amount must be positive, got %d", core.ErrInvalidAmount, amount)
	}
	if !cfg.PastDeadline(now) {
		return nil, fmt.Errorf("%w: redemption", core.ErrDeadlineNotReached)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if amount > l.retained {
		return nil, fmt.Errorf("%w: retained balance %d cannot cover %d", core.ErrInsufficientBalance, l.retained, amount)
	}
	if err := l.store.SaveRetained(l.retained - amount); err != nil {
		return nil, fmt.Errorf("save retained balance: %w", err)
	}
	l.retained -= amount

	return []core.Instruction{
		core.BurnInstr(cfg.LoanAsset, addr, amount),
		core.TransferInstr(cfg.StableAsset, cfg.Custody, addr, amount),
	}, nil
}

// Seize debits a borrower's collateral during liquidation and credits the
// stable proceeds to the retained counter. Callers perform the gating; this
// is pure bookkeeping. Returns the seized collateral amount.
func (l *Ledger) Seize(borrower common.Address, penaltyBps int64, collateralPrice int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, err := l.getLocked(borrower)
	if err != nil {
		return 0, err
	}
	if acc.Collateral == 0 {
		return 0, fmt.Errorf("%w: borrower %s has no collateral", core.ErrInsufficientCollateralToSeize, borrower.Hex())
	}

	// Seize is capped at available collateral so the balance never goes
	// negative.
	seize := core.Min(core.ApplyBps(acc.Loan, penaltyBps), acc.Collateral)
	proceeds := core.Notional(seize, collateralPrice)

	next := *acc
	next.Collateral -= seize
	if err := l.store.SaveAccount(&next); err != nil {
		return 0, fmt.Errorf("save account: %w", err)
	}
	if err := l.store.SaveRetained(l.retained + proceeds); err != nil {
		return 0, fmt.Errorf("save retained balance: %w", err)
	}
	*acc = next
	l.retained += proceeds
	return seize, nil
}

// Balances returns copies of all cached accounts, for state inspection.
func (l *Ledger) Balances() []Account {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Account, 0, len(l.accounts))
	for _, acc := range l.accounts {
		out = append(out, *acc)
	}
	return out
}
