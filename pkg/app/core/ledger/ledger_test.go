package ledger_test

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lendex-fi/lendex/pkg/app/core"
	"github.com/lendex-fi/lendex/pkg/app/core/ledger"
)

var (
	alice      = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	bob        = common.HexToAddress("0xBB00000000000000000000000000000000000000")
	owner      = common.HexToAddress("0x0111000000000000000000000000000000000000")
	liquidator = common.HexToAddress("0x0222000000000000000000000000000000000000")
	custody    = common.HexToAddress("0x0333000000000000000000000000000000000000")

	collAsset   = common.HexToAddress("0xC011000000000000000000000000000000000000")
	loanAsset   = common.HexToAddress("0x10A0000000000000000000000000000000000000")
	stableAsset = common.HexToAddress("0x57AB000000000000000000000000000000000000")
)

// memStore is an in-memory ledger.Store with optional save-failure
// injection, used to check that failed persists leave no state behind.
type memStore struct {
	accounts map[common.Address]ledger.Account
	retained int64
	failSave bool
}

func newMemStore() *memStore {
	return &memStore{accounts: make(map[common.Address]ledger.Account)}
}

func (m *memStore) LoadAccount(addr common.Address) (*ledger.Account, error) {
	acc, ok := m.accounts[addr]
	if !ok {
		return nil, nil
	}
	cp := acc
	return &cp, nil
}

func (m *memStore) SaveAccount(acc *ledger.Account) error {
	if m.failSave {
		return errors.New("injected save failure")
	}
	m.accounts[acc.Address] = *acc
	return nil
}

func (m *memStore) LoadRetained() (int64, error) { return m.retained, nil }

func (m *memStore) SaveRetained(amount int64) error {
	if m.failSave {
		return errors.New("injected save failure")
	}
	m.retained = amount
	return nil
}

func testConfig() *ledger.ProtocolConfig {
	return &ledger.ProtocolConfig{
		Owner:                   owner,
		Liquidator:              liquidator,
		Custody:                 custody,
		LiquidationDeadline:     time.Now().Add(24 * time.Hour).Unix(),
		LiquidationThresholdBps: 15_000, // ratio 1.5
		LiquidationPenaltyBps:   1_000,  // 10% of loan
		CollateralAsset:         collAsset,
		LoanAsset:               loanAsset,
		StableAsset:             stableAsset,
	}
}

func newTestLedger(t *testing.T) (*ledger.Ledger, *memStore) {
	t.Helper()
	store := newMemStore()
	l, err := ledger.New(store)
	if err != nil {
		t.Fatalf("failed to create ledger: %v", err)
	}
	return l, store
}

// par values both assets at 1.0
var par = ledger.Valuation{CollateralPrice: core.PriceScale, LoanPrice: core.PriceScale}

func TestDepositCreatesAccount(t *testing.T) {
	l, _ := newTestLedger(t)

	if _, err := l.Account(alice); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before first deposit, got %v", err)
	}

	if _, err := l.Deposit(alice, 1000); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	acc, err := l.Account(alice)
	if err != nil {
		t.Fatalf("account lookup failed: %v", err)
	}
	if acc.Collateral != 1000 {
		t.Errorf("collateral = %d, want 1000", acc.Collateral)
	}
	if acc.Loan != 0 {
		t.Errorf("loan = %d, want 0", acc.Loan)
	}
}

func TestDepositRejectsNonPositive(t *testing.T) {
	l, _ := newTestLedger(t)

	for _, amount := range []int64{0, -1} {
		if _, err := l.Deposit(alice, amount); !errors.Is(err, core.ErrInvalidAmount) {
			t.Errorf("deposit(%d): expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestBorrowCapBoundary(t *testing.T) {
	cfg := testConfig()

	// 1000 collateral at price 1.0 caps the loan value at 500.
	t.Run("exactly at cap", func(t *testing.T) {
		l, _ := newTestLedger(t)
		if _, err := l.Deposit(alice, 1000); err != nil {
			t.Fatalf("deposit failed: %v", err)
		}
		instrs, err := l.Borrow(alice, 500, cfg, par)
		if err != nil {
			t.Fatalf("borrow 500 should succeed at the cap: %v", err)
		}
		if len(instrs) != 1 || instrs[0].Kind != core.Mint || instrs[0].Amount != 500 {
			t.Errorf("expected one mint of 500, got %+v", instrs)
		}
	})

	t.Run("one over cap", func(t *testing.T) {
		l, _ := newTestLedger(t)
		if _, err := l.Deposit(alice, 1000); err != nil {
			t.Fatalf("deposit failed: %v", err)
		}
		if _, err := l.Borrow(alice, 501, cfg, par); !errors.Is(err, core.ErrInsufficientCollateral) {
			t.Fatalf("borrow 501: expected ErrInsufficientCollateral, got %v", err)
		}
		acc, _ := l.Account(alice)
		if acc.Loan != 0 {
			t.Errorf("failed borrow mutated loan: %d", acc.Loan)
		}
	})

	t.Run("cumulative loans count against the cap", func(t *testing.T) {
		l, _ := newTestLedger(t)
		if _, err := l.Deposit(alice, 1000); err != nil {
			t.Fatalf("deposit failed: %v", err)
		}
		if _, err := l.Borrow(alice, 300, cfg, par); err != nil {
			t.Fatalf("first borrow failed: %v", err)
		}
		if _, err := l.Borrow(alice, 201, cfg, par); !errors.Is(err, core.ErrInsufficientCollateral) {
			t.Fatalf("second borrow past cap: expected ErrInsufficientCollateral, got %v", err)
		}
	})
}

func TestWithdrawSafety(t *testing.T) {
	cfg := testConfig()
	l, _ := newTestLedger(t)

	if _, err := l.Deposit(alice, 1000); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if _, err := l.Borrow(alice, 400, cfg, par); err != nil {
		t.Fatalf("borrow failed: %v", err)
	}

	// Remaining 500 against a 400 loan is ratio 1.25, below 1.5.
	if _, err := l.Withdraw(alice, 500, cfg, par); !errors.Is(err, core.ErrWouldTriggerLiquidation) {
		t.Fatalf("expected ErrWouldTriggerLiquidation, got %v", err)
	}
	acc, _ := l.Account(alice)
	if acc.Collateral != 1000 {
		t.Errorf("failed withdraw mutated collateral: %d", acc.Collateral)
	}

	// Remaining 600 against 400 is exactly 1.5, not below threshold.
	instrs, err := l.Withdraw(alice, 400, cfg, par)
	if err != nil {
		t.Fatalf("withdraw to exactly the threshold should succeed: %v", err)
	}
	if len(instrs) != 1 || instrs[0].Kind != core.Transfer {
		t.Fatalf("expected one transfer instruction, got %+v", instrs)
	}
	if instrs[0].From != custody || instrs[0].To != alice || instrs[0].Amount != 400 {
		t.Errorf("wrong transfer: %+v", instrs[0])
	}
}

func TestWithdrawInsufficientBalance(t *testing.T) {
	cfg := testConfig()
	l, _ := newTestLedger(t)

	if _, err := l.Deposit(alice, 100); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if _, err := l.Withdraw(alice, 101, cfg, par); !errors.Is(err, core.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestRepay(t *testing.T) {
	cfg := testConfig()
	l, _ := newTestLedger(t)

	if _, err := l.Repay(alice, 10); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("repay with no loan: expected ErrInvalidAmount, got %v", err)
	}

	if _, err := l.Deposit(alice, 1000); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if _, err := l.Borrow(alice, 400, cfg, par); err != nil {
		t.Fatalf("borrow failed: %v", err)
	}

	if _, err := l.Repay(alice, 401); !errors.Is(err, core.ErrOverRepayment) {
		t.Fatalf("over-repay: expected ErrOverRepayment, got %v", err)
	}

	if _, err := l.Repay(alice, 150); err != nil {
		t.Fatalf("partial repay failed: %v", err)
	}
	acc, _ := l.Account(alice)
	if acc.Loan != 250 {
		t.Errorf("loan after repay = %d, want 250", acc.Loan)
	}
	if got := l.Retained(); got != 150 {
		t.Errorf("retained = %d, want 150", got)
	}
}

func TestRedeemDeadlineGate(t *testing.T) {
	cfg := testConfig()
	l, _ := newTestLedger(t)

	// Fund the retained counter through a repayment.
	if _, err := l.Deposit(alice, 1000); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if _, err := l.Borrow(alice, 400, cfg, par); err != nil {
		t.Fatalf("borrow failed: %v", err)
	}
	if _, err := l.Repay(alice, 400); err != nil {
		t.Fatalf("repay failed: %v", err)
	}

	before := time.Unix(cfg.LiquidationDeadline-1, 0)
	if _, err := l.Redeem(bob, 100, cfg, before); !errors.Is(err, core.ErrDeadlineNotReached) {
		t.Fatalf("pre-deadline redeem: expected ErrDeadlineNotReached, got %v", err)
	}

	after := time.Unix(cfg.LiquidationDeadline, 0)
	if _, err := l.Redeem(bob, 500, cfg, after); !errors.Is(err, core.ErrInsufficientBalance) {
		t.Fatalf("redeem beyond retained: expected ErrInsufficientBalance, got %v", err)
	}

	instrs, err := l.Redeem(bob, 100, cfg, after)
	if err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	if len(instrs) != 2 {
		t.Fatalf("expected burn + transfer, got %+v", instrs)
	}
	if instrs[0].Kind != core.Burn || instrs[0].Asset != loanAsset || instrs[0].From != bob {
		t.Errorf("wrong burn instruction: %+v", instrs[0])
	}
	if instrs[1].Kind != core.Transfer || instrs[1].Asset != stableAsset || instrs[1].To != bob {
		t.Errorf("wrong transfer instruction: %+v", instrs[1])
	}
	if got := l.Retained(); got != 300 {
		t.Errorf("retained after redeem = %d, want 300", got)
	}
}

func TestSeize(t *testing.T) {
	cfg := testConfig()

	t.Run("penalty share of the loan", func(t *testing.T) {
		l, _ := newTestLedger(t)
		if _, err := l.Deposit(alice, 1000); err != nil {
			t.Fatalf("deposit failed: %v", err)
		}
		if _, err := l.Borrow(alice, 400, cfg, par); err != nil {
			t.Fatalf("borrow failed: %v", err)
		}

		seized, err := l.Seize(alice, cfg.LiquidationPenaltyBps, core.PriceScale)
		if err != nil {
			t.Fatalf("seize failed: %v", err)
		}
		if seized != 40 { // 10% of 400
			t.Errorf("seized = %d, want 40", seized)
		}
		acc, _ := l.Account(alice)
		if acc.Collateral != 960 {
			t.Errorf("collateral after seize = %d, want 960", acc.Collateral)
		}
		if got := l.Retained(); got != 40 {
			t.Errorf("retained proceeds = %d, want 40", got)
		}
	})

	t.Run("capped at available collateral", func(t *testing.T) {
		l, store := newTestLedger(t)
		store.accounts[alice] = ledger.Account{Address: alice, Collateral: 10, Loan: 400}

		seized, err := l.Seize(alice, cfg.LiquidationPenaltyBps, core.PriceScale)
		if err != nil {
			t.Fatalf("seize failed: %v", err)
		}
		if seized != 10 {
			t.Errorf("seized = %d, want the full 10 remaining", seized)
		}
		acc, _ := l.Account(alice)
		if acc.Collateral != 0 {
			t.Errorf("collateral should be exhausted, got %d", acc.Collateral)
		}
	})

	t.Run("nothing left to seize", func(t *testing.T) {
		l, store := newTestLedger(t)
		store.accounts[alice] = ledger.Account{Address: alice, Collateral: 0, Loan: 400}

		if _, err := l.Seize(alice, cfg.LiquidationPenaltyBps, core.PriceScale); !errors.Is(err, core.ErrInsufficientCollateralToSeize) {
			t.Fatalf("expected ErrInsufficientCollateralToSeize, got %v", err)
		}
	})
}

func TestFailedSaveLeavesNoState(t *testing.T) {
	l, store := newTestLedger(t)

	if _, err := l.Deposit(alice, 1000); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	store.failSave = true
	if _, err := l.Deposit(alice, 500); err == nil {
		t.Fatal("expected save failure to surface")
	}
	store.failSave = false

	acc, err := l.Account(alice)
	if err != nil {
		t.Fatalf("account lookup failed: %v", err)
	}
	if acc.Collateral != 1000 {
		t.Errorf("failed save leaked into cache: collateral = %d, want 1000", acc.Collateral)
	}
}

func TestConfigUpdate(t *testing.T) {
	cfg := testConfig()

	newDeadline := int64(1_700_000_000)
	upd := ledger.ConfigUpdate{LiquidationDeadline: &newDeadline}

	if err := cfg.Apply(alice, upd); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("non-owner update: expected ErrUnauthorized, got %v", err)
	}
	if cfg.LiquidationDeadline == newDeadline {
		t.Fatal("rejected update mutated config")
	}

	if err := cfg.Apply(owner, upd); err != nil {
		t.Fatalf("owner update failed: %v", err)
	}
	if cfg.LiquidationDeadline != newDeadline {
		t.Errorf("deadline = %d, want %d", cfg.LiquidationDeadline, newDeadline)
	}
	// Untouched fields stay put.
	if cfg.Liquidator != liquidator || cfg.LiquidationThresholdBps != 15_000 {
		t.Error("partial update touched unrelated fields")
	}
}
