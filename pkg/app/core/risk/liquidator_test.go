package risk_test

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lendex-fi/lendex/pkg/app/core"
	"github.com/lendex-fi/lendex/pkg/app/core/ledger"
	"github.com/lendex-fi/lendex/pkg/app/core/risk"
	"github.com/lendex-fi/lendex/pkg/storage"
)

var (
	borrower   = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	owner      = common.HexToAddress("0x0111000000000000000000000000000000000000")
	liquidator = common.HexToAddress("0x0222000000000000000000000000000000000000")
	custody    = common.HexToAddress("0x0333000000000000000000000000000000000000")
	collAsset  = common.HexToAddress("0xC011000000000000000000000000000000000000")
)

var par = ledger.Valuation{CollateralPrice: core.PriceScale, LoanPrice: core.PriceScale}

// deadline one hour in the past so the time gate is open by default.
func testConfig() *ledger.ProtocolConfig {
	return &ledger.ProtocolConfig{
		Owner:                   owner,
		Liquidator:              liquidator,
		Custody:                 custody,
		LiquidationDeadline:     time.Now().Add(-time.Hour).Unix(),
		LiquidationThresholdBps: 15_000,
		LiquidationPenaltyBps:   1_000,
		CollateralAsset:         collAsset,
	}
}

// newTestController seeds a borrower position directly in the store, ratio
// 1.2 at par prices (480 collateral against a 400 loan).
func newTestController(t *testing.T) (*risk.Controller, *ledger.Ledger) {
	t.Helper()

	store, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.SaveAccount(&ledger.Account{Address: borrower, Collateral: 480, Loan: 400}); err != nil {
		t.Fatalf("failed to seed borrower: %v", err)
	}

	led, err := ledger.New(store)
	if err != nil {
		t.Fatalf("failed to create ledger: %v", err)
	}
	return risk.NewController(led), led
}

func TestLiquidateRequiresLiquidator(t *testing.T) {
	c, _ := newTestController(t)
	cfg := testConfig()

	if _, err := c.Liquidate(owner, borrower, cfg, par, time.Now()); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestLiquidateDualGate(t *testing.T) {
	t.Run("risky ratio but deadline not reached", func(t *testing.T) {
		c, _ := newTestController(t)
		cfg := testConfig()
		cfg.LiquidationDeadline = time.Now().Add(time.Hour).Unix()

		_, err := c.Liquidate(liquidator, borrower, cfg, par, time.Now())
		if !errors.Is(err, core.ErrLiquidationNotPermitted) {
			t.Fatalf("expected ErrLiquidationNotPermitted, got %v", err)
		}
	})

	t.Run("past deadline but healthy ratio", func(t *testing.T) {
		c, led := newTestController(t)
		cfg := testConfig()

		// Topping collateral up to 600 brings the ratio to exactly 1.5.
		if _, err := led.Deposit(borrower, 120); err != nil {
			t.Fatalf("deposit failed: %v", err)
		}

		_, err := c.Liquidate(liquidator, borrower, cfg, par, time.Now())
		if !errors.Is(err, core.ErrLiquidationNotPermitted) {
			t.Fatalf("expected ErrLiquidationNotPermitted, got %v", err)
		}
	})

	t.Run("both gates open", func(t *testing.T) {
		c, led := newTestController(t)
		cfg := testConfig()

		out, err := c.Liquidate(liquidator, borrower, cfg, par, time.Now())
		if err != nil {
			t.Fatalf("liquidation failed: %v", err)
		}
		if out.Seized != 40 { // 10% of the 400 loan
			t.Errorf("seized = %d, want 40", out.Seized)
		}
		if out.Proceeds != 40 {
			t.Errorf("proceeds = %d, want 40", out.Proceeds)
		}
		if out.RatioBps != 12_000 {
			t.Errorf("ratio = %d bps, want 12000", out.RatioBps)
		}
		if len(out.Instructions) != 1 {
			t.Fatalf("expected one instruction, got %+v", out.Instructions)
		}
		in := out.Instructions[0]
		if in.Asset != collAsset || in.From != custody || in.To != liquidator || in.Amount != 40 {
			t.Errorf("wrong seizure transfer: %+v", in)
		}

		acc, err := led.Account(borrower)
		if err != nil {
			t.Fatalf("account lookup failed: %v", err)
		}
		if acc.Collateral != 440 {
			t.Errorf("collateral after seizure = %d, want 440", acc.Collateral)
		}
		if got := led.Retained(); got != 40 {
			t.Errorf("retained proceeds = %d, want 40", got)
		}
	})
}

func TestLiquidateNoLoan(t *testing.T) {
	store, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.SaveAccount(&ledger.Account{Address: borrower, Collateral: 480}); err != nil {
		t.Fatalf("failed to seed borrower: %v", err)
	}
	led, err := ledger.New(store)
	if err != nil {
		t.Fatalf("failed to create ledger: %v", err)
	}
	c := risk.NewController(led)

	if _, err := c.Liquidate(liquidator, borrower, testConfig(), par, time.Now()); !errors.Is(err, core.ErrLiquidationNotPermitted) {
		t.Fatalf("expected ErrLiquidationNotPermitted for zero loan, got %v", err)
	}
}

func TestLiquidateUnknownBorrower(t *testing.T) {
	c, _ := newTestController(t)

	unknown := common.HexToAddress("0xDD00000000000000000000000000000000000000")
	if _, err := c.Liquidate(liquidator, unknown, testConfig(), par, time.Now()); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
