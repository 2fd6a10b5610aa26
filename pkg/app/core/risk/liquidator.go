package risk

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lendex-fi/lendex/pkg/app/core"
	"github.com/lendex-fi/lendex/pkg/app/core/ledger"
)

// Outcome is the result of one successful liquidation call.
type Outcome struct {
	Borrower     common.Address     `json:"borrower"`
	Seized       int64              `json:"seized"`   // collateral units debited
	Proceeds     int64              `json:"proceeds"` // stable value added to retained
	RatioBps     int64              `json:"ratio_bps"`
	Instructions []core.Instruction `json:"-"`
}

// Controller decides whether a position may be liquidated and executes the
// penalty seizure against the ledger.
type Controller struct {
	ledger *ledger.Ledger
}

func NewController(l *ledger.Ledger) *Controller {
	return &Controller{ledger: l}
}

// RatioBps is the collateralization ratio in basis points. The second return
// is false when the loan balance is zero: no debt, always safe.
func RatioBps(acc ledger.Account, val ledger.Valuation) (int64, bool) {
	return core.RatioBps(acc.CollateralValue(val.CollateralPrice), acc.LoanValue(val.LoanPrice))
}

// Liquidate seizes penalty collateral from borrower. Permitted only when the
// caller is the configured liquidator, the collateralization ratio is below
// the threshold, AND now is at or past the liquidation deadline. Both gates
// must hold; an undercollateralized position is left alone until the hard
// settlement date.
//
// seize = min(loan * penaltyBps / 10000, collateral). The seized collateral
// goes to the liquidator; its stable value at the collateral price is added
// to the protocol's retained balance.
func (c *Controller) Liquidate(caller, borrower common.Address, cfg *ledger.ProtocolConfig, val ledger.Valuation, now time.Time) (*Outcome, error) {
	if caller != cfg.Liquidator {
		return nil, fmt.Errorf("%w: caller %s is not the liquidator", core.ErrUnauthorized, caller.Hex())
	}

	acc, err := c.ledger.Account(borrower)
	if err != nil {
		return nil, err
	}
	ratio, risky := RatioBps(acc, val)
	if !risky {
		return nil, fmt.Errorf("%w: account %s has no outstanding loan", core.ErrLiquidationNotPermitted, borrower.Hex())
	}
	if ratio >= cfg.LiquidationThresholdBps {
		return nil, fmt.Errorf("%w: ratio %d bps at or above threshold %d bps",
			core.ErrLiquidationNotPermitted, ratio, cfg.LiquidationThresholdBps)
	}
	if !cfg.PastDeadline(now) {
		return nil, fmt.Errorf("%w: deadline %d not reached", core.ErrLiquidationNotPermitted, cfg.LiquidationDeadline)
	}

	seized, err := c.ledger.Seize(borrower, cfg.LiquidationPenaltyBps, val.CollateralPrice)
	if err != nil {
		return nil, err
	}

	return &Outcome{
		Borrower: borrower,
		Seized:   seized,
		Proceeds: core.Notional(seized, val.CollateralPrice),
		RatioBps: ratio,
		Instructions: []core.Instruction{
			core.TransferInstr(cfg.CollateralAsset, cfg.Custody, cfg.Liquidator, seized),
		},
	}, nil
}
