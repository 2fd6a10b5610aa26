package ledger

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lendex-fi/lendex/pkg/app/core"
)

// ProtocolConfig is the singleton protocol parameter set. Mutable only by
// the owner, one optional field at a time.
type ProtocolConfig struct {
	Owner      common.Address `json:"owner"`
	Liquidator common.Address `json:"liquidator"`
	// Custody is the protocol account holding escrowed order funds and the
	// retained stable balance; escrow releases are paid from it.
	Custody common.Address `json:"custody"`

	LiquidationDeadline     int64 `json:"liquidationDeadline"` // unix seconds
	LiquidationThresholdBps int64 `json:"liquidationThresholdBps"`
	LiquidationPenaltyBps   int64 `json:"liquidationPenaltyBps"`

	CollateralAsset core.Asset `json:"collateralAsset"`
	LoanAsset       core.Asset `json:"loanAsset"` // the synthetic token
	StableAsset     core.Asset `json:"stableAsset"`
}

// PastDeadline reports whether now is at or past the liquidation deadline.
func (c *ProtocolConfig) PastDeadline(now time.Time) bool {
	return now.Unix() >= c.LiquidationDeadline
}

// ConfigUpdate is a partial update; nil fields are left unchanged.
type ConfigUpdate struct {
	Liquidator              *common.Address
	LiquidationDeadline     *int64
	LiquidationThresholdBps *int64
	LiquidationPenaltyBps   *int64
	CollateralAsset         *core.Asset
	LoanAsset               *core.Asset
	StableAsset             *core.Asset
}

// Apply mutates the config in place. Only the owner may call it.
func (c *ProtocolConfig) Apply(caller common.Address, upd ConfigUpdate) error {
	if caller != c.Owner {
		return core.ErrUnauthorized
	}
	if upd.Liquidator != nil {
		c.Liquidator = *upd.Liquidator
	}
	if upd.LiquidationDeadline != nil {
		c.LiquidationDeadline = *upd.LiquidationDeadline
	}
	if upd.LiquidationThresholdBps != nil {
		c.LiquidationThresholdBps = *upd.LiquidationThresholdBps
	}
	if upd.LiquidationPenaltyBps != nil {
		c.LiquidationPenaltyBps = *upd.LiquidationPenaltyBps
	}
	if upd.CollateralAsset != nil {
		c.CollateralAsset = *upd.CollateralAsset
	}
	if upd.LoanAsset != nil {
		c.LoanAsset = *upd.LoanAsset
	}
	if upd.StableAsset != nil {
		c.StableAsset = *upd.StableAsset
	}
	return nil
}
