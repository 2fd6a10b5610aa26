package protocol

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/lendex-fi/lendex/pkg/app/core"
	"github.com/lendex-fi/lendex/pkg/app/core/book"
	"github.com/lendex-fi/lendex/pkg/app/core/ledger"
)

type CommandKind string

const (
	CmdDeposit      CommandKind = "deposit_collateral"
	CmdWithdraw     CommandKind = "withdraw_collateral"
	CmdBorrow       CommandKind = "borrow"
	CmdRepay        CommandKind = "repay"
	CmdRedeem       CommandKind = "withdraw_retained_asset"
	CmdPlaceBid     CommandKind = "place_bid"
	CmdPlaceAsk     CommandKind = "place_ask"
	CmdCancelOrder  CommandKind = "cancel_order"
	CmdReduceOrder  CommandKind = "reduce_order"
	CmdLiquidate    CommandKind = "liquidate"
	CmdUpdateConfig CommandKind = "update_config"
)

// Command is the tagged-union operation envelope. Kind selects the variant;
// only that variant's fields are read.
type Command struct {
	Kind   CommandKind    `json:"kind"`
	Caller common.Address `json:"caller"`

	Amount int64 `json:"amount,omitempty"` // deposit, withdraw, borrow, repay, redeem

	Price       int64  `json:"price,omitempty"`        // place_bid, place_ask
	Quantity    int64  `json:"quantity,omitempty"`     // place_bid, place_ask
	LockedFunds int64  `json:"locked_funds,omitempty"` // place_bid, place_ask
	OrderID     uint64 `json:"order_id,omitempty"`     // cancel_order, reduce_order
	NewQuantity int64  `json:"new_quantity,omitempty"` // reduce_order

	Borrower *common.Address      `json:"borrower,omitempty"` // liquidate
	Update   *ledger.ConfigUpdate `json:"update,omitempty"`   // update_config
}

// Result carries the outputs of one executed command. Instructions are the
// settlement directives the host's transfer executor applies atomically with
// the state change already made here.
type Result struct {
	OrderID      uint64             `json:"order_id,omitempty"`
	Fills        []book.Fill        `json:"fills,omitempty"`
	Released     int64              `json:"released,omitempty"`
	Seized       int64              `json:"seized,omitempty"`
	Instructions []core.Instruction `json:"instructions,omitempty"`
}

// Execute runs one command to completion. Commands are serialized; a failed
// command leaves no state change behind.
func (e *Engine) Execute(cmd Command) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := e.dispatch(cmd)
	if err != nil {
		e.log.Debug("command rejected",
			zap.String("kind", string(cmd.Kind)),
			zap.String("caller", cmd.Caller.Hex()),
			zap.Error(err))
		return nil, err
	}

	e.log.Info("command applied",
		zap.String("kind", string(cmd.Kind)),
		zap.String("caller", cmd.Caller.Hex()),
		zap.Int("instructions", len(res.Instructions)),
		zap.Int("fills", len(res.Fills)))
	return res, nil
}

func (e *Engine) dispatch(cmd Command) (*Result, error) {
	switch cmd.Kind {
	case CmdDeposit:
		return e.deposit(cmd.Caller, cmd.Amount)
	case CmdWithdraw:
		return e.withdraw(cmd.Caller, cmd.Amount)
	case CmdBorrow:
		return e.borrow(cmd.Caller, cmd.Amount)
	case CmdRepay:
		return e.repay(cmd.Caller, cmd.Amount)
	case CmdRedeem:
		return e.redeem(cmd.Caller, cmd.Amount)
	case CmdPlaceBid:
		return e.placeOrder(cmd.Caller, core.Bid, cmd.Price, cmd.Quantity, cmd.LockedFunds)
	case CmdPlaceAsk:
		return e.placeOrder(cmd.Caller, core.Ask, cmd.Price, cmd.Quantity, cmd.LockedFunds)
	case CmdCancelOrder:
		return e.cancelOrder(cmd.Caller, cmd.OrderID)
	case CmdReduceOrder:
		return e.reduceOrder(cmd.Caller, cmd.OrderID, cmd.NewQuantity)
	case CmdLiquidate:
		if cmd.Borrower == nil {
			return nil, fmt.Errorf("%w: liquidate requires a borrower", core.ErrInvalidAmount)
		}
		return e.liquidate(cmd.Caller, *cmd.Borrower)
	case CmdUpdateConfig:
		if cmd.Update == nil {
			return nil, fmt.Errorf("%w: update_config requires an update payload", core.ErrInvalidAmount)
		}
		return e.updateConfig(cmd.Caller, *cmd.Update)
	default:
		return nil, fmt.Errorf("unknown command kind %q", cmd.Kind)
	}
}
