package core

import (
	"github.com/ethereum/go-ethereum/common"
)

// PriceScale is the fixed-point denominator for prices.
// A price of 1_000_000 means 1.0 quote units per base unit.
const PriceScale int64 = 1_000_000

// BpsDenom is the denominator for basis-point ratios (threshold, penalty).
const BpsDenom int64 = 10_000

type Side int8

const (
	Bid Side = 1
	Ask Side = -1
)

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	default:
		return "unknown"
	}
}

// OrderStatus represents the lifecycle state of an order.
// Open → PartiallyFilled → {Filled, Cancelled}. Filled and Cancelled
// are terminal.
type OrderStatus int8

const (
	OrderOpen OrderStatus = iota
	OrderPartiallyFilled
	OrderFilled
	OrderCancelled
)

func (s OrderStatus) String() string {
	switch s {
	case OrderOpen:
		return "open"
	case OrderPartiallyFilled:
		return "partially_filled"
	case OrderFilled:
		return "filled"
	case OrderCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further mutation of the order is permitted.
func (s OrderStatus) Terminal() bool {
	return s == OrderFilled || s == OrderCancelled
}

// Asset identifies a fungible token by its contract address.
type Asset = common.Address

// InstructionKind is the kind of settlement action the host must execute.
type InstructionKind int8

const (
	Transfer InstructionKind = iota
	Mint
	Burn
)

func (k InstructionKind) String() string {
	switch k {
	case Transfer:
		return "transfer"
	case Mint:
		return "mint"
	case Burn:
		return "burn"
	default:
		return "unknown"
	}
}

// Instruction is a settlement directive emitted by a core operation and
// executed by the host's transfer collaborator, atomically with the state
// mutation that produced it. For Mint, From is zero; for Burn, To is zero.
// Escrow-backed releases (cancel refunds, match legs, redemptions) are paid
// out of the protocol custody account that received the funds at lock time.
type Instruction struct {
	Kind   InstructionKind `json:"kind"`
	Asset  Asset           `json:"asset"`
	From   common.Address  `json:"from"`
	To     common.Address  `json:"to"`
	Amount int64           `json:"amount"`
}

// TransferInstr builds a Transfer instruction.
func TransferInstr(asset Asset, from, to common.Address, amount int64) Instruction {
	return Instruction{Kind: Transfer, Asset: asset, From: from, To: to, Amount: amount}
}

// MintInstr builds a Mint instruction crediting to.
func MintInstr(asset Asset, to common.Address, amount int64) Instruction {
	return Instruction{Kind: Mint, Asset: asset, To: to, Amount: amount}
}

// BurnInstr builds a Burn instruction debiting from.
func BurnInstr(asset Asset, from common.Address, amount int64) Instruction {
	return Instruction{Kind: Burn, Asset: asset, From: from, Amount: amount}
}
