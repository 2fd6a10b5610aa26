package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lendex-fi/lendex/pkg/app/core"
)

// Account tracks one address's collateral deposit and outstanding loan.
// Created implicitly on first deposit, never deleted; balances may return
// to zero but must never go negative.
type Account struct {
	Address    common.Address `json:"address"`
	Collateral int64          `json:"collateral"` // collateral asset units held in custody
	Loan       int64          `json:"loan"`       // synthetic asset units owed
}

// NewAccount creates an account with zero balances.
func NewAccount(addr common.Address) *Account {
	return &Account{Address: addr}
}

// CollateralValue returns the quote value of the collateral balance.
func (a *Account) CollateralValue(collateralPrice int64) int64 {
	return core.Notional(a.Collateral, collateralPrice)
}

// LoanValue returns the quote value of the loan balance.
func (a *Account) LoanValue(loanPrice int64) int64 {
	return core.Notional(a.Loan, loanPrice)
}

// Validate checks account invariants.
func (a *Account) Validate() error {
	if a.Collateral < 0 {
		return fmt.Errorf("negative collateral: %d", a.Collateral)
	}
	if a.Loan < 0 {
		return fmt.Errorf("negative loan: %d", a.Loan)
	}
	return nil
}
