package types

import "math/big"

// Account is the ledger record of a single address.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
	// RejectPayments makes every incoming transfer fail. It models recipients
	// that cannot receive value.
	RejectPayments bool `json:"rejectPayments"`
}

// NewAccount returns an empty account with a zero balance.
func NewAccount() *Account {
	return &Account{Balance: new(big.Int)}
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	if a.Balance != nil {
		out.Balance = new(big.Int).Set(a.Balance)
	} else {
		out.Balance = new(big.Int)
	}
	return &out
}
