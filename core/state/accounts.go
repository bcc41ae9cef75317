package state

import (
	"math/big"

	"deedescrow/core/types"
)

func accountKey(addr [20]byte) []byte {
	return hashKey(accountPrefix, addr[:])
}

// GetAccount returns the account for addr, or an empty account when none is
// stored.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	acc := new(types.Account)
	ok, err := m.getRLP(accountKey(addr), acc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return types.NewAccount(), nil
	}
	if acc.Balance == nil {
		acc.Balance = new(big.Int)
	}
	return acc, nil
}

func (m *Manager) PutAccount(addr [20]byte, acc *types.Account) error {
	stored := acc.Clone()
	if stored == nil {
		stored = types.NewAccount()
	}
	return m.putRLP(accountKey(addr), stored)
}
