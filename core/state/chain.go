package state

// Sequence returns the number of committed transactions.
func (m *Manager) Sequence() (uint64, error) {
	return m.getUint(hashKey(sequenceKeyBytes))
}

func (m *Manager) SetSequence(seq uint64) error {
	return m.putRLP(hashKey(sequenceKeyBytes), seq)
}

// GenesisApplied reports whether genesis allocations were written.
func (m *Manager) GenesisApplied() (bool, error) {
	return m.store.Has(hashKey(genesisKeyBytes))
}

func (m *Manager) MarkGenesisApplied() error {
	return m.store.Put(hashKey(genesisKeyBytes), []byte{1})
}
