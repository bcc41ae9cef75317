package state

import "deedescrow/native/registry"

func tokenKey(id uint64) []byte { return hashKey(tokenPrefix, assetIDBytes(id)) }

func holdingsKey(owner [20]byte) []byte { return hashKey(holdingsPrefix, owner[:]) }

func (m *Manager) RegistryGetToken(id uint64) (*registry.Token, bool, error) {
	token := new(registry.Token)
	ok, err := m.getRLP(tokenKey(id), token)
	if err != nil || !ok {
		return nil, false, err
	}
	return token, true, nil
}

func (m *Manager) RegistryPutToken(token *registry.Token) error {
	return m.putRLP(tokenKey(token.ID), token)
}

func (m *Manager) RegistrySupply() (uint64, error) {
	return m.getUint(hashKey(supplyKeyBytes))
}

func (m *Manager) RegistrySetSupply(supply uint64) error {
	return m.putRLP(hashKey(supplyKeyBytes), supply)
}

func (m *Manager) RegistryHoldings(owner [20]byte) (uint64, error) {
	return m.getUint(holdingsKey(owner))
}

func (m *Manager) RegistrySetHoldings(owner [20]byte, count uint64) error {
	if count == 0 {
		return m.delete(holdingsKey(owner))
	}
	return m.putRLP(holdingsKey(owner), count)
}

func (m *Manager) getUint(key []byte) (uint64, error) {
	var value uint64
	if _, err := m.getRLP(key, &value); err != nil {
		return 0, err
	}
	return value, nil
}
