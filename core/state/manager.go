package state

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"deedescrow/storage"
)

// Store is the journaled key-value surface the manager writes through.
// storage.Journal satisfies it.
type Store interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Snapshot() int
	RevertToSnapshot(id int)
}

// Manager maps typed records onto the key-value store. Keys are keccak256
// hashes of a readable prefix and the record identifier; values are RLP.
type Manager struct {
	store Store
}

// NewManager creates a state manager operating on the provided store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Snapshot marks the current position of the underlying journal.
func (m *Manager) Snapshot() int { return m.store.Snapshot() }

// RevertToSnapshot undoes every write made after id.
func (m *Manager) RevertToSnapshot(id int) { m.store.RevertToSnapshot(id) }

func hashKey(parts ...[]byte) []byte {
	return ethcrypto.Keccak256(parts...)
}

func (m *Manager) getRLP(key []byte, out interface{}) (bool, error) {
	data, err := m.store.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("state: decode %x: %w", key, err)
	}
	return true, nil
}

func (m *Manager) putRLP(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.store.Put(key, encoded)
}

func (m *Manager) delete(key []byte) error {
	return m.store.Delete(key)
}
