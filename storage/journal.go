package storage

import (
	"errors"
	"sort"
)

type pendingValue struct {
	value   []byte
	deleted bool
}

type journalEntry struct {
	key     string
	prev    pendingValue
	hadPrev bool
}

// Journal buffers writes on top of a Database. Nothing reaches the backing
// store until Commit; nested snapshots allow partial rollback of the buffer.
// A Journal is not safe for concurrent use.
type Journal struct {
	base    Database
	pending map[string]pendingValue
	entries []journalEntry
}

// NewJournal wraps base in an empty write buffer.
func NewJournal(base Database) *Journal {
	return &Journal{base: base, pending: make(map[string]pendingValue)}
}

// Get returns the buffered value for key, falling back to the backing store.
func (j *Journal) Get(key []byte) ([]byte, error) {
	if pv, ok := j.pending[string(key)]; ok {
		if pv.deleted {
			return nil, ErrNotFound
		}
		return copyBytes(pv.value), nil
	}
	return j.base.Get(key)
}

func (j *Journal) Has(key []byte) (bool, error) {
	if pv, ok := j.pending[string(key)]; ok {
		return !pv.deleted, nil
	}
	return j.base.Has(key)
}

func (j *Journal) Put(key, value []byte) error {
	j.record(string(key))
	j.pending[string(key)] = pendingValue{value: copyBytes(value)}
	return nil
}

func (j *Journal) Delete(key []byte) error {
	j.record(string(key))
	j.pending[string(key)] = pendingValue{deleted: true}
	return nil
}

func (j *Journal) record(key string) {
	prev, ok := j.pending[key]
	j.entries = append(j.entries, journalEntry{key: key, prev: prev, hadPrev: ok})
}

// Snapshot returns an identifier for the current buffer position.
func (j *Journal) Snapshot() int {
	return len(j.entries)
}

// RevertToSnapshot undoes every buffered write made after id was taken.
func (j *Journal) RevertToSnapshot(id int) {
	if id < 0 {
		id = 0
	}
	for i := len(j.entries) - 1; i >= id; i-- {
		entry := j.entries[i]
		if entry.hadPrev {
			j.pending[entry.key] = entry.prev
		} else {
			delete(j.pending, entry.key)
		}
	}
	if id < len(j.entries) {
		j.entries = j.entries[:id]
	}
}

// Dirty reports how many keys are buffered.
func (j *Journal) Dirty() int {
	return len(j.pending)
}

// Commit flushes the buffer to the backing store as one batch and resets it.
func (j *Journal) Commit() error {
	if j.base == nil {
		return errors.New("storage: journal has no backing database")
	}
	if len(j.pending) == 0 {
		j.entries = j.entries[:0]
		return nil
	}
	keys := make([]string, 0, len(j.pending))
	for key := range j.pending {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	batch := new(Batch)
	for _, key := range keys {
		pv := j.pending[key]
		if pv.deleted {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), pv.value)
	}
	if err := j.base.Write(batch); err != nil {
		return err
	}
	j.Discard()
	return nil
}

// Discard drops every buffered write.
func (j *Journal) Discard() {
	j.pending = make(map[string]pendingValue)
	j.entries = j.entries[:0]
}
