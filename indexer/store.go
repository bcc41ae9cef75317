package indexer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"deedescrow/core/types"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// StoredEvent is one committed event as persisted by the indexer.
type StoredEvent struct {
	ID         int64             `json:"id"`
	Sequence   uint64            `json:"sequence"`
	TxHash     string            `json:"txHash"`
	Index      int               `json:"index"`
	Type       string            `json:"type"`
	AssetID    uint64            `json:"assetId,omitempty"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// Filter narrows List. Zero values match everything; After is an exclusive
// cursor on the event id.
type Filter struct {
	AssetID uint64
	Type    string
	Limit   int
	After   int64
}

// SQLiteStore keeps an append-only log of committed events.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a single connection keeps :memory: databases coherent
	db.SetMaxOpenConns(1)
	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS events (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            sequence INTEGER NOT NULL,
            tx_hash TEXT NOT NULL,
            idx INTEGER NOT NULL,
            type TEXT NOT NULL,
            asset_id INTEGER,
            attributes TEXT NOT NULL,
            created_at INTEGER NOT NULL,
            UNIQUE(tx_hash, idx)
        );`,
		`CREATE INDEX IF NOT EXISTS events_asset ON events(asset_id, id);`,
		`CREATE INDEX IF NOT EXISTS events_type ON events(type, id);`,
		`CREATE TABLE IF NOT EXISTS event_cursors (
            name TEXT PRIMARY KEY,
            value INTEGER NOT NULL
        );`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append stores the events of one committed transaction. Re-appending the
// same transaction is a no-op.
func (s *SQLiteStore) Append(ctx context.Context, sequence uint64, txHash string, evts []types.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	const stmt = `INSERT OR IGNORE INTO events(sequence, tx_hash, idx, type, asset_id, attributes, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	createdAt := s.now().Unix()
	for i, evt := range evts {
		attrs, err := json.Marshal(evt.Attributes)
		if err != nil {
			return err
		}
		var assetID sql.NullInt64
		if raw, ok := evt.Attributes["assetId"]; ok {
			id, err := strconv.ParseUint(raw, 10, 63)
			if err != nil {
				return fmt.Errorf("indexer: event %s has malformed assetId %q", evt.Type, raw)
			}
			assetID = sql.NullInt64{Int64: int64(id), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, stmt, sequence, txHash, i, evt.Type, assetID, string(attrs), createdAt); err != nil {
			return err
		}
	}
	const cursor = `INSERT INTO event_cursors(name, value) VALUES('sequence', ?) ON CONFLICT(name) DO UPDATE SET value = MAX(value, excluded.value)`
	if _, err := tx.ExecContext(ctx, cursor, sequence); err != nil {
		return err
	}
	return tx.Commit()
}

// HandleReceipt indexes a committed receipt.
func (s *SQLiteStore) HandleReceipt(ctx context.Context, receipt *types.Receipt) error {
	if receipt == nil {
		return nil
	}
	return s.Append(ctx, receipt.Sequence, receipt.TxHash, receipt.Events)
}

// LastSequence returns the highest sequence indexed so far.
func (s *SQLiteStore) LastSequence(ctx context.Context) (uint64, error) {
	const query = `SELECT value FROM event_cursors WHERE name = 'sequence'`
	var value int64
	if err := s.db.QueryRowContext(ctx, query).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return uint64(value), nil
}

// List returns events in commit order.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]StoredEvent, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	query := `SELECT id, sequence, tx_hash, idx, type, asset_id, attributes, created_at FROM events WHERE id > ?`
	args := []any{filter.After}
	if filter.AssetID != 0 {
		query += ` AND asset_id = ?`
		args = append(args, int64(filter.AssetID))
	}
	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, filter.Type)
	}
	query += ` ORDER BY id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var (
			evt     StoredEvent
			seq     int64
			assetID sql.NullInt64
			attrs   string
			created int64
		)
		if err := rows.Scan(&evt.ID, &seq, &evt.TxHash, &evt.Index, &evt.Type, &assetID, &attrs, &created); err != nil {
			return nil, err
		}
		evt.Sequence = uint64(seq)
		evt.CreatedAt = time.Unix(created, 0).UTC()
		if assetID.Valid {
			evt.AssetID = uint64(assetID.Int64)
		}
		if err := json.Unmarshal([]byte(attrs), &evt.Attributes); err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}
