// Package audit is the engine's append-only diagnostic log: every entry
// the mempool removes is recorded for later analysis. It is a write-only
// side channel — the mempool never reads it back, and it plays no part
// in reconstituting mempool state on restart.
package audit

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rawblock/mempool-engine/internal/mempool"
	"github.com/rawblock/mempool-engine/pkg/models"
)

type Store struct {
	pool *pgxpool.Pool
}

// Connect opens the connection pool to PostgreSQL using pgx.
func Connect(connStr string) (*Store, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %w", err)
	}

	log.Println("[Audit] Connected to PostgreSQL")
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS removed_entries (
	id          BIGSERIAL PRIMARY KEY,
	txid        TEXT NOT NULL,
	reason      TEXT NOT NULL,
	height      INTEGER NOT NULL,
	vsize       BIGINT NOT NULL,
	fee         BIGINT NOT NULL,
	removed_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS removed_entries_txid_idx ON removed_entries (txid);
CREATE INDEX IF NOT EXISTS removed_entries_removed_at_idx ON removed_entries (removed_at);
`

func (s *Store) InitSchema() error {
	if _, err := s.pool.Exec(context.Background(), schema); err != nil {
		return fmt.Errorf("failed to execute schema migration: %w", err)
	}
	log.Println("[Audit] removed_entries schema initialized")
	return nil
}

// reasonLabel maps a removal reason to a stable string column value,
// validated against a fixed allowlist rather than interpolated directly.
var reasonLabel = map[mempool.RemovalReason]string{
	mempool.ReasonUnknown:   "unknown",
	mempool.ReasonExpiry:    "expiry",
	mempool.ReasonSizeLimit: "size_limit",
	mempool.ReasonReorg:     "reorg",
	mempool.ReasonBlock:     "block",
	mempool.ReasonConflict:  "conflict",
	mempool.ReasonReplaced:  "replaced",
}

// labelFor resolves a removal reason to its allowlisted column value,
// falling back to "unknown" for any value not in reasonLabel.
func labelFor(reason mempool.RemovalReason) string {
	if label, ok := reasonLabel[reason]; ok {
		return label
	}
	return "unknown"
}

// reasonFor is the inverse of labelFor, used when scanning rows back out.
func reasonFor(label string) mempool.RemovalReason {
	for reason, l := range reasonLabel {
		if l == label {
			return reason
		}
	}
	return mempool.ReasonUnknown
}

// clampLimit bounds a caller-supplied row limit to a sane range.
func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}

// RecordRemoval appends one row for a single removal event. The
// notifier path batches through RecordBatch instead; this single-row
// form exists for callers driving ad-hoc removals.
func (s *Store) RecordRemoval(ctx context.Context, txid string, reason mempool.RemovalReason, height int32, vsize, fee int64) error {
	label := labelFor(reason)
	const insertSQL = `
		INSERT INTO removed_entries (txid, reason, height, vsize, fee)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.pool.Exec(ctx, insertSQL, txid, label, height, vsize, fee)
	return err
}

// RemovalRecord is one notified removal event, shaped for batch insert.
type RemovalRecord struct {
	Txid   string
	Reason mempool.RemovalReason
	Height int32
	Vsize  int64
	Fee    int64
}

// RecordBatch persists a slice of removal events inside one transaction.
func (s *Store) RecordBatch(ctx context.Context, records []RemovalRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertSQL = `
		INSERT INTO removed_entries (txid, reason, height, vsize, fee)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, r := range records {
		label := labelFor(r.Reason)
		if _, err := tx.Exec(ctx, insertSQL, r.Txid, label, r.Height, r.Vsize, r.Fee); err != nil {
			return fmt.Errorf("failed to insert removed_entries row for %s: %w", r.Txid, err)
		}
	}
	return tx.Commit(ctx)
}

// RecentRemovals returns the most recently removed entries, newest first,
// for the diagnostic HTTP surface.
func (s *Store) RecentRemovals(ctx context.Context, limit int) ([]RemovalRecord, error) {
	limit = clampLimit(limit)
	rows, err := s.pool.Query(ctx, `
		SELECT txid, reason, height, vsize, fee FROM removed_entries
		ORDER BY removed_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RemovalRecord
	for rows.Next() {
		var r RemovalRecord
		var label string
		if err := rows.Scan(&r.Txid, &label, &r.Height, &r.Vsize, &r.Fee); err != nil {
			return nil, err
		}
		r.Reason = reasonFor(label)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Notifier adapts Store to mempool.Notifier, persisting every removal
// event for the diagnostic history /api/v1/removals serves. Callbacks
// fire while the mempool's lock is held, so EntryRemoved only appends
// to an in-memory buffer; a background loop drains the buffer through
// RecordBatch so a trim or reorg that removes thousands of entries
// costs one transaction, not one round trip per entry. Height isn't
// carried by the notification itself, only the transaction and the
// removal reason, so it's recorded as 0 (unknown) here; the same data
// is available with a real height wherever RemoveForBlock/
// RemoveForReorg are called directly.
type Notifier struct {
	store *Store

	mu      sync.Mutex
	pending []RemovalRecord
}

const flushInterval = 2 * time.Second

// NewNotifier builds the buffered notifier and starts its flush loop.
func NewNotifier(store *Store) *Notifier {
	n := &Notifier{store: store}
	go n.flushLoop()
	return n
}

func (n *Notifier) EntryAdded(*models.Transaction) {}

func (n *Notifier) EntryRemoved(tx *models.Transaction, reason mempool.RemovalReason) {
	n.mu.Lock()
	n.pending = append(n.pending, RemovalRecord{
		Txid:   tx.Txid,
		Reason: reason,
		Vsize:  int64(tx.Vsize),
		Fee:    tx.Fee,
	})
	n.mu.Unlock()
}

// takePending swaps the buffer out, leaving the notifier ready to
// accumulate the next batch.
func (n *Notifier) takePending() []RemovalRecord {
	n.mu.Lock()
	defer n.mu.Unlock()
	batch := n.pending
	n.pending = nil
	return batch
}

func (n *Notifier) flushLoop() {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for range ticker.C {
		batch := n.takePending()
		if len(batch) == 0 || n.store == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := n.store.RecordBatch(ctx, batch); err != nil {
			log.Printf("[Audit] failed to record batch of %d removals: %v", len(batch), err)
		}
		cancel()
	}
}

var _ mempool.Notifier = (*Notifier)(nil)
