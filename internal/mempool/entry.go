// Package mempool implements the ancestor/descendant package accounting
// engine: an in-memory pool of validated, unconfirmed transactions that
// tracks aggregate statistics over each entry's in-pool ancestors and
// descendants so that chain-limit admission, fee-based eviction, and
// block-template selection can all be driven off the same bookkeeping.
package mempool

import "github.com/rawblock/mempool-engine/pkg/models"

// LockPoints is the cached time-lock evaluation context for an entry,
// recorded at admission time so later reorg checks don't need to
// re-derive it from scratch.
type LockPoints struct {
	Height        int32
	Time          int64
	MaxInputBlock int32
}

// Entry is one transaction plus the engine's bookkeeping for it: the
// per-entry metadata and its two aggregate blocks (ancestor-side,
// descendant-side). Entries are never copied after insertion — the
// pool always operates on the single *Entry stored in its indices so
// that re-keying after a mutation affects every index.
type Entry struct {
	Hash string
	Tx   *models.Transaction

	Fee            int64
	Time           int64
	EntryHeight    int32
	SpendsCoinbase bool
	SigOpCost      int64
	TxWeight       int64
	Vsize          int64
	LockPoints     LockPoints

	// FeeDelta is the prioritization bias recorded on this tx hash.
	// ModifiedFee is always Fee + FeeDelta.
	FeeDelta int64

	// Aggregates over self ∪ in-pool descendants.
	DescCount  int64
	DescSize   int64
	DescModFee int64

	// Aggregates over self ∪ in-pool ancestors.
	AncCount  int64
	AncSize   int64
	AncModFee int64
	AncSigOps int64
}

// ModifiedFee is the fee rate the engine uses for selection and eviction.
func (e *Entry) ModifiedFee() int64 {
	return e.Fee + e.FeeDelta
}

// newEntry builds an entry in its self-only aggregate state (the state
// every entry starts in before ancestor/descendant propagation runs).
func newEntry(tx *models.Transaction, fee, entryTime int64, height int32, feeDelta int64) *Entry {
	e := &Entry{
		Hash:           tx.Txid,
		Tx:             tx,
		Fee:            fee,
		Time:           entryTime,
		EntryHeight:    height,
		SpendsCoinbase: tx.SpendsCoinbase,
		SigOpCost:      int64(tx.SigOpCost),
		TxWeight:       int64(tx.Weight),
		Vsize:          int64(tx.Vsize),
		LockPoints:     LockPoints{Height: height, Time: entryTime},
		FeeDelta:       feeDelta,
	}
	e.DescCount = 1
	e.DescSize = e.Vsize
	e.DescModFee = e.ModifiedFee()
	e.AncCount = 1
	e.AncSize = e.Vsize
	e.AncModFee = e.ModifiedFee()
	e.AncSigOps = e.SigOpCost
	return e
}

// entryOverheadBytes approximates the per-entry bookkeeping overhead
// (index nodes, link-set slots) the way txmempool.cpp's
// DynamicMemoryUsage() adds "12*sizeof(void*)" per entry on a 64-bit
// platform. This is a documented constant-per-entry approximation, not
// a replication of any specific allocator's accounting.
const entryOverheadBytes = 12 * 8
