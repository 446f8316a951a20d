package mempool

import (
	"math/rand"
	"sync"

	"github.com/rawblock/mempool-engine/pkg/models"
)

// Config bounds the admission gate and eviction policy. Defaults mirror
// Bitcoin Core's own mempool policy constants.
type Config struct {
	MaxAncestors        int64 // default 25
	MaxAncestorSizeVB   int64 // default 101_000
	MaxDescendants      int64 // default 25
	MaxDescendantSizeVB int64 // default 101_000

	IncrementalRelayFeePerVB int64 // sat/vB, default 1

	// CheckFrequency is out of 2^32; Check() runs probabilistically at
	// this rate. Zero, the default, disables the sampled self-audit
	// entirely; Check can still be called directly.
	CheckFrequency uint32
}

// DefaultConfig returns Bitcoin Core's long-standing mempool policy
// defaults.
func DefaultConfig() Config {
	return Config{
		MaxAncestors:             25,
		MaxAncestorSizeVB:        101_000,
		MaxDescendants:           25,
		MaxDescendantSizeVB:      101_000,
		IncrementalRelayFeePerVB: 1,
	}
}

func (c Config) limits() Limits {
	return Limits{
		MaxAncestors:      c.MaxAncestors,
		MaxAncestorSize:   c.MaxAncestorSizeVB,
		MaxDescendants:    c.MaxDescendants,
		MaxDescendantSize: c.MaxDescendantSizeVB,
	}
}

// Pool is the single logical engine object: one exclusive lock guards
// the indexed entry set, link table, outpoint→spender map, priority
// delta map, and rolling-fee state. Every public operation holds mu for
// its full duration; there is no suspension point inside one.
type Pool struct {
	mu sync.Mutex

	cfg Config

	index           *indexedSet
	linksByHash     map[string]*links
	outpointSpender map[models.Outpoint]string
	deltas          map[string]int64

	cachedInnerUsage int64
	totalTxSize      int64

	transactionsUpdated uint64

	rollingFee rollingFeeState

	notifier Notifier

	rng *rand.Rand
}

// New constructs an empty Pool. notifier may be nil, in which case
// notifications are discarded.
func New(cfg Config, notifier Notifier) *Pool {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Pool{
		cfg:             cfg,
		index:           newIndexedSet(),
		linksByHash:     make(map[string]*links),
		outpointSpender: make(map[models.Outpoint]string),
		deltas:          make(map[string]int64),
		notifier:        notifier,
		rng:             rand.New(rand.NewSource(1)),
	}
}

// Count returns the number of entries currently in the pool.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index.len()
}

// TransactionsUpdated returns the monotonic change counter external
// observers poll to detect mempool churn.
func (p *Pool) TransactionsUpdated() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transactionsUpdated
}

// DynamicMemoryUsage is the conservative byte estimate trim_to_size
// compares against the caller's byte cap: a fixed per-entry overhead
// times entry count, plus the cached link-set and tx-size totals. A
// constant-per-entry approximation rather than replicating a specific
// allocator's accounting.
func (p *Pool) DynamicMemoryUsage() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dynamicMemoryUsageLocked()
}

func (p *Pool) dynamicMemoryUsageLocked() int64 {
	return entryOverheadBytes*int64(p.index.len()) + p.cachedInnerUsage + p.totalTxSize
}

// Add admits a candidate entry. validForFeeEstimation is accepted for
// interface parity with the external fee estimator collaborator
// but otherwise unused by the engine itself.
func (p *Pool) Add(tx *models.Transaction, fee, entryTime int64, height int32, validForFeeEstimation bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	hash := tx.Txid
	prevouts := make([]models.Outpoint, len(tx.Inputs))
	for i := range tx.Inputs {
		prevouts[i] = tx.Prevout(i)
	}

	ancestors, err := p.calculateAncestors(hash, int64(tx.Vsize), prevouts, p.cfg.limits(), true)
	if err != nil {
		return err
	}

	preDelta := p.deltas[hash]
	e := newEntry(tx, fee, entryTime, height, preDelta)

	p.index.insert(e)
	p.linksByHash[hash] = newLinks()
	p.totalTxSize += e.Vsize

	for i := range tx.Inputs {
		p.outpointSpender[prevouts[i]] = hash
	}

	// Only direct parents (those whose output the candidate actually
	// spends) become link edges; calculateAncestors's returned set
	// also includes transitive ancestors, so direct parents are
	// re-derived from prevouts here rather than reused from it.
	for _, o := range prevouts {
		if parent, ok := p.index.find(o.Hash); ok {
			p.addParentChild(parent, e)
		}
	}

	p.applyInsertDeltas(e, ancestors)

	p.transactionsUpdated++
	p.notifier.EntryAdded(tx)
	p.maybeCheck()
	return nil
}

// Get returns the transaction stored for hash, or nil if absent.
func (p *Pool) Get(hash string) *models.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.index.find(hash)
	if !ok {
		return nil
	}
	return e.Tx
}

// Info is the query_hashes-adjacent single-hash lookup: tx, entry time,
// feerate (modified fee / vsize, as integer sat/vB truncated), and the
// entry's own FeeDelta. The zero value is returned if hash is
// absent — absence is not an error on query paths.
type Info struct {
	Tx      *models.Transaction
	Time    int64
	FeeRate int64
	Delta   int64
}

func (p *Pool) Info(hash string) Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.index.find(hash)
	if !ok {
		return Info{}
	}
	var rate int64
	if e.Vsize > 0 {
		rate = e.ModifiedFee() / e.Vsize
	}
	return Info{Tx: e.Tx, Time: e.Time, FeeRate: rate, Delta: e.FeeDelta}
}

// IsSpent reports whether outpoint is consumed by some in-pool entry.
func (p *Pool) IsSpent(o models.Outpoint) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.outpointSpender[o]
	return ok
}

// HasNoInputsOf reports that none of tx's inputs are spent by any
// in-pool transaction — a thin convenience wrapper for callers that
// only need a conflict check, not the full admission path.
func (p *Pool) HasNoInputsOf(tx *models.Transaction) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range tx.Inputs {
		if _, ok := p.outpointSpender[tx.Prevout(i)]; ok {
			return false
		}
	}
	return true
}

// CompareDepthAndScore reports whether entry a sorts before entry b in
// the (ancestor-count, descendant-score) ordering QueryHashesSorted
// uses: shallower chains first, richer packages first within a depth.
func (p *Pool) CompareDepthAndScore(hashA, hashB string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, aok := p.index.find(hashA)
	b, bok := p.index.find(hashB)
	if !aok || !bok {
		return false
	}
	if a.AncCount != b.AncCount {
		return a.AncCount < b.AncCount
	}
	lhs := a.DescModFee * b.DescSize
	rhs := b.DescModFee * a.DescSize
	if lhs != rhs {
		return lhs > rhs
	}
	return a.Hash < b.Hash
}

// QueryHashesSorted returns every in-pool hash ordered by (ancestor
// count ascending, descendant score descending).
func (p *Pool) QueryHashesSorted() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index.queryHashesSorted()
}

// SelectionOrder returns up to n hashes ordered best ancestor feerate
// first — the order a block-template assembler should consider
// candidates in. n <= 0 means no bound.
func (p *Pool) SelectionOrder(n int) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	p.index.descendAncScore(func(e *Entry) bool {
		out = append(out, e.Hash)
		return n <= 0 || len(out) < n
	})
	return out
}

// CalculateAncestors exposes the admission-gate computation directly,
// for collaborators that want to preview chain-limit acceptance
// without mutating the pool.
func (p *Pool) CalculateAncestors(tx *models.Transaction, limits Limits) (map[string]*Entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prevouts := make([]models.Outpoint, len(tx.Inputs))
	for i := range tx.Inputs {
		prevouts[i] = tx.Prevout(i)
	}
	return p.calculateAncestors(tx.Txid, int64(tx.Vsize), prevouts, limits, true)
}

// CalculateDescendants returns hash together with every in-pool
// descendant reachable through child links.
func (p *Pool) CalculateDescendants(hash string) map[string]*Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calculateDescendants(hash)
}

// Prioritise biases hash's selection/eviction ordering by delta without
// changing its recorded fee. The delta is recorded even if hash is not
// currently in the pool, so a pre-declared priority applies on later
// admission.
func (p *Pool) Prioritise(hash string, delta int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deltas[hash] += delta
	if e, ok := p.index.find(hash); ok {
		p.applyPrioritizeDeltas(e, delta)
	}
	p.transactionsUpdated++
	p.maybeCheck()
}

// ClearPrioritization removes any standing priority delta for hash.
// It only forgets the standing delta for future admissions; an in-pool
// entry keeps the FeeDelta it was admitted or prioritised with, and no
// aggregates move.
func (p *Pool) ClearPrioritization(hash string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.deltas, hash)
}
