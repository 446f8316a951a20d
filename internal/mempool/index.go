package mempool

import "github.com/google/btree"

// indexedSet is the primary entry store: a hash-keyed map plus three
// ordered btree indices that must stay consistent with it. Any path
// that mutates an entry's time or score fields must re-key the
// affected btree items around the mutation (delete under the old
// values, mutate, insert under the new values) — the btree's own
// ordering depends on those fields at comparison time, so stale
// orderings would otherwise corrupt the tree.
type indexedSet struct {
	byHash      map[string]*Entry
	byTime      *btree.BTree
	byDescScore *btree.BTree
	byAncScore  *btree.BTree
}

func newIndexedSet() *indexedSet {
	return &indexedSet{
		byHash:      make(map[string]*Entry),
		byTime:      btree.New(32),
		byDescScore: btree.New(32),
		byAncScore:  btree.New(32),
	}
}

type timeItem struct{ e *Entry }

func (a timeItem) Less(than btree.Item) bool {
	b := than.(timeItem)
	if a.e.Time != b.e.Time {
		return a.e.Time < b.e.Time
	}
	return a.e.Hash < b.e.Hash
}

// descScoreItem orders ascending by descendant feerate (desc_mod_fee /
// desc_size), compared by cross-multiplication to avoid floating
// point. Ascend() therefore visits the worst package first, which is
// exactly the order trim_to_size needs.
type descScoreItem struct{ e *Entry }

func (a descScoreItem) Less(than btree.Item) bool {
	b := than.(descScoreItem)
	lhs := a.e.DescModFee * b.e.DescSize
	rhs := b.e.DescModFee * a.e.DescSize
	if lhs != rhs {
		return lhs < rhs
	}
	return a.e.Hash < b.e.Hash
}

// ancScoreItem orders ascending by ancestor feerate (anc_mod_fee /
// anc_size); block assembly wants the best package first, so callers
// iterate this index with Descend.
type ancScoreItem struct{ e *Entry }

func (a ancScoreItem) Less(than btree.Item) bool {
	b := than.(ancScoreItem)
	lhs := a.e.AncModFee * b.e.AncSize
	rhs := b.e.AncModFee * a.e.AncSize
	if lhs != rhs {
		return lhs < rhs
	}
	return a.e.Hash < b.e.Hash
}

func (s *indexedSet) insert(e *Entry) {
	s.byHash[e.Hash] = e
	s.byTime.ReplaceOrInsert(timeItem{e})
	s.byDescScore.ReplaceOrInsert(descScoreItem{e})
	s.byAncScore.ReplaceOrInsert(ancScoreItem{e})
}

func (s *indexedSet) find(hash string) (*Entry, bool) {
	e, ok := s.byHash[hash]
	return e, ok
}

func (s *indexedSet) erase(e *Entry) {
	delete(s.byHash, e.Hash)
	s.byTime.Delete(timeItem{e})
	s.byDescScore.Delete(descScoreItem{e})
	s.byAncScore.Delete(ancScoreItem{e})
}

// rekeyDescScore must be called with a closure that mutates the fields
// the descendant-score ordering keys on (DescModFee, DescSize); it
// removes the stale item, applies the mutation, and reinserts.
func (s *indexedSet) rekeyDescScore(e *Entry, mutate func()) {
	s.byDescScore.Delete(descScoreItem{e})
	mutate()
	s.byDescScore.ReplaceOrInsert(descScoreItem{e})
}

func (s *indexedSet) rekeyAncScore(e *Entry, mutate func()) {
	s.byAncScore.Delete(ancScoreItem{e})
	mutate()
	s.byAncScore.ReplaceOrInsert(ancScoreItem{e})
}

// rekeyBoth is used when a single change (e.g. a prioritize delta)
// touches both orderings' key fields for the same entry.
func (s *indexedSet) rekeyBoth(e *Entry, mutate func()) {
	s.byDescScore.Delete(descScoreItem{e})
	s.byAncScore.Delete(ancScoreItem{e})
	mutate()
	s.byDescScore.ReplaceOrInsert(descScoreItem{e})
	s.byAncScore.ReplaceOrInsert(ancScoreItem{e})
}

func (s *indexedSet) len() int {
	return len(s.byHash)
}

// ascendTime visits entries in ascending entry-time order until fn
// returns false.
func (s *indexedSet) ascendTime(fn func(e *Entry) bool) {
	s.byTime.Ascend(func(it btree.Item) bool {
		return fn(it.(timeItem).e)
	})
}

// descendAncScore visits entries from best ancestor feerate to worst
// until fn returns false — the order a block-template assembler
// consumes candidates in.
func (s *indexedSet) descendAncScore(fn func(e *Entry) bool) {
	s.byAncScore.Descend(func(it btree.Item) bool {
		return fn(it.(ancScoreItem).e)
	})
}

// worstDescScore returns the entry at the head of the descendant-score
// ordering (the cheapest package), or nil if the set is empty.
func (s *indexedSet) worstDescScore() *Entry {
	var found *Entry
	s.byDescScore.Ascend(func(it btree.Item) bool {
		found = it.(descScoreItem).e
		return false
	})
	return found
}

// queryHashesSorted returns hashes ordered by (ancestor-count
// ascending, descendant-score descending); a sort over a snapshot
// rather than a fourth btree index, since the ordering is only needed
// for the one read-only query operation.
func (s *indexedSet) queryHashesSorted() []string {
	hashes := make([]string, 0, len(s.byHash))
	for h := range s.byHash {
		hashes = append(hashes, h)
	}
	sortQueryHashes(hashes, s.byHash)
	return hashes
}
