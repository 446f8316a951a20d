package mempool

import "sort"

// sortQueryHashes orders hashes by (ancestor-count ascending,
// descendant-score descending), matching CTxMemPool::queryHashes.
func sortQueryHashes(hashes []string, byHash map[string]*Entry) {
	sort.Slice(hashes, func(i, j int) bool {
		a, b := byHash[hashes[i]], byHash[hashes[j]]
		if a.AncCount != b.AncCount {
			return a.AncCount < b.AncCount
		}
		lhs := a.DescModFee * b.DescSize
		rhs := b.DescModFee * a.DescSize
		if lhs != rhs {
			return lhs > rhs
		}
		return a.Hash < b.Hash
	})
}

// RemovalReason tags why an entry left the pool; propagated to the
// notification sink for every removed entry.
type RemovalReason int

const (
	ReasonUnknown RemovalReason = iota
	ReasonExpiry
	ReasonSizeLimit
	ReasonReorg
	ReasonBlock
	ReasonConflict
	ReasonReplaced
)

func (r RemovalReason) String() string {
	switch r {
	case ReasonExpiry:
		return "expiry"
	case ReasonSizeLimit:
		return "sizelimit"
	case ReasonReorg:
		return "reorg"
	case ReasonBlock:
		return "block"
	case ReasonConflict:
		return "conflict"
	case ReasonReplaced:
		return "replaced"
	default:
		return "unknown"
	}
}
