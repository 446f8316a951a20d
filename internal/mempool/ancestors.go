package mempool

import (
	"math"

	"github.com/rawblock/mempool-engine/pkg/models"
)

// Limits bounds a chain-limit admission check. NoLimits returns the
// sentinel used internally (e.g. before removal) where no bound should
// ever trip.
type Limits struct {
	MaxAncestors      int64
	MaxAncestorSize   int64
	MaxDescendants    int64
	MaxDescendantSize int64
}

// NoLimits is the no-limit sentinel variant of calculate_ancestors used
// internally to discover whose aggregates to decrement before removal.
var NoLimits = Limits{
	MaxAncestors:      math.MaxInt64,
	MaxAncestorSize:   math.MaxInt64,
	MaxDescendants:    math.MaxInt64,
	MaxDescendantSize: math.MaxInt64,
}

// calculateAncestors computes the in-pool ancestor set of a candidate.
// When searchForParents is true, tx is a not-yet-admitted candidate and
// parents are discovered by resolving its inputs' prevout hashes
// against the entry set. When false, selfHash already names an entry
// in the pool and parents are seeded from its recorded link record.
//
// Traversal is an explicit stack (LIFO), not a queue, per the admission
// gate's performance contract: each ancestor is visited at most once
// and aggregates are never mutated before the full set is known, so a
// failure anywhere leaves the pool untouched.
func (p *Pool) calculateAncestors(selfHash string, selfVsize int64, prevouts []models.Outpoint, limits Limits, searchForParents bool) (map[string]*Entry, error) {
	ancestors := make(map[string]*Entry)
	runningSize := selfVsize

	var seed map[string]*Entry
	if searchForParents {
		seed = make(map[string]*Entry)
		for _, o := range prevouts {
			if parent, ok := p.index.find(o.Hash); ok {
				seed[parent.Hash] = parent
			}
		}
	} else {
		seed = p.parentsOf(selfHash)
	}

	stack := make([]*Entry, 0, len(seed))
	for _, e := range seed {
		stack = append(stack, e)
	}

	for len(stack) > 0 {
		n := len(stack) - 1
		a := stack[n]
		stack = stack[:n]

		if _, dup := ancestors[a.Hash]; dup {
			continue
		}

		// The ancestor count includes the candidate itself: every
		// ancestor already collected, this one, and the candidate.
		if int64(len(ancestors))+2 > limits.MaxAncestors {
			return nil, ErrTooManyAncestors
		}

		runningSize += a.Vsize
		if runningSize > limits.MaxAncestorSize {
			return nil, ErrAncestorSizeExceeded
		}

		if a.DescSize+selfVsize > limits.MaxDescendantSize {
			return nil, &AdmissionError{Kind: DescendantSizeExceededFor, Hash: a.Hash}
		}
		// The descendant limit bounds a's descendants excluding a itself:
		// a.DescCount-1 existing ones plus the candidate.
		if a.DescCount > limits.MaxDescendants {
			return nil, &AdmissionError{Kind: TooManyDescendantsFor, Hash: a.Hash}
		}

		ancestors[a.Hash] = a
		for _, gp := range p.parentsOf(a.Hash) {
			if _, already := ancestors[gp.Hash]; !already {
				stack = append(stack, gp)
			}
		}
	}

	return ancestors, nil
}
