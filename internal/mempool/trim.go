package mempool

import "github.com/rawblock/mempool-engine/pkg/models"

// TrimToSize repeatedly evicts the worst descendant-score package
// until dynamic memory usage is at or below byteLimit, or the pool is
// empty. It returns the evicted entries' prevouts whose parent
// transaction is not in the pool afterwards — the outpoints whose
// spentness a caller's derived caches can no longer learn from the
// pool — so those caches can be purged.
func (p *Pool) TrimToSize(byteLimit int64) []models.Outpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	var freedOutpoints []models.Outpoint

	for p.index.len() > 0 && p.dynamicMemoryUsageLocked() > byteLimit {
		worst := p.index.worstDescScore()
		if worst == nil {
			break
		}

		pkg := p.calculateDescendants(worst.Hash)

		evictedRate := float64(worst.DescModFee)/float64(worst.DescSize) + float64(p.cfg.IncrementalRelayFeePerVB)
		p.trackPackageRemoved(evictedRate)

		// The whole package is evicted together, so no entry outside
		// pkg needs its ancestor aggregates corrected.
		p.removeUnchecked(pkg, ReasonSizeLimit, false)

		// Report only prevouts whose parent is absent from the pool
		// after removal; an input fed by a surviving in-pool parent is
		// still accounted for.
		for _, member := range pkg {
			for i := range member.Tx.Inputs {
				o := member.Tx.Prevout(i)
				if _, inPool := p.index.find(o.Hash); !inPool {
					freedOutpoints = append(freedOutpoints, o)
				}
			}
		}
	}

	return freedOutpoints
}
