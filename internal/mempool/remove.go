package mempool

import "github.com/rawblock/mempool-engine/pkg/models"

// removeUnchecked erases every entry in set from the pool. It assumes
// the caller already decided reason and whether descendants' ancestor
// aggregates need correcting (updateDescendants is false only when
// every descendant is itself being removed in the same call, e.g. a
// full package eviction). The three phases match
// UpdateForRemoveFromMempool: aggregate correction, then edge
// unlinking, then physical erasure — unlinking must happen after
// aggregate correction because that correction still walks the link
// table to find ancestors/descendants.
func (p *Pool) removeUnchecked(set map[string]*Entry, reason RemovalReason, updateDescendants bool) {
	if len(set) == 0 {
		return
	}

	p.applyRemoveDeltas(set, updateDescendants)

	for _, r := range set {
		for childHash := range p.childrenOf(r.Hash) {
			if child, ok := p.index.find(childHash); ok {
				p.removeParentChild(r, child)
			}
		}
		for parentHash := range p.parentsOf(r.Hash) {
			if parent, ok := p.index.find(parentHash); ok {
				p.removeParentChild(parent, r)
			}
		}
	}

	for _, r := range set {
		for i := range r.Tx.Inputs {
			o := r.Tx.Prevout(i)
			if spender, ok := p.outpointSpender[o]; ok && spender == r.Hash {
				delete(p.outpointSpender, o)
			}
		}
		delete(p.linksByHash, r.Hash)
		p.index.erase(r)
		p.totalTxSize -= r.Vsize
		p.transactionsUpdated++
		p.notifier.EntryRemoved(r.Tx, reason)
	}

	p.maybeCheck()
}

// RemoveRecursive removes tx and every in-pool descendant that spends
// any of its outputs. If tx itself is not present, descendants that
// spend its (would-be) outputs are still removed — this is how a
// conflicting transaction's orphaned children get cleaned up.
func (p *Pool) RemoveRecursive(tx *models.Transaction, reason RemovalReason) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeRecursiveLocked(tx, reason)
}

func (p *Pool) removeRecursiveLocked(tx *models.Transaction, reason RemovalReason) {
	set := make(map[string]*Entry)
	if _, ok := p.index.find(tx.Txid); ok {
		for h, e := range p.calculateDescendants(tx.Txid) {
			set[h] = e
		}
	} else {
		for outIdx := 0; outIdx < len(tx.Outputs); outIdx++ {
			o := models.Outpoint{Hash: tx.Txid, Index: uint32(outIdx)}
			spenderHash, ok := p.outpointSpender[o]
			if !ok {
				continue
			}
			for h, e := range p.calculateDescendants(spenderHash) {
				set[h] = e
			}
		}
	}
	// The whole descendant closure leaves together in this call, so no
	// remaining descendant needs its ancestor aggregates corrected.
	p.removeUnchecked(set, reason, false)
}

// RemoveConflicts removes, for each input of tx, whichever in-pool
// transaction (if any) spends the same outpoint, together with its
// descendants.
func (p *Pool) RemoveConflicts(tx *models.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeConflictsLocked(tx)
}

func (p *Pool) removeConflictsLocked(tx *models.Transaction) {
	for i := range tx.Inputs {
		o := tx.Prevout(i)
		spenderHash, ok := p.outpointSpender[o]
		if !ok || spenderHash == tx.Txid {
			continue
		}
		conflict, ok := p.index.find(spenderHash)
		if !ok {
			continue
		}
		p.removeRecursiveLocked(conflict.Tx, ReasonConflict)
	}
}

// RemoveForBlock removes exactly the confirmed transactions (their
// descendants stay, now with one fewer in-pool ancestor), removes any
// remaining conflicts against each, clears their priority deltas, and
// marks that a block has arrived so the rolling-fee bump flag resets.
func (p *Pool) RemoveForBlock(blockTxs []*models.Transaction, height int32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, tx := range blockTxs {
		p.removeConflictsLocked(tx)
		if e, ok := p.index.find(tx.Txid); ok {
			// Descendants stay in the pool and are still valid; they
			// just lose one in-pool ancestor, so their ancestor
			// aggregates must be corrected (updateDescendants=true).
			p.removeUnchecked(map[string]*Entry{e.Hash: e}, ReasonBlock, true)
		}
		delete(p.deltas, tx.Txid)
	}

	p.onBlockArrived()
}
