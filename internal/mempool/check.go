package mempool

import "fmt"

// maybeCheck runs Check probabilistically, checkFrequency times out of
// 2^32, the way every mutation path in txmempool.cpp samples GetRand()
// against nCheckFrequency. A zero CheckFrequency disables the
// self-audit entirely.
func (p *Pool) maybeCheck() {
	if p.cfg.CheckFrequency == 0 {
		return
	}
	if p.rng.Uint32() >= p.cfg.CheckFrequency {
		return
	}
	p.checkLocked(nil)
}

// Check runs the full self-audit unconditionally. Any mismatch is a
// fatal assertion — this is a correctness gate, not
// a runtime recovery path, so it panics rather than attempting repair.
// view, if non-nil, is consulted to confirm every non-dependent input
// still resolves against the confirmed chain.
func (p *Pool) Check(view CoinView) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkLocked(view)
}

func (p *Pool) checkLocked(view CoinView) {
	for hash, e := range p.index.byHash {
		p.checkParentSet(hash, e)
		p.checkAncestorAggregate(hash, e)
		p.checkOutpointsForEntry(hash, e)
		if view != nil {
			p.checkAgainstCoinView(hash, e, view)
		}
	}
	p.checkOutpointBijectivity()
}

func (p *Pool) checkParentSet(hash string, e *Entry) {
	expected := make(map[string]bool)
	for i := range e.Tx.Inputs {
		parentHash := e.Tx.Inputs[i].Txid
		if _, ok := p.index.find(parentHash); ok {
			expected[parentHash] = true
		}
	}
	actual := p.parentsOf(hash)
	if len(actual) != len(expected) {
		panic(fmt.Sprintf("mempool check: parent set size mismatch for %s: have %d want %d", hash, len(actual), len(expected)))
	}
	for ph := range actual {
		if !expected[ph] {
			panic(fmt.Sprintf("mempool check: unexpected parent link %s -> %s", hash, ph))
		}
	}
}

func (p *Pool) checkAncestorAggregate(hash string, e *Entry) {
	ancestors, err := p.calculateAncestors(hash, e.Vsize, nil, NoLimits, false)
	if err != nil {
		panic(fmt.Sprintf("mempool check: ancestor re-derivation failed for %s: %v", hash, err))
	}
	sumSize := e.Vsize
	sumFee := e.ModifiedFee()
	sumSigops := e.SigOpCost
	for _, a := range ancestors {
		sumSize += a.Vsize
		sumFee += a.ModifiedFee()
		sumSigops += a.SigOpCost
	}
	wantCount := int64(1 + len(ancestors))
	if e.AncCount != wantCount || e.AncSize != sumSize || e.AncModFee != sumFee || e.AncSigOps != sumSigops {
		panic(fmt.Sprintf(
			"mempool check: ancestor aggregate mismatch for %s: have {%d %d %d %d} want {%d %d %d %d}",
			hash, e.AncCount, e.AncSize, e.AncModFee, e.AncSigOps, wantCount, sumSize, sumFee, sumSigops,
		))
	}
}

func (p *Pool) checkOutpointsForEntry(hash string, e *Entry) {
	for i := range e.Tx.Inputs {
		o := e.Tx.Prevout(i)
		spender, ok := p.outpointSpender[o]
		if !ok || spender != hash {
			panic(fmt.Sprintf("mempool check: outpoint %v not mapped to its declared spender %s", o, hash))
		}
	}
}

func (p *Pool) checkAgainstCoinView(hash string, e *Entry, view CoinView) {
	for i := range e.Tx.Inputs {
		o := e.Tx.Prevout(i)
		if _, isInPoolParent := p.index.find(o.Hash); isInPoolParent {
			continue // dependent on an in-pool parent; nothing to confirm against the confirmed chain
		}
		if _, ok := view.GetCoin(o); !ok {
			panic(fmt.Sprintf("mempool check: input %v of %s not found in coin view", o, hash))
		}
	}
}

// checkOutpointBijectivity verifies every outpoint→spender entry
// points to an entry that actually declares that input — the
// injectivity invariant together with the reverse direction.
func (p *Pool) checkOutpointBijectivity() {
	for o, spenderHash := range p.outpointSpender {
		e, ok := p.index.find(spenderHash)
		if !ok {
			panic(fmt.Sprintf("mempool check: outpoint %v maps to absent entry %s", o, spenderHash))
		}
		found := false
		for i := range e.Tx.Inputs {
			if e.Tx.Prevout(i) == o {
				found = true
				break
			}
		}
		if !found {
			panic(fmt.Sprintf("mempool check: outpoint %v mapped to %s but is not one of its inputs", o, spenderHash))
		}
	}
}
