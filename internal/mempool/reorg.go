package mempool

// RemoveForReorg scans every entry, marks for removal any that fails
// finalCheck (finality/sequence-lock against the new tip, consulting the
// entry's own cached LockPoints) or, for coinbase-spenders, whose
// confirmed-chain inputs no longer resolve in view or fail coinbaseCheck
// (maturity against the new tip) — the checks themselves are external
// collaborators since consensus validation stays out of the engine's
// scope — then removes the union of their descendant closures. Inputs
// whose prevout transaction is itself in the pool are skipped: they are
// covered by that parent's own scan. Building the union skips computing
// descendants for an entry already found from an earlier member's
// closure, avoiding quadratic blowup on deep reorgs.
func (p *Pool) RemoveForReorg(view CoinView, newHeight int32, finalCheck func(e *Entry) bool, coinbaseCheck func(coin Coin, newHeight int32) bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	toRemove := make(map[string]*Entry)
	for hash, e := range p.index.byHash {
		if finalCheck != nil && !finalCheck(e) {
			toRemove[hash] = e
			continue
		}
		if !e.SpendsCoinbase || view == nil {
			continue
		}
		for i := range e.Tx.Inputs {
			o := e.Tx.Prevout(i)
			if _, inPool := p.index.find(o.Hash); inPool {
				continue
			}
			coin, ok := view.GetCoin(o)
			if !ok || (coinbaseCheck != nil && !coinbaseCheck(coin, newHeight)) {
				toRemove[hash] = e
				break
			}
		}
	}
	if len(toRemove) == 0 {
		return
	}

	union := make(map[string]*Entry)
	for hash := range toRemove {
		if _, already := union[hash]; already {
			continue
		}
		for dh, d := range p.calculateDescendants(hash) {
			union[dh] = d
		}
	}

	p.removeUnchecked(union, ReasonReorg, false)
}
