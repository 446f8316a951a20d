package mempool

// applyInsertDeltas propagates the effect of admitting entry e, whose
// in-pool ancestor set is ancestors:
// every ancestor's descendant aggregates grow by e's own contribution,
// and e's own ancestor aggregates are derived from the full scan.
func (p *Pool) applyInsertDeltas(e *Entry, ancestors map[string]*Entry) {
	for _, a := range ancestors {
		p.index.rekeyDescScore(a, func() {
			a.DescCount++
			a.DescSize += e.Vsize
			a.DescModFee += e.ModifiedFee()
		})
	}

	sumSize := e.Vsize
	sumFee := e.ModifiedFee()
	sumSigops := e.SigOpCost
	for _, a := range ancestors {
		sumSize += a.Vsize
		sumFee += a.ModifiedFee()
		sumSigops += a.SigOpCost
	}

	p.index.rekeyAncScore(e, func() {
		e.AncCount = 1 + int64(len(ancestors))
		e.AncSize = sumSize
		e.AncModFee = sumFee
		e.AncSigOps = sumSigops
	})
}

// applyRemoveDeltas reverses the aggregate contribution of a set R
// about to be removed, in the three-phase order
// UpdateForRemoveFromMempool uses: first subtract each r's
// contribution from descendants not in R, then subtract r's
// ancestors' descendant aggregates, then (left to the caller) unlink
// the edges touching r. When updateDescendants is false (a full
// package eviction, e.g. trim_to_size) the first phase is skipped
// since every descendant is also being removed.
func (p *Pool) applyRemoveDeltas(removalSet map[string]*Entry, updateDescendants bool) {
	if updateDescendants {
		for _, r := range removalSet {
			descendants := p.calculateDescendants(r.Hash)
			for h, d := range descendants {
				if h == r.Hash {
					continue
				}
				if _, inR := removalSet[h]; inR {
					continue
				}
				p.index.rekeyAncScore(d, func() {
					d.AncCount--
					d.AncSize -= r.Vsize
					d.AncModFee -= r.ModifiedFee()
					d.AncSigOps -= r.SigOpCost
				})
			}
		}
	}

	for _, r := range removalSet {
		ancestors, _ := p.calculateAncestors(r.Hash, r.Vsize, nil, NoLimits, false)
		for h, a := range ancestors {
			if _, inR := removalSet[h]; inR {
				continue
			}
			p.index.rekeyDescScore(a, func() {
				a.DescCount--
				a.DescSize -= r.Vsize
				a.DescModFee -= r.ModifiedFee()
			})
		}
	}
}

// applyPrioritizeDeltas propagates a fee-delta change: only
// the fee component moves, never count/size/sigops, and it moves in
// opposite directions for ancestors (their descendant aggregates
// include h) versus descendants (their ancestor aggregates include h).
func (p *Pool) applyPrioritizeDeltas(e *Entry, delta int64) {
	ancestors, _ := p.calculateAncestors(e.Hash, e.Vsize, nil, NoLimits, false)
	for _, a := range ancestors {
		p.index.rekeyDescScore(a, func() {
			a.DescModFee += delta
		})
	}

	descendants := p.calculateDescendants(e.Hash)
	for h, d := range descendants {
		if h == e.Hash {
			continue
		}
		p.index.rekeyAncScore(d, func() {
			d.AncModFee += delta
		})
	}

	// The entry's own modified fee moves, and since its desc/anc
	// aggregates include itself, those sums move with it too —
	// mirrors CTxMemPoolEntry::UpdateFeeDelta's
	// nModFeesWithDescendants/nModFeesWithAncestors adjustment.
	p.index.rekeyBoth(e, func() {
		e.FeeDelta += delta
		e.DescModFee += delta
		e.AncModFee += delta
	})
}
