package mempool

// Expire removes every entry whose entry time is older than
// cutoffTime, expanded to include their descendants (a transaction
// that outlives its parent in the pool is still removed once its
// ancestor expires). Returns the total number of entries removed.
func (p *Pool) Expire(cutoffTime int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	var stale []string
	p.index.ascendTime(func(e *Entry) bool {
		if e.Time >= cutoffTime {
			return false
		}
		stale = append(stale, e.Hash)
		return true
	})
	if len(stale) == 0 {
		return 0
	}

	union := make(map[string]*Entry)
	for _, h := range stale {
		for dh, d := range p.calculateDescendants(h) {
			union[dh] = d
		}
	}

	p.removeUnchecked(union, ReasonExpiry, false)
	return len(union)
}
