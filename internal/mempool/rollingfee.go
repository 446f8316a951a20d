package mempool

import (
	"math"
	"time"
)

// rollingFeeHalflife is the base half-life for the rolling minimum
// feerate's exponential decay, taken from Bitcoin Core's
// ROLLING_FEE_HALFLIFE (12 hours).
const rollingFeeHalflife = 12 * 60 * 60

// rollingFeeState is the floating minimum-feerate floor: a
// current rate, a last-update timestamp, and whether a block has
// arrived since the rate was last bumped upward (decay only runs once
// that's true — a bump should hold firm until the next block, not
// decay away immediately).
type rollingFeeState struct {
	ratePerVB     float64
	lastUpdate    int64
	decayEligible bool
}

// onBlockArrived marks that a block has arrived, making the rolling
// fee eligible to decay on the next query, and resets the update clock
// so decay is measured from now.
func (p *Pool) onBlockArrived() {
	p.rollingFee.lastUpdate = time.Now().Unix()
	p.rollingFee.decayEligible = true
}

// trackPackageRemoved is called by trim_to_size after an eviction: if
// the evicted package's feerate is higher than the current rolling
// floor, the floor is raised to it and decay is suspended until the
// next block (a fresh bump should not immediately start decaying).
func (p *Pool) trackPackageRemoved(evictedRatePerVB float64) {
	if evictedRatePerVB > p.rollingFee.ratePerVB {
		p.rollingFee.ratePerVB = evictedRatePerVB
		p.rollingFee.decayEligible = false
		p.rollingFee.lastUpdate = time.Now().Unix()
	}
}

// GetMinFee lazily decays and returns the rolling minimum feerate
// (sat/vB). sizeLimitBytes is the byte cap trim_to_size is enforcing;
// the decay half-life shortens when current usage is well below that
// cap (one-quarter below 1/4 fill, one-half below 1/2 fill) so the
// floor relaxes faster while the pool has headroom.
func (p *Pool) GetMinFee(sizeLimitBytes int64) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getMinFeeLocked(sizeLimitBytes)
}

func (p *Pool) getMinFeeLocked(sizeLimitBytes int64) int64 {
	if !p.rollingFee.decayEligible || p.rollingFee.ratePerVB == 0 {
		return int64(p.rollingFee.ratePerVB)
	}

	now := time.Now().Unix()
	if now > p.rollingFee.lastUpdate+10 {
		halflife := int64(rollingFeeHalflife)
		usage := p.dynamicMemoryUsageLocked()
		switch {
		case sizeLimitBytes > 0 && usage < sizeLimitBytes/4:
			halflife /= 4
		case sizeLimitBytes > 0 && usage < sizeLimitBytes/2:
			halflife /= 2
		}

		elapsed := now - p.rollingFee.lastUpdate
		p.rollingFee.ratePerVB /= math.Pow(2.0, float64(elapsed)/float64(halflife))
		p.rollingFee.lastUpdate = now

		if p.rollingFee.ratePerVB < float64(p.cfg.IncrementalRelayFeePerVB)/2 {
			p.rollingFee.ratePerVB = 0
			p.rollingFee.decayEligible = false
			return 0
		}
	}

	if p.rollingFee.ratePerVB < float64(p.cfg.IncrementalRelayFeePerVB) {
		return p.cfg.IncrementalRelayFeePerVB
	}
	return int64(p.rollingFee.ratePerVB)
}
