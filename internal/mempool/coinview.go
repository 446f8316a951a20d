package mempool

import "github.com/rawblock/mempool-engine/pkg/models"

// mempoolHeightSentinel marks a coin as originating from an unconfirmed
// mempool entry rather than a confirmed block, mirroring Bitcoin
// Core's MEMPOOL_HEIGHT sentinel.
const mempoolHeightSentinel = 0x7fffffff

// Coin is the minimal UTXO record the engine and its collaborators
// need: enough to validate a candidate child's inputs and to check
// coinbase maturity on reorg.
type Coin struct {
	Value        int64
	ScriptPubKey string
	Height       int32
	IsCoinbase   bool
}

// CoinView abstracts the current UTXO set. The
// engine never implements consensus validation itself; this is the
// named interface that lets it hand candidate-child validation off to
// an external collaborator without exposing its internal entry
// representation.
type CoinView interface {
	GetCoin(o models.Outpoint) (Coin, bool)
}

// PoolCoinView composes the pool's synthetic outputs over an
// underlying confirmed-UTXO view: GetCoin first consults the pool
// (returning a synthetic coin at mempoolHeightSentinel for any in-pool
// transaction's output) and otherwise delegates to base. This is what
// consensus validation uses to check inputs for candidate children of
// in-pool parents.
type PoolCoinView struct {
	pool *Pool
	base CoinView
}

// NewPoolCoinView builds the mempool-over-base overlay. base may be
// nil, in which case outputs not found in the pool are reported absent.
func NewPoolCoinView(pool *Pool, base CoinView) *PoolCoinView {
	return &PoolCoinView{pool: pool, base: base}
}

func (v *PoolCoinView) GetCoin(o models.Outpoint) (Coin, bool) {
	v.pool.mu.Lock()
	e, ok := v.pool.index.find(o.Hash)
	v.pool.mu.Unlock()

	if ok {
		if int(o.Index) >= len(e.Tx.Outputs) {
			return Coin{}, false
		}
		out := e.Tx.Outputs[o.Index]
		return Coin{
			Value:        out.Value,
			ScriptPubKey: out.ScriptPubKey,
			Height:       mempoolHeightSentinel,
			IsCoinbase:   false,
		}, true
	}

	if v.base == nil {
		return Coin{}, false
	}
	return v.base.GetCoin(o)
}
