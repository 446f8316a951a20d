package bitcoin

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/rawblock/mempool-engine/internal/mempool"
	"github.com/rawblock/mempool-engine/pkg/models"
)

// ChainCoinView is the confirmed-chain base layer behind the mempool's
// coin-view overlay: GetCoin resolves directly against the
// node's live UTXO set via gettxout, independent of anything sitting in
// the mempool.
type ChainCoinView struct {
	Client *Client
}

func (v ChainCoinView) GetCoin(o models.Outpoint) (mempool.Coin, bool) {
	hash, err := chainhash.NewHashFromStr(o.Hash)
	if err != nil {
		return mempool.Coin{}, false
	}
	res, err := v.Client.GetTxOut(hash, o.Index)
	if err != nil || res == nil {
		return mempool.Coin{}, false
	}
	// gettxout reports confirmations, not the containing block's height;
	// derive it against the current tip.
	height := int32(-1)
	if res.Confirmations > 0 {
		if tip, err := v.Client.RPC.GetBlockCount(); err == nil {
			height = int32(tip - res.Confirmations + 1)
		}
	}
	return mempool.Coin{
		Value:        int64(res.Value * 100_000_000),
		ScriptPubKey: res.ScriptPubKey.Hex,
		Height:       height,
		IsCoinbase:   res.Coinbase,
	}, true
}
