// Package chainfollower drives the mempool's block/reorg lifecycle: it
// polls the node for new tips, maps confirmed block transactions into
// mempool.RemoveForBlock calls, and detects tip discontinuities that
// call for mempool.RemoveForReorg. It owns no mempool state itself —
// every decision is expressed as a call into the Pool it was built with.
package chainfollower

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/rawblock/mempool-engine/internal/bitcoin"
	"github.com/rawblock/mempool-engine/internal/mempool"
	"github.com/rawblock/mempool-engine/pkg/models"
)

// Follower polls a Bitcoin node for chain-tip movement and applies the
// resulting block/reorg transitions to a mempool.Pool.
type Follower struct {
	btcClient *bitcoin.Client
	pool      *mempool.Pool
	view      mempool.CoinView

	pollInterval time.Duration

	lastHash   string
	lastHeight int64

	currentHeight atomic.Int64
	isRunning     atomic.Bool
}

func New(btcClient *bitcoin.Client, pool *mempool.Pool) *Follower {
	return &Follower{
		btcClient:    btcClient,
		pool:         pool,
		view:         bitcoin.ChainCoinView{Client: btcClient},
		pollInterval: 5 * time.Second,
	}
}

func (f *Follower) CurrentHeight() int64 {
	return f.currentHeight.Load()
}

// Run polls until ctx is cancelled, applying exactly one transition
// (either a new block or a reorg) per detected tip change.
func (f *Follower) Run(ctx context.Context) {
	if f.btcClient == nil {
		log.Println("[ChainFollower] Bitcoin client is nil; follower will not start")
		return
	}
	f.isRunning.Store(true)
	defer f.isRunning.Store(false)

	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	log.Println("[ChainFollower] Starting chain-tip poller...")

	for {
		select {
		case <-ctx.Done():
			log.Println("[ChainFollower] Stopping")
			return
		case <-ticker.C:
			f.poll()
		}
	}
}

func (f *Follower) poll() {
	tipHash, err := f.btcClient.GetBestBlockHash()
	if err != nil {
		log.Printf("[ChainFollower] GetBestBlockHash failed: %v", err)
		return
	}
	if tipHash.String() == f.lastHash {
		return
	}

	block, err := f.btcClient.GetBlockVerbose(tipHash)
	if err != nil {
		log.Printf("[ChainFollower] GetBlockVerbose failed for %s: %v", tipHash, err)
		return
	}

	switch classifyTransition(f.lastHash, f.lastHeight, block.PreviousHash, block.Height) {
	case transitionNone:
		// First observation: just record where we are, no transition to apply.
	case transitionNextBlock:
		f.applyBlock(block)
	case transitionReorg:
		f.applyReorg(int32(block.Height))
	}

	f.lastHash = tipHash.String()
	f.lastHeight = block.Height
	f.currentHeight.Store(block.Height)
}

type transition int

const (
	transitionNone transition = iota
	transitionNextBlock
	transitionReorg
)

// classifyTransition decides how a newly observed tip relates to the
// last one seen. An empty lastHash means this is the very first poll,
// which establishes a baseline without applying any pool mutation. A
// tip whose height is exactly one more than the last seen height and
// whose previous-block hash matches the last seen hash is the ordinary
// next-block case; anything else — including a height that goes
// backward, jumps by more than one, or disagrees on previous-hash — is
// a reorg.
func classifyTransition(lastHash string, lastHeight int64, newPrevHash string, newHeight int64) transition {
	switch {
	case lastHash == "":
		return transitionNone
	case newHeight == lastHeight+1 && newPrevHash == lastHash:
		return transitionNextBlock
	default:
		return transitionReorg
	}
}

// applyBlock fetches every confirmed (non-coinbase) transaction in the
// new block and removes it from the pool via RemoveForBlock, which
// leaves descendants in place with corrected ancestor aggregates.
func (f *Follower) applyBlock(block *btcjson.GetBlockVerboseResult) {
	confirmed := make([]*models.Transaction, 0, len(block.Tx))
	for i, txidStr := range block.Tx {
		if i == 0 {
			continue // coinbase
		}
		hash, err := chainhash.NewHashFromStr(txidStr)
		if err != nil {
			continue
		}
		rawTx, err := f.btcClient.GetRawTransaction(hash)
		if err != nil {
			log.Printf("[ChainFollower] failed to fetch confirmed tx %s: %v", txidStr, err)
			continue
		}
		confirmed = append(confirmed, ToModelTransaction(rawTx))
	}

	log.Printf("[ChainFollower] block %d (%s): %d confirmed txs, pool had %d entries",
		block.Height, block.Hash, len(confirmed), f.pool.Count())
	f.pool.RemoveForBlock(confirmed, int32(block.Height))
}

// applyReorg drops every in-pool entry whose coinbase ancestor no
// longer clears maturity against the new tip, together with the full
// descendant closure of anything that fails, via mempool.RemoveForReorg.
func (f *Follower) applyReorg(newHeight int32) {
	log.Printf("[ChainFollower] reorg detected at height %d (was %d)", newHeight, f.lastHeight)

	finalCheck := func(e *mempool.Entry) bool {
		return true // LockPoints re-validation is delegated to the transaction's own submitter on re-broadcast
	}
	coinbaseCheck := func(coin mempool.Coin, height int32) bool {
		const coinbaseMaturity = 100
		return !coin.IsCoinbase || height-coin.Height+1 >= coinbaseMaturity
	}

	f.pool.RemoveForReorg(f.view, newHeight, finalCheck, coinbaseCheck)
}

// ToModelTransaction maps the node's raw transaction shape down to the
// fields the engine's accounting needs: txid, inputs' prevouts, and
// vsize/weight. It does not resolve prevout values — RemoveForBlock only
// needs identity (txid + spent outpoints), not valuation. Exported so
// cmd/engine's startup bootstrap can reuse the same mapping.
func ToModelTransaction(rawTx *btcjson.TxRawResult) *models.Transaction {
	tx := &models.Transaction{
		Txid:     rawTx.Txid,
		Inputs:   make([]models.TxIn, len(rawTx.Vin)),
		Outputs:  make([]models.TxOut, len(rawTx.Vout)),
		Weight:   int(rawTx.Weight),
		Vsize:    int(rawTx.Vsize),
		Version:  int32(rawTx.Version),
		LockTime: rawTx.LockTime,
	}
	for i, vin := range rawTx.Vin {
		tx.Inputs[i] = models.TxIn{Txid: vin.Txid, Vout: vin.Vout, Sequence: vin.Sequence}
	}
	for i, vout := range rawTx.Vout {
		tx.Outputs[i] = models.TxOut{
			Value:        int64(vout.Value * 100_000_000),
			ScriptPubKey: vout.ScriptPubKey.Hex,
		}
	}
	return tx
}
