package mempool

import (
	"testing"

	"github.com/rawblock/mempool-engine/pkg/models"
)

func TestPoolCoinViewServesInPoolOutputs(t *testing.T) {
	p := New(DefaultConfig(), nil)
	tx := mkTx("CV", 200)
	tx.Outputs = []models.TxOut{{Value: 5000, ScriptPubKey: "aa"}}
	mustAdd(t, p, tx, 100)

	view := NewPoolCoinView(p, nil)

	coin, ok := view.GetCoin(models.Outpoint{Hash: "CV", Index: 0})
	if !ok {
		t.Fatalf("overlay should resolve an in-pool transaction's output")
	}
	if coin.Height != mempoolHeightSentinel {
		t.Errorf("in-pool coin height = %d, want the mempool sentinel %d", coin.Height, mempoolHeightSentinel)
	}
	if coin.Value != 5000 || coin.ScriptPubKey != "aa" {
		t.Errorf("coin = %+v, want value 5000 script aa", coin)
	}
	if coin.IsCoinbase {
		t.Errorf("a synthetic mempool coin can never be a coinbase")
	}

	if _, ok := view.GetCoin(models.Outpoint{Hash: "CV", Index: 7}); ok {
		t.Errorf("an output index past the transaction's outputs must not resolve")
	}
}

func TestPoolCoinViewDelegatesToBase(t *testing.T) {
	p := New(DefaultConfig(), nil)
	confirmed := models.Outpoint{Hash: "confirmed", Index: 1}
	base := stubCoinView{confirmed: {Value: 777, Height: 42}}

	view := NewPoolCoinView(p, base)

	coin, ok := view.GetCoin(confirmed)
	if !ok || coin.Value != 777 || coin.Height != 42 {
		t.Fatalf("overlay should fall through to the base view, got %+v (ok=%v)", coin, ok)
	}

	if _, ok := view.GetCoin(models.Outpoint{Hash: "nowhere", Index: 0}); ok {
		t.Errorf("an outpoint absent from both layers must not resolve")
	}
}
