package chainfollower

import (
	"testing"

	"github.com/btcsuite/btcd/btcjson"
)

func TestClassifyTransitionFirstObservation(t *testing.T) {
	if got := classifyTransition("", 0, "prevhash", 100); got != transitionNone {
		t.Errorf("classifyTransition on empty lastHash = %v, want transitionNone", got)
	}
}

func TestClassifyTransitionNextBlock(t *testing.T) {
	got := classifyTransition("aaa", 100, "aaa", 101)
	if got != transitionNextBlock {
		t.Errorf("classifyTransition for ordinary next block = %v, want transitionNextBlock", got)
	}
}

func TestClassifyTransitionReorgOnPrevHashMismatch(t *testing.T) {
	got := classifyTransition("aaa", 100, "bbb", 101)
	if got != transitionReorg {
		t.Errorf("classifyTransition with mismatched prev hash = %v, want transitionReorg", got)
	}
}

func TestClassifyTransitionReorgOnHeightJump(t *testing.T) {
	got := classifyTransition("aaa", 100, "aaa", 103)
	if got != transitionReorg {
		t.Errorf("classifyTransition on height jump = %v, want transitionReorg", got)
	}
}

func TestClassifyTransitionReorgOnHeightGoingBackward(t *testing.T) {
	got := classifyTransition("aaa", 100, "zzz", 98)
	if got != transitionReorg {
		t.Errorf("classifyTransition on height regression = %v, want transitionReorg", got)
	}
}

func TestToModelTransactionMapsFields(t *testing.T) {
	raw := &btcjson.TxRawResult{
		Txid:     "deadbeef",
		Weight:   400,
		Vsize:    100,
		Version:  2,
		LockTime: 0,
		Vin: []btcjson.Vin{
			{Txid: "parent1", Vout: 0, Sequence: 0xffffffff},
		},
		Vout: []btcjson.Vout{
			{
				Value:        0.0005,
				ScriptPubKey: btcjson.ScriptPubKeyResult{Hex: "76a914deadbeef88ac"},
			},
		},
	}

	tx := ToModelTransaction(raw)

	if tx.Txid != "deadbeef" {
		t.Errorf("Txid = %q, want deadbeef", tx.Txid)
	}
	if tx.Weight != 400 || tx.Vsize != 100 || tx.Version != 2 {
		t.Errorf("got weight=%d vsize=%d version=%d, want 400/100/2", tx.Weight, tx.Vsize, tx.Version)
	}
	if len(tx.Inputs) != 1 || tx.Inputs[0].Txid != "parent1" || tx.Inputs[0].Vout != 0 {
		t.Fatalf("unexpected inputs: %+v", tx.Inputs)
	}
	if len(tx.Outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(tx.Outputs))
	}
	if tx.Outputs[0].Value != 50000 {
		t.Errorf("output value = %d, want 50000 satoshis", tx.Outputs[0].Value)
	}
	if tx.Outputs[0].ScriptPubKey != "76a914deadbeef88ac" {
		t.Errorf("unexpected scriptPubKey: %q", tx.Outputs[0].ScriptPubKey)
	}
}
