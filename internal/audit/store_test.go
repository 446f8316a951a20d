package audit

import (
	"testing"

	"github.com/rawblock/mempool-engine/internal/mempool"
	"github.com/rawblock/mempool-engine/pkg/models"
)

func TestLabelForKnownReasons(t *testing.T) {
	cases := map[mempool.RemovalReason]string{
		mempool.ReasonUnknown:   "unknown",
		mempool.ReasonExpiry:    "expiry",
		mempool.ReasonSizeLimit: "size_limit",
		mempool.ReasonReorg:     "reorg",
		mempool.ReasonBlock:     "block",
		mempool.ReasonConflict:  "conflict",
		mempool.ReasonReplaced:  "replaced",
	}
	for reason, want := range cases {
		if got := labelFor(reason); got != want {
			t.Errorf("labelFor(%v) = %q, want %q", reason, got, want)
		}
	}
}

func TestLabelForUnrecognizedReasonFallsBackToUnknown(t *testing.T) {
	if got := labelFor(mempool.RemovalReason(99)); got != "unknown" {
		t.Errorf("labelFor(99) = %q, want %q", got, "unknown")
	}
}

func TestReasonForRoundTripsWithLabelFor(t *testing.T) {
	for reason, label := range reasonLabel {
		if got := reasonFor(label); got != reason {
			t.Errorf("reasonFor(%q) = %v, want %v", label, got, reason)
		}
	}
}

func TestReasonForUnrecognizedLabelFallsBackToUnknown(t *testing.T) {
	if got := reasonFor("not-a-real-label"); got != mempool.ReasonUnknown {
		t.Errorf("reasonFor(garbage) = %v, want ReasonUnknown", got)
	}
}

func TestClampLimit(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{0, 100},
		{-5, 100},
		{501, 100},
		{50, 50},
		{500, 500},
		{1, 1},
	}
	for _, c := range cases {
		if got := clampLimit(c.in); got != c.want {
			t.Errorf("clampLimit(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestNotifierBuffersRemovalsUntilDrained(t *testing.T) {
	n := &Notifier{}

	n.EntryRemoved(&models.Transaction{Txid: "aaa", Vsize: 150, Fee: 300}, mempool.ReasonBlock)
	n.EntryRemoved(&models.Transaction{Txid: "bbb", Vsize: 250, Fee: 700}, mempool.ReasonSizeLimit)

	batch := n.takePending()
	if len(batch) != 2 {
		t.Fatalf("takePending returned %d records, want 2", len(batch))
	}
	if batch[0].Txid != "aaa" || batch[0].Reason != mempool.ReasonBlock || batch[0].Vsize != 150 || batch[0].Fee != 300 {
		t.Errorf("unexpected first record: %+v", batch[0])
	}
	if batch[1].Txid != "bbb" || batch[1].Reason != mempool.ReasonSizeLimit {
		t.Errorf("unexpected second record: %+v", batch[1])
	}

	if again := n.takePending(); len(again) != 0 {
		t.Errorf("takePending after drain returned %d records, want 0", len(again))
	}
}

func TestNotifierEntryAddedIsIgnored(t *testing.T) {
	n := &Notifier{}
	n.EntryAdded(&models.Transaction{Txid: "ccc"})
	if batch := n.takePending(); len(batch) != 0 {
		t.Errorf("EntryAdded should not enqueue anything, got %d records", len(batch))
	}
}
