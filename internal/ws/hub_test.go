package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rawblock/mempool-engine/internal/mempool"
	"github.com/rawblock/mempool-engine/pkg/models"
)

func TestNotifierEntryAddedPushesEvent(t *testing.T) {
	hub := NewHub()
	n := Notifier{Hub: hub}

	n.EntryAdded(&models.Transaction{Txid: "abc123"})

	select {
	case data := <-hub.broadcast:
		var e event
		if err := json.Unmarshal(data, &e); err != nil {
			t.Fatalf("failed to unmarshal pushed event: %v", err)
		}
		if e.Type != "entry_added" || e.Txid != "abc123" {
			t.Errorf("got event %+v, want type=entry_added txid=abc123", e)
		}
		if e.Reason != "" {
			t.Errorf("entry_added event should have no reason, got %q", e.Reason)
		}
	case <-time.After(time.Second):
		t.Fatalf("no event pushed onto broadcast channel")
	}
}

func TestNotifierEntryRemovedCarriesReason(t *testing.T) {
	hub := NewHub()
	n := Notifier{Hub: hub}

	n.EntryRemoved(&models.Transaction{Txid: "def456"}, mempool.ReasonBlock)

	select {
	case data := <-hub.broadcast:
		var e event
		if err := json.Unmarshal(data, &e); err != nil {
			t.Fatalf("failed to unmarshal pushed event: %v", err)
		}
		if e.Type != "entry_removed" || e.Txid != "def456" || e.Reason != "block" {
			t.Errorf("got event %+v, want type=entry_removed txid=def456 reason=block", e)
		}
	case <-time.After(time.Second):
		t.Fatalf("no event pushed onto broadcast channel")
	}
}

func TestNotifierNilHubIsNoop(t *testing.T) {
	n := Notifier{}
	// Must not panic even though Hub is nil.
	n.EntryAdded(&models.Transaction{Txid: "nohub"})
}

func TestBroadcastDropsWhenFull(t *testing.T) {
	hub := NewHub()
	// Fill the real buffer capacity (256) then confirm one more enqueue
	// does not block — it must be dropped, not delivered.
	for i := 0; i < cap(hub.broadcast); i++ {
		hub.Broadcast([]byte("filler"))
	}

	done := make(chan struct{})
	go func() {
		hub.Broadcast([]byte("overflow"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Broadcast blocked on a full channel instead of dropping")
	}
}

func TestNotifierSatisfiesMempoolInterface(t *testing.T) {
	var _ mempool.Notifier = Notifier{}
}
