package mempool

import "github.com/rawblock/mempool-engine/pkg/models"

// Notifier is the notification sink consumed by the engine. Callbacks
// fire while the pool's lock is held — implementations must not call
// back into the Pool from inside them, and must not block for long
// since every mutation waits on these calls returning.
type Notifier interface {
	EntryAdded(tx *models.Transaction)
	EntryRemoved(tx *models.Transaction, reason RemovalReason)
}

// NopNotifier discards every notification; New substitutes it for a
// nil notifier so tests and callers that don't care about notifications don't
// need a nil check on every mutation path.
type NopNotifier struct{}

func (NopNotifier) EntryAdded(*models.Transaction)                  {}
func (NopNotifier) EntryRemoved(*models.Transaction, RemovalReason) {}
