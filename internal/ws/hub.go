// Package ws is the notification sink: it fans out mempool entry_added
// and entry_removed events to subscribed websocket clients. It sits
// behind mempool.Notifier and must never block the engine's lock — the
// hub only enqueues onto a buffered channel, and a slow/stuck client is
// dropped rather than allowed to stall the broadcast loop.
package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rawblock/mempool-engine/internal/mempool"
	"github.com/rawblock/mempool-engine/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all; same-origin policy is enforced upstream
	},
}

// Hub maintains the set of active websocket clients and broadcasts
// mempool change events to them.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mutex     sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		broadcast: make(chan []byte, 256),
		clients:   make(map[*websocket.Conn]bool),
	}
}

func (h *Hub) Run() {
	for message := range h.broadcast {
		h.mutex.Lock()
		for client := range h.clients {
			_ = client.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[WS] write error: %v", err)
				client.Close()
				delete(h.clients, client)
			}
		}
		h.mutex.Unlock()
	}
}

// Subscribe handles incoming websocket connections.
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] upgrade failed: %v", err)
		return
	}

	h.mutex.Lock()
	h.clients[conn] = true
	h.mutex.Unlock()

	log.Printf("[WS] client connected, total=%d", len(h.clients))

	go func() {
		defer func() {
			h.mutex.Lock()
			delete(h.clients, conn)
			h.mutex.Unlock()
			conn.Close()
			log.Printf("[WS] client disconnected, total=%d", len(h.clients))
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("[WS] read error: %v", err)
				}
				break
			}
		}
	}()
}

// Broadcast enqueues a raw message for delivery to every client.
func (h *Hub) Broadcast(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		log.Printf("[WS] broadcast channel full, dropping message")
	}
}

// event is the wire shape pushed for each mempool change.
type event struct {
	Type   string `json:"type"`
	Txid   string `json:"txid"`
	Reason string `json:"reason,omitempty"`
}

// Notifier adapts Hub to mempool.Notifier: entry_added/entry_removed
// events are marshaled and pushed onto the broadcast channel, never
// blocking the caller (the mempool's own lock is held while this runs).
type Notifier struct {
	Hub *Hub
}

func (n Notifier) EntryAdded(tx *models.Transaction) {
	n.push(event{Type: "entry_added", Txid: tx.Txid})
}

func (n Notifier) EntryRemoved(tx *models.Transaction, reason mempool.RemovalReason) {
	n.push(event{Type: "entry_removed", Txid: tx.Txid, Reason: reason.String()})
}

func (n Notifier) push(e event) {
	if n.Hub == nil {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		log.Printf("[WS] failed to marshal event: %v", err)
		return
	}
	n.Hub.Broadcast(data)
}

var _ mempool.Notifier = Notifier{}
