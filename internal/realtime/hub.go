// Package realtime streams scoring activity over WebSocket. Fraud review
// dashboards and downstream consumers subscribe instead of polling: every
// scored transaction as it is processed, and high-risk alerts as they
// fire, optionally narrowed by per-client filters.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/riskline/riskline/internal/metrics"
)

// MaxClients caps concurrent WebSocket connections.
const MaxClients = 10000

// EventType tags a stream event.
type EventType string

const (
	EventScore EventType = "score"
	EventAlert EventType = "alert"
)

// Event is one frame on the stream.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser clients send no Origin.
			return true
		}
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	},
}

// Hub owns the client set. All membership changes happen on its Run
// goroutine; other goroutines only read the set under the lock.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	events chan *Event
	joins  chan *Client
	leaves chan *Client
	done   chan struct{} // closed when Run exits, stops new upgrades

	logger     *slog.Logger
	maxClients int

	totalEvents  atomic.Int64
	totalClients atomic.Int64
	peakClients  atomic.Int64
}

// NewHub builds a hub. Call Run before handling connections.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		events:     make(chan *Event, 256),
		joins:      make(chan *Client),
		leaves:     make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
		maxClients: MaxClients,
	}
}

// Run drives the hub until ctx ends, then hangs up every client.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("realtime hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send) // writePump answers with a close frame
				delete(h.clients, c)
			}
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(0)
			h.logger.Info("realtime hub stopped")
			return

		case c := <-h.joins:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()

			h.totalClients.Add(1)
			if int64(n) > h.peakClients.Load() {
				h.peakClients.Store(int64(n))
			}
			metrics.ActiveWebSocketClients.Set(float64(n))
			h.logger.Info("client connected", "total", n)

		case c := <-h.leaves:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()

			metrics.ActiveWebSocketClients.Set(float64(n))
			h.logger.Info("client disconnected", "total", n)

		case ev := <-h.events:
			h.deliver(ev)
		}
	}
}

// deliver fans one event out to every matching client. A client whose
// send buffer is full gets dropped; it can reconnect, but it must not
// stall the stream for everyone else.
func (h *Hub) deliver(ev *Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("event marshal failed", "type", ev.Type, "error", err)
		return
	}
	h.totalEvents.Add(1)

	dropped := 0
	h.mu.Lock()
	for c := range h.clients {
		if !c.wants(ev) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			close(c.send)
			delete(h.clients, c)
			dropped++
		}
	}
	n := len(h.clients)
	h.mu.Unlock()

	if dropped > 0 {
		metrics.ActiveWebSocketClients.Set(float64(n))
		h.logger.Warn("dropped slow subscribers", "dropped", dropped, "remaining", n)
	}
}

// Broadcast queues an event for delivery. When the queue is full the
// event is dropped; the stream is a live feed, not a ledger.
func (h *Hub) Broadcast(ev *Event) {
	select {
	case h.events <- ev:
	default:
		h.logger.Warn("event queue full, dropping event", "type", ev.Type)
	}
}

// BroadcastScore streams one scored transaction.
func (h *Hub) BroadcastScore(data map[string]interface{}) {
	h.Broadcast(&Event{Type: EventScore, Timestamp: time.Now(), Data: data})
}

// BroadcastAlert streams one high-risk alert.
func (h *Hub) BroadcastAlert(data map[string]interface{}) {
	h.Broadcast(&Event{Type: EventAlert, Timestamp: time.Now(), Data: data})
}

// Stats reports hub counters for the stats endpoint.
func (h *Hub) Stats() map[string]interface{} {
	h.mu.RLock()
	connected := len(h.clients)
	h.mu.RUnlock()

	return map[string]interface{}{
		"connected_clients": connected,
		"total_events":      h.totalEvents.Load(),
		"total_clients":     h.totalClients.Load(),
		"peak_clients":      h.peakClients.Load(),
	}
}

// HandleWebSocket upgrades the request and hands the connection to the
// hub. New connections are refused once the hub has stopped or the
// client cap is reached.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	h.mu.RLock()
	full := len(h.clients) >= h.maxClients
	h.mu.RUnlock()
	if full {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(h, conn)
	select {
	case h.joins <- c:
	case <-h.done:
		// Run exited between the guard above and the join.
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}
