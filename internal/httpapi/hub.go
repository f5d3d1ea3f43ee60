// Package httpapi exposes the read-only HTTP/WebSocket surface: a
// /futures/movers snapshot endpoint, a health check, and a multi-symbol
// mark-price broadcast socket that also feeds the Strategy Engine's
// live-tick path.
package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	throttleEvery  = 200 * time.Millisecond
)

// Hub maintains the set of connected WebSocket clients and broadcasts
// JSON messages to all of them.
type Hub struct {
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	upgrader  websocket.Upgrader
}

// NewHub builds a Hub that accepts connections from any origin.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleWebSocket upgrades the request and keeps the connection alive
// with a ping/pong heartbeat until the client disconnects.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[httpapi] upgrade error: %v", err)
		return
	}

	h.register(conn)
	conn.WriteJSON(map[string]interface{}{
		"type":      "connection_init",
		"status":    "connected",
		"timestamp": time.Now().UnixMilli(),
	})

	defer func() {
		h.unregister(conn)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for range ticker.C {
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (h *Hub) register(conn *websocket.Conn) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	h.clients[conn] = true
	log.Printf("[httpapi] client connected, total %d", len(h.clients))
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		log.Printf("[httpapi] client disconnected, total %d", len(h.clients))
	}
}

// Broadcast marshals msg once and fans it out to every connected client,
// dropping (and closing) any client whose write fails.
func (h *Hub) Broadcast(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[httpapi] broadcast marshal error: %v", err)
		return
	}

	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for client := range h.clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			client.Close()
			delete(h.clients, client)
		}
	}
}

// TickerMessage is one symbol's mark-price broadcast frame.
type TickerMessage struct {
	Type   string  `json:"type"`
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

// PriceThrottler coalesces high-frequency mark-price updates down to a
// fixed broadcast cadence so the WebSocket fan-out doesn't scale with
// tick frequency.
type PriceThrottler struct {
	hub        *Hub
	mu         sync.RWMutex
	lastPrices map[string]float64
	onTick     func(symbol string, price float64)
}

// NewPriceThrottler builds a throttler. onTick, if non-nil, is called for
// every UpdatePrice call (not just the throttled broadcast) — the
// Strategy Engine's live-tick path hangs off this, since it must react
// immediately rather than wait for the broadcast cadence.
func NewPriceThrottler(hub *Hub, onTick func(symbol string, price float64)) *PriceThrottler {
	return &PriceThrottler{
		hub:        hub,
		lastPrices: make(map[string]float64),
		onTick:     onTick,
	}
}

// UpdatePrice records the latest mark price for symbol and immediately
// invokes onTick, independent of the broadcast throttle.
func (pt *PriceThrottler) UpdatePrice(symbol string, price float64) {
	pt.mu.Lock()
	pt.lastPrices[symbol] = price
	pt.mu.Unlock()

	if pt.onTick != nil {
		pt.onTick(symbol, price)
	}
}

// Start broadcasts the latest snapshot of prices at a fixed cadence until
// stop is closed.
func (pt *PriceThrottler) Start(stop <-chan struct{}) {
	ticker := time.NewTicker(throttleEvery)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			pt.mu.RLock()
			snapshot := make(map[string]float64, len(pt.lastPrices))
			for k, v := range pt.lastPrices {
				snapshot[k] = v
			}
			pt.mu.RUnlock()

			for symbol, price := range snapshot {
				pt.hub.Broadcast(TickerMessage{Type: "ticker", Symbol: symbol, Price: price})
			}
		}
	}
}
