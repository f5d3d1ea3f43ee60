package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/yohannesjx/futures-predator/internal/scorer"
)

// Server is the optional read-only HTTP surface: a movers snapshot
// endpoint, a health check, and the mark-price WebSocket.
type Server struct {
	hub *Hub

	mu     sync.RWMutex
	latest scorer.Result
	ready  bool
}

// NewServer wires routes onto mux and returns the Server plus its Hub so
// the caller can feed price ticks into it.
func NewServer(mux *http.ServeMux) (*Server, *Hub) {
	hub := NewHub()
	s := &Server{hub: hub}

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/futures/movers", s.handleMovers)
	mux.HandleFunc("/ws", hub.HandleWebSocket)

	return s, hub
}

// SetLatest publishes the most recent cycle's fused result for
// /futures/movers to serve.
func (s *Server) SetLatest(result scorer.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = result
	s.ready = true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleMovers(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if !s.ready {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "warming up"})
		return
	}

	tf := r.URL.Query().Get("timeframe")
	if tf == "" {
		json.NewEncoder(w).Encode(s.latest)
		return
	}
	snap, ok := s.latest.Snapshots[tf]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "unknown timeframe"})
		return
	}
	json.NewEncoder(w).Encode(snap)
}
