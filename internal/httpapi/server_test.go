package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yohannesjx/futures-predator/internal/scorer"
)

func TestHandleHealth_ReturnsOK(t *testing.T) {
	mux := http.NewServeMux()
	_, _ = NewServer(mux)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleMovers_NotReadyUntilSetLatest(t *testing.T) {
	mux := http.NewServeMux()
	srv, _ := NewServer(mux)

	req := httptest.NewRequest(http.MethodGet, "/futures/movers", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	srv.SetLatest(scorer.Result{Snapshots: map[string]scorer.MoversSnapshot{
		"10m": {Timeframe: "10m"},
	}})

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleMovers_FiltersByTimeframe(t *testing.T) {
	mux := http.NewServeMux()
	srv, _ := NewServer(mux)
	srv.SetLatest(scorer.Result{Snapshots: map[string]scorer.MoversSnapshot{
		"10m": {Timeframe: "10m"},
		"1h":  {Timeframe: "1h"},
	}})

	req := httptest.NewRequest(http.MethodGet, "/futures/movers?timeframe=1h", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"1h"`)

	req = httptest.NewRequest(http.MethodGet, "/futures/movers?timeframe=2d", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
