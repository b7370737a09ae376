package marketdata

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/carmandale/SPY-tracker-sub000/internal/domain/models"
	"github.com/carmandale/SPY-tracker-sub000/pkg/logger"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := New(srv.URL, "test-key", "SPY", logger.Nop(), WithRetryMax(1))
	return client, srv
}

func TestOfficialCheckpointPrice(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/checkpoint" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		q := r.URL.Query()
		if q.Get("symbol") != "SPY" || q.Get("date") != "2026-03-02" || q.Get("checkpoint") != "open" {
			t.Errorf("query = %v", q)
		}
		price := 581.75
		_ = json.NewEncoder(w).Encode(checkpointResponse{Symbol: "SPY", Date: "2026-03-02", Price: &price})
	}))

	got, err := client.OfficialCheckpointPrice(t.Context(), "2026-03-02", models.CheckpointOpen)
	if err != nil {
		t.Fatalf("official price: %v", err)
	}
	if got != 581.75 {
		t.Errorf("price = %v, want 581.75", got)
	}
}

func TestOfficialCheckpointPriceAbsent(t *testing.T) {
	// The provider answers but has no print for the slot yet.
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(checkpointResponse{Symbol: "SPY", Date: "2026-03-02"})
	}))

	_, err := client.OfficialCheckpointPrice(t.Context(), "2026-03-02", models.CheckpointOpen)
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestNotFoundIsNotRetried(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "not found", http.StatusNotFound)
	}))

	_, err := client.OfficialCheckpointPrice(t.Context(), "2026-03-02", models.CheckpointOpen)
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("provider called %d times, want 1", n)
	}
}

func TestServerErrorRetriesThenFails(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := client.LivePrice(t.Context())
	if !errors.Is(err, models.ErrProviderUnavailable) {
		t.Fatalf("got %v, want ErrProviderUnavailable", err)
	}
	// Initial attempt plus one retry.
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("provider called %d times, want 2", n)
	}
}

func TestLivePriceFromREST(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/quote" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(quoteResponse{Symbol: "SPY", Price: 582.00})
	}))

	got, err := client.LivePrice(t.Context())
	if err != nil {
		t.Fatalf("live price: %v", err)
	}
	if got != 582.00 {
		t.Errorf("price = %v, want 582.00", got)
	}
}

func TestRecentHistory(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("days"); got != "5" {
			t.Errorf("days = %q", got)
		}
		_, _ = w.Write([]byte(`{
			"symbol": "SPY",
			"bars": [
				{"date": "2026-02-26", "open": 579, "high": 581, "low": 578, "close": 580.4, "volume": 100},
				{"date": "not-a-date", "open": 1, "high": 1, "low": 1, "close": 1, "volume": 1},
				{"date": "2026-02-27", "open": 580, "high": 582, "low": 579.5, "close": 581.5, "volume": 120}
			]
		}`))
	}))

	bars, err := client.RecentHistory(t.Context(), 5)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	// The unparseable bar is dropped, the rest survive in order.
	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2", len(bars))
	}
	if bars[0].Date != "2026-02-26" || bars[1].Close != 581.5 {
		t.Errorf("bars = %+v", bars)
	}
}

func TestRecentHistoryEmpty(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"symbol": "SPY", "bars": []}`))
	}))

	_, err := client.RecentHistory(t.Context(), 5)
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
