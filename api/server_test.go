package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"hedgegrid/config"
	"hedgegrid/internal/scheduler"
	"hedgegrid/store"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{}
	cfg.SetDefaults()
	sched := scheduler.New(cfg, nil, nil, nil, nil)
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewServer(sched, st, 0)
}

func TestHealthz(t *testing.T) {
	s := testServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestSymbolsEmpty(t *testing.T) {
	s := testServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/symbols", nil)
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Symbols []scheduler.Snapshot `json:"symbols"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Symbols) != 0 {
		t.Fatalf("got %d symbols, want 0", len(body.Symbols))
	}
}

func TestSymbolNotAdmitted(t *testing.T) {
	s := testServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/symbols/BTCUSDT", nil)
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestEventsRoundTrip(t *testing.T) {
	s := testServer(t)
	if err := s.store.RecordAutoReduceEvent(&store.AutoReduceEventModel{
		Symbol: "BTCUSDT", Side: "long", Variant: "ladder", Qty: 1, Price: 50000,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Events []store.AutoReduceEventModel `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Events) != 1 || body.Events[0].Symbol != "BTCUSDT" {
		t.Fatalf("unexpected events: %+v", body.Events)
	}
}
