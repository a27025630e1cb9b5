package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"PriceSentinel/internal/alert"
	"PriceSentinel/internal/analyzer"
	"PriceSentinel/internal/feed"
	"PriceSentinel/internal/hub"
	"PriceSentinel/internal/model"
	"PriceSentinel/internal/notifier"
	"PriceSentinel/internal/rules"
	"PriceSentinel/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	window := feed.NewStore(time.Hour)
	client := feed.NewClient(feed.Config{Symbols: []string{"btcusdt"}}, window)
	wsHub := hub.New()
	push := notifier.NewServerChan("", "", 5)
	em := alert.NewEmitter(db, db, push, wsHub)
	ev := rules.NewEvaluator(db, analyzer.New(window), em)

	return NewServer(db, ev, client, window, wsHub), db
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestCreateRule(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/rules", map[string]any{
		"name":      "btc above 50k",
		"type":      "threshold_above",
		"threshold": 50000,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}

	var r model.Rule
	if err := json.Unmarshal(w.Body.Bytes(), &r); err != nil {
		t.Fatal(err)
	}
	if r.ID == "" || r.Symbol != "BTCUSDT" || r.CooldownMinutes != 5 {
		t.Errorf("defaults not applied: %+v", r)
	}
	if r.Status != model.StatusActive {
		t.Errorf("status = %q, want active", r.Status)
	}
}

func TestCreateRuleValidation(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing name", map[string]any{"type": "threshold_above", "threshold": 100}},
		{"missing threshold", map[string]any{"name": "r", "type": "threshold_above"}},
		{"unknown type", map[string]any{"name": "r", "type": "magic"}},
		{"volatility without window", map[string]any{"name": "r", "type": "volatility", "volatility_percent": 2}},
		{"fib equal bounds", map[string]any{"name": "r", "type": "fibonacci", "start_price": 100, "end_price": 100}},
		{"range inverted", map[string]any{"name": "r", "type": "range", "upper_price": 100, "lower_price": 200}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, s, http.MethodPost, "/api/rules", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", w.Code, w.Body)
			}
		})
	}
}

func TestGetRuleNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/api/rules/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestToggleRule(t *testing.T) {
	s, db := newTestServer(t)
	r := &model.Rule{Name: "r", Symbol: "BTCUSDT", Type: model.RuleThresholdAbove, Threshold: 100}
	if err := db.CreateRule(r); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, s, http.MethodPost, "/api/rules/"+r.ID+"/toggle", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	got, _ := db.GetRule(r.ID)
	if got.Status != model.StatusPaused {
		t.Errorf("status after toggle = %q, want paused", got.Status)
	}

	doJSON(t, s, http.MethodPost, "/api/rules/"+r.ID+"/toggle", nil)
	got, _ = db.GetRule(r.ID)
	if got.Status != model.StatusActive {
		t.Errorf("status after second toggle = %q, want active", got.Status)
	}
}

func TestDeleteRule(t *testing.T) {
	s, db := newTestServer(t)
	r := &model.Rule{Name: "r", Symbol: "BTCUSDT", Type: model.RuleThresholdAbove, Threshold: 100}
	if err := db.CreateRule(r); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, s, http.MethodDelete, "/api/rules/"+r.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	w = doJSON(t, s, http.MethodDelete, "/api/rules/"+r.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestListAlertsEmpty(t *testing.T) {
	s, _ := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/api/alerts", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var list []model.AlertRecord
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("expected JSON array, got %s", w.Body)
	}
	if len(list) != 0 {
		t.Errorf("alerts = %v", list)
	}
}

func TestListAlertsBadLimit(t *testing.T) {
	s, _ := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/api/alerts?limit=zero", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCurrentPriceUnknown(t *testing.T) {
	s, _ := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/api/prices/current?symbol=DOGEUSDT", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
