package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReadyReflectsStoreProbe(t *testing.T) {
	storeUp := true
	h := New("1.0.0", func() bool { return storeUp })

	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthy store: status = %d, want 200", rec.Code)
	}

	storeUp = false
	rec = httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("down store: status = %d, want 503", rec.Code)
	}
}

func TestStatusReflectsStoreProbe(t *testing.T) {
	h := New("1.0.0", func() bool { return false })

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Checks StatusChecks `json:"checks"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Checks.ItemStore != "unavailable" {
		t.Errorf("item_store = %q, want unavailable", body.Data.Checks.ItemStore)
	}
}

func TestNilProbeAlwaysOK(t *testing.T) {
	h := New("1.0.0", nil)

	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("nil probe: status = %d, want 200", rec.Code)
	}
}
