package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aiops-sync-queue/internal/model"
	"aiops-sync-queue/internal/repository"
	"aiops-sync-queue/internal/service"

	"github.com/go-chi/chi/v5"
)

func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()
	repo := repository.NewMemorySyncItemRepository()
	t.Cleanup(func() { repo.Close() })

	svc := service.NewQueueService(repo, service.QueueConfig{})
	h := NewQueueHandler(svc)

	r := chi.NewRouter()
	r.Route("/api/v1/queue/{tenant_id}", func(r chi.Router) {
		r.Post("/items", h.Enqueue)
		r.Get("/items/{id}", h.GetItem)
		r.Post("/items/{id}/progress", h.MarkInProgress)
		r.Post("/items/{id}/complete", h.MarkCompleted)
		r.Post("/items/{id}/fail", h.MarkFailed)
		r.Post("/items/{id}/conflict", h.MarkConflict)
		r.Post("/items/{id}/cancel", h.MarkCancelled)
		r.Post("/batch", h.NextBatch)
		r.Post("/clear", h.Clear)
		r.Post("/retry-failed", h.RetryFailed)
		r.Get("/stats", h.Stats)
	})
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func enqueueBody(id string) map[string]interface{} {
	return map[string]interface{}{
		"id":         id,
		"store_name": "tasks",
		"entity_id":  "entity-" + id,
		"action":     "create",
		"payload":    map[string]string{"title": "hello"},
		"timestamp":  time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return env
}

func TestEnqueueEndpoint(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/queue/t1/items", enqueueBody("a"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Fatal("success = false")
	}
	var item model.SyncItem
	if err := json.Unmarshal(env.Data, &item); err != nil {
		t.Fatalf("decode item: %v", err)
	}
	if item.Status != model.StatusPending {
		t.Errorf("status = %s, want pending", item.Status)
	}
	if item.Metadata.Priority != model.PriorityNormal {
		t.Errorf("priority = %s, want normal", item.Metadata.Priority)
	}
}

func TestEnqueueValidationError(t *testing.T) {
	r := newTestRouter(t)

	body := enqueueBody("a")
	delete(body, "store_name")
	rec := doJSON(t, r, http.MethodPost, "/api/v1/queue/t1/items", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Error == nil || env.Error.Code != "BAD_REQUEST" {
		t.Errorf("error envelope = %s", rec.Body.String())
	}
}

func TestGetItemNotFound(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/api/v1/queue/t1/items/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Error == nil || env.Error.Code != "NOT_FOUND" {
		t.Errorf("error envelope = %s", rec.Body.String())
	}
}

func TestLifecycleEndpoints(t *testing.T) {
	r := newTestRouter(t)

	if rec := doJSON(t, r, http.MethodPost, "/api/v1/queue/t1/items", enqueueBody("a")); rec.Code != http.StatusCreated {
		t.Fatalf("enqueue: %d", rec.Code)
	}

	rec := doJSON(t, r, http.MethodPost, "/api/v1/queue/t1/items/a/progress", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("progress: %d %s", rec.Code, rec.Body.String())
	}
	var item model.SyncItem
	json.Unmarshal(decodeEnvelope(t, rec).Data, &item)
	if item.Status != model.StatusInProgress || item.Metadata.AttemptCount != 1 {
		t.Errorf("after progress: status=%s attempts=%d", item.Status, item.Metadata.AttemptCount)
	}

	rec = doJSON(t, r, http.MethodPost, "/api/v1/queue/t1/items/a/complete",
		map[string]interface{}{"server_response": map[string]int{"server_id": 9}})
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: %d %s", rec.Code, rec.Body.String())
	}
	json.Unmarshal(decodeEnvelope(t, rec).Data, &item)
	if item.Status != model.StatusCompleted {
		t.Errorf("after complete: status=%s", item.Status)
	}

	// Completed is settled; further transitions are conflicts at the HTTP level.
	rec = doJSON(t, r, http.MethodPost, "/api/v1/queue/t1/items/a/fail",
		map[string]interface{}{"error_message": "late", "retryable": true})
	if rec.Code != http.StatusConflict {
		t.Errorf("fail on completed item: status = %d, want 409", rec.Code)
	}
}

func TestFailAndRetryEndpoints(t *testing.T) {
	r := newTestRouter(t)

	body := enqueueBody("a")
	body["max_attempts"] = 1
	if rec := doJSON(t, r, http.MethodPost, "/api/v1/queue/t1/items", body); rec.Code != http.StatusCreated {
		t.Fatal("enqueue failed")
	}
	doJSON(t, r, http.MethodPost, "/api/v1/queue/t1/items/a/progress", nil)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/queue/t1/items/a/fail",
		map[string]interface{}{"error_message": "boom", "retryable": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("fail: %d %s", rec.Code, rec.Body.String())
	}
	var item model.SyncItem
	json.Unmarshal(decodeEnvelope(t, rec).Data, &item)
	if item.Status != model.StatusFailed {
		t.Errorf("budget of 1 exhausted, status = %s, want failed", item.Status)
	}

	rec = doJSON(t, r, http.MethodPost, "/api/v1/queue/t1/retry-failed",
		map[string]interface{}{"max_retries": 5})
	if rec.Code != http.StatusOK {
		t.Fatalf("retry-failed: %d", rec.Code)
	}
	var result struct {
		Retried int `json:"retried"`
	}
	json.Unmarshal(decodeEnvelope(t, rec).Data, &result)
	if result.Retried != 1 {
		t.Errorf("retried = %d, want 1", result.Retried)
	}
}

func TestFailOmittedRetryableSchedulesRetry(t *testing.T) {
	r := newTestRouter(t)

	if rec := doJSON(t, r, http.MethodPost, "/api/v1/queue/t1/items", enqueueBody("a")); rec.Code != http.StatusCreated {
		t.Fatal("enqueue failed")
	}
	doJSON(t, r, http.MethodPost, "/api/v1/queue/t1/items/a/progress", nil)

	// No retryable field at all: the first failure must schedule a retry,
	// not land the item in terminal failed.
	rec := doJSON(t, r, http.MethodPost, "/api/v1/queue/t1/items/a/fail",
		map[string]interface{}{"error_message": "timeout"})
	if rec.Code != http.StatusOK {
		t.Fatalf("fail: %d %s", rec.Code, rec.Body.String())
	}
	var item model.SyncItem
	json.Unmarshal(decodeEnvelope(t, rec).Data, &item)
	if item.Status != model.StatusPending {
		t.Errorf("status = %s, want pending", item.Status)
	}
	if item.Metadata.RetryAfter == nil {
		t.Error("no retry deadline scheduled")
	}

	// Explicit false is still permanent.
	doJSON(t, r, http.MethodPost, "/api/v1/queue/t1/items/a/progress", nil)
	rec = doJSON(t, r, http.MethodPost, "/api/v1/queue/t1/items/a/fail",
		map[string]interface{}{"error_message": "rejected", "retryable": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("fail: %d %s", rec.Code, rec.Body.String())
	}
	json.Unmarshal(decodeEnvelope(t, rec).Data, &item)
	if item.Status != model.StatusFailed {
		t.Errorf("status = %s, want failed", item.Status)
	}
}

func TestBatchAndStatsEndpoints(t *testing.T) {
	r := newTestRouter(t)

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("item-%d", i)
		if rec := doJSON(t, r, http.MethodPost, "/api/v1/queue/t1/items", enqueueBody(id)); rec.Code != http.StatusCreated {
			t.Fatalf("enqueue %s: %d", id, rec.Code)
		}
	}

	rec := doJSON(t, r, http.MethodPost, "/api/v1/queue/t1/batch",
		map[string]interface{}{"limit": 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("batch: %d", rec.Code)
	}
	var batch struct {
		Items []model.SyncItem `json:"items"`
		Count int              `json:"count"`
	}
	json.Unmarshal(decodeEnvelope(t, rec).Data, &batch)
	if batch.Count != 2 || len(batch.Items) != 2 {
		t.Errorf("batch count = %d/%d, want 2", batch.Count, len(batch.Items))
	}

	// Empty body means default options.
	rec = doJSON(t, r, http.MethodPost, "/api/v1/queue/t1/batch", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("batch with empty body: %d", rec.Code)
	}

	rec = doJSON(t, r, http.MethodGet, "/api/v1/queue/t1/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: %d", rec.Code)
	}
	var stats model.SyncStats
	json.Unmarshal(decodeEnvelope(t, rec).Data, &stats)
	if stats.Total != 3 {
		t.Errorf("total = %d, want 3", stats.Total)
	}
}

func TestClearEndpoint(t *testing.T) {
	r := newTestRouter(t)

	doJSON(t, r, http.MethodPost, "/api/v1/queue/t1/items", enqueueBody("a"))
	doJSON(t, r, http.MethodPost, "/api/v1/queue/t1/items", enqueueBody("b"))

	rec := doJSON(t, r, http.MethodPost, "/api/v1/queue/t1/clear", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear: %d", rec.Code)
	}
	var result struct {
		Cleared int `json:"cleared"`
	}
	json.Unmarshal(decodeEnvelope(t, rec).Data, &result)
	if result.Cleared != 2 {
		t.Errorf("cleared = %d, want 2", result.Cleared)
	}
}

func TestCancelEndpoint(t *testing.T) {
	r := newTestRouter(t)

	doJSON(t, r, http.MethodPost, "/api/v1/queue/t1/items", enqueueBody("a"))

	rec := doJSON(t, r, http.MethodPost, "/api/v1/queue/t1/items/a/cancel",
		map[string]interface{}{"reason": "user undo"})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: %d %s", rec.Code, rec.Body.String())
	}
	var item model.SyncItem
	json.Unmarshal(decodeEnvelope(t, rec).Data, &item)
	if item.Status != model.StatusCancelled || item.Metadata.CancelReason != "user undo" {
		t.Errorf("after cancel: status=%s reason=%q", item.Status, item.Metadata.CancelReason)
	}
}
