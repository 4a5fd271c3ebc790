package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aiops-sync-queue/internal/model"
)

func remoteItem(action model.Action) *model.SyncItem {
	return &model.SyncItem{
		ID:        "item-1",
		TenantID:  testTenant,
		StoreName: "tasks",
		EntityID:  "task-9",
		Action:    action,
		Payload:   json.RawMessage(`{"title":"hi"}`),
		Metadata:  model.Metadata{CorrelationID: "corr-1"},
	}
}

func TestHTTPRemoteRouting(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	remote := NewHTTPRemote(srv.URL, time.Second)

	cases := []struct {
		action model.Action
		method string
		path   string
	}{
		{model.ActionCreate, http.MethodPost, "/tasks"},
		{model.ActionUpdate, http.MethodPut, "/tasks/task-9"},
		{model.ActionDelete, http.MethodDelete, "/tasks/task-9"},
		{model.ActionBulkCreate, http.MethodPost, "/tasks/bulk"},
		{model.ActionBulkUpdate, http.MethodPut, "/tasks/bulk"},
		{model.ActionBulkDelete, http.MethodDelete, "/tasks/bulk"},
	}

	for _, tc := range cases {
		t.Run(string(tc.action), func(t *testing.T) {
			body, err := remote.Call(context.Background(), remoteItem(tc.action))
			if err != nil {
				t.Fatalf("Call: %v", err)
			}
			if gotMethod != tc.method || gotPath != tc.path {
				t.Errorf("routed to %s %s, want %s %s", gotMethod, gotPath, tc.method, tc.path)
			}
			if string(body) != `{"ok":true}` {
				t.Errorf("body = %s", body)
			}
		})
	}

	if _, err := remote.Call(context.Background(), remoteItem("upsert")); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("unknown action err = %v, want ErrInvalidArgument", err)
	}
}

func TestHTTPRemoteStatusClassification(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		conflict  bool
		retryable bool
	}{
		{"conflict", http.StatusConflict, true, false},
		{"timeout", http.StatusRequestTimeout, false, true},
		{"throttled", http.StatusTooManyRequests, false, true},
		{"server error", http.StatusBadGateway, false, true},
		{"client error is permanent", http.StatusUnprocessableEntity, false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(`{"detail":"x"}`))
			}))
			defer srv.Close()

			remote := NewHTTPRemote(srv.URL, time.Second)
			_, err := remote.Call(context.Background(), remoteItem(model.ActionCreate))
			if err == nil {
				t.Fatal("expected an error")
			}

			var conflictErr *ConflictError
			if got := errors.As(err, &conflictErr); got != tc.conflict {
				t.Errorf("conflict classification = %v, want %v", got, tc.conflict)
			}
			var retryableErr *RetryableError
			if got := errors.As(err, &retryableErr); got != tc.retryable {
				t.Errorf("retryable classification = %v, want %v", got, tc.retryable)
			}
		})
	}
}

func TestHTTPRemoteTransportErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	remote := NewHTTPRemote(srv.URL, time.Second)
	_, err := remote.Call(context.Background(), remoteItem(model.ActionCreate))

	var retryableErr *RetryableError
	if !errors.As(err, &retryableErr) {
		t.Errorf("transport error not retryable: %v", err)
	}
}

func TestHTTPRemoteCorrelationHeader(t *testing.T) {
	var gotCorr string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCorr = r.Header.Get("X-Correlation-ID")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	remote := NewHTTPRemote(srv.URL, time.Second)
	if _, err := remote.Call(context.Background(), remoteItem(model.ActionCreate)); err != nil {
		t.Fatal(err)
	}
	if gotCorr != "corr-1" {
		t.Errorf("correlation header = %q, want corr-1", gotCorr)
	}
}
