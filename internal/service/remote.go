package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"aiops-sync-queue/internal/model"
)

// HTTPRemote is a RemoteFunc implementation that forwards queued mutations
// to a REST backend: POST for creates, PUT for updates, DELETE for deletes,
// with bulk actions routed to the collection's /bulk resource. 409 responses
// become conflicts, 408/429/5xx and transport errors become retryable
// failures, and any other 4xx is permanent.
type HTTPRemote struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRemote creates a remote targeting baseURL (no trailing slash needed).
func NewHTTPRemote(baseURL string, timeout time.Duration) *HTTPRemote {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPRemote{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Call implements RemoteFunc.
func (r *HTTPRemote) Call(ctx context.Context, item *model.SyncItem) (json.RawMessage, error) {
	method, url, err := r.route(item)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if len(item.Payload) > 0 {
		body = bytes.NewReader(item.Payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if item.Metadata.CorrelationID != "" {
		req.Header.Set("X-Correlation-ID", item.Metadata.CorrelationID)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &RetryableError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &RetryableError{Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return respBody, nil
	case resp.StatusCode == http.StatusConflict:
		return nil, &ConflictError{Details: respBody}
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return nil, &RetryableError{Err: fmt.Errorf("remote returned %d", resp.StatusCode)}
	default:
		return nil, fmt.Errorf("remote rejected %s %s: %d", method, url, resp.StatusCode)
	}
}

func (r *HTTPRemote) route(item *model.SyncItem) (method, url string, err error) {
	collection := fmt.Sprintf("%s/%s", r.baseURL, item.StoreName)
	switch item.Action {
	case model.ActionCreate:
		return http.MethodPost, collection, nil
	case model.ActionUpdate:
		return http.MethodPut, fmt.Sprintf("%s/%s", collection, item.EntityID), nil
	case model.ActionDelete:
		return http.MethodDelete, fmt.Sprintf("%s/%s", collection, item.EntityID), nil
	case model.ActionBulkCreate:
		return http.MethodPost, collection + "/bulk", nil
	case model.ActionBulkUpdate:
		return http.MethodPut, collection + "/bulk", nil
	case model.ActionBulkDelete:
		return http.MethodDelete, collection + "/bulk", nil
	default:
		return "", "", fmt.Errorf("%w: unknown action %q", model.ErrInvalidArgument, item.Action)
	}
}
