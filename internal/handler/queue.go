package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"aiops-sync-queue/internal/model"
	"aiops-sync-queue/internal/service"
	"aiops-sync-queue/pkg/apierror"
	"aiops-sync-queue/pkg/response"

	"github.com/go-chi/chi/v5"
)

// QueueHandler handles sync queue HTTP requests.
type QueueHandler struct {
	queueService *service.QueueService
}

// NewQueueHandler creates a new queue handler.
func NewQueueHandler(queueService *service.QueueService) *QueueHandler {
	return &QueueHandler{
		queueService: queueService,
	}
}

// serviceError translates service-layer errors into API errors.
func serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidArgument):
		response.Error(w, apierror.BadRequest(err.Error()))
	case errors.Is(err, model.ErrNotFound):
		response.Error(w, apierror.NotFound(err.Error()))
	case errors.Is(err, model.ErrInvalidState):
		response.Error(w, apierror.Conflict(err.Error()))
	case model.IsStorageError(err):
		response.Error(w, apierror.InternalError("item store failure"))
	default:
		response.Error(w, err)
	}
}

// Enqueue handles POST /api/v1/queue/{tenant_id}/items
func (h *QueueHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	if tenantID == "" {
		response.Error(w, apierror.BadRequest("tenant_id is required"))
		return
	}

	var input model.SyncItemInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}
	defer r.Body.Close()

	item, err := h.queueService.Enqueue(r.Context(), tenantID, input)
	if err != nil {
		serviceError(w, err)
		return
	}

	response.Created(w, item)
}

// GetItem handles GET /api/v1/queue/{tenant_id}/items/{id}
func (h *QueueHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	itemID := chi.URLParam(r, "id")
	if tenantID == "" || itemID == "" {
		response.Error(w, apierror.BadRequest("tenant_id and id are required"))
		return
	}

	item, err := h.queueService.GetItem(r.Context(), tenantID, itemID)
	if err != nil {
		serviceError(w, err)
		return
	}

	response.OK(w, item)
}

// NextBatch handles POST /api/v1/queue/{tenant_id}/batch
func (h *QueueHandler) NextBatch(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	if tenantID == "" {
		response.Error(w, apierror.BadRequest("tenant_id is required"))
		return
	}

	var opts model.BatchOptions
	if err := decodeOptional(r, &opts); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}

	batch, err := h.queueService.GetNextBatch(r.Context(), tenantID, opts)
	if err != nil {
		serviceError(w, err)
		return
	}

	response.OK(w, map[string]interface{}{
		"items": batch,
		"count": len(batch),
	})
}

// MarkInProgress handles POST /api/v1/queue/{tenant_id}/items/{id}/progress
func (h *QueueHandler) MarkInProgress(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	itemID := chi.URLParam(r, "id")

	if err := h.queueService.MarkInProgress(r.Context(), tenantID, itemID); err != nil {
		serviceError(w, err)
		return
	}

	h.respondItem(w, r, tenantID, itemID)
}

type completeRequest struct {
	ServerResponse json.RawMessage `json:"server_response,omitempty"`
}

// MarkCompleted handles POST /api/v1/queue/{tenant_id}/items/{id}/complete
func (h *QueueHandler) MarkCompleted(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	itemID := chi.URLParam(r, "id")

	var req completeRequest
	if err := decodeOptional(r, &req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}

	if err := h.queueService.MarkCompleted(r.Context(), tenantID, itemID, req.ServerResponse); err != nil {
		serviceError(w, err)
		return
	}

	h.respondItem(w, r, tenantID, itemID)
}

type failRequest struct {
	ErrorMessage string `json:"error_message"`
	// Omitting retryable means retryable; only an explicit false is permanent.
	Retryable *bool `json:"retryable,omitempty"`
}

// MarkFailed handles POST /api/v1/queue/{tenant_id}/items/{id}/fail
func (h *QueueHandler) MarkFailed(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	itemID := chi.URLParam(r, "id")

	var req failRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}
	defer r.Body.Close()

	retryable := true
	if req.Retryable != nil {
		retryable = *req.Retryable
	}

	if err := h.queueService.MarkFailed(r.Context(), tenantID, itemID, req.ErrorMessage, retryable); err != nil {
		serviceError(w, err)
		return
	}

	h.respondItem(w, r, tenantID, itemID)
}

type conflictRequest struct {
	ConflictDetails json.RawMessage `json:"conflict_details,omitempty"`
}

// MarkConflict handles POST /api/v1/queue/{tenant_id}/items/{id}/conflict
func (h *QueueHandler) MarkConflict(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	itemID := chi.URLParam(r, "id")

	var req conflictRequest
	if err := decodeOptional(r, &req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}

	if err := h.queueService.MarkConflict(r.Context(), tenantID, itemID, req.ConflictDetails); err != nil {
		serviceError(w, err)
		return
	}

	h.respondItem(w, r, tenantID, itemID)
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// MarkCancelled handles POST /api/v1/queue/{tenant_id}/items/{id}/cancel
func (h *QueueHandler) MarkCancelled(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	itemID := chi.URLParam(r, "id")

	var req cancelRequest
	if err := decodeOptional(r, &req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}

	if err := h.queueService.MarkCancelled(r.Context(), tenantID, itemID, req.Reason); err != nil {
		serviceError(w, err)
		return
	}

	h.respondItem(w, r, tenantID, itemID)
}

// Clear handles POST /api/v1/queue/{tenant_id}/clear
func (h *QueueHandler) Clear(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	if tenantID == "" {
		response.Error(w, apierror.BadRequest("tenant_id is required"))
		return
	}

	var opts model.ClearOptions
	if err := decodeOptional(r, &opts); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}

	cleared, err := h.queueService.ClearQueue(r.Context(), tenantID, opts)
	if err != nil {
		serviceError(w, err)
		return
	}

	response.OK(w, map[string]interface{}{
		"cleared": cleared,
	})
}

// RetryFailed handles POST /api/v1/queue/{tenant_id}/retry-failed
func (h *QueueHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	if tenantID == "" {
		response.Error(w, apierror.BadRequest("tenant_id is required"))
		return
	}

	var opts model.RetryOptions
	if err := decodeOptional(r, &opts); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}

	retried, err := h.queueService.RetryFailedItems(r.Context(), tenantID, opts)
	if err != nil {
		serviceError(w, err)
		return
	}

	response.OK(w, map[string]interface{}{
		"retried": retried,
	})
}

// Stats handles GET /api/v1/queue/{tenant_id}/stats
func (h *QueueHandler) Stats(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	if tenantID == "" {
		response.Error(w, apierror.BadRequest("tenant_id is required"))
		return
	}

	stats, err := h.queueService.GetQueueStats(r.Context(), tenantID)
	if err != nil {
		serviceError(w, err)
		return
	}

	response.OK(w, stats)
}

// respondItem returns the item's post-transition state.
func (h *QueueHandler) respondItem(w http.ResponseWriter, r *http.Request, tenantID, itemID string) {
	item, err := h.queueService.GetItem(r.Context(), tenantID, itemID)
	if err != nil {
		serviceError(w, err)
		return
	}
	response.OK(w, item)
}

// decodeOptional decodes a JSON body into dst, treating an empty body as
// the zero value.
func decodeOptional(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}
