package api

import (
	"encoding/json"
	"net/http"

	"github.com/shaiso/tableflow/internal/engine"
)

// ListFlows возвращает список всех flows.
// GET /api/v1/flows
func (h *Handler) ListFlows(w http.ResponseWriter, r *http.Request) {
	flows, err := h.store.ListFlows(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]FlowSummary, len(flows))
	for i, f := range flows {
		result[i] = FlowSummaryFromRecord(f)
	}

	List(w, result, len(result))
}

// GetFlow возвращает flow по ID.
// GET /api/v1/flows/{id}
func (h *Handler) GetFlow(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.GetFlow(r.Context(), r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "flow not found") {
		return
	}

	Success(w, FlowFromRecord(*rec))
}

// PutFlow создаёт или заменяет flow.
// PUT /api/v1/flows/{id}
//
// Flow проходит структурную валидацию против текущего реестра.
// Невалидный flow не сохраняется (422 со списком проблем).
func (h *Handler) PutFlow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req PutFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.Flow == nil {
		BadRequest(w, "flow is required")
		return
	}
	if req.Flow.ID == "" {
		req.Flow.ID = id
	}
	if req.Flow.ID != id {
		BadRequest(w, "flow id does not match path")
		return
	}

	if err := engine.Validate(h.registry.Get(), req.Flow); err != nil {
		ValidationFailed(w, err)
		return
	}

	if err := h.store.PutFlow(r.Context(), req.Workflow, req.Flow); err != nil {
		InternalError(w, h.logger, err)
		return
	}
	h.reload(r.Context())

	rec, err := h.store.GetFlow(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "flow not found") {
		return
	}
	Success(w, FlowFromRecord(*rec))
}

// DeleteFlow удаляет flow.
// DELETE /api/v1/flows/{id}
func (h *Handler) DeleteFlow(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteFlow(r.Context(), r.PathValue("id")); HandleRepoError(w, h.logger, err, "flow not found") {
		return
	}
	h.reload(r.Context())

	NoContent(w)
}

// GetFlowSignature возвращает сигнатуру flow: входы и выходы главного Subflow.
// GET /api/v1/flows/{id}/signature
func (h *Handler) GetFlowSignature(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.GetFlow(r.Context(), r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "flow not found") {
		return
	}

	sig, ok := engine.DeriveFlowSignatureOf(rec.Flow)
	if !ok {
		InvalidState(w, "flow has no main subflow")
		return
	}
	Success(w, sig)
}
