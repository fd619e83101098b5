package api

import (
	"encoding/json"
	"net/http"
)

// ListWorkflows возвращает список workflows.
// GET /api/v1/workflows
func (h *Handler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := h.store.ListWorkflows(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]WorkflowResponse, len(workflows))
	for i, wf := range workflows {
		result[i] = WorkflowFromRecord(wf)
	}
	List(w, result, len(result))
}

// GetWorkflow возвращает workflow по ID.
// GET /api/v1/workflows/{id}
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.GetWorkflow(r.Context(), r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}
	Success(w, WorkflowFromRecord(*rec))
}

// PutWorkflow создаёт или заменяет workflow вместе с вложенными
// flows и шаблонами.
// PUT /api/v1/workflows/{id}
func (h *Handler) PutWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req WorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	wf := req.Workflow
	if wf == nil {
		BadRequest(w, "workflow is required")
		return
	}
	if wf.ID == "" {
		wf.ID = id
	}
	if wf.ID != id {
		BadRequest(w, "workflow id does not match path")
		return
	}
	if wf.Name == "" {
		BadRequest(w, "name is required")
		return
	}

	if err := h.store.PutWorkflow(r.Context(), wf); err != nil {
		InternalError(w, h.logger, err)
		return
	}
	h.reload(r.Context())

	rec, err := h.store.GetWorkflow(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}
	Success(w, WorkflowFromRecord(*rec))
}

// DeleteWorkflow удаляет workflow с его flows и шаблонами.
// DELETE /api/v1/workflows/{id}
func (h *Handler) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteWorkflow(r.Context(), r.PathValue("id")); HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}
	h.reload(r.Context())

	NoContent(w)
}
