package api

import (
	"encoding/json"
	"net/http"
)

// ListTemplates возвращает список шаблонов.
// GET /api/v1/templates
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.store.ListTemplates(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]TemplateResponse, len(templates))
	for i, t := range templates {
		result[i] = TemplateFromRecord(t)
	}
	List(w, result, len(result))
}

// GetTemplate возвращает шаблон по ID.
// GET /api/v1/templates/{id}
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.GetTemplate(r.Context(), r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "template not found") {
		return
	}
	Success(w, TemplateFromRecord(*rec))
}

// PutTemplate создаёт или заменяет шаблон.
// PUT /api/v1/templates/{id}
func (h *Handler) PutTemplate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req TemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	tpl := req.Template
	if tpl == nil {
		BadRequest(w, "template is required")
		return
	}
	if tpl.ID == "" {
		tpl.ID = id
	}
	if tpl.ID != id {
		BadRequest(w, "template id does not match path")
		return
	}
	if tpl.Workflow == "" {
		BadRequest(w, "workflow is required")
		return
	}

	if err := h.store.PutTemplate(r.Context(), tpl); err != nil {
		InternalError(w, h.logger, err)
		return
	}
	h.reload(r.Context())

	rec, err := h.store.GetTemplate(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "template not found") {
		return
	}
	Success(w, TemplateFromRecord(*rec))
}

// DeleteTemplate удаляет шаблон.
// DELETE /api/v1/templates/{id}
func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteTemplate(r.Context(), r.PathValue("id")); HandleRepoError(w, h.logger, err, "template not found") {
		return
	}
	h.reload(r.Context())

	NoContent(w)
}
