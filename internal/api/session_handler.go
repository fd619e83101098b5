package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/tableflow/internal/domain"
)

// InitSession открывает сессию вычислителя для flow.
// POST /api/v1/sessions
func (h *Handler) InitSession(w http.ResponseWriter, r *http.Request) {
	var req InitSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.FlowID == "" {
		BadRequest(w, "flow_id is required")
		return
	}

	info, err := h.sessions.Init(r.Context(), req.FlowID)
	if HandleSessionError(w, h.logger, err) {
		return
	}

	Created(w, info)
}

// RunSession выполняет run в открытой сессии.
// POST /api/v1/sessions/{id}/run
//
// Пустое тело означает полный проход главного Subflow.
func (h *Handler) RunSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid session id")
		return
	}

	var req RunSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body")
		return
	}
	for _, v := range req.Set {
		if v == nil || v.ID == "" {
			BadRequest(w, "set entries need an id")
			return
		}
	}

	res, err := h.sessions.Run(r.Context(), id, req)
	if HandleSessionError(w, h.logger, err) {
		return
	}

	Success(w, res)
}

// CloseSession закрывает сессию.
// DELETE /api/v1/sessions/{id}
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid session id")
		return
	}

	if err := h.sessions.CloseSession(r.Context(), id); HandleSessionError(w, h.logger, err) {
		return
	}

	Success(w, SessionResponse{SessionID: id, State: domain.SessionClosed})
}
