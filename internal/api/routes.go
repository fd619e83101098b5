package api

import (
	"net/http"
	"time"
)

// RegisterRoutes регистрирует все маршруты API.
// timeout ограничивает обработку запроса; ноль — без ограничения.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, timeout time.Duration) {
	chain := Chain(
		Recovery(h.logger),
		Metrics(),
		Logging(h.logger),
		Timeout(timeout),
	)

	// Flows
	mux.Handle("GET /api/v1/flows", chain(http.HandlerFunc(h.ListFlows)))
	mux.Handle("GET /api/v1/flows/{id}", chain(http.HandlerFunc(h.GetFlow)))
	mux.Handle("PUT /api/v1/flows/{id}", chain(http.HandlerFunc(h.PutFlow)))
	mux.Handle("DELETE /api/v1/flows/{id}", chain(http.HandlerFunc(h.DeleteFlow)))
	mux.Handle("GET /api/v1/flows/{id}/signature", chain(http.HandlerFunc(h.GetFlowSignature)))

	// Workflows
	mux.Handle("GET /api/v1/workflows", chain(http.HandlerFunc(h.ListWorkflows)))
	mux.Handle("GET /api/v1/workflows/{id}", chain(http.HandlerFunc(h.GetWorkflow)))
	mux.Handle("PUT /api/v1/workflows/{id}", chain(http.HandlerFunc(h.PutWorkflow)))
	mux.Handle("DELETE /api/v1/workflows/{id}", chain(http.HandlerFunc(h.DeleteWorkflow)))

	// Templates
	mux.Handle("GET /api/v1/templates", chain(http.HandlerFunc(h.ListTemplates)))
	mux.Handle("GET /api/v1/templates/{id}", chain(http.HandlerFunc(h.GetTemplate)))
	mux.Handle("PUT /api/v1/templates/{id}", chain(http.HandlerFunc(h.PutTemplate)))
	mux.Handle("DELETE /api/v1/templates/{id}", chain(http.HandlerFunc(h.DeleteTemplate)))

	// Sessions
	mux.Handle("POST /api/v1/sessions", chain(http.HandlerFunc(h.InitSession)))
	mux.Handle("POST /api/v1/sessions/{id}/run", chain(http.HandlerFunc(h.RunSession)))
	mux.Handle("DELETE /api/v1/sessions/{id}", chain(http.HandlerFunc(h.CloseSession)))
}
