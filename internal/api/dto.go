package api

import (
	"sort"
	"time"

	"github.com/shaiso/tableflow/internal/domain"
	"github.com/shaiso/tableflow/internal/repo"
	"github.com/shaiso/tableflow/internal/session"
)

// Flow DTOs

// PutFlowRequest — запрос на создание или замену flow.
type PutFlowRequest struct {
	// Workflow — workflow-владелец. Пустой — flow верхнего уровня.
	Workflow string       `json:"workflow,omitempty"`
	Flow     *domain.Flow `json:"flow"`
}

// FlowSummary — элемент списка flows.
type FlowSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Workflow  string    `json:"workflow,omitempty"`
	Main      string    `json:"main"`
	Subflows  []string  `json:"subflows"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FlowResponse — ответ с flow целиком.
type FlowResponse struct {
	Workflow  string       `json:"workflow,omitempty"`
	Flow      *domain.Flow `json:"flow"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// FlowSummaryFromRecord конвертирует repo.FlowRecord в FlowSummary.
func FlowSummaryFromRecord(rec repo.FlowRecord) FlowSummary {
	s := FlowSummary{
		ID:        rec.Flow.ID,
		Name:      rec.Flow.Name,
		Workflow:  rec.WorkflowID,
		Main:      rec.Flow.Main,
		Subflows:  make([]string, 0, len(rec.Flow.Subflows)),
		UpdatedAt: rec.UpdatedAt,
	}
	for id := range rec.Flow.Subflows {
		s.Subflows = append(s.Subflows, id)
	}
	sort.Strings(s.Subflows)
	return s
}

// FlowFromRecord конвертирует repo.FlowRecord в FlowResponse.
func FlowFromRecord(rec repo.FlowRecord) FlowResponse {
	return FlowResponse{
		Workflow:  rec.WorkflowID,
		Flow:      rec.Flow,
		UpdatedAt: rec.UpdatedAt,
	}
}

// Workflow DTOs

// WorkflowResponse — ответ с workflow без вложенных flows и шаблонов.
type WorkflowResponse struct {
	Workflow  *domain.Workflow `json:"workflow"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// WorkflowFromRecord конвертирует repo.WorkflowRecord в WorkflowResponse.
func WorkflowFromRecord(rec repo.WorkflowRecord) WorkflowResponse {
	return WorkflowResponse{Workflow: rec.Workflow, UpdatedAt: rec.UpdatedAt}
}

// Template DTOs

// TemplateResponse — ответ с шаблоном.
type TemplateResponse struct {
	Template  *domain.Template `json:"template"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// TemplateFromRecord конвертирует repo.TemplateRecord в TemplateResponse.
func TemplateFromRecord(rec repo.TemplateRecord) TemplateResponse {
	return TemplateResponse{Template: rec.Template, UpdatedAt: rec.UpdatedAt}
}

// Session DTOs

// InitSessionRequest — запрос init.
type InitSessionRequest struct {
	FlowID string `json:"flow_id"`
}

// RunSessionRequest — запрос run.
type RunSessionRequest = session.Query

// SessionResponse — ответ init и close.
type SessionResponse = session.Info

// WorkflowRequest — запрос на создание или замену workflow.
type WorkflowRequest struct {
	Workflow *domain.Workflow `json:"workflow"`
}

// TemplateRequest — запрос на создание или замену шаблона.
type TemplateRequest struct {
	Template *domain.Template `json:"template"`
}
