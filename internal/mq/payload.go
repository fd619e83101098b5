package mq

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/shaiso/tableflow/internal/domain"
	"github.com/shaiso/tableflow/internal/session"
)

// InitPayload — запрос evaluator.init.
type InitPayload struct {
	FlowID string `json:"flow_id"`
}

// RunPayload — запрос evaluator.run.
type RunPayload struct {
	SessionID uuid.UUID     `json:"session_id"`
	Query     session.Query `json:"query"`
}

// ClosePayload — запрос evaluator.close.
type ClosePayload struct {
	SessionID uuid.UUID `json:"session_id"`
}

// Коды ошибок в ответе.
const (
	CodeNotFound   = "not_found"
	CodeNotReady   = "not_ready"
	CodeInitFailed = "init_failed"
	CodeBadQuery   = "bad_query"
	CodeBadRequest = "bad_request"
	CodeInternal   = "internal"
)

// ReplyPayload — ответ воркера на любой запрос.
type ReplyPayload struct {
	SessionID uuid.UUID           `json:"session_id,omitempty"`
	State     domain.SessionState `json:"state,omitempty"`

	// Validation — проблемы структурной валидации при init.
	Validation string `json:"validation,omitempty"`

	Result *session.Result `json:"result,omitempty"`

	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// ReplyError возвращает ответ с кодом, соответствующим ошибке.
func ReplyError(err error) *ReplyPayload {
	code := CodeInternal
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		code = CodeNotFound
	case errors.Is(err, session.ErrNotReady):
		code = CodeNotReady
	case errors.Is(err, session.ErrInitFailed):
		code = CodeInitFailed
	case errors.Is(err, session.ErrBadQuery):
		code = CodeBadQuery
	case errors.Is(err, ErrUnknownMessageType):
		code = CodeBadRequest
	}
	return &ReplyPayload{Code: code, Error: err.Error()}
}

// Err восстанавливает ошибку из ответа. Ошибка оборачивает sentinel
// пакета session, соответствующий коду.
func (r *ReplyPayload) Err() error {
	if r == nil || r.Code == "" {
		return nil
	}
	var base error
	switch r.Code {
	case CodeNotFound:
		base = session.ErrSessionNotFound
	case CodeNotReady:
		base = session.ErrNotReady
	case CodeInitFailed:
		base = session.ErrInitFailed
	case CodeBadQuery:
		base = session.ErrBadQuery
	case CodeBadRequest:
		base = ErrUnknownMessageType
	default:
		return fmt.Errorf("remote: %s", r.Error)
	}
	return &RemoteError{Code: r.Code, Message: r.Error, base: base}
}

// RemoteError — ошибка, полученная от воркера.
type RemoteError struct {
	Code    string
	Message string
	base    error
}

func (e *RemoteError) Error() string {
	return "remote: " + e.Message
}

func (e *RemoteError) Unwrap() error {
	return e.base
}
