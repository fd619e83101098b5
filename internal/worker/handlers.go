package worker

import (
	"context"
	"fmt"

	"github.com/shaiso/tableflow/internal/domain"
	"github.com/shaiso/tableflow/internal/mq"
	"github.com/shaiso/tableflow/internal/telemetry"
)

// handleRequest обрабатывает один RPC-запрос и отправляет ответ.
//
// Ошибки сессии уходят вызывающему в ответе. Ошибкой обработчика
// считается только невозможность ответить.
func (w *Worker) handleRequest(ctx context.Context, req *mq.Request) error {
	reply := w.dispatch(ctx, req)

	if req.ReplyTo == "" {
		w.logger.Warn("request without reply-to dropped", "message_id", req.ID, "type", req.Type)
		return nil
	}
	if err := w.publisher.Reply(ctx, req.ReplyTo, req.CorrelationID, reply); err != nil {
		return fmt.Errorf("reply to %s: %w", req.Type, err)
	}
	return nil
}

// dispatch выполняет запрос над менеджером сессий.
func (w *Worker) dispatch(ctx context.Context, req *mq.Request) *mq.ReplyPayload {
	if req.Invalid != nil {
		return &mq.ReplyPayload{Code: mq.CodeBadRequest, Error: req.Invalid.Error()}
	}

	switch {
	case req.Init != nil:
		return w.handleInit(ctx, *req.Init)
	case req.Run != nil:
		return w.handleRun(ctx, *req.Run)
	case req.Close != nil:
		if err := w.sessions.Close(req.Close.SessionID); err != nil {
			return mq.ReplyError(err)
		}
		w.logger.Debug("session closed by request", "session_id", req.Close.SessionID)
		return &mq.ReplyPayload{SessionID: req.Close.SessionID, State: domain.SessionClosed}
	default:
		return mq.ReplyError(fmt.Errorf("%w: %q", mq.ErrUnknownMessageType, req.Type))
	}
}

func (w *Worker) handleInit(ctx context.Context, payload mq.InitPayload) *mq.ReplyPayload {
	logger := telemetry.WithFlowID(w.logger, payload.FlowID)

	h, err := w.sessions.Init(ctx, payload.FlowID)
	if err != nil {
		logger.Warn("init request failed", "error", err)
		reply := mq.ReplyError(err)
		reply.State = domain.SessionFailed
		return reply
	}

	info := h.Info()
	logger.Info("session opened", "session_id", info.SessionID)
	return &mq.ReplyPayload{
		SessionID:  info.SessionID,
		State:      info.State,
		Validation: info.Validation,
	}
}

func (w *Worker) handleRun(ctx context.Context, payload mq.RunPayload) *mq.ReplyPayload {
	res, err := w.sessions.Run(ctx, payload.SessionID, payload.Query)
	if err != nil {
		return mq.ReplyError(err)
	}
	return &mq.ReplyPayload{
		SessionID: payload.SessionID,
		State:     domain.SessionReady,
		Result:    res,
	}
}
