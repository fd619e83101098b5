package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/shaiso/tableflow/internal/domain"
	"github.com/shaiso/tableflow/internal/engine"
	"github.com/shaiso/tableflow/internal/mq"
	"github.com/shaiso/tableflow/internal/registry"
	"github.com/shaiso/tableflow/internal/session"
)

type sentReply struct {
	replyTo       string
	correlationID string
	reply         *mq.ReplyPayload
}

type fakeReplier struct {
	sent []sentReply
	err  error
}

func (f *fakeReplier) Reply(_ context.Context, replyTo, correlationID string, reply *mq.ReplyPayload) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentReply{replyTo, correlationID, reply})
	return nil
}

func newTestWorker(t *testing.T) (*Worker, *fakeReplier) {
	t.Helper()

	doc, err := domain.LoadDocumentFile("../engine/testdata/hello_math.json")
	if err != nil {
		t.Fatalf("load document: %v", err)
	}
	reg, err := registry.New(doc)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	replier := &fakeReplier{}
	w := New(Config{
		Sessions: session.NewManager(session.ManagerConfig{
			Registry: func() engine.Registry { return reg },
			Logger:   logger,
		}),
		Publisher: replier,
		Logger:    logger,
	})
	return w, replier
}

func inputTable(value float64) *domain.Variable {
	return &domain.Variable{
		ID:   "v2",
		Type: domain.VariableTable,
		Value: &domain.Table{
			Name:    "Input Table",
			Columns: []string{"v2h1"},
			Headers: map[string]domain.Header{"v2h1": {ID: "v2h1", Name: "Value", Type: domain.TypeNumber}},
			Rows:    []domain.Row{{"v2h1": value}},
		},
	}
}

// request кодирует запрос так же, как RPC-клиент, и разбирает его
// так же, как consumer.
func request(t *testing.T, msgType mq.MessageType, payload any) *mq.Request {
	t.Helper()

	body, err := json.Marshal(mq.NewMessage(msgType, payload))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := mq.DecodeRequest(body)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	return req
}

func TestDispatch_SessionLifecycle(t *testing.T) {
	w, _ := newTestWorker(t)
	ctx := context.Background()

	initReply := w.dispatch(ctx, request(t, mq.MessageTypeInit, mq.InitPayload{FlowID: "a"}))
	if err := initReply.Err(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if initReply.State != domain.SessionReady {
		t.Fatalf("State = %s, want READY", initReply.State)
	}
	id := initReply.SessionID

	runReply := w.dispatch(ctx, request(t, mq.MessageTypeRun, mq.RunPayload{
		SessionID: id,
		Query:     session.Query{Set: []*domain.Variable{inputTable(-4)}},
	}))
	if err := runReply.Err(); err != nil {
		t.Fatalf("run: %v", err)
	}
	res := runReply.Result
	if diff := cmp.Diff([]string{"e3", "e5"}, res.Pass.Evaluated); diff != "" {
		t.Errorf("Evaluated mismatch (-want +got):\n%s", diff)
	}
	if got := res.Variables["v4"].Value.Rows[0]["v4h1"]; got != float64(16) {
		t.Errorf("v4 = %v, want 16", got)
	}

	closeReply := w.dispatch(ctx, request(t, mq.MessageTypeClose, mq.ClosePayload{SessionID: id}))
	if err := closeReply.Err(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if closeReply.State != domain.SessionClosed {
		t.Errorf("State = %s, want CLOSED", closeReply.State)
	}
	if w.sessions.Len() != 0 {
		t.Errorf("sessions = %d, want 0", w.sessions.Len())
	}
}

func TestDispatch_Errors(t *testing.T) {
	w, _ := newTestWorker(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		msgType mq.MessageType
		payload any
		code    string
		is      error
	}{
		{
			name:    "unknown flow",
			msgType: mq.MessageTypeInit,
			payload: mq.InitPayload{FlowID: "missing"},
			code:    mq.CodeInitFailed,
			is:      session.ErrInitFailed,
		},
		{
			name:    "run unknown session",
			msgType: mq.MessageTypeRun,
			payload: mq.RunPayload{SessionID: uuid.New()},
			code:    mq.CodeNotFound,
			is:      session.ErrSessionNotFound,
		},
		{
			name:    "close unknown session",
			msgType: mq.MessageTypeClose,
			payload: mq.ClosePayload{SessionID: uuid.New()},
			code:    mq.CodeNotFound,
			is:      session.ErrSessionNotFound,
		},
		{
			name:    "unknown type",
			msgType: "evaluator.explode",
			payload: nil,
			code:    mq.CodeBadRequest,
			is:      mq.ErrUnknownMessageType,
		},
		{
			name:    "malformed payload",
			msgType: mq.MessageTypeRun,
			payload: "not an object",
			code:    mq.CodeBadRequest,
			is:      mq.ErrUnknownMessageType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := w.dispatch(ctx, request(t, tt.msgType, tt.payload))
			if reply.Code != tt.code {
				t.Fatalf("Code = %q, want %q (error %q)", reply.Code, tt.code, reply.Error)
			}
			if err := reply.Err(); !errors.Is(err, tt.is) {
				t.Errorf("Err() = %v, want wrapping %v", err, tt.is)
			}
		})
	}
}

func TestDispatch_RunBadQuery(t *testing.T) {
	w, _ := newTestWorker(t)
	ctx := context.Background()

	initReply := w.dispatch(ctx, request(t, mq.MessageTypeInit, mq.InitPayload{FlowID: "a"}))
	if err := initReply.Err(); err != nil {
		t.Fatalf("init: %v", err)
	}

	reply := w.dispatch(ctx, request(t, mq.MessageTypeRun, mq.RunPayload{
		SessionID: initReply.SessionID,
		Query:     session.Query{Subflow: "nope"},
	}))
	if reply.Code != mq.CodeBadQuery {
		t.Errorf("Code = %q, want bad_query", reply.Code)
	}
}

func TestHandleRequest_Reply(t *testing.T) {
	w, replier := newTestWorker(t)

	req := request(t, mq.MessageTypeInit, mq.InitPayload{FlowID: "a"})
	req.ReplyTo = "amq.rabbitmq.reply-to.g1"
	req.CorrelationID = "c-42"
	if err := w.handleRequest(context.Background(), req); err != nil {
		t.Fatalf("handleRequest: %v", err)
	}

	if len(replier.sent) != 1 {
		t.Fatalf("sent = %d replies, want 1", len(replier.sent))
	}
	got := replier.sent[0]
	if got.replyTo != "amq.rabbitmq.reply-to.g1" || got.correlationID != "c-42" {
		t.Errorf("reply routed to %q / %q", got.replyTo, got.correlationID)
	}
	if got.reply.State != domain.SessionReady {
		t.Errorf("State = %s, want READY", got.reply.State)
	}
}

func TestHandleRequest_NoReplyTo(t *testing.T) {
	w, replier := newTestWorker(t)

	req := request(t, mq.MessageTypeClose, mq.ClosePayload{SessionID: uuid.New()})
	if err := w.handleRequest(context.Background(), req); err != nil {
		t.Fatalf("handleRequest: %v", err)
	}
	if len(replier.sent) != 0 {
		t.Errorf("sent = %d replies, want 0", len(replier.sent))
	}
}

func TestHandleRequest_ReplyFails(t *testing.T) {
	w, replier := newTestWorker(t)
	replier.err = errors.New("channel closed")

	req := request(t, mq.MessageTypeClose, mq.ClosePayload{SessionID: uuid.New()})
	req.ReplyTo, req.CorrelationID = "r", "c"
	if err := w.handleRequest(context.Background(), req); err == nil {
		t.Error("expected error when reply cannot be sent")
	}
}

func TestWorker_StopClosesSessions(t *testing.T) {
	w, _ := newTestWorker(t)
	if _, err := w.sessions.Init(context.Background(), "a"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	w.Stop()

	if !w.IsStopped() {
		t.Error("worker must report stopped")
	}
	if w.sessions.Len() != 0 {
		t.Errorf("sessions = %d, want 0", w.sessions.Len())
	}
}
