package mq

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/tableflow/internal/domain"
	"github.com/shaiso/tableflow/internal/session"
)

func testClient() *RPCClient {
	return NewRPCClient(nil, slog.New(slog.NewTextHandler(io.Discard, nil)), RPCConfig{})
}

func replyBody(t *testing.T, reply *ReplyPayload) []byte {
	t.Helper()
	body, err := json.Marshal(NewMessage(MessageTypeReply, reply))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return body
}

func TestRPCClient_Deliver(t *testing.T) {
	c := testClient()
	waiter := make(chan *ReplyPayload, 1)
	c.pending["abc"] = waiter

	id := uuid.New()
	c.deliver("abc", replyBody(t, &ReplyPayload{SessionID: id, State: domain.SessionReady}))

	select {
	case reply := <-waiter:
		if reply.SessionID != id || reply.State != domain.SessionReady {
			t.Errorf("reply = %+v", reply)
		}
	default:
		t.Fatal("reply was not delivered")
	}
	if len(c.pending) != 0 {
		t.Errorf("pending = %d, want 0", len(c.pending))
	}
}

func TestRPCClient_DeliverUnknownOrMalformed(t *testing.T) {
	c := testClient()
	waiter := make(chan *ReplyPayload, 1)
	c.pending["abc"] = waiter

	c.deliver("other", replyBody(t, &ReplyPayload{}))
	c.deliver("abc", []byte("{not json"))

	select {
	case reply := <-waiter:
		t.Fatalf("unexpected reply %+v", reply)
	default:
	}
	if _, ok := c.pending["abc"]; !ok {
		t.Error("waiter must stay pending")
	}
}

func TestRPCClient_CallWhenNotStarted(t *testing.T) {
	c := testClient()
	_, err := c.Call(t.Context(), MessageTypeInit, InitPayload{FlowID: "a"})
	if !errors.Is(err, ErrRPCClosed) {
		t.Errorf("err = %v, want ErrRPCClosed", err)
	}
}

func TestRPCClient_CloseFailsPending(t *testing.T) {
	c := testClient()
	waiter := make(chan *ReplyPayload, 1)
	c.pending["abc"] = waiter

	c.Close()
	c.Close()

	if _, ok := <-waiter; ok {
		t.Error("waiter must be closed")
	}
	if !c.closed {
		t.Error("client must be closed")
	}
}

func TestReplyError_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
		is   error
	}{
		{"not found", session.ErrSessionNotFound, CodeNotFound, session.ErrSessionNotFound},
		{"not ready", fmt.Errorf("%w: state CLOSED", session.ErrNotReady), CodeNotReady, session.ErrNotReady},
		{"init failed", fmt.Errorf("%w: flow x", session.ErrInitFailed), CodeInitFailed, session.ErrInitFailed},
		{"bad query", fmt.Errorf("%w: boom", session.ErrBadQuery), CodeBadQuery, session.ErrBadQuery},
		{"unknown type", fmt.Errorf("%w: x", ErrUnknownMessageType), CodeBadRequest, ErrUnknownMessageType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := ReplyError(tt.err)
			if reply.Code != tt.code {
				t.Fatalf("Code = %q, want %q", reply.Code, tt.code)
			}

			var decoded ReplyPayload
			if err := json.Unmarshal(replyJSON(t, reply), &decoded); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			err := decoded.Err()
			if !errors.Is(err, tt.is) {
				t.Errorf("Err() = %v, want wrapping %v", err, tt.is)
			}
			var remote *RemoteError
			if !errors.As(err, &remote) || remote.Message != tt.err.Error() {
				t.Errorf("RemoteError = %+v", remote)
			}
		})
	}
}

func replyJSON(t *testing.T, r *ReplyPayload) []byte {
	t.Helper()
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestReplyPayload_ErrInternal(t *testing.T) {
	reply := ReplyError(errors.New("disk on fire"))
	if reply.Code != CodeInternal {
		t.Fatalf("Code = %q", reply.Code)
	}
	err := reply.Err()
	if err == nil || err.Error() != "remote: disk on fire" {
		t.Errorf("Err() = %v", err)
	}
	if (&ReplyPayload{}).Err() != nil {
		t.Error("empty reply must have no error")
	}
}

func TestBuildPublishing(t *testing.T) {
	msg := NewMessage(MessageTypeInit, InitPayload{FlowID: "a"})
	pub, err := buildPublishing(msg, PublishOptions{
		ReplyTo:       string(QueueDirectReply),
		CorrelationID: "c-1",
		Expiration:    1500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("buildPublishing: %v", err)
	}
	if pub.ReplyTo != "amq.rabbitmq.reply-to" || pub.CorrelationId != "c-1" {
		t.Errorf("reply-to = %q, correlation = %q", pub.ReplyTo, pub.CorrelationId)
	}
	if pub.Expiration != "1500" {
		t.Errorf("Expiration = %q, want 1500", pub.Expiration)
	}
	if pub.Type != "evaluator.init" || pub.MessageId != msg.ID {
		t.Errorf("Type = %q, MessageId = %q", pub.Type, pub.MessageId)
	}
}
