package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/havensocial/haven/internal/config"
	"github.com/havensocial/haven/internal/observability"
	"github.com/havensocial/haven/internal/rooms"
	"github.com/havensocial/haven/internal/store"
	"github.com/havensocial/haven/pkg/models"
)

// failingCallStore reports a fixed error from status updates.
type failingCallStore struct {
	store.CallStore
	err error
}

func (f *failingCallStore) UpdateStatus(ctx context.Context, callID string, status models.CallStatus) (*models.Call, error) {
	return nil, f.err
}

func TestAnswerAckSurfacesStoreFailure(t *testing.T) {
	cfg := config.GatewayConfig{
		SendQueueSize: 8,
		SendTimeout:   time.Second,
		WriteTimeout:  time.Second,
		PongTimeout:   time.Minute,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	storeErr := errors.New("call store unavailable")
	g := New(cfg, logger, observability.NewMetrics(), nil,
		store.NewMemoryMessageStore(),
		&failingCallStore{CallStore: store.NewMemoryCallStore(), err: storeErr})

	g.callSessions["call-1"] = &callSession{id: "call-1", callerID: "alice", calleeID: "bob"}

	caller := &conn{id: "conn-alice", userID: "alice", gw: g, send: make(chan frame, 8), done: make(chan struct{})}
	g.rooms.Join(rooms.User("alice"), caller)
	callee := &conn{id: "conn-bob", userID: "bob", gw: g, send: make(chan frame, 8), done: make(chan struct{})}

	_, err := g.handleCallAnswer(context.Background(), callee, json.RawMessage(`{"callId":"call-1"}`))
	if !errors.Is(err, storeErr) {
		t.Fatalf("handleCallAnswer() error = %v, want the store failure", err)
	}

	// The answer signal is still relayed so the media path can come up.
	select {
	case f := <-caller.send:
		if f.Event != EventCallAnswered {
			t.Fatalf("caller received %q, want %q", f.Event, EventCallAnswered)
		}
	default:
		t.Fatalf("caller did not receive the answer signal")
	}
}
