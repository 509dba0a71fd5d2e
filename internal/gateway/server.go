// Package gateway implements the real-time chat and call-signaling endpoint:
// connection lifecycle, presence, room fan-out, the message delivery
// pipeline, and WebRTC call signaling between two peers.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/havensocial/haven/internal/auth"
	"github.com/havensocial/haven/internal/config"
	"github.com/havensocial/haven/internal/observability"
	"github.com/havensocial/haven/internal/presence"
	"github.com/havensocial/haven/internal/rooms"
	"github.com/havensocial/haven/internal/store"
)

// Gateway routes real-time events between connected clients and the durable
// stores. All of its own state (presence, rooms, call sessions, the
// connection table) is an in-memory cache rebuilt as clients reconnect.
type Gateway struct {
	cfg      config.GatewayConfig
	logger   *slog.Logger
	metrics  *observability.Metrics
	verifier auth.Verifier

	presence *presence.Registry
	rooms    *rooms.Membership
	messages store.MessageStore
	calls    store.CallStore

	connMu sync.RWMutex
	conns  map[string]*conn

	callMu       sync.Mutex
	callSessions map[string]*callSession

	upgrader websocket.Upgrader
}

// New creates a gateway wired to its collaborators.
func New(cfg config.GatewayConfig, logger *slog.Logger, metrics *observability.Metrics,
	verifier auth.Verifier, messages store.MessageStore, calls store.CallStore) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	return &Gateway{
		cfg:          cfg,
		logger:       logger,
		metrics:      metrics,
		verifier:     verifier,
		presence:     presence.NewRegistry(),
		rooms:        rooms.NewMembership(),
		messages:     messages,
		calls:        calls,
		conns:        map[string]*conn{},
		callSessions: map[string]*callSession{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP mux exposing the websocket endpoint, health
// check, and metrics.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(g.metrics.Registry(), promhttp.HandlerOpts{}))
	return mux
}

// handleWS upgrades the connection, authenticates it, and registers it with
// presence and the user's mailbox room. Authentication failure is fatal to
// the connection: an auth_error event is written and the socket closed.
func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	sock, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		token = auth.BearerToken(r.Header.Get("Authorization"))
	}

	userID, err := g.verifier.Verify(token)
	if err != nil {
		g.logger.Warn("authentication failed", "remote", r.RemoteAddr)
		_ = sock.SetWriteDeadline(time.Now().Add(g.cfg.WriteTimeout))
		_ = sock.WriteJSON(frame{Type: "event", Event: EventAuthError,
			Data: map[string]string{"message": "invalid token"}})
		_ = sock.Close()
		return
	}

	c := &conn{
		id:     uuid.NewString(),
		userID: userID,
		gw:     g,
		sock:   sock,
		send:   make(chan frame, g.cfg.SendQueueSize),
		done:   make(chan struct{}),
	}
	g.connect(c)

	go c.writeLoop()
	c.readLoop()
}

func (g *Gateway) connect(c *conn) {
	g.connMu.Lock()
	g.conns[c.id] = c
	g.connMu.Unlock()

	g.presence.Register(c.id, c.userID)
	g.rooms.Join(rooms.User(c.userID), c)

	g.metrics.ActiveConnections.Set(float64(g.presence.ConnectionCount()))
	g.metrics.OnlineUsers.Set(float64(len(g.presence.OnlineUsers())))

	g.broadcastAll(rooms.Event{
		Name:    EventUserOnline,
		Payload: userPresencePayload{UserID: c.userID, Timestamp: time.Now()},
	}, "")

	g.logger.Info("client connected", "conn_id", c.id, "user_id", c.userID)
}

// disconnect tears down a connection: membership, presence, the connection
// table, and any call sessions the user was a peer of. A transport-level
// disconnect is the only cancellation signal the gateway reacts to.
func (g *Gateway) disconnect(c *conn) {
	close(c.done)
	_ = c.sock.Close()

	g.connMu.Lock()
	delete(g.conns, c.id)
	g.connMu.Unlock()

	g.rooms.LeaveAll(c.id)

	userID, wentOffline, ok := g.presence.Unregister(c.id)
	if !ok {
		return
	}

	g.metrics.ActiveConnections.Set(float64(g.presence.ConnectionCount()))
	g.metrics.OnlineUsers.Set(float64(len(g.presence.OnlineUsers())))

	if wentOffline {
		g.endCallsFor(userID)
		g.broadcastAll(rooms.Event{
			Name:    EventUserOffline,
			Payload: userPresencePayload{UserID: userID, Timestamp: time.Now()},
		}, "")
	}

	g.logger.Info("client disconnected", "conn_id", c.id, "user_id", userID, "went_offline", wentOffline)
}

// broadcastAll delivers an event to every connected client. Acceptable at
// this scale; scoping presence fan-out to a social graph is a known open
// question.
func (g *Gateway) broadcastAll(ev rooms.Event, excludeConnID string) {
	g.connMu.RLock()
	targets := make([]*conn, 0, len(g.conns))
	for id, c := range g.conns {
		if id == excludeConnID {
			continue
		}
		targets = append(targets, c)
	}
	g.connMu.RUnlock()

	for _, c := range targets {
		c.Send(ev)
	}
}

var tracer = otel.Tracer("github.com/havensocial/haven/internal/gateway")

// dispatch routes one inbound request to its handler and acknowledges it on
// the same connection. Handler errors are operation-scoped: they become a
// failure ack and nothing else.
func (g *Gateway) dispatch(c *conn, req *request) {
	ctx, span := tracer.Start(context.Background(), "gateway.dispatch",
		trace.WithAttributes(attribute.String("gateway.event", req.Event)))
	defer span.End()

	data, err := g.handle(ctx, c, req)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		g.logger.Debug("event failed", "event", req.Event, "user_id", c.userID, "error", err)
	}
	g.metrics.InboundEvents.WithLabelValues(req.Event, status).Inc()
	c.sendAck(req.ID, data, err)
}

func (g *Gateway) handle(ctx context.Context, c *conn, req *request) (any, error) {
	switch req.Event {
	case OpMessageSend:
		return g.handleMessageSend(ctx, c, req.Data)
	case OpMessageHistory:
		return g.handleMessageHistory(ctx, c, req.Data)
	case OpTypingStart:
		return g.handleTyping(c, req.Data, true)
	case OpTypingStop:
		return g.handleTyping(c, req.Data, false)
	case OpConversationJoin:
		return g.handleConversationJoin(ctx, c, req.Data)
	case OpConversationLeave:
		return g.handleConversationLeave(c, req.Data)
	case OpMessageRead:
		return g.handleMessageRead(ctx, c, req.Data)
	case OpMessageReact:
		return g.handleMessageReact(ctx, c, req.Data)
	case OpCallInitiate:
		return g.handleCallInitiate(ctx, c, req.Data)
	case OpCallAnswer:
		return g.handleCallAnswer(ctx, c, req.Data)
	case OpCallReject:
		return g.handleCallReject(ctx, c, req.Data)
	case OpCallEnd:
		return g.handleCallEnd(ctx, c, req.Data)
	case OpCallICE:
		return g.handleCallICE(c, req.Data)
	case OpCallToggleMedia:
		return g.handleCallToggleMedia(c, req.Data)
	case OpCallHistory:
		return g.handleCallHistory(ctx, c, req.Data)
	case OpUsersGetOnline:
		return map[string]any{"onlineUsers": g.presence.OnlineUsers()}, nil
	case OpPing:
		return map[string]any{"timestamp": time.Now().UnixMilli()}, nil
	default:
		return nil, errUnknownEvent
	}
}

func decode[T any](data json.RawMessage) (T, error) {
	var v T
	if len(data) == 0 {
		return v, errInvalidFrame
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, errInvalidFrame
	}
	return v, nil
}
