package gateway

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/havensocial/haven/internal/rooms"
)

const maxInboundBytes = 1 << 20

// conn is one authenticated gateway connection. Outbound delivery goes
// through a bounded queue so a slow or dead client never stalls a
// broadcaster; ephemeral events are dropped on overflow while durable ones
// wait briefly for space.
type conn struct {
	id     string
	userID string
	gw     *Gateway
	sock   *websocket.Conn
	send   chan frame
	done   chan struct{}
}

var _ rooms.Sender = (*conn)(nil)

func (c *conn) ID() string { return c.id }

// Send enqueues an outbound event. It reports false when the event was
// dropped or the connection is closing.
func (c *conn) Send(ev rooms.Event) bool {
	f := frame{Type: "event", Event: ev.Name, Data: ev.Payload}
	if !c.enqueue(f, ev.Durable) {
		c.gw.metrics.EventsDropped.WithLabelValues(ev.Name).Inc()
		return false
	}
	c.gw.metrics.EventsDelivered.WithLabelValues(ev.Name).Inc()
	return true
}

func (c *conn) enqueue(f frame, durable bool) bool {
	if durable {
		timer := time.NewTimer(c.gw.cfg.SendTimeout)
		defer timer.Stop()
		select {
		case c.send <- f:
			return true
		case <-timer.C:
			return false
		case <-c.done:
			return false
		}
	}
	select {
	case c.send <- f:
		return true
	case <-c.done:
		return false
	default:
	}

	// Queue full: evict the oldest frame so the newest state wins. A stale
	// indicator surviving while its correction is lost is worse than the
	// reverse.
	select {
	case dropped := <-c.send:
		name := dropped.Event
		if name == "" {
			name = dropped.Type
		}
		c.gw.metrics.EventsDropped.WithLabelValues(name).Inc()
	default:
	}
	select {
	case c.send <- f:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

func (c *conn) sendAck(requestID string, data any, err error) {
	success := err == nil
	f := frame{Type: "ack", ID: requestID, Success: &success, Data: data}
	if err != nil {
		f.Error = err.Error()
	}
	c.enqueue(f, true)
}

// readLoop consumes inbound frames until the socket fails, then triggers
// disconnect cleanup. Handler failures are reported to this connection only;
// they never terminate the loop.
func (c *conn) readLoop() {
	defer c.gw.disconnect(c)

	c.sock.SetReadLimit(maxInboundBytes)
	pongWait := c.gw.cfg.PongTimeout
	_ = c.sock.SetReadDeadline(time.Now().Add(pongWait))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.sock.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var req request
		if err := json.Unmarshal(data, &req); err != nil {
			c.sendAck("", nil, errInvalidFrame)
			continue
		}
		c.gw.dispatch(c, &req)
	}
}

// writeLoop owns the socket for writing. It drains the send queue and emits
// periodic pings; any write error ends the connection.
func (c *conn) writeLoop() {
	ticker := time.NewTicker(c.gw.cfg.PongTimeout * 8 / 10)
	defer func() {
		ticker.Stop()
		_ = c.sock.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case f := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(c.gw.cfg.WriteTimeout))
			if err := c.sock.WriteJSON(f); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(c.gw.cfg.WriteTimeout))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
