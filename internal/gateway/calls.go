package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/havensocial/haven/internal/rooms"
	"github.com/havensocial/haven/pkg/models"
)

// callSession is the transient signaling state of one call. It exists only
// while the call is being set up or is active; the durable record in the call
// store outlives it. Guarded by Gateway.callMu.
type callSession struct {
	id        string
	callerID  string
	calleeID  string
	callType  models.CallType
	answered  bool
	ringTimer *time.Timer
}

func (s *callSession) peerOf(userID string) (string, bool) {
	switch userID {
	case s.callerID:
		return s.calleeID, true
	case s.calleeID:
		return s.callerID, true
	}
	return "", false
}

// handleCallInitiate creates the durable call record, opens a signaling
// session with a ring timer, and delivers the offer to the callee's mailbox.
// The record is created even when the callee is offline so the call shows up
// in their history as missed.
func (g *Gateway) handleCallInitiate(ctx context.Context, c *conn, data json.RawMessage) (any, error) {
	params, err := decode[callInitiateParams](data)
	if err != nil {
		return nil, err
	}
	if params.To == "" || params.To == c.userID {
		return nil, errInvalidFrame
	}
	if params.CallType == "" {
		params.CallType = models.CallAudio
	}

	start := time.Now()
	call, err := g.calls.Create(ctx, c.userID, params.To, params.CallType)
	g.metrics.StoreDuration.WithLabelValues("call", "create").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	session := &callSession{
		id:       call.ID,
		callerID: c.userID,
		calleeID: params.To,
		callType: params.CallType,
	}
	if g.cfg.RingTimeout > 0 {
		session.ringTimer = time.AfterFunc(g.cfg.RingTimeout, func() {
			g.expireCall(call.ID)
		})
	}

	g.callMu.Lock()
	g.callSessions[call.ID] = session
	g.callMu.Unlock()
	g.metrics.ActiveCalls.Inc()

	if !g.presence.IsOnline(params.To) {
		return map[string]any{"callId": call.ID}, ErrCalleeUnreachable
	}

	g.rooms.Broadcast(rooms.User(params.To), rooms.Event{
		Name: EventCallIncoming,
		Payload: callIncomingPayload{
			CallID:   call.ID,
			From:     c.userID,
			CallType: params.CallType,
			Signal:   params.Signal,
		},
		Durable: true,
	}, "")

	return map[string]any{"callId": call.ID, "call": call}, nil
}

// handleCallAnswer accepts a ringing call and relays the answer signal back
// to the caller. Answering stops the ring timer for good; the session stays
// live until one side ends it.
func (g *Gateway) handleCallAnswer(ctx context.Context, c *conn, data json.RawMessage) (any, error) {
	params, err := decode[callAnswerParams](data)
	if err != nil {
		return nil, err
	}

	g.callMu.Lock()
	session, ok := g.callSessions[params.CallID]
	if !ok || session.calleeID != c.userID {
		g.callMu.Unlock()
		return nil, ErrCallNotFound
	}
	session.answered = true
	if session.ringTimer != nil {
		session.ringTimer.Stop()
	}
	callerID := session.callerID
	g.callMu.Unlock()

	call, updErr := g.calls.UpdateStatus(ctx, params.CallID, models.CallAnswered)
	if updErr != nil {
		g.logger.Warn("call status update failed", "call_id", params.CallID, "error", updErr)
	}

	// The answer signal is relayed regardless so the media path can come up;
	// the ack carries the persistence outcome.
	g.rooms.Broadcast(rooms.User(callerID), rooms.Event{
		Name: EventCallAnswered,
		Payload: callAnsweredPayload{
			CallID: params.CallID,
			Signal: params.Signal,
			From:   c.userID,
		},
		Durable: true,
	}, "")

	if updErr != nil {
		return nil, updErr
	}
	return map[string]any{"call": call}, nil
}

func (g *Gateway) handleCallReject(ctx context.Context, c *conn, data json.RawMessage) (any, error) {
	params, err := decode[callIDParams](data)
	if err != nil {
		return nil, err
	}

	session, ok := g.evictSession(params.CallID, c.userID)
	if !ok {
		return nil, ErrCallNotFound
	}

	_, updErr := g.calls.UpdateStatus(ctx, params.CallID, models.CallRejected)
	if updErr != nil {
		g.logger.Warn("call status update failed", "call_id", params.CallID, "error", updErr)
	}

	g.rooms.Broadcast(rooms.User(session.callerID), rooms.Event{
		Name:    EventCallRejected,
		Payload: callRejectedPayload{CallID: params.CallID, By: c.userID},
		Durable: true,
	}, "")

	return nil, updErr
}

// handleCallEnd terminates an active or ringing call from either side and
// notifies both peers. Ending after answer closes out the record with its
// duration; ending before answer leaves duration zero.
func (g *Gateway) handleCallEnd(ctx context.Context, c *conn, data json.RawMessage) (any, error) {
	params, err := decode[callIDParams](data)
	if err != nil {
		return nil, err
	}

	session, ok := g.evictSession(params.CallID, c.userID)
	if !ok {
		return nil, ErrCallNotFound
	}

	start := time.Now()
	call, updErr := g.calls.UpdateStatus(ctx, params.CallID, models.CallEnded)
	g.metrics.StoreDuration.WithLabelValues("call", "update_status").Observe(time.Since(start).Seconds())
	if updErr != nil {
		g.logger.Warn("call status update failed", "call_id", params.CallID, "error", updErr)
	}

	ev := rooms.Event{
		Name:    EventCallEnded,
		Payload: callEndedPayload{CallID: params.CallID},
		Durable: true,
	}
	g.rooms.Broadcast(rooms.User(session.callerID), ev, "")
	g.rooms.Broadcast(rooms.User(session.calleeID), ev, "")

	if updErr != nil {
		return nil, updErr
	}
	return map[string]any{"call": call}, nil
}

// expireCall fires when a call rings past the configured timeout without an
// answer. It marks the record missed and tells both sides the call is over.
func (g *Gateway) expireCall(callID string) {
	g.callMu.Lock()
	session, ok := g.callSessions[callID]
	if !ok || session.answered {
		g.callMu.Unlock()
		return
	}
	delete(g.callSessions, callID)
	g.callMu.Unlock()
	g.metrics.ActiveCalls.Dec()

	if _, err := g.calls.UpdateStatus(context.Background(), callID, models.CallMissed); err != nil {
		g.logger.Warn("call status update failed", "call_id", callID, "error", err)
	}

	ev := rooms.Event{
		Name:    EventCallEnded,
		Payload: callEndedPayload{CallID: callID},
		Durable: true,
	}
	g.rooms.Broadcast(rooms.User(session.callerID), ev, "")
	g.rooms.Broadcast(rooms.User(session.calleeID), ev, "")

	g.logger.Info("call rang out", "call_id", callID, "caller_id", session.callerID)
}

// evictSession removes a call session if userID is one of its peers. It stops
// the ring timer and returns the removed session.
func (g *Gateway) evictSession(callID, userID string) (*callSession, bool) {
	g.callMu.Lock()
	defer g.callMu.Unlock()

	session, ok := g.callSessions[callID]
	if !ok {
		return nil, false
	}
	if _, isPeer := session.peerOf(userID); !isPeer {
		return nil, false
	}
	if session.ringTimer != nil {
		session.ringTimer.Stop()
	}
	delete(g.callSessions, callID)
	g.metrics.ActiveCalls.Dec()
	return session, true
}

// endCallsFor terminates every call session the user is a peer of. Called
// when the user's last connection drops; the surviving peer gets call:ended
// and the record closes out as ended or missed depending on whether the call
// had been answered.
func (g *Gateway) endCallsFor(userID string) {
	g.callMu.Lock()
	var dropped []*callSession
	for id, session := range g.callSessions {
		if _, isPeer := session.peerOf(userID); isPeer {
			if session.ringTimer != nil {
				session.ringTimer.Stop()
			}
			delete(g.callSessions, id)
			dropped = append(dropped, session)
		}
	}
	g.callMu.Unlock()

	for _, session := range dropped {
		g.metrics.ActiveCalls.Dec()

		status := models.CallEnded
		if !session.answered {
			status = models.CallMissed
		}
		if _, err := g.calls.UpdateStatus(context.Background(), session.id, status); err != nil {
			g.logger.Warn("call status update failed", "call_id", session.id, "error", err)
		}

		ev := rooms.Event{
			Name:    EventCallEnded,
			Payload: callEndedPayload{CallID: session.id},
			Durable: true,
		}
		if peer, _ := session.peerOf(userID); peer != "" {
			g.rooms.Broadcast(rooms.User(peer), ev, "")
		}
	}
}

// handleCallICE forwards an ICE candidate to the named peer. Candidate
// exchange is stateless relay: no session lookup, no persistence, so
// trickled candidates survive the gateway's view of the call lagging the
// clients'.
func (g *Gateway) handleCallICE(c *conn, data json.RawMessage) (any, error) {
	params, err := decode[callICEParams](data)
	if err != nil {
		return nil, err
	}
	if params.To == "" {
		return nil, errInvalidFrame
	}

	g.rooms.Broadcast(rooms.User(params.To), rooms.Event{
		Name:    EventCallICE,
		Payload: callICEPayload{CallID: params.CallID, Candidate: params.Candidate},
	}, c.id)

	return nil, nil
}

// handleCallToggleMedia relays a mute/camera toggle to the named peer.
// Stateless like ICE relay.
func (g *Gateway) handleCallToggleMedia(c *conn, data json.RawMessage) (any, error) {
	params, err := decode[callMediaParams](data)
	if err != nil {
		return nil, err
	}
	if params.To == "" {
		return nil, errInvalidFrame
	}

	g.rooms.Broadcast(rooms.User(params.To), rooms.Event{
		Name: EventCallMedia,
		Payload: callMediaPayload{
			CallID:    params.CallID,
			MediaType: params.MediaType,
			Enabled:   params.Enabled,
		},
	}, c.id)

	return nil, nil
}

func (g *Gateway) handleCallHistory(ctx context.Context, c *conn, data json.RawMessage) (any, error) {
	params, err := decode[callHistoryParams](data)
	if err != nil {
		// History with no filter params is allowed.
		params = callHistoryParams{}
	}
	if params.Limit <= 0 {
		params.Limit = defaultHistoryLimit
	}

	calls, err := g.calls.HistoryFor(ctx, c.userID, params.Limit)
	if err != nil {
		return nil, err
	}
	missed, err := g.calls.MissedCount(ctx, c.userID)
	if err != nil {
		return nil, err
	}

	return map[string]any{"calls": calls, "missedCount": missed}, nil
}
