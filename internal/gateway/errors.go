package gateway

import "errors"

var (
	// ErrCallNotFound is returned for signaling against a call with no live
	// session, covering races where the call already ended.
	ErrCallNotFound = errors.New("call not found")

	// ErrCalleeUnreachable is returned when a call is initiated towards a
	// user with no active connections. The durable call record is still
	// created; only the signaling delivery fails.
	ErrCalleeUnreachable = errors.New("callee unreachable")

	errInvalidFrame = errors.New("invalid frame")
	errUnknownEvent = errors.New("unknown event")
)
