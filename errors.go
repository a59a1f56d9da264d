package redex

import "errors"

// ErrNoConnection is returned when a Connection exhausts its reconnect
// budget without ever having connected successfully — the first-dial
// failure path of an eager or lazy client (spec.md §4.2). Once a
// Connection has been Ready at least once, the same exhaustion instead
// returns ErrConnectionClosed (mirrors the teacher's own distinction
// between "never got a connection" and "lost the connection it had").
var ErrNoConnection = errors.New("redex: no connection available")

// ErrConnectionClosed is returned when a command exhausts its reconnect
// budget (spec.md §4.3, §7 "ConnectionClosed").
var ErrConnectionClosed = errors.New("redex: connection closed")

// ErrBadResource is returned for any operation attempted on a Connection,
// pipeline, or subscription after it has been explicitly closed (spec.md
// §4.3, §7 "BadResource").
var ErrBadResource = errors.New("redex: resource is closed")

// ErrTooManyRedirections is returned when a cluster command exceeds
// maxRedirections MOVED/ASK hops (spec.md §4.7, §7 "TooManyRedirections").
var ErrTooManyRedirections = errors.New("Too many Cluster redirections?")

// ConnectError wraps a fatal failure during dial or handshake (invalid
// options, AUTH/SELECT/CLIENT SETNAME failure). It is never retried
// (spec.md §4.3, §7 "ConnectError").
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return "redex: connect error: " + e.Err.Error()
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// CrossSlotError is raised when a multi-key cluster command's keys hash
// to different slots (spec.md §4.7, §7 "CrossSlot").
type CrossSlotError struct {
	Message string
}

func (e *CrossSlotError) Error() string {
	return e.Message
}
