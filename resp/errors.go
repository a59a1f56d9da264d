package resp

import "errors"

// ErrInvalidState is raised when a reply frame does not start with a
// recognized RESP2 type byte, or when its length framing is malformed.
// It is fatal for the Connection that observed it (spec.md §7).
var ErrInvalidState = errors.New("resp: invalid protocol state")

// ErrorReply wraps the text of a `-...\r\n` server error frame. It is
// never returned by Reader.ReadReply as a Go error for a standalone
// command; instead the caller inspects the returned Value's Kind. It is
// the Go error form of an Error-kind Value (see Value.AsError); pipeline
// batches keep the Error-kind Value itself in their per-command result
// slice.
type ErrorReply struct {
	Text string
}

func (e *ErrorReply) Error() string {
	return e.Text
}
