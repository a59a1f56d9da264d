package redex

import "github.com/riftctl/redex/resp"

// Executor is the extensibility seam spec.md §4 describes: anything that
// can take a Command and return its reply. DirectExecutor implements it
// directly; Pipeline and Subscription cover the batching and pub/sub
// paths with their own Flush/Receive-shaped APIs instead, since neither
// batching a fixed reply per call nor a message stream fits Executor's
// one-command-in-one-reply-out shape. ClusterDispatcher is shaped
// similarly but keyed by Exec(cmd, keys) rather than Exec(cmd), since
// routing needs the command's keys to pick a slot.
type Executor interface {
	// Exec runs cmd to completion and returns its reply.
	Exec(cmd Command) (resp.Value, error)

	// Close releases any resource the executor owns.
	Close() error
}

// DirectExecutor is the simplest Executor: one command in, one reply out,
// on a single Connection (spec.md §4.4's "direct execution mode").
type DirectExecutor struct {
	conn *Connection
}

// NewDirectExecutor wraps conn as a Executor that serializes one command
// at a time.
func NewDirectExecutor(conn *Connection) *DirectExecutor {
	return &DirectExecutor{conn: conn}
}

func (e *DirectExecutor) Exec(cmd Command) (resp.Value, error) {
	return e.conn.Exec(cmd)
}

func (e *DirectExecutor) Close() error {
	return e.conn.Close()
}

// Connection returns the underlying Connection, letting callers that need
// it directly (the pub/sub and pipeline constructors) reuse it without
// going through Exec.
func (e *DirectExecutor) Connection() *Connection {
	return e.conn
}
