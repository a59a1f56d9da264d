package redex

import (
	"sync"

	"github.com/riftctl/redex/resp"
)

// TransactionAbortedError is returned by Flush when a transaction's EXEC
// reply is a nil array, meaning the server aborted it (a watched key
// changed); spec.md §4.5, "Transaction abort". An EXEC that replies with
// an error frame instead (such as EXECABORT after a command failed at
// QUEUED time) is returned as that *resp.ErrorReply, not as this type.
type TransactionAbortedError struct{}

func (e *TransactionAbortedError) Error() string {
	return "redex: transaction aborted"
}

// Pipeline batches commands and dispatches them as one contiguous write,
// reading all replies back in order (spec.md §4.5). Queue is safe to call
// from multiple goroutines; Flush drains whatever has been queued so far
// as a single unit. In transaction mode the batch is wrapped in
// MULTI/EXEC and the per-command QUEUED acks are discarded from the
// result, leaving only the real replies EXEC returns.
type Pipeline struct {
	conn *Connection
	tx   bool

	mu      sync.Mutex
	pending []Command

	flushMu sync.Mutex // held for a whole Flush, so flushes of one Pipeline never overlap
}

// NewPipeline returns a Pipeline that flushes queued commands as a plain
// batch (no MULTI/EXEC wrapping).
func NewPipeline(conn *Connection) *Pipeline {
	return &Pipeline{conn: conn}
}

// NewTransaction returns a Pipeline that wraps its flushed batch in
// MULTI/EXEC, so the server applies it atomically.
func NewTransaction(conn *Connection) *Pipeline {
	return &Pipeline{conn: conn, tx: true}
}

// Queue appends cmd to the pending batch and returns the Pipeline for
// chaining.
func (p *Pipeline) Queue(cmd Command) *Pipeline {
	p.mu.Lock()
	p.pending = append(p.pending, cmd)
	p.mu.Unlock()
	return p
}

// Len reports how many commands are queued but not yet flushed.
func (p *Pipeline) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Flush writes every pending command as one block and reads back one
// reply per command, in order. A flush never retries: any transport
// failure anywhere in the batch fails the whole batch (spec.md §4.5,
// "Failure"). Flushes of one Pipeline run one at a time: a batch taken
// from the queue before another is written and answered before it.
func (p *Pipeline) Flush() ([]resp.Value, error) {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	commands := p.pending
	p.pending = nil
	p.mu.Unlock()

	if len(commands) == 0 {
		return nil, nil
	}

	if !p.tx {
		return p.conn.ExecBatch(commands)
	}

	return p.flushTransaction(commands)
}

func (p *Pipeline) flushTransaction(commands []Command) ([]resp.Value, error) {
	batch := make([]Command, 0, len(commands)+2)
	batch = append(batch, NewCommand("MULTI"))
	batch = append(batch, commands...)
	batch = append(batch, NewCommand("EXEC"))

	replies, err := p.conn.ExecBatch(batch)
	if err != nil {
		return nil, err
	}

	exec := replies[len(replies)-1]
	if exec.IsError() {
		return nil, exec.AsError()
	}
	if exec.IsNil() {
		return nil, &TransactionAbortedError{}
	}

	return exec.Items, nil
}

// Close releases the underlying Connection. Any commands queued but not
// flushed are discarded.
func (p *Pipeline) Close() error {
	return p.conn.Close()
}
