package redex

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/bradhe/stopwatch"
	"github.com/efritz/overcurrent"

	"github.com/riftctl/redex/resp"
)

// connState is the Go shape of spec.md §3's Connection.state enum.
type connState int

const (
	stateClosed connState = iota
	stateConnecting
	stateReady
	stateBroken
	stateDraining
)

// Connection wraps a single duplex byte stream to one Redis-compatible
// server: handshake, health state, and the reconnect-with-replay policy
// of spec.md §4.3. A Connection is single-owner and non-shareable
// (spec.md §5).
//
// Two lock granularities are used. cmdMu serializes the *logical*
// request/response cycles issued by the direct and pipeline executors
// (spec.md §4.3, "Command serialization") across their full write+read
// span. stateMu guards only the identity fields (the current net.Conn,
// its reader/writer, and the state/closed/generation flags) and is held
// only long enough to snapshot or swap them — never across blocking I/O.
// This split is what lets Close() interrupt a pub/sub consumer parked in
// a long-lived blocking read without contending with cmdMu.
type Connection struct {
	opts   *ConnectOpts
	dial   Dialer
	logger Logger

	cmdMu chan struct{} // 1-buffered mutex

	stateMu    sync.Mutex
	state      connState
	closed     bool
	generation uint64
	netConn    net.Conn
	reader     *resp.Reader
	writer     *resp.Writer

	writeMu sync.Mutex // serializes pub/sub raw writes, independent of cmdMu
}

// NewConnection creates a Connection in the Closed state; the first Exec
// call dials it (spec.md §3, "Lifecycles").
func NewConnection(opts *ConnectOpts, dial Dialer) *Connection {
	if dial == nil {
		dial = defaultDialer
	}

	logger := opts.Logger
	if logger == nil {
		logger = &defaultLogger{}
	}

	return &Connection{
		opts:   opts,
		dial:   dial,
		logger: logger,
		cmdMu:  make(chan struct{}, 1),
		state:  stateClosed,
	}
}

func (c *Connection) lockCmd()   { c.cmdMu <- struct{}{} }
func (c *Connection) unlockCmd() { <-c.cmdMu }

// snapshot returns the current transport identity under stateMu.
func (c *Connection) snapshot() (r *resp.Reader, w *resp.Writer, state connState, closed bool) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.reader, c.writer, c.state, c.closed
}

// netConnSnapshot returns the current net.Conn under stateMu, for setting
// read/write deadlines around a command's I/O (spec.md §3 ReadTimeout/
// WriteTimeout).
func (c *Connection) netConnSnapshot() net.Conn {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.netConn
}

func (c *Connection) setState(s connState) {
	c.stateMu.Lock()
	if !c.closed {
		c.state = s
	}
	c.stateMu.Unlock()
}

// IsConnected reports true iff the Connection's state is Ready (spec.md
// §4.3, "Health flags").
func (c *Connection) IsConnected() bool {
	_, _, state, _ := c.snapshot()
	return state == stateReady
}

// IsClosed reports true iff the Connection has been explicitly closed.
func (c *Connection) IsClosed() bool {
	_, _, _, closed := c.snapshot()
	return closed
}

// Close idempotently tears down the transport. It never blocks on
// in-flight command dispatch: closing the socket underneath a blocked
// pub/sub read is what lets that read return promptly (spec.md §4.3,
// "Close semantics"; spec.md §4.6 scenario S5). closed flips to true
// immediately, so every queued or in-flight command sees ErrBadResource
// from that point on (spec.md §4.3, "Closing cancels queued commands
// with BadResource"); state passes through Draining for the span during
// which the socket teardown that unblocks those commands is actually
// happening, then settles at Closed.
func (c *Connection) Close() error {
	c.stateMu.Lock()
	if c.closed {
		c.stateMu.Unlock()
		return nil
	}

	c.closed = true
	c.state = stateDraining
	conn := c.netConn
	c.netConn = nil
	c.reader = nil
	c.writer = nil
	c.stateMu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}

	c.stateMu.Lock()
	c.state = stateClosed
	c.stateMu.Unlock()

	return err
}

// Exec runs one command to completion: encode, flush, read one reply.
// On a transport-layer failure while the command is being written and
// flushed, the Connection reconnects (spec.md §4.3) and replays the
// command exactly once. Once the write has completed, any failure while
// reading the reply is fatal to the Connection and is not retried, even
// an EOF that arrives before the first reply byte (spec.md §4.4).
func (c *Connection) Exec(cmd Command) (resp.Value, error) {
	c.lockCmd()
	defer c.unlockCmd()

	_, _, _, closed := c.snapshot()
	if closed {
		return resp.Value{}, ErrBadResource
	}

	reader, writer, state, _ := c.snapshot()
	if state != stateReady {
		if err := c.ensureReady(); err != nil {
			return resp.Value{}, err
		}
		reader, writer, _, _ = c.snapshot()
	}

	value, err, wroteOK := execOnce(c.netConnSnapshot(), reader, writer, cmd, c.opts.WriteTimeout, c.opts.ReadTimeout)
	if err == nil {
		return surfaceServerError(value)
	}

	if _, _, _, closed := c.snapshot(); closed {
		return resp.Value{}, ErrBadResource
	}

	if wroteOK || !isTransportError(err) {
		// The write phase completed, so the server may already have
		// executed the command by the time the read failed; replaying it
		// could double-apply a non-idempotent command. Non-transport
		// errors (a protocol violation) are equally not retried. Either
		// way this is fatal to the Connection (spec.md §4.4).
		c.setState(stateBroken)
		return resp.Value{}, ErrConnectionClosed
	}

	// The write itself never completed, so the server never saw the
	// command: safe to reconnect and replay exactly once (spec.md §4.3).
	c.setState(stateBroken)
	c.logger.Printf("redex: transport error on write, reconnecting: %s", err)

	if err := c.ensureReady(); err != nil {
		return resp.Value{}, err
	}
	reader, writer, _, _ = c.snapshot()

	value, err, _ = execOnce(c.netConnSnapshot(), reader, writer, cmd, c.opts.WriteTimeout, c.opts.ReadTimeout)
	if err != nil {
		c.setState(stateBroken)
		return resp.Value{}, ErrConnectionClosed
	}

	return surfaceServerError(value)
}

func surfaceServerError(value resp.Value) (resp.Value, error) {
	if value.IsError() {
		return value, value.AsError()
	}
	return value, nil
}

// execOnce writes and flushes cmd on writer, then reads exactly one reply
// from reader. The returned bool is true once the write+flush phase has
// succeeded, telling the caller whether a retry is safe. netConn's
// deadlines bound the write and read phases separately, per
// ConnectOpts.WriteTimeout/ReadTimeout (spec.md §3); a zero duration
// clears any prior deadline instead of setting one.
func execOnce(netConn net.Conn, reader *resp.Reader, writer *resp.Writer, cmd Command, writeTimeout, readTimeout time.Duration) (resp.Value, error, bool) {
	if netConn == nil {
		return resp.Value{}, io.ErrClosedPipe, false
	}

	setDeadline(netConn.SetWriteDeadline, writeTimeout)
	if err := writer.WriteCommand(cmd.Name, cmd.Args...); err != nil {
		return resp.Value{}, err, false
	}
	if err := writer.Flush(); err != nil {
		return resp.Value{}, err, false
	}

	setDeadline(netConn.SetReadDeadline, readTimeout)
	value, err := reader.ReadReply(cmd.Parse)
	if err != nil {
		return resp.Value{}, err, true
	}
	return value, nil, true
}

// setDeadline applies d as a deadline starting now via set, or clears any
// existing deadline when d is zero.
func setDeadline(set func(time.Time) error, d time.Duration) {
	if d <= 0 {
		set(time.Time{})
		return
	}
	set(time.Now().Add(d))
}

// ExecBatch writes every command in commands as one contiguous block and
// reads exactly len(commands) replies in order; it is the primitive the
// pipeline/transaction executor's flush dispatch uses (spec.md §4.5).
// Unlike Exec it never retries: a transport failure anywhere in the batch
// fails the whole batch and discards any partially observed replies.
func (c *Connection) ExecBatch(commands []Command) ([]resp.Value, error) {
	c.lockCmd()
	defer c.unlockCmd()

	reader, writer, state, closed := c.snapshot()
	if closed {
		return nil, ErrBadResource
	}
	if state != stateReady {
		if err := c.ensureReady(); err != nil {
			return nil, err
		}
		reader, writer, _, _ = c.snapshot()
	}

	netConn := c.netConnSnapshot()
	if netConn == nil {
		c.setState(stateBroken)
		return nil, ErrConnectionClosed
	}

	setDeadline(netConn.SetWriteDeadline, c.opts.WriteTimeout)
	for _, cmd := range commands {
		if err := writer.WriteCommand(cmd.Name, cmd.Args...); err != nil {
			c.setState(stateBroken)
			return nil, ErrConnectionClosed
		}
	}
	if err := writer.Flush(); err != nil {
		c.setState(stateBroken)
		return nil, ErrConnectionClosed
	}

	setDeadline(netConn.SetReadDeadline, c.opts.ReadTimeout)
	results := make([]resp.Value, 0, len(commands))
	for _, cmd := range commands {
		value, err := reader.ReadReply(cmd.Parse)
		if err != nil {
			c.setState(stateBroken)
			return nil, ErrConnectionClosed
		}
		results = append(results, value)
	}

	return results, nil
}

// EnsureReady dials and handshakes if the Connection is not already
// Ready, applying the backoff/retry policy of spec.md §4.3. It is exposed
// for the pub/sub executor's reconnect-and-resubscribe flow; callers that
// are not already holding cmdMu (i.e. everyone but Exec/ExecBatch) get
// the serialization for free since EnsureReady acquires it itself.
func (c *Connection) EnsureReady() error {
	c.lockCmd()
	defer c.unlockCmd()
	return c.ensureReady()
}

// ensureReady assumes cmdMu is already held.
func (c *Connection) ensureReady() error {
	if _, _, state, closed := c.snapshot(); closed {
		return ErrBadResource
	} else if state == stateReady {
		return nil
	}

	if err := c.opts.validate(); err != nil {
		return err
	}

	c.setState(stateConnecting)
	c.closeTransport()

	var lastErr error
	for attempt := uint32(1); attempt <= c.opts.MaxRetryCount; attempt++ {
		if _, _, _, closed := c.snapshot(); closed {
			return ErrBadResource
		}

		start := stopwatch.Start()
		err := c.dialAndHandshake()
		elapsed := start.Stop().Milliseconds()

		if err == nil {
			c.stateMu.Lock()
			c.state = stateReady
			c.generation++
			c.stateMu.Unlock()
			c.logger.Printf("redex: connected to %s:%d after %vms (attempt %d)", c.opts.Hostname, c.opts.Port, elapsed, attempt)
			return nil
		}

		var connectErr *ConnectError
		if errors.As(err, &connectErr) {
			// Handshake/options failures are fatal and never retried.
			c.setState(stateBroken)
			return err
		}

		lastErr = err
		c.logger.Printf("redex: dial attempt %d/%d failed after %vms: %s", attempt, c.opts.MaxRetryCount, elapsed, err)

		if attempt < c.opts.MaxRetryCount {
			delay := c.opts.Backoff(int(attempt))
			<-c.opts.Clock.After(delay)
		}
	}

	c.setState(stateBroken)
	c.logger.Printf("redex: exhausted %d reconnect attempts to %s:%d: %s", c.opts.MaxRetryCount, c.opts.Hostname, c.opts.Port, lastErr)

	c.stateMu.Lock()
	neverConnected := c.generation == 0
	c.stateMu.Unlock()
	if neverConnected {
		return ErrNoConnection
	}
	return ErrConnectionClosed
}

func (c *Connection) closeTransport() {
	c.stateMu.Lock()
	conn := c.netConn
	c.netConn = nil
	c.reader = nil
	c.writer = nil
	c.stateMu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (c *Connection) dialAndHandshake() error {
	netConn, dialErr := c.dialWithBreaker()
	if dialErr != nil {
		return dialErr
	}

	reader := resp.NewReader(netConn)
	writer := resp.NewWriter(netConn)

	if err := handshake(netConn, reader, writer, c.opts); err != nil {
		netConn.Close()
		return err
	}

	c.stateMu.Lock()
	c.netConn = netConn
	c.reader = reader
	c.writer = writer
	c.stateMu.Unlock()

	return nil
}

// dialWithBreaker runs the dialer through the configured circuit breaker,
// matching the teacher's pool.go dial() wrapping pattern.
func (c *Connection) dialWithBreaker() (net.Conn, error) {
	var netConn net.Conn
	err := c.opts.BreakerFunc(func(ctx context.Context) error {
		conn, err := c.dial(c.opts)
		netConn = conn
		return err
	})
	if err != nil {
		if errors.Is(err, overcurrent.ErrCircuitOpen) {
			return nil, ErrConnectionClosed
		}
		return nil, err
	}
	return netConn, nil
}

// handshake issues AUTH/SELECT/CLIENT SETNAME in order, per spec.md
// §4.3. Any failure here is a fatal ConnectError, never retried. Each
// step is bounded by ConnectOpts.WriteTimeout/ReadTimeout, same as a
// regular command.
func handshake(netConn net.Conn, reader *resp.Reader, writer *resp.Writer, opts *ConnectOpts) error {
	if opts.Password != "" {
		if _, err := handshakeCommand(netConn, reader, writer, opts, "AUTH", opts.Password); err != nil {
			return &ConnectError{Err: err}
		}
	}
	if opts.DB > 0 {
		if _, err := handshakeCommand(netConn, reader, writer, opts, "SELECT", opts.DB); err != nil {
			return &ConnectError{Err: err}
		}
	}
	if opts.Name != "" {
		if _, err := handshakeCommand(netConn, reader, writer, opts, "CLIENT", "SETNAME", opts.Name); err != nil {
			return &ConnectError{Err: err}
		}
	}
	return nil
}

func handshakeCommand(netConn net.Conn, reader *resp.Reader, writer *resp.Writer, opts *ConnectOpts, name string, args ...interface{}) (resp.Value, error) {
	setDeadline(netConn.SetWriteDeadline, opts.WriteTimeout)
	if err := writer.WriteCommand(name, args...); err != nil {
		return resp.Value{}, err
	}
	if err := writer.Flush(); err != nil {
		return resp.Value{}, err
	}

	setDeadline(netConn.SetReadDeadline, opts.ReadTimeout)
	value, err := reader.ReadReply(nil)
	if err != nil {
		return resp.Value{}, err
	}
	if value.IsError() {
		return resp.Value{}, value.AsError()
	}
	return value, nil
}

//
// Raw primitives for the pub/sub executor, which drives its own reconnect
// state machine (spec.md §4.6) instead of Exec's replay-once policy.

// WriteRaw encodes and flushes one command without reading a reply. It is
// serialized against other raw writes (but not against ReadRaw, which is
// single-consumer per spec.md §4.6). The write is bounded by
// ConnectOpts.WriteTimeout, same as a regular command.
func (c *Connection) WriteRaw(name string, args ...interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_, writer, _, closed := c.snapshot()
	if closed {
		return ErrBadResource
	}
	if writer == nil {
		return ErrBadResource
	}

	netConn := c.netConnSnapshot()
	if netConn == nil {
		return ErrBadResource
	}
	setDeadline(netConn.SetWriteDeadline, c.opts.WriteTimeout)
	if err := writer.WriteCommand(name, args...); err != nil {
		c.setState(stateBroken)
		return err
	}
	if err := writer.Flush(); err != nil {
		c.setState(stateBroken)
		return err
	}
	return nil
}

// ReadRaw reads exactly one reply frame, blocking until the server pushes
// one. It is intentionally lock-free with respect to cmdMu/writeMu so
// that Close() can interrupt it by closing the socket underneath it.
// ConnectOpts.ReadTimeout is deliberately not applied here: a pub/sub
// consumer is meant to block indefinitely between messages, and Close()
// closing the socket is the only intended way to unblock it.
func (c *Connection) ReadRaw() (resp.Value, error) {
	reader, _, _, closed := c.snapshot()
	if closed {
		return resp.Value{}, ErrBadResource
	}
	if reader == nil {
		return resp.Value{}, ErrBadResource
	}

	value, err := reader.ReadReply(nil)
	if err != nil {
		c.setState(stateBroken)
		return resp.Value{}, err
	}
	return value, nil
}

// isTransportError reports whether err indicates a dead socket rather
// than a protocol or server-level condition.
func isTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
