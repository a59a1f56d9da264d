package redex

import "github.com/riftctl/redex/resp"

// Client is the facade spec.md §4 describes: a thin wrapper that hands
// out executors (direct, pipeline, transaction, pub/sub) over a shared
// set of ConnectOpts, matching the teacher's own Client/client split in
// shape (here a concrete struct is enough, since this repo has no
// separate iface package to satisfy — see DESIGN.md).
type Client struct {
	opts *ConnectOpts
	dial Dialer
	exec *DirectExecutor
}

// NewClient builds a Client and dials immediately, surfacing a connect
// failure to the caller up front (spec.md §4.2, "eager client").
func NewClient(hostname string, port int, configs ...ConfigFunc) (*Client, error) {
	c := newClient(hostname, port, defaultDialer, configs...)
	if err := c.exec.Connection().EnsureReady(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewLazyClient builds a Client without dialing; the first command sent
// through it dials on demand (spec.md §4.2, "lazy client").
func NewLazyClient(hostname string, port int, configs ...ConfigFunc) *Client {
	return newClient(hostname, port, defaultDialer, configs...)
}

// newClient is the shared constructor behind NewClient/NewLazyClient; it
// takes an explicit Dialer so tests can substitute an in-memory transport
// instead of a real socket.
func newClient(hostname string, port int, dial Dialer, configs ...ConfigFunc) *Client {
	opts := NewConnectOpts(hostname, port, configs...)
	conn := NewConnection(opts, dial)
	return &Client{opts: opts, dial: dial, exec: NewDirectExecutor(conn)}
}

// SendCommand runs one command directly and returns its raw reply. The
// typed helpers in commands.go are thin wrappers over this.
func (c *Client) SendCommand(name string, args ...interface{}) (resp.Value, error) {
	return c.exec.Exec(NewCommand(name, args...))
}

// Pipeline returns a batching executor over this Client's Connection
// (spec.md §4.5). Flushing it never retries, unlike SendCommand.
func (c *Client) Pipeline() *Pipeline {
	return NewPipeline(c.exec.Connection())
}

// Tx returns a transaction executor: its flush wraps the queued batch in
// MULTI/EXEC (spec.md §4.5).
func (c *Client) Tx() *Pipeline {
	return NewTransaction(c.exec.Connection())
}

// Subscribe opens a dedicated Connection and issues SUBSCRIBE for
// channels, returning a Subscription that owns that Connection
// exclusively (spec.md §4.6).
func (c *Client) Subscribe(channels ...string) (*Subscription, error) {
	return c.openSubscription(func(s *Subscription) error { return s.Subscribe(channels...) })
}

// PSubscribe opens a dedicated Connection and issues PSUBSCRIBE for
// patterns (spec.md §4.6).
func (c *Client) PSubscribe(patterns ...string) (*Subscription, error) {
	return c.openSubscription(func(s *Subscription) error { return s.PSubscribe(patterns...) })
}

func (c *Client) openSubscription(subscribe func(*Subscription) error) (*Subscription, error) {
	conn := NewConnection(c.opts, c.dial)
	if err := conn.EnsureReady(); err != nil {
		return nil, err
	}

	sub := NewSubscription(conn, c.opts.Logger)
	if err := subscribe(sub); err != nil {
		sub.Close()
		return nil, err
	}
	return sub, nil
}

// Close releases the Client's direct Connection. Pipelines/transactions
// created from this Client share that Connection and become unusable
// afterward; Subscriptions own their own Connection and are unaffected.
func (c *Client) Close() error {
	return c.exec.Close()
}
