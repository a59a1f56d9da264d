package redex

import (
	"sync"

	"github.com/riftctl/redex/resp"
)

// subState is the Go shape of spec.md §4.6's subscription state machine:
// Idle, Active, Reconnecting (transient, folds back to Active), Closed.
// Close moves straight to Closed; there is no separate Closing state.
type subState int

const (
	subIdle subState = iota
	subActive
	subReconnecting
	subClosed
)

// Message is one published item delivered to a Subscription, either from
// a plain channel subscribe or a pattern subscribe (Pattern is "" in the
// former case).
type Message struct {
	Pattern string
	Channel string
	Payload []byte
}

// Subscription multiplexes SUBSCRIBE/PSUBSCRIBE/UNSUBSCRIBE/PUNSUBSCRIBE
// dispatch with server-pushed messages on a dedicated Connection (spec.md
// §4.6). It takes exclusive ownership of that Connection: no other
// executor may share it. Receive is single-consumer and non-restartable;
// once Close ends it with (nil, nil), it keeps returning (nil, nil).
// Subscribe/Unsubscribe calls made after Close still report
// ErrBadResource, since those are attempts to start new work, not an
// in-progress iteration winding down.
type Subscription struct {
	conn   *Connection
	logger Logger

	mu       sync.Mutex
	state    subState
	channels map[string]struct{}
	patterns map[string]struct{}
}

// NewSubscription takes ownership of conn for pub/sub use.
func NewSubscription(conn *Connection, logger Logger) *Subscription {
	if logger == nil {
		logger = &defaultLogger{}
	}
	return &Subscription{
		conn:     conn,
		logger:   logger,
		state:    subIdle,
		channels: make(map[string]struct{}),
		patterns: make(map[string]struct{}),
	}
}

// Subscribe adds channels to the subscription set and issues SUBSCRIBE.
func (s *Subscription) Subscribe(channels ...string) error {
	return s.dispatch("SUBSCRIBE", channels, s.channels, true)
}

// PSubscribe adds patterns to the subscription set and issues PSUBSCRIBE.
func (s *Subscription) PSubscribe(patterns ...string) error {
	return s.dispatch("PSUBSCRIBE", patterns, s.patterns, true)
}

// Unsubscribe removes channels from the subscription set and issues
// UNSUBSCRIBE. An empty channels list unsubscribes from all channels.
func (s *Subscription) Unsubscribe(channels ...string) error {
	return s.dispatch("UNSUBSCRIBE", channels, s.channels, false)
}

// PUnsubscribe removes patterns from the subscription set and issues
// PUNSUBSCRIBE. An empty patterns list unsubscribes from all patterns.
func (s *Subscription) PUnsubscribe(patterns ...string) error {
	return s.dispatch("PUNSUBSCRIBE", patterns, s.patterns, false)
}

func (s *Subscription) dispatch(name string, targets []string, set map[string]struct{}, add bool) error {
	s.mu.Lock()
	if s.state == subClosed {
		s.mu.Unlock()
		return ErrBadResource
	}
	s.mu.Unlock()

	if err := s.conn.WriteRaw(name, toArgs(targets)...); err != nil {
		return err
	}

	s.mu.Lock()
	if add {
		for _, t := range targets {
			set[t] = struct{}{}
		}
		if s.state == subIdle {
			s.state = subActive
		}
	} else if len(targets) == 0 {
		for k := range set {
			delete(set, k)
		}
	} else {
		for _, t := range targets {
			delete(set, t)
		}
	}
	s.mu.Unlock()

	return nil
}

// Receive blocks until the next message arrives, reconnecting and
// replaying the tracked SUBSCRIBE/PSUBSCRIBE set if the connection drops
// (spec.md §4.6, "Reconnect"). Subscribe/unsubscribe acks pushed by the
// server are consumed internally and never surfaced to the caller.
// Closing the Subscription unblocks a pending Receive with (nil, nil): a
// consumer ranging over Receive sees clean termination, never an error
// (spec.md §4.6, scenario S5).
func (s *Subscription) Receive() (*Message, error) {
	for {
		if s.isClosed() {
			return nil, nil
		}

		value, err := s.conn.ReadRaw()
		if err != nil {
			if s.isClosed() {
				return nil, nil
			}
			if err := s.reconnectAndResubscribe(); err != nil {
				return nil, err
			}
			continue
		}

		msg, ok := decodePush(value)
		if !ok {
			continue
		}
		return msg, nil
	}
}

func (s *Subscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == subClosed
}

func (s *Subscription) reconnectAndResubscribe() error {
	s.mu.Lock()
	s.state = subReconnecting
	channels := keys(s.channels)
	patterns := keys(s.patterns)
	s.mu.Unlock()

	if err := s.conn.EnsureReady(); err != nil {
		s.mu.Lock()
		s.state = subActive
		s.mu.Unlock()
		return err
	}

	if len(channels) > 0 {
		if err := s.conn.WriteRaw("SUBSCRIBE", toArgs(channels)...); err != nil {
			return err
		}
	}
	if len(patterns) > 0 {
		if err := s.conn.WriteRaw("PSUBSCRIBE", toArgs(patterns)...); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.state = subActive
	s.mu.Unlock()

	s.logger.Printf("redex: pub/sub connection restored, resubscribed to %d channel(s), %d pattern(s)", len(channels), len(patterns))
	return nil
}

// Close idempotently ends the subscription and closes its Connection.
func (s *Subscription) Close() error {
	s.mu.Lock()
	if s.state == subClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = subClosed
	s.mu.Unlock()

	return s.conn.Close()
}

// decodePush recognizes a "message"/"pmessage" push among the frames a
// pub/sub connection's reply stream carries; subscribe/unsubscribe acks
// report ok=false so the caller loops past them.
func decodePush(value resp.Value) (*Message, bool) {
	if value.Kind != resp.Array || len(value.Items) < 3 {
		return nil, false
	}

	kind := frameText(value.Items[0])
	switch kind {
	case "message":
		return &Message{
			Channel: frameText(value.Items[1]),
			Payload: value.Items[2].Bytes(),
		}, true
	case "pmessage":
		if len(value.Items) < 4 {
			return nil, false
		}
		return &Message{
			Pattern: frameText(value.Items[1]),
			Channel: frameText(value.Items[2]),
			Payload: value.Items[3].Bytes(),
		}, true
	default:
		return nil, false
	}
}

func frameText(v resp.Value) string {
	if v.Kind == resp.BulkString {
		return string(v.Bulk)
	}
	return v.Text
}

func toArgs(ss []string) []interface{} {
	args := make([]interface{}, len(ss))
	for i, s := range ss {
		args[i] = s
	}
	return args
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
