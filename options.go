package redex

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/efritz/glock"
	"github.com/efritz/overcurrent"
)

// ConnectOpts is the Go shape of spec.md §3's ConnectOpts record.
type ConnectOpts struct {
	Hostname string
	Port     int
	TLS      bool
	DB       int
	Name     string
	Password string

	MaxRetryCount uint32
	Backoff       BackoffFunc

	Logger      Logger
	Clock       glock.Clock
	BreakerFunc BreakerFunc

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// BreakerFunc bridges the interface between the Call function of an
// overcurrent breaker and an overcurrent registry, matching the teacher's
// pool.go type of the same name.
type BreakerFunc func(overcurrent.BreakerFunc) error

func noopBreakerFunc(f overcurrent.BreakerFunc) error {
	return f(context.Background())
}

// ConfigFunc mutates a ConnectOpts under construction; NewConnectOpts
// applies a sequence of these, matching the teacher's ConfigFunc pattern
// in client.go generalized from *clientConfig to spec.md's ConnectOpts.
type ConfigFunc func(*ConnectOpts)

// NewConnectOpts builds a ConnectOpts with spec.md-mandated defaults
// (db=0, maxRetryCount=10) plus this repo's ambient defaults (exponential
// backoff, standard logger, real clock, no circuit breaker), then applies
// configs in order.
func NewConnectOpts(hostname string, port int, configs ...ConfigFunc) *ConnectOpts {
	opts := &ConnectOpts{
		Hostname:       hostname,
		Port:           port,
		DB:             0,
		MaxRetryCount:  10,
		Backoff:        defaultBackoff(),
		Logger:         &defaultLogger{},
		Clock:          glock.NewRealClock(),
		BreakerFunc:    noopBreakerFunc,
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
	}

	for _, f := range configs {
		f(opts)
	}

	return opts
}

// WithPassword sets the AUTH password (default "").
func WithPassword(password string) ConfigFunc {
	return func(o *ConnectOpts) { o.Password = password }
}

// WithDatabase sets the SELECT db index (default 0).
func WithDatabase(db int) ConfigFunc {
	return func(o *ConnectOpts) { o.DB = db }
}

// WithClientName sets the CLIENT SETNAME value (default "", meaning the
// command is skipped during handshake).
func WithClientName(name string) ConfigFunc {
	return func(o *ConnectOpts) { o.Name = name }
}

// WithTLS toggles TLS transport (default false).
func WithTLS(enabled bool) ConfigFunc {
	return func(o *ConnectOpts) { o.TLS = enabled }
}

// WithMaxRetryCount sets the reconnect attempt budget (default 10).
func WithMaxRetryCount(n uint32) ConfigFunc {
	return func(o *ConnectOpts) { o.MaxRetryCount = n }
}

// WithBackoff sets the reconnect backoff schedule.
func WithBackoff(f BackoffFunc) ConfigFunc {
	return func(o *ConnectOpts) { o.Backoff = f }
}

// WithLogger sets the logger instance (default logs via Go's log package).
func WithLogger(logger Logger) ConfigFunc {
	return func(o *ConnectOpts) { o.Logger = logger }
}

// WithClock overrides the glock.Clock used for backoff sleeps (default
// glock.NewRealClock()). Intended for tests.
func WithClock(clock glock.Clock) ConfigFunc {
	return func(o *ConnectOpts) { o.Clock = clock }
}

// WithBreaker sets the circuit breaker instance wrapped around dial
// attempts (default is a no-op breaker).
func WithBreaker(breaker overcurrent.CircuitBreaker) ConfigFunc {
	return func(o *ConnectOpts) { o.BreakerFunc = breaker.Call }
}

// WithBreakerRegistry sets the overcurrent registry and named breaker
// config to use around dial attempts.
func WithBreakerRegistry(registry overcurrent.Registry, name string) ConfigFunc {
	return func(o *ConnectOpts) {
		o.BreakerFunc = func(f overcurrent.BreakerFunc) error {
			return registry.Call(name, f, nil)
		}
	}
}

// WithConnectTimeout sets the dial timeout (default 5s).
func WithConnectTimeout(d time.Duration) ConfigFunc {
	return func(o *ConnectOpts) { o.ConnectTimeout = d }
}

// WithReadTimeout sets the read timeout (default 5s).
func WithReadTimeout(d time.Duration) ConfigFunc {
	return func(o *ConnectOpts) { o.ReadTimeout = d }
}

// WithWriteTimeout sets the write timeout (default 5s).
func WithWriteTimeout(d time.Duration) ConfigFunc {
	return func(o *ConnectOpts) { o.WriteTimeout = d }
}

// validate enforces spec.md §4.3's port-validation invariant: "port must
// be a finite, non-negative integer; otherwise ConnectError("invalid
// port") before any socket work."
func (o *ConnectOpts) validate() error {
	if o.Port < 0 || o.Port > 65535 {
		return &ConnectError{Err: fmt.Errorf("invalid port")}
	}
	return nil
}

// ParseURL parses a connection URL of the form
// `[rediss://][user:pass@]host[:port][/db][?key=value...]` into a
// ConnectOpts, per spec.md §4.8/§6. Path and authority values take
// precedence over query parameters of the same name (spec.md scenario
// S7).
func ParseURL(raw string) (*ConnectOpts, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &ConnectError{Err: err}
	}

	opts := NewConnectOpts(u.Hostname(), 6379)

	query := u.Query()

	if v := query.Get("ssl"); v != "" {
		opts.TLS = v == "true"
	}
	if u.Scheme == "rediss" {
		opts.TLS = true
	}

	if v := query.Get("password"); v != "" {
		opts.Password = v
	}
	if v := query.Get("db"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return nil, &ConnectError{Err: fmt.Errorf("invalid db query parameter %q", v)}
		}
		opts.DB = db
	}

	if portText := u.Port(); portText != "" {
		port, err := strconv.Atoi(portText)
		if err != nil {
			return nil, &ConnectError{Err: fmt.Errorf("invalid port %q", portText)}
		}
		opts.Port = port
	}

	if u.User != nil {
		if username := u.User.Username(); username != "" {
			opts.Name = username
		}
		if password, ok := u.User.Password(); ok {
			opts.Password = password
		}
	}

	if path := strings.TrimPrefix(u.Path, "/"); path != "" {
		db, err := strconv.Atoi(path)
		if err != nil {
			return nil, &ConnectError{Err: fmt.Errorf("invalid db path segment %q", path)}
		}
		opts.DB = db
	}

	if err := opts.validate(); err != nil {
		return nil, err
	}

	return opts, nil
}
