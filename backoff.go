package redex

import (
	"time"

	"github.com/efritz/backoff"
)

// BackoffFunc computes the delay before the (1-indexed) attempt-th
// reconnect try. It is the Go shape of spec.md §3's
// `ConnectOpts.backoff: fn(attempt)->duration`.
type BackoffFunc func(attempt int) time.Duration

// defaultBackoff builds an exponential backoff schedule on top of
// github.com/efritz/backoff, the same package the teacher's client_test.go
// references via its `defaultBackoff` helper. backoff.Backoff tracks its
// own attempt count internally, so it's reset whenever the caller starts
// counting attempts over again (attempt == 1).
func defaultBackoff() BackoffFunc {
	b := backoff.NewExponentialBackoff(50*time.Millisecond, 2*time.Second)

	return func(attempt int) time.Duration {
		if attempt <= 1 {
			b.Reset()
		}
		return b.NextInterval()
	}
}
