// Package retry runs best-effort remote writes under a bounded attempt budget.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Linear waits n*Unit before the n-th retry.
type Linear struct {
	Unit time.Duration
	n    int
}

// NextBackOff implements backoff.BackOff.
func (l *Linear) NextBackOff() time.Duration {
	l.n++
	return time.Duration(l.n) * l.Unit
}

// Reset implements backoff.BackOff.
func (l *Linear) Reset() { l.n = 0 }

// Policy bounds how often an operation is attempted.
type Policy struct {
	Attempts int
	Unit     time.Duration
}

// Notify is called after every failed attempt that will be retried.
type Notify func(err error, wait time.Duration)

// Permanent marks err so Do stops retrying immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do calls op until it succeeds, returns a permanent error, the attempt budget
// runs out or ctx is done. The n-th retry waits n*Unit; the final failure is
// returned at once, without a trailing wait.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error, notify Notify) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(&Linear{Unit: p.Unit}, uint64(attempts-1)),
		ctx,
	)
	var n backoff.Notify
	if notify != nil {
		n = backoff.Notify(notify)
	}
	return backoff.RetryNotify(func() error { return op(ctx) }, b, n)
}
