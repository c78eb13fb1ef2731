package retry

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"strings"
	"time"
)

// Backoff describes how often and how patiently an operation is retried.
// Delays double from Base up to Cap; Jitter spreads each delay by that fraction.
type Backoff struct {
	Attempts int
	Base     time.Duration
	Cap      time.Duration
	Jitter   float64
}

// StartupBackoff suits waiting for a dependency that is still booting, such as
// a database container started alongside the mapper.
func StartupBackoff() Backoff {
	return Backoff{
		Attempts: 6,
		Base:     500 * time.Millisecond,
		Cap:      5 * time.Second,
		Jitter:   0.1,
	}
}

// Delay returns the wait before retry number n (zero-based), without jitter.
func (b Backoff) Delay(n int) time.Duration {
	d := b.Base
	for i := 0; i < n && d < b.Cap; i++ {
		d *= 2
	}
	if b.Cap > 0 && d > b.Cap {
		d = b.Cap
	}
	return d
}

func (b Backoff) jittered(n int) time.Duration {
	d := b.Delay(n)
	if b.Jitter <= 0 {
		return d
	}
	spread := float64(d) * b.Jitter
	return d + time.Duration(spread*(2*rand.Float64()-1))
}

// Do calls fn until it succeeds, fails permanently, or Attempts calls have been made.
// Waiting between calls stops early when ctx is done.
func Do[T any](ctx context.Context, b Backoff, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := max(b.Attempts, 1)

	var (
		result T
		err    error
	)
	for n := 0; n < attempts; n++ {
		if result, err = fn(ctx); err == nil || !Transient(err) {
			return result, err
		}
		if n == attempts-1 {
			break
		}

		timer := time.NewTimer(b.jittered(n))
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, ctx.Err()
		case <-timer.C:
		}
	}
	return result, err
}

// classified is implemented by errors that know whether they are worth retrying.
type classified interface {
	IsRetryable() bool
}

var transientMarkers = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"network is unreachable",
	"timeout",
	"timed out",
	"temporary failure",
	"too many connections",
	"the database system is starting up",
}

// Transient reports whether err looks like a passing condition. Errors that
// classify themselves are trusted; otherwise network timeouts and well-known
// connection failures count as transient, and everything else is permanent.
func Transient(err error) bool {
	if err == nil {
		return false
	}

	var c classified
	if errors.As(err, &c) {
		return c.IsRetryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
