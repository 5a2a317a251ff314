package session

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ReconnectPolicy builds the delay schedule for one connection. A schedule
// returning backoff.Stop ends the session as if it had been logged out.
type ReconnectPolicy func() backoff.BackOff

// ConstantReconnect retries forever with a fixed delay.
func ConstantReconnect(delay time.Duration) ReconnectPolicy {
	return func() backoff.BackOff {
		return backoff.NewConstantBackOff(delay)
	}
}

// BoundedReconnect gives up after maxAttempts consecutive failures.
func BoundedReconnect(delay time.Duration, maxAttempts uint64) ReconnectPolicy {
	return func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), maxAttempts)
	}
}
