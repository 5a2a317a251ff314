package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingCleaner struct {
	calls atomic.Int32
	err   error
}

func (c *countingCleaner) CleanExpired(context.Context) (int, error) {
	c.calls.Add(1)
	return 2, c.err
}

func TestCleanupJob(t *testing.T) {
	t.Run("creates job with correct interval", func(t *testing.T) {
		job := NewCleanupJob(nil, 5*time.Minute)

		assert.NotNil(t, job)
		assert.Equal(t, 5*time.Minute, job.interval)
	})

	t.Run("runs cleanup on start", func(t *testing.T) {
		cleaner := &countingCleaner{}
		job := NewCleanupJob(cleaner, time.Hour)

		job.Start()
		defer job.Stop()

		assert.Eventually(t, func() bool { return cleaner.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	})

	t.Run("runs on every tick", func(t *testing.T) {
		cleaner := &countingCleaner{}
		job := NewCleanupJob(cleaner, 10*time.Millisecond)

		job.Start()
		defer job.Stop()

		assert.Eventually(t, func() bool { return cleaner.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	})

	t.Run("keeps running after errors", func(t *testing.T) {
		cleaner := &countingCleaner{err: errors.New("database unavailable")}
		job := NewCleanupJob(cleaner, 10*time.Millisecond)

		job.Start()
		defer job.Stop()

		assert.Eventually(t, func() bool { return cleaner.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	})

	t.Run("stop is idempotent", func(t *testing.T) {
		job := NewCleanupJob(&countingCleaner{}, time.Hour)
		job.Start()
		job.Stop()
		job.Stop()
	})
}
