package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-gateway-go/internal/config"
)

// ExpiredCleaner removes sessions that never finished pairing.
type ExpiredCleaner interface {
	CleanExpired(ctx context.Context) (int, error)
}

type CleanupJob struct {
	sessions ExpiredCleaner
	interval time.Duration
	done     chan struct{}
	stopOnce sync.Once
}

func NewCleanupJob(sessions ExpiredCleaner, interval time.Duration) *CleanupJob {
	return &CleanupJob{
		sessions: sessions,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	j.stopOnce.Do(func() {
		close(j.done)
		log.Info().Msg("cleanup job stopped")
	})
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), config.CleanupRunTimeout)
	defer cancel()

	j.runCleanup(ctx, "expired sessions", j.sessions.CleanExpired)
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int("count", count).Msgf("cleaned up %s", name)
	}
}
