package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-gateway-go/internal/model"
)

type RestoreReport struct {
	Restored int `json:"restored"`
	Stale    int `json:"stale"`
	Failed   int `json:"failed"`
}

type restoreResult string

const (
	restoreRestored restoreResult = "restored"
	restoreStale    restoreResult = "stale"
	restoreFailed   restoreResult = "failed"
)

// RestoreActiveSessions reconnects every session the store lists as
// authenticated. Sessions are restored independently on a bounded pool; a
// failure only marks that session unauthenticated.
func (c *Controller) RestoreActiveSessions(ctx context.Context, workers int) (RestoreReport, error) {
	var report RestoreReport

	tokens, err := c.store.ListActiveTokens(ctx)
	if err != nil {
		return report, fmt.Errorf("list active sessions: %w", err)
	}
	if len(tokens) == 0 {
		return report, nil
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return report, fmt.Errorf("create restore pool: %w", err)
	}
	defer pool.Release()

	log.Info().Int("count", len(tokens)).Int("workers", workers).Msg("restoring active sessions")

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	record := func(res restoreResult) {
		c.metrics.Restoration(string(res))
		mu.Lock()
		defer mu.Unlock()
		switch res {
		case restoreRestored:
			report.Restored++
		case restoreStale:
			report.Stale++
		case restoreFailed:
			report.Failed++
		}
	}

	for _, token := range tokens {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			record(c.restoreOne(ctx, token))
		})
		if err != nil {
			wg.Done()
			log.Error().Err(err).Str("sessionId", token).Msg("failed to schedule restoration")
			c.persist(token, model.SessionStatusUnauthenticated, nil)
			record(restoreFailed)
		}
	}
	wg.Wait()

	log.Info().
		Int("restored", report.Restored).
		Int("stale", report.Stale).
		Int("failed", report.Failed).
		Msg("session restoration completed")
	return report, nil
}

func (c *Controller) restoreOne(ctx context.Context, token string) restoreResult {
	exists, err := c.creds.Exists(token)
	if err != nil {
		log.Error().Err(err).Str("sessionId", token).Msg("failed to inspect credentials")
		c.persist(token, model.SessionStatusUnauthenticated, nil)
		return restoreFailed
	}
	if !exists {
		log.Warn().Str("sessionId", token).Msg("credentials missing, marking session unauthenticated")
		c.persist(token, model.SessionStatusUnauthenticated, nil)
		return restoreStale
	}

	if _, err := c.CreateSession(ctx, token); err != nil {
		log.Error().Err(err).Str("sessionId", token).Msg("failed to restore session")
		c.persist(token, model.SessionStatusUnauthenticated, nil)
		return restoreFailed
	}

	log.Info().Str("sessionId", token).Msg("restored session")
	return restoreRestored
}
