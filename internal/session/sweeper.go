package session

import (
	"context"
	"fmt"
	"time"

	"github.com/leca/enhance-studio/internal/model"
	"github.com/rs/zerolog/log"
)

// Sweep deletes sessions that have been idle for longer than ttl, together
// with their blobs. Sessions with a request still outstanding are kept.
func (c *Controller) Sweep(ctx context.Context, ttl time.Duration) (int, error) {
	ids, err := c.db.ListIdleSessions(c.now().Add(-ttl))
	if err != nil {
		return 0, fmt.Errorf("listing idle sessions: %w", err)
	}

	removed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		ok, err := c.expire(id)
		if err != nil {
			log.Warn().Err(err).Str("session_id", id).Msg("failed to expire session")
			continue
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

func (c *Controller) expire(id string) (bool, error) {
	unlock := c.lock(id)
	defer unlock()

	st, err := c.db.GetSession(id)
	if err != nil {
		return false, err
	}
	if st.Request == model.StateInFlight {
		return false, nil
	}
	if err := c.store.DeleteSession(id); err != nil {
		return false, err
	}
	if err := c.db.DeleteSession(id); err != nil {
		return false, err
	}
	return true, nil
}

// RecoverInterrupted marks sessions left in flight by a previous process as
// failed. It must run before the server accepts requests.
func (c *Controller) RecoverInterrupted(ctx context.Context) (int, error) {
	ids, err := c.db.ListSessionsInState(model.StateInFlight)
	if err != nil {
		return 0, fmt.Errorf("listing in-flight sessions: %w", err)
	}

	recovered := 0
	for _, id := range ids {
		unlock := c.lock(id)
		st, err := c.load(id)
		if err == nil && st.Request == model.StateInFlight {
			_, err = c.apply(st, SubmitFailed{Message: MsgInterrupted})
			if err == nil {
				recovered++
			}
		}
		unlock()
		if err != nil {
			return recovered, err
		}
	}
	return recovered, nil
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (c *Controller) RunSweeper(ctx context.Context, interval, ttl time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := c.Sweep(ctx, ttl)
			if err != nil {
				log.Error().Err(err).Msg("session sweep failed")
				continue
			}
			if n > 0 {
				log.Info().Int("removed", n).Msg("expired idle sessions")
			}
		}
	}
}
