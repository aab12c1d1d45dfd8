package session

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// defaultSweepBatch applies when Config.SweepBatch is unset.
const defaultSweepBatch = 500

// Sweep completes abandoned sessions whose timer has run out, synthesizing
// summaries from their recorded answers. It returns how many were ended.
// Failures for individual sessions do not stop the sweep; they are joined.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	batch := m.cfg.SweepBatch
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	expired, err := m.store.ListExpired(ctx, m.clock.Now(), batch)
	if err != nil {
		return 0, fmt.Errorf("list expired sessions: %w", err)
	}

	ended := 0
	var errs []error
	for _, s := range expired {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		ok, err := m.Expire(ctx, s.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("expire %s: %w", s.ID, err))
			continue
		}
		if ok {
			ended++
		}
	}

	if ended > 0 {
		m.logger.Info("expired sessions swept", "count", ended)
	}
	return ended, errors.Join(errs...)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil {
				m.logger.Error("session sweep failed", "error", err)
			}
		}
	}
}
