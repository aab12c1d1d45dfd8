package rating

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/lingo/internal/domain"
	"github.com/felixgeelhaar/lingo/internal/elo"
)

// CommitFunc persists an ApplyRequest. The default commit is Store.ApplyDeltas;
// the answer processor supplies one that also inserts the answer row.
type CommitFunc func(ctx context.Context, req ApplyRequest) (Applied, error)

// UpdaterConfig controls the conflict retry loop.
type UpdaterConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Logger       *slog.Logger
}

// DefaultUpdaterConfig returns the retry defaults.
func DefaultUpdaterConfig() UpdaterConfig {
	return UpdaterConfig{
		MaxAttempts:  5,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     200 * time.Millisecond,
	}
}

// UpdateRequest asks for one outcome to be applied to a user/item pair.
type UpdateRequest struct {
	UserKey domain.SkillKey
	ItemID  string
	Outcome float64
	// Frozen records the update with zero deltas. Versions still advance so
	// the write is serialized with concurrent updates.
	Frozen bool
	At     time.Time
}

// Updater runs read, compute and apply with bounded retries on conflict.
type Updater struct {
	store   Store
	engine  elo.Engine
	retrier retry.Retry[Applied]
	cfg     UpdaterConfig
	logger  *slog.Logger
}

// NewUpdater creates an updater over store using engine.
func NewUpdater(store Store, engine elo.Engine, cfg UpdaterConfig) *Updater {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultUpdaterConfig().MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultUpdaterConfig().InitialDelay
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Updater{
		store:  store,
		engine: engine,
		cfg:    cfg,
		logger: logger,
		retrier: retry.New[Applied](retry.Config{
			MaxAttempts:   cfg.MaxAttempts,
			InitialDelay:  cfg.InitialDelay,
			MaxDelay:      cfg.MaxDelay,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
			IsRetryable: func(err error) bool {
				return errors.Is(err, domain.ErrConflict)
			},
		}),
	}
}

// Engine returns the Elo engine used for deltas.
func (u *Updater) Engine() elo.Engine {
	return u.engine
}

// Store returns the underlying rating store.
func (u *Updater) Store() Store {
	return u.store
}

// Apply updates ratings through Store.ApplyDeltas.
func (u *Updater) Apply(ctx context.Context, req UpdateRequest) (Applied, error) {
	return u.Update(ctx, req, u.store.ApplyDeltas)
}

// Update reads both ratings, computes deltas and commits them. Conflicts are
// retried with exponential backoff; exhaustion yields
// domain.ErrRatingUpdateFailed. Other errors are returned as they are.
func (u *Updater) Update(ctx context.Context, req UpdateRequest, commit CommitFunc) (Applied, error) {
	if req.At.IsZero() {
		req.At = time.Now().UTC()
	}

	attempts := 0
	var lastErr error

	applied, err := u.retrier.Do(ctx, func(ctx context.Context) (Applied, error) {
		attempts++
		out, err := u.attempt(ctx, req, commit)
		lastErr = err
		if errors.Is(err, domain.ErrConflict) {
			u.logger.Debug("rating conflict",
				"user_key", req.UserKey.String(),
				"item_id", req.ItemID,
				"attempt", attempts,
			)
		}
		return out, err
	})
	if err == nil {
		return applied, nil
	}

	if lastErr == nil {
		lastErr = err
	}
	if errors.Is(lastErr, domain.ErrConflict) {
		u.logger.Warn("rating update exhausted retries",
			"user_key", req.UserKey.String(),
			"item_id", req.ItemID,
			"attempts", attempts,
		)
		return Applied{}, fmt.Errorf("%w after %d attempts: %v", domain.ErrRatingUpdateFailed, attempts, lastErr)
	}
	if errors.Is(lastErr, context.DeadlineExceeded) {
		return Applied{}, fmt.Errorf("%w: %v", domain.ErrTimeout, lastErr)
	}
	return Applied{}, lastErr
}

func (u *Updater) attempt(ctx context.Context, req UpdateRequest, commit CommitFunc) (Applied, error) {
	user, err := u.store.GetUserRating(ctx, req.UserKey)
	if err != nil {
		return Applied{}, fmt.Errorf("get user rating: %w", err)
	}
	item, err := u.store.GetItemRating(ctx, req.ItemID)
	if err != nil {
		return Applied{}, fmt.Errorf("get item rating: %w", err)
	}

	var userDelta, itemDelta float64
	if !req.Frozen {
		userDelta, itemDelta = u.engine.ComputeDeltas(user.Value, item.Value, req.Outcome)
	}

	return commit(ctx, ApplyRequest{
		UserKey:     req.UserKey,
		UserDelta:   userDelta,
		UserVersion: user.Version,
		ItemID:      req.ItemID,
		ItemDelta:   itemDelta,
		ItemVersion: item.Version,
		Min:         u.engine.Min,
		Max:         u.engine.Max,
		At:          req.At,
	})
}
