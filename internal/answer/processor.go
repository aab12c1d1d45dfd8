package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/lingo/internal/domain"
	"github.com/felixgeelhaar/lingo/internal/rating"
	"github.com/felixgeelhaar/lingo/internal/session"
	"github.com/felixgeelhaar/lingo/internal/storage"
	"golang.org/x/sync/singleflight"
)

// Config holds processor settings.
type Config struct {
	// MinLatency marks faster answers as suspicious. Zero disables the check.
	MinLatency time.Duration
	// Timeout bounds one submission once it runs detached from the caller.
	// Zero uses storage.DefaultTimeout.
	Timeout    time.Duration
	Clock      domain.Clock
	Events     domain.EventPublisher
	Seen       SeenRecorder
	Logger     *slog.Logger
}

// Processor handles one submitted answer end to end.
type Processor struct {
	sessions SessionAcceptor
	items    ItemSource
	updater  *rating.Updater
	ledger   Ledger
	cfg      Config
	clock    domain.Clock
	events   domain.EventPublisher
	logger   *slog.Logger
	group    singleflight.Group
}

// NewProcessor creates a new answer processor
func NewProcessor(sessions SessionAcceptor, items ItemSource, updater *rating.Updater, ledger Ledger, cfg Config) *Processor {
	if cfg.Clock == nil {
		cfg.Clock = domain.SystemClock{}
	}
	if cfg.Events == nil {
		cfg.Events = domain.NopPublisher{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = storage.DefaultTimeout
	}
	return &Processor{
		sessions: sessions,
		items:    items,
		updater:  updater,
		ledger:   ledger,
		cfg:      cfg,
		clock:    cfg.Clock,
		events:   cfg.Events,
		logger:   cfg.Logger,
	}
}

// Submit validates and records an answer. Resubmitting an identical answer id
// returns the stored result without touching ratings; the same id with a
// different payload is a conflict. On failure nothing is written.
func (p *Processor) Submit(ctx context.Context, sub Submission) (*Result, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	normalize(&sub)

	v, err, shared := p.group.Do(sub.AnswerID, func() (any, error) {
		// Concurrent duplicates wait on this call, so it must outlive the
		// caller that started it.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.Timeout)
		defer cancel()
		return p.process(ctx, sub)
	})
	if err != nil {
		return nil, err
	}

	res := v.(*Result)
	if shared {
		// Concurrent duplicates receive the same row; only the leader's
		// payload was checked, so compare again.
		if !res.Answer.SameSubmission(sub.asAnswer()) {
			return nil, fmt.Errorf("answer %s: %w", sub.AnswerID, domain.ErrConflict)
		}
	}
	return res, nil
}

func (p *Processor) process(ctx context.Context, sub Submission) (*Result, error) {
	if res, err := p.replay(ctx, sub); err == nil || !errors.Is(err, domain.ErrAnswerNotFound) {
		return res, err
	}

	var stored *domain.Answer
	err := p.sessions.Accept(ctx, sub.SessionID, sub.UserID, func(ctx context.Context, sess *session.Session) error {
		if err := sub.checkSession(sess); err != nil {
			return err
		}
		item, err := p.items.GetItem(ctx, sub.ItemID)
		if err != nil {
			return err
		}

		now := p.clock.Now()
		ans := sub.toAnswer(sess, item, now)
		if p.suspicious(ans) {
			ans.Suspicious = true
		}

		_, err = p.updater.Update(ctx, rating.UpdateRequest{
			UserKey: sess.SkillKey(),
			ItemID:  item.ID,
			Outcome: ans.Outcome(),
			Frozen:  ans.Suspicious,
			At:      now,
		}, func(ctx context.Context, req rating.ApplyRequest) (rating.Applied, error) {
			return p.ledger.Commit(ctx, req, ans)
		})
		if err != nil {
			return err
		}
		stored = ans
		return nil
	})

	if errors.Is(err, domain.ErrDuplicateAnswer) {
		// Another node recorded the id between our lookup and commit.
		return p.replay(ctx, sub)
	}
	if err != nil {
		return nil, err
	}

	p.afterCommit(ctx, stored)
	return resultFor(stored, false), nil
}

// replay returns the stored result for an already recorded answer id.
func (p *Processor) replay(ctx context.Context, sub Submission) (*Result, error) {
	existing, err := p.ledger.GetAnswer(ctx, sub.AnswerID)
	if err != nil {
		return nil, err
	}
	if !existing.SameSubmission(sub.asAnswer()) {
		return nil, fmt.Errorf("answer %s recorded with a different payload: %w", sub.AnswerID, domain.ErrConflict)
	}
	p.logger.Debug("answer replayed", "answer_id", sub.AnswerID, "session_id", sub.SessionID)
	return resultFor(existing, true), nil
}

func (p *Processor) suspicious(a *domain.Answer) bool {
	if a.Suspicious {
		return true
	}
	return p.cfg.MinLatency > 0 && time.Duration(a.LatencyMs)*time.Millisecond < p.cfg.MinLatency
}

// afterCommit runs side effects that must not undo a committed answer.
func (p *Processor) afterCommit(ctx context.Context, a *domain.Answer) {
	p.logger.Info("answer recorded",
		"answer_id", a.ID,
		"session_id", a.SessionID,
		"item_id", a.ItemID,
		"correct", a.Correct,
		"suspicious", a.Suspicious,
		"elo_user_delta", a.EloUserDelta,
	)

	if p.cfg.Seen != nil {
		if err := p.cfg.Seen.Record(ctx, a.UserID, a.ItemID); err != nil {
			p.logger.Warn("failed to record seen item", "user_id", a.UserID, "item_id", a.ItemID, "error", err)
		}
	}

	event := domain.NewEvent(domain.EventAnswerRecorded, a.SessionID, a.UserID, p.clock.Now(), a)
	if err := p.events.Publish(ctx, event); err != nil {
		p.logger.Error("failed to publish event",
			"type", event.Type,
			"answer_id", a.ID,
			"error", err,
		)
	}
}

// normalize puts timestamps in the precision every backend can round-trip.
func normalize(sub *Submission) {
	if !sub.ShownAt.IsZero() {
		sub.ShownAt = sub.ShownAt.UTC().Truncate(time.Microsecond)
	}
	if !sub.AnsweredAt.IsZero() {
		sub.AnsweredAt = sub.AnsweredAt.UTC().Truncate(time.Microsecond)
	}
}
