// Package rating holds the rating store contract and the update loop that
// applies Elo deltas with optimistic concurrency.
package rating

import (
	"context"
	"time"

	"github.com/felixgeelhaar/lingo/internal/domain"
	"github.com/felixgeelhaar/lingo/internal/elo"
)

// Store persists per-skill user ratings and per-item difficulty ratings.
//
// Reads of absent rows return the default rating with Version 0 and do not
// persist anything. ApplyDeltas must be atomic per user key and per item id
// and return domain.ErrConflict when either observed version is stale.
type Store interface {
	GetUserRating(ctx context.Context, key domain.SkillKey) (domain.Rating, error)
	GetItemRating(ctx context.Context, itemID string) (domain.Rating, error)
	ApplyDeltas(ctx context.Context, req ApplyRequest) (Applied, error)
}

// ApplyRequest describes one compare-and-swap update of a user/item pair.
type ApplyRequest struct {
	UserKey     domain.SkillKey
	UserDelta   float64
	UserVersion int64

	ItemID      string
	ItemDelta   float64
	ItemVersion int64

	Min float64
	Max float64
	At  time.Time
}

// NextUser returns the clamped user rating after the delta.
func (r ApplyRequest) NextUser(current float64) float64 {
	return elo.Clamp(current+r.UserDelta, r.Min, r.Max)
}

// NextItem returns the clamped item rating after the delta.
func (r ApplyRequest) NextItem(current float64) float64 {
	return elo.Clamp(current+r.ItemDelta, r.Min, r.Max)
}

// Applied is the result of a successful update. Deltas are the effective
// changes after clamping.
type Applied struct {
	User      domain.Rating
	Item      domain.Rating
	UserDelta float64
	ItemDelta float64
}

// Stamp copies the effective rating changes onto the answer.
func (a Applied) Stamp(ans *domain.Answer) {
	ans.EloUserDelta = a.UserDelta
	ans.EloItemDelta = a.ItemDelta
	ans.UserRatingAfter = a.User.Value
	ans.ItemRatingAfter = a.Item.Value
}

// Resolve computes the new ratings for a request against the current rows
// and checks the observed versions. Backends call it while holding their
// locks or inside their transaction.
func Resolve(req ApplyRequest, user, item domain.Rating) (Applied, error) {
	if user.Version != req.UserVersion || item.Version != req.ItemVersion {
		return Applied{}, domain.ErrConflict
	}

	nextUser := req.NextUser(user.Value)
	nextItem := req.NextItem(item.Value)

	return Applied{
		User: domain.Rating{
			Value:      nextUser,
			Deviation:  user.Deviation,
			Version:    user.Version + 1,
			LastUpdate: req.At,
		},
		Item: domain.Rating{
			Value:      nextItem,
			Deviation:  item.Deviation,
			Version:    item.Version + 1,
			LastUpdate: req.At,
		},
		UserDelta: nextUser - user.Value,
		ItemDelta: nextItem - item.Value,
	}, nil
}
