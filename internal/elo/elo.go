// Package elo implements the Elo expected-score rule used to move learner and
// item ratings after each answer.
package elo

import "math"

// Default engine parameters.
const (
	DefaultK   = 20.0
	DefaultMin = 100.0
	DefaultMax = 3000.0

	scale = 400.0
)

// Expected returns the probability that a learner rated user answers an item
// rated item correctly.
func Expected(user, item float64) float64 {
	return 1 / (1 + math.Pow(10, (item-user)/scale))
}

// Engine computes rating deltas with configurable K-factors and clamping.
// The zero value is not usable; use DefaultEngine or fill every field.
type Engine struct {
	KUser float64
	KItem float64
	Min   float64
	Max   float64
}

// DefaultEngine returns an engine with symmetric K-factors of 20 and ratings
// clamped to [100, 3000].
func DefaultEngine() Engine {
	return Engine{KUser: DefaultK, KItem: DefaultK, Min: DefaultMin, Max: DefaultMax}
}

// ComputeDeltas returns the user and item rating changes for an outcome in
// [0, 1]. The item moves in the opposite direction of the learner.
func (e Engine) ComputeDeltas(user, item, outcome float64) (userDelta, itemDelta float64) {
	outcome = math.Max(0, math.Min(1, outcome))
	exp := Expected(user, item)
	userDelta = e.KUser * (outcome - exp)
	itemDelta = -e.KItem * (outcome - exp)
	return userDelta, itemDelta
}

// Apply adds delta to current and clamps the result.
func (e Engine) Apply(current, delta float64) float64 {
	return Clamp(current+delta, e.Min, e.Max)
}

// Validate reports whether the engine parameters are usable.
func (e Engine) Validate() error {
	if e.KUser <= 0 || e.KItem <= 0 {
		return errInvalidK
	}
	if e.Min >= e.Max {
		return errInvalidRange
	}
	return nil
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
