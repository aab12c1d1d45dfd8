package elo

import "errors"

var (
	errInvalidK     = errors.New("elo: k-factors must be positive")
	errInvalidRange = errors.New("elo: min must be below max")
)
