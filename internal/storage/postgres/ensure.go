package postgres

import (
	"github.com/felixgeelhaar/lingo/internal/answer"
	"github.com/felixgeelhaar/lingo/internal/deck"
	"github.com/felixgeelhaar/lingo/internal/rating"
	"github.com/felixgeelhaar/lingo/internal/session"
)

// Ensure Postgres stores implement the storage interfaces.
var (
	_ rating.Store         = (*RatingStore)(nil)
	_ deck.RatingReader    = (*RatingStore)(nil)
	_ answer.Ledger        = (*AnswerStore)(nil)
	_ session.AnswerLister = (*AnswerStore)(nil)
	_ session.Store        = (*SessionStore)(nil)
	_ answer.ItemSource    = (*ItemStore)(nil)
	_ deck.Catalog         = (*ItemStore)(nil)
)
