package memory

import (
	"github.com/felixgeelhaar/lingo/internal/answer"
	"github.com/felixgeelhaar/lingo/internal/deck"
	"github.com/felixgeelhaar/lingo/internal/rating"
	"github.com/felixgeelhaar/lingo/internal/session"
)

// Ensure the memory store implements the storage interfaces.
var (
	_ rating.Store         = (*Store)(nil)
	_ answer.Ledger        = (*Store)(nil)
	_ answer.ItemSource    = (*Store)(nil)
	_ session.Store        = (*Store)(nil)
	_ session.AnswerLister = (*Store)(nil)
	_ deck.Catalog         = (*Store)(nil)
	_ deck.RatingReader    = (*Store)(nil)
)
