package storage

import (
	"context"
	"errors"

	"sjsage522/farewatch/internal/fare"
)

// ErrNoQuote is returned when a route has no stored quote
var ErrNoQuote = errors.New("no quote stored for route")

// QuoteStore keeps the history of fetched quotes
type QuoteStore interface {
	SaveQuote(ctx context.Context, q fare.Quote) error
	LastPricedQuote(ctx context.Context, route string) (*fare.Quote, error)
	Close() error
}
