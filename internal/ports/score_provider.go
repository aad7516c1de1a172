package ports

import (
	"context"

	"github.com/alejandrodnm/squarebot/internal/domain"
)

// ScoreProvider fetches the live summary of a game from the external feed.
type ScoreProvider interface {
	// FetchGame returns the parsed summary. Malformed numeric fields are
	// already defaulted to zero.
	FetchGame(ctx context.Context, game domain.Game) (domain.GameFeed, error)
}
