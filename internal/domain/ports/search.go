package ports

import (
	"context"

	"peerstream/internal/domain"
)

// SearchProvider queries one external torrent index.
type SearchProvider interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error)
}
