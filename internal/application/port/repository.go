package port

import (
	"context"

	"polyticker/internal/domain"
)

// Repository keeps the latest quote per asset. History is never stored.
type Repository interface {
	UpsertQuote(ctx context.Context, q domain.Quote) error

	// Connection management
	Close() error
}
