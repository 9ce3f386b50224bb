package ticker

import (
	"context"

	"polyticker/internal/application/port"
	"polyticker/internal/domain"
)

type noopRepo struct{}

func NewNoopRepo() port.Repository { return &noopRepo{} }

func (n *noopRepo) UpsertQuote(ctx context.Context, q domain.Quote) error { return nil }
func (n *noopRepo) Close() error                                          { return nil }
