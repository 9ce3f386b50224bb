package composite

import (
	"context"
	"errors"

	"polyticker/internal/application/port"
	"polyticker/internal/domain"
)

// Repo fans every write out to all backends.
type Repo struct {
	repos []port.Repository
}

func New(repos ...port.Repository) *Repo {
	// nil repos are allowed; filter in constructor for safety
	out := make([]port.Repository, 0, len(repos))
	for _, r := range repos {
		if r != nil {
			out = append(out, r)
		}
	}
	return &Repo{repos: out}
}

func (r *Repo) Len() int { return len(r.repos) }

// UpsertQuote writes to every backend; the first error is returned.
func (r *Repo) UpsertQuote(ctx context.Context, q domain.Quote) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.UpsertQuote(ctx, q); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) Close() error {
	var errs []error
	for i := len(r.repos) - 1; i >= 0; i-- {
		if err := r.repos[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ port.Repository = (*Repo)(nil)
