package ticker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"polyticker/internal/application/port"
	"polyticker/internal/domain"
	"polyticker/internal/infrastructure/metrics"
)

// persister writes quotes off the aggregation loop. Pending quotes are keyed by
// asset so a slow store only ever holds the latest quote per asset.
type persister struct {
	repo    port.Repository
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]domain.Quote
	wake    chan struct{}
}

func newPersister(repo port.Repository, timeout time.Duration) *persister {
	return &persister{
		repo:    repo,
		timeout: timeout,
		pending: make(map[string]domain.Quote),
		wake:    make(chan struct{}, 1),
	}
}

// offer never blocks; an older unsaved quote for the same asset is replaced.
func (p *persister) offer(q domain.Quote) {
	p.mu.Lock()
	p.pending[q.AssetID] = q
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *persister) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		}
		for _, q := range p.drain() {
			if ctx.Err() != nil {
				return
			}
			p.write(ctx, q)
		}
	}
}

func (p *persister) drain() []domain.Quote {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return nil
	}
	out := make([]domain.Quote, 0, len(p.pending))
	for _, q := range p.pending {
		out = append(out, q)
	}
	p.pending = make(map[string]domain.Quote)
	return out
}

// 写库失败只计数，不影响行情
func (p *persister) write(ctx context.Context, q domain.Quote) {
	wctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.repo.UpsertQuote(wctx, q); err != nil {
		metrics.StoreErrors.Inc()
		log.Debug().Err(err).Str("asset", q.AssetID).Msg("persist quote failed")
	}
}
