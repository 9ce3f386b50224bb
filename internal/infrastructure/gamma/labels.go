package gamma

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// GetMarket fetches one market by id.
func (c *Client) GetMarket(ctx context.Context, marketID string) (*Market, error) {
	body, err := c.doWithRetry(ctx, "/markets/"+url.PathEscape(marketID), nil)
	if err != nil {
		return nil, err
	}
	var m Market
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("unmarshal market %s: %w", marketID, err)
	}
	return &m, nil
}

type LabelEntry struct {
	AssetID  string `json:"assetId"`
	Label    string `json:"label"`
	MarketID string `json:"marketId,omitempty"`
}

// LabelCache maps asset ids to "<slug> <outcome>" labels. It is filled by
// Preload and read concurrently by the feed pipeline.
type LabelCache struct {
	client      *Client
	concurrency int

	mu      sync.RWMutex
	labels  map[string]string
	markets map[string]string
}

func NewLabelCache(client *Client, concurrency int) *LabelCache {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &LabelCache{
		client:      client,
		concurrency: concurrency,
		labels:      make(map[string]string),
		markets:     make(map[string]string),
	}
}

// Label never fails: unresolved ids are echoed back.
func (lc *LabelCache) Label(assetID string) string {
	lc.mu.RLock()
	l, ok := lc.labels[assetID]
	lc.mu.RUnlock()
	if ok && l != "" {
		return l
	}
	return assetID
}

// MarketOf returns the market an asset was loaded from.
func (lc *LabelCache) MarketOf(assetID string) (string, bool) {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	m, ok := lc.markets[assetID]
	return m, ok
}

// Dump returns every resolved label sorted by asset id.
func (lc *LabelCache) Dump() []LabelEntry {
	lc.mu.RLock()
	out := make([]LabelEntry, 0, len(lc.labels))
	for id, l := range lc.labels {
		out = append(out, LabelEntry{AssetID: id, Label: l, MarketID: lc.markets[id]})
	}
	lc.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out
}

// Preload resolves labels for the given markets. Per-market failures are
// logged and skipped; it returns once every market has been tried or ctx ends.
func (lc *LabelCache) Preload(ctx context.Context, marketIDs []string) {
	if len(marketIDs) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lc.concurrency)

	for _, id := range marketIDs {
		id := strings.TrimSpace(id)
		if id == "" {
			continue
		}
		g.Go(func() error {
			m, err := lc.client.GetMarket(gctx, id)
			if err != nil {
				log.Debug().Err(err).Str("market", id).Msg("label preload failed")
				return nil
			}
			lc.store(id, m)
			return nil
		})
	}
	_ = g.Wait()

	log.Debug().Int("markets", len(marketIDs)).Int("labels", lc.size()).Msg("labels preloaded")
}

func (lc *LabelCache) store(marketID string, m *Market) {
	title := m.Title()

	lc.mu.Lock()
	defer lc.mu.Unlock()
	for i, tid := range m.TokenIDs() {
		label := title
		if outcome := strings.TrimSpace(m.OutcomeAt(i)); outcome != "" {
			label = strings.TrimSpace(title + " " + outcome)
		}
		if label == "" {
			continue
		}
		lc.labels[tid] = label
		lc.markets[tid] = marketID
	}
}

func (lc *LabelCache) size() int {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return len(lc.labels)
}
