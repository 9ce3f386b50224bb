package gamma

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

var (
	ErrNoEvents = errors.New("no events returned")
	ErrNoTokens = errors.New("no token ids found in markets")
)

// Discovery is the result of asset discovery.
type Discovery struct {
	AssetIDs      []string          // ordered, unique
	MarketByAsset map[string]string // asset id -> market id
}

// MarketIDs returns the distinct market ids in asset order.
func (d *Discovery) MarketIDs() []string {
	seen := make(map[string]struct{}, len(d.MarketByAsset))
	out := make([]string, 0, len(d.MarketByAsset))
	for _, id := range d.AssetIDs {
		m, ok := d.MarketByAsset[id]
		if !ok {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// FetchTargetAssets lists the newest open events and collects the outcome
// token ids of their markets.
func (c *Client) FetchTargetAssets(ctx context.Context) (*Discovery, error) {
	query := url.Values{}
	query.Set("order", "id")
	query.Set("ascending", "false")
	query.Set("closed", "false")
	query.Set("limit", strconv.Itoa(c.eventsLimit))

	body, err := c.doWithRetry(ctx, "/events", query)
	if err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}

	events, err := decodeEvents(body)
	if err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return parseDiscovery(events)
}

// decodeEvents accepts either a bare array or {"data": [...]}.
func decodeEvents(body []byte) ([]Event, error) {
	var events []Event
	if err := json.Unmarshal(body, &events); err == nil {
		return events, nil
	}
	var wrapped struct {
		Data []Event `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Data, nil
}

func parseDiscovery(events []Event) (*Discovery, error) {
	if len(events) == 0 {
		return nil, ErrNoEvents
	}

	d := &Discovery{MarketByAsset: make(map[string]string)}
	for _, ev := range events {
		for _, m := range ev.Markets {
			marketID := string(m.ID)
			if marketID == "" {
				continue
			}
			for _, tid := range m.TokenIDs() {
				if _, ok := d.MarketByAsset[tid]; !ok {
					d.AssetIDs = append(d.AssetIDs, tid)
				}
				d.MarketByAsset[tid] = marketID
			}
		}
	}

	if len(d.AssetIDs) == 0 {
		return nil, ErrNoTokens
	}
	return d, nil
}
