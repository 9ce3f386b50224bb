// Package storage holds the latest-quote record shared by the persistence
// backends.
package storage

import "polyticker/internal/domain"

// Record is the persisted form of a quote. Unknown values are nil.
type Record struct {
	AssetID   string   `json:"asset_id"`
	Label     string   `json:"label"`
	Mid       *float64 `json:"mid"`
	Bid       *float64 `json:"bid"`
	Ask       *float64 `json:"ask"`
	ChangePct *float64 `json:"change_pct"`
	TsMs      int64    `json:"ts_ms"`
}

func RecordOf(q domain.Quote) Record {
	var ts int64
	if !q.UpdatedAt.IsZero() {
		ts = q.UpdatedAt.UnixMilli()
	}
	return Record{
		AssetID:   q.AssetID,
		Label:     q.DisplayName(),
		Mid:       ptr(q.Mid),
		Bid:       ptr(q.Bid),
		Ask:       ptr(q.Ask),
		ChangePct: ptr(q.Change),
		TsMs:      ts,
	}
}

func ptr(n domain.Number) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Value
	return &v
}
