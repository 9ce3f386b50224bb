package domain

import "time"

// Quote is the display record kept per asset.
type Quote struct {
	AssetID   string
	Label     string
	Mid       Number
	Bid       Number
	Ask       Number
	Change    Number // percent vs. the previous mid; invalid until a baseline exists
	UpdatedAt time.Time
}

// DisplayName is the label, falling back to the asset id.
func (q Quote) DisplayName() string {
	if q.Label != "" {
		return q.Label
	}
	return q.AssetID
}
