package port

import (
	"context"
	"time"

	"polyticker/internal/domain"
)

type MessageType string

const (
	MessagePriceUpdate MessageType = "price_update"
	MessageRaw         MessageType = "raw"
	MessageError       MessageType = "error"
)

// PriceChange is one entry of a price_changes batch.
type PriceChange struct {
	AssetID string        `json:"asset_id"`
	Price   domain.Number `json:"price"`
	Size    domain.Number `json:"size"`
	Side    string        `json:"side"`
	BestBid domain.Number `json:"best_bid"`
	BestAsk domain.Number `json:"best_ask"`
}

// Message is the normalized unit produced by a feed connection.
// AssetID and Label are filled in by the manager before delivery.
type Message struct {
	Type    MessageType
	AssetID string
	Label   string

	EventType    string
	Market       string
	Timestamp    domain.Number // epoch ms as sent by the feed
	PriceChanges []PriceChange // never split per asset
	Price        domain.Number
	BestBid      domain.Number
	BestAsk      domain.Number

	Payload    string // MessageRaw: undecodable frame text
	Error      string // MessageError: failure description
	ReceivedAt time.Time
}

type Handler func(Message)

// LabelSource resolves human readable labels. Implementations must not block
// and must return the asset id itself when nothing is known.
type LabelSource interface {
	Label(assetID string) string
}

type FeedStats struct {
	Tracked int
	Open    int
}

// PriceFeed is the per-asset feed fan-in consumed by the ticker.
type PriceFeed interface {
	OnMessage(h Handler)
	StartAll(ctx context.Context, assetIDs []string)
	StopAll()
	Stats() FeedStats
}
