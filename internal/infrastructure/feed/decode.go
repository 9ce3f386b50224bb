package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"polyticker/internal/application/port"
	"polyticker/internal/domain"
)

var errNotObject = errors.New("frame is not a json object")

type subscribeRequest struct {
	Type     string   `json:"type"`
	AssetIDs []string `json:"assets_ids"`
}

type wireMessage struct {
	EventType    string             `json:"event_type"`
	Market       string             `json:"market"`
	Timestamp    domain.Number      `json:"timestamp"`
	PriceChanges []port.PriceChange `json:"price_changes"`
	Price        domain.Number      `json:"price"`
	BestBid      domain.Number      `json:"bestBid"`
	BestAsk      domain.Number      `json:"bestAsk"`
	BestBidSnake domain.Number      `json:"best_bid"`
	BestAskSnake domain.Number      `json:"best_ask"`
}

// decodeFrame turns one inbound frame into normalized messages. Objects
// yield one price_update, arrays one per element; anything that does not
// decode is passed on as raw so no frame is ever dropped.
func decodeFrame(data []byte, receivedAt time.Time) []port.Message {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []port.Message{rawMessage(data, receivedAt)}
	}

	switch trimmed[0] {
	case '{':
		if msg, err := decodeObject(trimmed, receivedAt); err == nil {
			return []port.Message{msg}
		}
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err == nil && len(items) > 0 {
			out := make([]port.Message, 0, len(items))
			for _, item := range items {
				msg, err := decodeObject(item, receivedAt)
				if err != nil {
					out = append(out, rawMessage(item, receivedAt))
					continue
				}
				out = append(out, msg)
			}
			return out
		}
	}
	return []port.Message{rawMessage(data, receivedAt)}
}

func decodeObject(b []byte, receivedAt time.Time) (port.Message, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return port.Message{}, errNotObject
	}
	var w wireMessage
	if err := json.Unmarshal(b, &w); err != nil {
		return port.Message{}, err
	}
	return port.Message{
		Type:         port.MessagePriceUpdate,
		EventType:    w.EventType,
		Market:       w.Market,
		Timestamp:    w.Timestamp,
		PriceChanges: w.PriceChanges,
		Price:        w.Price,
		BestBid:      w.BestBid.Or(w.BestBidSnake),
		BestAsk:      w.BestAsk.Or(w.BestAskSnake),
		ReceivedAt:   receivedAt,
	}, nil
}

func rawMessage(b []byte, receivedAt time.Time) port.Message {
	return port.Message{
		Type:       port.MessageRaw,
		Payload:    string(b),
		ReceivedAt: receivedAt,
	}
}

func errorMessage(err error) port.Message {
	return port.Message{
		Type:       port.MessageError,
		Error:      err.Error(),
		ReceivedAt: time.Now(),
	}
}
