package feed

import (
	"testing"
	"time"

	"polyticker/internal/application/port"
)

func TestDecodeFrame(t *testing.T) {
	at := time.Unix(1700000000, 0)

	tests := []struct {
		name  string
		frame string
		types []port.MessageType
	}{
		{"object", `{"event_type":"price_change","price_changes":[]}`, []port.MessageType{port.MessagePriceUpdate}},
		{"array of objects", `[{"event_type":"book"},{"event_type":"book"}]`, []port.MessageType{port.MessagePriceUpdate, port.MessagePriceUpdate}},
		{"array with scalar", `[{"price":"1"},7]`, []port.MessageType{port.MessagePriceUpdate, port.MessageRaw}},
		{"empty array", `[]`, []port.MessageType{port.MessageRaw}},
		{"pong text", `PONG`, []port.MessageType{port.MessageRaw}},
		{"truncated", `{"price":`, []port.MessageType{port.MessageRaw}},
		{"scalar", `42`, []port.MessageType{port.MessageRaw}},
		{"empty", ``, []port.MessageType{port.MessageRaw}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeFrame([]byte(tt.frame), at)
			if len(got) != len(tt.types) {
				t.Fatalf("decodeFrame() returned %d messages, want %d", len(got), len(tt.types))
			}
			for i, m := range got {
				if m.Type != tt.types[i] {
					t.Errorf("message %d type = %s, want %s", i, m.Type, tt.types[i])
				}
				if !m.ReceivedAt.Equal(at) {
					t.Errorf("message %d ReceivedAt = %v", i, m.ReceivedAt)
				}
			}
		})
	}
}

func TestDecodeFrame_RawKeepsPayload(t *testing.T) {
	got := decodeFrame([]byte("PONG"), time.Now())
	if got[0].Payload != "PONG" {
		t.Errorf("Payload = %q, want PONG", got[0].Payload)
	}
}

func TestDecodeObject_Fields(t *testing.T) {
	frame := `{
		"event_type":"price_change",
		"market":"0xabc",
		"timestamp":"1757908892351",
		"price_changes":[{"asset_id":"111","price":"0.42","best_bid":"0.41","best_ask":"0.43","side":"BUY","size":"10"}]
	}`
	m, err := decodeObject([]byte(frame), time.Now())
	if err != nil {
		t.Fatalf("decodeObject() error = %v", err)
	}
	if m.EventType != "price_change" || m.Market != "0xabc" {
		t.Errorf("header = %q %q", m.EventType, m.Market)
	}
	if !m.Timestamp.Valid || m.Timestamp.Value != 1757908892351 {
		t.Errorf("Timestamp = %+v", m.Timestamp)
	}
	pc := m.PriceChanges[0]
	if pc.BestBid.Value != 0.41 || pc.BestAsk.Value != 0.43 || pc.Side != "BUY" || pc.Size.Value != 10 {
		t.Errorf("price change = %+v", pc)
	}
}

func TestDecodeObject_BidAskSpellings(t *testing.T) {
	camel, err := decodeObject([]byte(`{"bestBid":0.10,"bestAsk":0.12}`), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	snake, err := decodeObject([]byte(`{"best_bid":"0.10","best_ask":"0.12"}`), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range []port.Message{camel, snake} {
		if !m.BestBid.Valid || m.BestBid.Value != 0.10 || !m.BestAsk.Valid || m.BestAsk.Value != 0.12 {
			t.Errorf("bid/ask = %+v / %+v", m.BestBid, m.BestAsk)
		}
	}
}

func TestDecodeObject_UnparseableNumberIsMissing(t *testing.T) {
	m, err := decodeObject([]byte(`{"price":"n/a","bestBid":"0.2"}`), time.Now())
	if err != nil {
		t.Fatalf("decodeObject() error = %v", err)
	}
	if m.Price.Valid {
		t.Errorf("Price = %+v, want invalid", m.Price)
	}
	if !m.BestBid.Valid {
		t.Errorf("BestBid = %+v, want valid", m.BestBid)
	}
}
