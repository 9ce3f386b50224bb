package ticker

import (
	"sort"
	"strings"
	"sync"
	"time"

	"polyticker/internal/application/port"
	"polyticker/internal/domain"
)

// timestamps below this are taken as epoch seconds
const epochMillisFloor = 1e12

// State 保存每个资产最新的展示记录
// 只由 Service 的事件循环写入；加锁是为了让渲染和测试可以并发读取快照
type State struct {
	mu     sync.Mutex
	quotes map[string]*domain.Quote
	now    func() time.Time
}

func NewState() *State {
	return &State{
		quotes: make(map[string]*domain.Quote),
		now:    time.Now,
	}
}

// Apply 应用一条已富化的消息，返回更新后的记录以及记录是否被写入
func (s *State) Apply(msg port.Message) (domain.Quote, bool) {
	id := strings.TrimSpace(msg.AssetID)
	if id == "" || msg.Type != port.MessagePriceUpdate {
		return domain.Quote{}, false
	}

	price, bid, ask := extract(id, msg)
	ts := s.effectiveTime(msg)

	s.mu.Lock()
	defer s.mu.Unlock()

	q, seen := s.quotes[id]
	if !seen {
		q = &domain.Quote{AssetID: id}
		s.quotes[id] = q
	}
	if msg.Label != "" {
		q.Label = msg.Label
	}

	if !price.Valid && !bid.Valid && !ask.Valid {
		// 没有可用的价格信号：新资产建占位记录，已知资产只刷新 label
		if !seen {
			q.UpdatedAt = ts
		}
		return *q, true
	}

	prevMid := q.Mid
	mid := price
	if !mid.Valid && bid.Valid && ask.Valid {
		mid = domain.NumberOf((bid.Value + ask.Value) / 2)
	}
	mid = mid.Or(prevMid)

	q.Mid = mid
	q.Bid = bid.Or(q.Bid)
	q.Ask = ask.Or(q.Ask)
	q.Change = change(prevMid, mid)
	q.UpdatedAt = ts

	return *q, true
}

// Snapshot returns copies of all records sorted by display name, then id.
func (s *State) Snapshot() []domain.Quote {
	s.mu.Lock()
	out := make([]domain.Quote, 0, len(s.quotes))
	for _, q := range s.quotes {
		out = append(out, *q)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].DisplayName(), out[j].DisplayName()
		if a != b {
			return a < b
		}
		return out[i].AssetID < out[j].AssetID
	})
	return out
}

func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.quotes)
}

// extract picks the batch entry for id when there is one, otherwise the
// fields carried directly on the message.
func extract(id string, msg port.Message) (price, bid, ask domain.Number) {
	for _, pc := range msg.PriceChanges {
		if strings.TrimSpace(pc.AssetID) == id {
			return pc.Price, pc.BestBid, pc.BestAsk
		}
	}
	return msg.Price, msg.BestBid, msg.BestAsk
}

// change is the percent move from prev to cur; invalid without a nonzero baseline.
func change(prev, cur domain.Number) domain.Number {
	if !prev.Valid || !cur.Valid || prev.Value == 0 {
		return domain.Number{}
	}
	return domain.NumberOf((cur.Value - prev.Value) / prev.Value * 100)
}

func (s *State) effectiveTime(msg port.Message) time.Time {
	if ts := msg.Timestamp; ts.Valid && ts.Value > 0 {
		if ts.Value < epochMillisFloor {
			return time.UnixMilli(int64(ts.Value * 1000))
		}
		return time.UnixMilli(int64(ts.Value))
	}
	if !msg.ReceivedAt.IsZero() {
		return msg.ReceivedAt
	}
	return s.now()
}
