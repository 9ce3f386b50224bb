package feed

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"polyticker/internal/application/port"
)

// Manager 管理每个资产独立的 websocket 连接
// 一个资产一个连接：单个连接的断线重连或坏帧不会影响其他资产
type Manager struct {
	cfg    ConnConfig
	labels port.LabelSource

	mu    sync.Mutex
	conns map[string]*Connection // asset id -> connection
	order []string

	hmu     sync.RWMutex
	handler port.Handler
}

// NewManager creates a Manager. labels may be nil, in which case every
// message is labelled with its asset id.
func NewManager(cfg ConnConfig, labels port.LabelSource) *Manager {
	return &Manager{
		cfg:    cfg,
		labels: labels,
		conns:  make(map[string]*Connection),
	}
}

// OnMessage registers the single consumer of enriched messages.
func (m *Manager) OnMessage(h port.Handler) {
	m.hmu.Lock()
	m.handler = h
	m.hmu.Unlock()
}

// AddAsset starts a connection for assetID unless one is already tracked.
// It does not wait for the connection; a failed start is delivered as an
// error message for that asset.
func (m *Manager) AddAsset(ctx context.Context, assetID string) {
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return
	}

	m.mu.Lock()
	if _, ok := m.conns[assetID]; ok {
		m.mu.Unlock()
		return
	}
	conn := NewConnection(m.cfg)
	conn.OnMessage(func(msg port.Message) {
		m.emit(assetID, msg)
	})
	m.conns[assetID] = conn
	m.order = append(m.order, assetID)
	m.mu.Unlock()

	go func() {
		err := conn.Start(ctx, []string{assetID})
		if err == nil || errors.Is(err, ErrStopped) || ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Str("asset", assetID).Str("conn_id", conn.ID()).Msg("feed start failed, retrying in background")
		m.emit(assetID, errorMessage(err))
	}()
}

// RemoveAsset stops and forgets the connection for assetID, if any.
func (m *Manager) RemoveAsset(assetID string) {
	assetID = strings.TrimSpace(assetID)

	m.mu.Lock()
	conn, ok := m.conns[assetID]
	if ok {
		delete(m.conns, assetID)
		for i, id := range m.order {
			if id == assetID {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
	m.mu.Unlock()

	if ok {
		conn.Stop()
	}
}

// StartAll adds every asset in order; duplicates collapse.
func (m *Manager) StartAll(ctx context.Context, assetIDs []string) {
	for _, id := range assetIDs {
		m.AddAsset(ctx, id)
	}
}

// StopAll stops every connection and clears tracking state.
func (m *Manager) StopAll() {
	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	m.conns = make(map[string]*Connection)
	m.order = nil
	m.mu.Unlock()

	for _, conn := range conns {
		conn.Stop()
	}
}

// Assets returns the tracked asset ids in insertion order.
func (m *Manager) Assets() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Stats returns tracked and currently open connection counts.
func (m *Manager) Stats() port.FeedStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := port.FeedStats{Tracked: len(m.conns)}
	for _, conn := range m.conns {
		if conn.IsOpen() {
			st.Open++
		}
	}
	return st
}

func (m *Manager) emit(assetID string, msg port.Message) {
	msg.AssetID = assetID
	msg.Label = m.label(assetID)

	m.hmu.RLock()
	h := m.handler
	m.hmu.RUnlock()
	if h != nil {
		h(msg)
	}
}

func (m *Manager) label(assetID string) string {
	if m.labels == nil {
		return assetID
	}
	if l := strings.TrimSpace(m.labels.Label(assetID)); l != "" {
		return l
	}
	return assetID
}

var _ port.PriceFeed = (*Manager)(nil)
