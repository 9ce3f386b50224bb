package ticker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"polyticker/internal/application/port"
	"polyticker/internal/infrastructure/metrics"
)

var ErrNoAssets = errors.New("no assets to track")

type ServiceDeps struct {
	Feed           port.PriceFeed
	Assets         []string
	Mode           RenderMode
	RenderEvery    time.Duration
	HeartbeatEvery time.Duration
	PersistTimeout time.Duration
	Color          bool
	Sink           port.Sink
	Repo           port.Repository
}

type Service struct {
	deps ServiceDeps
	st   *State
	fmt  *Formatter
	pw   *persister
}

func NewService(deps ServiceDeps) *Service {
	if deps.Mode == "" {
		deps.Mode = RenderSnapshot
	}
	if deps.RenderEvery <= 0 {
		deps.RenderEvery = 250 * time.Millisecond
	}
	if deps.HeartbeatEvery <= 0 {
		deps.HeartbeatEvery = 30 * time.Second
	}
	if deps.PersistTimeout <= 0 {
		deps.PersistTimeout = 2 * time.Second
	}
	if deps.Repo == nil {
		deps.Repo = NewNoopRepo()
	}
	return &Service{
		deps: deps,
		st:   NewState(),
		fmt:  NewFormatter(deps.Color),
		pw:   newPersister(deps.Repo, deps.PersistTimeout),
	}
}

// State exposes the aggregated records for read-only use.
func (s *Service) State() *State { return s.st }

func (s *Service) Run(ctx context.Context) error {
	if len(s.deps.Assets) == 0 {
		return ErrNoAssets
	}

	merged := make(chan port.Message, 1024)

	// 每个连接的读协程直接投递；队列满时只阻塞该资产自己的连接
	s.deps.Feed.OnMessage(func(m port.Message) {
		select {
		case merged <- m:
		case <-ctx.Done():
		}
	})
	persistDone := make(chan struct{})
	go func() {
		defer close(persistDone)
		s.pw.run(ctx)
	}()

	s.deps.Feed.StartAll(ctx, s.deps.Assets)
	log.Info().Int("assets", len(s.deps.Assets)).Str("mode", string(s.deps.Mode)).Msg("ticker started")

	var renderC <-chan time.Time
	if s.deps.Mode == RenderSnapshot {
		renderTicker := time.NewTicker(s.deps.RenderEvery)
		defer renderTicker.Stop()
		renderC = renderTicker.C
	}

	heartbeat := time.NewTicker(s.deps.HeartbeatEvery)
	defer heartbeat.Stop()

	dirty := false
	for {
		select {
		case <-ctx.Done():
			s.deps.Feed.StopAll()
			<-persistDone
			_ = s.deps.Sink.NewLine()
			return ctx.Err()

		case <-renderC:
			if !dirty || s.st.Len() == 0 {
				continue
			}
			if err := s.deps.Sink.WriteSnapshot(s.fmt.Lines(s.st.Snapshot())); err != nil {
				log.Debug().Err(err).Msg("render failed")
			}
			dirty = false

		case now := <-heartbeat.C:
			st := s.deps.Feed.Stats()
			log.Info().
				Int("tracked", st.Tracked).
				Int("open", st.Open).
				Int("records", s.st.Len()).
				Time("at", now).
				Msg("alive")

		case m := <-merged:
			s.handle(m)
			if m.Type == port.MessagePriceUpdate {
				dirty = true
			}
		}
	}
}

func (s *Service) handle(m port.Message) {
	switch m.Type {
	case port.MessageRaw:
		log.Debug().Str("asset", m.AssetID).Str("payload", m.Payload).Msg("raw frame")
		return
	case port.MessageError:
		log.Warn().Str("asset", m.AssetID).Str("err", m.Error).Msg("feed error")
		return
	}

	q, ok := s.st.Apply(m)
	if !ok {
		return
	}
	metrics.TickerUpdates.Inc()

	if s.deps.Mode == RenderAppend {
		if err := s.deps.Sink.WriteLine(s.fmt.Line(q)); err != nil {
			log.Debug().Err(err).Msg("render failed")
		}
	}
	s.pw.offer(q)
}
