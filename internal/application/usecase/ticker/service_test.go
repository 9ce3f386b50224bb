package ticker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"polyticker/internal/application/port"
	"polyticker/internal/domain"
)

type fakeFeed struct {
	mu      sync.Mutex
	handler port.Handler
	started chan []string
	stopped chan struct{}
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{started: make(chan []string, 1), stopped: make(chan struct{})}
}

func (f *fakeFeed) OnMessage(h port.Handler) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

func (f *fakeFeed) StartAll(ctx context.Context, ids []string) { f.started <- ids }
func (f *fakeFeed) StopAll()                                   { close(f.stopped) }
func (f *fakeFeed) Stats() port.FeedStats                      { return port.FeedStats{} }

func (f *fakeFeed) push(m port.Message) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(m)
}

type fakeSink struct {
	mu        sync.Mutex
	lines     []string
	snapshots [][]string
}

func (s *fakeSink) WriteSnapshot(lines []string) error {
	s.mu.Lock()
	s.snapshots = append(s.snapshots, lines)
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) WriteLine(line string) error {
	s.mu.Lock()
	s.lines = append(s.lines, line)
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) NewLine() error { return nil }

func (s *fakeSink) appended() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func (s *fakeSink) lastSnapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snapshots) == 0 {
		return nil
	}
	return s.snapshots[len(s.snapshots)-1]
}

type fakeRepo struct {
	mu     sync.Mutex
	quotes map[string]domain.Quote
	err    error
}

func (r *fakeRepo) UpsertQuote(ctx context.Context, q domain.Quote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.quotes == nil {
		r.quotes = make(map[string]domain.Quote)
	}
	r.quotes[q.AssetID] = q
	return nil
}

func (r *fakeRepo) Close() error { return nil }

func (r *fakeRepo) get(id string) (domain.Quote, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.quotes[id]
	return q, ok
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func runService(t *testing.T, deps ServiceDeps) (*fakeFeed, context.CancelFunc, <-chan error) {
	t.Helper()
	feed := newFakeFeed()
	deps.Feed = feed

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- NewService(deps).Run(ctx) }()

	select {
	case <-feed.started:
	case <-time.After(2 * time.Second):
		t.Fatal("StartAll not called")
	}
	return feed, cancel, errCh
}

func priceMsg(id, price string) port.Message {
	return port.Message{
		Type:         port.MessagePriceUpdate,
		AssetID:      id,
		Label:        id,
		PriceChanges: []port.PriceChange{{AssetID: id, Price: domain.ParseNumber(price)}},
		ReceivedAt:   time.Now(),
	}
}

func TestService_AppendMode(t *testing.T) {
	sink := &fakeSink{}
	repo := &fakeRepo{}
	feed, cancel, errCh := runService(t, ServiceDeps{
		Assets: []string{"111", "222"},
		Mode:   RenderAppend,
		Sink:   sink,
		Repo:   repo,
	})

	feed.push(priceMsg("111", "0.42"))
	feed.push(port.Message{Type: port.MessageRaw, AssetID: "111", Payload: "{bad"})
	feed.push(priceMsg("111", "0.45"))

	eventually(t, func() bool { return len(sink.appended()) == 2 })
	lines := sink.appended()
	if !strings.Contains(lines[1], " | 0.45 | +7.14% | ") {
		t.Errorf("second line = %q", lines[1])
	}

	eventually(t, func() bool {
		q, ok := repo.get("111")
		return ok && q.Mid.Valid && q.Mid.Value == 0.45
	})

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	select {
	case <-feed.stopped:
	default:
		t.Error("StopAll not called on shutdown")
	}
}

func TestService_SnapshotMode(t *testing.T) {
	sink := &fakeSink{}
	feed, cancel, errCh := runService(t, ServiceDeps{
		Assets:      []string{"b", "a"},
		Mode:        RenderSnapshot,
		RenderEvery: 10 * time.Millisecond,
		Sink:        sink,
	})
	defer func() {
		cancel()
		<-errCh
	}()

	feed.push(port.Message{Type: port.MessagePriceUpdate, AssetID: "b", Label: "b", BestBid: domain.NumberOf(0.10), BestAsk: domain.NumberOf(0.12)})
	feed.push(priceMsg("a", "0.5"))

	eventually(t, func() bool { return len(sink.lastSnapshot()) == 2 })
	snap := sink.lastSnapshot()
	if !strings.HasPrefix(snap[0], "a | a | 0.50 |") {
		t.Errorf("first row = %q", snap[0])
	}
	if !strings.HasPrefix(snap[1], "b | b | 0.11 | — |") {
		t.Errorf("second row = %q", snap[1])
	}
	if len(sink.appended()) != 0 {
		t.Errorf("snapshot mode appended lines: %v", sink.appended())
	}
}

func TestService_NothingDrawnWithoutRecords(t *testing.T) {
	sink := &fakeSink{}
	feed, cancel, errCh := runService(t, ServiceDeps{
		Assets:      []string{"a"},
		RenderEvery: 5 * time.Millisecond,
		Sink:        sink,
	})

	feed.push(port.Message{Type: port.MessageError, AssetID: "a", Error: "dial refused"})
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-errCh

	if sink.lastSnapshot() != nil {
		t.Errorf("snapshot drawn with no records: %v", sink.lastSnapshot())
	}
}

func TestService_StoreErrorsAreSwallowed(t *testing.T) {
	sink := &fakeSink{}
	feed, cancel, errCh := runService(t, ServiceDeps{
		Assets: []string{"a"},
		Mode:   RenderAppend,
		Sink:   sink,
		Repo:   &fakeRepo{err: errors.New("disk full")},
	})

	feed.push(priceMsg("a", "0.1"))
	feed.push(priceMsg("a", "0.2"))
	eventually(t, func() bool { return len(sink.appended()) == 2 })

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v", err)
	}
}

func TestService_NoAssets(t *testing.T) {
	svc := NewService(ServiceDeps{Feed: newFakeFeed(), Sink: &fakeSink{}})
	if err := svc.Run(context.Background()); !errors.Is(err, ErrNoAssets) {
		t.Errorf("Run() error = %v, want ErrNoAssets", err)
	}
}

// gatedRepo holds every write until release is called.
type gatedRepo struct {
	mu     sync.Mutex
	calls  map[string]int
	last   map[string]domain.Quote
	gate   chan struct{}
	once   sync.Once
	active chan struct{}
}

func newGatedRepo() *gatedRepo {
	return &gatedRepo{
		calls:  make(map[string]int),
		last:   make(map[string]domain.Quote),
		gate:   make(chan struct{}),
		active: make(chan struct{}, 1),
	}
}

func (r *gatedRepo) UpsertQuote(ctx context.Context, q domain.Quote) error {
	r.mu.Lock()
	r.calls[q.AssetID]++
	r.mu.Unlock()
	select {
	case r.active <- struct{}{}:
	default:
	}

	select {
	case <-r.gate:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.mu.Lock()
	r.last[q.AssetID] = q
	r.mu.Unlock()
	return nil
}

func (r *gatedRepo) Close() error { return nil }

func (r *gatedRepo) release() { r.once.Do(func() { close(r.gate) }) }

func (r *gatedRepo) stored(id string) (domain.Quote, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.last[id]
	return q, r.calls[id], ok
}

func TestService_SlowStoreDoesNotStallOtherAssets(t *testing.T) {
	sink := &fakeSink{}
	repo := newGatedRepo()
	defer repo.release()

	feed, cancel, errCh := runService(t, ServiceDeps{
		Assets:         []string{"a", "b"},
		Mode:           RenderAppend,
		PersistTimeout: 5 * time.Second,
		Sink:           sink,
		Repo:           repo,
	})
	defer func() {
		cancel()
		<-errCh
	}()

	feed.push(priceMsg("a", "0.1"))
	select {
	case <-repo.active:
	case <-time.After(2 * time.Second):
		t.Fatal("store never called")
	}

	start := time.Now()
	for _, p := range []string{"0.2", "0.3", "0.4", "0.5"} {
		feed.push(priceMsg("a", p))
	}
	feed.push(priceMsg("b", "0.7"))

	eventually(t, func() bool { return len(sink.appended()) == 6 })
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("updates rendered after %v with a blocked store", elapsed)
	}
	if last := sink.appended()[5]; !strings.HasPrefix(last, "b | b | 0.70 |") {
		t.Errorf("last line = %q", last)
	}

	repo.release()
	eventually(t, func() bool {
		q, _, ok := repo.stored("a")
		return ok && q.Mid.Valid && q.Mid.Value == 0.5
	})
	eventually(t, func() bool {
		_, _, ok := repo.stored("b")
		return ok
	})

	// 0.2..0.5 were queued behind the blocked write and collapse into one
	if _, calls, _ := repo.stored("a"); calls != 2 {
		t.Errorf("store calls for a = %d, want 2", calls)
	}
}

func TestService_ShutdownWithBlockedStore(t *testing.T) {
	repo := newGatedRepo()
	defer repo.release()

	feed, cancel, errCh := runService(t, ServiceDeps{
		Assets:         []string{"a"},
		Mode:           RenderAppend,
		PersistTimeout: 5 * time.Second,
		Sink:           &fakeSink{},
		Repo:           repo,
	})

	feed.push(priceMsg("a", "0.1"))
	<-repo.active

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return while a store write was pending")
	}
}
