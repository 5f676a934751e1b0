package indexer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nathnaelteshome/common-app-web-sub001/internal/indexer/index"
	apperrors "github.com/nathnaelteshome/common-app-web-sub001/pkg/errors"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/resilience"
)

type fakeCatalog struct {
	mu    sync.Mutex
	docs  []index.Document
	err   error
	loads atomic.Int32
}

func (f *fakeCatalog) load(ctx context.Context) ([]index.Document, error) {
	f.loads.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]index.Document(nil), f.docs...), nil
}

func (f *fakeCatalog) set(docs []index.Document, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs, f.err = docs, err
}

func newTestEngine(cat *fakeCatalog, clock *time.Time) *Engine[index.Document] {
	e := NewEngine[index.Document]("universities", cat.load, EngineConfig{
		Retry: resilience.RetryConfig{MaxAttempts: 1},
	})
	e.now = func() time.Time { return *clock }
	return e
}

var jimma = []index.Document{{ID: "1", Name: "Jimma University", Location: "Jimma"}}

func TestEngineBuildsLazilyAndHonoursTTL(t *testing.T) {
	clock := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	cat := &fakeCatalog{docs: jimma}
	e := newTestEngine(cat, &clock)

	if e.Ready() {
		t.Fatal("engine should not be ready before first use")
	}
	idx, err := e.Index(context.Background())
	if err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if idx.Len() != 1 || cat.loads.Load() != 1 {
		t.Fatalf("len = %d, loads = %d", idx.Len(), cat.loads.Load())
	}

	clock = clock.Add(DefaultTTL)
	e.Index(context.Background())
	if cat.loads.Load() != 1 {
		t.Fatalf("index exactly TTL old should be reused, loads = %d", cat.loads.Load())
	}

	clock = clock.Add(time.Second)
	e.Index(context.Background())
	if cat.loads.Load() != 2 {
		t.Fatalf("index older than TTL should rebuild, loads = %d", cat.loads.Load())
	}
}

func TestEngineInvalidate(t *testing.T) {
	clock := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	cat := &fakeCatalog{docs: jimma}
	e := newTestEngine(cat, &clock)
	e.Index(context.Background())

	cat.set(append(jimma, index.Document{ID: "2", Name: "Hawassa University"}), nil)
	e.Invalidate()

	idx, err := e.Index(context.Background())
	if err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if idx.Len() != 2 {
		t.Errorf("len = %d, want 2 after invalidation", idx.Len())
	}
	e.Index(context.Background())
	if cat.loads.Load() != 2 {
		t.Errorf("loads = %d, want 2", cat.loads.Load())
	}
}

func TestEngineFirstLoadFailure(t *testing.T) {
	clock := time.Now()
	cat := &fakeCatalog{err: errors.New("connection refused")}
	e := newTestEngine(cat, &clock)

	_, err := e.Index(context.Background())
	if !errors.Is(err, apperrors.ErrCatalogUnavailable) {
		t.Fatalf("err = %v, want ErrCatalogUnavailable", err)
	}
}

func TestEngineFailedReloadKeepsSnapshot(t *testing.T) {
	clock := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	cat := &fakeCatalog{docs: jimma}
	e := newTestEngine(cat, &clock)
	e.Index(context.Background())
	builtAt := e.BuiltAt()

	cat.set(nil, errors.New("timeout"))
	clock = clock.Add(DefaultTTL + time.Second)

	idx, err := e.Index(context.Background())
	if err != nil {
		t.Fatalf("stale snapshot should be served, got %v", err)
	}
	if got := idx.Search("jimma", index.DefaultOptions()); len(got) != 1 {
		t.Errorf("stale snapshot search returned %d results", len(got))
	}
	if !e.BuiltAt().Equal(builtAt) {
		t.Error("BuiltAt must not advance on a failed reload")
	}
	if err := e.Rebuild(context.Background()); err == nil {
		t.Error("forced Rebuild should surface the load error")
	}
}

func TestEngineCoalescesConcurrentRebuilds(t *testing.T) {
	release := make(chan struct{})
	var loads atomic.Int32
	e := NewEngine[index.Document]("programs", func(ctx context.Context) ([]index.Document, error) {
		loads.Add(1)
		<-release
		return jimma, nil
	}, EngineConfig{Policy: TTL(time.Hour)})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Index(context.Background()); err != nil {
				t.Errorf("Index() error = %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := loads.Load(); n != 1 {
		t.Errorf("loads = %d, want 1", n)
	}
}

func TestEngineStats(t *testing.T) {
	clock := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	e := newTestEngine(&fakeCatalog{docs: jimma}, &clock)
	if err := e.Rebuild(context.Background()); err != nil {
		t.Fatal(err)
	}
	s := e.Stats()
	if s.Name != "universities" || s.Items != 1 || s.Terms != 2 || s.Breaker != "closed" || !s.BuiltAt.Equal(clock) {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestEngineCancelledCallerDoesNotFailSharedRebuild(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var loads atomic.Int32
	e := NewEngine[index.Document]("universities", func(ctx context.Context) ([]index.Document, error) {
		loads.Add(1)
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-release:
			return jimma, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}, EngineConfig{Policy: TTL(time.Hour), Retry: resilience.RetryConfig{MaxAttempts: 1}})

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := e.Index(ctx)
		firstErr <- err
	}()
	<-started

	secondErr := make(chan error, 1)
	go func() {
		_, err := e.Index(context.Background())
		secondErr <- err
	}()

	cancel()
	err := <-firstErr
	if !errors.Is(err, context.Canceled) || errors.Is(err, apperrors.ErrCatalogUnavailable) {
		t.Fatalf("cancelled caller err = %v, want context.Canceled", err)
	}

	close(release)
	if err := <-secondErr; err != nil {
		t.Fatalf("waiting caller err = %v, want nil", err)
	}
	if !e.Ready() || loads.Load() != 1 {
		t.Errorf("ready = %v, loads = %d, want ready after one load", e.Ready(), loads.Load())
	}
}

func TestEngineCancelledCallersDoNotOpenBreaker(t *testing.T) {
	clock := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	cat := &fakeCatalog{docs: jimma}
	e := newTestEngine(cat, &clock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 10; i++ {
		e.Invalidate()
		e.Index(ctx)
	}

	if _, err := e.Index(context.Background()); err != nil {
		t.Fatalf("healthy caller err = %v", err)
	}
	if got := e.Stats().Breaker; got != "closed" {
		t.Errorf("breaker = %s, want closed", got)
	}
}
