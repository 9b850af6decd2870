package models

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeSource counts loads per model and can block or fail on demand.
type fakeSource struct {
	mu       sync.Mutex
	calls    map[Name]int
	fail     map[Name]error
	gate     chan struct{}
	inflight atomic.Int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		calls: make(map[Name]int),
		fail:  make(map[Name]error),
	}
}

func (f *fakeSource) Load(ctx context.Context, spec Spec) (*Asset, error) {
	f.mu.Lock()
	f.calls[spec.Name]++
	err := f.fail[spec.Name]
	gate := f.gate
	f.mu.Unlock()

	f.inflight.Add(1)
	defer f.inflight.Add(-1)

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &Asset{Name: spec.Name, Dir: "/models", Files: spec.Files}, nil
}

func (f *fakeSource) count(name Name) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeSource) setFail(name Name, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, name)
	} else {
		f.fail[name] = err
	}
}

func newTestRegistry(t *testing.T, src Source) *Registry {
	t.Helper()
	reg, err := NewRegistry(src, WithPrecheck(false))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

func TestEnsureLoaded_LoadsAll(t *testing.T) {
	src := newFakeSource()
	reg := newTestRegistry(t, src)

	if reg.IsReady() {
		t.Fatal("registry should not be ready before loading")
	}
	if err := reg.EnsureLoaded(context.Background()); err != nil {
		t.Fatalf("EnsureLoaded: %v", err)
	}
	if !reg.IsReady() {
		t.Fatal("registry should be ready after loading")
	}
	if !reg.Set().Ready() {
		t.Error("Set should be ready")
	}
	for _, n := range Names {
		if reg.State(n) != Loaded {
			t.Errorf("%s: state %v, want loaded", n, reg.State(n))
		}
	}
}

func TestEnsureLoaded_Idempotent(t *testing.T) {
	src := newFakeSource()
	reg := newTestRegistry(t, src)

	for i := 0; i < 3; i++ {
		if err := reg.EnsureLoaded(context.Background()); err != nil {
			t.Fatalf("EnsureLoaded #%d: %v", i, err)
		}
	}
	for _, n := range Names {
		if c := src.count(n); c != 1 {
			t.Errorf("%s loaded %d times, want 1", n, c)
		}
	}
}

func TestEnsureLoaded_ConcurrentCallsShareLoads(t *testing.T) {
	src := newFakeSource()
	src.gate = make(chan struct{})
	reg := newTestRegistry(t, src)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- reg.EnsureLoaded(context.Background())
		}()
	}

	// Wait until all four loads are blocked in flight, give the second
	// caller time to join them, then release.
	deadline := time.Now().Add(time.Second)
	for src.inflight.Load() < int32(len(Names)) {
		if time.Now().After(deadline) {
			t.Fatal("loads never started")
		}
		time.Sleep(time.Millisecond)
	}
	for _, n := range Names {
		if reg.State(n) != Loading {
			t.Errorf("%s: state %v, want loading", n, reg.State(n))
		}
	}
	time.Sleep(20 * time.Millisecond)
	close(src.gate)

	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("EnsureLoaded: %v", err)
		}
	}

	for _, n := range Names {
		if c := src.count(n); c != 1 {
			t.Errorf("%s loaded %d times, want exactly 1", n, c)
		}
	}
}

func TestEnsureLoaded_CancelledCallerDoesNotFailSharedLoad(t *testing.T) {
	src := newFakeSource()
	src.gate = make(chan struct{})
	reg := newTestRegistry(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() { first <- reg.EnsureLoaded(ctx) }()

	deadline := time.Now().Add(time.Second)
	for src.inflight.Load() < int32(len(Names)) {
		if time.Now().After(deadline) {
			t.Fatal("loads never started")
		}
		time.Sleep(time.Millisecond)
	}

	second := make(chan error, 1)
	go func() { second <- reg.EnsureLoaded(context.Background()) }()
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case err := <-first:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("first caller: expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}
	for _, n := range Names {
		if reg.State(n) == Failed {
			t.Errorf("%s marked failed by a cancelled caller", n)
		}
	}

	close(src.gate)
	select {
	case err := <-second:
		if err != nil {
			t.Fatalf("second caller: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("second caller did not return")
	}
	if !reg.IsReady() {
		t.Error("registry should be ready after the shared load")
	}
	for _, n := range Names {
		if c := src.count(n); c != 1 {
			t.Errorf("%s loaded %d times, want 1", n, c)
		}
	}
}

func TestEnsureLoaded_FailureIsolatedAndRetried(t *testing.T) {
	src := newFakeSource()
	boom := errors.New("malformed shard")
	src.setFail(Expression, boom)
	reg := newTestRegistry(t, src)

	err := reg.EnsureLoaded(context.Background())
	if !errors.Is(err, ErrModelLoad) {
		t.Fatalf("expected ErrModelLoad, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected underlying error to be wrapped, got %v", err)
	}
	var le *LoadError
	if !errors.As(err, &le) || le.Model != Expression {
		t.Errorf("expected LoadError for expression, got %v", err)
	}

	if reg.State(Expression) != Failed {
		t.Errorf("expression state %v, want failed", reg.State(Expression))
	}
	if reg.Err(Expression) == nil {
		t.Error("expected last error for expression")
	}
	for _, n := range []Name{Detector, Landmark, Recognition} {
		if reg.State(n) != Loaded {
			t.Errorf("%s state %v, want loaded", n, reg.State(n))
		}
	}
	if reg.IsReady() {
		t.Error("registry must not be ready with a failed model")
	}

	// Retry reloads only the failed model.
	src.setFail(Expression, nil)
	if err := reg.EnsureLoaded(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if c := src.count(Expression); c != 2 {
		t.Errorf("expression loaded %d times, want 2", c)
	}
	if c := src.count(Detector); c != 1 {
		t.Errorf("detector loaded %d times, want 1", c)
	}
	if reg.Err(Expression) != nil {
		t.Error("last error should be cleared after success")
	}
}

func TestEnsureLoaded_MultipleFailures(t *testing.T) {
	src := newFakeSource()
	src.setFail(Detector, errors.New("dns"))
	src.setFail(Landmark, errors.New("timeout"))
	reg := newTestRegistry(t, src)

	err := reg.EnsureLoaded(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "detector") || !strings.Contains(err.Error(), "landmark") {
		t.Errorf("expected both failures reported, got %v", err)
	}
}

func TestNewRegistry_MissingSpec(t *testing.T) {
	_, err := NewRegistry(newFakeSource(), WithSpecs([]Spec{{Name: Detector}}))
	if err == nil {
		t.Fatal("expected error for incomplete specs")
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		NotLoaded: "not_loaded",
		Loading:   "loading",
		Loaded:    "loaded",
		Failed:    "failed",
		State(42): "unknown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}

func TestHTTPSource_DownloadsAndCaches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if strings.HasSuffix(r.URL.Path, "missing.bin") {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("weights:" + r.URL.Path))
	}))
	defer srv.Close()

	dir := t.TempDir()
	src := NewHTTPSource(srv.URL+"/models/", dir)
	src.Client = srv.Client()

	spec := Spec{Name: Detector, Files: []string{"a-manifest.json", "a-shard1"}}
	asset, err := src.Load(context.Background(), spec)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	data, err := os.ReadFile(asset.Path("a-shard1"))
	if err != nil {
		t.Fatalf("read cached shard: %v", err)
	}
	if string(data) != "weights:/models/a-shard1" {
		t.Errorf("unexpected shard content %q", data)
	}

	// Second load is served from the cache.
	before := hits.Load()
	if _, err := src.Load(context.Background(), spec); err != nil {
		t.Fatalf("cached Load: %v", err)
	}
	if hits.Load() != before {
		t.Errorf("expected no HTTP requests for cached files, got %d", hits.Load()-before)
	}

	_, err = src.Load(context.Background(), Spec{Name: Expression, Files: []string{"missing.bin"}})
	if !errors.Is(err, ErrAssetsMissing) {
		t.Errorf("expected ErrAssetsMissing, got %v", err)
	}
}

func TestRegistry_PrecheckMissingAssets(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	src := NewHTTPSource(srv.URL, t.TempDir())
	src.Client = srv.Client()
	reg, err := NewRegistry(src, WithSpecs(FaceAPISpecs()))
	if err != nil {
		t.Fatal(err)
	}

	err = reg.EnsureLoaded(context.Background())
	if !errors.Is(err, ErrAssetsMissing) || !errors.Is(err, ErrModelLoad) {
		t.Fatalf("expected missing-assets load error, got %v", err)
	}
	if reg.State(Detector) != Failed {
		t.Errorf("detector state %v, want failed", reg.State(Detector))
	}
	if reg.State(Expression) != NotLoaded {
		t.Errorf("expression state %v, want not_loaded", reg.State(Expression))
	}
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "model.onnx"), []byte("onnx"), 0o644)
	os.WriteFile(filepath.Join(dir, "empty.onnx"), nil, 0o644)

	src := &DirSource{Dir: dir}
	asset, err := src.Load(context.Background(), Spec{Name: Detector, Files: []string{"model.onnx"}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p, ok := asset.Find(".onnx"); !ok || p != filepath.Join(dir, "model.onnx") {
		t.Errorf("Find(.onnx) = %q, %v", p, ok)
	}

	if _, err := src.Load(context.Background(), Spec{Name: Detector, Files: []string{"nope.onnx"}}); !errors.Is(err, ErrAssetsMissing) {
		t.Errorf("expected ErrAssetsMissing, got %v", err)
	}
	if _, err := src.Load(context.Background(), Spec{Name: Detector, Files: []string{"empty.onnx"}}); err == nil {
		t.Error("expected error for empty model file")
	}
}
