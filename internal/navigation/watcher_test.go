package navigation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/keithlinneman/storefront/internal/cms"
	"github.com/keithlinneman/storefront/internal/log"
)

// watcher test helpers

type fakeSource struct {
	mu    sync.Mutex
	tree  []*cms.Category
	err   error
	calls atomic.Int32
}

func (f *fakeSource) CategoryTree(context.Context) ([]*cms.Category, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tree, f.err
}

func (f *fakeSource) set(tree []*cms.Category, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tree, f.err = tree, err
}

type menuCounts struct {
	rebuilds        int
	swaps           int
	errs            map[string]int
	lastSuccess     float64
	stale           bool
	categoryEntries int
}

type recordingMetrics struct {
	mu sync.Mutex
	c  menuCounts
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{c: menuCounts{errs: map[string]int{}}}
}

func (r *recordingMetrics) IncMenuRebuilds() { r.mu.Lock(); r.c.rebuilds++; r.mu.Unlock() }
func (r *recordingMetrics) IncMenuSwaps()    { r.mu.Lock(); r.c.swaps++; r.mu.Unlock() }
func (r *recordingMetrics) IncMenuError(errType string) {
	r.mu.Lock()
	r.c.errs[errType]++
	r.mu.Unlock()
}
func (r *recordingMetrics) ObserveMenuBuildDuration(float64) {}
func (r *recordingMetrics) SetMenuLastSuccess(v float64)    { r.mu.Lock(); r.c.lastSuccess = v; r.mu.Unlock() }
func (r *recordingMetrics) SetMenuStale(s bool)             { r.mu.Lock(); r.c.stale = s; r.mu.Unlock() }
func (r *recordingMetrics) SetMenuCategoryEntries(n int) {
	r.mu.Lock()
	r.c.categoryEntries = n
	r.mu.Unlock()
}

func (r *recordingMetrics) snapshot() menuCounts {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := r.c
	cp.errs = make(map[string]int, len(r.c.errs))
	for k, v := range r.c.errs {
		cp.errs[k] = v
	}
	return cp
}

type watcherFixture struct {
	path    string
	source  *fakeSource
	mgr     *Manager
	metrics *recordingMetrics
}

func newWatcherFixture(t *testing.T) *watcherFixture {
	t.Helper()
	f := &watcherFixture{
		path:    filepath.Join(t.TempDir(), "menu.yaml"),
		source:  &fakeSource{tree: categoryTree()},
		mgr:     NewManager(),
		metrics: newRecordingMetrics(),
	}
	f.write(t, sampleMenu)
	return f
}

func (f *watcherFixture) write(t *testing.T, doc string) {
	t.Helper()
	// write then rename so a watching goroutine never reads a partial file
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		t.Fatal(err)
	}
}

func (f *watcherFixture) newWatcher(t *testing.T, opts ...func(*WatcherOptions)) *Watcher {
	t.Helper()
	wopts := WatcherOptions{
		Logger:  log.Nop(),
		Source:  f.source,
		Manager: f.mgr,
		Path:    f.path,
		Metrics: f.metrics,
	}
	for _, o := range opts {
		o(&wopts)
	}
	w, err := NewWatcher(&wopts)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	return w
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		default:
			if cond() {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
}

// backoffDuration

func TestBackoffDuration_Progression(t *testing.T) {
	w := &Watcher{interval: 30 * time.Second}

	tests := []struct {
		consecutiveErrs int
		want            time.Duration
	}{
		{0, 30 * time.Second},
		{1, 60 * time.Second},
		{2, 120 * time.Second},
		{3, 240 * time.Second},
		{4, 8 * time.Minute},
		{6, 30 * time.Minute}, // 32m capped
		{60, 30 * time.Minute},
	}
	for _, tt := range tests {
		w.consecutiveErrs = tt.consecutiveErrs
		if got := w.backoffDuration(); got != tt.want {
			t.Fatalf("consecutiveErrs=%d: backoff=%v, want %v", tt.consecutiveErrs, got, tt.want)
		}
	}
}

func TestBackoffDuration_DefaultInterval(t *testing.T) {
	w, err := NewWatcher(&WatcherOptions{Path: "menu.yaml", Manager: NewManager()})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	want := []time.Duration{5 * time.Minute, 10 * time.Minute, 20 * time.Minute, 40 * time.Minute, 40 * time.Minute}
	prev := time.Duration(0)
	for n, d := range want {
		w.consecutiveErrs = n
		got := w.backoffDuration()
		if got != d {
			t.Fatalf("consecutiveErrs=%d: backoff=%v, want %v", n, got, d)
		}
		if n > 0 && n < 4 && got <= prev {
			t.Fatalf("backoff did not grow at the default interval: %v after %v", got, prev)
		}
		prev = got
	}
}

// NewWatcher

func TestNewWatcher_Defaults(t *testing.T) {
	w, err := NewWatcher(&WatcherOptions{Path: "menu.yaml", Manager: NewManager()})
	if err != nil {
		t.Fatal(err)
	}
	if w.interval != DefaultPollInterval {
		t.Fatalf("interval = %v, want %v", w.interval, DefaultPollInterval)
	}
	if w.debounce != DefaultDebounce {
		t.Fatalf("debounce = %v, want %v", w.debounce, DefaultDebounce)
	}
	if w.staleThreshold != time.Hour {
		t.Fatalf("staleThreshold = %v, want 1h", w.staleThreshold)
	}
	if w.logger == nil {
		t.Fatal("expected nop logger")
	}
}

func TestNewWatcher_RequiresPathAndManager(t *testing.T) {
	if _, err := NewWatcher(&WatcherOptions{Manager: NewManager()}); err == nil {
		t.Fatal("expected error without path")
	}
	if _, err := NewWatcher(&WatcherOptions{Path: "menu.yaml"}); err == nil {
		t.Fatal("expected error without manager")
	}
}

// Rebuild

func TestRebuild_Success(t *testing.T) {
	f := newWatcherFixture(t)
	w := f.newWatcher(t)

	if err := w.Rebuild(t.Context()); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	menu, ok := f.mgr.Get()
	if !ok {
		t.Fatal("manager should have a menu")
	}
	if got := menu.Entries[1].Submenu[0].Submenu[0].Link; got != "/shop/apparel/shirts" {
		t.Fatalf("nested category link = %q", got)
	}
	m := f.metrics.snapshot()
	if m.rebuilds != 1 || m.swaps != 1 {
		t.Fatalf("rebuilds=%d swaps=%d, want 1/1", m.rebuilds, m.swaps)
	}
	if m.categoryEntries != 3 {
		t.Fatalf("category entries = %d, want 3", m.categoryEntries)
	}
	if m.lastSuccess == 0 {
		t.Fatal("expected last success timestamp")
	}
}

func TestRebuild_SkipsCategoriesWhenUnused(t *testing.T) {
	f := newWatcherFixture(t)
	f.write(t, "menu:\n  - title: Home\n    link: /\n")
	w := f.newWatcher(t)

	if err := w.Rebuild(t.Context()); err != nil {
		t.Fatal(err)
	}
	if n := f.source.calls.Load(); n != 0 {
		t.Fatalf("category source called %d times, want 0", n)
	}
}

func TestRebuild_FirstFileErrorLeavesManagerEmpty(t *testing.T) {
	f := newWatcherFixture(t)
	f.write(t, "menu: []\n")
	w := f.newWatcher(t)

	if err := w.Rebuild(t.Context()); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := f.mgr.Get(); ok {
		t.Fatal("manager should stay empty when the file never loaded")
	}
	if got := f.metrics.snapshot().errs["file"]; got != 1 {
		t.Fatalf("file errors = %d, want 1", got)
	}
}

func TestRebuild_BadFileKeepsPreviousEntries(t *testing.T) {
	f := newWatcherFixture(t)
	w := f.newWatcher(t)
	if err := w.Rebuild(t.Context()); err != nil {
		t.Fatal(err)
	}

	f.write(t, "menu:\n  - title: Broken\n    link: nowhere\n")
	if err := w.Rebuild(t.Context()); err == nil {
		t.Fatal("expected error for invalid file")
	}
	menu, _ := f.mgr.Get()
	if menu.Entries[0].Title != "Home" || len(menu.Entries) != 3 {
		t.Fatalf("entries = %+v, want previous menu", menu.Entries)
	}
}

func TestRebuild_CategoryErrorKeepsPreviousTree(t *testing.T) {
	f := newWatcherFixture(t)
	w := f.newWatcher(t)
	if err := w.Rebuild(t.Context()); err != nil {
		t.Fatal(err)
	}

	f.source.set(nil, errors.New("cms down"))
	f.write(t, sampleMenu+"  - title: About\n    link: /about\n")
	if err := w.Rebuild(t.Context()); err == nil {
		t.Fatal("expected error when categories fail")
	}

	menu, _ := f.mgr.Get()
	if len(menu.Entries) != 4 {
		t.Fatalf("entries = %d, want 4 (file change applied)", len(menu.Entries))
	}
	if len(menu.Entries[1].Submenu) != 2 {
		t.Fatalf("shop submenu = %+v, want previous categories", menu.Entries[1].Submenu)
	}
	if got := f.metrics.snapshot().errs["categories"]; got != 1 {
		t.Fatalf("category errors = %d, want 1", got)
	}
}

func TestRebuild_CategoryErrorWithoutPreviousTree(t *testing.T) {
	f := newWatcherFixture(t)
	f.source.set(nil, errors.New("cms down"))
	w := f.newWatcher(t)

	if err := w.Rebuild(t.Context()); err == nil {
		t.Fatal("expected error")
	}
	menu, ok := f.mgr.Get()
	if !ok {
		t.Fatal("static entries should still be served")
	}
	if menu.Entries[1].Submenu != nil {
		t.Fatalf("shop submenu = %+v, want none", menu.Entries[1].Submenu)
	}
}

// cycle

func TestCycle_StaleAfterThreshold(t *testing.T) {
	f := newWatcherFixture(t)
	w := f.newWatcher(t, func(o *WatcherOptions) {
		o.StaleThreshold = time.Millisecond
	})
	f.source.set(nil, errors.New("cms down"))
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	time.Sleep(5 * time.Millisecond)
	w.cycle(t.Context(), ticker)
	if !f.metrics.snapshot().stale {
		t.Fatal("expected menu to be marked stale")
	}
	if w.consecutiveErrs != 1 {
		t.Fatalf("consecutiveErrs = %d, want 1", w.consecutiveErrs)
	}

	f.source.set(categoryTree(), nil)
	w.cycle(t.Context(), ticker)
	if f.metrics.snapshot().stale {
		t.Fatal("expected staleness to clear after a clean rebuild")
	}
	if w.consecutiveErrs != 0 {
		t.Fatalf("consecutiveErrs = %d, want 0", w.consecutiveErrs)
	}
}

// Run - integration

func TestRun_StopsOnContextCancel(t *testing.T) {
	f := newWatcherFixture(t)
	w := f.newWatcher(t, func(o *WatcherOptions) {
		o.PollInterval = 10 * time.Millisecond
		o.WatchFile = true
	})

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func TestRun_PollPicksUpCategoryChanges(t *testing.T) {
	f := newWatcherFixture(t)
	w := f.newWatcher(t, func(o *WatcherOptions) {
		o.PollInterval = 10 * time.Millisecond
	})
	if err := w.Rebuild(t.Context()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	defer func() { cancel(); <-done }()

	f.source.set([]*cms.Category{{ID: 9, Name: "Games", Slug: "games"}}, nil)

	waitFor(t, "new category in menu", func() bool {
		menu, _ := f.mgr.Get()
		sub := menu.Entries[1].Submenu
		return len(sub) == 1 && sub[0].Link == "/shop/games"
	})
}

func TestRun_FileChangeTriggersRebuild(t *testing.T) {
	f := newWatcherFixture(t)
	w := f.newWatcher(t, func(o *WatcherOptions) {
		o.PollInterval = time.Hour
		o.WatchFile = true
		o.Debounce = 20 * time.Millisecond
	})
	if err := w.Rebuild(t.Context()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	defer func() { cancel(); <-done }()

	// give the watcher time to register the directory
	time.Sleep(50 * time.Millisecond)
	f.write(t, "menu:\n  - title: Sale\n    link: /sale\n")

	waitFor(t, "menu file change to apply", func() bool {
		menu, _ := f.mgr.Get()
		return len(menu.Entries) == 1 && menu.Entries[0].Title == "Sale"
	})
}

func TestRun_BacksOffThenRecovers(t *testing.T) {
	f := newWatcherFixture(t)
	f.source.set(nil, errors.New("cms down"))
	w := f.newWatcher(t, func(o *WatcherOptions) {
		o.PollInterval = 5 * time.Millisecond
	})

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	defer func() { cancel(); <-done }()

	waitFor(t, "category errors", func() bool {
		return f.metrics.snapshot().errs["categories"] >= 2
	})

	f.source.set(categoryTree(), nil)
	waitFor(t, "recovery", func() bool {
		return f.metrics.snapshot().categoryEntries == 3
	})
}
