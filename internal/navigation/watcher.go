package navigation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/keithlinneman/storefront/internal/cms"
	"github.com/keithlinneman/storefront/internal/log"
	"github.com/keithlinneman/storefront/internal/xerrors"
)

const (
	// DefaultPollInterval is how often the category submenu is refreshed.
	DefaultPollInterval = 5 * time.Minute

	// DefaultDebounce collapses the burst of events an editor save produces.
	DefaultDebounce = 250 * time.Millisecond

	// maxBackoff caps exponential backoff on consecutive rebuild errors. Long
	// poll intervals are allowed to back off to backoffSpan intervals instead.
	maxBackoff  = 30 * time.Minute
	backoffSpan = 8
)

// WatcherMetrics is implemented by the metrics package to observe watcher behavior.
type WatcherMetrics interface {
	IncMenuRebuilds()
	IncMenuSwaps()
	IncMenuError(errType string)
	ObserveMenuBuildDuration(seconds float64)
	SetMenuLastSuccess(unixSeconds float64)
	SetMenuStale(stale bool)
	SetMenuCategoryEntries(n int)
}

// WatcherOptions configures the menu watcher.
type WatcherOptions struct {
	Logger  log.Logger
	Source  CategorySource
	Manager *Manager

	// Path of the YAML menu file. Required.
	Path string

	PollInterval time.Duration

	// WatchFile rebuilds as soon as Path changes on disk.
	WatchFile bool
	Debounce  time.Duration

	Metrics WatcherMetrics

	// StaleThreshold is how long since the last clean rebuild before the
	// watcher reports the menu as stale. Zero defaults to 1 hour.
	StaleThreshold time.Duration
}

// Watcher keeps the Manager's menu current.
type Watcher struct {
	source    CategorySource
	manager   *Manager
	logger    log.Logger
	path      string
	interval  time.Duration
	watchFile bool
	debounce  time.Duration
	metrics   WatcherMetrics

	// last good inputs, reused when a source fails
	static []Entry
	tree   []*cms.Category

	// backoff state
	consecutiveErrs int

	// staleness tracking
	staleThreshold time.Duration
	lastSuccessAt  time.Time
	staleLogged    bool

	rebuildCount int64
	swapCount    int64
}

// NewWatcher creates a menu watcher. Call Rebuild once at startup, then Run.
func NewWatcher(opts *WatcherOptions) (*Watcher, error) {
	if opts.Path == "" {
		return nil, xerrors.New("menu file path is required")
	}
	if opts.Manager == nil {
		return nil, xerrors.New("menu manager is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	staleThreshold := opts.StaleThreshold
	if staleThreshold <= 0 {
		staleThreshold = time.Hour
	}
	return &Watcher{
		source:         opts.Source,
		manager:        opts.Manager,
		logger:         opts.Logger,
		path:           filepath.Clean(opts.Path),
		interval:       interval,
		watchFile:      opts.WatchFile,
		debounce:       debounce,
		metrics:        opts.Metrics,
		staleThreshold: staleThreshold,
		lastSuccessAt:  time.Now(),
	}, nil
}

// Rebuild reads the menu file, fetches the category tree when an entry needs
// it, and swaps the result into the manager. A failing input falls back to its
// last good value; the menu is only left untouched when the file has never
// loaded. The returned error reports every input that failed.
func (w *Watcher) Rebuild(ctx context.Context) error {
	w.rebuildCount++
	if w.metrics != nil {
		w.metrics.IncMenuRebuilds()
	}
	start := time.Now()
	defer func() {
		if w.metrics != nil {
			w.metrics.ObserveMenuBuildDuration(time.Since(start).Seconds())
		}
	}()

	var errs []error

	static, err := LoadFile(w.path)
	if err != nil {
		if w.metrics != nil {
			w.metrics.IncMenuError("file")
		}
		if w.static == nil {
			return err
		}
		w.logger.Warn(ctx, "menu watcher: menu file unusable, keeping previous entries", "path", w.path, "error", err.Error())
		errs = append(errs, err)
		static = w.static
	}
	w.static = static

	if needsCategories(static) && w.source != nil {
		tree, err := w.source.CategoryTree(ctx)
		if err != nil {
			if w.metrics != nil {
				w.metrics.IncMenuError("categories")
			}
			w.logger.Warn(ctx, "menu watcher: category fetch failed, keeping previous submenu", "error", err.Error())
			errs = append(errs, xerrors.Wrap(err, "fetch category tree"))
		} else {
			w.tree = tree
		}
	}

	m := Build(w.static, w.tree, time.Now())
	w.manager.Set(m)
	w.swapCount++
	if w.metrics != nil {
		w.metrics.IncMenuSwaps()
		w.metrics.SetMenuCategoryEntries(m.CategoryLinks)
	}

	if len(errs) == 0 {
		now := time.Now()
		w.lastSuccessAt = now
		if w.metrics != nil {
			w.metrics.SetMenuLastSuccess(float64(now.Unix()))
		}
		w.logger.Debug(ctx, "menu watcher: menu rebuilt", "entries", len(m.Entries), "category_links", m.CategoryLinks)
		return nil
	}
	return errors.Join(errs...)
}

func needsCategories(entries []Entry) bool {
	for _, e := range entries {
		if e.Categories || needsCategories(e.Submenu) {
			return true
		}
	}
	return false
}

// Run rebuilds on every poll tick and, when enabled, after the menu file
// changes. Blocks until ctx is cancelled.
// Intended to be launched as: go watcher.Run(ctx)
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info(ctx, "menu watcher starting",
		"poll_interval", w.interval.String(),
		"path", w.path,
		"watch_file", w.watchFile,
	)

	var events <-chan fsnotify.Event
	var fsErrs <-chan error
	if w.watchFile {
		fw, err := fsnotify.NewWatcher()
		if err != nil {
			w.logger.Warn(ctx, "menu watcher: file watching unavailable, polling only", "error", err.Error())
		} else {
			defer fw.Close()
			// watch the directory: editors and config management replace the file by rename
			if err := fw.Add(filepath.Dir(w.path)); err != nil {
				w.logger.Warn(ctx, "menu watcher: cannot watch menu directory, polling only", "dir", filepath.Dir(w.path), "error", err.Error())
			} else {
				events, fsErrs = fw.Events, fw.Errors
			}
		}
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var debounce *time.Timer
	var debounceC <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "menu watcher stopping",
				"reason", ctx.Err(),
				"rebuilds", w.rebuildCount,
				"swaps", w.swapCount,
			)
			return ctx.Err()

		case <-ticker.C:
			w.cycle(ctx, ticker)

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Base(ev.Name) != filepath.Base(w.path) || ev.Op == fsnotify.Chmod {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(w.debounce)
			} else {
				debounce.Reset(w.debounce)
			}
			debounceC = debounce.C

		case err, ok := <-fsErrs:
			if !ok {
				fsErrs = nil
				continue
			}
			w.logger.Warn(ctx, "menu watcher: file watch error", "error", err.Error())
			if w.metrics != nil {
				w.metrics.IncMenuError("fsnotify")
			}

		case <-debounceC:
			debounceC = nil
			w.logger.Info(ctx, "menu watcher: menu file changed, rebuilding", "path", w.path)
			w.cycle(ctx, ticker)
		}
	}
}

// cycle runs one rebuild and adjusts the poll cadence and staleness state.
func (w *Watcher) cycle(ctx context.Context, ticker *time.Ticker) {
	err := w.Rebuild(ctx)

	if err != nil {
		w.consecutiveErrs++
		backoff := w.backoffDuration()
		w.logger.Warn(ctx, "menu watcher: backing off",
			"consecutive_errors", w.consecutiveErrs,
			"next_rebuild_in", backoff.String(),
		)
		ticker.Reset(backoff)
	} else if w.consecutiveErrs > 0 {
		w.logger.Info(ctx, "menu watcher: recovered, resuming normal interval",
			"had_consecutive_errors", w.consecutiveErrs,
		)
		w.consecutiveErrs = 0
		ticker.Reset(w.interval)
	}

	if err == nil {
		if w.staleLogged {
			w.logger.Info(ctx, "menu watcher: staleness recovered")
			w.staleLogged = false
			if w.metrics != nil {
				w.metrics.SetMenuStale(false)
			}
		}
		return
	}
	if time.Since(w.lastSuccessAt) > w.staleThreshold && !w.staleLogged {
		w.logger.Error(ctx, fmt.Errorf("last clean menu rebuild was %s ago", time.Since(w.lastSuccessAt).Truncate(time.Second)),
			"menu watcher: menu is stale",
		)
		w.staleLogged = true
		if w.metrics != nil {
			w.metrics.SetMenuStale(true)
		}
	}
}

// backoffDuration computes exponential backoff capped at maxBackoff.
// consecutiveErrs=1 → 2x interval, =2 → 4x, =3 → 8x, etc.
func (w *Watcher) backoffDuration() time.Duration {
	limit := max(maxBackoff, backoffSpan*w.interval)
	d := w.interval
	for i := 0; i < w.consecutiveErrs && d < limit; i++ {
		d *= 2
	}
	return min(d, limit)
}
