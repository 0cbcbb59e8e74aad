// Command server runs the storefront API: a JSON front for the headless CMS
// with sessions, navigation and an admin listener for metrics and probes.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keithlinneman/storefront/internal/cfg"
	"github.com/keithlinneman/storefront/internal/health"
	"github.com/keithlinneman/storefront/internal/httpmw"
	"github.com/keithlinneman/storefront/internal/httpserver"
	"github.com/keithlinneman/storefront/internal/log"
	"github.com/keithlinneman/storefront/internal/opshttp"
	"github.com/keithlinneman/storefront/internal/storehttp"
	v "github.com/keithlinneman/storefront/internal/version"
)

const shutdownTimeout = 10 * time.Second

func main() {
	vi := v.Get()

	var conf cfg.App
	var showVersion bool
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			v.AppName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		return
	}

	// local development keeps secrets in .env, the process environment still wins
	if err := cfg.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "dotenv error:", err)
		os.Exit(1)
	}
	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	lg, err := newLogger(conf)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, conf, vi, lg)
	stop()
	_ = lg.Sync()
	os.Exit(code)
}

// run wires the service, serves until ctx is cancelled, drains and returns
// the process exit code. Deferred cleanups run before main exits.
func run(ctx context.Context, conf cfg.App, vi v.Info, lg log.Logger) int {
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)
	logStartup(ctx, L, conf, vi)

	obs := startObservability(ctx, L, conf, vi)
	defer obs.stop(context.Background())
	m := obs.metrics

	deps, err := buildDeps(ctx, L, conf, vi, m)
	if err != nil {
		L.Error(ctx, err, "startup failed")
		return 1
	}

	// a failed first build leaves readiness failing until the watcher recovers
	if err := deps.menuWatcher.Rebuild(ctx); err != nil {
		L.Warn(ctx, "initial menu build incomplete", "error", err)
	}
	go func() {
		if err := deps.menuWatcher.Run(ctx); err != nil && ctx.Err() == nil {
			L.Error(ctx, err, "menu watcher stopped")
		}
	}()

	apiLimiter, loginLimiter := newLimiters(ctx, L, conf, m)

	api, err := storehttp.NewAPI(storehttp.Options{
		Store:      deps.cms,
		Sessions:   deps.sessions,
		Media:      deps.media,
		Menu:       deps.menu,
		Metrics:    m,
		Logger:     L.With("component", "api"),
		LoginLimit: loginLimiter.Middleware,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create api")
		return 1
	}

	// ready once the menu has been built and until shutdown starts
	var gate health.ShutdownGate
	readiness := health.All(
		health.Named("shutdown", gate.Probe()),
		health.Named("menu", health.CheckFunc(func(context.Context) error {
			return deps.menu.ReadyErr()
		})),
	)

	siteStop, err := httpserver.Start(ctx, httpserver.Options{
		Port:         conf.HTTPPort,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		APIRoutes:    api.RegisterRoutes,
		NotFound:     http.HandlerFunc(storehttp.NotFound),
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  apiLimiter.Middleware,
		Logger:       L,
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedProxyHops},
		Release:      vi,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start api listener")
		return 1
	}
	defer func() { _ = siteStop(context.Background()) }()

	// the admin port is firewalled to monitoring; opshttp also rejects public
	// sources and forwarded requests in case that ever changes
	opsStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops listener")
		return 1
	}
	defer func() { _ = opsStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		// systemd kills the unit after its start timeout if this never lands
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	<-ctx.Done()
	bg := context.Background()
	L.Info(bg, "shutdown signal received")

	gate.Set("draining")
	drain(bg, L, conf.DrainDelay)

	shutdownCtx, cancel := context.WithTimeout(bg, shutdownTimeout)
	defer cancel()
	if err := siteStop(shutdownCtx); err != nil {
		L.Error(bg, err, "api http server shutdown")
	}
	if err := opsStop(shutdownCtx); err != nil {
		L.Error(bg, err, "ops http server shutdown")
	}
	obs.stop(shutdownCtx)

	L.Info(bg, "shutdown complete")
	return 0
}

// drain keeps serving with readiness failed so the load balancer stops
// sending traffic. A second signal skips the wait.
func drain(ctx context.Context, L log.Logger, d time.Duration) {
	if d <= 0 {
		return
	}
	L.Info(ctx, "draining before closing listeners", "drain_delay", d)
	force := make(chan os.Signal, 1)
	signal.Notify(force, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(force)

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		L.Info(ctx, "drain period complete")
	case <-force:
		L.Warn(ctx, "second signal received, skipping drain")
	}
}
