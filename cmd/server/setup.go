package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/keithlinneman/storefront/internal/cfg"
	"github.com/keithlinneman/storefront/internal/cms"
	"github.com/keithlinneman/storefront/internal/log"
	"github.com/keithlinneman/storefront/internal/metrics"
	"github.com/keithlinneman/storefront/internal/navigation"
	"github.com/keithlinneman/storefront/internal/otelx"
	"github.com/keithlinneman/storefront/internal/prof"
	"github.com/keithlinneman/storefront/internal/ratelimit"
	"github.com/keithlinneman/storefront/internal/secrets"
	"github.com/keithlinneman/storefront/internal/session"
	v "github.com/keithlinneman/storefront/internal/version"
	"github.com/keithlinneman/storefront/internal/xerrors"
)

func newLogger(conf cfg.App) (log.Logger, error) {
	// both levels were checked by cfg.Validate
	lvl, _ := log.ParseLevel(conf.LogLevel)
	stackLvl := slog.LevelError
	if conf.StacktraceLevel != "" {
		stackLvl, _ = log.ParseLevel(conf.StacktraceLevel)
	}
	return log.New(log.Options{
		App:               v.AppName,
		Version:           v.Version,
		Commit:            v.Commit,
		BuildId:           v.BuildId,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JsonFormat:        conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
}

func logStartup(ctx context.Context, L log.Logger, conf cfg.App, vi v.Info) {
	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"commit_date", vi.CommitDate,
		"build_id", vi.BuildId,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"enable_menu_watch", conf.EnableMenuWatch,
		"otlp_endpoint", conf.OTLPEndpoint,
		"trace_sample", conf.TraceSample,
		"cms_url", conf.CMSURL,
		"cms_timeout", conf.CMSTimeout,
		"media_s3_bucket", conf.MediaS3Bucket,
		"menu_file", conf.MenuFile,
		"menu_refresh", conf.MenuRefresh,
		"trusted_proxy_hops", conf.TrustedProxyHops,
		"drain_delay", conf.DrainDelay,
	)
}

// observability bundles the profiler, tracer provider and metrics registry.
type observability struct {
	metrics *metrics.ServerMetrics
	stopFn  func(context.Context)
	once    sync.Once
}

// stop flushes traces and stops the profiler. Safe to call more than once.
func (o *observability) stop(ctx context.Context) {
	o.once.Do(func() { o.stopFn(ctx) })
}

// startObservability never fails the process: profiling and tracing errors
// are logged and the service runs without them.
func startObservability(ctx context.Context, L log.Logger, conf cfg.App, vi v.Info) *observability {
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
			"build_id":  vi.BuildId,
			"source":    "go-agent",
		},
	})
	profActive := conf.EnablePyroscope && err == nil
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}

	// the collector runs on localhost, so the exporter skips TLS
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", vi)
	m.SetProfilingActive(profActive)

	return &observability{
		metrics: m,
		stopFn: func(sctx context.Context) {
			if err := shutdownOTEL(sctx); err != nil {
				L.Error(sctx, err, "otel shutdown")
			}
			stopProf()
		},
	}
}

// deps are the long-lived collaborators the API is built from.
type deps struct {
	cms         *cms.Client
	media       *cms.MediaResolver
	sessions    *session.Manager
	menu        *navigation.Manager
	menuWatcher *navigation.Watcher
}

func buildDeps(ctx context.Context, L log.Logger, conf cfg.App, vi v.Info, m *metrics.ServerMetrics) (*deps, error) {
	// AWS is only needed for ssm secrets and presigned media; local setups run without credentials
	var awsCfg *aws.Config
	if conf.CMSAPITokenSSMParam != "" || conf.SessionSecretSSMParam != "" || conf.MediaS3Bucket != "" {
		c, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, xerrors.Wrap(err, "load aws config")
		}
		awsCfg = &c
	}

	// ssm parameters override values from flags/env
	var getter secrets.Getter
	if awsCfg != nil && (conf.CMSAPITokenSSMParam != "" || conf.SessionSecretSSMParam != "") {
		store, err := secrets.NewSSM(ctx, secrets.Options{Logger: L, AWSConfig: awsCfg})
		if err != nil {
			return nil, xerrors.Wrap(err, "ssm client")
		}
		getter = store
	}
	cmsToken, err := secrets.Resolve(ctx, getter, conf.CMSAPITokenSSMParam, conf.CMSAPIToken)
	if err != nil {
		return nil, xerrors.Wrap(err, "resolve cms api token")
	}
	sessionSecret, err := secrets.Resolve(ctx, getter, conf.SessionSecretSSMParam, conf.SessionSecret)
	if err != nil {
		return nil, xerrors.Wrap(err, "resolve session secret")
	}

	d := &deps{menu: navigation.NewManager()}

	// shared by the API handlers and the menu watcher
	d.cms, err = cms.New(cms.Options{
		BaseURL:   conf.CMSURL,
		APIToken:  cmsToken,
		Timeout:   conf.CMSTimeout,
		UserAgent: vi.UserAgent(),
		Logger:    L.With("component", "cms"),
		Metrics:   m,
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "cms client")
	}

	mediaOpts := cms.MediaOptions{
		BaseURL:     conf.CMSURL,
		Placeholder: conf.PlaceholderImageURL,
		Logger:      L.With("component", "media"),
	}
	if conf.MediaS3Bucket != "" {
		mediaOpts.Bucket = conf.MediaS3Bucket
		mediaOpts.Prefix = conf.MediaS3Prefix
		mediaOpts.PresignTTL = conf.MediaPresignTTL
		mediaOpts.Presigner = s3.NewPresignClient(s3.NewFromConfig(*awsCfg))
	}
	if d.media, err = cms.NewMediaResolver(mediaOpts); err != nil {
		return nil, xerrors.Wrap(err, "media resolver")
	}

	d.sessions, err = session.New(session.Options{
		Secret: []byte(sessionSecret),
		TTL:    conf.SessionTTL,
		Secure: conf.CookieSecure,
		Logger: L.With("component", "session"),
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "session manager")
	}

	// static yaml menu plus the CMS category tree
	d.menuWatcher, err = navigation.NewWatcher(&navigation.WatcherOptions{
		Logger:       L.With("component", "menu"),
		Source:       d.cms,
		Manager:      d.menu,
		Path:         conf.MenuFile,
		PollInterval: conf.MenuRefresh,
		WatchFile:    conf.EnableMenuWatch,
		Metrics:      m,
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "menu watcher")
	}
	return d, nil
}

// newLimiters returns the public API limiter and the much smaller budget for
// credential endpoints. Both count denials in the same metric.
func newLimiters(ctx context.Context, L log.Logger, conf cfg.App, m *metrics.ServerMetrics) (api, login *ratelimit.IPLimiter) {
	denied := func(string) { m.IncRateLimitDenied() }

	api = ratelimit.New(ctx,
		ratelimit.WithRate(conf.RateLimitRPS, conf.RateLimitBurst),
		ratelimit.WithOnDenied(denied),
		// logged once per visitor until it is evicted from the bucket map
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
		ratelimit.WithOnCapacity(func() {
			m.IncRateLimitCapacity()
			L.Warn(ctx, "rate limit capacity reached, rejecting new visitors until some are evicted")
		}),
	)
	login = ratelimit.New(ctx,
		ratelimit.WithRate(conf.LoginPerMinute/60, conf.LoginBurst),
		ratelimit.WithRetryAfter(time.Minute),
		ratelimit.WithOnDenied(denied),
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "login rate limit triggered", "ip", ip)
		}),
	)
	return api, login
}
