// Package metrics owns the storefront's Prometheus registry: HTTP server
// metrics, CMS client metrics, login outcomes and the menu watcher.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/storefront/internal/version"
)

var (
	latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	// product and search listings run large; the top bucket covers a full catalog page.
	sizeBuckets = []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216, 52428800}
	cmsBuckets  = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	menuBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
)

// ServerMetrics holds every collector the storefront exports. Labels are kept
// to bounded sets (method, route pattern, status, kind, outcome).
type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	buildInfo       *prometheus.GaugeVec
	profilingActive prometheus.Gauge

	inflight      prometheus.Gauge
	reqTotal      *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	reqDur        *prometheus.HistogramVec
	respBytes     *prometheus.HistogramVec
	panicsTotal   prometheus.Counter
	limitDenied   prometheus.Counter
	limitCapacity prometheus.Counter

	cmsReqTotal   *prometheus.CounterVec
	cmsReqDur     *prometheus.HistogramVec
	searchPartial *prometheus.CounterVec
	loginsTotal   *prometheus.CounterVec

	menuRebuilds    prometheus.Counter
	menuSwaps       prometheus.Counter
	menuErrors      *prometheus.CounterVec
	menuBuildDur    prometheus.Histogram
	menuLastSuccess prometheus.Gauge
	menuStale       prometheus.Gauge
	menuCategories  prometheus.Gauge
}

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
}

func counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
}

func histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets}, labels)
}

// New builds a registry with the Go and process collectors plus the
// storefront collectors. Each call is independent, so tests can build many.
func New() *ServerMetrics {
	m := &ServerMetrics{
		reg: prometheus.NewRegistry(),

		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		profilingActive: gauge("profiling_active", "Whether continuous profiling is active (1) or not (0)"),

		inflight:      gauge("http_inflight_requests", "Current number of in-flight HTTP requests"),
		reqTotal:      counterVec("http_requests_total", "HTTP requests by method, route and status", "method", "route", "status"),
		errorsTotal:   counterVec("http_errors_total", "5xx responses by method and route", "method", "route"),
		reqDur:        histogramVec("http_request_duration_seconds", "Request latency by method and route", latencyBuckets, "method", "route"),
		respBytes:     histogramVec("http_response_size_bytes", "Response body size by method and route", sizeBuckets, "method", "route"),
		panicsTotal:   counter("http_panic_total", "Recovered handler panics"),
		limitDenied:   counter("http_requests_rate_limited_total", "Requests rejected by a rate limiter"),
		limitCapacity: counter("http_requests_rate_limited_capacity_total", "Times a rate limiter hit its visitor cap"),

		cmsReqTotal:   counterVec("cms_requests_total", "CMS API requests by resource and outcome", "resource", "outcome"),
		cmsReqDur:     histogramVec("cms_request_duration_seconds", "CMS API round trip latency by resource", cmsBuckets, "resource"),
		searchPartial: counterVec("cms_search_partial_failures_total", "Searches where one content kind failed and contributed nothing", "kind"),
		loginsTotal:   counterVec("session_logins_total", "Login attempts by outcome", "outcome"),

		menuRebuilds: counter("menu_watcher_rebuilds_total", "Navigation menu rebuild attempts"),
		menuSwaps:    counter("menu_watcher_swaps_total", "Navigation menu snapshots swapped in"),
		menuErrors:   counterVec("menu_watcher_errors_total", "Menu watcher errors by type", "type"),
		menuBuildDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "menu_build_duration_seconds",
			Help:    "Time to read the menu file and fetch the category tree",
			Buckets: menuBuckets,
		}),
		menuLastSuccess: gauge("menu_watcher_last_success_timestamp_seconds", "Unix time of the last successful menu rebuild"),
		menuStale:       gauge("menu_watcher_stale", "Whether the navigation menu is stale (1) or fresh (0)"),
		menuCategories:  gauge("menu_category_entries", "Category links in the current shop submenu"),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.buildInfo, m.profilingActive,
		m.inflight, m.reqTotal, m.errorsTotal, m.reqDur, m.respBytes,
		m.panicsTotal, m.limitDenied, m.limitCapacity,
		m.cmsReqTotal, m.cmsReqDur, m.searchPartial, m.loginsTotal,
		m.menuRebuilds, m.menuSwaps, m.menuErrors, m.menuBuildDur,
		m.menuLastSuccess, m.menuStale, m.menuCategories,
	)
	m.handler = promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
	return m
}

// Handler serves the registry in Prometheus or OpenMetrics format.
func (m *ServerMetrics) Handler() http.Handler { return m.handler }

// SetBuildInfoFromVersion publishes the build_info series. Call once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func setBool(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
		return
	}
	g.Set(0)
}

func (m *ServerMetrics) SetProfilingActive(active bool) { setBool(m.profilingActive, active) }

func (m *ServerMetrics) IncHttpPanic()         { m.panicsTotal.Inc() }
func (m *ServerMetrics) IncRateLimitDenied()   { m.limitDenied.Inc() }
func (m *ServerMetrics) IncRateLimitCapacity() { m.limitCapacity.Inc() }

// ObserveCMSRequest implements cms.Observer.
func (m *ServerMetrics) ObserveCMSRequest(resource, outcome string, seconds float64) {
	m.cmsReqTotal.WithLabelValues(resource, outcome).Inc()
	m.cmsReqDur.WithLabelValues(resource).Observe(seconds)
}

// IncSearchPartialFailure implements cms.Observer.
func (m *ServerMetrics) IncSearchPartialFailure(kind string) {
	m.searchPartial.WithLabelValues(kind).Inc()
}

// IncLogin counts a login attempt. outcome is one of ok, invalid, error.
func (m *ServerMetrics) IncLogin(outcome string) { m.loginsTotal.WithLabelValues(outcome).Inc() }

func (m *ServerMetrics) IncMenuRebuilds()                        { m.menuRebuilds.Inc() }
func (m *ServerMetrics) IncMenuSwaps()                           { m.menuSwaps.Inc() }
func (m *ServerMetrics) IncMenuError(errType string)             { m.menuErrors.WithLabelValues(errType).Inc() }
func (m *ServerMetrics) ObserveMenuBuildDuration(seconds float64) { m.menuBuildDur.Observe(seconds) }
func (m *ServerMetrics) SetMenuLastSuccess(unixSeconds float64)  { m.menuLastSuccess.Set(unixSeconds) }
func (m *ServerMetrics) SetMenuStale(stale bool)                 { setBool(m.menuStale, stale) }
func (m *ServerMetrics) SetMenuCategoryEntries(n int)            { m.menuCategories.Set(float64(n)) }
