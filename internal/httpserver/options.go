package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/storefront/internal/health"
	"github.com/keithlinneman/storefront/internal/httpmw"
	"github.com/keithlinneman/storefront/internal/log"
)

// DefaultMaxBodyBytes bounds request bodies when Options.MaxBodyBytes is zero.
// The largest legitimate body is a support ticket message.
const DefaultMaxBodyBytes = 64 << 10

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	RateLimitMW  func(http.Handler) http.Handler
	Health       health.Probe
	Readiness    health.Probe

	// APIRoutes registers the application routes on the chi router.
	APIRoutes func(chi.Router)

	// NotFound serves unmatched paths and methods. chi defaults when nil.
	NotFound http.Handler

	ClientIPOpts httpmw.ClientIPOptions
	MaxBodyBytes int64

	Release httpmw.ReleaseInfo // For X-Release-Version and X-Release-Commit headers
}
