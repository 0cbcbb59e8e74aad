package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/keithlinneman/storefront/internal/log"
)

// EnvPrefix is prepended to flag names to form environment variable names.
const EnvPrefix = "STOREFRONT_"

// MinSessionSecretLen is the shortest accepted HMAC key for session cookies.
const MinSessionSecretLen = 32

type App struct {
	LogJSON           bool
	LogLevel          string
	HTTPPort          int
	AdminPort         int
	EnablePprof       bool
	EnablePyroscope   bool
	EnableTracing     bool
	PyroServer        string
	PyroTenantID      string
	OTLPEndpoint      string
	TraceSample       float64
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	// CMS
	CMSURL              string
	CMSAPIToken         string
	CMSAPITokenSSMParam string
	CMSTimeout          time.Duration
	PlaceholderImageURL string
	MediaS3Bucket       string
	MediaS3Prefix       string
	MediaPresignTTL     time.Duration

	// sessions
	SessionSecret         string
	SessionSecretSSMParam string
	SessionTTL            time.Duration
	CookieSecure          bool

	// navigation
	MenuFile        string
	MenuRefresh     time.Duration
	EnableMenuWatch bool

	// public API rate limit
	RateLimitRPS     float64
	RateLimitBurst   int
	TrustedProxyHops int

	// login and change-password rate limit
	LoginPerMinute float64
	LoginBurst     int

	// DrainDelay is how long readiness fails before listeners close on shutdown.
	DrainDelay time.Duration
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")

	fs.StringVar(&c.CMSURL, "cms-url", "http://localhost:1337", "base url of the CMS REST API")
	fs.StringVar(&c.CMSAPIToken, "cms-api-token", "", "read-only CMS API token sent on content requests")
	fs.StringVar(&c.CMSAPITokenSSMParam, "cms-api-token-ssm-param", "", "ssm SecureString parameter holding the CMS API token (overrides cms-api-token)")
	fs.DurationVar(&c.CMSTimeout, "cms-timeout", 10*time.Second, "timeout for a single CMS request")
	fs.StringVar(&c.PlaceholderImageURL, "placeholder-image-url", "https://placehold.co/600x400/1f2937/f97616?text=No+Image", "image url used when an item has no cover")
	fs.StringVar(&c.MediaS3Bucket, "media-s3-bucket", "", "private s3 bucket the CMS uploads media to; enables presigned media urls")
	fs.StringVar(&c.MediaS3Prefix, "media-s3-prefix", "uploads/", "key prefix of CMS media inside media-s3-bucket")
	fs.DurationVar(&c.MediaPresignTTL, "media-presign-ttl", 15*time.Minute, "lifetime of presigned media urls")

	fs.StringVar(&c.SessionSecret, "session-secret", "", "HMAC key for session cookies (at least 32 bytes)")
	fs.StringVar(&c.SessionSecretSSMParam, "session-secret-ssm-param", "", "ssm SecureString parameter holding the session secret (overrides session-secret)")
	fs.DurationVar(&c.SessionTTL, "session-ttl", 7*24*time.Hour, "session cookie lifetime")
	fs.BoolVar(&c.CookieSecure, "cookie-secure", true, "set the Secure attribute on the session cookie")

	fs.StringVar(&c.MenuFile, "menu-file", "menu.yaml", "yaml file with the static navigation menu")
	fs.DurationVar(&c.MenuRefresh, "menu-refresh", 5*time.Minute, "how often the category submenu is rebuilt")
	fs.BoolVar(&c.EnableMenuWatch, "enable-menu-watch", true, "rebuild the menu when menu-file changes on disk")

	fs.Float64Var(&c.RateLimitRPS, "ratelimit-rps", 10, "per-client request rate on the public API")
	fs.IntVar(&c.RateLimitBurst, "ratelimit-burst", 30, "per-client burst on the public API")
	fs.Float64Var(&c.LoginPerMinute, "login-per-minute", 6, "per-client login attempts refilled per minute")
	fs.IntVar(&c.LoginBurst, "login-burst", 5, "per-client login attempts allowed back to back")
	fs.DurationVar(&c.DrainDelay, "drain-delay", 60*time.Second, "time between failing readiness and closing listeners on shutdown")
	fs.IntVar(&c.TrustedProxyHops, "trusted-proxy-hops", 0, "reverse proxies in front of the server whose X-Forwarded-For entries are trusted (0..8)")
}

// LoadDotEnv loads KEY=value pairs from the given files (".env" when none are
// given) into the process environment. Variables already set win, and missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var errs []error
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			errs = append(errs, fmt.Errorf("load %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s", f.Name, redact(f.Name, f.Value.String()), key)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, redact(f.Name, envVal), err)
			}
		}
	})
}

// redact hides secret flag values from log output.
func redact(name, v string) string {
	if v == "" {
		return v
	}
	if strings.HasSuffix(name, "-secret") || strings.HasSuffix(name, "-token") {
		return "[redacted]"
	}
	return v
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// Pyroscope (URL and scheme)
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	// Error link limits
	if c.IncludeErrorLinks {
		if c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64 {
			errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
		}
	}

	// CMS
	if u, err := url.Parse(c.CMSURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("CMS_URL must be an http(s) URL (got %q)", c.CMSURL))
	}
	if c.CMSTimeout <= 0 {
		errs = append(errs, fmt.Errorf("CMS_TIMEOUT must be positive (got %s)", c.CMSTimeout))
	}
	if c.MediaS3Bucket != "" && c.MediaPresignTTL <= 0 {
		errs = append(errs, fmt.Errorf("MEDIA_PRESIGN_TTL must be positive when MEDIA_S3_BUCKET is set"))
	}

	// Sessions: the secret may arrive later from SSM
	if c.SessionSecretSSMParam == "" && len(c.SessionSecret) < MinSessionSecretLen {
		errs = append(errs, fmt.Errorf("SESSION_SECRET must be at least %d bytes (or set SESSION_SECRET_SSM_PARAM)", MinSessionSecretLen))
	}
	if c.SessionTTL < time.Minute {
		errs = append(errs, fmt.Errorf("SESSION_TTL must be at least 1m (got %s)", c.SessionTTL))
	}

	// Navigation
	if c.MenuFile == "" {
		errs = append(errs, fmt.Errorf("MENU_FILE is required"))
	}
	if c.MenuRefresh < time.Second {
		errs = append(errs, fmt.Errorf("MENU_REFRESH must be at least 1s (got %s)", c.MenuRefresh))
	}

	// Rate limit
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("RATELIMIT_RPS and RATELIMIT_BURST must be positive (got %.2f/%d)", c.RateLimitRPS, c.RateLimitBurst))
	}
	if c.LoginPerMinute <= 0 || c.LoginBurst < 1 {
		errs = append(errs, fmt.Errorf("LOGIN_PER_MINUTE and LOGIN_BURST must be positive (got %.2f/%d)", c.LoginPerMinute, c.LoginBurst))
	}
	if c.TrustedProxyHops < 0 || c.TrustedProxyHops > 8 {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXY_HOPS must be 0..8 (got %d)", c.TrustedProxyHops))
	}

	if c.DrainDelay < 0 {
		errs = append(errs, fmt.Errorf("DRAIN_DELAY must not be negative (got %s)", c.DrainDelay))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
