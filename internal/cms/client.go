package cms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/storefront/internal/log"
	"github.com/keithlinneman/storefront/internal/xerrors"
)

const (
	// DefaultTimeout bounds a single CMS round trip.
	DefaultTimeout = 10 * time.Second

	// maxResponseBytes caps how much of a CMS response body we will read.
	maxResponseBytes = 8 << 20
)

var (
	ErrNotFound           = errors.New("cms: not found")
	ErrForbidden          = errors.New("cms: forbidden")
	ErrUnauthorized       = errors.New("cms: unauthorized")
	ErrInvalidCredentials = errors.New("cms: invalid credentials")
	errMalformed          = errors.New("cms: malformed response")
)

// APIError is a non-2xx response from the CMS.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("cms %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("cms %s %s: status %d", e.Method, e.Path, e.Status)
}

// Is maps auth-related statuses onto the package sentinels so callers can use errors.Is.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	}
	return false
}

// Observer receives per-request CMS signals. Implemented by the metrics package.
type Observer interface {
	ObserveCMSRequest(resource, outcome string, seconds float64)
	IncSearchPartialFailure(kind string)
}

type Options struct {
	// BaseURL of the CMS, e.g. http://localhost:1337. Required.
	BaseURL string

	// APIToken is sent as a bearer token on read requests when set.
	APIToken string

	// Timeout per request, DefaultTimeout when zero. Ignored when HTTPClient is set.
	Timeout time.Duration

	// HTTPClient overrides the default otelhttp-instrumented client.
	HTTPClient *http.Client

	// UserAgent sent on every request when set.
	UserAgent string

	Logger  log.Logger
	Metrics Observer
}

// Client talks to the CMS REST API. It is safe for concurrent use.
type Client struct {
	base      *url.URL
	apiToken  string
	userAgent string
	hc        *http.Client
	logger    log.Logger
	metrics   Observer
}

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, xerrors.New("cms base url is required")
	}
	u, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, xerrors.Wrapf(err, "parse cms base url %q", opts.BaseURL)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, xerrors.Newf("cms base url must be absolute (got %q)", opts.BaseURL)
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{
			Timeout: timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					return "cms " + r.Method + " " + r.URL.Path
				}),
			),
		}
	}

	return &Client{
		base:      u,
		apiToken:  opts.APIToken,
		userAgent: opts.UserAgent,
		hc:        hc,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}, nil
}

// BaseURL returns the CMS base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.base.String() }

// request describes one CMS round trip.
type request struct {
	method string
	path   string // below /api, leading slash
	query  url.Values
	token  string // bearer override, falls back to the API token
	body   any

	// anonymous sends no Authorization header at all
	anonymous bool
}

func (c *Client) do(ctx context.Context, req request, out any) error {
	start := time.Now()
	resource := resourceOf(req.path)

	err := c.roundTrip(ctx, req, out)
	if c.metrics != nil {
		c.metrics.ObserveCMSRequest(resource, outcomeOf(err), time.Since(start).Seconds())
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, req request, out any) error {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/api" + req.path
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		buf, err := json.Marshal(req.body)
		if err != nil {
			return xerrors.Wrap(err, "encode cms request body")
		}
		body = bytes.NewReader(buf)
	}

	hreq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return xerrors.Wrap(err, "build cms request")
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Accept", "application/json")
	// content changes in the CMS must show up on the next page render
	hreq.Header.Set("Cache-Control", "no-store")
	if c.userAgent != "" {
		hreq.Header.Set("User-Agent", c.userAgent)
	}
	token := req.token
	if token == "" {
		token = c.apiToken
	}
	if token != "" && !req.anonymous {
		hreq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.hc.Do(hreq)
	if err != nil {
		return xerrors.Wrapf(err, "cms %s %s", req.method, req.path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return xerrors.Wrapf(err, "read cms response %s %s", req.method, req.path)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			Method:  req.method,
			Path:    req.path,
			Status:  resp.StatusCode,
			Message: errorMessage(data),
		}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return xerrors.Wrapf(errors.Join(errMalformed, err), "decode cms response %s %s", req.method, req.path)
	}
	return nil
}

// getList fetches a collection and returns its raw entities. Both {"data": [...]}
// and a bare array are accepted.
func (c *Client) getList(ctx context.Context, path string, q url.Values, token string) ([]json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, request{method: http.MethodGet, path: path, query: q, token: token}, &raw); err != nil {
		return nil, err
	}
	list, ok := asArray(unwrapData(raw))
	if !ok {
		return nil, xerrors.Wrapf(errMalformed, "cms GET %s: expected a list", path)
	}
	return list, nil
}

// getOne fetches a single entity and returns it unwrapped from any data envelope.
func (c *Client) getOne(ctx context.Context, path string, q url.Values, token string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, request{method: http.MethodGet, path: path, query: q, token: token}, &raw); err != nil {
		return nil, err
	}
	one := unwrapData(raw)
	if isNull(one) {
		return nil, ErrNotFound
	}
	return one, nil
}

// logFetchFailure records a swallowed read failure.
func (c *Client) logFetchFailure(ctx context.Context, err error, msg string, kv ...any) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		kv = append(kv, "status", apiErr.Status, "path", apiErr.Path, "error", apiErr.Message)
		c.logger.Warn(ctx, msg, kv...)
		return
	}
	c.logger.Error(ctx, err, msg, kv...)
}

// errorMessage digs the human readable message out of a CMS error body:
// {"error": {"status": 400, "message": "..."}} or {"message": "..."}.
func errorMessage(data []byte) string {
	var body struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	if body.Error != nil && body.Error.Message != "" {
		return body.Error.Message
	}
	return body.Message
}

func resourceOf(path string) string {
	p := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "unknown"
	}
	return p
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("%dxx", apiErr.Status/100)
	}
	if errors.Is(err, errMalformed) {
		return "malformed"
	}
	return "transport"
}
