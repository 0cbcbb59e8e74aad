// Package httpmw holds the storefront API middleware.
//
// httpserver.NewHandler composes it outermost first: security headers, panic
// recovery, request ID, client IP, rate limiting, OTEL tracing, release
// headers, metrics, request logger, then the chi router with compression,
// route annotation, access log and body limit.
//
// Logs carry request metadata only. Query strings, cookies and bodies stay
// out because search terms and credentials pass through them.
package httpmw
