package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ReleaseInfo identifies the running build.
type ReleaseInfo interface {
	ReleaseVersion() string
	ReleaseCommit() string
}

// ReleaseHeaders middleware adds X-Release-Version and X-Release-Commit headers
// so a response can be tied to the deploy that served it.
func ReleaseHeaders(info ReleaseInfo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if info == nil {
			return next
		}
		// build info never changes at runtime
		v := info.ReleaseVersion()
		c := info.ReleaseCommit()
		if len(c) > 12 {
			c = c[:12]
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v != "" {
				w.Header().Set("X-Release-Version", v)
			}
			if c != "" {
				w.Header().Set("X-Release-Commit", c)
			}
			if span := trace.SpanFromContext(r.Context()); span.IsRecording() {
				if v != "" {
					span.SetAttributes(attribute.String("release.version", v))
				}
				if c != "" {
					span.SetAttributes(attribute.String("release.commit", c))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
