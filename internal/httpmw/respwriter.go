package httpmw

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "storefront/httpmw"

// recordingWriter captures the status and body size for the access log. When
// the request span is recording it also opens a "response.write" child on the
// first write, measuring time to first byte and time blocked on the client.
type recordingWriter struct {
	http.ResponseWriter
	ctx   context.Context
	start time.Time

	status int
	bytes  int64

	span    trace.Span
	opened  bool
	blocked time.Duration
	err     error
}

func newRecordingWriter(w http.ResponseWriter, r *http.Request, start time.Time) *recordingWriter {
	return &recordingWriter{ResponseWriter: w, ctx: r.Context(), start: start}
}

func (rw *recordingWriter) open() {
	if rw.opened {
		return
	}
	rw.opened = true
	parent := trace.SpanFromContext(rw.ctx)
	if !parent.IsRecording() {
		return
	}
	ttfb := time.Since(rw.start).Seconds()
	_, rw.span = parent.TracerProvider().Tracer(tracerName).Start(rw.ctx, "response.write",
		trace.WithAttributes(attribute.Float64("http.server.ttfb_seconds", ttfb)))
}

// timed runs fn and adds its duration to the blocked total.
func (rw *recordingWriter) timed(fn func()) {
	t := time.Now()
	fn()
	rw.blocked += time.Since(t)
}

func (rw *recordingWriter) WriteHeader(code int) {
	rw.open()
	rw.status = code
	rw.timed(func() { rw.ResponseWriter.WriteHeader(code) })
}

func (rw *recordingWriter) Write(b []byte) (n int, err error) {
	rw.open()
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	rw.timed(func() { n, err = rw.ResponseWriter.Write(b) })
	rw.bytes += int64(n)
	if err != nil && rw.err == nil {
		rw.err = err
	}
	return n, err
}

func (rw *recordingWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// code is the status sent, 200 when the handler never wrote.
func (rw *recordingWriter) code() int {
	if rw.status == 0 {
		return http.StatusOK
	}
	return rw.status
}

// finish ends the write span, if one was opened.
func (rw *recordingWriter) finish() {
	if rw.span == nil {
		return
	}
	rw.span.SetAttributes(
		attribute.Int("http.response.status_code", rw.code()),
		attribute.Int64("http.response.body.size", rw.bytes),
		attribute.Float64("http.server.write.block_seconds", rw.blocked.Seconds()),
	)
	if rw.err != nil {
		rw.span.RecordError(rw.err)
		rw.span.SetStatus(codes.Error, rw.err.Error())
	}
	rw.span.End()
}
