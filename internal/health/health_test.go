package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestProbeHandlers(t *testing.T) {
	tests := []struct {
		name       string
		h          http.HandlerFunc
		wantCode   int
		wantStatus string
		wantReason string
	}{
		{"healthz ok", HealthzHandler(Fixed(true, "")), http.StatusOK, "ok", ""},
		{"healthz nil probe", HealthzHandler(nil), http.StatusOK, "ok", ""},
		{"readyz ok", ReadyzHandler(Fixed(true, "")), http.StatusOK, "ready", ""},
		{"readyz failing", ReadyzHandler(Named("menu", Fixed(false, "not built"))), http.StatusServiceUnavailable, "unavailable", "menu: not built"},
		{"healthz failing", HealthzHandler(Fixed(false, "")), http.StatusServiceUnavailable, "unavailable", "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.h(rec, httptest.NewRequest(http.MethodGet, "/-/ready", http.NoBody))

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if rec.Header().Get("Cache-Control") != "no-store" || rec.Header().Get("Content-Type") != "application/json" {
				t.Fatalf("headers = %v", rec.Header())
			}
			var body status
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.Status != tt.wantStatus || body.Reason != tt.wantReason {
				t.Fatalf("body = %+v", body)
			}
		})
	}
}

func TestProbeHandler_UsesRequestContext(t *testing.T) {
	type key struct{}
	var seen any
	h := ReadyzHandler(CheckFunc(func(ctx context.Context) error {
		seen = ctx.Value(key{})
		return nil
	}))
	req := httptest.NewRequest(http.MethodGet, "/-/ready", http.NoBody)
	h(httptest.NewRecorder(), req.WithContext(context.WithValue(req.Context(), key{}, "lb")))
	if seen != "lb" {
		t.Fatalf("probe saw %v", seen)
	}
}
