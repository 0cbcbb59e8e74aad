package opshttp

import (
	"net/http"

	"github.com/keithlinneman/storefront/internal/health"
)

// DefaultPort is used when Options.Port is zero.
const DefaultPort = 9000

type Options struct {
	Port int
	// Metrics serves /metrics. Nil leaves the path unmounted.
	Metrics     http.Handler
	EnablePprof bool
	// Health and Readiness back the liveness and readiness endpoints. Nil probes report OK.
	Health       health.Probe
	Readiness    health.Probe
	UseRecoverMW bool
	// OnPanic runs after a recovered panic, e.g. to bump a counter.
	OnPanic func()
}

func (o *Options) port() int {
	if o.Port == 0 {
		return DefaultPort
	}
	return o.Port
}
