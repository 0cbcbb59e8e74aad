// Package health holds the liveness and readiness probes served on /-/healthy
// and /-/ready by both the storefront API and the ops listener.
//
// Readiness is the [All] of the [ShutdownGate] and the navigation menu having
// been built at least once; [Named] labels each so a 503 says which one failed.
package health
