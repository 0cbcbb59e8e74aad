// Package ratelimit is per-IP token bucket rate limiting for the storefront API.
//
// It is in-memory and per instance. The server runs two limiters: a general
// one around every request, since most API calls fan out to the CMS, and a
// much tighter one on login, which forwards credentials to the CMS auth
// endpoint. Neither helps against distributed abuse; that belongs upstream.
package ratelimit
