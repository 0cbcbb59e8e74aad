package opshttp

import (
	"net"
	"net/http"
	"net/netip"

	"github.com/keithlinneman/storefront/internal/log"
)

// requireNonPublicNetwork rejects requests from public addresses and requests
// that came through a proxy. The admin listener is only for internal monitoring.
func requireNonPublicNetwork(L log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Forwarded-For") != "" || r.Header.Get("Forwarded") != "" {
			L.Warn(r.Context(), "ops request rejected: forwarded header present", "remote_addr", r.RemoteAddr)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if !nonPublic(r.RemoteAddr) {
			L.Warn(r.Context(), "ops request rejected: public source address", "remote_addr", r.RemoteAddr)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func nonPublic(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return false
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	// ::ffff:a.b.c.d must be judged as the IPv4 address it carries
	addr = addr.Unmap()
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast()
}
