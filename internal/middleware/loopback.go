// Package middleware provides HTTP middleware for the DayReview API.
package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
)

// LoopbackOnly returns middleware that rejects requests from peers other
// than the local machine. Requests carrying an Origin header must come from
// a loopback origin too, so web pages cannot post events to the daemon.
func LoopbackOnly(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isLoopbackAddr(r.RemoteAddr) {
				logger.Warn("Rejected non-loopback peer", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			if origin := r.Header.Get("Origin"); origin != "" && !isLoopbackOrigin(origin) {
				logger.Warn("Rejected foreign origin", "origin", origin, "path", r.URL.Path)
				http.Error(w, "origin not allowed", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isLoopbackAddr(remote string) bool {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func isLoopbackOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
