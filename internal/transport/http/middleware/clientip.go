package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/go-auth-nosql/internal/domain"
)

// realIP returns the originating client address, preferring proxy headers.
func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xr := strings.TrimSpace(r.Header.Get("X-Real-Ip")); xr != "" {
		return xr
	}
	return remoteHost(r)
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RequestMeta stores the caller's IP and user agent in the request context.
// Proxy headers are honoured only when trustProxy is set.
func RequestMeta(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := remoteHost(r)
			if trustProxy {
				ip = realIP(r)
			}
			meta := domain.RequestMeta{IP: ip, UserAgent: r.UserAgent()}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), metaKey, meta)))
		})
	}
}

// MetaFromRequest returns the meta stored by RequestMeta, or one derived from
// the connection when the middleware did not run.
func MetaFromRequest(r *http.Request) domain.RequestMeta {
	if m, ok := r.Context().Value(metaKey).(domain.RequestMeta); ok {
		return m
	}
	return domain.RequestMeta{IP: remoteHost(r), UserAgent: r.UserAgent()}
}
