package gateway

import (
	"net"
	"net/http"

	"github.com/google/uuid"
)

// recoveryMiddleware recovers from panics. The decoy must never leak a
// stack trace or crash a connection an attacker is probing.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				respondError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// decoyHeadersMiddleware stamps every response with the identity banner and
// the hardening headers the real product sends.
func (s *Server) decoyHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Server", s.profile.ServerBanner)
		h.Set("X-Powered-By", s.profile.PoweredBy)
		h.Set("X-Request-Id", uuid.NewString())
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// remoteIP strips the port from RemoteAddr.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// headerMap flattens request headers for recording. Multi-valued headers
// keep their first value; capture readability beats completeness here.
func headerMap(r *http.Request) map[string]string {
	m := make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		if len(v) > 0 {
			m[k] = v[0]
		}
	}
	return m
}
