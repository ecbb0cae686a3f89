package middleware

import (
	"net"
	"net/http"
	"strings"

	goPresence "github.com/MrEthical07/goPresence"
	"github.com/google/uuid"
)

// RequestIDHeader is read for an incoming request id and echoed on the response.
const RequestIDHeader = "X-Request-ID"

// Options tunes [RequestContextWith].
type Options struct {
	// TrustForwardedFor takes the client address from the first
	// X-Forwarded-For entry. Enable only behind a proxy that sets it.
	TrustForwardedFor bool
}

// RequestContext is [RequestContextWith] with zero Options.
func RequestContext(next http.Handler) http.Handler {
	return RequestContextWith(Options{})(next)
}

// RequestContextWith returns middleware that attaches a request id and the
// client address to the request context. A missing request id is generated.
func RequestContextWith(opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			ctx := goPresence.WithRequestID(r.Context(), requestID)
			if ip := clientIP(r, opts.TrustForwardedFor); ip != "" {
				ctx = goPresence.WithClientIP(ctx, ip)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func clientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
