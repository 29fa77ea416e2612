package middleware

import (
	"net"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/cassiomorais/checkout/internal/domain/payment"
)

// RequestMeta copies the caller's identity onto the request context for the gateways and
// the audit log. Run it after chi's RequestID and RealIP and after RequireAuth.
func RequestMeta() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, _ := GetUserID(r.Context())
			ctx := payment.WithRequestMeta(r.Context(), payment.RequestMeta{
				ClientIP:  clientIP(r.RemoteAddr),
				RequestID: chimw.GetReqID(r.Context()),
				UserID:    userID,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// clientIP strips the port RealIP leaves on direct connections.
func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
