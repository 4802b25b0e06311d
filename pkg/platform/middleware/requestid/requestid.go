// Package requestid assigns each request a correlation ID. Downstream code
// reads it through requestcontext; audit events carry it so registry actions
// can be traced back to the originating request.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"soulbound/pkg/requestcontext"
)

const Header = "X-Request-ID"

// Middleware injects the request ID into the context, honoring an ID supplied
// by the caller and minting one otherwise. The ID is echoed on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(Header)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(Header, reqID)
		ctx := requestcontext.WithRequestID(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
