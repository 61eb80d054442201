package fingerprint

import "net/http"

// Middleware computes the request fingerprint once and stores it in the
// request context for downstream session handling.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fp := Generate(RequestProbe(r))
		ctx := WithContext(r.Context(), fp)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
