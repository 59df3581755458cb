package httpx

import (
	"net/http"
	"strings"
)

// RequireRole allows the request through only when the authenticated caller
// holds one of the listed roles. Must run after AuthnMiddleware.
func RequireRole(allowed ...string) Middleware {
	want := make(map[string]struct{}, len(allowed))
	for _, role := range allowed {
		want[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := want[roleFromCtx(r.Context())]; ok {
				next.ServeHTTP(w, r)
				return
			}

			writeRoleError(w, allowed...)
		})
	}
}

func writeRoleError(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_role", role="`+strings.Join(allowed, " ")+`"`)
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte("insufficient_role"))
}
