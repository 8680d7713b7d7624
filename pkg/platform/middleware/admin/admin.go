package admin

import (
	"log/slog"
	"net/http"

	"transitpass/pkg/platform/httputil"
	"transitpass/pkg/requestcontext"
)

// RequireAdmin allows only ADMIN callers. It must run after auth.RequireAuth.
func RequireAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			caller := requestcontext.Caller(ctx)
			if err := caller.RequireAdmin(); err != nil {
				logger.WarnContext(ctx, "admin route denied",
					"user_id", caller.UserID,
					"role", caller.Role,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
