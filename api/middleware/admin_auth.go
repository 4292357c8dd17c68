package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/angelmondragon/renewals-backend/api/responses"
	pkgerrors "github.com/angelmondragon/renewals-backend/pkg/errors"
	"github.com/angelmondragon/renewals-backend/pkg/logger"
)

const adminKeyHeader = "X-Api-Key"

// AdminAuth gates the admin surface behind a shared API key. The key can be
// supplied via X-Api-Key or as a bearer token.
func AdminAuth(apiKey string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin api key not configured"))
				return
			}

			supplied := strings.TrimSpace(r.Header.Get(adminKeyHeader))
			if supplied == "" {
				raw := strings.TrimSpace(r.Header.Get("Authorization"))
				if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
					supplied = strings.TrimSpace(raw[7:])
				}
			}
			if supplied == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			if subtle.ConstantTimeCompare([]byte(supplied), []byte(apiKey)) != 1 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
