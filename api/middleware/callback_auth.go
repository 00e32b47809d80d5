package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/supplytrace-backend/api/responses"
	"github.com/angelmondragon/supplytrace-backend/pkg/auth"
	"github.com/angelmondragon/supplytrace-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/supplytrace-backend/pkg/errors"
	"github.com/angelmondragon/supplytrace-backend/pkg/logger"
)

// CallbackAuth requires a verifier bearer token when a callback secret is
// configured. With no secret the route stays open.
func CallbackAuth(cfg config.CallbackConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.AuthEnabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing bearer token"))
				return
			}

			claims, err := auth.ParseCallbackToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid callback token"))
				return
			}

			ctx := WithVerifier(r.Context(), claims.Verifier)
			if logg != nil {
				ctx = logg.WithField(ctx, "verifier", claims.Verifier)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
