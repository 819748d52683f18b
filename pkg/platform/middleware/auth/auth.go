// Package auth authenticates wallets on the mint routes.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	dErrors "mintgate/pkg/domain-errors"
	"mintgate/pkg/platform/httputil"
	"mintgate/pkg/requestcontext"
)

// MethodPassport marks wallets proven by a Passport ID token.
const MethodPassport = "passport"

// PassportVerifier validates a Passport ID token and returns the wallet it was issued for.
type PassportVerifier interface {
	VerifyIDToken(ctx context.Context, token string) (string, error)
}

// RequirePassport rejects requests without a valid Bearer ID token and stores
// the token's wallet in the request context. Rejections carry no detail about
// why the token failed.
func RequirePassport(verifier PassportVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token := bearerToken(r)
			if token == "" {
				logger.WarnContext(ctx, "passport mint without id token",
					"request_id", requestcontext.RequestID(ctx),
				)
				unauthorized(w, "Missing authorization header")
				return
			}

			wallet, err := verifier.VerifyIDToken(ctx, token)
			if err != nil {
				logger.WarnContext(ctx, "passport id token rejected",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				unauthorized(w, "Invalid ID token")
				return
			}

			ctx = requestcontext.WithWallet(ctx, wallet, MethodPassport)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken returns the Bearer credential, accepting any scheme casing.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func unauthorized(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="mint"`)
	httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, desc))
}
