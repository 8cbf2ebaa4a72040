package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/equipedash/equipe-dash-go/internal/domain"
	"github.com/equipedash/equipe-dash-go/internal/infra/observability"
	"github.com/equipedash/equipe-dash-go/internal/port"
	"github.com/equipedash/equipe-dash-go/internal/service"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type contextKey string

const (
	profileKey contextKey = "profile"
	tokenKey   contextKey = "access_token"
)

// supabaseClaims is the subset of the Supabase access-token claims the
// middleware cares about.
type supabaseClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// AuthMiddleware validates Supabase access tokens (HS256, shared JWT
// secret) and injects the resolved UserProfile into the request
// context. Resolution goes through the session manager so a first-time
// identity is provisioned exactly the way a first login is; resolved
// profiles are cached briefly to keep hot paths off the backend.
func AuthMiddleware(sessions *service.SessionManager, cache port.Cache[*domain.UserProfile], jwtSecret string, metrics *observability.Metrics, logger *zap.Logger) func(http.Handler) http.Handler {
	secret := []byte(jwtSecret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token string
			authHeader := r.Header.Get("Authorization")
			switch {
			case authHeader != "":
				scheme, rest, ok := strings.Cut(authHeader, " ")
				if !ok || !strings.EqualFold(scheme, "Bearer") {
					writeError(w, http.StatusUnauthorized, "invalid token format")
					return
				}
				token = rest
			case r.URL.Query().Get("access_token") != "":
				// websocket clients cannot set headers
				token = r.URL.Query().Get("access_token")
			default:
				writeError(w, http.StatusUnauthorized, "missing access token")
				return
			}

			claims := &supabaseClaims{}
			_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return secret, nil
			})
			if err != nil {
				logger.Warn("auth: invalid or expired token",
					zap.String("path", r.URL.Path),
					zap.Error(err),
				)
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			sub := claims.Subject
			if sub == "" {
				writeError(w, http.StatusUnauthorized, "token missing subject")
				return
			}

			profile, hit := cache.Get(sub)
			if hit {
				metrics.IncrCacheHit("profile")
			} else {
				metrics.IncrCacheMiss("profile")
				profile, err = sessions.ResolveProfile(r.Context(), &port.AuthIdentity{
					ID:    sub,
					Email: claims.Email,
				})
				if err != nil {
					handleServiceError(w, err, logger)
					return
				}
				cache.Set(sub, profile)
			}

			ctx := context.WithValue(r.Context(), profileKey, profile)
			ctx = context.WithValue(ctx, tokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ProfileFromContext extracts the authenticated profile, or nil.
func ProfileFromContext(ctx context.Context) *domain.UserProfile {
	p, _ := ctx.Value(profileKey).(*domain.UserProfile)
	return p
}

// TokenFromContext extracts the caller's validated access token, so
// handlers acting on the session (logout) touch only the caller's own.
func TokenFromContext(ctx context.Context) string {
	tok, _ := ctx.Value(tokenKey).(string)
	return tok
}
