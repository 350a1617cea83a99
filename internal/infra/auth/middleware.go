package auth

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// TokenValidator — проверка bearer-токена консоли.
type TokenValidator interface {
	VerifyToken(tokenStr string) (*Claims, error)
}

type ctxKey int

const claimsKey ctxKey = iota

// ClaimsFrom достает проверенные claims из контекста запроса.
func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok
}

// NewMiddleware пропускает только запросы с валидным токеном и нужной областью.
func NewMiddleware(v TokenValidator, scope string, logger *zap.Logger) func(http.Handler) http.Handler {
	logger = logger.With(zap.String("mod", "auth"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if !claims.Allows(scope) {
				logger.Warn("auth failure", zap.String("user_id", claims.UserID), zap.Error(ErrInsufficientScope))
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
