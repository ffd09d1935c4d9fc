package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/FACorreiaa/go-comment-suggestions/config"
	"github.com/FACorreiaa/go-comment-suggestions/internal/api"
	"github.com/FACorreiaa/go-comment-suggestions/internal/types"
)

type contextKey string

const sessionKey contextKey = "session"

// UserEnsurer mirrors the authenticated identity into the users table.
type UserEnsurer interface {
	EnsureUser(ctx context.Context, session types.Session) error
}

// Authenticate validates access tokens issued by the auth provider and puts
// the resulting Session on the request context.
func Authenticate(logger *slog.Logger, jwtCfg config.JWTConfig, users UserEnsurer) func(next http.Handler) http.Handler {
	secretKey := []byte(jwtCfg.SecretKey)
	if len(secretKey) == 0 {
		panic("JWT Secret Key cannot be empty")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			l := logger.With(slog.String("middleware", "Authenticate"))

			tokenString, ok := bearerToken(r)
			if !ok {
				l.WarnContext(ctx, "Missing or malformed Authorization header")
				api.ErrorResponse(w, r, http.StatusUnauthorized, "Authorization header format must be Bearer {token}")
				return
			}

			claims := &types.Claims{}
			token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				return secretKey, nil
			})
			if err != nil || !token.Valid {
				l.WarnContext(ctx, "Token parsing/validation failed", slog.Any("error", err))
				errMsg := "Invalid or expired token"
				switch {
				case errors.Is(err, jwt.ErrTokenExpired):
					errMsg = "Token has expired"
				case errors.Is(err, jwt.ErrTokenMalformed):
					errMsg = "Malformed token"
				case errors.Is(err, jwt.ErrSignatureInvalid):
					errMsg = "Invalid token signature"
				}
				api.ErrorResponse(w, r, http.StatusUnauthorized, errMsg)
				return
			}

			if jwtCfg.Issuer != "" && claims.Issuer != jwtCfg.Issuer {
				l.WarnContext(ctx, "Token issuer mismatch", slog.String("expected", jwtCfg.Issuer), slog.String("actual", claims.Issuer))
				api.ErrorResponse(w, r, http.StatusUnauthorized, "Invalid token issuer")
				return
			}
			if !api.VerifyAudience(claims.Audience, jwtCfg.Audience) {
				l.WarnContext(ctx, "Token audience mismatch", slog.String("expected", jwtCfg.Audience), slog.Any("actual", claims.Audience))
				api.ErrorResponse(w, r, http.StatusUnauthorized, "Invalid token audience")
				return
			}

			userID, err := uuid.Parse(claims.Subject)
			if err != nil {
				l.WarnContext(ctx, "Token subject is not a user id", slog.String("sub", claims.Subject))
				api.ErrorResponse(w, r, http.StatusUnauthorized, "Invalid token subject")
				return
			}

			session := types.Session{UserID: userID, Email: claims.Email, Role: claims.Role}
			if users != nil {
				if err := users.EnsureUser(ctx, session); err != nil {
					api.WriteError(w, r, l, fmt.Errorf("ensure user: %w", err))
					return
				}
			}

			l.DebugContext(ctx, "Authentication successful", slog.String("userID", userID.String()))
			next.ServeHTTP(w, r.WithContext(WithSession(ctx, session)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// WithSession returns a copy of ctx carrying session.
func WithSession(ctx context.Context, session types.Session) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// SessionFromContext returns the caller set by Authenticate.
func SessionFromContext(ctx context.Context) (types.Session, bool) {
	s, ok := ctx.Value(sessionKey).(types.Session)
	return s, ok && s.UserID != uuid.Nil
}
