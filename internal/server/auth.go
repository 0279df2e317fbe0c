package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"devquest/internal/domain"
	"devquest/internal/engine"
)

const defaultTokenTTL = 24 * time.Hour

// AuthConfig configures request authentication. AllowActorHeader trusts
// X-Actor-Id without credentials and is meant for local development only.
type AuthConfig struct {
	JWTSecret        string
	TokenTTL         time.Duration
	AllowActorHeader bool
	Logger           *slog.Logger
}

// Principal is the authenticated caller of a request.
type Principal struct {
	Actor domain.Actor
}

type principalKey struct{}

func (c AuthConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c AuthConfig) ttl() time.Duration {
	if c.TokenTTL > 0 {
		return c.TokenTTL
	}
	return defaultTokenTTL
}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func actorFromContext(ctx context.Context) (domain.Actor, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok && p.Actor.ID != "" {
		return p.Actor, nil
	}
	return domain.Actor{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Role domain.Role `json:"role,omitempty"`
}

func signToken(secret string, actor domain.Actor, now time.Time, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, errors.New("jwt secret not configured")
	}
	expires := now.Add(ttl)
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    "devquest",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Role: actor.Role,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	return token, expires, err
}

// authenticateJWT returns the subject of a valid token.
func authenticateJWT(token string, secret string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	if !parsed.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("subject claim required")
	}
	return claims.Subject, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// newAuthMiddleware resolves the caller to a stored actor. The role always
// comes from the database, never from the token.
func newAuthMiddleware(basePath string, cfg AuthConfig, e engine.Engine) func(http.Handler) http.Handler {
	public := map[string]bool{
		path.Join(basePath, "health"):        true,
		path.Join(basePath, "openapi.json"):  true,
		path.Join(basePath, "auth/login"):    true,
		path.Join(basePath, "auth/register"): true,
	}
	unauthorized := func(w http.ResponseWriter) {
		respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			// Only enforce for API base path.
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if public[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}

			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			apiKeyHeader := strings.TrimSpace(req.Header.Get("X-Api-Key"))
			devActor := strings.TrimSpace(req.Header.Get("X-Actor-Id"))
			ctx := req.Context()

			var (
				actor  domain.Actor
				source string
				err    error
			)
			switch {
			case authz != "":
				token, ok := bearerToken(authz)
				if !ok {
					unauthorized(w)
					return
				}
				subject, jwtErr := authenticateJWT(token, cfg.JWTSecret)
				if jwtErr != nil {
					cfg.logger().Debug("jwt rejected", "error", jwtErr)
					unauthorized(w)
					return
				}
				actor, err = e.Actor(ctx, subject)
				source = "jwt"
			case apiKeyHeader != "":
				actor, err = e.ActorByAPIKey(ctx, apiKeyHeader)
				source = "api_key"
			case devActor != "" && cfg.AllowActorHeader:
				cfg.logger().Warn("using X-Actor-Id header without credentials; development only", "actor_id", devActor)
				actor, err = e.Actor(ctx, devActor)
				source = "actor_header"
			default:
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
				return
			}
			if err != nil {
				var nf engine.NotFoundError
				if errors.As(err, &nf) {
					unauthorized(w)
					return
				}
				respondStatusError(w, handleError(err))
				return
			}
			cfg.logger().Debug("request authenticated", "actor_id", actor.ID, "via", source, "path", req.URL.Path)
			next.ServeHTTP(w, req.WithContext(withPrincipal(ctx, Principal{Actor: actor})))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
