package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	actorIDKey contextKey = "actor_id"
	rolesKey   contextKey = "actor_roles"
)

// Claims are the portal token claims. Only identity and roles are
// consumed here; session security is handled upstream.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

// Config holds the actor-identification settings.
type Config struct {
	// SigningKey verifies HMAC-signed bearer tokens.
	SigningKey []byte
}

// Middleware extracts the acting user from a bearer token so downstream
// handlers and the audit trail can attribute operations. Requests
// without a token proceed anonymously: audit records for failed or
// unauthenticated attempts carry no actor by design.
func Middleware(cfg Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return next(c)
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims,
				func(t *jwt.Token) (interface{}, error) { return cfg.SigningKey, nil },
				jwt.WithValidMethods([]string{"HS256"}),
			)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, actorIDKey, claims.Subject)
			ctx = context.WithValue(ctx, rolesKey, claims.Roles)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// DevMiddleware injects a default actor for unauthenticated requests in
// development mode.
func DevMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") == "" {
				ctx := c.Request().Context()
				ctx = context.WithValue(ctx, actorIDKey, "dev-user")
				ctx = context.WithValue(ctx, rolesKey, []string{"admin"})
				c.SetRequest(c.Request().WithContext(ctx))
			}
			return next(c)
		}
	}
}

// RequireRole returns middleware that rejects requests whose actor has
// none of the given roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actorRoles := RolesFromContext(c.Request().Context())
			for _, have := range actorRoles {
				for _, want := range roles {
					if have == want {
						return next(c)
					}
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "insufficient role")
		}
	}
}

// ActorIDFromContext returns the authenticated actor id, or "" for
// anonymous requests.
func ActorIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(actorIDKey).(string)
	return id
}

// RolesFromContext returns the actor's roles, or nil.
func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(rolesKey).([]string)
	return roles
}
