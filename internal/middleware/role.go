package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/task-manager/internal/apperr"
	"github.com/iliyamo/task-manager/internal/model"
)

// RequireRole lets the request through only when the caller's role is one
// of roles.  It reads the identity JWTAuth attached, so it must be mounted
// after JWTAuth; without an identity the request is Unauthorized.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := CurrentIdentity(c)
			if !ok {
				return apperr.Unauthorized("Not authorized, no token")
			}
			if !allowed[id.Role] {
				return apperr.Forbidden("User role " + string(id.Role) + " is not authorized to access this route")
			}
			return next(c)
		}
	}
}
