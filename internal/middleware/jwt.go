package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/task-manager/internal/apperr"
	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/repository"
	"github.com/iliyamo/task-manager/internal/utils"
)

// UserLookup resolves the subject of an access token in strict mode.
type UserLookup interface {
	UserByID(ctx context.Context, id string) (model.User, error)
}

// JWTAuth validates a Bearer access token and attaches the caller's
// identity to the request context.  In strict mode the subject must still
// exist and be active, and the stored role replaces the role claim so role
// changes and deactivation take effect before the token expires.
func JWTAuth(tokens *utils.TokenService, users UserLookup, strict bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return apperr.Unauthorized("Not authorized, no token")
			}
			v, err := tokens.Verify(raw, utils.KindAccess)
			if err != nil {
				return apperr.Unauthorized("Not authorized, token failed")
			}
			id := model.Identity{UserID: v.UserID, Role: v.Role}

			if strict && users != nil {
				ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
				u, err := users.UserByID(ctx, v.UserID)
				cancel()
				switch {
				case errors.Is(err, repository.ErrNotFound):
					return apperr.Unauthorized("Not authorized, user not found")
				case err != nil:
					return apperr.Internal(err)
				case !u.IsActive:
					return apperr.Unauthorized("Not authorized, account is deactivated")
				}
				id.Role = u.Role
			}

			setIdentity(c, id)
			return next(c)
		}
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header.  The scheme is case-insensitive.
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
