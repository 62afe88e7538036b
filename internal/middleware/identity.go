package middleware

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/task-manager/internal/model"
)

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity attached by JWTAuth, if any.
func IdentityFrom(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(model.Identity)
	return id, ok && id.UserID != ""
}

// CurrentIdentity is IdentityFrom for an echo request.
func CurrentIdentity(c echo.Context) (model.Identity, bool) {
	return IdentityFrom(c.Request().Context())
}

func setIdentity(c echo.Context, id model.Identity) {
	r := c.Request()
	c.SetRequest(r.WithContext(WithIdentity(r.Context(), id)))
}

// userKey names the caller for rate-limit and cache keys.
func userKey(c echo.Context) string {
	if id, ok := CurrentIdentity(c); ok {
		return id.UserID
	}
	return "anon"
}
