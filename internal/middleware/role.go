package middleware // middleware provides shared request processing for handlers

import (
	"github.com/labstack/echo/v4" // echo provides middleware chaining and context

	"github.com/iliyamo/collectible-requests/internal/access"
)

// RequireAdmin returns a middleware that lets the request through only
// when the gate recognises the authenticated caller as the administrator.
// It must run after JWTAuth.  Missing identities are answered as
// unauthenticated; known non-admins get 403, or a redirect to their own
// page when the client is a browser.
func RequireAdmin(gate *access.Gate) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := CurrentIdentity(c)
			if !ok {
				return authRequired(c, "authentication required")
			}
			if !gate.IsAdmin(id) {
				return authDenied(c)
			}
			return next(c)
		}
	}
}
