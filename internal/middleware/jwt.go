package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"strings" // string utilities for prefix checking and trimming

	"github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

	"github.com/iliyamo/collectible-requests/internal/access"
	"github.com/iliyamo/collectible-requests/internal/utils"
)

// SessionCookie is the HttpOnly cookie holding the access token for
// browser clients.
const SessionCookie = "session"

// JWTAuth returns an Echo middleware that validates an access token and
// injects the caller's identity into the request context.  The token is
// read from a Bearer Authorization header, or from the session cookie
// when no header is sent.  Handlers read the identity via
// CurrentIdentity or `c.Get("user_id")`.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := AccessToken(c)
			if raw == "" {
				return authRequired(c, "missing bearer token")
			}

			// Signature, algorithm and expiry are checked by
			// ParseAccessToken; anything else is a 401.
			claims, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return authRequired(c, "invalid token")
			}
			uid, _ := claims.UserID()

			c.Set(KeyUserID, uid)
			c.Set(KeyEmail, claims.Email)
			c.Set(KeyIdentity, access.Identity{UserID: uid, Email: claims.Email})
			return next(c)
		}
	}
}

// AccessToken extracts the raw access token from a Bearer header, or from
// the session cookie when no header is sent.
func AccessToken(c echo.Context) string {
	if auth := c.Request().Header.Get(echo.HeaderAuthorization); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if ck, err := c.Cookie(SessionCookie); err == nil {
		return ck.Value
	}
	return ""
}
