package middleware

// identity.go holds the context keys set by JWTAuth and the helpers the
// other middleware use to read them back.

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/collectible-requests/internal/access"
)

// Context keys written by JWTAuth.
const (
	KeyUserID   = "user_id"  // uint64
	KeyEmail    = "email"    // string
	KeyIdentity = "identity" // access.Identity
)

// CurrentIdentity returns the authenticated caller stored by JWTAuth.
func CurrentIdentity(c echo.Context) (access.Identity, bool) {
	id, ok := c.Get(KeyIdentity).(access.Identity)
	return id, ok && id.UserID != 0
}

// actorKey names the caller for cache and rate limit keys.
func actorKey(c echo.Context) string {
	if id, ok := CurrentIdentity(c); ok {
		return "u" + strconv.FormatUint(id.UserID, 10)
	}
	return "guest"
}

// wantsHTML reports whether the client is a browser navigation, which
// gets redirects instead of JSON errors.
func wantsHTML(c echo.Context) bool {
	return strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMETextHTML)
}

// authRequired answers an unauthenticated request.
func authRequired(c echo.Context, msg string) error {
	if wantsHTML(c) {
		return c.Redirect(http.StatusSeeOther, "/login")
	}
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": msg})
}

// authDenied answers an authenticated caller lacking the admin role.
func authDenied(c echo.Context) error {
	if wantsHTML(c) {
		return c.Redirect(http.StatusSeeOther, "/mypage")
	}
	return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
}
