package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/collectible-requests/internal/access"
	"github.com/iliyamo/collectible-requests/internal/handler"    // import the handlers that implement business logic
	"github.com/iliyamo/collectible-requests/internal/middleware" // import middleware for JWT authentication and the admin gate
)

// Handlers groups every HTTP handler the router mounts.
type Handlers struct {
	Auth         *handler.AuthHandler
	Requests     *handler.RequestHandler
	AdminRequest *handler.AdminRequestHandler
	Chat         *handler.ChatHandler
	Showcase     *handler.ShowcaseHandler
	Uploads      *handler.UploadHandler
}

// Options carries the shared middleware.  Nil middleware is skipped.
type Options struct {
	JWTSecret string
	Gate      *access.Gate
	Cache     echo.MiddlewareFunc // response cache for GET views
	Limiter   echo.MiddlewareFunc // token bucket for sign-in and message sends
}

// Register mounts every route of the API.
func Register(e *echo.Echo, h Handlers, o Options) {
	RegisterRoutes(e)
	RegisterPublic(e, h.Showcase, o)
	RegisterAuth(e, h.Auth, o)
	RegisterUser(e, h, o)
	RegisterAdmin(e, h, o)
}

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterPublic registers the guest-visible showcase catalog.
func RegisterPublic(e *echo.Echo, s *handler.ShowcaseHandler, o Options) {
	e.GET("/v1/showcase", s.List, mw(o.Cache)...)
	e.GET("/v1/showcase/:id", s.Get, mw(o.Cache)...)
}

// RegisterAuth registers all authentication-related routes.  Register,
// login and refresh live under /v1/auth and need no session; /v1/me needs
// a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, o Options) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register, mw(o.Limiter)...)
	g.POST("/login", a.Login, mw(o.Limiter)...)
	g.POST("/refresh", a.Refresh)
	// Logout accepts either a refresh token in the body or the caller's
	// access token, so it is not behind JWTAuth.
	g.POST("/logout", a.Logout)

	e.GET("/v1/me", a.Me, middleware.JWTAuth(o.JWTSecret))
}

// RegisterUser registers the signed-in user's requests, threads and
// uploads.  Every route requires a valid access token; ownership is
// checked by the services.
func RegisterUser(e *echo.Echo, h Handlers, o Options) {
	g := e.Group("/v1", middleware.JWTAuth(o.JWTSecret))

	g.GET("/requests", h.Requests.ListMine, mw(o.Cache)...)
	g.POST("/requests", h.Requests.Create)
	g.GET("/requests/:id", h.Requests.Get, mw(o.Cache)...)
	g.DELETE("/requests/:id", h.Requests.Delete)

	// Threads are never cached: reading one clears the unread flag.
	g.GET("/requests/:id/messages", h.Chat.List)
	g.POST("/requests/:id/messages", h.Chat.Send, mw(o.Limiter)...)
	g.GET("/requests/:id/messages/stream", h.Chat.Stream)

	g.POST("/uploads/request-images", h.Uploads.RequestImages)
}

// RegisterAdmin registers the admin inbox and showcase maintenance under
// /v1/admin.  Routes require a valid token and the admin gate.
func RegisterAdmin(e *echo.Echo, h Handlers, o Options) {
	g := e.Group("/v1/admin",
		middleware.JWTAuth(o.JWTSecret),
		middleware.RequireAdmin(o.Gate),
	)

	g.GET("/requests", h.AdminRequest.ListAll, mw(o.Cache)...)
	g.GET("/requests/:id", h.Requests.Get, mw(o.Cache)...)
	g.PATCH("/requests/:id", h.AdminRequest.Update)

	g.POST("/showcase", h.Showcase.Create)
	g.POST("/showcase/images", h.Uploads.ShowcaseImage)
	g.PATCH("/showcase/:id", h.Showcase.Update)
	g.DELETE("/showcase/:id", h.Showcase.Delete)
	g.POST("/showcase/:id/toggle-sold", h.Showcase.ToggleSold)
}

func mw(m echo.MiddlewareFunc) []echo.MiddlewareFunc {
	if m == nil {
		return nil
	}
	return []echo.MiddlewareFunc{m}
}
