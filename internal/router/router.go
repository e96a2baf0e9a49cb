package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/journal-portal/internal/handler"
	"github.com/iliyamo/journal-portal/internal/middleware"
	"github.com/iliyamo/journal-portal/internal/model"
)

// Guard bundles the middleware chains shared by the route groups.
//
// Auth validates the access token and Activity records the request; both
// run on every authenticated group. Profile rejects callers without a
// completed profile. AuthLimit throttles credential endpoints and Cache
// serves public GETs from Redis. Every field must be non-nil; the
// middleware constructors return pass-throughs when a backend is missing.
type Guard struct {
	Auth      echo.MiddlewareFunc
	Activity  echo.MiddlewareFunc
	Profile   echo.MiddlewareFunc
	AuthLimit echo.MiddlewareFunc
	Cache     echo.MiddlewareFunc
}

func (g Guard) authed(extra ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	return append([]echo.MiddlewareFunc{g.Auth, g.Activity}, extra...)
}

// RegisterRoutes registers the unauthenticated infrastructure routes.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler, uploadDir string) {
	e.GET("/healthz", h.Health)
	e.GET("/api/health", h.Health)
	e.Static("/uploads", uploadDir)
}

// RegisterAuth mounts /api/auth. Register, login and the password reset
// request share the stricter auth limiter.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, g Guard) {
	pub := e.Group("/api/auth")
	pub.POST("/register", a.Register, g.AuthLimit)
	pub.POST("/login", a.Login, g.AuthLimit)
	pub.POST("/forgot-password", a.ForgotPassword, g.AuthLimit)
	pub.POST("/reset-password/:token", a.ResetPassword, g.AuthLimit)
	pub.POST("/refresh", a.Refresh)

	auth := e.Group("/api/auth", g.authed()...)
	auth.POST("/logout", a.Logout)
	auth.GET("/profile", a.Profile)
	auth.POST("/complete-profile", a.CompleteProfile)
	auth.PUT("/author-profile", a.UpdateAuthorProfile)
	auth.PUT("/password", a.ChangePassword)
}

// RegisterUsers mounts /api/users.
func RegisterUsers(e *echo.Echo, u *handler.UserHandler, g Guard) {
	users := e.Group("/api/users", g.authed()...)
	users.GET("/me", u.Me)
	users.PUT("/me/role", u.SelectRole)
	users.GET("/reviewers", u.Reviewers, middleware.RequireRole(model.RoleEditor))

	admin := users.Group("", middleware.RequireRole(model.RoleAdmin))
	admin.GET("", u.List)
	admin.PUT("/:id/role", u.ChangeRole)
}

// RegisterNotifications mounts /api/notifications. Every route acts on
// the caller's own notifications.
func RegisterNotifications(e *echo.Echo, n *handler.NotificationHandler, g Guard) {
	notes := e.Group("/api/notifications", g.authed()...)
	notes.GET("", n.List)
	notes.GET("/unread-count", n.UnreadCount)
	notes.PUT("/read-all", n.MarkAllRead)
	notes.PUT("/:id/read", n.MarkRead)
}

// RegisterAnalytics mounts the editor dashboard under /api/analytics.
func RegisterAnalytics(e *echo.Echo, a *handler.AnalyticsHandler, g Guard) {
	an := e.Group("/api/analytics", g.authed(middleware.RequireRole(model.RoleEditor))...)
	an.GET("/dashboard", a.Dashboard)
	an.GET("/article-stats", a.ArticleStats)
	an.GET("/activity", a.MyActivity)
}
