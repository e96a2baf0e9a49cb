package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/journal-portal/internal/handler"
	"github.com/iliyamo/journal-portal/internal/middleware"
	"github.com/iliyamo/journal-portal/internal/model"
)

// RegisterContent mounts the editorial board, static content, newsletter,
// cases and waitlist routes.
func RegisterContent(e *echo.Echo, h *handler.ContentHandler, g Guard) {
	admin := g.authed(middleware.RequireRole(model.RoleAdmin))
	staff := g.authed(middleware.RequireRole(model.RoleEditor))

	board := e.Group("/api/editorialBoard")
	board.GET("", h.ListBoard, g.Cache)
	board.GET("/:id", h.GetBoardMember, g.Cache)
	board.POST("", h.CreateBoardMember, admin...)
	board.PUT("/:id", h.UpdateBoardMember, admin...)
	board.DELETE("/:id", h.DeleteBoardMember, admin...)

	static := e.Group("/api/staticContent")
	static.GET("", h.ListStatic, g.Cache)
	static.GET("/:id", h.GetStatic, g.Cache)
	static.POST("", h.CreateStatic, admin...)
	static.PUT("/:id", h.UpdateStatic, admin...)
	static.DELETE("/:id", h.DeleteStatic, admin...)

	e.POST("/api/newsletter", h.Subscribe, g.AuthLimit)
	e.GET("/api/newsletter", h.Subscribers, admin...)

	e.POST("/api/cases", h.CreateCase, g.authed()...)
	e.GET("/api/cases", h.ListCases, staff...)

	e.POST("/api/waitlist", h.JoinWaitlist, g.AuthLimit)
	e.GET("/api/waitlist", h.ListWaitlist, staff...)
}

// RegisterPages mounts the document-backed site sections under
// /api/pages. The static about and channel routes take precedence over
// the :kind parameter.
func RegisterPages(e *echo.Echo, p *handler.PageHandler, g Guard) {
	admin := g.authed(middleware.RequireRole(model.RoleAdmin))

	pages := e.Group("/api/pages")
	pages.GET("/about", p.About)
	pages.PUT("/about", p.PutAbout, admin...)
	pages.POST("/channels/:id/join", p.JoinChannel, g.authed()...)
	pages.POST("/channels/:id/leave", p.LeaveChannel, g.authed()...)

	pages.GET("/:kind", p.List)
	pages.GET("/:kind/:id", p.Get)
	pages.POST("/:kind", p.Create, admin...)
	pages.PUT("/:kind/:id", p.Update, admin...)
	pages.DELETE("/:kind/:id", p.Delete, admin...)
	pages.POST("/:kind/:id/bookmark", p.ToggleBookmark, g.authed()...)
}
