package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/journal-portal/internal/handler"
	"github.com/iliyamo/journal-portal/internal/middleware"
	"github.com/iliyamo/journal-portal/internal/model"
)

// RegisterSubmissions mounts the editorial workflow: /api/submissions,
// /api/reviews and the /api/manuscripts dashboard facade.
func RegisterSubmissions(e *echo.Echo, s *handler.SubmissionHandler, g Guard) {
	editor := middleware.RequireRole(model.RoleEditor)
	author := middleware.RequireRole(model.RoleAuthor)

	subs := e.Group("/api/submissions", g.authed()...)
	subs.POST("", s.Create, author, g.Profile)
	subs.GET("", s.List)
	subs.GET("/:id", s.Get)
	subs.GET("/:id/reviews", s.Reviews)
	subs.GET("/:id/history", s.History)
	subs.POST("/:id/revision", s.Revision, author)
	subs.PATCH("/:id/assign-reviewers", s.AssignReviewers, editor)
	subs.PATCH("/:id/approve", s.Approve, editor)
	subs.PATCH("/:id/reject", s.Reject, editor)
	subs.PATCH("/:id/request-revision", s.RequestRevision, editor)
	subs.PATCH("/:id/publish", s.Publish, middleware.RequireRole(model.RolePublisher, model.RoleEditor))

	reviews := e.Group("/api/reviews", g.authed()...)
	reviews.GET("/mine", s.MyReviews, middleware.RequireRole(model.RoleReviewer))
	reviews.POST("/submit", s.SubmitReview, middleware.RequireRole(model.RoleReviewer))
	reviews.PATCH("/:id/withdraw", s.WithdrawReview, editor)

	ms := e.Group("/api/manuscripts", g.authed()...)
	ms.POST("/submit", s.SubmitManuscript, author, g.Profile)
	ms.GET("/all", s.AllManuscripts)
	ms.POST("/assign", s.AssignManuscript, editor)
	ms.POST("/review", s.ReviewManuscript, middleware.RequireRole(model.RoleReviewer))
}

// RegisterArticles mounts the public catalogue. GETs go through the
// response cache; publishing and featuring purge it.
func RegisterArticles(e *echo.Echo, a *handler.ArticleHandler, g Guard) {
	pub := e.Group("/api/articles", g.Cache)
	pub.GET("", a.List)
	pub.GET("/featured", a.Featured)
	pub.GET("/issues", a.Issues)
	pub.GET("/:id", a.Get)

	e.PATCH("/api/articles/:id/featured", a.SetFeatured,
		g.authed(middleware.RequireRole(model.RoleEditor))...)
}
