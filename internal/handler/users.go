package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/journal-portal/internal/apperr"
	"github.com/iliyamo/journal-portal/internal/config"
	"github.com/iliyamo/journal-portal/internal/middleware"
	"github.com/iliyamo/journal-portal/internal/model"
	"github.com/iliyamo/journal-portal/internal/service"
	"github.com/iliyamo/journal-portal/internal/utils"
)

type UserStore interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
	List(ctx context.Context, role model.Role, page, limit int) ([]model.User, int, error)
	ListByRole(ctx context.Context, role model.Role) ([]model.User, error)
	ChangeRole(ctx context.Context, id uint64, role model.Role, ns []model.Notification, evs []model.OutboxEvent) (model.Role, error)
}

// UserHandler serves account and role management.
type UserHandler struct {
	Cfg   config.Config
	Users UserStore
	Log   zerolog.Logger
}

func NewUserHandler(cfg config.Config, users UserStore, log zerolog.Logger) *UserHandler {
	return &UserHandler{Cfg: cfg, Users: users, Log: log}
}

func (h *UserHandler) Me(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Users.GetByID(ctx, middleware.UserID(c))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, u)
}

type roleReq struct {
	Role string `json:"role"`
}

// SelectRole lets a user pick author or reviewer for themselves. The
// response carries a fresh access token because the role is a claim.
func (h *UserHandler) SelectRole(c echo.Context) error {
	var req roleReq
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	role, valid := model.ParseRole(req.Role)
	if !valid {
		return apperr.Validation([]apperr.ValidationError{{Field: "role", Message: "unknown role"}})
	}
	if !role.SelfSelectable() {
		return apperr.Forbidden("this role can only be granted by an administrator")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	uid := middleware.UserID(c)
	if _, err := h.Users.ChangeRole(ctx, uid, role, nil, nil); err != nil {
		return err
	}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, uid, string(role), h.Cfg.AccessTTLMin)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{
		"role":   role,
		"access": tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

// List pages through all users. Admin only.
func (h *UserHandler) List(c echo.Context) error {
	var role model.Role
	if raw := c.QueryParam("role"); raw != "" {
		r, valid := model.ParseRole(raw)
		if !valid {
			return apperr.Validation([]apperr.ValidationError{{Field: "role", Message: "unknown role"}})
		}
		role = r
	}
	page, limit := queryInt(c, "page", 1), queryInt(c, "limit", 20)

	ctx, cancel := reqCtx(c)
	defer cancel()
	users, total, err := h.Users.List(ctx, role, page, limit)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"users": users, "total": total, "page": page, "limit": limit})
}

// ChangeRole is the admin role assignment. The affected user is notified
// in the same transaction; the new role reaches their token on refresh.
func (h *UserHandler) ChangeRole(c echo.Context) error {
	id, err := pathID(c, "id", "user")
	if err != nil {
		return err
	}
	var req roleReq
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	role, valid := model.ParseRole(req.Role)
	if !valid {
		return apperr.Validation([]apperr.ValidationError{{Field: "role", Message: "unknown role"}})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	ns, evs, err := service.BuildNotices(service.Notice{
		Type:    model.NotifyRoleChanged,
		Subject: "Your role has changed",
		Message: fmt.Sprintf("An administrator changed your role to %s.", role),
		Path:    "/dashboard",
		Data:    model.NotificationData{NewRole: role},
	}, u)
	if err != nil {
		return err
	}
	old, err := h.Users.ChangeRole(ctx, id, role, ns, evs)
	if err != nil {
		return err
	}
	h.Log.Info().Uint64("user_id", id).Str("old_role", string(old)).Str("new_role", string(role)).
		Uint64("admin_id", middleware.UserID(c)).Msg("role changed")
	u.Role = role
	return ok(c, http.StatusOK, u)
}

// Reviewers lists accounts that can be assigned a review.
func (h *UserHandler) Reviewers(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	out := []model.User{}
	for _, r := range []model.Role{model.RoleReviewer, model.RoleEditor} {
		users, err := h.Users.ListByRole(ctx, r)
		if err != nil {
			return err
		}
		out = append(out, users...)
	}
	return ok(c, http.StatusOK, out)
}
