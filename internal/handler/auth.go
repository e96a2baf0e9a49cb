package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/journal-portal/internal/apperr"
	"github.com/iliyamo/journal-portal/internal/config"
	"github.com/iliyamo/journal-portal/internal/logger"
	"github.com/iliyamo/journal-portal/internal/mailer"
	"github.com/iliyamo/journal-portal/internal/middleware"
	"github.com/iliyamo/journal-portal/internal/model"
	"github.com/iliyamo/journal-portal/internal/repository"
	"github.com/iliyamo/journal-portal/internal/utils"
)

// AuthUsers is the slice of the user store the auth endpoints need.
type AuthUsers interface {
	Create(ctx context.Context, email, passwordHash, phone string) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	GetByResetToken(ctx context.Context, tokenHash string) (model.User, error)
	RecordFailedLogin(ctx context.Context, id uint64, maxAttempts int, lockout time.Duration) (int, *time.Time, error)
	RecordSuccessfulLogin(ctx context.Context, id uint64) error
	SetResetToken(ctx context.Context, id uint64, tokenHash string, exp time.Time) error
	PasswordHistory(ctx context.Context, id uint64, limit int) ([]string, error)
	UpdatePassword(ctx context.Context, id uint64, newHash string, keep int) error
	CompleteProfile(ctx context.Context, id uint64, p *model.AuthorProfile, note *model.Notification) error
	UpdateAuthorProfile(ctx context.Context, id uint64, p *model.AuthorProfile) error
}

type RefreshTokens interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	Rotate(ctx context.Context, userID uint64, oldHash, newHash string, exp time.Time) error
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg       config.Config
	Users     AuthUsers
	Tokens    RefreshTokens
	Blacklist middleware.Blacklist
	Mail      mailer.Sender
	Log       zerolog.Logger
	audit     zerolog.Logger
}

func NewAuthHandler(cfg config.Config, u AuthUsers, t RefreshTokens, bl middleware.Blacklist, mail mailer.Sender, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Blacklist: bl, Mail: mail, Log: log, audit: logger.Audit(log)}
}

// ----- DTOs -----

type registerReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID                uint64     `json:"id"`
	Email             string     `json:"email"`
	Role              model.Role `json:"role"`
	IsProfileComplete bool       `json:"isProfileComplete"`
}
type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func (h *AuthHandler) auditEvent(c echo.Context, event string, userID uint64, success bool) {
	h.audit.Info().
		Str("event", event).
		Uint64("user_id", userID).
		Str("ip", c.RealIP()).
		Bool("success", success).
		Msg("auth")
}

// issue creates a token pair and stores the refresh hash. The access
// token is also set as an HttpOnly cookie for browser clients.
func (h *AuthHandler) issue(ctx context.Context, c echo.Context, u model.User) (authResp, error) {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, string(u.Role), h.Cfg.AccessTTLMin)
	if err != nil {
		return authResp{}, err
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return authResp{}, err
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashToken(refresh.Raw), refresh.Exp); err != nil {
		return authResp{}, err
	}
	h.setAccessCookie(c, access)
	return authResp{
		User:    userPart{ID: u.ID, Email: u.Email, Role: u.Role, IsProfileComplete: u.IsProfileComplete},
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp},
	}, nil
}

func (h *AuthHandler) setAccessCookie(c echo.Context, access utils.AccessToken) {
	c.SetCookie(&http.Cookie{
		Name:     middleware.AccessCookie,
		Value:    access.Token,
		Path:     "/",
		Expires:  access.Exp,
		HttpOnly: true,
		Secure:   !h.Cfg.IsDevelopment(),
		SameSite: http.SameSiteLaxMode,
	})
}

func passwordErrors(problems []string) error {
	errs := make([]apperr.ValidationError, 0, len(problems))
	for _, p := range problems {
		errs = append(errs, apperr.ValidationError{Field: "password", Message: p})
	}
	return apperr.Validation(errs)
}

// Register creates a user without a role and returns tokens immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	req.Email = utils.NormalizeEmail(req.Email)
	if !utils.ValidEmail(req.Email) {
		return apperr.Validation([]apperr.ValidationError{{Field: "email", Message: "a valid email is required"}})
	}
	if problems := utils.ValidatePassword(req.Password, req.Email); len(problems) > 0 {
		return passwordErrors(problems)
	}
	hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return err
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	uid, err := h.Users.Create(ctx, req.Email, hash, strings.TrimSpace(req.Phone))
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return apperr.New(http.StatusConflict, apperr.CodeDuplicate, "email already registered")
		}
		return err
	}
	h.auditEvent(c, "register", uid, true)

	resp, err := h.issue(ctx, c, model.User{ID: uid, Email: req.Email})
	if err != nil {
		return err
	}
	return ok(c, http.StatusCreated, resp)
}

// Login verifies credentials and applies the lockout policy.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	req.Email = utils.NormalizeEmail(req.Email)
	if req.Email == "" || req.Password == "" {
		return apperr.Validation(required(map[string]string{"email": req.Email, "password": req.Password}))
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.auditEvent(c, "login", 0, false)
			return apperr.Unauthorized("invalid credentials")
		}
		return err
	}
	now := time.Now().UTC()
	if rem := u.LockRemaining(now); rem > 0 {
		h.auditEvent(c, "login_locked", u.ID, false)
		return apperr.Locked(rem)
	}
	if !u.IsActive {
		h.auditEvent(c, "login_inactive", u.ID, false)
		return apperr.Forbidden("account is disabled")
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		h.auditEvent(c, "login", u.ID, false)
		count, lockedUntil, err := h.Users.RecordFailedLogin(ctx, u.ID, h.Cfg.MaxLoginAttempts, h.Cfg.LockoutDuration)
		if err != nil {
			return err
		}
		if lockedUntil != nil && lockedUntil.After(now) {
			h.Log.Warn().Uint64("user_id", u.ID).Time("locked_until", *lockedUntil).Msg("account locked")
			return apperr.Locked(lockedUntil.Sub(now))
		}
		left := h.Cfg.MaxLoginAttempts - count
		if left < 0 {
			left = 0
		}
		return apperr.Unauthorized("invalid credentials").WithDetails(map[string]int{"attemptsRemaining": left})
	}

	if err := h.Users.RecordSuccessfulLogin(ctx, u.ID); err != nil {
		return err
	}
	h.auditEvent(c, "login", u.ID, true)
	resp, err := h.issue(ctx, c, u)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, resp)
}

// Refresh exchanges a refresh token for a new pair. The old token is
// revoked in the same transaction, so it works exactly once.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	raw := strings.TrimSpace(req.RefreshToken)
	if raw == "" {
		return apperr.Validation([]apperr.ValidationError{{Field: "refresh_token", Message: "refresh_token is required"}})
	}
	hash := utils.HashToken(raw)

	ctx, cancel := reqCtx(c)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.New(http.StatusUnauthorized, apperr.CodeInvalidToken, "invalid refresh token")
		}
		return err
	}
	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.New(http.StatusUnauthorized, apperr.CodeInvalidToken, "invalid refresh token")
		}
		return err
	}

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, string(u.Role), h.Cfg.AccessTTLMin)
	if err != nil {
		return err
	}
	newRef, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return err
	}
	if err := h.Tokens.Rotate(ctx, u.ID, hash, utils.HashToken(newRef.Raw), newRef.Exp); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.auditEvent(c, "refresh_reuse", u.ID, false)
			return apperr.New(http.StatusUnauthorized, apperr.CodeInvalidToken, "invalid refresh token")
		}
		return err
	}
	h.setAccessCookie(c, access)
	return ok(c, http.StatusOK, authResp{
		User:    userPart{ID: u.ID, Email: u.Email, Role: u.Role, IsProfileComplete: u.IsProfileComplete},
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: newRef.Raw, Expires: newRef.Exp},
	})
}

// Logout blacklists the current access token and revokes either the given
// refresh token or every refresh token of the user.
func (h *AuthHandler) Logout(c echo.Context) error {
	uid := middleware.UserID(c)
	var req refreshReq
	_ = c.Bind(&req)
	refreshToken := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := reqCtx(c)
	defer cancel()

	if jti, exp := middleware.TokenID(c); jti != "" && h.Blacklist != nil {
		if err := h.Blacklist.Revoke(ctx, jti, exp); err != nil {
			return err
		}
	}
	if refreshToken != "" {
		if err := h.Tokens.RevokeByHash(ctx, utils.HashToken(refreshToken)); err != nil {
			return err
		}
	} else if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
		return err
	}
	c.SetCookie(&http.Cookie{Name: middleware.AccessCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	h.auditEvent(c, "logout", uid, true)
	return message(c, "logged out")
}

type forgotReq struct {
	Email string `json:"email"`
}

// ForgotPassword mails a reset link. The response never reveals whether
// the email belongs to an account.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotReq
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	email := utils.NormalizeEmail(req.Email)
	const reply = "if that email is registered, a reset link has been sent"
	if !utils.ValidEmail(email) {
		return apperr.Validation([]apperr.ValidationError{{Field: "email", Message: "a valid email is required"}})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.auditEvent(c, "forgot_password", 0, false)
			return message(c, reply)
		}
		return err
	}
	raw, hash, err := utils.NewResetToken()
	if err != nil {
		return err
	}
	if err := h.Users.SetResetToken(ctx, u.ID, hash, time.Now().UTC().Add(h.Cfg.ResetTTL)); err != nil {
		return err
	}
	link := strings.TrimRight(h.Cfg.FrontendURL, "/") + "/reset-password/" + raw
	html := mailer.Build("Reset your password", []string{
		"We received a request to reset the password for your account.",
		"The link below is valid for one hour. If you did not ask for this, ignore this email.",
	}, "Reset password", link)
	if err := h.Mail.Send(ctx, []string{u.Email}, "Reset your password", html); err != nil {
		h.Log.Error().Err(err).Uint64("user_id", u.ID).Msg("reset mail failed")
	}
	h.auditEvent(c, "forgot_password", u.ID, true)
	return message(c, reply)
}

type resetReq struct {
	Password string `json:"password"`
}

// setPassword applies the policy and history rules shared by reset and
// change.
func (h *AuthHandler) setPassword(ctx context.Context, u model.User, plain string) error {
	if problems := utils.ValidatePassword(plain, u.Email); len(problems) > 0 {
		return passwordErrors(problems)
	}
	history, err := h.Users.PasswordHistory(ctx, u.ID, h.Cfg.PasswordHistory)
	if err != nil {
		return err
	}
	if utils.VerifyPassword(u.PasswordHash, plain) || utils.ReusesPassword(plain, history) {
		return passwordErrors([]string{"password was used recently, choose a different one"})
	}
	hash, err := utils.HashPassword(plain, h.Cfg.BcryptCost)
	if err != nil {
		return err
	}
	return h.Users.UpdatePassword(ctx, u.ID, hash, h.Cfg.PasswordHistory)
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	token := strings.TrimSpace(c.Param("token"))
	var req resetReq
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByResetToken(ctx, utils.HashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.BadRequest("reset link is invalid or has expired")
		}
		return err
	}
	if err := h.setPassword(ctx, u, req.Password); err != nil {
		return err
	}
	if err := h.Tokens.RevokeAllForUser(ctx, u.ID); err != nil {
		return err
	}
	h.auditEvent(c, "reset_password", u.ID, true)
	resp, err := h.issue(ctx, c, u)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, resp)
}

type changePasswordReq struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *AuthHandler) ChangePassword(c echo.Context) error {
	var req changePasswordReq
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if errs := required(map[string]string{"currentPassword": req.CurrentPassword, "newPassword": req.NewPassword}); len(errs) > 0 {
		return apperr.Validation(errs)
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByID(ctx, middleware.UserID(c))
	if err != nil {
		return err
	}
	if !utils.VerifyPassword(u.PasswordHash, req.CurrentPassword) {
		h.auditEvent(c, "change_password", u.ID, false)
		return apperr.Unauthorized("current password is incorrect")
	}
	if err := h.setPassword(ctx, u, req.NewPassword); err != nil {
		return err
	}
	h.auditEvent(c, "change_password", u.ID, true)
	return message(c, "password updated")
}
