package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/service"
)

// AuthHandler serves /auth.
type AuthHandler struct {
	Auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{Auth: auth}
}

type registerReq struct {
	Name     string `json:"name" validate:"required,min=2,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,strongpassword"`
}

type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshReq struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type sessionResp struct {
	User                 model.User `json:"user"`
	AccessToken          string     `json:"accessToken"`
	AccessTokenExpiresAt time.Time  `json:"accessTokenExpiresAt"`
	RefreshToken         string     `json:"refreshToken"`
}

type tokensResp struct {
	AccessToken          string    `json:"accessToken"`
	AccessTokenExpiresAt time.Time `json:"accessTokenExpiresAt"`
	RefreshToken         string    `json:"refreshToken"`
}

func newSessionResp(s service.Session) sessionResp {
	return sessionResp{
		User:                 s.User,
		AccessToken:          s.Access.Token,
		AccessTokenExpiresAt: s.Access.Exp,
		RefreshToken:         s.Refresh.Raw,
	}
}

// Register creates an account and logs it in.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bindAndValidate(c, &req, func(r *registerReq) {
		trimPtr(&r.Name)
		lowerPtr(&r.Email)
	}); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	u, err := h.Auth.Register(ctx, service.RegisterInput{Name: req.Name, Email: req.Email, Password: req.Password})
	if err != nil {
		return err
	}
	sess, err := h.Auth.StartSession(ctx, u)
	if err != nil {
		return err
	}
	return success(c, http.StatusCreated, "User registered successfully", newSessionResp(sess))
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bindAndValidate(c, &req, func(r *loginReq) { lowerPtr(&r.Email) }); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	sess, err := h.Auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "Login successful", newSessionResp(sess))
}

// Refresh rotates the refresh token and issues a new access token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := bindAndValidate(c, &req, func(r *refreshReq) { trimPtr(&r.RefreshToken) }); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	pair, err := h.Auth.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "Token refreshed successfully", tokensResp{
		AccessToken:          pair.Access.Token,
		AccessTokenExpiresAt: pair.Access.Exp,
		RefreshToken:         pair.Refresh.Raw,
	})
}

// Logout ends the caller's session.  Access tokens already issued stay
// valid until they expire.
func (h *AuthHandler) Logout(c echo.Context) error {
	who, err := identity(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.Auth.Logout(ctx, who.UserID); err != nil {
		return err
	}
	return success(c, http.StatusOK, "Logout successful", nil)
}
