package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/service"
)

// UserHandler serves /users.  The admin routes are gated by RequireRole in
// the router; the service checks the role again.
type UserHandler struct {
	Users *service.UserService
}

func NewUserHandler(users *service.UserService) *UserHandler {
	return &UserHandler{Users: users}
}

type updateProfileReq struct {
	Name  *string `json:"name" validate:"omitnil,min=2,max=50"`
	Email *string `json:"email" validate:"omitnil,email"`
}

type adminUpdateUserReq struct {
	Name     *string `json:"name" validate:"omitnil,min=2,max=50"`
	Email    *string `json:"email" validate:"omitnil,email"`
	Role     *string `json:"role" validate:"omitnil,oneof=user admin"`
	IsActive *bool   `json:"isActive"`
}

type listUsersReq struct {
	Role  string `query:"role" validate:"omitempty,oneof=user admin"`
	Page  int    `query:"page" validate:"omitempty,min=1"`
	Limit int    `query:"limit" validate:"omitempty,min=1"`
}

func (h *UserHandler) Profile(c echo.Context) error {
	who, err := identity(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	u, err := h.Users.Profile(ctx, who)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "", echo.Map{"user": u})
}

func (h *UserHandler) UpdateProfile(c echo.Context) error {
	who, err := identity(c)
	if err != nil {
		return err
	}
	var req updateProfileReq
	if err := bindAndValidate(c, &req, func(r *updateProfileReq) {
		trimPtr(r.Name)
		lowerPtr(r.Email)
	}); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	u, err := h.Users.UpdateProfile(ctx, who, service.UserFields{Name: req.Name, Email: req.Email})
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "Profile updated successfully", echo.Map{"user": u})
}

func (h *UserHandler) List(c echo.Context) error {
	who, err := identity(c)
	if err != nil {
		return err
	}
	var req listUsersReq
	if err := bindAndValidate(c, &req, func(r *listUsersReq) {
		r.Role = strings.ToLower(strings.TrimSpace(r.Role))
	}); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	users, pg, err := h.Users.List(ctx, who, model.Role(req.Role), req.Page, req.Limit)
	if err != nil {
		return err
	}
	return successPage(c, http.StatusOK, len(users), pg, echo.Map{"users": users})
}

func (h *UserHandler) Get(c echo.Context) error {
	who, err := identity(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	u, err := h.Users.Get(ctx, who, id)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "", echo.Map{"user": u})
}

func (h *UserHandler) Update(c echo.Context) error {
	who, err := identity(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req adminUpdateUserReq
	if err := bindAndValidate(c, &req, func(r *adminUpdateUserReq) {
		trimPtr(r.Name)
		lowerPtr(r.Email)
		lowerPtr(r.Role)
	}); err != nil {
		return err
	}

	f := service.UserFields{Name: req.Name, Email: req.Email, IsActive: req.IsActive}
	if req.Role != nil {
		role := model.Role(*req.Role)
		f.Role = &role
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	u, err := h.Users.Update(ctx, who, id, f)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "User updated successfully", echo.Map{"user": u})
}

func (h *UserHandler) Delete(c echo.Context) error {
	who, err := identity(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.Users.Delete(ctx, who, id); err != nil {
		return err
	}
	return success(c, http.StatusOK, "User deleted successfully", nil)
}
