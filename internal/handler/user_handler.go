package handler

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "lendingledger/internal/errors"
	"lendingledger/internal/model"
	"lendingledger/internal/service"
)

// UserHandler bundles HTTP handlers.
type UserHandler struct {
	svc service.UserService
}

// NewUserHandler creates a handler layer.
func NewUserHandler(svc service.UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

// RegisterRequest represents a user registration request.
type RegisterRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	Phone    string `json:"phone" validate:"required,phone"`
}

// UpdateUserRequest documents the body of PUT /users/{username}. Exactly one
// field must be present.
type UpdateUserRequest struct {
	Password string `json:"password,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Role     string `json:"role,omitempty" enums:"admin,regular"`
}

type passwordChange struct {
	Value string `validate:"required"`
}

type phoneChange struct {
	Value string `validate:"required,phone"`
}

type roleChange struct {
	Value string `validate:"required,oneof=admin regular"`
}

// UserResponse wraps a single user.
type UserResponse struct {
	User model.UserPublic `json:"user"`
}

// UsersResponse wraps all users keyed by username.
type UsersResponse struct {
	Users map[string]model.UserPublic `json:"users"`
}

// UserDeletedResponse confirms a removal and returns the removed user.
type UserDeletedResponse struct {
	Message string           `json:"message"`
	User    model.UserPublic `json:"user"`
}

// Register godoc
// @Summary Register a new user
// @Tags users
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration data"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /users [post]
func (h *UserHandler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if _, err := h.svc.Register(c.Request().Context(), req.Username, req.Password, req.Phone); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "Successfully registered."})
}

// ListUsers godoc
// @Summary List users
// @Tags users
// @Produce json
// @Security AccessToken
// @Success 200 {object} UsersResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /users [get]
func (h *UserHandler) ListUsers(c echo.Context) error {
	users, err := h.svc.ListUsers(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, UsersResponse{Users: users})
}

// GetUser godoc
// @Summary Get user by username
// @Tags users
// @Produce json
// @Security AccessToken
// @Param username path string true "Username"
// @Success 200 {object} UserResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /users/{username} [get]
func (h *UserHandler) GetUser(c echo.Context) error {
	user, err := h.svc.GetUser(c.Request().Context(), c.Param("username"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, UserResponse{User: user})
}

// UpdateUser godoc
// @Summary Change one attribute of a user
// @Description The body carries exactly one of password, phone or role.
// @Tags users
// @Accept json
// @Produce json
// @Security AccessToken
// @Param username path string true "Username"
// @Param request body UpdateUserRequest true "Single attribute change"
// @Success 200 {object} UserResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /users/{username} [put]
func (h *UserHandler) UpdateUser(c echo.Context) error {
	update, err := parseUserUpdate(c)
	if err != nil {
		return err
	}

	user, err := h.svc.UpdateUser(c.Request().Context(), c.Param("username"), update)
	if err != nil {
		return err
	}
	if update.Field == service.UpdatePassword {
		return c.JSON(http.StatusOK, MessageResponse{Message: "Password successfully changed."})
	}
	return c.JSON(http.StatusOK, UserResponse{User: user})
}

// DeleteUser godoc
// @Summary Delete a user
// @Tags users
// @Produce json
// @Security AccessToken
// @Param username path string true "Username"
// @Success 200 {object} UserDeletedResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /users/{username} [delete]
func (h *UserHandler) DeleteUser(c echo.Context) error {
	user, err := h.svc.RemoveUser(c.Request().Context(), c.Param("username"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, UserDeletedResponse{Message: "User successfully deleted.", User: user})
}

// parseUserUpdate turns a body holding exactly one known key into a typed
// update. Unknown keys, several keys and non-string values are rejected.
func parseUserUpdate(c echo.Context) (service.UserUpdate, error) {
	body, err := bindRawBody(c)
	if err != nil || len(body) != 1 {
		return service.UserUpdate{}, apperrors.ErrInvalidRequest
	}

	for key, raw := range body {
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return service.UserUpdate{}, apperrors.ErrInvalidRequest
		}
		switch key {
		case "password":
			if err := c.Validate(&passwordChange{Value: value}); err != nil {
				return service.UserUpdate{}, apperrors.ErrInvalidRequest
			}
			return service.PasswordUpdate(value), nil
		case "phone":
			if err := c.Validate(&phoneChange{Value: value}); err != nil {
				return service.UserUpdate{}, apperrors.ErrInvalidRequest
			}
			return service.PhoneUpdate(value), nil
		case "role":
			if err := c.Validate(&roleChange{Value: value}); err != nil {
				return service.UserUpdate{}, apperrors.ErrInvalidRequest
			}
			return service.RoleUpdate(model.Role(value)), nil
		}
	}
	return service.UserUpdate{}, apperrors.ErrInvalidRequest
}

// bindRawBody decodes a JSON object body keeping each value undecoded, so
// callers can tell a missing key from an explicit null.
func bindRawBody(c echo.Context) (map[string]json.RawMessage, error) {
	var body map[string]json.RawMessage
	if err := (&echo.DefaultBinder{}).BindBody(c, &body); err != nil {
		return nil, err
	}
	return body, nil
}
