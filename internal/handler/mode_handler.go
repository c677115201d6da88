package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"lendingledger/internal/model"
	"lendingledger/internal/service"
)

// ModeHandler exposes the loan mode.
type ModeHandler struct {
	modeService service.ModeService
}

// NewModeHandler creates a new mode handler.
func NewModeHandler(modeService service.ModeService) *ModeHandler {
	return &ModeHandler{modeService: modeService}
}

// ModeRequest sets the loan mode.
type ModeRequest struct {
	Mode string `json:"mode" validate:"required" enums:"self-service,admin-operated"`
}

// ModeResponse carries the current loan mode.
type ModeResponse struct {
	Mode model.Mode `json:"mode"`
}

// GetMode godoc
// @Summary Get the loan mode
// @Tags mode
// @Produce json
// @Security AccessToken
// @Success 200 {object} ModeResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /mode [get]
func (h *ModeHandler) GetMode(c echo.Context) error {
	mode, err := h.modeService.GetMode(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ModeResponse{Mode: mode})
}

// SetMode godoc
// @Summary Set the loan mode
// @Tags mode
// @Accept json
// @Produce json
// @Security AccessToken
// @Param request body ModeRequest true "New mode"
// @Success 200 {object} ModeResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /mode [put]
func (h *ModeHandler) SetMode(c echo.Context) error {
	var req ModeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	mode, err := h.modeService.SetMode(c.Request().Context(), model.Mode(req.Mode))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ModeResponse{Mode: mode})
}
