package handler

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "lendingledger/internal/errors"
	"lendingledger/internal/model"
	"lendingledger/internal/service"
)

// LoanItemHandler handles loan item HTTP requests.
type LoanItemHandler struct {
	loanService service.LoanService
}

// NewLoanItemHandler creates a new loan item handler.
func NewLoanItemHandler(loanService service.LoanService) *LoanItemHandler {
	return &LoanItemHandler{loanService: loanService}
}

// CreateLoanItemRequest represents a new catalog entry.
type CreateLoanItemRequest struct {
	ID          string `json:"id" validate:"required"`
	Description string `json:"description" validate:"required"`
}

// UpdateLoanRequest documents the body of PUT /loan-items/{id}. A null
// loanedto returns the item.
type UpdateLoanRequest struct {
	LoanedTo *string `json:"loanedto" extensions:"x-nullable"`
}

// LoanItemResponse wraps a single loan item.
type LoanItemResponse struct {
	LoanItem *model.LoanItem `json:"loan-item"`
}

// LoanItemsResponse wraps a listing.
type LoanItemsResponse struct {
	LoanItems []model.LoanItem `json:"loan-items"`
}

// LoanItemDeletedResponse confirms a removal and returns the removed item.
type LoanItemDeletedResponse struct {
	Message  string          `json:"message"`
	LoanItem *model.LoanItem `json:"loan-item"`
}

// ListLoanItems godoc
// @Summary List loan items
// @Tags loan-items
// @Produce json
// @Security AccessToken
// @Param loanedto query string false "Holder username"
// @Param contains query string false "Case-insensitive description substring"
// @Param limit query int false "Maximum number of items"
// @Param offset query int false "Number of items to skip"
// @Success 200 {object} LoanItemsResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /loan-items [get]
func (h *LoanItemHandler) ListLoanItems(c echo.Context) error {
	items, err := h.loanService.ListItems(c.Request().Context(), c.QueryParams())
	if err != nil {
		return err
	}
	if items == nil {
		items = []model.LoanItem{}
	}
	return c.JSON(http.StatusOK, LoanItemsResponse{LoanItems: items})
}

// CreateLoanItem godoc
// @Summary Add a loan item to the catalog
// @Tags loan-items
// @Accept json
// @Produce json
// @Security AccessToken
// @Param request body CreateLoanItemRequest true "Loan item"
// @Success 201 {object} LoanItemResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /loan-items [post]
func (h *LoanItemHandler) CreateLoanItem(c echo.Context) error {
	var req CreateLoanItemRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	item, err := h.loanService.CreateItem(c.Request().Context(), req.ID, req.Description)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, LoanItemResponse{LoanItem: item})
}

// GetLoanItem godoc
// @Summary Get loan item by id
// @Tags loan-items
// @Produce json
// @Security AccessToken
// @Param id path string true "Loan item ID"
// @Success 200 {object} LoanItemResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /loan-items/{id} [get]
func (h *LoanItemHandler) GetLoanItem(c echo.Context) error {
	item, err := h.loanService.GetItem(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, LoanItemResponse{LoanItem: item})
}

// UpdateLoan godoc
// @Summary Loan out or return an item
// @Tags loan-items
// @Accept json
// @Produce json
// @Security AccessToken
// @Param id path string true "Loan item ID"
// @Param request body UpdateLoanRequest true "New holder, or null to return"
// @Success 200 {object} LoanItemResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /loan-items/{id} [put]
func (h *LoanItemHandler) UpdateLoan(c echo.Context) error {
	loanedTo, err := parseLoanedTo(c)
	if err != nil {
		return err
	}

	item, err := h.loanService.UpdateLoan(c.Request().Context(), c.Param("id"), loanedTo)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, LoanItemResponse{LoanItem: item})
}

// DeleteLoanItem godoc
// @Summary Remove an available loan item
// @Tags loan-items
// @Produce json
// @Security AccessToken
// @Param id path string true "Loan item ID"
// @Success 200 {object} LoanItemDeletedResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /loan-items/{id} [delete]
func (h *LoanItemHandler) DeleteLoanItem(c echo.Context) error {
	item, err := h.loanService.RemoveItem(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, LoanItemDeletedResponse{Message: "Loan item successfully deleted.", LoanItem: item})
}

// parseLoanedTo reads a body whose only key is loanedto, holding a non-empty
// username or null.
func parseLoanedTo(c echo.Context) (*string, error) {
	body, err := bindRawBody(c)
	if err != nil || len(body) != 1 {
		return nil, apperrors.ErrInvalidRequest
	}
	raw, ok := body["loanedto"]
	if !ok {
		return nil, apperrors.ErrInvalidRequest
	}

	var loanedTo *string
	if err := json.Unmarshal(raw, &loanedTo); err != nil {
		return nil, apperrors.ErrInvalidRequest
	}
	if loanedTo != nil && *loanedTo == "" {
		return nil, apperrors.ErrInvalidRequest
	}
	return loanedTo, nil
}
