package errors

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidToken is returned when the access token is missing, invalid, expired or revoked.
	ErrInvalidToken = errors.New("invalid or missing token")
	// ErrInvalidCredentials is returned when username or password is wrong.
	ErrInvalidCredentials = errors.New("wrong username or password")
	// ErrNotAllowed is returned when the requester lacks the rights for an operation.
	ErrNotAllowed = errors.New("not authorized")
	// ErrInvalidRequest is returned for malformed bodies, bad enum values and bad filters.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUserAlreadyExists is returned when registering a taken username.
	ErrUserAlreadyExists = errors.New("user already exists")
	// ErrUnknownUser is returned when a user is not found.
	ErrUnknownUser = errors.New("user not found")
	// ErrInitialAdminRoleChange is returned when touching the initial admin's identity or role.
	ErrInitialAdminRoleChange = errors.New("can't change admin username or role")
	// ErrUnknownLoanItem is returned when a loan item is not found.
	ErrUnknownLoanItem = errors.New("loan item not found")
	// ErrCannotDeleteLoanedItem is returned when deleting an item that is out on loan.
	ErrCannotDeleteLoanedItem = errors.New("cannot delete loan item that is loaned")
	// ErrDuplicateLoanItem is returned when a loan item id is already taken.
	ErrDuplicateLoanItem = errors.New("loan item already exists")
	// ErrLoanItemChanged is returned when a concurrent request changed the item first.
	ErrLoanItemChanged = errors.New("loan item was changed by another request")
)

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, message, code string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Code:       code,
	}
}

// ToErrorResponse converts an HTTPError to ErrorResponse.
func (e *HTTPError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{Error: e.Message}
}

var mappings = []struct {
	err     error
	message string
	status  int
	code    string
}{
	{ErrInvalidToken, "Invalid or missing token.", http.StatusUnauthorized, "INVALID_TOKEN"},
	{ErrInvalidCredentials, "Wrong username or password.", http.StatusUnauthorized, "INVALID_CREDENTIALS"},
	{ErrNotAllowed, "Not authorized.", http.StatusForbidden, "NOT_ALLOWED"},
	{ErrInvalidRequest, "Invalid request.", http.StatusBadRequest, "INVALID_REQUEST"},
	{ErrUserAlreadyExists, "User already exists.", http.StatusBadRequest, "USER_ALREADY_EXISTS"},
	{ErrUnknownUser, "User not found.", http.StatusNotFound, "UNKNOWN_USER"},
	{ErrInitialAdminRoleChange, "Can't change admin username or role.", http.StatusBadRequest, "INITIAL_ADMIN_ROLE_CHANGE"},
	{ErrUnknownLoanItem, "Loan item not found.", http.StatusNotFound, "UNKNOWN_LOAN_ITEM"},
	{ErrCannotDeleteLoanedItem, "Cannot delete loan item that is loaned.", http.StatusForbidden, "CANNOT_DELETE_LOANED_ITEM"},
	{ErrDuplicateLoanItem, "Loan item already exists.", http.StatusConflict, "DUPLICATE_LOAN_ITEM"},
	{ErrLoanItemChanged, "Loan item was changed by another request.", http.StatusConflict, "LOAN_ITEM_CHANGED"},
}

// MapErrorToHTTP maps domain errors to HTTP errors. Unknown errors become a
// generic 500 so internal details never reach the client.
func MapErrorToHTTP(err error) *HTTPError {
	for _, m := range mappings {
		if errors.Is(err, m.err) {
			return NewHTTPError(m.status, m.message, m.code)
		}
	}
	return NewHTTPError(http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
}
