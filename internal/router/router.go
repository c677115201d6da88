package router

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	echoSwagger "github.com/swaggo/echo-swagger"

	apperrors "lendingledger/internal/errors"
	"lendingledger/internal/handler"
	"lendingledger/internal/service"
	"lendingledger/internal/session"
)

// AccessTokenHeader is the request header carrying the access token.
const AccessTokenHeader = "access-token"

const (
	sessionContextKey   = "session"
	errorCodeContextKey = "error_code"
)

// Register wires routes and middleware.
func Register(
	e *echo.Echo,
	log logrus.FieldLogger,
	authService service.AuthService,
	phoneValidator *service.PhoneValidator,
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	loanItemHandler *handler.LoanItemHandler,
	modeHandler *handler.ModeHandler,
) {
	e.HideBanner = true
	e.HTTPErrorHandler = ErrorHandler(log)
	e.Validator = NewValidator(phoneValidator)

	e.Use(middleware.RequestID())
	e.Use(requestLogger(log))
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	requireAuth := RequireSession(authService)

	// Public routes
	e.POST("/login", authHandler.Login)
	e.POST("/users", userHandler.Register)

	// Secured routes
	e.POST("/logout", authHandler.Logout, requireAuth)

	e.GET("/users", userHandler.ListUsers, requireAuth)
	e.GET("/users/:username", userHandler.GetUser, requireAuth)
	e.PUT("/users/:username", userHandler.UpdateUser, requireAuth)
	e.DELETE("/users/:username", userHandler.DeleteUser, requireAuth)

	e.GET("/loan-items", loanItemHandler.ListLoanItems, requireAuth)
	e.POST("/loan-items", loanItemHandler.CreateLoanItem, requireAuth)
	e.GET("/loan-items/:id", loanItemHandler.GetLoanItem, requireAuth)
	e.PUT("/loan-items/:id", loanItemHandler.UpdateLoan, requireAuth)
	e.DELETE("/loan-items/:id", loanItemHandler.DeleteLoanItem, requireAuth)

	e.GET("/mode", modeHandler.GetMode, requireAuth)
	e.PUT("/mode", modeHandler.SetMode, requireAuth)
}

// RequireSession authenticates the access-token header and stores the
// resulting session in the request context.
func RequireSession(authService service.AuthService) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey:  sessionContextKey,
		TokenLookup: "header:" + AccessTokenHeader,
		ParseTokenFunc: func(c echo.Context, token string) (interface{}, error) {
			return authService.Authenticate(c.Request().Context(), token)
		},
		SuccessHandler: func(c echo.Context) {
			sess, ok := c.Get(sessionContextKey).(session.Session)
			if !ok {
				return
			}
			req := c.Request()
			c.SetRequest(req.WithContext(session.WithSession(req.Context(), sess)))
		},
		ErrorHandler: func(c echo.Context, err error) error {
			if errors.Is(err, echojwt.ErrJWTMissing) || errors.Is(err, apperrors.ErrInvalidToken) {
				return apperrors.ErrInvalidToken
			}
			return err
		},
	})
}

// ErrorHandler renders every error as {"error": message}. Domain errors are
// mapped through MapErrorToHTTP; echo's own errors keep their status.
func ErrorHandler(log logrus.FieldLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		httpErr := resolveError(err)
		c.Set(errorCodeContextKey, httpErr.Code)
		if httpErr.StatusCode >= http.StatusInternalServerError {
			log.WithFields(logrus.Fields{
				"method": c.Request().Method,
				"uri":    c.Request().RequestURI,
				"code":   httpErr.Code,
			}).WithError(err).Error("request failed")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(httpErr.StatusCode)
		} else {
			err = c.JSON(httpErr.StatusCode, httpErr.ToErrorResponse())
		}
		if err != nil {
			log.WithError(err).Error("write error response")
		}
	}
}

func resolveError(err error) *apperrors.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Internal != nil {
			if mapped := apperrors.MapErrorToHTTP(he.Internal); mapped.StatusCode != http.StatusInternalServerError {
				return mapped
			}
		}
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		return apperrors.NewHTTPError(he.Code, msg, "HTTP_"+strconv.Itoa(he.Code))
	}
	return apperrors.MapErrorToHTTP(err)
}

func requestLogger(log logrus.FieldLogger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := log.WithFields(logrus.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"request_id": v.RequestID,
				"remote_ip":  v.RemoteIP,
			})
			if sess, ok := session.FromContext(c.Request().Context()); ok {
				entry = entry.WithField("username", sess.Username)
			}
			if code, ok := c.Get(errorCodeContextKey).(string); ok {
				entry = entry.WithField("error_code", code)
			}
			switch {
			case v.Status >= http.StatusInternalServerError:
				entry.Error("request")
			case v.Status >= http.StatusBadRequest:
				entry.Warn("request")
			default:
				entry.Info("request")
			}
			return nil
		},
	})
}

// CustomValidator wraps validator for Echo.
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator returns a validator that also understands the "phone" tag.
func NewValidator(phones *service.PhoneValidator) *CustomValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	// RegisterValidation only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phones.ValidatePhone(fl.Field().String()) == nil
	})
	return &CustomValidator{validator: v}
}

// Validate implements echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}
