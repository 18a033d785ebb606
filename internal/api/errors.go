package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/engine"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/logging"
)

// newHTTPErrorHandler maps engine errors onto HTTP responses.
func newHTTPErrorHandler(logger logging.Logger, rv *requestValidator) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		body := echo.Map{}

		var (
			httpErr     *echo.HTTPError
			fieldErrs   validator.ValidationErrors
			validation  *engine.ValidationError
			notFound    *engine.NotFoundError
			locked      *engine.LockedModuleError
			conflict    *engine.ConflictError
			unavailable *engine.UnavailableError
		)
		switch {
		case errors.As(err, &httpErr):
			code = httpErr.Code
			body["error"] = httpErr.Message
		case errors.As(err, &fieldErrs):
			code = http.StatusBadRequest
			body["error"] = "invalid request"
			body["fields"] = rv.translate(fieldErrs)
		case errors.As(err, &validation):
			code = http.StatusUnprocessableEntity
			body["error"] = validation.Error()
			if validation.Field != "" {
				body["field"] = validation.Field
			}
		case errors.As(err, &notFound):
			code = http.StatusNotFound
			body["error"] = notFound.Error()
		case errors.As(err, &locked):
			code = http.StatusLocked
			body["error"] = locked.Error()
			body["reason"] = locked.Reason
			if locked.CooldownRemaining > 0 {
				secs := int64(math.Ceil(locked.CooldownRemaining.Seconds()))
				body["cooldown_remaining_seconds"] = secs
				c.Response().Header().Set("Retry-After", strconv.FormatInt(secs, 10))
			}
		case errors.As(err, &conflict):
			code = http.StatusConflict
			body["error"] = conflict.Error()
		case errors.As(err, &unavailable):
			code = http.StatusServiceUnavailable
			body["error"] = http.StatusText(code)
			logger.Error("request failed", "path", c.Path(), "learner", learnerID(c), "err", err)
		default:
			body["error"] = http.StatusText(code)
			logger.Error("request failed", "path", c.Path(), "learner", learnerID(c), "err", err)
		}
		if code >= http.StatusBadRequest && code != http.StatusUnauthorized {
			body["retryable"] = engine.Retryable(err)
		}
		if c.Echo().Debug {
			body["debug"] = err.Error()
		}

		if !c.Response().Committed {
			if c.Request().Method == http.MethodHead {
				err = c.NoContent(code)
			} else {
				err = c.JSON(code, body)
			}
			if err != nil {
				c.Echo().Logger.Error(err)
			}
		}
	}
}
