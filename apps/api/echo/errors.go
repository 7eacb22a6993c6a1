package echoapi

import (
	"fmt"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/user"
)

const msgValidation = "Validation failed"

type errorResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func fieldErrors(flds []core.FieldError) map[string]string {
	if len(flds) == 0 {
		return nil
	}
	res := make(map[string]string, len(flds))
	for _, fErr := range flds {
		res[fErr.Field] = fErr.Error
	}
	return res
}

func validationMessage(vErr core.ValidationError) string {
	if vErr.Err != nil {
		return vErr.Err.Error()
	}
	return msgValidation
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var (
			code int
			resp = errorResponse{Success: false}
		)

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
				origErr = herr
			}
			code = origErr.Code
			resp.Message = fmt.Sprint(origErr.Message)
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			resp.Message = msgValidation
			resp.Errors = fldErrs
		case *core.ConflictError:
			code = http.StatusConflict
			resp.Message = validationMessage(origErr.ValidationError)
			resp.Errors = fieldErrors(origErr.Fields)
		case *core.ValidationError:
			code = http.StatusBadRequest
			resp.Message = validationMessage(*origErr)
			resp.Errors = fieldErrors(origErr.Fields)
		case *core.NotFoundError:
			code = http.StatusNotFound
			resp.Message = origErr.Error()
		case *core.PermissionError:
			code = http.StatusForbidden
			resp.Message = origErr.Error()
		case *core.ProviderError:
			code = http.StatusBadGateway
			resp.Message = "Payment provider request failed"
			logger.Error(fmt.Sprintf("%s call failed: %v", origErr.Provider, origErr.Err), errors.Wrap(err, origErr.Provider), contextUser(ctx))
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			resp.Message = msg
			logger.Error(msg, errors.Wrap(err, msg), contextUser(ctx))

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code >= http.StatusInternalServerError {
			resp.Message = err.Error()
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, resp)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

// contextUser identifies the request user in error reports.
func contextUser(ctx echo.Context) user.User {
	if usr, err := getContextUser(ctx); err == nil {
		return usr
	}
	var usr user.User
	if claims, ok := getContextClaims(ctx); ok {
		usr.ID = claims.Subject
		usr.Email = claims.Email
	}
	return usr
}
