package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/campuscoin/campuscoin/core"
	"github.com/campuscoin/campuscoin/core/achievement"
	"github.com/campuscoin/campuscoin/core/goal"
	"github.com/campuscoin/campuscoin/core/ledger"
	"github.com/campuscoin/campuscoin/core/user"
)

var (
	errUnauthorized           = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed   = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated     = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errAccountPendingApproval = echo.NewHTTPError(http.StatusForbidden, "account pending approval")
	errAccountRejected        = echo.NewHTTPError(http.StatusForbidden, "account request was rejected")
	errRefreshExpired         = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden          = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound           = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// isNotFound reports whether err is one of the domains' missing-record sentinels.
func isNotFound(err error) bool {
	switch err {
	case user.ErrNotFound, ledger.ErrAccountNotFound, ledger.ErrTransactionNotFound,
		goal.ErrNotFound, achievement.ErrNotFound:
		return true
	}
	return false
}

// isLedgerViolation reports whether err is a ledger rule the client ran into,
// not a server fault.
func isLedgerViolation(err error) bool {
	switch err {
	case ledger.ErrInsufficientFunds, ledger.ErrDuplicateTransaction:
		return true
	}
	return false
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default:
			if isNotFound(cause) {
				code = http.StatusNotFound
				message = cause.Error()
				break
			}
			if isLedgerViolation(cause) {
				code = http.StatusBadRequest
				message = cause.Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var usr user.User
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				usr.ID = claims.Subject
				usr.StudentID = claims.StudentID
				usr.Email = claims.Email
			}
			logger.Error(msg, errors.Wrap(err, msg), usr)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
