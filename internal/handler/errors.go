package handler

import (
	"errors"
	"fmt"
	"net/http"

	"craftchain/internal/apperr"
	"craftchain/internal/dto"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const msgPaymentVerificationFailed = "Payment verification failed"

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.InvalidArgument:
		return http.StatusBadRequest
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.Unauthenticated:
		return http.StatusUnauthorized
	case apperr.PaymentVerificationFailed:
		return http.StatusPaymentRequired
	case apperr.GatewayError, apperr.MintFailed:
		return http.StatusBadGateway
	case apperr.GatewayTimeout, apperr.MintTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// HTTPErrorHandler renders every error as {"error": ...}. Kinds map to
// status codes; anything without a kind is a 500 and is logged.
func HTTPErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		body := dto.ErrorResponse{Error: http.StatusText(code)}

		var he *echo.HTTPError
		switch {
		case errors.As(err, &he):
			code = he.Code
			body.Error = fmt.Sprint(he.Message)
		case apperr.KindOf(err) != "":
			kind := apperr.KindOf(err)
			code = statusFor(kind)
			body.Code = string(kind)
			body.Error = err.Error()
			if kind == apperr.PaymentVerificationFailed {
				body.Error = msgPaymentVerificationFailed
			}
		}

		if code >= http.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Int("status", code),
				zap.Error(err))
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, body)
		}
		if err != nil {
			log.Error("writing error response", zap.Error(err))
		}
	}
}
