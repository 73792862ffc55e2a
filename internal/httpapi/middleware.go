package httpapi

import (
	"errors"
	"fmt"
	"log/slog"

	"game-fix-manager/internal/fixerr"

	"github.com/labstack/echo/v4"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Type    string `json:"type"`
}

// errorHandling renders handler errors as JSON using their fixerr
// classification. Echo's own HTTP errors pass through untouched.
func errorHandling(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}
			if _, ok := errors.AsType[*echo.HTTPError](err); ok {
				return err
			}

			status := fixerr.HTTPStatus(err)
			kind := fixerr.TypeOf(err)
			attrs := []any{"path", c.Request().URL.Path, "method", c.Request().Method, "status", status, "error", err}
			if kind == fixerr.TypeInternal {
				logger.Error("request failed", attrs...)
			} else {
				logger.Info("request rejected", attrs...)
			}

			if err := c.JSON(status, errorResponse{Error: err.Error(), Type: string(kind)}); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}
