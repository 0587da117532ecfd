package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Responses follow the jsend convention: "success" with a data payload,
// "fail" for client errors with field details, "error" for server faults.
type jsendEnvelope struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func success(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, jsendEnvelope{
		Status: "success",
		Data:   data,
	})
}

func fail(c echo.Context, status int, message string, details any) error {
	data := details
	if data == nil && message != "" {
		data = map[string]string{"message": message}
	}
	return c.JSON(status, jsendEnvelope{
		Status:  "fail",
		Data:    data,
		Message: message,
	})
}

func failValidation(c echo.Context, fields map[string]string) error {
	return fail(c, http.StatusBadRequest, "Validation failed", fields)
}

func failNotFound(c echo.Context, message string) error {
	return fail(c, http.StatusNotFound, message, nil)
}

func internalError(c echo.Context, message string) error {
	return c.JSON(http.StatusInternalServerError, jsendEnvelope{
		Status:  "error",
		Message: message,
	})
}

func decodeJSONBody(c echo.Context, target any) error {
	decoder := json.NewDecoder(c.Request().Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
