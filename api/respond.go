package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"geargrid/listing"
)

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// statusOf 將領域錯誤對應到 HTTP 狀態碼
func statusOf(err error) int {
	switch {
	case errors.Is(err, listing.ErrValidation),
		errors.Is(err, listing.ErrResponseFormat),
		errors.Is(err, listing.ErrIncompleteResponse),
		errors.Is(err, listing.ErrNoValidUploads):
		return http.StatusBadRequest
	case errors.Is(err, listing.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, listing.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, listing.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, listing.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, listing.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, listing.ErrConfiguration):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (impl *ServerImpl) respondError(c *gin.Context, op string, err error) {
	status := statusOf(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		impl.logger.Error("Unhandled error", slog.String("op", op), slog.Any("error", err))
		message = http.StatusText(status)
	} else {
		impl.logger.Debug("Request rejected", slog.String("op", op), slog.Int("status", status), slog.Any("error", err))
	}
	c.JSON(status, envelope{Success: false, Error: message})
}

func respondData(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{Success: true, Data: data})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, envelope{Success: false, Error: message})
}
