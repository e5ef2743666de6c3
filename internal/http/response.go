package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"projectflow/internal/service"
)

const codeInternal = "INTERNAL_SERVER_ERROR"

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Message string     `json:"message,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

var statusByCode = map[service.ErrorCode]int{
	service.CodeInvalidInput:          http.StatusBadRequest,
	service.CodeConflict:              http.StatusConflict,
	service.CodeInvalidCredentials:    http.StatusUnauthorized,
	service.CodeAccountLocked:         http.StatusTooManyRequests,
	service.CodeRateLimited:           http.StatusTooManyRequests,
	service.CodeInvalidToken:          http.StatusUnauthorized,
	service.CodeNoTokenProvided:       http.StatusUnauthorized,
	service.CodeInvalidOrExpiredToken: http.StatusBadRequest,
	service.CodeUnauthorized:          http.StatusUnauthorized,
	service.CodeNotFound:              http.StatusNotFound,
}

func respondOK(c *gin.Context, status int, data any, message string) {
	c.JSON(status, envelope{Success: true, Data: data, Message: message})
}

// respondError traduce errores de servicio a status y envelope. Todo lo que no
// sea un *service.Error sale como 500 sin exponer el detalle.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		status, ok := statusByCode[svcErr.Code]
		if !ok {
			status = http.StatusInternalServerError
		}
		logger.Warn("request rejected",
			zap.String("path", c.FullPath()),
			zap.String("code", string(svcErr.Code)),
			zap.Int("status", status),
		)
		c.AbortWithStatusJSON(status, envelope{Error: &errorBody{
			Code:    string(svcErr.Code),
			Message: svcErr.Message,
			Details: svcErr.Details,
		}})
		return
	}

	logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.AbortWithStatusJSON(http.StatusInternalServerError, envelope{Error: &errorBody{
		Code:    codeInternal,
		Message: "An unexpected error occurred",
	}})
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, envelope{Error: &errorBody{
		Code:    string(service.CodeNotFound),
		Message: "Resource not found",
	}})
}
