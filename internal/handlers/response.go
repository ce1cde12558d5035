package handlers

import (
	"net/http"

	"payroll-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Error   string `json:"error"`
}

func statusForKind(kind services.ErrorKind) int {
	switch kind {
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindProofMismatch:
		return http.StatusUnprocessableEntity
	case services.KindConflict:
		return http.StatusConflict
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindExternal:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError writes the short, user safe form of err. Detail goes to the log only.
func respondError(c *gin.Context, err error) {
	if se, ok := services.AsServiceError(err); ok {
		status := statusForKind(se.Kind)
		entry := logrus.WithFields(logrus.Fields{
			"path": c.Request.URL.Path,
			"code": se.Code,
		})
		if status >= http.StatusInternalServerError {
			entry.WithError(err).Error("❌ Request failed")
		} else {
			entry.Debug("Request rejected")
		}
		c.JSON(status, ErrorResponse{Success: false, Code: se.Code, Error: se.Message})
		return
	}

	logrus.WithError(err).WithField("path", c.Request.URL.Path).Error("❌ Internal error")
	c.JSON(http.StatusInternalServerError, ErrorResponse{Success: false, Code: "INTERNAL_ERROR", Error: "internal error"})
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Code: services.CodeInvalidInput, Error: message})
}
