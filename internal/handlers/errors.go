package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pointsarcade/internal/logger"
	"pointsarcade/internal/models"
)

func statusFor(kind models.ErrorKind) int {
	switch kind {
	case models.KindValidation, models.KindInsufficientFunds:
		return http.StatusBadRequest
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindConflict:
		return http.StatusConflict
	case models.KindUpstreamProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error", "kind"}. Internal errors are logged and
// their details kept out of the response.
func respondError(c *gin.Context, err error) {
	kind := models.KindOf(err)
	status := statusFor(kind)

	msg := err.Error()
	switch kind {
	case models.KindInsufficientFunds:
		msg = "Insufficient points"
	case models.KindInternal:
		logger.Error(c.Request.Context()).Err(err).Str("path", c.FullPath()).Msg("request failed")
		msg = "Internal server error"
	case models.KindUpstreamProvider:
		logger.Warn(c.Request.Context()).Err(err).Msg("points provider failed")
	}

	c.JSON(status, gin.H{"error": msg, "kind": kind})
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"kind":    models.KindValidation,
			"details": err.Error(),
		})
		return false
	}
	return true
}
