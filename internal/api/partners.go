package api

import (
	"net/http"

	apperrors "consult_gateway_go_backend/internal/errors"
	"consult_gateway_go_backend/internal/models"
	"consult_gateway_go_backend/internal/services"

	"github.com/gin-gonic/gin"
)

func presenceRosterHandler(presence *services.PresenceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := callerParty(c); !ok {
			return
		}
		roster, err := presence.Roster(c.Request.Context())
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "partners": roster})
	}
}

func setStatusHandler(presence *services.PresenceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerParty(c)
		if !ok {
			return
		}
		var request struct {
			Status models.PartnerStatus `json:"status"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			apperrors.HandleError(c, apperrors.NewValidationError("Invalid request body"))
			return
		}

		change, err := presence.SetStatus(c.Request.Context(), caller, request.Status)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "presence": change})
	}
}
