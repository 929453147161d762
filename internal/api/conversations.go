package api

import (
	"net/http"

	apperrors "consult_gateway_go_backend/internal/errors"
	"consult_gateway_go_backend/internal/services"

	"github.com/gin-gonic/gin"
)

func createConversationHandler(conversations *services.ConversationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerParty(c)
		if !ok {
			return
		}
		var input services.CreateConversationInput
		if err := c.ShouldBindJSON(&input); err != nil {
			apperrors.HandleError(c, apperrors.NewValidationError("Invalid request body"))
			return
		}

		conv, created, err := conversations.Create(c.Request.Context(), caller, input)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		c.JSON(status, gin.H{"success": true, "created": created, "conversation": conv})
	}
}

func getConversationHandler(conversations *services.ConversationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerParty(c)
		if !ok {
			return
		}
		conv, err := conversations.Get(c.Request.Context(), caller, c.Param("id"))
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "conversation": conv})
	}
}

func listConversationsHandler(conversations *services.ConversationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerParty(c)
		if !ok {
			return
		}
		list, err := conversations.List(c.Request.Context(), caller)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "conversations": list})
	}
}

func unreadCountHandler(conversations *services.ConversationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerParty(c)
		if !ok {
			return
		}
		summary, err := conversations.UnreadCount(c.Request.Context(), caller)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "unread": summary.Unread, "pendingRequests": summary.PendingRequests})
	}
}

func acceptConversationHandler(conversations *services.ConversationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerParty(c)
		if !ok {
			return
		}
		conv, err := conversations.Accept(c.Request.Context(), caller, c.Param("id"))
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "conversation": conv})
	}
}

func rejectConversationHandler(conversations *services.ConversationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerParty(c)
		if !ok {
			return
		}
		var request struct {
			Reason string `json:"reason"`
		}
		if err := bindOptionalJSON(c, &request); err != nil {
			apperrors.HandleError(c, err)
			return
		}

		conv, err := conversations.Reject(c.Request.Context(), caller, c.Param("id"), request.Reason)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "conversation": conv})
	}
}

// endConversationHandler settles the conversation. A rating may be submitted
// in the same request.
func endConversationHandler(conversations *services.ConversationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerParty(c)
		if !ok {
			return
		}
		var request services.RatingInput
		if err := bindOptionalJSON(c, &request); err != nil {
			apperrors.HandleError(c, err)
			return
		}
		var rating *services.RatingInput
		if request.Stars != 0 {
			rating = &request
		}

		result, err := conversations.End(c.Request.Context(), caller, c.Param("id"), rating)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "conversation": result.Conversation, "ledger": result.Ledger})
	}
}

func rateConversationHandler(conversations *services.ConversationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerParty(c)
		if !ok {
			return
		}
		var input services.RatingInput
		if err := c.ShouldBindJSON(&input); err != nil {
			apperrors.HandleError(c, apperrors.NewValidationError("Invalid request body"))
			return
		}

		conv, err := conversations.Rate(c.Request.Context(), caller, c.Param("id"), input)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "conversation": conv})
	}
}
