package api

import (
	"net/http"

	apperrors "consult_gateway_go_backend/internal/errors"
	"consult_gateway_go_backend/internal/services"

	"github.com/gin-gonic/gin"
)

func listMessagesHandler(messages *services.MessageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerParty(c)
		if !ok {
			return
		}
		page, limit, err := pageParams(c)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		result, err := messages.List(c.Request.Context(), caller, c.Param("id"), page, limit)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"messages": result.Messages,
			"pagination": gin.H{
				"page":    result.Page,
				"limit":   result.Limit,
				"total":   result.Total,
				"hasMore": result.HasMore,
			},
		})
	}
}

// sendMessageHandler is the fallback for clients without a live connection.
func sendMessageHandler(messages *services.MessageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerParty(c)
		if !ok {
			return
		}
		var input services.SendMessageInput
		if err := c.ShouldBindJSON(&input); err != nil {
			apperrors.HandleError(c, apperrors.NewValidationError("Invalid request body"))
			return
		}
		input.ConversationID = c.Param("id")

		msg, err := messages.Send(c.Request.Context(), caller, input, services.TransportREST)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"success": true, "message": msg})
	}
}

func markReadHandler(messages *services.MessageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerParty(c)
		if !ok {
			return
		}
		conv, err := messages.MarkRead(c.Request.Context(), caller, c.Param("id"))
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "conversation": conv})
	}
}

func deleteMessageHandler(messages *services.MessageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerParty(c)
		if !ok {
			return
		}
		if err := messages.Delete(c.Request.Context(), caller, c.Param("id")); err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
