package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	apperrors "consult_gateway_go_backend/internal/errors"
	"consult_gateway_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const maxWebhookBodyBytes = int64(65536)

func billingHistoryHandler(billing *services.BillingService) gin.HandlerFunc {
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

		history, err := billing.History(c.Request.Context(), caller, page, limit)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"entries": history.Entries,
			"pagination": gin.H{
				"page":    history.Page,
				"limit":   history.Limit,
				"total":   history.Total,
				"hasMore": history.HasMore,
			},
		})
	}
}

// statementHandler renders into memory first so a failed render still gets a
// JSON error instead of a truncated PDF.
func statementHandler(statements *services.StatementService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerParty(c)
		if !ok {
			return
		}
		var buf bytes.Buffer
		if err := statements.Render(c.Request.Context(), caller, &buf); err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="statement-%s.pdf"`, caller.ID()))
		c.Data(http.StatusOK, "application/pdf", buf.Bytes())
	}
}

func checkoutHandler(credits *services.CreditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerParty(c)
		if !ok {
			return
		}
		var request struct {
			Credits int64 `json:"credits"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			apperrors.HandleError(c, apperrors.NewValidationError("Invalid request body"))
			return
		}

		result, err := credits.CreateCheckoutSession(c.Request.Context(), caller, request.Credits)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "sessionId": result.SessionID, "url": result.URL})
	}
}

func stripeWebhookHandler(credits *services.CreditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes)

		payload, err := io.ReadAll(c.Request.Body)
		if err != nil {
			log.Warn().Err(err).Msg("Error reading webhook body")
			c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "message": "Error reading request body"})
			return
		}

		if err := credits.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}
