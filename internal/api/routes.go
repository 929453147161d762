package api

import (
	"strconv"

	"consult_gateway_go_backend/internal/auth"
	apperrors "consult_gateway_go_backend/internal/errors"
	"consult_gateway_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Services groups what the REST surface dispatches to. Statements and Credits
// are optional; their routes are not mounted when nil.
type Services struct {
	Conversations *services.ConversationService
	Messages      *services.MessageService
	Billing       *services.BillingService
	Presence      *services.PresenceService
	Statements    *services.StatementService
	Credits       *services.CreditService
}

func SetupRoutes(r *gin.Engine, authenticator *auth.Authenticator, svc Services) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	if svc.Credits != nil {
		// Stripe signs the raw body, so the webhook sits outside AuthMiddleware.
		api.POST("/stripe/webhook", stripeWebhookHandler(svc.Credits))
	}

	authed := api.Group("", auth.AuthMiddleware(authenticator))
	{
		authed.POST("/conversations", createConversationHandler(svc.Conversations))
		authed.GET("/conversations", listConversationsHandler(svc.Conversations))
		authed.GET("/conversations/unread", unreadCountHandler(svc.Conversations))
		authed.GET("/conversations/:id", getConversationHandler(svc.Conversations))
		authed.POST("/conversations/:id/accept", acceptConversationHandler(svc.Conversations))
		authed.POST("/conversations/:id/reject", rejectConversationHandler(svc.Conversations))
		authed.POST("/conversations/:id/end", endConversationHandler(svc.Conversations))
		authed.POST("/conversations/:id/rating", rateConversationHandler(svc.Conversations))

		authed.GET("/conversations/:id/messages", listMessagesHandler(svc.Messages))
		authed.POST("/conversations/:id/messages", sendMessageHandler(svc.Messages))
		authed.POST("/conversations/:id/read", markReadHandler(svc.Messages))
		authed.DELETE("/messages/:id", deleteMessageHandler(svc.Messages))

		authed.GET("/billing/history", billingHistoryHandler(svc.Billing))
		if svc.Statements != nil {
			authed.GET("/billing/statement", statementHandler(svc.Statements))
		}

		authed.GET("/partners/presence", presenceRosterHandler(svc.Presence))
		authed.PUT("/partners/me/status", setStatusHandler(svc.Presence))

		if svc.Credits != nil {
			authed.POST("/credits/checkout", checkoutHandler(svc.Credits))
		}
	}
}

// callerParty resolves the authenticated identity into its conversation role.
// It writes the error response itself when it fails.
func callerParty(c *gin.Context) (services.Party, bool) {
	identity, ok := auth.IdentityFrom(c)
	if !ok {
		apperrors.HandleError(c, apperrors.NewAuthenticationError(apperrors.CodeIdentityNotFound, "Identity not found in context"))
		return nil, false
	}
	party, err := services.PartyFor(identity)
	if err != nil {
		apperrors.HandleError(c, apperrors.NewValidationError(err.Error()))
		return nil, false
	}
	return party, true
}

// pageParams reads page and limit; the services clamp out-of-range values.
func pageParams(c *gin.Context) (int, int, error) {
	page, limit := 0, 0
	var err error
	if raw := c.Query("page"); raw != "" {
		if page, err = strconv.Atoi(raw); err != nil {
			return 0, 0, apperrors.NewValidationError("page must be a number")
		}
	}
	if raw := c.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			return 0, 0, apperrors.NewValidationError("limit must be a number")
		}
	}
	return page, limit, nil
}

// bindOptionalJSON binds a request body when one was sent.
func bindOptionalJSON(c *gin.Context, v interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(v); err != nil {
		return apperrors.NewValidationError("Invalid request body")
	}
	return nil
}
