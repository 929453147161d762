package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	apperrors "consult_gateway_go_backend/internal/errors"
	"consult_gateway_go_backend/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"
)

const (
	minCreditPurchase = 1
	maxCreditPurchase = 10000
)

type StripeConfig struct {
	SecretKey      string
	WebhookSecret  string
	UnitPriceCents int64
	SuccessURL     string
	CancelURL      string
}

// CheckoutCreator opens a hosted checkout. session.New satisfies it.
type CheckoutCreator func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)

// CreditService sells credits through Stripe Checkout and applies completed
// purchases exactly once.
type CreditService struct {
	store  BillingServiceDB
	config StripeConfig
	create CheckoutCreator
	logger zerolog.Logger
}

func NewCreditService(store BillingServiceDB, config StripeConfig, logger zerolog.Logger) *CreditService {
	stripe.Key = config.SecretKey
	return &CreditService{
		store:  store,
		config: config,
		create: session.New,
		logger: logger.With().Str("component", "credits").Logger(),
	}
}

// WithCheckoutCreator replaces the Stripe call, for tests.
func (s *CreditService) WithCheckoutCreator(create CheckoutCreator) *CreditService {
	s.create = create
	return s
}

type CheckoutResult struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

func (s *CreditService) CreateCheckoutSession(ctx context.Context, caller Party, credits int64) (*CheckoutResult, error) {
	if caller.Role() != models.RoleUser {
		return nil, apperrors.NewAccessDeniedError("Only users can purchase credits")
	}
	if credits < minCreditPurchase || credits > maxCreditPurchase {
		return nil, apperrors.NewValidationError(fmt.Sprintf("credits must be between %d and %d", minCreditPurchase, maxCreditPurchase))
	}
	amount := credits * s.config.UnitPriceCents

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{
			"card",
		}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String("usd"),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("%d Consultation Credits", credits)),
					},
					UnitAmount: stripe.Int64(amount),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.config.SuccessURL),
		CancelURL:         stripe.String(s.config.CancelURL),
		ClientReferenceID: stripe.String(caller.ID()),
		Metadata: map[string]string{
			"credits": strconv.FormatInt(credits, 10),
		},
	}
	params.Context = ctx

	checkout, err := s.create(params)
	if err != nil {
		return nil, apperrors.New500Error(fmt.Errorf("create checkout session: %w", err))
	}
	return &CheckoutResult{SessionID: checkout.ID, URL: checkout.URL}, nil
}

// HandleWebhook verifies the Stripe signature and applies completed checkouts.
func (s *CreditService) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	event, err := webhook.ConstructEvent(payload, signatureHeader, s.config.WebhookSecret)
	if err != nil {
		return apperrors.NewValidationError("Invalid webhook signature")
	}

	switch event.Type {
	case "checkout.session.completed":
		var checkout stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &checkout); err != nil {
			return apperrors.NewValidationError("Failed to parse checkout session")
		}
		_, err := s.ProcessCheckoutCompleted(ctx, &checkout)
		return err
	default:
		s.logger.Debug().Str("type", string(event.Type)).Msg("Unhandled webhook event")
	}
	return nil
}

// ProcessCheckoutCompleted credits the purchasing user. A redelivered event
// for the same checkout session is acknowledged without crediting again.
func (s *CreditService) ProcessCheckoutCompleted(ctx context.Context, checkout *stripe.CheckoutSession) (*models.CreditPurchase, error) {
	if checkout.ClientReferenceID == "" {
		return nil, apperrors.NewValidationError("checkout session has no user reference")
	}
	credits, err := strconv.ParseInt(checkout.Metadata["credits"], 10, 64)
	if err != nil || credits <= 0 {
		return nil, apperrors.NewValidationError("checkout session has invalid credits metadata")
	}

	purchase := &models.CreditPurchase{
		CheckoutSessionID: checkout.ID,
		UserID:            checkout.ClientReferenceID,
		Credits:           decimal.NewFromInt(credits),
		AmountCents:       checkout.AmountTotal,
	}
	applied, err := s.store.RecordCreditPurchase(ctx, purchase)
	if err != nil {
		return nil, notFoundOr500(err, "User not found")
	}
	if !applied {
		s.logger.Info().Str("checkout_session", checkout.ID).Msg("Checkout already applied")
		return purchase, nil
	}
	s.logger.Info().
		Str("checkout_session", checkout.ID).
		Str("user_id", purchase.UserID).
		Int64("credits", credits).
		Msg("Credits purchased")
	return purchase, nil
}
