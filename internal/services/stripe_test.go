package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	apperrors "consult_gateway_go_backend/internal/errors"
	"consult_gateway_go_backend/internal/models"
	"consult_gateway_go_backend/internal/services"
	"consult_gateway_go_backend/internal/testhelpers"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const webhookSecret = "whsec_test_secret"

func newCreditService(t *testing.T) (*services.CreditService, *testhelpers.MemoryStore) {
	t.Helper()
	store := testhelpers.NewMemoryStore()
	store.AddUser(models.User{ID: userID, Name: "Asha", Credits: decimal.NewFromInt(5)})
	svc := services.NewCreditService(store, services.StripeConfig{
		SecretKey:      "sk_test_123",
		WebhookSecret:  webhookSecret,
		UnitPriceCents: 25,
		SuccessURL:     "https://app.example.com/credits/success",
		CancelURL:      "https://app.example.com/credits/cancel",
	}, zerolog.Nop())
	return svc, store
}

func TestCreateCheckoutSession(t *testing.T) {
	svc, _ := newCreditService(t)
	var captured *stripe.CheckoutSessionParams
	svc.WithCheckoutCreator(func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		captured = params
		return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/cs_test_1"}, nil
	})
	user, err := services.PartyFor(models.Identity{ID: userID, Role: models.RoleUser})
	require.NoError(t, err)

	result, err := svc.CreateCheckoutSession(context.Background(), user, 40)
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", result.SessionID)
	assert.Equal(t, "https://checkout.stripe.com/c/cs_test_1", result.URL)

	require.NotNil(t, captured)
	assert.Equal(t, userID, *captured.ClientReferenceID)
	assert.Equal(t, "40", captured.Metadata["credits"])
	require.Len(t, captured.LineItems, 1)
	assert.Equal(t, int64(1000), *captured.LineItems[0].PriceData.UnitAmount)
}

func TestCreateCheckoutSessionValidation(t *testing.T) {
	svc, _ := newCreditService(t)
	svc.WithCheckoutCreator(func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		return nil, errors.New("card_declined")
	})
	ctx := context.Background()
	user, err := services.PartyFor(models.Identity{ID: userID, Role: models.RoleUser})
	require.NoError(t, err)
	partner, err := services.PartyFor(models.Identity{ID: partnerID, Role: models.RolePartner})
	require.NoError(t, err)

	_, err = svc.CreateCheckoutSession(ctx, partner, 10)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeAccessDenied))

	_, err = svc.CreateCheckoutSession(ctx, user, 0)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	_, err = svc.CreateCheckoutSession(ctx, user, 10001)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	_, err = svc.CreateCheckoutSession(ctx, user, 10)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInternalServerError))
}

func TestProcessCheckoutCompletedIsIdempotent(t *testing.T) {
	svc, store := newCreditService(t)
	ctx := context.Background()
	checkout := &stripe.CheckoutSession{
		ID:                "cs_test_2",
		ClientReferenceID: userID,
		AmountTotal:       500,
		Metadata:          map[string]string{"credits": "20"},
	}

	purchase, err := svc.ProcessCheckoutCompleted(ctx, checkout)
	require.NoError(t, err)
	assert.True(t, purchase.BalanceAfter.Equal(decimal.NewFromInt(25)))

	_, err = svc.ProcessCheckoutCompleted(ctx, checkout)
	require.NoError(t, err)
	assert.True(t, store.User(userID).Credits.Equal(decimal.NewFromInt(25)))
}

func TestProcessCheckoutCompletedRejectsBadSessions(t *testing.T) {
	svc, _ := newCreditService(t)
	ctx := context.Background()

	_, err := svc.ProcessCheckoutCompleted(ctx, &stripe.CheckoutSession{ID: "cs_1", Metadata: map[string]string{"credits": "5"}})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	_, err = svc.ProcessCheckoutCompleted(ctx, &stripe.CheckoutSession{ID: "cs_2", ClientReferenceID: userID, Metadata: map[string]string{"credits": "lots"}})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	_, err = svc.ProcessCheckoutCompleted(ctx, &stripe.CheckoutSession{ID: "cs_3", ClientReferenceID: "user-404", Metadata: map[string]string{"credits": "5"}})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func signedEvent(t *testing.T, eventType string, object map[string]interface{}) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"id":          "evt_test_1",
		"object":      "event",
		"api_version": stripe.APIVersion,
		"type":        eventType,
		"data":        map[string]interface{}{"object": object},
	})
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    webhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

func TestHandleWebhookCreditsUser(t *testing.T) {
	svc, store := newCreditService(t)
	payload, header := signedEvent(t, "checkout.session.completed", map[string]interface{}{
		"id":                  "cs_test_3",
		"object":              "checkout.session",
		"client_reference_id": userID,
		"amount_total":        250,
		"metadata":            map[string]string{"credits": "10"},
	})

	require.NoError(t, svc.HandleWebhook(context.Background(), payload, header))
	require.NoError(t, svc.HandleWebhook(context.Background(), payload, header))
	assert.True(t, store.User(userID).Credits.Equal(decimal.NewFromInt(15)))
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	svc, store := newCreditService(t)
	payload, _ := signedEvent(t, "checkout.session.completed", map[string]interface{}{"id": "cs_test_4"})

	err := svc.HandleWebhook(context.Background(), payload, "t=1,v1=deadbeef")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	assert.True(t, store.User(userID).Credits.Equal(decimal.NewFromInt(5)))
}

func TestHandleWebhookIgnoresOtherEvents(t *testing.T) {
	svc, _ := newCreditService(t)
	payload, header := signedEvent(t, "payment_intent.created", map[string]interface{}{"id": "pi_1", "object": "payment_intent"})
	assert.NoError(t, svc.HandleWebhook(context.Background(), payload, header))
}
