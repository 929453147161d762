package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"consult_gateway_go_backend/internal/api"
	"consult_gateway_go_backend/internal/auth"
	apperrors "consult_gateway_go_backend/internal/errors"
	"consult_gateway_go_backend/internal/models"
	"consult_gateway_go_backend/internal/services"
	"consult_gateway_go_backend/internal/testhelpers"
	"consult_gateway_go_backend/internal/utils/broker"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const webhookSecret = "whsec_routes_test"

var (
	asha = models.Identity{ID: "user-1", Role: models.RoleUser, Name: "Asha"}
	ravi = models.Identity{ID: "partner-1", Role: models.RolePartner, Name: "Ravi"}
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type server struct {
	router   *gin.Engine
	store    *testhelpers.MemoryStore
	clock    *clock
	verifier *auth.TokenVerifier
}

func newServer(t *testing.T, userCredits int64) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := testhelpers.NewMemoryStore()
	store.AddUser(models.User{ID: asha.ID, Name: asha.Name, Credits: decimal.NewFromInt(userCredits)})
	store.AddPartner(models.Partner{ID: ravi.ID, Name: ravi.Name, MaxConversations: 1})
	c := &clock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	store.SetClock(c.Now)

	verifier := auth.NewTokenVerifier("routes-test-secret")
	authenticator := auth.NewAuthenticator(verifier, services.NewIdentityDirectory(store))

	rates := services.Rates{UserPerMinute: decimal.NewFromInt(4), PartnerPerMinute: decimal.NewFromInt(3)}
	billing := services.NewBillingService(store, rates, zerolog.Nop())
	opts := []services.Option{services.WithClock(c.Now)}

	r := gin.New()
	api.SetupRoutes(r, authenticator, api.Services{
		Conversations: services.NewConversationService(store, store, billing, zerolog.Nop(), opts...),
		Messages:      services.NewMessageService(store, zerolog.Nop(), opts...),
		Billing:       billing,
		Presence:      services.NewPresenceService(store, broker.NewBroker(4), zerolog.Nop(), opts...),
		Statements:    services.NewStatementService(billing, opts...),
		Credits: services.NewCreditService(store, services.StripeConfig{
			WebhookSecret:  webhookSecret,
			UnitPriceCents: 25,
		}, zerolog.Nop()),
	})
	return &server{router: r, store: store, clock: c, verifier: verifier}
}

func (s *server) do(t *testing.T, as *models.Identity, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if as != nil {
		token, err := s.verifier.Generate(*as, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Type string `json:"type"`
			Code string `json:"code"`
		} `json:"error"`
	}
	decode(t, w, &body)
	assert.False(t, body.Success)
	return body.Error.Type, body.Error.Code
}

type conversationBody struct {
	Success      bool                `json:"success"`
	Created      bool                `json:"created"`
	Conversation models.Conversation `json:"conversation"`
}

func (s *server) openConversation(t *testing.T) models.Conversation {
	t.Helper()
	w := s.do(t, &asha, http.MethodPost, "/api/conversations", map[string]string{"peerId": ravi.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created conversationBody
	decode(t, w, &created)

	w = s.do(t, &ravi, http.MethodPost, "/api/conversations/"+created.Conversation.ID+"/accept", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var accepted conversationBody
	decode(t, w, &accepted)
	require.Equal(t, models.StatusAccepted, accepted.Conversation.Status)
	return accepted.Conversation
}

func TestConversationLifecycleOverREST(t *testing.T) {
	s := newServer(t, 10)

	w := s.do(t, &asha, http.MethodPost, "/api/conversations", map[string]string{"peerId": ravi.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var first conversationBody
	decode(t, w, &first)
	assert.True(t, first.Created)
	assert.Equal(t, models.StatusPending, first.Conversation.Status)

	w = s.do(t, &asha, http.MethodPost, "/api/conversations", map[string]string{"peerId": ravi.ID})
	require.Equal(t, http.StatusOK, w.Code)
	var again conversationBody
	decode(t, w, &again)
	assert.False(t, again.Created)
	assert.Equal(t, first.Conversation.ID, again.Conversation.ID)

	var unread struct {
		Unread          int64 `json:"unread"`
		PendingRequests int64 `json:"pendingRequests"`
	}
	decode(t, s.do(t, &ravi, http.MethodGet, "/api/conversations/unread", nil), &unread)
	assert.Equal(t, int64(1), unread.PendingRequests)

	id := first.Conversation.ID
	require.Equal(t, http.StatusOK, s.do(t, &ravi, http.MethodPost, "/api/conversations/"+id+"/accept", nil).Code)

	w = s.do(t, &asha, http.MethodPost, "/api/conversations/"+id+"/messages", map[string]string{"content": "Will the move go well?"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, models.StatusActive, s.store.Conversation(id).Status)

	decode(t, s.do(t, &ravi, http.MethodGet, "/api/conversations/unread", nil), &unread)
	assert.Equal(t, int64(1), unread.Unread)

	require.Equal(t, http.StatusOK, s.do(t, &ravi, http.MethodPost, "/api/conversations/"+id+"/read", nil).Code)
	assert.Equal(t, 0, s.store.Conversation(id).PartnerUnreadCount)

	s.clock.Advance(3 * time.Minute)
	w = s.do(t, &asha, http.MethodPost, "/api/conversations/"+id+"/end", map[string]interface{}{"stars": 5, "satisfaction": "satisfied"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var ended struct {
		Conversation models.Conversation `json:"conversation"`
		Ledger       models.LedgerEntry  `json:"ledger"`
	}
	decode(t, w, &ended)
	assert.Equal(t, models.StatusEnded, ended.Conversation.Status)
	assert.Equal(t, 3, ended.Ledger.BillableMinutes)
	assert.True(t, ended.Ledger.UserCharge.Equal(decimal.NewFromInt(12)))
	assert.True(t, ended.Ledger.UserDebited.Equal(decimal.NewFromInt(10)))
	assert.True(t, ended.Ledger.PartnerCredited.Equal(decimal.NewFromInt(9)))
	assert.True(t, s.store.User(asha.ID).Credits.IsZero())
	assert.Equal(t, 5, s.store.Conversation(id).UserRating.Stars)

	w = s.do(t, &ravi, http.MethodPost, "/api/conversations/"+id+"/end", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Len(t, s.store.LedgerEntries(), 1)

	w = s.do(t, &ravi, http.MethodPost, "/api/conversations/"+id+"/rating", map[string]interface{}{"stars": 4, "feedback": "Thoughtful questions"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 4, s.store.Conversation(id).PartnerRating.Stars)

	var list struct {
		Conversations []services.ConversationSummary `json:"conversations"`
	}
	decode(t, s.do(t, &asha, http.MethodGet, "/api/conversations", nil), &list)
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, id, list.Conversations[0].ID)
}

func TestBillingHistoryViews(t *testing.T) {
	s := newServer(t, 100)
	conv := s.openConversation(t)
	s.clock.Advance(90 * time.Second)
	require.Equal(t, http.StatusOK, s.do(t, &ravi, http.MethodPost, "/api/conversations/"+conv.ID+"/end", nil).Code)

	var history struct {
		Entries    []services.LedgerView `json:"entries"`
		Pagination struct {
			Page    int   `json:"page"`
			Limit   int   `json:"limit"`
			Total   int64 `json:"total"`
			HasMore bool  `json:"hasMore"`
		} `json:"pagination"`
	}
	decode(t, s.do(t, &asha, http.MethodGet, "/api/billing/history?page=1&limit=500", nil), &history)
	require.Len(t, history.Entries, 1)
	assert.Equal(t, services.RateDebit, history.Entries[0].Direction)
	assert.True(t, history.Entries[0].Amount.Equal(decimal.NewFromInt(8)))
	assert.Equal(t, 100, history.Pagination.Limit)
	assert.False(t, history.Pagination.HasMore)

	decode(t, s.do(t, &ravi, http.MethodGet, "/api/billing/history", nil), &history)
	require.Len(t, history.Entries, 1)
	assert.Equal(t, services.RateCredit, history.Entries[0].Direction)
	assert.True(t, history.Entries[0].Amount.Equal(decimal.NewFromInt(6)))
	assert.Equal(t, 50, history.Pagination.Limit)

	w := s.do(t, &asha, http.MethodGet, "/api/billing/history?page=two", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, &asha, http.MethodGet, "/api/billing/statement", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "statement-user-1.pdf")
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")))
}

func TestErrorResponsesCarryTaxonomy(t *testing.T) {
	s := newServer(t, 0)

	w := s.do(t, nil, http.MethodGet, "/api/conversations", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	_, code := errorBody(t, w)
	assert.Equal(t, apperrors.CodeMissingToken, code)

	w = s.do(t, &asha, http.MethodPost, "/api/conversations", map[string]string{"peerId": ravi.ID})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	errType, _ := errorBody(t, w)
	assert.Equal(t, string(apperrors.ErrorTypeInsufficientCredits), errType)

	w = s.do(t, &asha, http.MethodPost, "/api/conversations", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, &asha, http.MethodGet, "/api/conversations/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, &asha, http.MethodPost, "/api/conversations/missing/rating", map[string]int{"stars": 9})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoleChecksOnConversationActions(t *testing.T) {
	s := newServer(t, 50)
	w := s.do(t, &asha, http.MethodPost, "/api/conversations", map[string]string{"peerId": ravi.ID})
	require.Equal(t, http.StatusCreated, w.Code)
	var created conversationBody
	decode(t, w, &created)
	id := created.Conversation.ID

	w = s.do(t, &asha, http.MethodPost, "/api/conversations/"+id+"/accept", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, &ravi, http.MethodPost, "/api/conversations/"+id+"/reject", map[string]string{"reason": "Fully booked"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.StatusRejected, s.store.Conversation(id).Status)
	assert.Equal(t, "Fully booked", s.store.Conversation(id).RejectionReason)

	w = s.do(t, &asha, http.MethodPost, "/api/conversations/"+id+"/messages", map[string]string{"content": "still there?"})
	assert.Equal(t, http.StatusConflict, w.Code)

	s.clock.Advance(time.Minute)
	w = s.do(t, &asha, http.MethodPost, "/api/conversations", map[string]string{"peerId": ravi.ID})
	require.Equal(t, http.StatusCreated, w.Code)
	var next conversationBody
	decode(t, w, &next)
	assert.NotEqual(t, id, next.Conversation.ID)
}

func TestMessageListingAndDeletion(t *testing.T) {
	s := newServer(t, 50)
	conv := s.openConversation(t)
	base := "/api/conversations/" + conv.ID + "/messages"

	var ids []string
	for _, content := range []string{"one", "two", "three"} {
		s.clock.Advance(time.Second)
		w := s.do(t, &asha, http.MethodPost, base, map[string]string{"content": content})
		require.Equal(t, http.StatusCreated, w.Code)
		var sent struct {
			Message models.Message `json:"message"`
		}
		decode(t, w, &sent)
		ids = append(ids, sent.Message.ID.String())
	}

	var page struct {
		Messages   []models.Message `json:"messages"`
		Pagination struct {
			Total   int64 `json:"total"`
			HasMore bool  `json:"hasMore"`
		} `json:"pagination"`
	}
	decode(t, s.do(t, &ravi, http.MethodGet, base+"?limit=2", nil), &page)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "two", page.Messages[0].Content)
	assert.Equal(t, "three", page.Messages[1].Content)
	assert.True(t, page.Pagination.HasMore)

	assert.Equal(t, http.StatusForbidden, s.do(t, &ravi, http.MethodDelete, "/api/messages/"+ids[1], nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, &asha, http.MethodDelete, "/api/messages/"+ids[1], nil).Code)

	decode(t, s.do(t, &ravi, http.MethodGet, base, nil), &page)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "one", page.Messages[0].Content)
	assert.Equal(t, "three", page.Messages[1].Content)
	assert.Equal(t, int64(2), page.Pagination.Total)
}

func TestPresenceEndpoints(t *testing.T) {
	s := newServer(t, 50)

	w := s.do(t, &ravi, http.MethodPut, "/api/partners/me/status", map[string]string{"status": "busy"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.PartnerBusy, s.store.Partner(ravi.ID).Status)

	w = s.do(t, &ravi, http.MethodPut, "/api/partners/me/status", map[string]string{"status": "asleep"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, &asha, http.MethodPut, "/api/partners/me/status", map[string]string{"status": "online"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	var roster struct {
		Partners []services.PartnerPresence `json:"partners"`
	}
	decode(t, s.do(t, &asha, http.MethodGet, "/api/partners/presence", nil), &roster)
	require.Len(t, roster.Partners, 1)
	assert.Equal(t, ravi.ID, roster.Partners[0].PartnerID)
	assert.Equal(t, models.PartnerBusy, roster.Partners[0].Status)
	assert.True(t, roster.Partners[0].CanAccept)
	assert.False(t, roster.Partners[0].Connected)
}

func TestStripeWebhookCreditsOnce(t *testing.T) {
	s := newServer(t, 5)
	payload, err := json.Marshal(map[string]interface{}{
		"id":          "evt_routes_1",
		"object":      "event",
		"api_version": stripe.APIVersion,
		"type":        "checkout.session.completed",
		"data": map[string]interface{}{"object": map[string]interface{}{
			"id":                  "cs_routes_1",
			"object":              "checkout.session",
			"client_reference_id": asha.ID,
			"amount_total":        500,
			"metadata":            map[string]string{"credits": "20"},
		}},
	})
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    webhookSecret,
		Timestamp: time.Now(),
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader(signed.Payload))
		req.Header.Set("Stripe-Signature", signed.Header)
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	assert.True(t, s.store.User(asha.ID).Credits.Equal(decimal.NewFromInt(25)))

	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckoutRequiresRequester(t *testing.T) {
	s := newServer(t, 5)
	w := s.do(t, &ravi, http.MethodPost, "/api/credits/checkout", map[string]int64{"credits": 10})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, &asha, http.MethodPost, "/api/credits/checkout", map[string]int64{"credits": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newServer(t, 5)
	w := s.do(t, nil, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
