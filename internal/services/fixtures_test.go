package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"consult_gateway_go_backend/internal/models"
	"consult_gateway_go_backend/internal/services"
	"consult_gateway_go_backend/internal/testhelpers"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentEvent struct {
	Target  string
	Event   string
	Payload interface{}
}

// recordingNotifier captures pushed events and reports a configurable set of
// identities as connected.
type recordingNotifier struct {
	mu         sync.Mutex
	connected  map[string]bool
	broadcasts []sentEvent
	direct     []sentEvent
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{connected: make(map[string]bool)}
}

func (n *recordingNotifier) Connect(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connected[id] = true
}

func (n *recordingNotifier) Broadcast(conversationID, event string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.broadcasts = append(n.broadcasts, sentEvent{Target: conversationID, Event: event, Payload: payload})
}

func (n *recordingNotifier) NotifyIdentity(identityID, event string, payload interface{}) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.connected[identityID] {
		return false
	}
	n.direct = append(n.direct, sentEvent{Target: identityID, Event: event, Payload: payload})
	return true
}

func (n *recordingNotifier) IsConnected(identityID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.connected[identityID]
}

func (n *recordingNotifier) Direct(event string) []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentEvent
	for _, e := range n.direct {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (n *recordingNotifier) Broadcasts(event string) []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentEvent
	for _, e := range n.broadcasts {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type MockSummaryQueue struct {
	mock.Mock
}

func (m *MockSummaryQueue) Enqueue(conversationID string) bool {
	args := m.Called(conversationID)
	return args.Bool(0)
}

type MockMediaSigner struct {
	mock.Mock
}

func (m *MockMediaSigner) SignedURL(ctx context.Context, objectKey string) (string, error) {
	args := m.Called(ctx, objectKey)
	return args.String(0), args.Error(1)
}

const (
	userID    = "user-1"
	partnerID = "partner-1"
)

type fixture struct {
	store         *testhelpers.MemoryStore
	clock         *testClock
	notifier      *recordingNotifier
	queue         *MockSummaryQueue
	billing       *services.BillingService
	conversations *services.ConversationService
	messages      *services.MessageService
	user          services.Party
	partner       services.Party
}

func newFixture(t *testing.T, userCredits int64) *fixture {
	t.Helper()
	store := testhelpers.NewMemoryStore()
	store.AddUser(models.User{ID: userID, Name: "Asha", ZodiacSign: "Leo", Credits: decimal.NewFromInt(userCredits)})
	store.AddPartner(models.Partner{ID: partnerID, Name: "Ravi", MaxConversations: 1, Status: models.PartnerOnline})

	clock := newTestClock()
	store.SetClock(clock.Now)
	notifier := newRecordingNotifier()
	queue := new(MockSummaryQueue)
	queue.On("Enqueue", mock.Anything).Return(true).Maybe()

	rates := services.Rates{UserPerMinute: decimal.NewFromInt(4), PartnerPerMinute: decimal.NewFromInt(3)}
	billing := services.NewBillingService(store, rates, zerolog.Nop())
	opts := []services.Option{
		services.WithClock(clock.Now),
		services.WithNotifier(notifier),
		services.WithSummaryQueue(queue),
	}

	user, err := services.PartyFor(models.Identity{ID: userID, Role: models.RoleUser})
	require.NoError(t, err)
	partner, err := services.PartyFor(models.Identity{ID: partnerID, Role: models.RolePartner})
	require.NoError(t, err)

	return &fixture{
		store:         store,
		clock:         clock,
		notifier:      notifier,
		queue:         queue,
		billing:       billing,
		conversations: services.NewConversationService(store, store, billing, zerolog.Nop(), opts...),
		messages:      services.NewMessageService(store, zerolog.Nop(), opts...),
		user:          user,
		partner:       partner,
	}
}

// requestAndAccept opens a conversation from the user and has the partner accept it.
func (f *fixture) requestAndAccept(t *testing.T) *models.Conversation {
	t.Helper()
	ctx := context.Background()
	conv, created, err := f.conversations.Create(ctx, f.user, services.CreateConversationInput{PeerID: partnerID})
	require.NoError(t, err)
	require.True(t, created)
	accepted, err := f.conversations.Accept(ctx, f.partner, conv.ID)
	require.NoError(t, err)
	return accepted
}
