package services

import (
	"context"
	"errors"
	"time"

	"consult_gateway_go_backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrOpenConversationExists is returned by CreateConversation when the pair
// already has a non-terminal conversation.
var ErrOpenConversationExists = errors.New("open conversation already exists for pair")

type ConversationServiceDB interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	FindOpenConversation(ctx context.Context, userID, partnerID string) (*models.Conversation, error)
	ListConversations(ctx context.Context, role models.Role, participantID string) ([]models.Conversation, error)
	// TransitionConversation moves the conversation to `to` only if its current
	// status is one of `from`, in a single conditional update. It reports
	// whether this caller performed the transition.
	TransitionConversation(ctx context.Context, id string, from []models.ConversationStatus, to models.ConversationStatus, updates map[string]interface{}) (bool, error)
	// RateConversation stores a rating for one side only if that side has not rated yet.
	RateConversation(ctx context.Context, id string, rater models.Role, rating models.Rating) (bool, error)

	RecordMessage(ctx context.Context, msg *models.Message, preview string) error
	GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID string, offset, limit int) ([]models.Message, int64, error)
	ConversationTranscript(ctx context.Context, conversationID string) ([]models.Message, error)
	MarkMessageDelivered(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkConversationRead(ctx context.Context, conversationID string, reader models.Role, readerID string, at time.Time) (int64, error)
	SoftDeleteMessage(ctx context.Context, id uuid.UUID) error

	CountPendingForPartner(ctx context.Context, partnerID string) (int64, error)
	SumUnread(ctx context.Context, role models.Role, participantID string) (int64, error)
}

type PartyServiceDB interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetPartner(ctx context.Context, id string) (*models.Partner, error)
	ListUsersByIDs(ctx context.Context, ids []string) ([]models.User, error)
	ListPartnersByIDs(ctx context.Context, ids []string) ([]models.Partner, error)
	ListPartners(ctx context.Context) ([]models.Partner, error)
	// ReservePartnerCapacity increments the active count only while it is below
	// the maximum. A partner without a configured maximum gets the default.
	ReservePartnerCapacity(ctx context.Context, partnerID string) (bool, error)
	ReleasePartnerCapacity(ctx context.Context, partnerID string) error
	UpdatePartnerPresence(ctx context.Context, partnerID string, status models.PartnerStatus, lastActiveAt *time.Time) error
	// ResetPresence marks every partner that is not offline as offline and
	// reports how many rows changed.
	ResetPresence(ctx context.Context, at time.Time) (int64, error)
	ApplyPartnerRating(ctx context.Context, partnerID string, stars int) error
}

type BillingServiceDB interface {
	// WithinTransaction runs fn against a store bound to a single database transaction.
	WithinTransaction(ctx context.Context, fn func(tx BillingServiceDB) error) error
	LockBalances(ctx context.Context, userID, partnerID string) (userCredits, partnerEarnings decimal.Decimal, err error)
	SetUserCredits(ctx context.Context, userID string, credits decimal.Decimal) error
	AddPartnerEarnings(ctx context.Context, partnerID string, amount decimal.Decimal) error
	UpsertLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error
	UpsertSessionRecord(ctx context.Context, record *models.SessionRecord) error
	UpdateConversationAnalytics(ctx context.Context, conversationID string, analytics models.SessionAnalytics) error
	UpdateSessionRecordRating(ctx context.Context, conversationID string, rater models.Role, rating models.Rating) error
	AttachSummary(ctx context.Context, conversationID, summary string) error
	ListLedgerEntries(ctx context.Context, role models.Role, participantID string, offset, limit int) ([]models.LedgerEntry, int64, error)
	// RecordCreditPurchase credits the user once per checkout session; it
	// reports false when the purchase was already applied.
	RecordCreditPurchase(ctx context.Context, purchase *models.CreditPurchase) (bool, error)
}

// MediaSigner produces short-lived download URLs for stored media.
type MediaSigner interface {
	SignedURL(ctx context.Context, objectKey string) (string, error)
}

// SummaryQueue accepts ended conversations for background summarization.
type SummaryQueue interface {
	Enqueue(conversationID string) bool
}

// Publisher fans out process-wide events.
type Publisher interface {
	Publish(topic string, msg interface{})
}
