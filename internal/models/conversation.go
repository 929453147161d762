package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type ConversationStatus string

const (
	StatusPending  ConversationStatus = "pending"
	StatusAccepted ConversationStatus = "accepted"
	StatusActive   ConversationStatus = "active"
	StatusEnded    ConversationStatus = "ended"
	StatusRejected ConversationStatus = "rejected"
)

// OpenStatuses are the non-terminal states. At most one conversation per
// (user, partner) pair may be in one of them.
var OpenStatuses = []ConversationStatus{StatusPending, StatusAccepted, StatusActive}

func (s ConversationStatus) IsOpen() bool {
	return s == StatusPending || s == StatusAccepted || s == StatusActive
}

func (s ConversationStatus) IsTerminal() bool {
	return s == StatusEnded || s == StatusRejected
}

const ServiceTypeChat = "chat"

// SessionAnalytics is the denormalized per-session summary kept on the conversation.
type SessionAnalytics struct {
	DurationSeconds      float64         `json:"durationSeconds"`
	BillableMinutes      int             `json:"billableMinutes"`
	MessageCount         int             `gorm:"not null;default:0" json:"messageCount"`
	CreditsConsumed      decimal.Decimal `gorm:"type:numeric(15,2);not null;default:0" json:"creditsConsumed"`
	CreditsEarned        decimal.Decimal `gorm:"type:numeric(15,2);not null;default:0" json:"creditsEarned"`
	UserRatePerMinute    decimal.Decimal `gorm:"type:numeric(15,2);not null;default:0" json:"userRatePerMinute"`
	PartnerRatePerMinute decimal.Decimal `gorm:"type:numeric(15,2);not null;default:0" json:"partnerRatePerMinute"`
	Summary              *string         `gorm:"type:text" json:"summary,omitempty"`
}

type Satisfaction string

const (
	SatisfactionSatisfied    Satisfaction = "satisfied"
	SatisfactionNeutral      Satisfaction = "neutral"
	SatisfactionDissatisfied Satisfaction = "dissatisfied"
)

func (s Satisfaction) Valid() bool {
	switch s {
	case "", SatisfactionSatisfied, SatisfactionNeutral, SatisfactionDissatisfied:
		return true
	}
	return false
}

// Rating is feedback left by one side of a conversation.
type Rating struct {
	Stars        int          `json:"stars,omitempty"`
	Feedback     string       `gorm:"type:text" json:"feedback,omitempty"`
	Satisfaction Satisfaction `gorm:"type:varchar(16)" json:"satisfaction,omitempty"`
	RatedAt      *time.Time   `json:"ratedAt,omitempty"`
}

func (r Rating) Given() bool { return r.RatedAt != nil }

type Conversation struct {
	ID          string             `gorm:"primaryKey;type:varchar(160)" json:"id"`
	UserID      string             `gorm:"type:varchar(64);not null;index" json:"userId"`
	PartnerID   string             `gorm:"type:varchar(64);not null;index" json:"partnerId"`
	InitiatedBy Role               `gorm:"type:varchar(16);not null" json:"initiatedBy"`
	ServiceType string             `gorm:"type:varchar(16);not null;default:'chat'" json:"serviceType"`
	Status      ConversationStatus `gorm:"type:varchar(16);not null;index" json:"status"`

	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	AcceptedAt      *time.Time `json:"acceptedAt,omitempty"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	EndedAt         *time.Time `json:"endedAt,omitempty"`
	EndedBy         string     `gorm:"type:varchar(64)" json:"endedBy,omitempty"`
	RejectedAt      *time.Time `json:"rejectedAt,omitempty"`
	RejectionReason string     `gorm:"type:text" json:"rejectionReason,omitempty"`

	LastMessage         string     `gorm:"type:text" json:"lastMessage,omitempty"`
	LastMessageAt       *time.Time `gorm:"index" json:"lastMessageAt,omitempty"`
	LastMessageSenderID string     `gorm:"type:varchar(64)" json:"lastMessageSenderId,omitempty"`
	UserUnreadCount     int        `gorm:"not null;default:0" json:"userUnreadCount"`
	PartnerUnreadCount  int        `gorm:"not null;default:0" json:"partnerUnreadCount"`

	Analytics     SessionAnalytics `gorm:"embedded;embeddedPrefix:analytics_" json:"analytics"`
	UserRating    Rating           `gorm:"embedded;embeddedPrefix:user_rating_" json:"userRating"`
	PartnerRating Rating           `gorm:"embedded;embeddedPrefix:partner_rating_" json:"partnerRating"`

	// Frozen copy of the requester profile at creation time.
	ContextSnapshot datatypes.JSON `gorm:"type:jsonb" json:"contextSnapshot,omitempty"`
}

// ConversationID derives the identifier for a fresh conversation from the
// sorted participant pair and the creation time.
func ConversationID(userID, partnerID string, createdAt time.Time) string {
	pair := []string{userID, partnerID}
	sort.Strings(pair)
	return fmt.Sprintf("%s_%s_%d", pair[0], pair[1], createdAt.UnixMilli())
}

// SessionStart is acceptance time, falling back to start time and then creation time.
func (c *Conversation) SessionStart() time.Time {
	if c.AcceptedAt != nil {
		return *c.AcceptedAt
	}
	if c.StartedAt != nil {
		return *c.StartedAt
	}
	return c.CreatedAt
}

func (c *Conversation) WasAccepted() bool {
	return c.AcceptedAt != nil || c.StartedAt != nil
}

func (c *Conversation) HasParticipant(id string) bool {
	return id != "" && (id == c.UserID || id == c.PartnerID)
}
