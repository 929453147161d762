package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerEntry is the audit row of one settlement. (ConversationID, ServiceType) is unique.
type LedgerEntry struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID string    `gorm:"type:varchar(160);not null;uniqueIndex:idx_ledger_conversation_service" json:"conversationId"`
	ServiceType    string    `gorm:"type:varchar(16);not null;uniqueIndex:idx_ledger_conversation_service" json:"serviceType"`
	UserID         string    `gorm:"type:varchar(64);not null;index" json:"userId"`
	PartnerID      string    `gorm:"type:varchar(64);not null;index" json:"partnerId"`

	DurationSeconds      float64         `json:"durationSeconds"`
	BillableMinutes      int             `json:"billableMinutes"`
	UserRatePerMinute    decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"userRatePerMinute"`
	PartnerRatePerMinute decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"partnerRatePerMinute"`
	UserCharge           decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"userCharge"`
	UserDebited          decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"userDebited"`
	PartnerCredited      decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"partnerCredited"`
	UserBalanceBefore    decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"userBalanceBefore"`
	UserBalanceAfter     decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"userBalanceAfter"`
	PartnerBalanceBefore decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"partnerBalanceBefore"`
	PartnerBalanceAfter  decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"partnerBalanceAfter"`

	SettledAt time.Time `gorm:"index" json:"settledAt"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SessionRecord is the historical analytics copy of an ended conversation.
type SessionRecord struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID  string          `gorm:"type:varchar(160);not null;uniqueIndex" json:"conversationId"`
	UserID          string          `gorm:"type:varchar(64);not null;index" json:"userId"`
	PartnerID       string          `gorm:"type:varchar(64);not null;index" json:"partnerId"`
	ServiceType     string          `gorm:"type:varchar(16);not null" json:"serviceType"`
	StartedAt       time.Time       `json:"startedAt"`
	EndedAt         time.Time       `json:"endedAt"`
	DurationSeconds float64         `json:"durationSeconds"`
	BillableMinutes int             `json:"billableMinutes"`
	MessageCount    int             `json:"messageCount"`
	CreditsConsumed decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"creditsConsumed"`
	CreditsEarned   decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"creditsEarned"`
	UserRating      Rating          `gorm:"embedded;embeddedPrefix:user_rating_" json:"userRating"`
	PartnerRating   Rating          `gorm:"embedded;embeddedPrefix:partner_rating_" json:"partnerRating"`
	Summary         *string         `gorm:"type:text" json:"summary,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// CreditPurchase records one completed checkout so a webhook redelivery never credits twice.
type CreditPurchase struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CheckoutSessionID string          `gorm:"type:varchar(255);not null;uniqueIndex" json:"checkoutSessionId"`
	UserID            string          `gorm:"type:varchar(64);not null;index" json:"userId"`
	Credits           decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"credits"`
	AmountCents       int64           `json:"amountCents"`
	BalanceAfter      decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"balanceAfter"`
	CreatedAt         time.Time       `json:"createdAt"`
}
