package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PartnerStatus string

const (
	PartnerOnline  PartnerStatus = "online"
	PartnerOffline PartnerStatus = "offline"
	PartnerBusy    PartnerStatus = "busy"
)

func (s PartnerStatus) Valid() bool {
	switch s {
	case PartnerOnline, PartnerOffline, PartnerBusy:
		return true
	}
	return false
}

// Partner is a service provider.
type Partner struct {
	ID                       string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name                     string          `json:"name"`
	Email                    string          `gorm:"index" json:"email"`
	Specialization           string          `json:"specialization,omitempty"`
	ProfileImageKey          string          `json:"-"`
	Status                   PartnerStatus   `gorm:"type:varchar(16);not null;default:'offline';index" json:"status"`
	LastActiveAt             *time.Time      `json:"lastActiveAt,omitempty"`
	ActiveConversationsCount int             `gorm:"not null;default:0" json:"activeConversationsCount"`
	MaxConversations         int             `gorm:"not null;default:1" json:"maxConversations"`
	LifetimeEarnings         decimal.Decimal `gorm:"type:numeric(15,2);not null;default:0" json:"lifetimeEarnings"`
	AvailableEarnings        decimal.Decimal `gorm:"type:numeric(15,2);not null;default:0" json:"availableEarnings"`
	Rating                   float64         `gorm:"not null;default:0" json:"rating"`
	RatingCount              int             `gorm:"not null;default:0" json:"ratingCount"`
	CreatedAt                time.Time       `json:"createdAt"`
	UpdatedAt                time.Time       `json:"updatedAt"`
}

// CanAccept reports whether the partner has room for another active conversation.
func (p *Partner) CanAccept() bool {
	return p.ActiveConversationsCount < p.MaxConversations
}
