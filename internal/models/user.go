package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is a requester. Profile data is owned by the identity service; this
// core only reads it for context snapshots and mutates Credits.
type User struct {
	ID              string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name            string          `json:"name"`
	Email           string          `gorm:"index" json:"email"`
	Gender          string          `json:"gender,omitempty"`
	DateOfBirth     string          `json:"dateOfBirth,omitempty"`
	TimeOfBirth     string          `json:"timeOfBirth,omitempty"`
	PlaceOfBirth    string          `json:"placeOfBirth,omitempty"`
	ZodiacSign      string          `json:"zodiacSign,omitempty"`
	ProfileImageKey string          `json:"-"`
	Credits         decimal.Decimal `gorm:"type:numeric(15,2);not null;default:0" json:"credits"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}
