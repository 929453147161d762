package services

import (
	"fmt"

	"consult_gateway_go_backend/internal/models"
)

type RateRole string

const (
	RateDebit  RateRole = "debit"
	RateCredit RateRole = "credit"
)

// Party is one side of a conversation. It is selected once from the caller's
// identity so handlers never branch on role themselves.
type Party interface {
	ID() string
	Role() models.Role
	CanAccept() bool
	CanReject() bool
	RateRole() RateRole
	// RequiresCredits reports whether initiating a conversation needs a positive balance.
	RequiresCredits() bool
	// Pair orders (caller, peer) into (userID, partnerID).
	Pair(peerID string) (userID, partnerID string)
	Owns(conv *models.Conversation) bool
	PeerID(conv *models.Conversation) string
	PeerRole() models.Role
	Unread(conv *models.Conversation) int
}

func PartyFor(identity models.Identity) (Party, error) {
	switch identity.Role {
	case models.RoleUser:
		return requesterParty{identity: identity}, nil
	case models.RolePartner:
		return partnerParty{identity: identity}, nil
	}
	return nil, fmt.Errorf("unknown role %q", identity.Role)
}

type requesterParty struct {
	identity models.Identity
}

func (p requesterParty) ID() string            { return p.identity.ID }
func (p requesterParty) Role() models.Role     { return models.RoleUser }
func (p requesterParty) CanAccept() bool       { return false }
func (p requesterParty) CanReject() bool       { return false }
func (p requesterParty) RateRole() RateRole    { return RateDebit }
func (p requesterParty) RequiresCredits() bool { return true }
func (p requesterParty) PeerRole() models.Role { return models.RolePartner }

func (p requesterParty) Pair(peerID string) (string, string) {
	return p.identity.ID, peerID
}

func (p requesterParty) Owns(conv *models.Conversation) bool {
	return conv.UserID == p.identity.ID
}

func (p requesterParty) PeerID(conv *models.Conversation) string { return conv.PartnerID }
func (p requesterParty) Unread(conv *models.Conversation) int    { return conv.UserUnreadCount }

type partnerParty struct {
	identity models.Identity
}

func (p partnerParty) ID() string            { return p.identity.ID }
func (p partnerParty) Role() models.Role     { return models.RolePartner }
func (p partnerParty) CanAccept() bool       { return true }
func (p partnerParty) CanReject() bool       { return true }
func (p partnerParty) RateRole() RateRole    { return RateCredit }
func (p partnerParty) RequiresCredits() bool { return false }
func (p partnerParty) PeerRole() models.Role { return models.RoleUser }

func (p partnerParty) Pair(peerID string) (string, string) {
	return peerID, p.identity.ID
}

func (p partnerParty) Owns(conv *models.Conversation) bool {
	return conv.PartnerID == p.identity.ID
}

func (p partnerParty) PeerID(conv *models.Conversation) string { return conv.UserID }
func (p partnerParty) Unread(conv *models.Conversation) int    { return conv.PartnerUnreadCount }
