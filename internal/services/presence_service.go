package services

import (
	"context"
	"time"

	apperrors "consult_gateway_go_backend/internal/errors"
	"consult_gateway_go_backend/internal/models"

	"github.com/rs/zerolog"
)

// PresenceChange is published on EventPartnerStatusChanged.
type PresenceChange struct {
	PartnerID    string               `json:"partnerId"`
	Status       models.PartnerStatus `json:"status"`
	LastActiveAt *time.Time           `json:"lastActiveAt,omitempty"`
}

// PartnerPresence is one roster row.
type PartnerPresence struct {
	PartnerID                string               `json:"partnerId"`
	Name                     string               `json:"name"`
	Status                   models.PartnerStatus `json:"status"`
	LastActiveAt             *time.Time           `json:"lastActiveAt,omitempty"`
	ActiveConversationsCount int                  `json:"activeConversationsCount"`
	MaxConversations         int                  `json:"maxConversations"`
	CanAccept                bool                 `json:"canAccept"`
	Connected                bool                 `json:"connected"`
}

// PresenceService tracks partner status. Changes are persisted and then
// published so every connected client can refresh its roster.
type PresenceService struct {
	parties   PartyServiceDB
	publisher Publisher
	notifier  Notifier
	now       func() time.Time
	logger    zerolog.Logger
}

func NewPresenceService(parties PartyServiceDB, publisher Publisher, logger zerolog.Logger, opts ...Option) *PresenceService {
	o := buildOptions(opts)
	return &PresenceService{
		parties:   parties,
		publisher: publisher,
		notifier:  o.notifier,
		now:       o.now,
		logger:    logger.With().Str("component", "presence").Logger(),
	}
}

// Reset clears presence left over from a previous process. No partner has a
// live connection at startup, so everyone starts offline.
func (s *PresenceService) Reset(ctx context.Context) error {
	reset, err := s.parties.ResetPresence(ctx, s.now())
	if err != nil {
		return err
	}
	if reset > 0 {
		s.logger.Info().Int64("partners", reset).Msg("Reset stale partner presence")
	}
	return nil
}

// SetStatus is an explicit status change requested by a partner.
func (s *PresenceService) SetStatus(ctx context.Context, caller Party, status models.PartnerStatus) (*PresenceChange, error) {
	if caller.Role() != models.RolePartner {
		return nil, apperrors.NewAccessDeniedError("Only partners have a presence status")
	}
	if !status.Valid() {
		return nil, apperrors.NewValidationError("status must be one of online, offline, busy")
	}
	change, err := s.update(ctx, caller.ID(), status)
	if err != nil {
		return nil, apperrors.New500Error(err)
	}
	return change, nil
}

// Connected marks a partner online when its real-time connection is admitted.
func (s *PresenceService) Connected(ctx context.Context, identity models.Identity) {
	if !identity.IsPartner() {
		return
	}
	if _, err := s.update(ctx, identity.ID, models.PartnerOnline); err != nil {
		s.logger.Error().Err(err).Str("partner_id", identity.ID).Msg("Failed to mark partner online")
	}
}

// Disconnected marks a partner offline and stamps its last activity.
func (s *PresenceService) Disconnected(ctx context.Context, identity models.Identity) {
	if !identity.IsPartner() {
		return
	}
	if _, err := s.update(ctx, identity.ID, models.PartnerOffline); err != nil {
		s.logger.Error().Err(err).Str("partner_id", identity.ID).Msg("Failed to mark partner offline")
	}
}

func (s *PresenceService) update(ctx context.Context, partnerID string, status models.PartnerStatus) (*PresenceChange, error) {
	now := s.now()
	if err := s.parties.UpdatePartnerPresence(ctx, partnerID, status, &now); err != nil {
		return nil, err
	}
	change := &PresenceChange{PartnerID: partnerID, Status: status, LastActiveAt: &now}
	s.publisher.Publish(EventPartnerStatusChanged, *change)
	s.logger.Debug().Str("partner_id", partnerID).Str("status", string(status)).Msg("Presence changed")
	return change, nil
}

// Roster lists every partner with its status and current load.
func (s *PresenceService) Roster(ctx context.Context) ([]PartnerPresence, error) {
	partners, err := s.parties.ListPartners(ctx)
	if err != nil {
		return nil, apperrors.New500Error(err)
	}
	roster := make([]PartnerPresence, 0, len(partners))
	for i := range partners {
		p := &partners[i]
		roster = append(roster, PartnerPresence{
			PartnerID:                p.ID,
			Name:                     p.Name,
			Status:                   p.Status,
			LastActiveAt:             p.LastActiveAt,
			ActiveConversationsCount: p.ActiveConversationsCount,
			MaxConversations:         p.MaxConversations,
			CanAccept:                p.CanAccept(),
			Connected:                s.notifier.IsConnected(p.ID),
		})
	}
	return roster, nil
}
