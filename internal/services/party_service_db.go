package services

import (
	"context"
	"time"

	"consult_gateway_go_backend/internal/models"

	"gorm.io/gorm"
)

type DefaultPartyService struct {
	db         *gorm.DB
	defaultMax int
}

func NewPartyServiceDB(db *gorm.DB, defaultMax int) PartyServiceDB {
	if defaultMax < 1 {
		defaultMax = 1
	}
	return &DefaultPartyService{db: db, defaultMax: defaultMax}
}

func (s *DefaultPartyService) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *DefaultPartyService) GetPartner(ctx context.Context, id string) (*models.Partner, error) {
	var partner models.Partner
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&partner).Error; err != nil {
		return nil, err
	}
	s.applyDefaultMax(&partner)
	return &partner, nil
}

func (s *DefaultPartyService) ListUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	var users []models.User
	if len(ids) == 0 {
		return users, nil
	}
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error
	return users, err
}

func (s *DefaultPartyService) ListPartners(ctx context.Context) ([]models.Partner, error) {
	var partners []models.Partner
	err := s.db.WithContext(ctx).Order("name asc").Find(&partners).Error
	if err != nil {
		return nil, err
	}
	for i := range partners {
		s.applyDefaultMax(&partners[i])
	}
	return partners, nil
}

func (s *DefaultPartyService) applyDefaultMax(p *models.Partner) {
	if p.MaxConversations < 1 {
		p.MaxConversations = s.defaultMax
	}
}

func (s *DefaultPartyService) ListPartnersByIDs(ctx context.Context, ids []string) ([]models.Partner, error) {
	var partners []models.Partner
	if len(ids) == 0 {
		return partners, nil
	}
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Order("name asc").Find(&partners).Error
	if err != nil {
		return nil, err
	}
	for i := range partners {
		s.applyDefaultMax(&partners[i])
	}
	return partners, nil
}

func (s *DefaultPartyService) ReservePartnerCapacity(ctx context.Context, partnerID string) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Partner{}).
		Where("id = ? AND active_conversations_count < COALESCE(NULLIF(max_conversations, 0), ?)", partnerID, s.defaultMax).
		Update("active_conversations_count", gorm.Expr("active_conversations_count + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *DefaultPartyService) ReleasePartnerCapacity(ctx context.Context, partnerID string) error {
	return s.db.WithContext(ctx).Model(&models.Partner{}).
		Where("id = ? AND active_conversations_count > 0", partnerID).
		Update("active_conversations_count", gorm.Expr("active_conversations_count - 1")).Error
}

func (s *DefaultPartyService) UpdatePartnerPresence(ctx context.Context, partnerID string, status models.PartnerStatus, lastActiveAt *time.Time) error {
	updates := map[string]interface{}{"status": status}
	if lastActiveAt != nil {
		updates["last_active_at"] = *lastActiveAt
	}
	return s.db.WithContext(ctx).Model(&models.Partner{}).
		Where("id = ?", partnerID).
		Updates(updates).Error
}

func (s *DefaultPartyService) ResetPresence(ctx context.Context, at time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Partner{}).
		Where("status <> ?", models.PartnerOffline).
		Updates(map[string]interface{}{"status": models.PartnerOffline, "last_active_at": at})
	return result.RowsAffected, result.Error
}

// ApplyPartnerRating folds one new score into the running average.
func (s *DefaultPartyService) ApplyPartnerRating(ctx context.Context, partnerID string, stars int) error {
	return s.db.WithContext(ctx).Model(&models.Partner{}).
		Where("id = ?", partnerID).
		Updates(map[string]interface{}{
			"rating":       gorm.Expr("(rating * rating_count + ?) / (rating_count + 1)", stars),
			"rating_count": gorm.Expr("rating_count + 1"),
		}).Error
}
