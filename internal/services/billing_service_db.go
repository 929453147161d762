package services

import (
	"context"

	"consult_gateway_go_backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DefaultBillingService struct {
	db *gorm.DB
}

func NewBillingServiceDB(db *gorm.DB) BillingServiceDB {
	return &DefaultBillingService{db: db}
}

func (s *DefaultBillingService) WithinTransaction(ctx context.Context, fn func(tx BillingServiceDB) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&DefaultBillingService{db: tx})
	})
}

func (s *DefaultBillingService) LockBalances(ctx context.Context, userID, partnerID string) (decimal.Decimal, decimal.Decimal, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", userID).First(&user).Error; err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	var partner models.Partner
	if err := s.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", partnerID).First(&partner).Error; err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return user.Credits, partner.AvailableEarnings, nil
}

func (s *DefaultBillingService) SetUserCredits(ctx context.Context, userID string, credits decimal.Decimal) error {
	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("credits", credits).Error
}

func (s *DefaultBillingService) AddPartnerEarnings(ctx context.Context, partnerID string, amount decimal.Decimal) error {
	return s.db.WithContext(ctx).Model(&models.Partner{}).
		Where("id = ?", partnerID).
		Updates(map[string]interface{}{
			"lifetime_earnings":  gorm.Expr("lifetime_earnings + ?", amount),
			"available_earnings": gorm.Expr("available_earnings + ?", amount),
		}).Error
}

var ledgerUpdateColumns = []string{
	"user_id", "partner_id", "duration_seconds", "billable_minutes",
	"user_rate_per_minute", "partner_rate_per_minute", "user_charge", "user_debited", "partner_credited",
	"user_balance_before", "user_balance_after", "partner_balance_before", "partner_balance_after",
	"settled_at", "updated_at",
}

func (s *DefaultBillingService) UpsertLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "service_type"}},
		DoUpdates: clause.AssignmentColumns(ledgerUpdateColumns),
	}).Create(entry).Error
}

var sessionRecordUpdateColumns = []string{
	"started_at", "ended_at", "duration_seconds", "billable_minutes", "message_count",
	"credits_consumed", "credits_earned",
	"user_rating_stars", "user_rating_feedback", "user_rating_satisfaction", "user_rating_rated_at",
	"partner_rating_stars", "partner_rating_feedback", "partner_rating_satisfaction", "partner_rating_rated_at",
	"updated_at",
}

func (s *DefaultBillingService) UpsertSessionRecord(ctx context.Context, record *models.SessionRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "conversation_id"}},
		DoUpdates: clause.AssignmentColumns(sessionRecordUpdateColumns),
	}).Create(record).Error
}

func (s *DefaultBillingService) UpdateConversationAnalytics(ctx context.Context, conversationID string, analytics models.SessionAnalytics) error {
	return s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Updates(map[string]interface{}{
			"analytics_duration_seconds":        analytics.DurationSeconds,
			"analytics_billable_minutes":        analytics.BillableMinutes,
			"analytics_credits_consumed":        analytics.CreditsConsumed,
			"analytics_credits_earned":          analytics.CreditsEarned,
			"analytics_user_rate_per_minute":    analytics.UserRatePerMinute,
			"analytics_partner_rate_per_minute": analytics.PartnerRatePerMinute,
		}).Error
}

func (s *DefaultBillingService) UpdateSessionRecordRating(ctx context.Context, conversationID string, rater models.Role, rating models.Rating) error {
	prefix := ratingPrefix(rater)
	return s.db.WithContext(ctx).Model(&models.SessionRecord{}).
		Where("conversation_id = ?", conversationID).
		Updates(map[string]interface{}{
			prefix + "stars":        rating.Stars,
			prefix + "feedback":     rating.Feedback,
			prefix + "satisfaction": rating.Satisfaction,
			prefix + "rated_at":     rating.RatedAt,
		}).Error
}

func (s *DefaultBillingService) AttachSummary(ctx context.Context, conversationID, summary string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Update("analytics_summary", summary).Error; err != nil {
			return err
		}
		return tx.Model(&models.SessionRecord{}).
			Where("conversation_id = ?", conversationID).
			Update("summary", summary).Error
	})
}

func (s *DefaultBillingService) ListLedgerEntries(ctx context.Context, role models.Role, participantID string, offset, limit int) ([]models.LedgerEntry, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.LedgerEntry{}).
		Where(participantColumn(role)+" = ?", participantID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var entries []models.LedgerEntry
	err := query.Order("settled_at desc").Offset(offset).Limit(limit).Find(&entries).Error
	return entries, total, err
}

func (s *DefaultBillingService) RecordCreditPurchase(ctx context.Context, purchase *models.CreditPurchase) (bool, error) {
	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if purchase.ID == uuid.Nil {
			purchase.ID = uuid.New()
		}
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", purchase.UserID).First(&user).Error; err != nil {
			return err
		}
		purchase.BalanceAfter = user.Credits.Add(purchase.Credits)

		// A failed insert would abort the transaction on Postgres, so a
		// redelivered session is detected by the conflict clause instead.
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "checkout_session_id"}},
			DoNothing: true,
		}).Create(purchase)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		if err := tx.Model(&models.User{}).
			Where("id = ?", purchase.UserID).
			Update("credits", purchase.BalanceAfter).Error; err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}
