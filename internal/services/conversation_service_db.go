package services

import (
	"context"
	"errors"
	"time"

	"consult_gateway_go_backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultConversationService implements ConversationServiceDB on gorm.
type DefaultConversationService struct {
	db *gorm.DB
}

func NewConversationServiceDB(db *gorm.DB) ConversationServiceDB {
	return &DefaultConversationService{db: db}
}

func unreadColumn(role models.Role) string {
	if role == models.RolePartner {
		return "partner_unread_count"
	}
	return "user_unread_count"
}

func participantColumn(role models.Role) string {
	if role == models.RolePartner {
		return "partner_id"
	}
	return "user_id"
}

func ratingPrefix(role models.Role) string {
	if role == models.RolePartner {
		return "partner_rating_"
	}
	return "user_rating_"
}

func (s *DefaultConversationService) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	err := s.db.WithContext(ctx).Create(conv).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrOpenConversationExists
	}
	return err
}

func (s *DefaultConversationService) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *DefaultConversationService) FindOpenConversation(ctx context.Context, userID, partnerID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND partner_id = ? AND status IN ?", userID, partnerID, models.OpenStatuses).
		Order("created_at desc").
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *DefaultConversationService) ListConversations(ctx context.Context, role models.Role, participantID string) ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := s.db.WithContext(ctx).
		Where(participantColumn(role)+" = ?", participantID).
		Order("COALESCE(last_message_at, updated_at) desc").
		Find(&conversations).Error
	return conversations, err
}

func (s *DefaultConversationService) TransitionConversation(ctx context.Context, id string, from []models.ConversationStatus, to models.ConversationStatus, updates map[string]interface{}) (bool, error) {
	values := map[string]interface{}{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	result := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *DefaultConversationService) RateConversation(ctx context.Context, id string, rater models.Role, rating models.Rating) (bool, error) {
	prefix := ratingPrefix(rater)
	result := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ? AND "+prefix+"rated_at IS NULL", id).
		Updates(map[string]interface{}{
			prefix + "stars":        rating.Stars,
			prefix + "feedback":     rating.Feedback,
			prefix + "satisfaction": rating.Satisfaction,
			prefix + "rated_at":     rating.RatedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// RecordMessage persists the message and the conversation's denormalized
// preview, the receiver's unread counter and the session message count in one transaction.
func (s *DefaultConversationService) RecordMessage(ctx context.Context, msg *models.Message, preview string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		receiverRole := models.RoleUser
		if msg.SenderRole == models.RoleUser {
			receiverRole = models.RolePartner
		}
		column := unreadColumn(receiverRole)
		return tx.Model(&models.Conversation{}).
			Where("id = ?", msg.ConversationID).
			Updates(map[string]interface{}{
				"last_message":            preview,
				"last_message_at":         msg.CreatedAt,
				"last_message_sender_id":  msg.SenderID,
				column:                    gorm.Expr(column + " + 1"),
				"analytics_message_count": gorm.Expr("analytics_message_count + 1"),
			}).Error
	})
}

func (s *DefaultConversationService) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	var msg models.Message
	if err := s.db.WithContext(ctx).Where("id = ? AND deleted = ?", id, false).First(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessages returns one page of visible messages, newest first.
func (s *DefaultConversationService) ListMessages(ctx context.Context, conversationID string, offset, limit int) ([]models.Message, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND deleted = ?", conversationID, false)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var messages []models.Message
	err := query.Order("created_at desc, id desc").Offset(offset).Limit(limit).Find(&messages).Error
	return messages, total, err
}

func (s *DefaultConversationService) ConversationTranscript(ctx context.Context, conversationID string) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND deleted = ?", conversationID, false).
		Order("created_at asc, id asc").
		Find(&messages).Error
	return messages, err
}

func (s *DefaultConversationService) MarkMessageDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND delivered = ?", id, false).
		Updates(map[string]interface{}{"delivered": true, "delivered_at": at}).Error
}

// MarkConversationRead marks inbound messages read and zeroes the reader's unread counter.
func (s *DefaultConversationService) MarkConversationRead(ctx context.Context, conversationID string, reader models.Role, readerID string, at time.Time) (int64, error) {
	var marked int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Message{}).
			Where("conversation_id = ? AND receiver_id = ? AND read = ?", conversationID, readerID, false).
			Updates(map[string]interface{}{"read": true, "read_at": at})
		if result.Error != nil {
			return result.Error
		}
		marked = result.RowsAffected
		return tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Update(unreadColumn(reader), 0).Error
	})
	return marked, err
}

func (s *DefaultConversationService) SoftDeleteMessage(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", id).
		Update("deleted", true).Error
}

func (s *DefaultConversationService) CountPendingForPartner(ctx context.Context, partnerID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("partner_id = ? AND status = ?", partnerID, models.StatusPending).
		Count(&count).Error
	return count, err
}

func (s *DefaultConversationService) SumUnread(ctx context.Context, role models.Role, participantID string) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where(participantColumn(role)+" = ?", participantID).
		Select("COALESCE(SUM(" + unreadColumn(role) + "), 0)").
		Scan(&total).Error
	return total, err
}
