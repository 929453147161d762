package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "consult_gateway_go_backend/internal/errors"
	"consult_gateway_go_backend/internal/metrics"
	"consult_gateway_go_backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	TransportREST      = "rest"
	TransportWebSocket = "websocket"

	previewLength = 100
)

type MessageService struct {
	conversations ConversationServiceDB
	notifier      Notifier
	media         MediaSigner
	now           func() time.Time
	logger        zerolog.Logger
}

func NewMessageService(conversations ConversationServiceDB, logger zerolog.Logger, opts ...Option) *MessageService {
	o := buildOptions(opts)
	return &MessageService{
		conversations: conversations,
		notifier:      o.notifier,
		media:         o.media,
		now:           o.now,
		logger:        logger.With().Str("component", "messages").Logger(),
	}
}

type SendMessageInput struct {
	ConversationID string             `json:"conversationId"`
	Content        string             `json:"content"`
	Type           models.MessageType `json:"type"`
	MediaKey       string             `json:"mediaKey,omitempty"`
}

type DeliveryReceipt struct {
	MessageID      uuid.UUID `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	DeliveredAt    time.Time `json:"deliveredAt"`
}

type ReadReceipt struct {
	ConversationID string    `json:"conversationId"`
	ReaderID       string    `json:"readerId"`
	Count          int64     `json:"count"`
	ReadAt         time.Time `json:"readAt"`
}

func preview(content string, messageType models.MessageType) string {
	if messageType != models.MessageText && strings.TrimSpace(content) == "" {
		return "[" + string(messageType) + "]"
	}
	if utf8.RuneCountInString(content) <= previewLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:previewLength]) + "..."
}

// Send persists a message and fans it out. The REST and real-time paths both
// call it so they share validation and denormalized updates.
func (s *MessageService) Send(ctx context.Context, caller Party, input SendMessageInput, transport string) (*models.Message, error) {
	if input.ConversationID == "" {
		return nil, apperrors.NewValidationError("conversationId is required")
	}
	if strings.TrimSpace(input.Content) == "" {
		return nil, apperrors.NewValidationError("content is required")
	}
	if input.Type == "" {
		input.Type = models.MessageText
	}
	if !input.Type.Valid() {
		return nil, apperrors.NewValidationError("invalid message type")
	}

	conv, err := s.conversations.GetConversation(ctx, input.ConversationID)
	if err != nil {
		return nil, notFoundOr500(err, "Conversation not found")
	}
	if !caller.Owns(conv) {
		return nil, apperrors.NewAccessDeniedError("You are not a participant in this conversation")
	}
	if conv.Status.IsTerminal() {
		return nil, apperrors.NewConflictError("Conversation is " + string(conv.Status) + ", messaging is closed")
	}

	// Version 7 ids sort by creation time, which breaks timestamp ties in send order.
	id, err := uuid.NewV7()
	if err != nil {
		return nil, apperrors.New500Error(err)
	}
	msg := &models.Message{
		ID:             id,
		ConversationID: conv.ID,
		SenderID:       caller.ID(),
		SenderRole:     caller.Role(),
		ReceiverID:     caller.PeerID(conv),
		Content:        input.Content,
		Type:           input.Type,
		MediaKey:       input.MediaKey,
		CreatedAt:      s.now(),
	}
	if err := s.conversations.RecordMessage(ctx, msg, preview(msg.Content, msg.Type)); err != nil {
		return nil, apperrors.New500Error(err)
	}
	metrics.MessagesSent.WithLabelValues(transport).Inc()

	if conv.Status == models.StatusAccepted {
		won, err := s.conversations.TransitionConversation(ctx, conv.ID,
			[]models.ConversationStatus{models.StatusAccepted}, models.StatusActive, nil)
		if err != nil {
			s.logger.Error().Err(err).Str("conversation_id", conv.ID).Msg("Failed to activate conversation")
		} else if won {
			metrics.RecordTransition(string(models.StatusAccepted), string(models.StatusActive))
		}
	}

	s.attachMediaURL(ctx, msg)
	s.notifier.Broadcast(conv.ID, EventMessageNew, msg)

	if s.notifier.IsConnected(msg.ReceiverID) {
		deliveredAt := s.now()
		if err := s.conversations.MarkMessageDelivered(ctx, msg.ID, deliveredAt); err != nil {
			s.logger.Error().Err(err).Str("message_id", msg.ID.String()).Msg("Failed to mark message delivered")
		} else {
			msg.Delivered = true
			msg.DeliveredAt = &deliveredAt
			s.notifier.NotifyIdentity(msg.SenderID, EventMessageDelivered, DeliveryReceipt{
				MessageID:      msg.ID,
				ConversationID: conv.ID,
				DeliveredAt:    deliveredAt,
			})
		}
	}
	return msg, nil
}

// MarkRead marks every inbound message read and zeroes the caller's unread
// counter. The peer is told when anything changed.
func (s *MessageService) MarkRead(ctx context.Context, caller Party, conversationID string) (*models.Conversation, error) {
	if conversationID == "" {
		return nil, apperrors.NewValidationError("conversationId is required")
	}
	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, notFoundOr500(err, "Conversation not found")
	}
	if !caller.Owns(conv) {
		return nil, apperrors.NewAccessDeniedError("You are not a participant in this conversation")
	}

	readAt := s.now()
	marked, err := s.conversations.MarkConversationRead(ctx, conv.ID, caller.Role(), caller.ID(), readAt)
	if err != nil {
		return nil, apperrors.New500Error(err)
	}
	if marked > 0 {
		s.notifier.NotifyIdentity(caller.PeerID(conv), EventMessagesRead, ReadReceipt{
			ConversationID: conv.ID,
			ReaderID:       caller.ID(),
			Count:          marked,
			ReadAt:         readAt,
		})
	}

	conv, err = s.conversations.GetConversation(ctx, conv.ID)
	if err != nil {
		return nil, apperrors.New500Error(err)
	}
	return conv, nil
}

type MessagePage struct {
	Messages []models.Message `json:"messages"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	Limit    int              `json:"limit"`
	HasMore  bool             `json:"hasMore"`
}

// List fetches one page counted back from the newest message and returns it
// in chronological order.
func (s *MessageService) List(ctx context.Context, caller Party, conversationID string, page, limit int) (*MessagePage, error) {
	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, notFoundOr500(err, "Conversation not found")
	}
	if !caller.Owns(conv) {
		return nil, apperrors.NewAccessDeniedError("You are not a participant in this conversation")
	}

	page, limit = normalizePage(page, limit)
	messages, total, err := s.conversations.ListMessages(ctx, conv.ID, (page-1)*limit, limit)
	if err != nil {
		return nil, apperrors.New500Error(err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	for i := range messages {
		s.attachMediaURL(ctx, &messages[i])
	}

	return &MessagePage{
		Messages: messages,
		Total:    total,
		Page:     page,
		Limit:    limit,
		HasMore:  int64(page*limit) < total,
	}, nil
}

// Delete hides a message from listings. Only its sender may delete it.
func (s *MessageService) Delete(ctx context.Context, caller Party, messageID string) error {
	id, err := uuid.Parse(messageID)
	if err != nil {
		return apperrors.NewValidationError("invalid message id")
	}
	msg, err := s.conversations.GetMessage(ctx, id)
	if err != nil {
		return notFoundOr500(err, "Message not found")
	}
	if msg.SenderID != caller.ID() {
		return apperrors.NewAccessDeniedError("Only the sender can delete a message")
	}
	if err := s.conversations.SoftDeleteMessage(ctx, id); err != nil {
		return apperrors.New500Error(err)
	}
	return nil
}

func (s *MessageService) attachMediaURL(ctx context.Context, msg *models.Message) {
	if s.media == nil || msg.MediaKey == "" {
		return
	}
	url, err := s.media.SignedURL(ctx, msg.MediaKey)
	if err != nil {
		s.logger.Warn().Err(err).Str("message_id", msg.ID.String()).Msg("Failed to sign media URL")
		return
	}
	msg.MediaURL = url
}
