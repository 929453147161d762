package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	apperrors "consult_gateway_go_backend/internal/errors"
	"consult_gateway_go_backend/internal/metrics"
	"consult_gateway_go_backend/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ConversationService struct {
	conversations ConversationServiceDB
	parties       PartyServiceDB
	billing       *BillingService
	notifier      Notifier
	summaries     SummaryQueue
	media         MediaSigner
	now           func() time.Time
	logger        zerolog.Logger
}

// Option configures the collaborators shared by the conversation and message services.
type Option func(*serviceOptions)

type serviceOptions struct {
	notifier  Notifier
	summaries SummaryQueue
	media     MediaSigner
	now       func() time.Time
}

func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) { o.now = now }
}

func WithNotifier(n Notifier) Option {
	return func(o *serviceOptions) { o.notifier = n }
}

func WithSummaryQueue(q SummaryQueue) Option {
	return func(o *serviceOptions) { o.summaries = q }
}

func WithMediaSigner(m MediaSigner) Option {
	return func(o *serviceOptions) { o.media = m }
}

func buildOptions(opts []Option) serviceOptions {
	o := serviceOptions{notifier: NopNotifier{}, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func NewConversationService(
	conversations ConversationServiceDB,
	parties PartyServiceDB,
	billing *BillingService,
	logger zerolog.Logger,
	opts ...Option,
) *ConversationService {
	o := buildOptions(opts)
	return &ConversationService{
		conversations: conversations,
		parties:       parties,
		billing:       billing,
		notifier:      o.notifier,
		summaries:     o.summaries,
		media:         o.media,
		now:           o.now,
		logger:        logger.With().Str("component", "conversations").Logger(),
	}
}

type CreateConversationInput struct {
	PeerID          string          `json:"peerId"`
	ContextSnapshot json.RawMessage `json:"contextSnapshot,omitempty"`
}

// ContextSnapshot is the requester profile frozen into a conversation.
type ContextSnapshot struct {
	Name         string `json:"name,omitempty"`
	Gender       string `json:"gender,omitempty"`
	DateOfBirth  string `json:"dateOfBirth,omitempty"`
	TimeOfBirth  string `json:"timeOfBirth,omitempty"`
	PlaceOfBirth string `json:"placeOfBirth,omitempty"`
	ZodiacSign   string `json:"zodiacSign,omitempty"`
}

func snapshotOf(user *models.User) ContextSnapshot {
	return ContextSnapshot{
		Name:         user.Name,
		Gender:       user.Gender,
		DateOfBirth:  user.DateOfBirth,
		TimeOfBirth:  user.TimeOfBirth,
		PlaceOfBirth: user.PlaceOfBirth,
		ZodiacSign:   user.ZodiacSign,
	}
}

// Create opens a pending conversation between the caller and the peer. An
// open conversation for the pair is returned unchanged instead; the boolean
// reports whether a new one was created.
func (s *ConversationService) Create(ctx context.Context, caller Party, input CreateConversationInput) (*models.Conversation, bool, error) {
	if input.PeerID == "" {
		return nil, false, apperrors.NewValidationError("peerId is required")
	}
	if input.PeerID == caller.ID() {
		return nil, false, apperrors.NewValidationError("cannot open a conversation with yourself")
	}
	userID, partnerID := caller.Pair(input.PeerID)

	var (
		user    *models.User
		partner *models.Partner
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := s.parties.GetUser(gctx, userID)
		if err != nil {
			return notFoundOr500(err, "User not found")
		}
		user = u
		return nil
	})
	g.Go(func() error {
		p, err := s.parties.GetPartner(gctx, partnerID)
		if err != nil {
			return notFoundOr500(err, "Partner not found")
		}
		partner = p
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	existing, err := s.conversations.FindOpenConversation(ctx, userID, partnerID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, apperrors.New500Error(err)
	}

	if caller.RequiresCredits() && !user.Credits.IsPositive() {
		return nil, false, apperrors.NewInsufficientCreditsError("Insufficient credits to start a conversation")
	}

	snapshot := datatypes.JSON(input.ContextSnapshot)
	if len(snapshot) == 0 {
		raw, err := json.Marshal(snapshotOf(user))
		if err != nil {
			return nil, false, apperrors.New500Error(err)
		}
		snapshot = raw
	}

	now := s.now()
	conv := &models.Conversation{
		ID:              models.ConversationID(userID, partnerID, now),
		UserID:          userID,
		PartnerID:       partnerID,
		InitiatedBy:     caller.Role(),
		ServiceType:     models.ServiceTypeChat,
		Status:          models.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
		ContextSnapshot: snapshot,
	}
	if err := s.conversations.CreateConversation(ctx, conv); err != nil {
		if errors.Is(err, ErrOpenConversationExists) {
			existing, findErr := s.conversations.FindOpenConversation(ctx, userID, partnerID)
			if findErr != nil {
				return nil, false, apperrors.New500Error(findErr)
			}
			return existing, false, nil
		}
		return nil, false, apperrors.New500Error(err)
	}

	metrics.RecordTransition("none", string(models.StatusPending))
	s.logger.Info().Str("conversation_id", conv.ID).Str("partner", partner.ID).Msg("Conversation requested")
	s.notifier.NotifyIdentity(caller.PeerID(conv), EventConversationRequest, conv)
	return conv, true, nil
}

// load fetches a conversation the caller participates in.
func (s *ConversationService) load(ctx context.Context, caller Party, id string) (*models.Conversation, error) {
	if id == "" {
		return nil, apperrors.NewValidationError("conversationId is required")
	}
	conv, err := s.conversations.GetConversation(ctx, id)
	if err != nil {
		return nil, notFoundOr500(err, "Conversation not found")
	}
	if !caller.Owns(conv) {
		return nil, apperrors.NewAccessDeniedError("You are not a participant in this conversation")
	}
	return conv, nil
}

func (s *ConversationService) Get(ctx context.Context, caller Party, id string) (*models.Conversation, error) {
	return s.load(ctx, caller, id)
}

func (s *ConversationService) reload(ctx context.Context, id string) (*models.Conversation, error) {
	conv, err := s.conversations.GetConversation(ctx, id)
	if err != nil {
		return nil, apperrors.New500Error(err)
	}
	return conv, nil
}

func statusConflict(conv *models.Conversation) error {
	return apperrors.NewConflictError("Conversation is already " + string(conv.Status))
}

// Accept moves a pending conversation to accepted, reserving one unit of the
// partner's capacity.
func (s *ConversationService) Accept(ctx context.Context, caller Party, id string) (*models.Conversation, error) {
	if !caller.CanAccept() {
		return nil, apperrors.NewAccessDeniedError("Only the partner can accept a conversation")
	}
	conv, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if conv.Status != models.StatusPending {
		return nil, statusConflict(conv)
	}

	reserved, err := s.parties.ReservePartnerCapacity(ctx, conv.PartnerID)
	if err != nil {
		return nil, apperrors.New500Error(err)
	}
	if !reserved {
		return nil, apperrors.NewCapacityError("Partner has reached the maximum number of active conversations")
	}

	now := s.now()
	won, err := s.conversations.TransitionConversation(ctx, conv.ID,
		[]models.ConversationStatus{models.StatusPending}, models.StatusAccepted,
		map[string]interface{}{
			"accepted_at":                now,
			"started_at":                 now,
			"analytics_message_count":    0,
			"analytics_duration_seconds": 0,
			"analytics_billable_minutes": 0,
			"analytics_credits_consumed": 0,
			"analytics_credits_earned":   0,
		})
	if err != nil || !won {
		if releaseErr := s.parties.ReleasePartnerCapacity(ctx, conv.PartnerID); releaseErr != nil {
			s.logger.Error().Err(releaseErr).Str("partner_id", conv.PartnerID).Msg("Failed to release capacity")
		}
		if err != nil {
			return nil, apperrors.New500Error(err)
		}
		current, reloadErr := s.reload(ctx, conv.ID)
		if reloadErr != nil {
			return nil, reloadErr
		}
		return nil, statusConflict(current)
	}

	metrics.RecordTransition(string(models.StatusPending), string(models.StatusAccepted))
	conv, err = s.reload(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	s.notifier.NotifyIdentity(conv.UserID, EventConversationAccepted, conv)
	return conv, nil
}

// Reject closes a pending conversation for good.
func (s *ConversationService) Reject(ctx context.Context, caller Party, id, reason string) (*models.Conversation, error) {
	if !caller.CanReject() {
		return nil, apperrors.NewAccessDeniedError("Only the partner can reject a conversation")
	}
	conv, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if conv.Status != models.StatusPending {
		return nil, statusConflict(conv)
	}

	won, err := s.conversations.TransitionConversation(ctx, conv.ID,
		[]models.ConversationStatus{models.StatusPending}, models.StatusRejected,
		map[string]interface{}{
			"rejected_at":      s.now(),
			"rejection_reason": reason,
		})
	if err != nil {
		return nil, apperrors.New500Error(err)
	}
	conv, err = s.reload(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, statusConflict(conv)
	}

	metrics.RecordTransition(string(models.StatusPending), string(models.StatusRejected))
	s.notifier.NotifyIdentity(conv.UserID, EventConversationRejected, conv)
	return conv, nil
}

type RatingInput struct {
	Stars        int                 `json:"stars"`
	Feedback     string              `json:"feedback"`
	Satisfaction models.Satisfaction `json:"satisfaction"`
}

func (r RatingInput) validate() error {
	if r.Stars < 1 || r.Stars > 5 {
		return apperrors.NewValidationError("stars must be between 1 and 5")
	}
	if !r.Satisfaction.Valid() {
		return apperrors.NewValidationError("satisfaction must be one of satisfied, neutral, dissatisfied")
	}
	return nil
}

type EndResult struct {
	Conversation *models.Conversation `json:"conversation"`
	Ledger       *models.LedgerEntry  `json:"ledger"`
}

// End closes an accepted or active conversation and settles it. Only the
// caller that wins the transition to ended settles; a concurrent or repeated
// end fails with a conflict.
func (s *ConversationService) End(ctx context.Context, caller Party, id string, rating *RatingInput) (*EndResult, error) {
	if rating != nil {
		if err := rating.validate(); err != nil {
			return nil, err
		}
	}
	conv, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	switch {
	case conv.Status == models.StatusPending:
		return nil, apperrors.NewValidationError("Conversation has not been accepted yet")
	case conv.Status.IsTerminal():
		return nil, statusConflict(conv)
	}

	previous := conv.Status
	endedAt := s.now()
	won, err := s.conversations.TransitionConversation(ctx, conv.ID,
		[]models.ConversationStatus{models.StatusAccepted, models.StatusActive}, models.StatusEnded,
		map[string]interface{}{
			"ended_at": endedAt,
			"ended_by": caller.ID(),
		})
	if err != nil {
		return nil, apperrors.New500Error(err)
	}
	if !won {
		current, reloadErr := s.reload(ctx, conv.ID)
		if reloadErr != nil {
			return nil, reloadErr
		}
		return nil, statusConflict(current)
	}

	conv, err = s.reload(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	entry, err := s.billing.Settle(ctx, conv, endedAt)
	if err != nil {
		if _, revertErr := s.conversations.TransitionConversation(ctx, conv.ID,
			[]models.ConversationStatus{models.StatusEnded}, previous,
			map[string]interface{}{"ended_at": nil, "ended_by": ""}); revertErr != nil {
			s.logger.Error().Err(revertErr).Str("conversation_id", conv.ID).Msg("Failed to revert end after settlement failure")
		}
		return nil, apperrors.New500Error(err)
	}
	metrics.RecordTransition(string(previous), string(models.StatusEnded))

	if err := s.parties.ReleasePartnerCapacity(ctx, conv.PartnerID); err != nil {
		s.logger.Error().Err(err).Str("partner_id", conv.PartnerID).Msg("Failed to release capacity")
	}

	if rating != nil {
		if _, err := s.applyRating(ctx, caller, conv, *rating); err != nil {
			s.logger.Warn().Err(err).Str("conversation_id", conv.ID).Msg("Rating on end was not stored")
		}
	}

	if s.summaries != nil && !s.summaries.Enqueue(conv.ID) {
		s.logger.Warn().Str("conversation_id", conv.ID).Msg("Summary queue full, skipping summary")
	}

	conv, err = s.reload(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	s.notifier.NotifyIdentity(caller.PeerID(conv), EventConversationEnded, EndResult{Conversation: conv, Ledger: entry})
	return &EndResult{Conversation: conv, Ledger: entry}, nil
}

// Rate stores the caller's rating of an ended conversation. Each side rates once.
func (s *ConversationService) Rate(ctx context.Context, caller Party, id string, input RatingInput) (*models.Conversation, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	conv, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if conv.Status != models.StatusEnded {
		return nil, apperrors.NewValidationError("Only ended conversations can be rated")
	}
	return s.applyRating(ctx, caller, conv, input)
}

func (s *ConversationService) applyRating(ctx context.Context, caller Party, conv *models.Conversation, input RatingInput) (*models.Conversation, error) {
	now := s.now()
	rating := models.Rating{
		Stars:        input.Stars,
		Feedback:     input.Feedback,
		Satisfaction: input.Satisfaction,
		RatedAt:      &now,
	}
	stored, err := s.conversations.RateConversation(ctx, conv.ID, caller.Role(), rating)
	if err != nil {
		return nil, apperrors.New500Error(err)
	}
	if !stored {
		return nil, apperrors.NewConflictError("You have already rated this conversation")
	}

	if err := s.billing.RecordRating(ctx, conv.ID, caller.Role(), rating); err != nil {
		s.logger.Error().Err(err).Str("conversation_id", conv.ID).Msg("Failed to copy rating to session record")
	}
	if caller.Role() == models.RoleUser {
		if err := s.parties.ApplyPartnerRating(ctx, conv.PartnerID, input.Stars); err != nil {
			s.logger.Error().Err(err).Str("partner_id", conv.PartnerID).Msg("Failed to update partner rating")
		}
	}
	return s.reload(ctx, conv.ID)
}

// Peer is the other participant as shown in a conversation list.
type Peer struct {
	ID       string               `json:"id"`
	Role     models.Role          `json:"role"`
	Name     string               `json:"name"`
	ImageURL *string              `json:"imageUrl"`
	Status   models.PartnerStatus `json:"status,omitempty"`
	Online   bool                 `json:"online"`
}

type ConversationSummary struct {
	*models.Conversation
	Peer        Peer `json:"peer"`
	UnreadCount int  `json:"unreadCount"`
}

// List returns the caller's conversations, most recent activity first.
func (s *ConversationService) List(ctx context.Context, caller Party) ([]ConversationSummary, error) {
	conversations, err := s.conversations.ListConversations(ctx, caller.Role(), caller.ID())
	if err != nil {
		return nil, apperrors.New500Error(err)
	}

	peerIDs := make([]string, 0, len(conversations))
	seen := make(map[string]bool)
	for i := range conversations {
		id := caller.PeerID(&conversations[i])
		if !seen[id] {
			seen[id] = true
			peerIDs = append(peerIDs, id)
		}
	}

	peers, err := s.loadPeers(ctx, caller.PeerRole(), peerIDs)
	if err != nil {
		return nil, apperrors.New500Error(err)
	}

	summaries := make([]ConversationSummary, 0, len(conversations))
	for i := range conversations {
		conv := &conversations[i]
		peerID := caller.PeerID(conv)
		peer, ok := peers[peerID]
		if !ok {
			peer = Peer{ID: peerID, Role: caller.PeerRole()}
		}
		peer.Online = s.notifier.IsConnected(peerID)
		summaries = append(summaries, ConversationSummary{
			Conversation: conv,
			Peer:         peer,
			UnreadCount:  caller.Unread(conv),
		})
	}
	return summaries, nil
}

// loadPeers looks up peer profiles and signs their images concurrently.
// Signing failures leave the image URL empty.
func (s *ConversationService) loadPeers(ctx context.Context, role models.Role, ids []string) (map[string]Peer, error) {
	peers := make(map[string]Peer, len(ids))
	imageKeys := make(map[string]string, len(ids))

	if role == models.RolePartner {
		partners, err := s.parties.ListPartnersByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, p := range partners {
			peers[p.ID] = Peer{ID: p.ID, Role: role, Name: p.Name, Status: p.Status}
			imageKeys[p.ID] = p.ProfileImageKey
		}
	} else {
		users, err := s.parties.ListUsersByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			peers[u.ID] = Peer{ID: u.ID, Role: role, Name: u.Name}
			imageKeys[u.ID] = u.ProfileImageKey
		}
	}

	if s.media == nil {
		return peers, nil
	}

	urls := make([]*string, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, id := range ids {
		key := imageKeys[id]
		if key == "" {
			continue
		}
		i := i
		g.Go(func() error {
			url, err := s.media.SignedURL(gctx, key)
			if err != nil {
				s.logger.Warn().Err(err).Str("object", key).Msg("Failed to sign profile image")
				return nil
			}
			urls[i] = &url
			return nil
		})
	}
	_ = g.Wait()

	for i, id := range ids {
		if peer, ok := peers[id]; ok && urls[i] != nil {
			peer.ImageURL = urls[i]
			peers[id] = peer
		}
	}
	return peers, nil
}

type UnreadSummary struct {
	Unread          int64 `json:"unread"`
	PendingRequests int64 `json:"pendingRequests"`
}

// UnreadCount totals the caller's unread messages; partners also see pending requests.
func (s *ConversationService) UnreadCount(ctx context.Context, caller Party) (*UnreadSummary, error) {
	unread, err := s.conversations.SumUnread(ctx, caller.Role(), caller.ID())
	if err != nil {
		return nil, apperrors.New500Error(err)
	}
	summary := &UnreadSummary{Unread: unread}
	if caller.Role() == models.RolePartner {
		pending, err := s.conversations.CountPendingForPartner(ctx, caller.ID())
		if err != nil {
			return nil, apperrors.New500Error(err)
		}
		summary.PendingRequests = pending
	}
	return summary, nil
}
