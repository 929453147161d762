// Package testhelpers provides an in-memory implementation of the service
// repositories for deterministic tests.
package testhelpers

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"consult_gateway_go_backend/internal/models"
	"consult_gateway_go_backend/internal/services"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MemoryStore implements ConversationServiceDB, PartyServiceDB and
// BillingServiceDB over maps. Transactions are serialized and roll back on error.
type MemoryStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	users         map[string]models.User
	partners      map[string]models.Partner
	conversations map[string]models.Conversation
	messages      []models.Message
	ledger        map[string]models.LedgerEntry
	records       map[string]models.SessionRecord
	purchases     map[string]models.CreditPurchase

	failures map[string]error
	now      func() time.Time
}

var (
	_ services.ConversationServiceDB = (*MemoryStore)(nil)
	_ services.PartyServiceDB        = (*MemoryStore)(nil)
	_ services.BillingServiceDB      = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]models.User),
		partners:      make(map[string]models.Partner),
		conversations: make(map[string]models.Conversation),
		ledger:        make(map[string]models.LedgerEntry),
		records:       make(map[string]models.SessionRecord),
		purchases:     make(map[string]models.CreditPurchase),
		failures:      make(map[string]error),
		now:           time.Now,
	}
}

// SetClock sets the time source used for bookkeeping timestamps.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// FailOn makes the named method return err until cleared with a nil error.
func (m *MemoryStore) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, method)
		return
	}
	m.failures[method] = err
}

func (m *MemoryStore) failure(method string) error {
	return m.failures[method]
}

func (m *MemoryStore) AddUser(user models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
}

func (m *MemoryStore) AddPartner(partner models.Partner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if partner.Status == "" {
		partner.Status = models.PartnerOffline
	}
	if partner.MaxConversations < 1 {
		partner.MaxConversations = 1
	}
	m.partners[partner.ID] = partner
}

func (m *MemoryStore) User(id string) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id]
}

func (m *MemoryStore) Partner(id string) models.Partner {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.partners[id]
}

func (m *MemoryStore) Conversation(id string) models.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conversations[id]
}

func (m *MemoryStore) Conversations() []models.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Conversation, 0, len(m.conversations))
	for _, c := range m.conversations {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *MemoryStore) PutConversation(conv models.Conversation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[conv.ID] = conv
}

func (m *MemoryStore) LedgerEntries() []models.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.LedgerEntry, 0, len(m.ledger))
	for _, e := range m.ledger {
		out = append(out, e)
	}
	return out
}

func (m *MemoryStore) SessionRecord(conversationID string) (models.SessionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[conversationID]
	return r, ok
}

func (m *MemoryStore) AllMessages(conversationID string) []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Message
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	return out
}

// ConversationServiceDB

func (m *MemoryStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("CreateConversation"); err != nil {
		return err
	}
	if _, exists := m.conversations[conv.ID]; exists {
		return gorm.ErrDuplicatedKey
	}
	for _, c := range m.conversations {
		if c.UserID == conv.UserID && c.PartnerID == conv.PartnerID && c.Status.IsOpen() {
			return services.ErrOpenConversationExists
		}
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = m.now()
	}
	conv.UpdatedAt = conv.CreatedAt
	m.conversations[conv.ID] = *conv
	return nil
}

func (m *MemoryStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("GetConversation"); err != nil {
		return nil, err
	}
	conv, ok := m.conversations[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &conv, nil
}

func (m *MemoryStore) FindOpenConversation(ctx context.Context, userID, partnerID string) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *models.Conversation
	for _, c := range m.conversations {
		if c.UserID == userID && c.PartnerID == partnerID && c.Status.IsOpen() {
			c := c
			if found == nil || c.CreatedAt.After(found.CreatedAt) {
				found = &c
			}
		}
	}
	if found == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return found, nil
}

func activity(c models.Conversation) time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.UpdatedAt
}

func (m *MemoryStore) ListConversations(ctx context.Context, role models.Role, participantID string) ([]models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Conversation
	for _, c := range m.conversations {
		if (role == models.RoleUser && c.UserID == participantID) || (role == models.RolePartner && c.PartnerID == participantID) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return activity(out[i]).After(activity(out[j])) })
	return out, nil
}

func toTime(v interface{}) *time.Time {
	switch t := v.(type) {
	case time.Time:
		return &t
	case *time.Time:
		return t
	}
	return nil
}

func toString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func applyConversationUpdates(c *models.Conversation, updates map[string]interface{}) {
	for key, value := range updates {
		switch key {
		case "accepted_at":
			c.AcceptedAt = toTime(value)
		case "started_at":
			c.StartedAt = toTime(value)
		case "ended_at":
			c.EndedAt = toTime(value)
		case "rejected_at":
			c.RejectedAt = toTime(value)
		case "ended_by":
			c.EndedBy = toString(value)
		case "rejection_reason":
			c.RejectionReason = toString(value)
		case "analytics_message_count":
			c.Analytics.MessageCount = 0
		case "analytics_duration_seconds":
			c.Analytics.DurationSeconds = 0
		case "analytics_billable_minutes":
			c.Analytics.BillableMinutes = 0
		case "analytics_credits_consumed":
			c.Analytics.CreditsConsumed = decimal.Zero
		case "analytics_credits_earned":
			c.Analytics.CreditsEarned = decimal.Zero
		}
	}
}

func (m *MemoryStore) TransitionConversation(ctx context.Context, id string, from []models.ConversationStatus, to models.ConversationStatus, updates map[string]interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("TransitionConversation"); err != nil {
		return false, err
	}
	conv, ok := m.conversations[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, status := range from {
		if conv.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	conv.Status = to
	applyConversationUpdates(&conv, updates)
	conv.UpdatedAt = m.now()
	m.conversations[id] = conv
	return true, nil
}

func (m *MemoryStore) RateConversation(ctx context.Context, id string, rater models.Role, rating models.Rating) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[id]
	if !ok {
		return false, nil
	}
	if rater == models.RolePartner {
		if conv.PartnerRating.Given() {
			return false, nil
		}
		conv.PartnerRating = rating
	} else {
		if conv.UserRating.Given() {
			return false, nil
		}
		conv.UserRating = rating
	}
	m.conversations[id] = conv
	return true, nil
}

func (m *MemoryStore) RecordMessage(ctx context.Context, msg *models.Message, preview string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("RecordMessage"); err != nil {
		return err
	}
	conv, ok := m.conversations[msg.ConversationID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	m.messages = append(m.messages, *msg)

	createdAt := msg.CreatedAt
	conv.LastMessage = preview
	conv.LastMessageAt = &createdAt
	conv.LastMessageSenderID = msg.SenderID
	if msg.SenderRole == models.RoleUser {
		conv.PartnerUnreadCount++
	} else {
		conv.UserUnreadCount++
	}
	conv.Analytics.MessageCount++
	m.conversations[conv.ID] = conv
	return nil
}

func (m *MemoryStore) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.ID == id && !msg.Deleted {
			msg := msg
			return &msg, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// visibleMessages returns the conversation's messages oldest first.
func (m *MemoryStore) visibleMessages(conversationID string) []models.Message {
	var out []models.Message
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID && !msg.Deleted {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out
}

func (m *MemoryStore) ListMessages(ctx context.Context, conversationID string, offset, limit int) ([]models.Message, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	visible := m.visibleMessages(conversationID)
	total := int64(len(visible))

	newestFirst := make([]models.Message, 0, len(visible))
	for i := len(visible) - 1; i >= 0; i-- {
		newestFirst = append(newestFirst, visible[i])
	}
	if offset >= len(newestFirst) {
		return []models.Message{}, total, nil
	}
	end := offset + limit
	if end > len(newestFirst) {
		end = len(newestFirst)
	}
	return newestFirst[offset:end], total, nil
}

func (m *MemoryStore) ConversationTranscript(ctx context.Context, conversationID string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("ConversationTranscript"); err != nil {
		return nil, err
	}
	return m.visibleMessages(conversationID), nil
}

func (m *MemoryStore) MarkMessageDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.messages {
		if m.messages[i].ID == id && !m.messages[i].Delivered {
			m.messages[i].Delivered = true
			m.messages[i].DeliveredAt = &at
		}
	}
	return nil
}

func (m *MemoryStore) MarkConversationRead(ctx context.Context, conversationID string, reader models.Role, readerID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var marked int64
	for i := range m.messages {
		msg := &m.messages[i]
		if msg.ConversationID == conversationID && msg.ReceiverID == readerID && !msg.Read {
			msg.Read = true
			msg.ReadAt = &at
			marked++
		}
	}
	if conv, ok := m.conversations[conversationID]; ok {
		if reader == models.RolePartner {
			conv.PartnerUnreadCount = 0
		} else {
			conv.UserUnreadCount = 0
		}
		m.conversations[conversationID] = conv
	}
	return marked, nil
}

func (m *MemoryStore) SoftDeleteMessage(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.messages {
		if m.messages[i].ID == id {
			m.messages[i].Deleted = true
		}
	}
	return nil
}

func (m *MemoryStore) CountPendingForPartner(ctx context.Context, partnerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, c := range m.conversations {
		if c.PartnerID == partnerID && c.Status == models.StatusPending {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) SumUnread(ctx context.Context, role models.Role, participantID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, c := range m.conversations {
		if role == models.RoleUser && c.UserID == participantID {
			total += int64(c.UserUnreadCount)
		}
		if role == models.RolePartner && c.PartnerID == participantID {
			total += int64(c.PartnerUnreadCount)
		}
	}
	return total, nil
}

// PartyServiceDB

func (m *MemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &user, nil
}

func (m *MemoryStore) GetPartner(ctx context.Context, id string) (*models.Partner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	partner, ok := m.partners[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &partner, nil
}

func (m *MemoryStore) ListUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListPartnersByIDs(ctx context.Context, ids []string) ([]models.Partner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Partner
	for _, id := range ids {
		if p, ok := m.partners[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListPartners(ctx context.Context) ([]models.Partner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Partner, 0, len(m.partners))
	for _, p := range m.partners {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) ReservePartnerCapacity(ctx context.Context, partnerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.partners[partnerID]
	if !ok || !p.CanAccept() {
		return false, nil
	}
	p.ActiveConversationsCount++
	m.partners[partnerID] = p
	return true, nil
}

func (m *MemoryStore) ReleasePartnerCapacity(ctx context.Context, partnerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.partners[partnerID]
	if ok && p.ActiveConversationsCount > 0 {
		p.ActiveConversationsCount--
		m.partners[partnerID] = p
	}
	return nil
}

func (m *MemoryStore) UpdatePartnerPresence(ctx context.Context, partnerID string, status models.PartnerStatus, lastActiveAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("UpdatePartnerPresence"); err != nil {
		return err
	}
	p, ok := m.partners[partnerID]
	if !ok {
		return nil
	}
	p.Status = status
	if lastActiveAt != nil {
		p.LastActiveAt = lastActiveAt
	}
	m.partners[partnerID] = p
	return nil
}

func (m *MemoryStore) ResetPresence(ctx context.Context, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var reset int64
	for id, p := range m.partners {
		if p.Status == models.PartnerOffline {
			continue
		}
		stamp := at
		p.Status = models.PartnerOffline
		p.LastActiveAt = &stamp
		m.partners[id] = p
		reset++
	}
	return reset, nil
}

func (m *MemoryStore) ApplyPartnerRating(ctx context.Context, partnerID string, stars int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.partners[partnerID]
	if !ok {
		return nil
	}
	p.Rating = (p.Rating*float64(p.RatingCount) + float64(stars)) / float64(p.RatingCount+1)
	p.RatingCount++
	m.partners[partnerID] = p
	return nil
}

// BillingServiceDB

type snapshot struct {
	users         map[string]models.User
	partners      map[string]models.Partner
	conversations map[string]models.Conversation
	ledger        map[string]models.LedgerEntry
	records       map[string]models.SessionRecord
	purchases     map[string]models.CreditPurchase
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *MemoryStore) snapshot() snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return snapshot{
		users:         copyMap(m.users),
		partners:      copyMap(m.partners),
		conversations: copyMap(m.conversations),
		ledger:        copyMap(m.ledger),
		records:       copyMap(m.records),
		purchases:     copyMap(m.purchases),
	}
}

func (m *MemoryStore) restore(s snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = s.users
	m.partners = s.partners
	m.conversations = s.conversations
	m.ledger = s.ledger
	m.records = s.records
	m.purchases = s.purchases
}

func (m *MemoryStore) WithinTransaction(ctx context.Context, fn func(tx services.BillingServiceDB) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	saved := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(saved)
		return err
	}
	return nil
}

func (m *MemoryStore) LockBalances(ctx context.Context, userID, partnerID string) (decimal.Decimal, decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("LockBalances"); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	user, ok := m.users[userID]
	if !ok {
		return decimal.Zero, decimal.Zero, gorm.ErrRecordNotFound
	}
	partner, ok := m.partners[partnerID]
	if !ok {
		return decimal.Zero, decimal.Zero, gorm.ErrRecordNotFound
	}
	return user.Credits, partner.AvailableEarnings, nil
}

func (m *MemoryStore) SetUserCredits(ctx context.Context, userID string, credits decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	user.Credits = credits
	m.users[userID] = user
	return nil
}

func (m *MemoryStore) AddPartnerEarnings(ctx context.Context, partnerID string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	partner, ok := m.partners[partnerID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	partner.LifetimeEarnings = partner.LifetimeEarnings.Add(amount)
	partner.AvailableEarnings = partner.AvailableEarnings.Add(amount)
	m.partners[partnerID] = partner
	return nil
}

func (m *MemoryStore) UpsertLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("UpsertLedgerEntry"); err != nil {
		return err
	}
	key := entry.ConversationID + "|" + entry.ServiceType
	if existing, ok := m.ledger[key]; ok {
		entry.ID = existing.ID
		entry.CreatedAt = existing.CreatedAt
	} else {
		if entry.ID == uuid.Nil {
			entry.ID = uuid.New()
		}
		entry.CreatedAt = m.now()
	}
	entry.UpdatedAt = m.now()
	m.ledger[key] = *entry
	return nil
}

func (m *MemoryStore) UpsertSessionRecord(ctx context.Context, record *models.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.records[record.ConversationID]; ok {
		record.ID = existing.ID
		record.Summary = existing.Summary
	} else if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	m.records[record.ConversationID] = *record
	return nil
}

func (m *MemoryStore) UpdateConversationAnalytics(ctx context.Context, conversationID string, analytics models.SessionAnalytics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[conversationID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	summary := conv.Analytics.Summary
	messageCount := conv.Analytics.MessageCount
	conv.Analytics = analytics
	conv.Analytics.Summary = summary
	conv.Analytics.MessageCount = messageCount
	m.conversations[conversationID] = conv
	return nil
}

func (m *MemoryStore) UpdateSessionRecordRating(ctx context.Context, conversationID string, rater models.Role, rating models.Rating) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[conversationID]
	if !ok {
		return nil
	}
	if rater == models.RolePartner {
		record.PartnerRating = rating
	} else {
		record.UserRating = rating
	}
	m.records[conversationID] = record
	return nil
}

func (m *MemoryStore) AttachSummary(ctx context.Context, conversationID, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("AttachSummary"); err != nil {
		return err
	}
	if conv, ok := m.conversations[conversationID]; ok {
		s := summary
		conv.Analytics.Summary = &s
		m.conversations[conversationID] = conv
	}
	if record, ok := m.records[conversationID]; ok {
		s := summary
		record.Summary = &s
		m.records[conversationID] = record
	}
	return nil
}

func (m *MemoryStore) ListLedgerEntries(ctx context.Context, role models.Role, participantID string, offset, limit int) ([]models.LedgerEntry, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matching []models.LedgerEntry
	for _, e := range m.ledger {
		if (role == models.RoleUser && e.UserID == participantID) || (role == models.RolePartner && e.PartnerID == participantID) {
			matching = append(matching, e)
		}
	}
	sort.Slice(matching, func(i, j int) bool { return matching[i].SettledAt.After(matching[j].SettledAt) })
	total := int64(len(matching))
	if offset >= len(matching) {
		return []models.LedgerEntry{}, total, nil
	}
	end := offset + limit
	if end > len(matching) {
		end = len(matching)
	}
	return matching[offset:end], total, nil
}

func (m *MemoryStore) RecordCreditPurchase(ctx context.Context, purchase *models.CreditPurchase) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.purchases[purchase.CheckoutSessionID]; exists {
		return false, nil
	}
	user, ok := m.users[purchase.UserID]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if purchase.ID == uuid.Nil {
		purchase.ID = uuid.New()
	}
	purchase.BalanceAfter = user.Credits.Add(purchase.Credits)
	purchase.CreatedAt = m.now()
	user.Credits = purchase.BalanceAfter
	m.users[user.ID] = user
	m.purchases[purchase.CheckoutSessionID] = *purchase
	return true, nil
}
