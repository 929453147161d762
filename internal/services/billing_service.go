package services

import (
	"context"
	"fmt"
	"time"

	apperrors "consult_gateway_go_backend/internal/errors"
	"consult_gateway_go_backend/internal/metrics"
	"consult_gateway_go_backend/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Rates are the per-minute amounts snapshotted into every settlement.
type Rates struct {
	UserPerMinute    decimal.Decimal `json:"userPerMinute"`
	PartnerPerMinute decimal.Decimal `json:"partnerPerMinute"`
}

// Settlement is the outcome of billing one ended conversation.
type Settlement struct {
	DurationSeconds      float64         `json:"durationSeconds"`
	BillableMinutes      int             `json:"billableMinutes"`
	UserCharge           decimal.Decimal `json:"userCharge"`
	UserDebited          decimal.Decimal `json:"userDebited"`
	PartnerCredited      decimal.Decimal `json:"partnerCredited"`
	UserBalanceBefore    decimal.Decimal `json:"userBalanceBefore"`
	UserBalanceAfter     decimal.Decimal `json:"userBalanceAfter"`
	PartnerBalanceBefore decimal.Decimal `json:"partnerBalanceBefore"`
	PartnerBalanceAfter  decimal.Decimal `json:"partnerBalanceAfter"`
	Rates                Rates           `json:"rates"`
}

// BillableMinutes rounds the elapsed session up to whole minutes. An accepted
// session is billed at least one minute; one never accepted bills nothing.
func BillableMinutes(start, end time.Time, accepted bool) int {
	if !accepted {
		return 0
	}
	elapsed := end.Sub(start)
	if elapsed <= 0 {
		return 1
	}
	minutes := int(elapsed / time.Minute)
	if elapsed%time.Minute != 0 {
		minutes++
	}
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

// ComputeSettlement applies the rates to the billable minutes. The user is
// never debited below zero; the partner is credited in full regardless.
func ComputeSettlement(rates Rates, minutes int, userBalance, partnerBalance decimal.Decimal) Settlement {
	billable := decimal.NewFromInt(int64(minutes))
	charge := billable.Mul(rates.UserPerMinute)

	available := decimal.Max(userBalance, decimal.Zero)
	debited := decimal.Min(available, charge)
	credited := billable.Mul(rates.PartnerPerMinute)

	return Settlement{
		BillableMinutes:      minutes,
		UserCharge:           charge,
		UserDebited:          debited,
		PartnerCredited:      credited,
		UserBalanceBefore:    userBalance,
		UserBalanceAfter:     userBalance.Sub(debited),
		PartnerBalanceBefore: partnerBalance,
		PartnerBalanceAfter:  partnerBalance.Add(credited),
		Rates:                rates,
	}
}

type BillingService struct {
	store  BillingServiceDB
	rates  Rates
	logger zerolog.Logger
}

func NewBillingService(store BillingServiceDB, rates Rates, logger zerolog.Logger) *BillingService {
	return &BillingService{
		store:  store,
		rates:  rates,
		logger: logger.With().Str("component", "billing").Logger(),
	}
}

// Settle charges the user, credits the partner and records the ledger entry
// and session record for an ended conversation, all in one transaction.
// Repeating it for the same conversation upserts the same ledger row.
func (s *BillingService) Settle(ctx context.Context, conv *models.Conversation, endedAt time.Time) (*models.LedgerEntry, error) {
	start := conv.SessionStart()
	minutes := BillableMinutes(start, endedAt, conv.WasAccepted())

	var entry *models.LedgerEntry
	err := s.store.WithinTransaction(ctx, func(tx BillingServiceDB) error {
		userBalance, partnerBalance, err := tx.LockBalances(ctx, conv.UserID, conv.PartnerID)
		if err != nil {
			return fmt.Errorf("lock balances: %w", err)
		}

		settlement := ComputeSettlement(s.rates, minutes, userBalance, partnerBalance)
		settlement.DurationSeconds = endedAt.Sub(start).Seconds()

		if err := tx.SetUserCredits(ctx, conv.UserID, settlement.UserBalanceAfter); err != nil {
			return fmt.Errorf("debit user: %w", err)
		}
		if err := tx.AddPartnerEarnings(ctx, conv.PartnerID, settlement.PartnerCredited); err != nil {
			return fmt.Errorf("credit partner: %w", err)
		}

		entry = &models.LedgerEntry{
			ConversationID:       conv.ID,
			ServiceType:          conv.ServiceType,
			UserID:               conv.UserID,
			PartnerID:            conv.PartnerID,
			DurationSeconds:      settlement.DurationSeconds,
			BillableMinutes:      settlement.BillableMinutes,
			UserRatePerMinute:    s.rates.UserPerMinute,
			PartnerRatePerMinute: s.rates.PartnerPerMinute,
			UserCharge:           settlement.UserCharge,
			UserDebited:          settlement.UserDebited,
			PartnerCredited:      settlement.PartnerCredited,
			UserBalanceBefore:    settlement.UserBalanceBefore,
			UserBalanceAfter:     settlement.UserBalanceAfter,
			PartnerBalanceBefore: settlement.PartnerBalanceBefore,
			PartnerBalanceAfter:  settlement.PartnerBalanceAfter,
			SettledAt:            endedAt,
		}
		if entry.ServiceType == "" {
			entry.ServiceType = models.ServiceTypeChat
		}
		if err := tx.UpsertLedgerEntry(ctx, entry); err != nil {
			return fmt.Errorf("upsert ledger entry: %w", err)
		}

		analytics := conv.Analytics
		analytics.DurationSeconds = settlement.DurationSeconds
		analytics.BillableMinutes = settlement.BillableMinutes
		analytics.CreditsConsumed = settlement.UserDebited
		analytics.CreditsEarned = settlement.PartnerCredited
		analytics.UserRatePerMinute = s.rates.UserPerMinute
		analytics.PartnerRatePerMinute = s.rates.PartnerPerMinute
		if err := tx.UpdateConversationAnalytics(ctx, conv.ID, analytics); err != nil {
			return fmt.Errorf("update conversation analytics: %w", err)
		}

		record := &models.SessionRecord{
			ConversationID:  conv.ID,
			UserID:          conv.UserID,
			PartnerID:       conv.PartnerID,
			ServiceType:     entry.ServiceType,
			StartedAt:       start,
			EndedAt:         endedAt,
			DurationSeconds: settlement.DurationSeconds,
			BillableMinutes: settlement.BillableMinutes,
			MessageCount:    conv.Analytics.MessageCount,
			CreditsConsumed: settlement.UserDebited,
			CreditsEarned:   settlement.PartnerCredited,
			UserRating:      conv.UserRating,
			PartnerRating:   conv.PartnerRating,
		}
		if err := tx.UpsertSessionRecord(ctx, record); err != nil {
			return fmt.Errorf("upsert session record: %w", err)
		}
		return nil
	})
	if err != nil {
		metrics.RecordSettlementFailure()
		s.logger.Error().Err(err).Str("conversation_id", conv.ID).Msg("Settlement failed")
		return nil, err
	}

	metrics.RecordSettlement(entry.UserDebited, entry.PartnerCredited)
	s.logger.Info().
		Str("conversation_id", conv.ID).
		Int("billable_minutes", entry.BillableMinutes).
		Str("user_debited", entry.UserDebited.StringFixed(2)).
		Str("partner_credited", entry.PartnerCredited.StringFixed(2)).
		Msg("Conversation settled")
	return entry, nil
}

// RecordRating copies a rating onto the session record once one exists.
func (s *BillingService) RecordRating(ctx context.Context, conversationID string, rater models.Role, rating models.Rating) error {
	return s.store.UpdateSessionRecordRating(ctx, conversationID, rater, rating)
}

// LedgerView is one settlement as seen by one side: a debit for users, a
// credit for partners.
type LedgerView struct {
	ConversationID  string          `json:"conversationId"`
	PeerID          string          `json:"peerId"`
	Direction       RateRole        `json:"direction"`
	BillableMinutes int             `json:"billableMinutes"`
	DurationSeconds float64         `json:"durationSeconds"`
	RatePerMinute   decimal.Decimal `json:"ratePerMinute"`
	Amount          decimal.Decimal `json:"amount"`
	BalanceBefore   decimal.Decimal `json:"balanceBefore"`
	BalanceAfter    decimal.Decimal `json:"balanceAfter"`
	SettledAt       time.Time       `json:"settledAt"`
}

type HistoryPage struct {
	Entries []LedgerView `json:"entries"`
	Total   int64        `json:"total"`
	Page    int          `json:"page"`
	Limit   int          `json:"limit"`
	HasMore bool         `json:"hasMore"`
}

func ledgerView(party Party, entry models.LedgerEntry) LedgerView {
	view := LedgerView{
		ConversationID:  entry.ConversationID,
		Direction:       party.RateRole(),
		BillableMinutes: entry.BillableMinutes,
		DurationSeconds: entry.DurationSeconds,
		SettledAt:       entry.SettledAt,
	}
	if party.RateRole() == RateDebit {
		view.PeerID = entry.PartnerID
		view.RatePerMinute = entry.UserRatePerMinute
		view.Amount = entry.UserDebited
		view.BalanceBefore = entry.UserBalanceBefore
		view.BalanceAfter = entry.UserBalanceAfter
	} else {
		view.PeerID = entry.UserID
		view.RatePerMinute = entry.PartnerRatePerMinute
		view.Amount = entry.PartnerCredited
		view.BalanceBefore = entry.PartnerBalanceBefore
		view.BalanceAfter = entry.PartnerBalanceAfter
	}
	return view
}

// History pages through the caller's ledger entries, newest first.
func (s *BillingService) History(ctx context.Context, party Party, page, limit int) (*HistoryPage, error) {
	page, limit = normalizePage(page, limit)
	entries, total, err := s.store.ListLedgerEntries(ctx, party.Role(), party.ID(), (page-1)*limit, limit)
	if err != nil {
		return nil, apperrors.New500Error(err)
	}

	views := make([]LedgerView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, ledgerView(party, entry))
	}
	return &HistoryPage{
		Entries: views,
		Total:   total,
		Page:    page,
		Limit:   limit,
		HasMore: int64(page*limit) < total,
	}, nil
}

const (
	defaultPageLimit = 50
	maxPageLimit     = 100
)

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}
