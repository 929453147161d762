package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"consult_gateway_go_backend/internal/models"
	"consult_gateway_go_backend/internal/services"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBillableMinutes(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name     string
		elapsed  time.Duration
		accepted bool
		want     int
	}{
		{"never accepted", 10 * time.Minute, false, 0},
		{"zero elapsed", 0, true, 1},
		{"clock skew", -time.Second, true, 1},
		{"ten seconds", 10 * time.Second, true, 1},
		{"exactly one minute", time.Minute, true, 1},
		{"one nanosecond over", time.Minute + time.Nanosecond, true, 2},
		{"sixty one seconds", 61 * time.Second, true, 2},
		{"exactly three minutes", 3 * time.Minute, true, 3},
		{"long session", 90*time.Minute + 30*time.Second, true, 91},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, services.BillableMinutes(start, start.Add(tc.elapsed), tc.accepted))
		})
	}
}

func TestComputeSettlement(t *testing.T) {
	rates := services.Rates{UserPerMinute: decimal.NewFromInt(4), PartnerPerMinute: decimal.NewFromInt(3)}

	t.Run("covered by balance", func(t *testing.T) {
		s := services.ComputeSettlement(rates, 2, decimal.NewFromInt(100), decimal.NewFromInt(7))
		assert.True(t, s.UserCharge.Equal(decimal.NewFromInt(8)))
		assert.True(t, s.UserDebited.Equal(decimal.NewFromInt(8)))
		assert.True(t, s.UserBalanceAfter.Equal(decimal.NewFromInt(92)))
		assert.True(t, s.PartnerCredited.Equal(decimal.NewFromInt(6)))
		assert.True(t, s.PartnerBalanceAfter.Equal(decimal.NewFromInt(13)))
	})

	t.Run("shortfall debits what is left", func(t *testing.T) {
		s := services.ComputeSettlement(rates, 3, decimal.NewFromInt(10), decimal.Zero)
		assert.True(t, s.UserCharge.Equal(decimal.NewFromInt(12)))
		assert.True(t, s.UserDebited.Equal(decimal.NewFromInt(10)))
		assert.True(t, s.UserBalanceAfter.IsZero())
		assert.True(t, s.PartnerCredited.Equal(decimal.NewFromInt(9)))
	})

	t.Run("negative balance is never debited", func(t *testing.T) {
		s := services.ComputeSettlement(rates, 2, decimal.NewFromInt(-5), decimal.Zero)
		assert.True(t, s.UserDebited.IsZero())
		assert.True(t, s.UserBalanceAfter.Equal(decimal.NewFromInt(-5)))
		assert.True(t, s.PartnerCredited.Equal(decimal.NewFromInt(6)))
	})

	t.Run("fractional rates", func(t *testing.T) {
		fractional := services.Rates{UserPerMinute: decimal.RequireFromString("2.50"), PartnerPerMinute: decimal.RequireFromString("1.75")}
		s := services.ComputeSettlement(fractional, 3, decimal.NewFromInt(50), decimal.Zero)
		assert.Equal(t, "7.50", s.UserDebited.StringFixed(2))
		assert.Equal(t, "5.25", s.PartnerCredited.StringFixed(2))
	})

	t.Run("zero minutes moves nothing", func(t *testing.T) {
		s := services.ComputeSettlement(rates, 0, decimal.NewFromInt(50), decimal.NewFromInt(2))
		assert.True(t, s.UserDebited.IsZero())
		assert.True(t, s.PartnerCredited.IsZero())
		assert.True(t, s.UserBalanceAfter.Equal(decimal.NewFromInt(50)))
	})
}

func TestSettleWritesLedgerAndSessionRecord(t *testing.T) {
	f := newFixture(t, 100)
	conv := f.requestAndAccept(t)
	f.clock.Advance(150 * time.Second)

	entry, err := f.billing.Settle(context.Background(), conv, f.clock.Now())
	require.NoError(t, err)

	assert.Equal(t, 3, entry.BillableMinutes)
	assert.Equal(t, float64(150), entry.DurationSeconds)
	assert.Equal(t, models.ServiceTypeChat, entry.ServiceType)
	assert.True(t, entry.UserDebited.Equal(decimal.NewFromInt(12)))
	assert.True(t, entry.PartnerCredited.Equal(decimal.NewFromInt(9)))
	assert.True(t, entry.UserBalanceBefore.Equal(decimal.NewFromInt(100)))

	assert.True(t, f.store.User(userID).Credits.Equal(decimal.NewFromInt(88)))
	partner := f.store.Partner(partnerID)
	assert.True(t, partner.AvailableEarnings.Equal(decimal.NewFromInt(9)))
	assert.True(t, partner.LifetimeEarnings.Equal(decimal.NewFromInt(9)))

	record, ok := f.store.SessionRecord(conv.ID)
	require.True(t, ok)
	assert.Equal(t, 3, record.BillableMinutes)
	assert.True(t, record.CreditsConsumed.Equal(decimal.NewFromInt(12)))
	assert.Equal(t, *conv.AcceptedAt, record.StartedAt)

	analytics := f.store.Conversation(conv.ID).Analytics
	assert.Equal(t, 3, analytics.BillableMinutes)
	assert.True(t, analytics.UserRatePerMinute.Equal(decimal.NewFromInt(4)))
}

func TestSettleRollsBackOnFailure(t *testing.T) {
	f := newFixture(t, 100)
	conv := f.requestAndAccept(t)
	f.clock.Advance(time.Minute)
	f.store.FailOn("UpsertLedgerEntry", errors.New("disk full"))

	_, err := f.billing.Settle(context.Background(), conv, f.clock.Now())
	require.Error(t, err)

	assert.True(t, f.store.User(userID).Credits.Equal(decimal.NewFromInt(100)))
	assert.True(t, f.store.Partner(partnerID).AvailableEarnings.IsZero())
	assert.Empty(t, f.store.LedgerEntries())
	_, ok := f.store.SessionRecord(conv.ID)
	assert.False(t, ok)
}

func TestHistoryViewsPerSide(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	conv := f.requestAndAccept(t)
	f.clock.Advance(2 * time.Minute)
	_, err := f.conversations.End(ctx, f.user, conv.ID, nil)
	require.NoError(t, err)

	userHistory, err := f.billing.History(ctx, f.user, 1, 10)
	require.NoError(t, err)
	require.Len(t, userHistory.Entries, 1)
	debit := userHistory.Entries[0]
	assert.Equal(t, services.RateDebit, debit.Direction)
	assert.Equal(t, partnerID, debit.PeerID)
	assert.True(t, debit.Amount.Equal(decimal.NewFromInt(8)))
	assert.True(t, debit.RatePerMinute.Equal(decimal.NewFromInt(4)))
	assert.True(t, debit.BalanceAfter.Equal(decimal.NewFromInt(92)))

	partnerHistory, err := f.billing.History(ctx, f.partner, 1, 10)
	require.NoError(t, err)
	require.Len(t, partnerHistory.Entries, 1)
	credit := partnerHistory.Entries[0]
	assert.Equal(t, services.RateCredit, credit.Direction)
	assert.Equal(t, userID, credit.PeerID)
	assert.True(t, credit.Amount.Equal(decimal.NewFromInt(6)))
	assert.True(t, credit.BalanceAfter.Equal(decimal.NewFromInt(6)))
}

func TestHistoryNormalizesPaging(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	page, err := f.billing.History(ctx, f.user, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 50, page.Limit)
	assert.Empty(t, page.Entries)
	assert.False(t, page.HasMore)

	page, err = f.billing.History(ctx, f.user, 3, 1000)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Page)
	assert.Equal(t, 100, page.Limit)
}
