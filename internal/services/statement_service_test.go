package services_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"consult_gateway_go_backend/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatementRendersPDF(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	conv := f.requestAndAccept(t)
	f.clock.Advance(90 * time.Second)
	_, err := f.conversations.End(ctx, f.partner, conv.ID, nil)
	require.NoError(t, err)

	statements := services.NewStatementService(f.billing, services.WithClock(f.clock.Now))
	for _, caller := range []services.Party{f.user, f.partner} {
		var buf bytes.Buffer
		require.NoError(t, statements.Render(ctx, caller, &buf))
		assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")), "not a PDF for %s", caller.ID())
		assert.Greater(t, buf.Len(), 500)
	}
}

func TestStatementWithoutHistory(t *testing.T) {
	f := newFixture(t, 0)
	var buf bytes.Buffer
	require.NoError(t, services.NewStatementService(f.billing).Render(context.Background(), f.user, &buf))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}
