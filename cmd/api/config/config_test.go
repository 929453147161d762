package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load("testdata/does-not-exist.env")
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.True(t, cfg.UserRate().Equal(decimal.NewFromInt(4)))
	assert.True(t, cfg.PartnerRate().Equal(decimal.NewFromInt(3)))
	assert.Equal(t, 1, cfg.DefaultMaxConversations)
	assert.Equal(t, 30*time.Second, cfg.SummaryTimeout)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Origins())
	assert.Contains(t, cfg.DSN(), "dbname=consult")
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load("testdata/does-not-exist.env")
	assert.Error(t, err)
}

func TestLoadRejectsNegativeRates(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("USER_RATE_PER_MINUTE", "-1")

	_, err := Load("testdata/does-not-exist.env")
	assert.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("USER_RATE_PER_MINUTE", "2.5")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("SUMMARY_WORKERS", "0")

	cfg, err := Load("testdata/does-not-exist.env")
	require.NoError(t, err)
	assert.True(t, cfg.UserRate().Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Origins())
	assert.Equal(t, 1, cfg.SummaryWorkers)
}
