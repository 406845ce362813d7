package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/coop")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "coop.events", cfg.EventExchange)
	assert.Equal(t, 30, cfg.JobWindowDays)
	assert.Equal(t, 25, cfg.PayoutBatchSize)
	assert.Equal(t, "0 2 * * *", cfg.LoanDeductionSchedule)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	// t.Setenv registers the restore; the variable must be absent, not empty.
	t.Setenv("DATABASE_URL", "placeholder")
	os.Unsetenv("DATABASE_URL")

	_, err := Load()
	require.Error(t, err)
}
