package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, VisibilityHide, cfg.Visibility.Mode)
	assert.Equal(t, "hide", cfg.Visibility.HideTag)
	assert.Equal(t, "(hide)", cfg.Visibility.HideSuffix)
	assert.Equal(t, "6h", cfg.Session.TTL)
	assert.Equal(t, "5s", cfg.Session.LocalTTL)
	assert.Equal(t, 30, cfg.Session.LockPollAttempts)
	assert.Equal(t, 3, cfg.Retry.NetworkRetries)
	assert.Equal(t, 1, cfg.Retry.ReloginRetries)
	assert.Equal(t, 200, cfg.Cache.FolderScanPageSize)
	assert.Equal(t, 10, cfg.RateLimit.Reports.Limit)
	assert.Equal(t, 200, cfg.Reports.MaxPerItem)
	assert.Equal(t, 1000, cfg.Reports.FeedbackMax)
	assert.Equal(t, "8760h", cfg.Reports.AnalyticsRetention)
	assert.Empty(t, cfg.Synology.RootFolderID)
}

func TestDefaultConfig_Validates(t *testing.T) {
	require.NoError(t, Validate(DefaultConfig()))
}

func TestDuration(t *testing.T) {
	assert.Equal(t, int64(1500), Duration("1500ms").Milliseconds())
	assert.Zero(t, Duration("soon"))
}
