package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_UnknownKey_TopLevel(t *testing.T) {
	_, err := Load(writeTestConfig(t, "unknown_thing = \"value\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config key")
}

func TestLoad_UnknownKey_InSection(t *testing.T) {
	_, err := Load(writeTestConfig(t, "[synology]\nbase_ur = \"https://nas\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown config key "synology.base_ur"`)
	assert.Contains(t, err.Error(), `did you mean "base_url"`)
}

func TestLoad_UnknownSection_ReportedOnce(t *testing.T) {
	_, err := Load(writeTestConfig(t, "[sesion]\nttl = \"1h\"\nlock_ttl = \"5s\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown config section "sesion"`)
	assert.Contains(t, err.Error(), `did you mean "session"`)
	assert.Equal(t, 1, strings.Count(err.Error(), "sesion\""))
}

func TestLoad_UnknownKey_RateLimitRule(t *testing.T) {
	_, err := Load(writeTestConfig(t, "[ratelimit.reports]\nlimt = 3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `did you mean "limit"`)
}

func TestLoad_UnknownKey_NoSuggestion(t *testing.T) {
	_, err := Load(writeTestConfig(t, "[network]\ncompletely_different = true\n"))
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"ttl", "ttl", 0},
		{"base_ur", "base_url", 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, levenshtein(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}
