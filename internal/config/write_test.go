package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTemplate_LoadsAsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	require.NoError(t, WriteTemplate(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(configFilePermissions), info.Mode().Perm())

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestWriteTemplate_NeverOverwrites(t *testing.T) {
	path := writeTestConfig(t, "[synology]\nusername = \"keep\"\n")

	err := WriteTemplate(path)
	require.ErrorIs(t, err, ErrConfigExists)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "keep")
}
