package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEnvOverrides_AllSet(t *testing.T) {
	t.Setenv(EnvConfig, "/custom/config.toml")
	t.Setenv(EnvBaseURL, " https://nas.local ")
	t.Setenv(EnvUsername, "svc")
	t.Setenv(EnvPassword, "pw")
	t.Setenv(EnvRootFolderID, "42")
	t.Setenv(EnvVisibilityMode, " SHOW ")
	t.Setenv(EnvRedisURL, "redis://localhost:6379/0")

	env := ReadEnvOverrides()
	assert.Equal(t, "/custom/config.toml", env.ConfigPath)
	assert.Equal(t, "https://nas.local", env.BaseURL)
	assert.Equal(t, "svc", env.Username)
	assert.Equal(t, "pw", env.Password)
	assert.Equal(t, "42", env.RootFolderID)
	assert.Equal(t, VisibilityShow, env.VisibilityMode)
	assert.Equal(t, "redis://localhost:6379/0", env.RedisURL)
}

func TestApplyEnv_UnknownModeIgnored(t *testing.T) {
	cfg := DefaultConfig()
	ApplyEnv(cfg, EnvOverrides{VisibilityMode: "everything", RootFolderID: "7"})

	assert.Equal(t, VisibilityHide, cfg.Visibility.Mode)
	assert.Equal(t, "7", cfg.Synology.RootFolderID)
}

func TestApplyEnv_EmptyLeavesFileValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Synology.Username = "from-file"

	ApplyEnv(cfg, EnvOverrides{})
	assert.Equal(t, "from-file", cfg.Synology.Username)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("SYNOPHOTO_TEST_ENV_A=from-file\nSYNOPHOTO_TEST_ENV_B=from-file\n"), 0o600))

	t.Setenv("SYNOPHOTO_TEST_ENV_A", "from-env")
	t.Setenv("SYNOPHOTO_TEST_ENV_B", "")
	require.NoError(t, os.Unsetenv("SYNOPHOTO_TEST_ENV_B"))

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "from-env", os.Getenv("SYNOPHOTO_TEST_ENV_A"), "existing variables win")
	assert.Equal(t, "from-file", os.Getenv("SYNOPHOTO_TEST_ENV_B"))
}

func TestLoadEnvFile_Missing(t *testing.T) {
	t.Chdir(t.TempDir())

	require.NoError(t, LoadEnvFile(""), "missing default .env is fine")
	require.Error(t, LoadEnvFile(filepath.Join(t.TempDir(), "nope.env")))
}
