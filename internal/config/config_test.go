package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "wide", cfg.Policy)
	assert.Equal(t, 60, cfg.CacheTTLSeconds)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadPartialFileIsNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "feed:\n  url: \" https://example.com/a.ics \"\npolicy: Narrow\ncache_ttl_seconds: 0\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a.ics", cfg.Feed.URL)
	assert.Equal(t, "narrow", cfg.Policy)
	assert.Equal(t, 60, cfg.CacheTTLSeconds)
	assert.Equal(t, 365, cfg.WideDays)
	assert.Equal(t, time.Minute, cfg.CacheTTL())
	assert.NoError(t, cfg.Validate())
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("feed: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadEmptyPath(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvFeedURL, "https://env.example.com/cal.ics")

	cfg := DefaultConfig()
	cfg.Feed.URL = "https://file.example.com/cal.ics"
	cfg.ApplyEnv()

	assert.Equal(t, "https://env.example.com/cal.ics", cfg.Feed.URL)
}

func TestApplyEnvUnsetKeepsFile(t *testing.T) {
	t.Setenv(EnvFeedURL, "")

	cfg := DefaultConfig()
	cfg.Feed.URL = "https://file.example.com/cal.ics"
	cfg.ApplyEnv()

	assert.Equal(t, "https://file.example.com/cal.ics", cfg.Feed.URL)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Policy = "sideways"
	cfg.Timezone = "Mars/Olympus_Mons"
	cfg.Refresh = "every now and then"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "policy")
	assert.Contains(t, err.Error(), "timezone")
	assert.Contains(t, err.Error(), "refresh")
}

func TestLocation(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, time.Local, cfg.Location())

	cfg.Timezone = "UTC"
	assert.Equal(t, "UTC", cfg.Location().String())
}

func TestDefaultPathFromEnv(t *testing.T) {
	t.Setenv(EnvConfigPath, "/tmp/termcal-test.yaml")
	assert.Equal(t, "/tmp/termcal-test.yaml", DefaultPath())
}
