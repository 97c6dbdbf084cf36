package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, o := range envOverrides {
		t.Setenv(o.name, "")
	}
	return home
}

func TestLoadConfig_Defaults(t *testing.T) {
	home := isolateHome(t)

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".flowengine", "flowengine.db"), cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "@every 1m", cfg.SLASchedule)
	assert.Equal(t, 3, cfg.ConflictRetries)

	ttl, err := cfg.cacheTTL()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, ttl)
}

func TestLoadConfig_SettingsFile(t *testing.T) {
	home := isolateHome(t)
	dir := filepath.Join(home, ".flowengine")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	settings := `{
		"log_level": "debug",
		"redis_addr": "localhost:6379",
		"notify_workers": 8,
		"group_assignees": {"managers": "alice"}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte(settings), 0o600))

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 8, cfg.NotifyWorkers)
	assert.Equal(t, "alice", cfg.GroupAssignees["managers"])
	// Untouched keys keep their defaults.
	assert.Equal(t, 256, cfg.DefinitionCacheSize)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	home := isolateHome(t)
	dir := filepath.Join(home, ".flowengine")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte(`{"log_level":"debug","conflict_retries":1}`), 0o600))

	t.Setenv("FLOWENGINE_LOG_LEVEL", "warn")
	t.Setenv("FLOWENGINE_CONFLICT_RETRIES", "7")
	t.Setenv("FLOWENGINE_DEFINITION_CACHE_TTL", "90s")
	t.Setenv("FLOWENGINE_DB_PATH", "/tmp/other.db")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 7, cfg.ConflictRetries)
	assert.Equal(t, "/tmp/other.db", cfg.DBPath)
	ttl, err := cfg.cacheTTL()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, ttl)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  string
		val  string
	}{
		{"non-numeric retries", "FLOWENGINE_CONFLICT_RETRIES", "many"},
		{"negative workers", "FLOWENGINE_NOTIFY_WORKERS", "-1"},
		{"bad ttl", "FLOWENGINE_DEFINITION_CACHE_TTL", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateHome(t)
			t.Setenv(tt.env, tt.val)
			_, err := loadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MalformedSettings(t *testing.T) {
	home := isolateHome(t)
	dir := filepath.Join(home, ".flowengine")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte(`{not json`), 0o600))

	_, err := loadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "settings.json")
}

func TestRetryPolicy(t *testing.T) {
	p := retryPolicy(5)
	assert.Equal(t, uint64(5), p.MaxRetries)
	assert.Equal(t, 10*time.Millisecond, p.InitialInterval)
}

func TestGroupResolver(t *testing.T) {
	assert.Nil(t, groupResolver(nil))

	r := groupResolver(map[string]string{"managers": "alice"})
	require.NotNil(t, r)
	user, err := r.ResolveGroup(t.Context(), "managers", nil)
	require.NoError(t, err)
	assert.Equal(t, "alice", user)

	user, err = r.ResolveGroup(t.Context(), "finance", nil)
	require.NoError(t, err)
	assert.Empty(t, user)
}
