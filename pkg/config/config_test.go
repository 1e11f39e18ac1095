package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, int64(3600_000), cfg.CacheMaxAgeMS)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quotad.yaml")
	contents := "redis:\n  addr: redis.internal:6379\ncache_ttl_seconds: 45\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	require.Equal(t, 45, cfg.CacheTTLSeconds)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("QUOTALEDGER_REDIS_ADDR", "envhost:6379")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "envhost:6379", cfg.Redis.Addr)
}
