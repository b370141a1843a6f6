package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "tripengine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend: memory
cache:
  backend: redis
  ttl: 45s
dispatch:
  otp_kinds: [porter]
messaging:
  driver: kafka
  kafka_brokers: ["k1:9092"]
`), 0o644))

	t.Setenv("TRIPENGINE_HTTP_ADDR", ":9999")
	t.Setenv("TRIPENGINE_CACHE_TTL", "1m")
	t.Setenv("TRIPENGINE_KAFKA_BROKERS", "a:1, b:2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Backend)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.Equal(t, []string{"porter"}, cfg.Dispatch.OTPKinds)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Messaging.KafkaBrokers)
	assert.Equal(t, 10*time.Minute, cfg.Cache.StaleRetention)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TRIPENGINE_LOG_LEVEL=debug\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("TRIPENGINE_LOG_LEVEL") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.Messaging.Driver = "pigeon"
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Dispatch.RatingMin = 6
	assert.Error(t, cfg.Validate())

	assert.NoError(t, Defaults().Validate())
}
