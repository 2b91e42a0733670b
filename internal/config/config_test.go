package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/eventd/internal/store"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.True(t, cfg.Events.Enabled)
	assert.Equal(t, 3, cfg.Events.RetryAttempts)
	assert.Equal(t, 30*time.Second, cfg.Events.RetryInterval)
	assert.Equal(t, 20, cfg.Events.MaxSubscriptions)

	assert.Equal(t, "/var/log/redfish", cfg.Logtail.Path)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, -1, cfg.NATS.MaxReconnects)
	assert.Equal(t, store.BackendMemory, cfg.Store.Backend)
	assert.Equal(t, 10*time.Second, cfg.Transport.Timeout)
}

func TestLoad_FromFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9443
events:
  enabled: false
  retry_attempts: 5
  retry_interval: 10s
logtail:
  path: /tmp/redfish
store:
  backend: redis
redis:
  url: redis://cache:6379/2
logging:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, 9443, cfg.Server.Port)
	assert.False(t, cfg.Events.Enabled)
	assert.Equal(t, 5, cfg.Events.RetryAttempts)
	assert.Equal(t, 10*time.Second, cfg.Events.RetryInterval)
	assert.Equal(t, "/tmp/redfish", cfg.Logtail.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)

	opts := cfg.StoreOptions()
	assert.Equal(t, store.BackendRedis, opts.Backend)
	assert.Equal(t, "redis://cache:6379/2", opts.RedisURL)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("EVENTD_SERVER_PORT", "7070")
	t.Setenv("EVENTD_EVENTS_RETRY_ATTEMPTS", "9")
	t.Setenv("EVENTD_TRANSPORT_SIGNING_SECRET", "shh")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 9, cfg.Events.RetryAttempts)
	assert.Equal(t, "shh", cfg.Transport.SigningSecret)
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
	t.Run("bad backend", func(t *testing.T) {
		t.Setenv("EVENTD_STORE_BACKEND", "etcd")
		_, err := Load("")
		assert.Error(t, err)
	})
	t.Run("negative retries", func(t *testing.T) {
		t.Setenv("EVENTD_EVENTS_RETRY_ATTEMPTS", "-1")
		_, err := Load("")
		assert.Error(t, err)
	})
	t.Run("sub-second retry interval", func(t *testing.T) {
		t.Setenv("EVENTD_EVENTS_RETRY_INTERVAL", "0s")
		_, err := Load("")
		assert.Error(t, err)
	})
}

func TestPostgresConnectionString(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "eventd", Password: "p@ss", Database: "events", SSLMode: "disable"}
	assert.Equal(t, "postgres://eventd:p%40ss@db:5432/events?sslmode=disable", p.ConnectionString())
}

func TestLoadCLI_Defaults(t *testing.T) {
	cfg, err := LoadCLI(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8090", cfg.ServerURL)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, "table", cfg.Output)
}

func TestLoadCLI_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_url: http://bmc:8090\ntimeout: 5s\n"), 0o600))
	t.Setenv("EVENTCTL_OUTPUT", "json")

	cfg, err := LoadCLI(path)
	require.NoError(t, err)
	assert.Equal(t, "http://bmc:8090", cfg.ServerURL)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "json", cfg.Output)
	assert.Equal(t, path, cfg.Path())
}
