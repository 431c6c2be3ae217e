package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/marmos91/lockfs/internal/bytesize"
)

func TestApplyDefaults_Empty(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")

	var cfg Config
	ApplyDefaults(&cfg)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.Endpoint)
	assert.Equal(t, 1.0, cfg.Telemetry.SampleRate)
	assert.NotEmpty(t, cfg.Telemetry.Profiling.ProfileTypes)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.Transport.ReadTimeout)
	assert.Zero(t, cfg.Transport.RateLimit.Burst, "no burst without a rate")
	assert.Equal(t, filepath.Join("/data", "lockfs", "files"), cfg.Storage.Filesystem.Path)
	assert.Equal(t, 64*bytesize.MiB, cfg.Storage.Badger.ValueLogFileSize)
	assert.Equal(t, "us-east-1", cfg.Storage.S3.Region)
	assert.Zero(t, cfg.Metrics.Port, "metrics port stays unset while disabled")
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := Config{
		Logging:   LoggingConfig{Level: "warn", Format: "json", Output: "stderr"},
		Server:    ServerConfig{Port: 1234, SeekPolicy: "read_or_write"},
		Transport: TransportConfig{RateLimit: RateLimitConfig{RequestsPerSecond: 10, Burst: 3}},
		Storage:   StorageConfig{Type: StorageMemory, Badger: BadgerStorageConfig{InMemory: true}},
		Metrics:   MetricsConfig{Enabled: true, Port: 9999},
	}
	ApplyDefaults(&cfg)

	assert.Equal(t, "WARN", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 1234, cfg.Server.Port)
	assert.Equal(t, "read_or_write", cfg.Server.SeekPolicy)
	assert.EqualValues(t, 3, cfg.Transport.RateLimit.Burst)
	assert.Equal(t, StorageMemory, cfg.Storage.Type)
	assert.Empty(t, cfg.Storage.Badger.Path, "in-memory badger needs no path")
	assert.Equal(t, 9999, cfg.Metrics.Port)
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()
	assert.NoError(t, Validate(cfg))
	assert.True(t, cfg.API.IsEnabled())
	assert.False(t, cfg.Server.Fault.Enabled())
}
