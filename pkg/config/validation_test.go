package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, Validate(GetDefaultConfig()))
}

func TestValidate_TagRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		tag    string
	}{
		{"log level", func(c *Config) { c.Logging.Level = "LOUD" }, "oneof"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "oneof"},
		{"server port", func(c *Config) { c.Server.Port = 70000 }, "max"},
		{"negative port", func(c *Config) { c.Server.Port = -1 }, "min"},
		{"bind address", func(c *Config) { c.Server.BindAddress = "not-an-ip" }, "ip"},
		{"drop probability", func(c *Config) { c.Server.Fault.DropReply = 1.5 }, "lte"},
		{"sample rate", func(c *Config) { c.Telemetry.SampleRate = 2 }, "lte"},
		{"profile type", func(c *Config) { c.Telemetry.Profiling.ProfileTypes = []string{"heap"} }, "oneof"},
		{"storage type", func(c *Config) { c.Storage.Type = "tape" }, "oneof"},
		{"shutdown timeout", func(c *Config) { c.ShutdownTimeout = -1 }, "gt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "'"+tt.tag+"'")
		})
	}
}

func TestValidate_CustomRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"fault sum", func(c *Config) { c.Server.Fault.DropRequest, c.Server.Fault.DropReply = 0.6, 0.5 }},
		{"s3 bucket", func(c *Config) { c.Storage.Type = StorageS3 }},
		{"s3 partial credentials", func(c *Config) {
			c.Storage.Type = StorageS3
			c.Storage.S3.Bucket = "b"
			c.Storage.S3.AccessKeyID = "key"
		}},
		{"badger path", func(c *Config) {
			c.Storage.Type = StorageBadger
			c.Storage.Badger.Path = ""
		}},
		{"port clash", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Port = c.API.Port
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}
