package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smallbiznis/procura/internal/config"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig(config.Config{Environment: " Production ", LogLevel: "info"})

	assert.Equal(t, "procura", cfg.ServiceName)
	assert.Equal(t, "production", cfg.Environment)
	assert.False(t, cfg.Export.Enabled())
	assert.Equal(t, "grpc", cfg.Export.Protocol)
	assert.False(t, cfg.Debug())
}

func TestLoadConfigExport(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppName:           "procura-api",
		Environment:       "staging",
		OTLPEndpoint:      "collector:4318",
		OTLPProtocol:      "http",
		OTLPSamplingRatio: 3,
	})

	assert.True(t, cfg.Export.Enabled())
	assert.Equal(t, "collector:4318", cfg.Export.Endpoint)
	assert.Equal(t, "http", cfg.Export.Protocol)
	assert.Equal(t, 0.1, cfg.Export.SamplingRatio)
}

func TestDebug(t *testing.T) {
	assert.True(t, Config{Environment: "development"}.Debug())
	assert.True(t, Config{Environment: "production", LogLevel: "debug"}.Debug())
	assert.False(t, Config{Environment: "staging"}.Debug())
}
