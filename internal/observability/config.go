package observability

import (
	"strings"

	"github.com/smallbiznis/procura/internal/config"
)

// Config is the part of the application configuration that tracing, metrics
// and request logging read.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	LogLevel    string

	Export ExportConfig
}

// ExportConfig points the OTLP exporters at a collector. Export is off when
// no endpoint is configured.
type ExportConfig struct {
	Endpoint      string
	Protocol      string
	SamplingRatio float64
}

func (e ExportConfig) Enabled() bool {
	return e.Endpoint != ""
}

func LoadConfig(cfg config.Config) Config {
	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = "procura"
	}

	protocol := cfg.OTLPProtocol
	if protocol == "" {
		protocol = "grpc"
	}
	ratio := cfg.OTLPSamplingRatio
	if ratio < 0 || ratio > 1 {
		ratio = 0.1
	}

	return Config{
		ServiceName: name,
		Environment: strings.ToLower(strings.TrimSpace(cfg.Environment)),
		Version:     strings.TrimSpace(cfg.AppVersion),
		LogLevel:    cfg.LogLevel,
		Export: ExportConfig{
			Endpoint:      cfg.OTLPEndpoint,
			Protocol:      protocol,
			SamplingRatio: ratio,
		},
	}
}

// Debug turns on verbose request logging outside production-like
// environments or when the log level asks for it.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch c.Environment {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
