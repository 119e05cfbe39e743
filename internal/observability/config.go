package observability

import (
	"os"
	"strconv"
	"strings"

	"github.com/iamafoodie/buddy/internal/config"
)

// Config carries the logging and tracing settings. Identity comes from the
// application config; the standard OTEL_* variables still win for the
// exporter so deploy tooling can redirect traces without touching app
// settings.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	TraceEnabled  bool
	TraceEndpoint string
	TraceProtocol string
	TraceSampling float64
}

func LoadConfig(cfg config.Config) Config {
	service := strings.TrimSpace(cfg.AppName)
	if service == "" {
		service = "buddy"
	}

	traceEnabled := false
	if v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv("OTEL_ENABLED"))); err == nil {
		traceEnabled = v
	}
	sampling := 0.1
	if v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv("OTEL_SAMPLING_RATIO")), 64); err == nil {
		sampling = v
	}

	return Config{
		ServiceName:   service,
		Environment:   strings.TrimSpace(cfg.Environment),
		Version:       strings.TrimSpace(cfg.AppVersion),
		LogLevel:      strings.ToLower(envOr("LOG_LEVEL", "info")),
		LogFormat:     strings.ToLower(envOr("LOG_FORMAT", "json")),
		TraceEnabled:  traceEnabled,
		TraceEndpoint: envOr("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint),
		TraceProtocol: strings.ToLower(envOr("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
		TraceSampling: sampling,
	}
}

// Debug reports whether verbose, human-oriented output is wanted. True
// for an explicit debug level and for non-production environments.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
