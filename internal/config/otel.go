package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultOTLPEndpoint is the local collector's OTLP/HTTP address.
const DefaultOTLPEndpoint = "localhost:4318"

// OTELConfig holds the OTLP exporter settings read from the standard OTEL_*
// variables.
type OTELConfig struct {
	ServiceName        string `env:"OTEL_SERVICE_NAME" envDefault:"rtems-tracer"`
	ResourceAttributes string `env:"OTEL_RESOURCE_ATTRIBUTES"`
	ExporterEndpoint   string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TracesEndpoint     string `env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"`
	// Headers are sent with every export, e.g. collector credentials.
	Headers map[string]string `env:"OTEL_EXPORTER_OTLP_HEADERS" envKeyValSeparator:"="`
	// Insecure applies to endpoints given without a scheme.
	Insecure bool `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
}

// ParseOTELConfig reads the OTLP settings from the environment.
func ParseOTELConfig() (*OTELConfig, error) {
	var cfg OTELConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse OTEL config: %w", err)
	}
	return &cfg, nil
}

// Endpoint returns the host:port traces are exported to and whether the
// connection is plain HTTP. The traces endpoint wins over the generic one.
// An http:// or https:// scheme overrides Insecure.
func (c *OTELConfig) Endpoint() (string, bool) {
	endpoint := c.TracesEndpoint
	if endpoint == "" {
		endpoint = c.ExporterEndpoint
	}
	if endpoint == "" {
		return DefaultOTLPEndpoint, c.Insecure
	}

	insecure := c.Insecure
	if rest, ok := strings.CutPrefix(endpoint, "http://"); ok {
		endpoint, insecure = rest, true
	} else if rest, ok := strings.CutPrefix(endpoint, "https://"); ok {
		endpoint, insecure = rest, false
	}
	if host, _, found := strings.Cut(endpoint, "/"); found {
		endpoint = host
	}
	return endpoint, insecure
}

// ParseResourceAttributes parses OTEL_RESOURCE_ATTRIBUTES (key1=value1,key2=value2).
// Entries without '=' or with an empty key are skipped.
func (c *OTELConfig) ParseResourceAttributes() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for _, pair := range strings.Split(c.ResourceAttributes, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		attrs = append(attrs, attribute.String(key, strings.TrimSpace(value)))
	}
	return attrs
}
