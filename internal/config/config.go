// Package config loads the tracer configuration.
//
// Sources are applied in order, each overriding the previous one:
//   - RTEMS_TRACER_* environment variables, with defaults
//   - an optional YAML file (LoadFile)
//   - command-line flags, applied by the caller
//
// Finalize derives the remaining fields and validates the result.
package config

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every tracer environment variable.
const EnvPrefix = "RTEMS_TRACER_"

// Output sinks.
const (
	OutputConsole = "console"
	OutputOTEL    = "otel"
	OutputBoth    = "both"
)

// CustomAttribute is a NAME=EXPR span attribute definition.
type CustomAttribute struct {
	Name       string
	Expression string
}

// Config holds the tracer configuration.
type Config struct {
	// Top is the IOC name the stats PVs live under.
	Top string `env:"TOP" mapstructure:"top"`
	// Prefix overrides the PV prefix derived from Top.
	Prefix string `env:"PREFIX" mapstructure:"prefix"`

	NATSURL   string `env:"NATS_URL" envDefault:"nats://127.0.0.1:4222" mapstructure:"nats_url"`
	ByteOrder string `env:"BYTE_ORDER" envDefault:"little" mapstructure:"byte_order"`

	RTEMSPriorities bool   `env:"RTEMS_PRIORITIES" mapstructure:"rtems_priorities"`
	Color           bool   `env:"COLOR" envDefault:"true" mapstructure:"color"`
	Output          string `env:"OUTPUT" envDefault:"console" mapstructure:"output"`
	Filter          string `env:"FILTER" mapstructure:"filter"`
	Attributes      string `env:"ATTRIBUTES" mapstructure:"attributes"`
	TraceID         string `env:"TRACE_ID" mapstructure:"trace_id"`
	ParentID        string `env:"PARENT_ID" mapstructure:"parent_id"`

	DatasetTTL  time.Duration `env:"DATASET_TTL" envDefault:"30s" mapstructure:"dataset_ttl"`
	QueueSize   int           `env:"QUEUE_SIZE" envDefault:"1024" mapstructure:"queue_size"`
	RetiredKeys int           `env:"RETIRED_KEYS" envDefault:"4096" mapstructure:"retired_keys"`

	MetricsAddr    string `env:"METRICS_ADDR" mapstructure:"metrics_addr"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info" mapstructure:"log_level"`
	LogDevelopment bool   `env:"LOG_DEVELOPMENT" mapstructure:"log_development"`

	// CustomAttributes is parsed from Attributes by Finalize.
	CustomAttributes []CustomAttribute `env:"-" mapstructure:"-"`
}

// ParseEnvConfig reads the configuration from the environment.
func ParseEnvConfig() (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment config: %w", err)
	}
	return &cfg, nil
}

// Defaults returns the configuration built from the envDefault tags alone,
// ignoring the process environment.
func Defaults() Config {
	var cfg Config
	_ = env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix, Environment: map[string]string{}}) //nolint:errcheck // envDefault tags are constant
	return cfg
}

// LoadFile overlays the keys present in a YAML file onto cfg.
func LoadFile(path string, cfg *Config) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	return nil
}

// Finalize derives the PV prefix, parses custom attributes and validates.
func (c *Config) Finalize() error {
	c.Top = strings.TrimSpace(c.Top)
	if c.Prefix == "" {
		if c.Top == "" {
			return fmt.Errorf("top name is required")
		}
		c.Prefix = StatsPrefix(c.Top)
	}

	switch c.Output {
	case OutputConsole, OutputOTEL, OutputBoth:
	default:
		return fmt.Errorf("invalid output %q: must be one of %s, %s, %s", c.Output, OutputConsole, OutputOTEL, OutputBoth)
	}

	if _, err := c.Order(); err != nil {
		return err
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive, got %d", c.QueueSize)
	}

	attrs, err := ParseAttributeString(c.Attributes)
	if err != nil {
		return err
	}
	c.CustomAttributes = attrs
	return nil
}

// Order returns the configured record byte order.
func (c *Config) Order() (binary.ByteOrder, error) {
	switch strings.ToLower(c.ByteOrder) {
	case "", "little", "le":
		return binary.LittleEndian, nil
	case "big", "be":
		return binary.BigEndian, nil
	default:
		return nil, fmt.Errorf("invalid byte order %q: must be little or big", c.ByteOrder)
	}
}

// WantsConsole reports whether transitions are printed.
func (c *Config) WantsConsole() bool {
	return c.Output == OutputConsole || c.Output == OutputBoth
}

// WantsOTEL reports whether transitions are exported as spans.
func (c *Config) WantsOTEL() bool {
	return c.Output == OutputOTEL || c.Output == OutputBoth
}

// StatsPrefix returns the PV prefix of the stats record of top.
func StatsPrefix(top string) string {
	return top + ":rtems:stats"
}

// ParseAttributeString parses "NAME=EXPR;NAME=EXPR" definitions.
func ParseAttributeString(s string) ([]CustomAttribute, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	var attrs []CustomAttribute
	for _, section := range strings.Split(s, ";") {
		section = strings.TrimSpace(section)
		if section == "" {
			continue
		}
		attr, err := ParseAttribute(section)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

// ParseAttribute parses a single NAME=EXPR definition.
// Only the first '=' separates name from expression.
func ParseAttribute(s string) (CustomAttribute, error) {
	parts := strings.SplitN(s, "=", 2)
	if len(parts) != 2 {
		return CustomAttribute{}, fmt.Errorf("invalid attribute format %q: expected NAME=EXPR", s)
	}
	name := strings.TrimSpace(parts[0])
	expression := strings.TrimSpace(parts[1])
	if name == "" {
		return CustomAttribute{}, fmt.Errorf("invalid attribute %q: name cannot be empty", s)
	}
	if expression == "" {
		return CustomAttribute{}, fmt.Errorf("invalid attribute %q: expression cannot be empty", s)
	}
	return CustomAttribute{Name: name, Expression: expression}, nil
}
