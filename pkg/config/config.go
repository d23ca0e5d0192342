package config

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gopkg.in/yaml.v3"

	"github.com/polisai/polis-analytics/pkg/analytics"
)

// Config represents the analytics client and tooling configuration.
type Config struct {
	Analytics AnalyticsConfig `yaml:"analytics"`
	Tags      TagsConfig      `yaml:"tags"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
	Sink      SinkConfig      `yaml:"sink"`
}

// AnalyticsConfig configures the client dispatcher and transport.
type AnalyticsConfig struct {
	URL               string        `yaml:"url"`
	BatchSize         int           `yaml:"batch_size"`
	FlushInterval     time.Duration `yaml:"flush_interval"`
	QueueCapacity     int           `yaml:"queue_capacity"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	ResetTimerOnFlush bool          `yaml:"reset_timer_on_flush"`
}

// TagsConfig pins enrichment tags. Empty values fall back to the
// HOSTNAME and ENVIRONMENT variables at enrichment time.
type TagsConfig struct {
	Hostname    string `yaml:"hostname"`
	Environment string `yaml:"environment"`
}

// TelemetryConfig holds OTLP exporter settings.
type TelemetryConfig struct {
	OTLPEndpoint       string            `yaml:"otlp_endpoint"`
	Insecure           bool              `yaml:"insecure"`
	ServiceName        string            `yaml:"service_name"`
	Headers            map[string]string `yaml:"headers"`
	ResourceAttributes map[string]string `yaml:"resource_attributes"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// SinkConfig configures the development ingestion sink.
type SinkConfig struct {
	Address string `yaml:"address"`
}

// Defaults returns the configuration used when no file is given.
func Defaults() *Config {
	return &Config{
		Analytics: AnalyticsConfig{
			URL:             "http://localhost:8094",
			BatchSize:       analytics.DefaultBatchSize,
			FlushInterval:   analytics.DefaultFlushInterval,
			RequestTimeout:  10 * time.Second,
			ShutdownTimeout: analytics.DefaultShutdownTimeout,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "polis-analytics",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Sink: SinkConfig{
			Address: ":8094",
		},
	}
}

// Load reads configuration from a file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg, err := parseFile(path)
	if err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func parseFile(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	//nolint:gosec // Config file path is controlled by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if val := os.Getenv("ANALYTICS_URL"); val != "" {
		cfg.Analytics.URL = val
	}
	if val := os.Getenv("ANALYTICS_BATCH_SIZE"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("ANALYTICS_BATCH_SIZE: %w", err)
		}
		cfg.Analytics.BatchSize = n
	}
	if val := os.Getenv("ANALYTICS_FLUSH_INTERVAL"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("ANALYTICS_FLUSH_INTERVAL: %w", err)
		}
		cfg.Analytics.FlushInterval = d
	}
	if val := os.Getenv("ANALYTICS_QUEUE_CAPACITY"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("ANALYTICS_QUEUE_CAPACITY: %w", err)
		}
		cfg.Analytics.QueueCapacity = n
	}

	if val := os.Getenv("ANALYTICS_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("ANALYTICS_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}
	if val := os.Getenv("ANALYTICS_OTLP_HEADERS"); val != "" {
		headers, err := parseHeaders(val)
		if err != nil {
			return fmt.Errorf("ANALYTICS_OTLP_HEADERS: %w", err)
		}
		if cfg.Telemetry.Headers == nil {
			cfg.Telemetry.Headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			cfg.Telemetry.Headers[k] = v
		}
	}

	if val := os.Getenv("ANALYTICS_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	return nil
}

// parseHeaders reads a comma separated list of key=value pairs.
func parseHeaders(raw string) (map[string]string, error) {
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("malformed header %q, want key=value", pair)
		}
		headers[k] = strings.TrimSpace(v)
	}
	return headers, nil
}

// Validate performs validation of the entire configuration
func (c *Config) Validate() error {
	if err := c.Analytics.Validate(); err != nil {
		return fmt.Errorf("analytics configuration: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging configuration: %w", err)
	}

	if strings.TrimSpace(c.Sink.Address) == "" {
		c.Sink.Address = ":8094"
	}
	return nil
}

// Validate checks the client settings.
func (c *AnalyticsConfig) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", c.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url %q must use http or https", c.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", c.URL)
	}

	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("flush_interval must be positive, got %s", c.FlushInterval)
	}
	if c.QueueCapacity < 0 {
		return fmt.Errorf("queue_capacity must not be negative, got %d", c.QueueCapacity)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must not be negative, got %s", c.RequestTimeout)
	}
	return nil
}

// Validate performs validation of logging configuration
func (c *LoggingConfig) Validate() error {
	// Set default log level if not provided
	if strings.TrimSpace(c.Level) == "" {
		c.Level = "info"
	}

	level := strings.TrimSpace(strings.ToLower(c.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Level = level // Normalize to lowercase
		return nil
	default:
		return fmt.Errorf("invalid log level %q, supported levels: debug, info, warn, error", c.Level)
	}
}

// HTTPClient returns the client used for batch delivery. RequestTimeout
// bounds each POST; zero disables the bound.
func (c *AnalyticsConfig) HTTPClient() *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   c.RequestTimeout,
	}
}

// ClientOptions translates the configuration into client options. The tag
// source is supplied separately so a Watcher can feed live values.
func (c *Config) ClientOptions(tags analytics.TagSource) []analytics.Option {
	opts := []analytics.Option{
		analytics.WithBatchSize(c.Analytics.BatchSize),
		analytics.WithFlushInterval(c.Analytics.FlushInterval),
		analytics.WithQueueCapacity(c.Analytics.QueueCapacity),
		analytics.WithShutdownTimeout(c.Analytics.ShutdownTimeout),
		analytics.WithResetTimerOnFlush(c.Analytics.ResetTimerOnFlush),
		analytics.WithHTTPClient(c.Analytics.HTTPClient()),
	}
	if tags == nil {
		tags = c.Tags.Source()
	}
	return append(opts, analytics.WithTagSource(tags))
}

// Source returns a tag source pinned to the configured values, falling back
// to the environment for any left empty.
func (t TagsConfig) Source() analytics.TagSource {
	return analytics.TagSourceFunc(func() analytics.Tags {
		return t.resolve()
	})
}

func (t TagsConfig) resolve() analytics.Tags {
	tags := analytics.EnvTagSource{}.Tags()
	if t.Hostname != "" {
		host := t.Hostname
		tags.Hostname = &host
	}
	if t.Environment != "" {
		env := t.Environment
		tags.Environment = &env
	}
	return tags
}
