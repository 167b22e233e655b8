package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidPeriod     = errors.New("clustering period must be a positive duration")
	ErrInvalidWorkers    = errors.New("engine num_workers must be positive")
	ErrUnknownWriter     = errors.New("unknown writer type")
	ErrInvalidInterval   = errors.New("writer snapshot_interval must be a positive duration")
	ErrInvalidDanger     = errors.New("alerter min_danger_score must be within [0, 1]")
	ErrInvalidLogLevel   = errors.New("unknown logging level")
	ErrMissingSMTPTarget = errors.New("smtp host is set but no recipients are configured")
)

// ClusteringConfig controls how and how often sources are clustered.
type ClusteringConfig struct {
	Method              string `yaml:"method"`
	Clusters            int    `yaml:"clusters"`
	Period              string `yaml:"period"`
	MinPacketsPerSource int    `yaml:"min_packets_per_source"`
}

// EngineConfig sizes the packet processing worker pool.
type EngineConfig struct {
	NumWorkers          int    `yaml:"num_workers"`
	SizeOfPacketChannel int    `yaml:"size_of_packet_channel"`
	NumShards           uint32 `yaml:"num_shards"`
}

// NATSConfig holds the NATS connection and subjects used by the probe and the engine.
type NATSConfig struct {
	URL               string `yaml:"url"`
	PacketSubject     string `yaml:"packet_subject"`
	AssessmentSubject string `yaml:"assessment_subject"`
}

// ClickHouseConfig holds the connection details for ClickHouse.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// GobConfig holds the settings for the on-disk gob writer.
type GobConfig struct {
	RootPath string `yaml:"root_path"`
}

// WriterDef defines one output writer.
type WriterDef struct {
	Type             string           `yaml:"type"`
	Enabled          bool             `yaml:"enabled"`
	SnapshotInterval string           `yaml:"snapshot_interval"`
	ClickHouse       ClickHouseConfig `yaml:"clickhouse"`
	Gob              GobConfig        `yaml:"gob"`
}

// Interval parses SnapshotInterval.
func (w WriterDef) Interval() (time.Duration, error) {
	d, err := time.ParseDuration(w.SnapshotInterval)
	if err != nil {
		return 0, fmt.Errorf("writer '%s': %w", w.Type, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("writer '%s': %w", w.Type, ErrInvalidInterval)
	}
	return d, nil
}

// APIConfig holds the listen addresses of the API server.
type APIConfig struct {
	ListenAddr     string `yaml:"listen_addr"`
	GRPCListenAddr string `yaml:"grpc_listen_addr"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Namespace  string `yaml:"namespace"`
	ListenAddr string `yaml:"listen_addr"`
	Path       string `yaml:"path"`
}

// AIConfig holds the settings of the OpenAI-compatible analysis backend.
type AIConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"`
}

// AlerterConfig controls notifications about dangerous clusters.
type AlerterConfig struct {
	Enabled        bool     `yaml:"enabled"`
	MinDangerScore float64  `yaml:"min_danger_score"`
	TopSources     int      `yaml:"top_sources"`
	AI             AIConfig `yaml:"ai"`
}

// SMTPConfig holds the settings for the email notifier.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// LoggingConfig selects the log level and output format.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Clustering ClusteringConfig `yaml:"clustering"`
	Engine     EngineConfig     `yaml:"engine"`
	NATS       NATSConfig       `yaml:"nats"`
	Writers    []WriterDef      `yaml:"writers"`
	API        APIConfig        `yaml:"api"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Alerter    AlerterConfig    `yaml:"alerter"`
	SMTP       SMTPConfig       `yaml:"smtp"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads the configuration from a YAML file, fills in defaults and validates it.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration data, fills in defaults and validates it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Clustering.Method == "" {
		c.Clustering.Method = "kmeans"
	}
	if c.Clustering.Clusters == 0 {
		c.Clustering.Clusters = 3
	}
	if c.Clustering.Period == "" {
		c.Clustering.Period = "1m"
	}
	if c.Clustering.MinPacketsPerSource == 0 {
		c.Clustering.MinPacketsPerSource = 2
	}

	if c.Engine.NumWorkers == 0 {
		c.Engine.NumWorkers = 4
	}
	if c.Engine.SizeOfPacketChannel == 0 {
		c.Engine.SizeOfPacketChannel = 10000
	}
	if c.Engine.NumShards == 0 {
		c.Engine.NumShards = 64
	}

	if c.NATS.URL == "" {
		c.NATS.URL = "nats://127.0.0.1:4222"
	}
	if c.NATS.PacketSubject == "" {
		c.NATS.PacketSubject = "sentry.packets"
	}
	if c.NATS.AssessmentSubject == "" {
		c.NATS.AssessmentSubject = "sentry.assessments"
	}

	for i := range c.Writers {
		if c.Writers[i].SnapshotInterval == "" {
			c.Writers[i].SnapshotInterval = c.Clustering.Period
		}
		if c.Writers[i].Type == "gob" && c.Writers[i].Gob.RootPath == "" {
			c.Writers[i].Gob.RootPath = "./data/snapshots"
		}
		if c.Writers[i].Type == "clickhouse" && c.Writers[i].ClickHouse.Port == 0 {
			c.Writers[i].ClickHouse.Port = 9000
		}
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.API.GRPCListenAddr == "" {
		c.API.GRPCListenAddr = ":9091"
	}

	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "sentry"
	}
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Alerter.MinDangerScore == 0 {
		c.Alerter.MinDangerScore = 0.6
	}
	if c.Alerter.TopSources == 0 {
		c.Alerter.TopSources = 5
	}
	if c.Alerter.AI.Timeout == "" {
		c.Alerter.AI.Timeout = "60s"
	}

	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	period, err := time.ParseDuration(c.Clustering.Period)
	if err != nil {
		return fmt.Errorf("clustering period: %w", err)
	}
	if period <= 0 {
		return ErrInvalidPeriod
	}
	if c.Engine.NumWorkers < 0 {
		return ErrInvalidWorkers
	}

	for _, w := range c.Writers {
		switch w.Type {
		case "gob", "clickhouse":
		default:
			return fmt.Errorf("%w: '%s'", ErrUnknownWriter, w.Type)
		}
		if !w.Enabled {
			continue
		}
		if _, err := w.Interval(); err != nil {
			return err
		}
	}

	if c.Alerter.MinDangerScore < 0 || c.Alerter.MinDangerScore > 1 {
		return ErrInvalidDanger
	}
	if c.SMTP.Host != "" && strings.TrimSpace(c.SMTP.To) == "" {
		return ErrMissingSMTPTarget
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: '%s'", ErrInvalidLogLevel, c.Logging.Level)
	}
	return nil
}

// ClusteringPeriod returns the parsed clustering period.
func (c *Config) ClusteringPeriod() time.Duration {
	d, _ := time.ParseDuration(c.Clustering.Period)
	return d
}

// AITimeout returns the parsed AI request timeout, or 60s when it cannot be parsed.
func (c *Config) AITimeout() time.Duration {
	d, err := time.ParseDuration(c.Alerter.AI.Timeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// ClickHouse returns the first enabled ClickHouse writer configuration, if any.
func (c *Config) ClickHouse() (ClickHouseConfig, bool) {
	for _, w := range c.Writers {
		if w.Enabled && w.Type == "clickhouse" {
			return w.ClickHouse, true
		}
	}
	return ClickHouseConfig{}, false
}
