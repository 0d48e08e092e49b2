package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Volflow  VolflowConfig  `yaml:"volflow"`
	Channels ChannelsConfig `yaml:"channels"`
	Feed     FeedConfig     `yaml:"feed"`
	Surface  SurfaceConfig  `yaml:"surface"`
	Writer   WriterConfig   `yaml:"writer"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type VolflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ChannelsConfig struct {
	SurfaceBuffer int `yaml:"surface_buffer"`
}

type FeedConfig struct {
	// Kind selects the tape source: csv | rest | replay.
	Kind      string           `yaml:"kind"`
	Ticker    string           `yaml:"ticker"`
	Date      string           `yaml:"date"` // trading day, YYYY-MM-DD
	CSV       CSVFeedConfig    `yaml:"csv"`
	REST      RESTFeedConfig   `yaml:"rest"`
	Replay    ReplayFeedConfig `yaml:"replay"`
	Timeout   time.Duration    `yaml:"timeout"`
	RateLimit RateLimitConfig  `yaml:"rate_limit"`
	Retry     RetryConfig      `yaml:"retry"`
}

type CSVFeedConfig struct {
	Path string `yaml:"path"`
}

type RESTFeedConfig struct {
	URL            string               `yaml:"url"`
	APIKey         string               `yaml:"api_key"`
	PageSize       int                  `yaml:"page_size"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

type ReplayFeedConfig struct {
	URL             string `yaml:"url"`
	APIKey          string `yaml:"api_key"`
	ReadBufferBytes int    `yaml:"read_buffer_bytes"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier int           `yaml:"backoff_multiplier"`
}

// SurfaceConfig carries the pipeline thresholds and grid geometry. Zero
// values are replaced by the documented defaults in ApplyDefaults.
type SurfaceConfig struct {
	IVMin          float64       `yaml:"iv_min"`
	IVMax          float64       `yaml:"iv_max"`
	MoneynessMin   float64       `yaml:"moneyness_min"`
	MoneynessMax   float64       `yaml:"moneyness_max"`
	MaxDaysToExp   float64       `yaml:"max_days_to_exp"`
	BucketWidth    time.Duration `yaml:"bucket_width"`
	Timezone       string        `yaml:"timezone"`
	MoneynessNodes int           `yaml:"moneyness_nodes"`
	MaturityNodes  int           `yaml:"maturity_nodes"`
	MaturityMin    float64       `yaml:"maturity_min"`
	MaturityMax    float64       `yaml:"maturity_max"`
	MinPoints      int           `yaml:"min_points"`
	MaxWorkers     int           `yaml:"max_workers"`
}

type WriterConfig struct {
	MaxWorkers int             `yaml:"max_workers"`
	Formats    FormatsConfig   `yaml:"formats"`
	Partition  PartitionConfig `yaml:"partitioning"`
}

type FormatsConfig struct {
	JSON    JSONFormatConfig    `yaml:"json"`
	Parquet ParquetFormatConfig `yaml:"parquet"`
}

type JSONFormatConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type ParquetFormatConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Dir         string `yaml:"dir"`
	Compression string `yaml:"compression"`
}

type PartitionConfig struct {
	TimeFormat string `yaml:"time_format"`
}

type StorageConfig struct {
	S3    S3Config    `yaml:"s3"`
	Kafka KafkaConfig `yaml:"kafka"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// envVarRegexp matches ${VAR} placeholders in the raw config file.
var envVarRegexp = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnv(data []byte) []byte {
	return envVarRegexp.ReplaceAllFunc(data, func(m []byte) []byte {
		name := string(envVarRegexp.FindSubmatch(m)[1])
		return []byte(os.Getenv(name))
	})
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(expandEnv(data), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	config.ApplyDefaults()

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// ApplyDefaults fills zero-valued knobs with the documented defaults so a
// minimal config file stays minimal.
func (c *Config) ApplyDefaults() {
	s := &c.Surface
	if s.IVMin == 0 && s.IVMax == 0 {
		s.IVMin, s.IVMax = 0.05, 0.35
	}
	if s.MoneynessMin == 0 && s.MoneynessMax == 0 {
		s.MoneynessMin, s.MoneynessMax = 0.80, 1.20
	}
	if s.MaxDaysToExp == 0 {
		s.MaxDaysToExp = 60
	}
	if s.BucketWidth == 0 {
		s.BucketWidth = 5 * time.Minute
	}
	if s.Timezone == "" {
		s.Timezone = "America/New_York"
	}
	if s.MoneynessNodes == 0 {
		s.MoneynessNodes = 25
	}
	if s.MaturityNodes == 0 {
		s.MaturityNodes = 18
	}
	if s.MaturityMin == 0 && s.MaturityMax == 0 {
		s.MaturityMin, s.MaturityMax = 1, 45
	}
	if s.MinPoints == 0 {
		s.MinPoints = 3
	}
	if s.MaxWorkers == 0 {
		s.MaxWorkers = 4
	}
	if c.Channels.SurfaceBuffer == 0 {
		c.Channels.SurfaceBuffer = 64
	}
	if c.Writer.MaxWorkers == 0 {
		c.Writer.MaxWorkers = 1
	}
	if c.Writer.Partition.TimeFormat == "" {
		c.Writer.Partition.TimeFormat = "date={year}-{month}-{day}"
	}
	if c.Feed.Timeout == 0 {
		c.Feed.Timeout = 30 * time.Second
	}
	if c.Feed.RateLimit.RequestsPerSecond == 0 {
		c.Feed.RateLimit.RequestsPerSecond = 5
	}
	if c.Feed.RateLimit.BurstSize == 0 {
		c.Feed.RateLimit.BurstSize = 1
	}
	if c.Feed.Retry.MaxAttempts == 0 {
		c.Feed.Retry.MaxAttempts = 3
	}
	if c.Feed.Retry.BaseDelay == 0 {
		c.Feed.Retry.BaseDelay = time.Second
	}
	if c.Feed.Retry.MaxDelay == 0 {
		c.Feed.Retry.MaxDelay = 30 * time.Second
	}
	if c.Feed.Retry.BackoffMultiplier == 0 {
		c.Feed.Retry.BackoffMultiplier = 2
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Volflow.Name == "" {
		return fmt.Errorf("volflow.name is required")
	}
	if cfg.Volflow.Version == "" {
		return fmt.Errorf("volflow.version is required")
	}

	switch cfg.Feed.Kind {
	case "csv":
		if cfg.Feed.CSV.Path == "" {
			return fmt.Errorf("feed.csv.path is required for the csv feed")
		}
	case "rest":
		if cfg.Feed.REST.URL == "" {
			return fmt.Errorf("feed.rest.url is required for the rest feed")
		}
	case "replay":
		if cfg.Feed.Replay.URL == "" {
			return fmt.Errorf("feed.replay.url is required for the replay feed")
		}
	default:
		return fmt.Errorf("feed.kind must be one of csv, rest, replay (got %q)", cfg.Feed.Kind)
	}
	if cfg.Feed.Ticker == "" {
		return fmt.Errorf("feed.ticker is required")
	}

	// Production-like runs must not fall back to anonymous vendor access.
	if env := getAppEnvironment(); IsProductionLike(env) {
		switch cfg.Feed.Kind {
		case "rest":
			if cfg.Feed.REST.APIKey == "" {
				return fmt.Errorf("feed.rest.api_key is required in %s", env)
			}
		case "replay":
			if cfg.Feed.Replay.APIKey == "" {
				return fmt.Errorf("feed.replay.api_key is required in %s", env)
			}
		}
	}

	s := cfg.Surface
	if s.IVMin >= s.IVMax {
		return fmt.Errorf("surface.iv_min must be below surface.iv_max")
	}
	if s.MoneynessMin >= s.MoneynessMax {
		return fmt.Errorf("surface.moneyness_min must be below surface.moneyness_max")
	}
	if s.MaxDaysToExp <= 0 {
		return fmt.Errorf("surface.max_days_to_exp must be greater than 0")
	}
	if s.BucketWidth <= 0 {
		return fmt.Errorf("surface.bucket_width must be greater than 0")
	}
	if s.MoneynessNodes < 2 || s.MaturityNodes < 2 {
		return fmt.Errorf("surface grid needs at least 2 nodes per axis")
	}
	if s.MaturityMin >= s.MaturityMax {
		return fmt.Errorf("surface.maturity_min must be below surface.maturity_max")
	}
	if s.MinPoints < 3 {
		return fmt.Errorf("surface.min_points must be at least 3")
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("surface.timezone is invalid: %w", err)
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}
	if cfg.Storage.Kafka.Enabled {
		if len(cfg.Storage.Kafka.Brokers) == 0 {
			return fmt.Errorf("storage.kafka.brokers is required when Kafka is enabled")
		}
		if cfg.Storage.Kafka.Topic == "" {
			return fmt.Errorf("storage.kafka.topic is required when Kafka is enabled")
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}

// Location resolves the configured trading time zone. Validation already
// guarantees the name loads.
func (s SurfaceConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
