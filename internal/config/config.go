package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileEnvVar names the optional YAML overlay file.
const FileEnvVar = "CREDLY_CONFIG_FILE"

// State backends.
const (
	StateBackendAWS    = "aws"
	StateBackendRedis  = "redis"
	StateBackendMemory = "memory"
)

// Config is the complete ingester configuration.
//
// Values come from, in increasing precedence: defaults, the YAML file named
// by CREDLY_CONFIG_FILE, the environment.
type Config struct {
	Env       string `yaml:"env"`
	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`

	AWSRegion          string `yaml:"aws_region"`
	LocalstackEndpoint string `yaml:"localstack_endpoint"`
	AWSAccessKeyID     string `yaml:"aws_access_key_id"`
	AWSSecretAccessKey string `yaml:"aws_secret_access_key"`

	SecretName string `yaml:"secrets_manager_key"`

	HTTPTimeout         time.Duration `yaml:"http_timeout"`
	MaxRetries          int           `yaml:"max_retries"`
	RetryInitialBackoff time.Duration `yaml:"retry_initial_backoff"`
	RequestsPerSecond   float64       `yaml:"requests_per_second"`

	CredlyBaseURL string `yaml:"credly_base_url"`
	CredlyOrgID   string `yaml:"credly_org_id"`

	Bucket          string `yaml:"s3_bucket_name"`
	PartitionPrefix string `yaml:"partition_prefix"`

	MetadataTable   string `yaml:"metadata_table_name"`
	WatermarkPrefix string `yaml:"watermark_parameter_prefix"`
	StateBackend    string `yaml:"state_backend"`
	RedisURL        string `yaml:"redis_url"`

	TemplateChunkSize int `yaml:"template_chunk_size"`

	// TemplateMaxPages caps the template walk. 0 walks every page.
	TemplateMaxPages int `yaml:"template_max_pages"`

	PushgatewayURL string `yaml:"pushgateway_url"`

	// ListenAddr is where the serve command accepts invocations.
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Env:                 "DEV",
		LogLevel:            "INFO",
		AWSRegion:           "us-east-1",
		SecretName:          "my-app/credentials",
		HTTPTimeout:         30 * time.Second,
		MaxRetries:          3,
		RetryInitialBackoff: time.Second,
		CredlyBaseURL:       "https://api.credly.com/v1",
		Bucket:              "my-datalake-bucket",
		PartitionPrefix:     "raw",
		MetadataTable:       "credly-ingestion-metadata",
		WatermarkPrefix:     "/credly/watermark",
		StateBackend:        StateBackendAWS,
		RedisURL:            "redis://localhost:6379/0",
		TemplateChunkSize:   1000,
		ListenAddr:          ":8080",
	}
}

// Load builds the configuration from defaults, the optional YAML file and the
// environment, then validates it.
func Load() (*Config, error) {
	cfg := Default()

	if path := GetEnvStr(FileEnvVar, ""); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	cfg.overlayEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overlayFile applies the YAML file on top of cfg. A missing file is not an
// error.
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// overlayEnv applies environment variables on top of cfg.
func (c *Config) overlayEnv() {
	c.Env = GetEnvStr("ENV", c.Env)
	c.LogLevel = GetEnvStr("LOG_LEVEL", c.LogLevel)
	c.LogPretty = GetEnvBool("LOG_PRETTY", c.LogPretty)

	c.AWSRegion = GetEnvStr("AWS_REGION", c.AWSRegion)
	c.LocalstackEndpoint = GetEnvStr("LOCALSTACK_ENDPOINT", c.LocalstackEndpoint)
	c.AWSAccessKeyID = GetEnvStr("AWS_ACCESS_KEY_ID", c.AWSAccessKeyID)
	c.AWSSecretAccessKey = GetEnvStr("AWS_SECRET_ACCESS_KEY", c.AWSSecretAccessKey)

	c.SecretName = GetEnvStr("SECRETS_MANAGER_KEY", c.SecretName)

	c.HTTPTimeout = GetEnvDuration("HTTP_TIMEOUT", c.HTTPTimeout)
	c.MaxRetries = GetEnvInt("MAX_RETRIES", c.MaxRetries)
	c.RetryInitialBackoff = GetEnvDuration("RETRY_INITIAL_BACKOFF", c.RetryInitialBackoff)
	c.RequestsPerSecond = GetEnvFloat("REQUESTS_PER_SECOND", c.RequestsPerSecond)

	c.CredlyBaseURL = GetEnvStr("CREDLY_BASE_URL", c.CredlyBaseURL)
	c.CredlyOrgID = GetEnvStr("CREDLY_ORG_ID", c.CredlyOrgID)

	c.Bucket = GetEnvStr("S3_BUCKET_NAME", c.Bucket)
	c.PartitionPrefix = GetEnvStr("PARTITION_PREFIX", c.PartitionPrefix)

	c.MetadataTable = GetEnvStr("METADATA_TABLE_NAME", c.MetadataTable)
	c.WatermarkPrefix = GetEnvStr("WATERMARK_PARAMETER_PREFIX", c.WatermarkPrefix)
	c.StateBackend = strings.ToLower(GetEnvStr("STATE_BACKEND", c.StateBackend))
	c.RedisURL = GetEnvStr("REDIS_URL", c.RedisURL)

	c.TemplateChunkSize = GetEnvInt("TEMPLATE_CHUNK_SIZE", c.TemplateChunkSize)
	c.TemplateMaxPages = GetEnvInt("TEMPLATE_MAX_PAGES", c.TemplateMaxPages)

	c.PushgatewayURL = GetEnvStr("PUSHGATEWAY_URL", c.PushgatewayURL)
	c.ListenAddr = GetEnvStr("LISTEN_ADDR", c.ListenAddr)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.CredlyOrgID == "" {
		return errors.New("CREDLY_ORG_ID is required")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be > 0 (got %s)", c.HTTPTimeout)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be >= 1 (got %d)", c.MaxRetries)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("REQUESTS_PER_SECOND must be >= 0 (got %v)", c.RequestsPerSecond)
	}
	if c.TemplateChunkSize <= 0 {
		return fmt.Errorf("TEMPLATE_CHUNK_SIZE must be > 0 (got %d)", c.TemplateChunkSize)
	}
	if c.TemplateMaxPages < 0 {
		return fmt.Errorf("TEMPLATE_MAX_PAGES must be >= 0 (got %d)", c.TemplateMaxPages)
	}
	switch c.StateBackend {
	case StateBackendAWS, StateBackendRedis, StateBackendMemory:
	default:
		return fmt.Errorf("STATE_BACKEND must be one of aws, redis, memory (got %q)", c.StateBackend)
	}
	return nil
}
