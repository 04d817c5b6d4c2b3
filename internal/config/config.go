package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	ElasticsearchURLs          []string `envconfig:"ELASTICSEARCH_URLS" default:"http://localhost:9200"`
	ElasticsearchUsername      string   `envconfig:"ELASTICSEARCH_USERNAME"`
	ElasticsearchPassword      string   `envconfig:"ELASTICSEARCH_PASSWORD"`
	ElasticsearchSkipTLSVerify bool     `envconfig:"ELASTICSEARCH_SKIP_TLS_VERIFY" default:"false"`

	MappingsFile         string `envconfig:"ESDATA_MAPPINGS_FILE" default:"mappings.yaml"`
	PlanFile             string `envconfig:"ESDATA_PLAN_FILE"`
	FixturesDir          string `envconfig:"ESDATA_FIXTURES_DIR" default:"."`
	TransformConcurrency int    `envconfig:"ESDATA_TRANSFORM_CONCURRENCY" default:"0"` // 0 = GOMAXPROCS

	// Object store, only used for s3:// locations
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey string `envconfig:"S3_SECRET_KEY"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3UseSSL    bool   `envconfig:"S3_USE_SSL" default:"false"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars might be set in the shell, so a missing .env is fine
	_ = godotenv.Load(".env")

	// Test binaries run inside the package directory
	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if len(c.ElasticsearchURLs) == 0 {
		return fmt.Errorf("%w: ELASTICSEARCH_URLS", ErrMissingRequired)
	}
	if c.MappingsFile == "" {
		return fmt.Errorf("%w: ESDATA_MAPPINGS_FILE", ErrMissingRequired)
	}
	if c.S3Endpoint != "" && (c.S3AccessKey == "" || c.S3SecretKey == "") {
		return fmt.Errorf("%w: S3_ACCESS_KEY and S3_SECRET_KEY are required with S3_ENDPOINT", ErrMissingRequired)
	}
	return nil
}
