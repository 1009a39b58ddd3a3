package delivery

import (
	"errors"
	"time"

	"github.com/ManuelReschke/AssetVault/internal/pkg/env"
)

// Config holds download delivery configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Enabled         bool

	// URLTTL is how long a presigned link stays valid.
	URLTTL time.Duration
	// PublicBaseURL serves objects directly when S3 signing is disabled.
	PublicBaseURL string
}

// LoadConfig loads delivery configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		Enabled:         env.GetBool("S3_DOWNLOADS_ENABLED", false),
		URLTTL:          env.GetDuration("DOWNLOAD_URL_TTL", 15*time.Minute),
		PublicBaseURL:   env.GetEnv("DOWNLOAD_BASE_URL", ""),
	}
	return config, config.Validate()
}

// Validate checks required fields for the selected mode.
func (c *Config) Validate() error {
	if c.Enabled {
		if c.AccessKeyID == "" {
			return errors.New("S3_ACCESS_KEY_ID is required when S3 downloads are enabled")
		}
		if c.SecretAccessKey == "" {
			return errors.New("S3_SECRET_ACCESS_KEY is required when S3 downloads are enabled")
		}
		if c.BucketName == "" {
			return errors.New("S3_BUCKET_NAME is required when S3 downloads are enabled")
		}
		return nil
	}
	if c.PublicBaseURL == "" {
		return errors.New("DOWNLOAD_BASE_URL is required when S3 downloads are disabled")
	}
	return nil
}
