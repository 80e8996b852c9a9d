package config

import "strings"

// StorageConfig describes the S3-compatible object store holding request
// reference images and showcase photos.
type StorageConfig struct {
	Endpoint       string // host:port of the MinIO/S3 endpoint
	AccessKey      string
	SecretKey      string
	UseSSL         bool
	Region         string
	PublicBaseURL  string // base used to build public object URLs
	RequestBucket  string
	ShowcaseBucket string
}

// LoadStorageConfig reads STORAGE_* variables.  PublicBaseURL defaults to
// the endpoint itself, which is what a public-read MinIO bucket serves.
func LoadStorageConfig() StorageConfig {
	cfg := StorageConfig{
		Endpoint:       envStr("STORAGE_ENDPOINT", "localhost:9000"),
		AccessKey:      envStr("STORAGE_ACCESS_KEY", "minioadmin"),
		SecretKey:      envStr("STORAGE_SECRET_KEY", "minioadmin"),
		UseSSL:         envBool("STORAGE_USE_SSL", false),
		Region:         envStr("STORAGE_REGION", "us-east-1"),
		PublicBaseURL:  envStr("STORAGE_PUBLIC_BASE_URL", ""),
		RequestBucket:  envStr("STORAGE_REQUEST_BUCKET", "request-images"),
		ShowcaseBucket: envStr("STORAGE_SHOWCASE_BUCKET", "showcase"),
	}
	if cfg.PublicBaseURL == "" {
		scheme := "http://"
		if cfg.UseSSL {
			scheme = "https://"
		}
		cfg.PublicBaseURL = scheme + cfg.Endpoint
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	return cfg
}
