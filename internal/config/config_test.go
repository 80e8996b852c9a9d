package config

import (
	"reflect"
	"testing"
	"time"
)

func TestParseEmails(t *testing.T) {
	got := ParseEmails(" Admin@Example.com , ,other@example.com,admin@example.com")
	want := []string{"admin@example.com", "other@example.com"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseEmails = %v, want %v", got, want)
	}
	if got := ParseEmails(""); len(got) != 0 {
		t.Fatalf("expected no emails, got %v", got)
	}
}

func TestRateLimitNormalized(t *testing.T) {
	c := RateLimitConfig{Capacity: 0, RefillTokens: 0, RefillInterval: 0, TTL: time.Second}.normalized()
	if c.Capacity != 1 || c.RefillTokens != 1 {
		t.Fatalf("expected capacity and refill clamped to 1, got %+v", c)
	}
	if c.RefillInterval != time.Second {
		t.Fatalf("expected 1s refill interval, got %s", c.RefillInterval)
	}
	if c.TTL != 5*time.Second {
		t.Fatalf("expected ttl raised to 5s, got %s", c.TTL)
	}
}

func TestLoadNotifyConfigFallsBackToQueue(t *testing.T) {
	t.Setenv("NOTIFY_MODE", "carrier-pigeon")
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("AMQP_URL", "amqp://u:p@mq:5672/")
	cfg := LoadNotifyConfig()
	if cfg.Mode != NotifyQueue {
		t.Fatalf("expected queue mode, got %q", cfg.Mode)
	}
	if cfg.AMQPURL != "amqp://u:p@mq:5672/" {
		t.Fatalf("expected AMQP_URL fallback, got %q", cfg.AMQPURL)
	}
}

func TestLoadStorageConfigPublicBase(t *testing.T) {
	t.Setenv("STORAGE_ENDPOINT", "files.local:9000")
	t.Setenv("STORAGE_USE_SSL", "true")
	t.Setenv("STORAGE_PUBLIC_BASE_URL", "")
	cfg := LoadStorageConfig()
	if cfg.PublicBaseURL != "https://files.local:9000" {
		t.Fatalf("unexpected public base %q", cfg.PublicBaseURL)
	}
	if cfg.RequestBucket != "request-images" || cfg.ShowcaseBucket != "showcase" {
		t.Fatalf("unexpected buckets %+v", cfg)
	}
}
