package config

import (
	"errors"
	"os"
	"testing"
	"time"
)

func TestLoad_DefaultValues(t *testing.T) {
	for _, key := range []string{
		"APP_ENV", "APP_NAME", "APP_VERSION", "HTTP_ADDR", "METRICS_ADDR", "ADMIN_API_KEY",
		"STORE_TYPE", "QUEUE_TYPE", "QUEUE_WORKERS", "BACKOFF_INITIAL", "BACKOFF_MAX",
		"DELIVERY_TIMEOUT", "SYSTEM_WEBHOOK_URLS", "SYSTEM_WEBHOOK_RETRIES", "REDIS_PREFIX",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.AppEnv != "dev" {
		t.Errorf("Expected AppEnv='dev', got '%s'", cfg.AppEnv)
	}
	if cfg.AppName != "Android-activity-gateway App" {
		t.Errorf("Expected default AppName, got '%s'", cfg.AppName)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("Expected HTTPAddr=':8080', got '%s'", cfg.HTTPAddr)
	}
	if cfg.StoreType != "memory" || cfg.QueueType != "memory" {
		t.Errorf("Expected memory store and queue, got %s/%s", cfg.StoreType, cfg.QueueType)
	}
	if cfg.QueueWorkers != 8 {
		t.Errorf("Expected QueueWorkers=8, got %d", cfg.QueueWorkers)
	}
	if cfg.BackoffInitial != 10*time.Second || cfg.BackoffMax != 5*time.Hour {
		t.Errorf("Unexpected backoff defaults: %s / %s", cfg.BackoffInitial, cfg.BackoffMax)
	}
	if cfg.DeliveryTimeout != 30*time.Second {
		t.Errorf("Expected DeliveryTimeout=30s, got %s", cfg.DeliveryTimeout)
	}
	if cfg.SystemWebhookRetries != 3 {
		t.Errorf("Expected SystemWebhookRetries=3, got %d", cfg.SystemWebhookRetries)
	}
	if len(cfg.SystemWebhookURLs) != 0 {
		t.Errorf("Expected no system webhook urls, got %v", cfg.SystemWebhookURLs)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("STORE_TYPE", "Redis")
	t.Setenv("QUEUE_WORKERS", "3")
	t.Setenv("BACKOFF_INITIAL", "2s")
	t.Setenv("SYSTEM_WEBHOOK_URLS", "https://a.example/hook, ,https://b.example/hook")
	t.Setenv("DEVICE_MODEL", "Pixel 8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.AppEnv != "test" {
		t.Errorf("Expected AppEnv='test', got '%s'", cfg.AppEnv)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Errorf("Expected HTTPAddr=':9999', got '%s'", cfg.HTTPAddr)
	}
	if cfg.StoreType != "redis" {
		t.Errorf("Expected StoreType='redis', got '%s'", cfg.StoreType)
	}
	if cfg.QueueWorkers != 3 {
		t.Errorf("Expected QueueWorkers=3, got %d", cfg.QueueWorkers)
	}
	if cfg.BackoffInitial != 2*time.Second {
		t.Errorf("Expected BackoffInitial=2s, got %s", cfg.BackoffInitial)
	}
	if len(cfg.SystemWebhookURLs) != 2 || cfg.SystemWebhookURLs[1] != "https://b.example/hook" {
		t.Errorf("Unexpected SystemWebhookURLs: %v", cfg.SystemWebhookURLs)
	}
	if cfg.DeviceID() != "Pixel 8" {
		t.Errorf("DeviceID() should fall back to the model, got %q", cfg.DeviceID())
	}
}

func validConfig() Config {
	return Config{
		AppEnv:               "dev",
		AppVersion:           "1.2.3",
		HTTPAddr:             ":8080",
		MetricsAddr:          ":9090",
		AdminAPIKey:          "admin-123",
		StoreType:            "memory",
		QueueType:            "memory",
		QueueWorkers:         8,
		QueuePollInterval:    time.Second,
		BackoffInitial:       10 * time.Second,
		BackoffMax:           time.Hour,
		DeliveryTimeout:      30 * time.Second,
		RateLimitPerIP:       100,
		SystemWebhookRetries: 3,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown store", func(c *Config) { c.StoreType = "sqlite" }, "STORE_TYPE"},
		{"unknown queue", func(c *Config) { c.QueueType = "kafka" }, "QUEUE_TYPE"},
		{"postgres without dsn", func(c *Config) { c.StoreType = "postgres" }, "DB_DSN"},
		{"file without path", func(c *Config) { c.StoreType = "file" }, "STORE_FILE"},
		{"nats without url", func(c *Config) { c.StoreType = "nats" }, "NATS_URL"},
		{"redis queue without addr", func(c *Config) { c.QueueType = "redis" }, "REDIS_ADDR"},
		{"empty http addr", func(c *Config) { c.HTTPAddr = "" }, "HTTP_ADDR"},
		{"bad version", func(c *Config) { c.AppVersion = "latest" }, "APP_VERSION"},
		{"no workers", func(c *Config) { c.QueueWorkers = 0 }, "QUEUE_WORKERS"},
		{"max below initial", func(c *Config) { c.BackoffMax = time.Second }, "BACKOFF_MAX"},
		{"negative system retries", func(c *Config) { c.SystemWebhookRetries = -1 }, "SYSTEM_WEBHOOK_RETRIES"},
		{"bad system url", func(c *Config) { c.SystemWebhookURLs = []string{"ftp://x"} }, "SYSTEM_WEBHOOK_URLS"},
		{"default key in prod", func(c *Config) { c.AppEnv = "prod" }, "ADMIN_API_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("Validate() field = %s, want %s", verr.Field, tt.wantField)
			}
		})
	}
}

func TestLoad_SimSettings(t *testing.T) {
	t.Setenv("SIM_STATE", "SIM_READY")
	t.Setenv("SIM_OPERATOR", "Acme")
	t.Setenv("SIM_COUNTRY", "us")
	t.Setenv("SIM_SLOTS", "Work, Home:Other:de")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	d := cfg.Device
	if d.SimState != "SIM_READY" || d.SimOperator != "Acme" || d.SimCountry != "us" {
		t.Errorf("Unexpected SIM settings: %+v", d)
	}
	want := []SimSlot{{Name: "Work"}, {Name: "Home", Operator: "Other", Country: "de"}}
	if len(d.SimSlots) != len(want) {
		t.Fatalf("Expected %d slots, got %v", len(want), d.SimSlots)
	}
	for i := range want {
		if d.SimSlots[i] != want[i] {
			t.Errorf("slot %d: got %+v, want %+v", i, d.SimSlots[i], want[i])
		}
	}
}

func TestDeviceID_Fallbacks(t *testing.T) {
	host, err := os.Hostname()
	if err != nil {
		t.Skipf("no hostname: %v", err)
	}

	tests := []struct {
		name   string
		device DeviceConfig
		want   string
	}{
		{"explicit id", DeviceConfig{ID: "gw-1", Model: "Pixel 8"}, "gw-1"},
		{"model", DeviceConfig{Model: "Pixel 8"}, "Pixel 8"},
		{"hostname", DeviceConfig{}, host},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Device: tt.device}
			if got := cfg.DeviceID(); got != tt.want {
				t.Errorf("DeviceID() = %q, want %q", got, tt.want)
			}
		})
	}
}
