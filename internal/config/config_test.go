package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "POSTGRES_URL", "PGHOST", "REDIS_URL", "REDISCLOUD_URL", "REDISHOST", "BUSINESS_NAME", "SUPPLIER_SEARCH_DEBOUNCE", "DB_MAX_OPEN_CONNS", "DB_CONNECT_ATTEMPTS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.DatabaseURL != "" || cfg.RedisURL != "" {
		t.Errorf("storage must be disabled by default, got %q %q", cfg.DatabaseURL, cfg.RedisURL)
	}
	if cfg.BusinessName != "Rao He Restaurant" {
		t.Errorf("BusinessName = %q", cfg.BusinessName)
	}
	if cfg.SupplierSearchDebounce != 300*time.Millisecond {
		t.Errorf("SupplierSearchDebounce = %v", cfg.SupplierSearchDebounce)
	}
	if cfg.DBMaxOpenConns != 10 || cfg.DBConnectAttempts != 3 {
		t.Errorf("postgres pool = %d conns, %d attempts", cfg.DBMaxOpenConns, cfg.DBConnectAttempts)
	}
	if cfg.KafkaContactTopic != "supplier-contacts" {
		t.Errorf("KafkaContactTopic = %q", cfg.KafkaContactTopic)
	}
}

func TestLoadBuildsURLsFromParts(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRES_URL", "")
	t.Setenv("PGHOST", "db.internal")
	t.Setenv("PGPASSWORD", "pw")
	t.Setenv("PGDATABASE", "inventory")
	t.Setenv("REDIS_URL", "")
	t.Setenv("REDISCLOUD_URL", "")
	t.Setenv("REDISHOST", "cache.internal")
	t.Setenv("REDIS_SENTINEL_ADDRS", " s1:26379, ,s2:26379")

	cfg := Load()
	if cfg.DatabaseURL != "postgres://postgres:pw@db.internal:5432/inventory?sslmode=disable" {
		t.Errorf("DatabaseURL = %s", cfg.DatabaseURL)
	}
	if cfg.RedisURL != "redis://cache.internal:6379/0" {
		t.Errorf("RedisURL = %s", cfg.RedisURL)
	}
	if len(cfg.RedisSentinelAddrs) != 2 || cfg.RedisSentinelAddrs[1] != "s2:26379" {
		t.Errorf("RedisSentinelAddrs = %v", cfg.RedisSentinelAddrs)
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", time.Second},
		{"150ms", 150 * time.Millisecond},
		{"2m", 2 * time.Minute},
		{"250", 250 * time.Millisecond},
		{"soon", time.Second},
		{"-5s", time.Second},
	}
	for _, tt := range tests {
		t.Setenv("TEST_DURATION", tt.value)
		if got := getEnvDuration("TEST_DURATION", time.Second); got != tt.want {
			t.Errorf("getEnvDuration(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
