package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("DB_HOST", "testhost")
	t.Setenv("RPC_CALL_TIMEOUT", "3s")
	t.Setenv("REPORTS_DIR", "/tmp/por-reports")
	t.Setenv("SUPPORTED_TOKEN_STANDARDS", "ERC-3643, ERC-1400")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Database.Postgres.Host != "testhost" {
		t.Errorf("Database.Postgres.Host = %v, want %v", cfg.Database.Postgres.Host, "testhost")
	}

	if cfg.Chain.CallTimeout != 3*time.Second {
		t.Errorf("Chain.CallTimeout = %v, want %v", cfg.Chain.CallTimeout, 3*time.Second)
	}

	if cfg.Output.Directory != "/tmp/por-reports" {
		t.Errorf("Output.Directory = %v, want %v", cfg.Output.Directory, "/tmp/por-reports")
	}

	if !cfg.Chain.SupportsStandard("erc-1400") {
		t.Errorf("Chain.SupportsStandard(erc-1400) = false, want true")
	}

	if cfg.Audit.Methodology != "blockchain_verification" {
		t.Errorf("Audit.Methodology = %v, want blockchain_verification", cfg.Audit.Methodology)
	}

	if cfg.Database.Redis.Enabled() || cfg.Database.ClickHouse.Enabled() {
		t.Errorf("optional sinks should be disabled by default")
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "zero concurrency", key: "RPC_CONCURRENCY", val: "0"},
		{name: "confidence above one", key: "AUDIT_CONFIDENCE_LEVEL", val: "1.5"},
		{name: "zero query attempts", key: "DB_QUERY_ATTEMPTS", val: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := LoadConfig(); err == nil {
				t.Errorf("LoadConfig() with %s=%s expected error", tt.key, tt.val)
			}
		})
	}
}

func TestPostgresURL(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{Postgres: PostgresConfig{
		Host: "db", Port: "5432", Database: "aimy", User: "u", Password: "p",
	}}}

	want := "postgres://u:p@db:5432/aimy?sslmode=disable"
	if got := cfg.PostgresURL(); got != want {
		t.Errorf("PostgresURL() = %v, want %v", got, want)
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns environment variable when set",
			key:          "TEST_KEY",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when environment variable not set",
			key:          "NONEXISTENT_KEY",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				if err := os.Setenv(tt.key, tt.envValue); err != nil {
					t.Fatalf("Failed to set env var: %v", err)
				}
				defer func() {
					_ = os.Unsetenv(tt.key)
				}()
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsFloat(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		want     float64
	}{
		{name: "returns float when valid", envValue: "0.95", want: 0.95},
		{name: "returns default when invalid", envValue: "high", want: 0.99},
		{name: "returns default when not set", envValue: "", want: 0.99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_FLOAT", tt.envValue)
			if got := getEnvAsFloat("TEST_FLOAT", 0.99); got != tt.want {
				t.Errorf("getEnvAsFloat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue time.Duration
		envValue     string
		want         time.Duration
	}{
		{
			name:         "returns duration when valid",
			key:          "TEST_DURATION",
			defaultValue: 10 * time.Second,
			envValue:     "30s",
			want:         30 * time.Second,
		},
		{
			name:         "returns default when invalid",
			key:          "TEST_DURATION_INVALID",
			defaultValue: 10 * time.Second,
			envValue:     "invalid",
			want:         10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.envValue)
			if got := getEnvAsDuration(tt.key, tt.defaultValue); got != tt.want {
				t.Errorf("getEnvAsDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsList(t *testing.T) {
	t.Setenv("TEST_LIST", " a, ,b ")
	got := getEnvAsList("TEST_LIST", []string{"x"})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("getEnvAsList() = %v, want [a b]", got)
	}

	t.Setenv("TEST_LIST", " , ")
	got = getEnvAsList("TEST_LIST", []string{"x"})
	if len(got) != 1 || got[0] != "x" {
		t.Errorf("getEnvAsList() = %v, want [x]", got)
	}
}
