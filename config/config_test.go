package config

import (
	"strings"
	"testing"
	"time"

	"ticketfy-checkin/claims"
	"ticketfy-checkin/feed"
)

const testKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

func clearEnv(t *testing.T) {
	for _, key := range []string{"PORT", "API_URL", "RPC_URL", "VALIDATOR_PRIVATE_KEY", "POLL_INTERVAL", "LOOKUP_TIMEOUT", "AUTH_TIMEOUT", "CLAIM_TTL", "CORS_ORIGINS", "REDIS_DB", "PUBLIC_URL"} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != DefaultPort || cfg.RPCURL != DefaultRPCURL || cfg.APIURL != DefaultAPIURL {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.PollInterval != feed.DefaultInterval {
		t.Errorf("poll interval = %s", cfg.PollInterval)
	}
	if cfg.LookupTimeout != 12*time.Second || cfg.AuthTimeout != 12*time.Second {
		t.Errorf("timeouts = %s, %s", cfg.LookupTimeout, cfg.AuthTimeout)
	}
	if cfg.ClaimTTL != claims.DefaultTTL {
		t.Errorf("claim ttl = %s", cfg.ClaimTTL)
	}
	if !cfg.ReadOnly() || cfg.ValidatorKey != "" {
		t.Error("console should be read-only without a key")
	}
	if len(cfg.CORSOrigins) != 3 {
		t.Errorf("cors origins = %v", cfg.CORSOrigins)
	}
}

func TestLoadClampsIntervals(t *testing.T) {
	clearEnv(t)
	t.Setenv("POLL_INTERVAL", "2s")
	t.Setenv("LOOKUP_TIMEOUT", "60")
	t.Setenv("AUTH_TIMEOUT", "11s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollInterval != feed.MinInterval {
		t.Errorf("poll interval = %s, want %s", cfg.PollInterval, feed.MinInterval)
	}
	if cfg.LookupTimeout != MaxTimeout {
		t.Errorf("lookup timeout = %s, want %s", cfg.LookupTimeout, MaxTimeout)
	}
	if cfg.AuthTimeout != 11*time.Second {
		t.Errorf("auth timeout = %s", cfg.AuthTimeout)
	}
}

func TestLoadValidatorKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("VALIDATOR_PRIVATE_KEY", "0x"+testKey)
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ReadOnly() {
		t.Fatal("read-only with a key configured")
	}
	if cfg.ValidatorKey != testKey {
		t.Errorf("validator key = %q", cfg.ValidatorKey)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Errorf("cors origins = %v", cfg.CORSOrigins)
	}
}

func TestLoadReportsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "http")
	t.Setenv("POLL_INTERVAL", "soon")
	t.Setenv("VALIDATOR_PRIVATE_KEY", "zz")
	t.Setenv("RPC_URL", "localhost")

	_, err := Load()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"PORT", "POLL_INTERVAL", "VALIDATOR_PRIVATE_KEY", "RPC_URL"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestClampTimeout(t *testing.T) {
	tests := []struct {
		in, want time.Duration
	}{
		{0, 12 * time.Second},
		{time.Second, MinTimeout},
		{13 * time.Second, 13 * time.Second},
		{time.Minute, MaxTimeout},
	}
	for _, tt := range tests {
		if got := ClampTimeout(tt.in); got != tt.want {
			t.Errorf("ClampTimeout(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
