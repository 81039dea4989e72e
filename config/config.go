// Package config loads the check-in service configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"ticketfy-checkin/claims"
	"ticketfy-checkin/feed"
	"ticketfy-checkin/lookup"
)

const (
	DefaultPort   = "8080"
	DefaultRPCURL = "https://base-sepolia-rpc.publicnode.com"
	DefaultAPIURL = "http://localhost:3001/api"

	MinTimeout = 10 * time.Second
	MaxTimeout = 15 * time.Second
)

// Config holds runtime settings. Optional backends are disabled when their URL is empty.
type Config struct {
	Port   string
	APIURL string
	RPCURL string
	// ValidatorKey is a hex private key; the console is read-only without it.
	ValidatorKey string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RabbitMQURL   string

	PollInterval  time.Duration
	LookupTimeout time.Duration
	AuthTimeout   time.Duration
	ClaimTTL      time.Duration

	CORSOrigins []string
	PublicURL   string
}

// Load reads the environment. Intervals and timeouts are clamped to their allowed ranges;
// values that do not parse are reported by Validate.
func Load() (Config, error) {
	var errs []error
	cfg := Config{
		Port:          envStr("PORT", DefaultPort),
		APIURL:        strings.TrimRight(envStr("API_URL", DefaultAPIURL), "/"),
		RPCURL:        envStr("RPC_URL", DefaultRPCURL),
		ValidatorKey:  strings.TrimPrefix(strings.TrimSpace(os.Getenv("VALIDATOR_PRIVATE_KEY")), "0x"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RabbitMQURL:   os.Getenv("RABBITMQ_URL"),
		CORSOrigins:   envList("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:3001", "http://localhost:3002"}),
		PublicURL:     strings.TrimRight(envStr("PUBLIC_URL", "http://localhost:3000"), "/"),
	}
	cfg.RedisDB = envInt("REDIS_DB", 0, &errs)
	cfg.PollInterval = feed.ClampInterval(envDur("POLL_INTERVAL", feed.DefaultInterval, &errs))
	cfg.LookupTimeout = ClampTimeout(envDur("LOOKUP_TIMEOUT", lookup.DefaultTimeout, &errs))
	cfg.AuthTimeout = ClampTimeout(envDur("AUTH_TIMEOUT", lookup.DefaultTimeout, &errs))
	cfg.ClaimTTL = envDur("CLAIM_TTL", claims.DefaultTTL, &errs)

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	return cfg, errors.Join(errs...)
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	var errs []error
	if _, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Errorf("PORT must be numeric, got %q", c.Port))
	}
	for name, raw := range map[string]string{"API_URL": c.APIURL, "RPC_URL": c.RPCURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s must be an absolute URL, got %q", name, raw))
		}
	}
	if c.ValidatorKey != "" {
		if _, err := crypto.HexToECDSA(c.ValidatorKey); err != nil {
			errs = append(errs, fmt.Errorf("VALIDATOR_PRIVATE_KEY is not a valid key: %w", err))
		}
	}
	if c.ClaimTTL <= 0 {
		errs = append(errs, fmt.Errorf("CLAIM_TTL must be positive, got %s", c.ClaimTTL))
	}
	return errors.Join(errs...)
}

// ReadOnly reports whether the service runs without a validator key.
func (c Config) ReadOnly() bool { return c.ValidatorKey == "" }

// ClampTimeout bounds a request timeout to [MinTimeout, MaxTimeout]; zero means the default.
func ClampTimeout(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return lookup.DefaultTimeout
	case d < MinTimeout:
		return MinTimeout
	case d > MaxTimeout:
		return MaxTimeout
	}
	return d
}

func envStr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int, errs *[]error) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid int for %s: %q", key, v))
		return def
	}
	return n
}

// envDur accepts Go durations ("15s") or plain seconds ("15").
func envDur(key string, def time.Duration, errs *[]error) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid duration for %s: %q", key, v))
		return def
	}
	return d
}

func envList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
