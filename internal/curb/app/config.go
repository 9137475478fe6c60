package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aussiebroadwan/curb/pkg/curbsdk"
)

type Config struct {
	APIURL       string // Optional: REST API host (default: https://app.energycurb.com)
	Username     string // Required: account username
	Password     string // Required unless a cached token is still usable
	ClientToken  string // Required: application OAuth2 client token
	ClientSecret string // Required: application OAuth2 client secret

	TokenCache     string        // Optional: path to the SQLite token cache, empty disables caching
	TokenCacheKey  string        // Optional: passphrase sealing cached tokens at rest
	RateLimitRPS   int           // Optional: max requests per second, 0 disables pacing
	RateLimitBurst int           // Optional: burst above the rate limit (default: 5)
	HTTPTimeout    time.Duration // Optional: per request timeout (default: 30s)

	Env       string // Environment (dev, prod) (default: prod)
	LogLevel  string // Log level (debug, info, warn, error) (default: warn)
	LogFormat string // Log format (json, text) (default: text)

	LogOutput io.Writer // Where logs go (default: stderr), not read from the environment
}

func LoadConfig() Config {
	return Config{
		APIURL:       getEnvOrDefault("CURB_API_URL", curbsdk.DefaultAPIURL),
		Username:     os.Getenv("CURB_USERNAME"),
		Password:     os.Getenv("CURB_PASSWORD"),
		ClientToken:  os.Getenv("CURB_CLIENT_TOKEN"),
		ClientSecret: os.Getenv("CURB_CLIENT_SECRET"),

		TokenCache:     getEnvOrDefault("CURB_TOKEN_CACHE", defaultTokenCache()),
		TokenCacheKey:  os.Getenv("CURB_TOKEN_CACHE_KEY"),
		RateLimitRPS:   getEnvIntOrDefault("CURB_RATE_LIMIT_RPS", 0),
		RateLimitBurst: getEnvIntOrDefault("CURB_RATE_LIMIT_BURST", 5),
		HTTPTimeout:    getEnvDurationOrDefault("CURB_HTTP_TIMEOUT", 30*time.Second),

		Env:       getEnvOrDefault("ENV", "prod"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "warn"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),
	}
}

var ErrMissingCredentials = errors.New("app: missing credentials")

// Validate checks what every networked command needs. The password may be
// absent because a cached token can stand in for it.
func (c Config) Validate() error {
	switch {
	case c.ClientToken == "":
		return fmt.Errorf("%w: client token (CURB_CLIENT_TOKEN)", ErrMissingCredentials)
	case c.ClientSecret == "":
		return fmt.Errorf("%w: client secret (CURB_CLIENT_SECRET)", ErrMissingCredentials)
	case c.Username == "":
		return fmt.Errorf("%w: username (CURB_USERNAME)", ErrMissingCredentials)
	}
	return nil
}

// defaultTokenCache keeps the cache next to other per-user state. An
// unknown cache dir disables caching rather than writing to the cwd.
func defaultTokenCache() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "curb", "tokens.db")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
