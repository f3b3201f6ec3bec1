// Package config resolves CookieMonster's environment-driven configuration
// once at startup into an immutable value. The one other environment read
// is crypto.Resolve, which looks up the variable named by a request's
// encryption key source.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every environment-resolved setting the core consumes.
type Config struct {
	// CDP connection settings.
	CDPHost string
	CDPPort int

	// Capture store defaults.
	DataDir string
	LogFile string

	// Control-plane server settings.
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool
	AllowRemote      bool
	APIToken         string

	// Encryption.
	EncryptionKeyB64 string
}

// Load reads configuration from environment variables and an optional
// .env file in the working directory.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPHost:          getEnvOrDefault("COOKIE_MONSTER_CDP_HOST", "127.0.0.1"),
		CDPPort:          getEnvIntOrDefault("COOKIE_MONSTER_CDP_PORT", 9222),
		DataDir:          getEnvOrDefault("COOKIE_MONSTER_DATA_DIR", "./cookiemonster_data"),
		LogFile:          getEnvOrDefault("COOKIE_MONSTER_LOG_FILE", "logs/cookiemonster.log"),
		BindAddr:         getEnvOrDefault("COOKIE_MONSTER_BIND_ADDR", "127.0.0.1:8787"),
		PortCandidates:   getEnvListOrDefault("COOKIE_MONSTER_PORT_CANDIDATES", nil),
		PortAutoFallback: getEnvBoolOrDefault("COOKIE_MONSTER_PORT_AUTO_FALLBACK", false),
		AllowRemote:      getEnvBoolOrDefault("COOKIE_MONSTER_ALLOW_REMOTE", false),
		APIToken:         os.Getenv("COOKIE_MONSTER_API_TOKEN"),
		EncryptionKeyB64: os.Getenv("COOKIE_MONSTER_ENCRYPTION_KEY"),
	}

	return cfg, nil
}

// CDPBase returns the browser's debugging HTTP endpoint.
func (c *Config) CDPBase() string {
	return fmt.Sprintf("http://%s:%d", c.CDPHost, c.CDPPort)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
