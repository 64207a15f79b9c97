package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Game     GameConfig
	Database DatabaseConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port string
	Host string
	Env  string // "development" or "production"
	// PublicURL is the externally reachable base used in invite links.
	PublicURL string
	// AllowedOrigins are extra websocket origin host patterns, e.g.
	// "localhost:5173" or "*.monatype.app". Same-origin is always allowed.
	AllowedOrigins []string
}

type GameConfig struct {
	Countdown       time.Duration
	RoomIdleTimeout time.Duration
	RoomCodeLength  int
	ResultsLimit    int
}

type DatabaseConfig struct {
	// URL is a Postgres DSN. Empty keeps results in memory.
	URL string
}

type LoggingConfig struct {
	Level string
}

// Load reads an optional .env file, then the environment.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Host:           getEnv("HOST", "0.0.0.0"),
			Env:            getEnv("ENV", "development"),
			PublicURL:      getEnv("PUBLIC_URL", ""),
			AllowedOrigins: getEnvList("ALLOWED_ORIGINS"),
		},
		Game: GameConfig{
			Countdown:       time.Duration(getEnvInt("COUNTDOWN_MS", 3000)) * time.Millisecond,
			RoomIdleTimeout: time.Duration(getEnvInt("ROOM_IDLE_TIMEOUT_SECONDS", 7200)) * time.Second,
			RoomCodeLength:  getEnvInt("ROOM_CODE_LENGTH", 6),
			ResultsLimit:    getEnvInt("RESULTS_LIMIT", 20),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}
	if cfg.Server.PublicURL == "" {
		cfg.Server.PublicURL = "http://localhost:" + cfg.Server.Port
	}
	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// GetAddr returns the server address in host:port format
func (c *Config) GetAddr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// getEnv returns an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma-separated environment variable, dropping blanks
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// getEnvInt returns an environment variable as an integer or a default value
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
