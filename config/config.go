package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime parameter of the coordinator.
type Config struct {
	ServerPort          int
	OracleBaseURL       string
	BracketPollInterval time.Duration
	TournamentTTL       time.Duration
	AllowedOrigins      []string
}

// Load reads configuration from environment variables, optionally loading a
// .env file first for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	portStr := os.Getenv("SERVER_PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT environment variable: %w", err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	oracleBaseURL := os.Getenv("ORACLE_BASE_URL")
	if oracleBaseURL == "" {
		oracleBaseURL = "https://codeforces.com"
	}

	pollInterval, err := durationEnv("BRACKET_POLL_INTERVAL", 10*time.Second)
	if err != nil {
		return nil, err
	}

	ttl, err := durationEnv("TOURNAMENT_TTL", 6*time.Hour)
	if err != nil {
		return nil, err
	}

	origins := []string{"*"}
	if raw := os.Getenv("ALLOWED_ORIGINS"); raw != "" {
		origins = strings.Split(raw, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
	}

	return &Config{
		ServerPort:          port,
		OracleBaseURL:       oracleBaseURL,
		BracketPollInterval: pollInterval,
		TournamentTTL:       ttl,
		AllowedOrigins:      origins,
	}, nil
}

func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", name, d)
	}
	return d, nil
}
