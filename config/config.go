package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultDynamoDBTable = "Letterbox"
	defaultJobsQueue     = "LetterJobsQueue"
	defaultHostPort      = "8080"
	defaultSweepInterval = 60 * time.Second
)

type OAuthProvider struct {
	ClientID     string
	ClientSecret string
}

type Config struct {
	DevMode          bool
	DynamoDBEndpoint string
	DynamoDBTable    string
	SQSEndpoint      string
	JobsQueue        string
	RedisEndpoint    string
	DatabaseURL      string
	JWTSecret        []byte
	HostPort         string
	AllowedOrigin    string
	OAuthRedirectURL string
	OAuthProviders   map[string]OAuthProvider
	SweepInterval    time.Duration
}

// Load reads an optional .env file from the working directory and then the
// process environment. Values already present in the environment win.
func Load() (Config, error) {
	// A missing .env is normal outside local development
	_ = godotenv.Load()

	cfg := Config{
		DevMode:          os.Getenv("DEV_MODE") == "true",
		DynamoDBEndpoint: os.Getenv("DYNAMODB_ENDPOINT"),
		DynamoDBTable:    getenvDefault("DYNAMODB_TABLE", defaultDynamoDBTable),
		SQSEndpoint:      os.Getenv("SQS_ENDPOINT"),
		JobsQueue:        getenvDefault("SQS_JOBS_QUEUE", defaultJobsQueue),
		RedisEndpoint:    os.Getenv("REDIS_ENDPOINT"),
		DatabaseURL:      getenvDefault("DATABASE_URL", "postgres://localhost/letterbox?sslmode=disable"),
		HostPort:         getenvDefault("HOST_PORT", defaultHostPort),
		AllowedOrigin:    os.Getenv("ALLOWED_ORIGIN"),
		OAuthRedirectURL: os.Getenv("OAUTH_REDIRECT_URL"),
		OAuthProviders:   make(map[string]OAuthProvider),
		SweepInterval:    defaultSweepInterval,
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		jwtSecret, err := base64.StdEncoding.DecodeString(secret)
		if err != nil {
			return Config{}, fmt.Errorf("failed to decode base64 JWT_SECRET: %w", err)
		}
		cfg.JWTSecret = jwtSecret
	}

	if v := os.Getenv("SWEEP_INTERVAL_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("invalid SWEEP_INTERVAL_SECONDS: %q", v)
		}
		cfg.SweepInterval = time.Duration(seconds) * time.Second
	}

	for provider, prefix := range map[string]string{"github": "GITHUB", "google": "GOOGLE"} {
		clientID := os.Getenv(prefix + "_CLIENT_ID")
		if clientID == "" {
			continue
		}
		cfg.OAuthProviders[provider] = OAuthProvider{
			ClientID:     clientID,
			ClientSecret: os.Getenv(prefix + "_CLIENT_SECRET"),
		}
	}

	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
