package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config captures the runtime configuration for the VidTube backend core.
type Config struct {
	LogLevel    string
	Datastore   DatastoreConfig
	ObjectStore ObjectStoreConfig
	Auth        AuthConfig
}

// DatastoreConfig locates the document store backing the core.
type DatastoreConfig struct {
	URI      string
	Database string
}

// ObjectStoreConfig targets the S3-compatible bucket used for media blobs.
type ObjectStoreConfig struct {
	Region        string
	Bucket        string
	Endpoint      string
	PublicBaseURL string
}

// AuthConfig holds the token-signing material and session policy. Access and
// refresh tokens are signed with distinct secrets so a leak of one cannot
// forge the other.
type AuthConfig struct {
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	Issuer             string
	LoginAttempts      int
	LoginWindow        time.Duration
	LoginBurst         int
}

// Load reads configuration from environment variables, applying sensible
// defaults for local development while allowing overrides through the
// environment. A .env file in the working directory is honored when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		LogLevel: getString("VIDTUBE_LOG_LEVEL", "info"),
		Datastore: DatastoreConfig{
			URI:      getString("VIDTUBE_MONGO_URI", "mongodb://localhost:27017"),
			Database: getString("VIDTUBE_MONGO_DATABASE", "vidtube"),
		},
		ObjectStore: ObjectStoreConfig{
			Region:        getString("VIDTUBE_S3_REGION", "us-east-1"),
			Bucket:        getString("VIDTUBE_S3_BUCKET", "vidtube-media"),
			Endpoint:      getString("VIDTUBE_S3_ENDPOINT", ""),
			PublicBaseURL: getString("VIDTUBE_S3_PUBLIC_BASE_URL", ""),
		},
		Auth: AuthConfig{
			AccessTokenSecret:  os.Getenv("VIDTUBE_ACCESS_TOKEN_SECRET"),
			RefreshTokenSecret: os.Getenv("VIDTUBE_REFRESH_TOKEN_SECRET"),
			AccessTokenTTL:     getDuration("VIDTUBE_ACCESS_TOKEN_TTL", 15*time.Minute),
			RefreshTokenTTL:    getDuration("VIDTUBE_REFRESH_TOKEN_TTL", 10*24*time.Hour),
			Issuer:             getString("VIDTUBE_TOKEN_ISSUER", "vidtube"),
			LoginAttempts:      getInt("VIDTUBE_LOGIN_ATTEMPTS", 5),
			LoginWindow:        getDuration("VIDTUBE_LOGIN_WINDOW", time.Minute),
			LoginBurst:         getInt("VIDTUBE_LOGIN_BURST", 5),
		},
	}

	if cfg.Auth.AccessTokenSecret == "" || cfg.Auth.RefreshTokenSecret == "" {
		return Config{}, errors.New("config: access and refresh token secrets are required")
	}
	if cfg.Auth.AccessTokenSecret == cfg.Auth.RefreshTokenSecret {
		return Config{}, errors.New("config: access and refresh token secrets must differ")
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
