package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv              string
	Port                string
	ServiceAccountEmail string
	ServiceAccountKeyID string
	ServiceAccountKey   string
	OAuthTokenURL       string
	FirestoreBaseURL    string
	FirestoreProjectID  string
	FirestoreCollection string
	GeoIPDBPath         string
	GeminiAPIKey        string
	GeminiModel         string
	GeminiBaseURL       string
	GenerationTimeout   time.Duration
	HTTPReadTimeout     time.Duration
	HTTPWriteTimeout    time.Duration
	HTTPIdleTimeout     time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:              getEnv("APP_ENV", "development"),
		Port:                getEnv("PORT", "8080"),
		ServiceAccountEmail: os.Getenv("SERVICE_ACCOUNT_EMAIL"),
		ServiceAccountKeyID: os.Getenv("SERVICE_ACCOUNT_KEY_ID"),
		ServiceAccountKey:   normalizePrivateKey(os.Getenv("SERVICE_ACCOUNT_PRIVATE_KEY")),
		OAuthTokenURL:       getEnv("OAUTH_TOKEN_URL", "https://oauth2.googleapis.com/token"),
		FirestoreBaseURL:    getEnv("FIRESTORE_BASE_URL", "https://firestore.googleapis.com/v1"),
		FirestoreProjectID:  os.Getenv("FIRESTORE_PROJECT_ID"),
		FirestoreCollection: getEnv("FIRESTORE_COLLECTION", "itineraryJobs"),
		GeoIPDBPath:         os.Getenv("GEOIP_DB_PATH"),
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiBaseURL:       getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GenerationTimeout:   time.Second * time.Duration(getEnvInt("GENERATION_TIMEOUT_SECONDS", 120)),
		HTTPReadTimeout:     time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:    time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:     time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.ServiceAccountEmail == "" {
		return nil, fmt.Errorf("SERVICE_ACCOUNT_EMAIL is required")
	}

	if cfg.ServiceAccountKey == "" {
		return nil, fmt.Errorf("SERVICE_ACCOUNT_PRIVATE_KEY is required")
	}

	if cfg.FirestoreProjectID == "" {
		return nil, fmt.Errorf("FIRESTORE_PROJECT_ID is required")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}

	return cfg, nil
}

// normalizePrivateKey converts the literal "\n" sequences that appear when a PEM
// key is pasted into a single-line env var back into real newlines.
func normalizePrivateKey(key string) string {
	return strings.TrimSpace(strings.ReplaceAll(key, `\n`, "\n"))
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
