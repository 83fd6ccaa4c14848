// Package config reads the template fill service configuration from the
// environment, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"legalscan/pkg/placeholder"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageS3       = "s3"

	ExtractorGemini  = "gemini"
	ExtractorPattern = "pattern"
)

type Config struct {
	Port     string
	LogLevel string

	StorageBackend string
	DatabaseURL    string
	S3             S3Config
	PresignTTL     time.Duration

	Extractor    string
	GeminiAPIKey string
	GeminiModel  string

	MaxUploadBytes           int64
	UploadRatePerMinute      int
	TrustProxyHeaders        bool
	LabelStyle               placeholder.LabelStyle
	SuppressRepeatedCurrency bool
	SchemaDir                string
}

type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// Load reads .env files when present, then the process environment. Values
// already set in the environment win over .env entries.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	cfg := Config{
		Port:                     envStringDefault("SERVICE_PORT", "8080"),
		LogLevel:                 strings.ToLower(envStringDefault("LOG_LEVEL", "info")),
		StorageBackend:           strings.ToLower(envStringDefault("STORAGE_BACKEND", StorageMemory)),
		DatabaseURL:              strings.TrimSpace(os.Getenv("DATABASE_URL")),
		PresignTTL:               time.Duration(envIntDefault("PRESIGN_TTL_MINUTES", 60)) * time.Minute,
		Extractor:                strings.ToLower(envStringDefault("EXTRACTOR", ExtractorPattern)),
		GeminiAPIKey:             strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:              envStringDefault("GEMINI_MODEL", "gemini-2.5-flash"),
		MaxUploadBytes:           envInt64Default("MAX_UPLOAD_BYTES", 10<<20),
		UploadRatePerMinute:      envIntDefault("UPLOAD_RATE_PER_MINUTE", 30),
		TrustProxyHeaders:        envBoolDefault("TRUST_PROXY_HEADERS", false),
		SuppressRepeatedCurrency: envBoolDefault("SUPPRESS_REPEATED_CURRENCY", true),
		SchemaDir:                strings.TrimSpace(os.Getenv("SCHEMA_DIR")),
		S3: S3Config{
			Endpoint:  strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
			Bucket:    envStringDefault("S3_BUCKET", "template-fill"),
			AccessKey: strings.TrimSpace(os.Getenv("S3_ACCESS_KEY")),
			SecretKey: strings.TrimSpace(os.Getenv("S3_SECRET_KEY")),
			Region:    envStringDefault("S3_REGION", "auto"),
			UseSSL:    envBoolDefault("S3_USE_SSL", true),
		},
	}
	style, err := placeholder.ParseLabelStyle(os.Getenv("LABEL_STYLE"))
	if err != nil {
		return Config{}, fmt.Errorf("config: LABEL_STYLE: %w", err)
	}
	cfg.LabelStyle = style
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.StorageBackend {
	case StorageMemory:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required for STORAGE_BACKEND=postgres")
		}
	case StorageS3:
		if c.S3.Endpoint == "" || c.S3.AccessKey == "" || c.S3.SecretKey == "" {
			return errors.New("config: S3_ENDPOINT, S3_ACCESS_KEY and S3_SECRET_KEY are required for STORAGE_BACKEND=s3")
		}
	default:
		return fmt.Errorf("config: unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	switch c.Extractor {
	case ExtractorPattern:
	case ExtractorGemini:
		if c.GeminiAPIKey == "" {
			return errors.New("config: GEMINI_API_KEY is required for EXTRACTOR=gemini")
		}
	default:
		return fmt.Errorf("config: unknown EXTRACTOR %q", c.Extractor)
	}
	return nil
}

func (c Config) PlaceholderOptions() placeholder.Options {
	return placeholder.Options{LabelStyle: c.LabelStyle, SuppressRepeatedCurrency: c.SuppressRepeatedCurrency}
}

func envStringDefault(key, def string) string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	return raw
}

func envBoolDefault(key string, def bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if raw == "" {
		return def
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func envIntDefault(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if v < 0 {
		return 0
	}
	return v
}

func envInt64Default(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	if v <= 0 {
		return def
	}
	return v
}
