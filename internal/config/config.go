package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port     string
	DBConn   string
	LogLevel string
	AppName  string
	// DomainURL is the public base URL used for QR deep links and static files.
	DomainURL string

	JWTSecret          string
	JWTAlgorithm       string
	AccessTokenExpiry  time.Duration
	ResetTokenExpiry   time.Duration
	BootstrapAdmin     string
	BootstrapAdminPass string

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string
	SMTPTLS      string

	// SMTPSkipVerify disables certificate checks for self-signed relays.
	SMTPSkipVerify bool

	StorageType     string
	StaticFilesDir  string
	ProfileImageDir string
	S3Bucket        string
	S3Region        string

	CardBackgroundPath string
	CardFont           string
	AllowedImageTypes  []string
	MaxUploadBytes     int64

	CORSAllowedOrigins []string
	RateLimitPerMinute int
	DigestSchedule     string
}

// NewConfig loads configuration from environment variables.
// A .env file in the working directory is read first when present.
func NewConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		DBConn:    getEnv("DB_CONN", "host=localhost port=5432 user=postgres password=postgres dbname=liberal sslmode=disable"),
		LogLevel:  getEnv("LOG_LEVEL", "INFO"),
		AppName:   getEnv("APP_NAME", "Liberal"),
		DomainURL: strings.TrimRight(getEnv("DOMAIN_URL", "http://localhost:8080"), "/"),

		JWTSecret:          getEnv("JWT_SECRET", ""),
		JWTAlgorithm:       getEnv("JWT_ALGORITHM", "HS256"),
		AccessTokenExpiry:  time.Duration(getEnvInt("ACCESS_TOKEN_EXPIRE_MINUTES", 3600)) * time.Minute,
		ResetTokenExpiry:   time.Duration(getEnvInt("RESET_TOKEN_EXPIRE_MINUTES", 15)) * time.Minute,
		BootstrapAdmin:     getEnv("BOOTSTRAP_ADMIN_EMAIL", ""),
		BootstrapAdminPass: getEnv("BOOTSTRAP_ADMIN_PASSWORD", ""),

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SenderEmail:  getEnv("SMTP_FROM", "no-reply@localhost"),
		SMTPTLS:      strings.ToLower(getEnv("SMTP_TLS", "starttls")),

		SMTPSkipVerify: getEnvBool("SMTP_SKIP_VERIFY", false),

		StorageType:     strings.ToLower(getEnv("STORAGE_TYPE", "local")),
		StaticFilesDir:  getEnv("STATIC_FILES_DIR", "static"),
		ProfileImageDir: getEnv("PROFILE_IMAGE_DIR", "profile_images"),
		S3Bucket:        getEnv("STORAGE_S3_BUCKET", ""),
		S3Region:        getEnv("STORAGE_S3_REGION", ""),

		CardBackgroundPath: getEnv("CARD_BACKGROUND_IMAGE_PATH", "static/card_background.png"),
		CardFont:           getEnv("CARD_DEFAULT_FONT", "Helvetica"),
		AllowedImageTypes:  getEnvList("ALLOWED_IMAGE_TYPES", []string{"image/jpeg", "image/png", "image/webp"}),
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_BYTES", 5<<20)),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:1356"}),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		DigestSchedule:     getEnv("CARD_DIGEST_SCHEDULE", "0 8 * * *"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first missing or inconsistent setting.
func (c *Config) Validate() error {
	if c.DBConn == "" {
		return fmt.Errorf("DB_CONN is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.JWTAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("JWT_ALGORITHM %q is not supported", c.JWTAlgorithm)
	}
	switch c.SMTPTLS {
	case "starttls", "tls", "none":
	default:
		return fmt.Errorf("SMTP_TLS must be one of starttls, tls, none")
	}
	switch c.StorageType {
	case "local":
	case "s3":
		if c.S3Bucket == "" || c.S3Region == "" {
			return fmt.Errorf("STORAGE_S3_BUCKET and STORAGE_S3_REGION are required for s3 storage")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_TYPE %q", c.StorageType)
	}
	if (c.BootstrapAdmin == "") != (c.BootstrapAdminPass == "") {
		return fmt.Errorf("BOOTSTRAP_ADMIN_EMAIL and BOOTSTRAP_ADMIN_PASSWORD must be set together")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvBool(key string, defaultVal bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}
