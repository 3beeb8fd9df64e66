package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var errMissingSecret = errors.New("JWT_SECRET is required when GIN_MODE=release")

// Config holds every runtime setting of the service.
type Config struct {
	Port    string
	GinMode string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	DBConnectRetries int
	DemoFallback     bool
	HealthTimeout    time.Duration

	JWTSecret    string
	JWTIssuer    string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	CookieSecure bool

	CORSOrigins []string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	KafkaBrokers []string
	KafkaTopic   string

	WorkflowFile string
	LogLevel     string
}

// Load reads configs/.env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	cfg := &Config{
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "postgres"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		DBConnectRetries: getEnvInt("DB_CONNECT_RETRIES", 5),
		DemoFallback:     getEnvBool("DEMO_FALLBACK", false),
		HealthTimeout:    getEnvDuration("HEALTH_TIMEOUT", 5*time.Second),

		JWTSecret:  os.Getenv("JWT_SECRET"),
		JWTIssuer:  getEnv("JWT_ISSUER", "formflow"),
		AccessTTL:  getEnvDuration("ACCESS_TOKEN_TTL", 24*time.Hour),
		RefreshTTL: getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),

		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173")),

		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "formflow"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "formflow.events"),

		WorkflowFile: getEnv("WORKFLOW_FILE", "configs/workflow.yaml"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}
	cfg.CookieSecure = getEnvBool("COOKIE_SECURE", cfg.Release())

	if cfg.JWTSecret == "" {
		if cfg.Release() {
			return nil, errMissingSecret
		}
		cfg.JWTSecret = "dev_only_secret_change_me"
	}
	return cfg, nil
}

func (c *Config) Release() bool {
	return c.GinMode == "release"
}

func (c *Config) DSN() string {
	return "postgres://" + c.DBUser + ":" + c.DBPassword + "@" + c.DBHost + ":" + c.DBPort + "/" + c.DBName + "?sslmode=" + c.DBSSLMode
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
