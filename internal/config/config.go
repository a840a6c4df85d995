package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL   string
	MigrationsDir string

	// Redis
	RedisURL string

	// JWT
	JWTSecret string

	// Internal calls from the message pipeline to the webhook proxy
	InternalAPIKey string
	InternalAPIURL string

	// Webhooks
	WebhookTimeout time.Duration

	// Sessions
	SessionIdleTimeout time.Duration

	// Forms
	FormWorkers int

	// Admin allow-list (emails)
	AdminEmails []string

	// SMTP for forward failure alerts
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	port := getEnvOrDefault("PORT", "8080")

	cfg := &Config{
		Port:               port,
		Env:                getEnvOrDefault("ENV", "development"),
		DatabaseURL:        mustGetEnv("DATABASE_URL"),
		MigrationsDir:      getEnvOrDefault("MIGRATIONS_DIR", "migrations"),
		RedisURL:           mustGetEnv("REDIS_URL"),
		JWTSecret:          mustGetEnv("JWT_SECRET"),
		InternalAPIKey:     mustGetEnv("INTERNAL_API_KEY"),
		InternalAPIURL:     getEnvOrDefault("INTERNAL_API_URL", "http://127.0.0.1:"+port),
		WebhookTimeout:     getEnvAsDurationOrDefault("WEBHOOK_TIMEOUT", 60*time.Second),
		SessionIdleTimeout: getEnvAsDurationOrDefault("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		FormWorkers:        getEnvAsIntOrDefault("FORM_WORKERS", 3),
		AdminEmails:        getEnvAsListOrDefault("ADMIN_EMAILS", nil),
		SMTPHost:           os.Getenv("SMTP_HOST"),
		SMTPPort:           getEnvAsIntOrDefault("SMTP_PORT", 587),
		SMTPUser:           os.Getenv("SMTP_USER"),
		SMTPPass:           os.Getenv("SMTP_PASS"),
		SMTPFrom:           getEnvOrDefault("SMTP_FROM", "noreply@chatforms.local"),
		FrontendURL:        getEnvOrDefault("FRONTEND_URL", "http://localhost:3000"),
	}

	return cfg
}

// IsDevelopment reports whether the server runs with ENV=development.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// getEnvAsListOrDefault splits a comma-separated value, dropping blanks.
func getEnvAsListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, entry := range strings.Split(val, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, strings.ToLower(entry))
		}
	}
	return out
}
