package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal string
		expected   string
	}{
		{"uses env value", "TEST_VAR_1", "hello", "default", "hello"},
		{"uses default when empty", "TEST_VAR_2", "", "default", "default"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				t.Setenv(tc.key, tc.envValue)
			}
			assert.Equal(t, tc.expected, getEnvOrDefault(tc.key, tc.defaultVal))
		})
	}
}

func TestGetEnvAsIntOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal int
		expected   int
	}{
		{"parses integer", "TEST_INT_1", "42", 10, 42},
		{"uses default for empty", "TEST_INT_2", "", 10, 10},
		{"uses default for non-numeric", "TEST_INT_3", "abc", 10, 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				t.Setenv(tc.key, tc.envValue)
			}
			assert.Equal(t, tc.expected, getEnvAsIntOrDefault(tc.key, tc.defaultVal))
		})
	}
}

func TestGetEnvAsDurationOrDefault(t *testing.T) {
	t.Setenv("TEST_DUR_1", "45s")
	t.Setenv("TEST_DUR_2", "soon")
	t.Setenv("TEST_DUR_3", "-5s")

	assert.Equal(t, 45*time.Second, getEnvAsDurationOrDefault("TEST_DUR_1", time.Minute))
	assert.Equal(t, time.Minute, getEnvAsDurationOrDefault("TEST_DUR_2", time.Minute))
	assert.Equal(t, time.Minute, getEnvAsDurationOrDefault("TEST_DUR_3", time.Minute))
	assert.Equal(t, time.Minute, getEnvAsDurationOrDefault("TEST_DUR_UNSET", time.Minute))
}

func TestGetEnvAsListOrDefault(t *testing.T) {
	t.Setenv("TEST_LIST", " Admin@Example.com, ,ops@example.com ")

	assert.Equal(t, []string{"admin@example.com", "ops@example.com"}, getEnvAsListOrDefault("TEST_LIST", nil))
	assert.Nil(t, getEnvAsListOrDefault("TEST_LIST_UNSET", nil))
}

func TestMustGetEnv_Panics(t *testing.T) {
	assert.Panics(t, func() {
		mustGetEnv("NONEXISTENT_REQUIRED_VAR")
	})
}

func TestMustGetEnv_ReturnsValue(t *testing.T) {
	t.Setenv("TEST_REQUIRED", "value123")
	require.Equal(t, "value123", mustGetEnv("TEST_REQUIRED"))
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/chat")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("INTERNAL_API_KEY", "internal")
	t.Setenv("PORT", "9090")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "http://127.0.0.1:9090", cfg.InternalAPIURL)
	assert.Equal(t, 60*time.Second, cfg.WebhookTimeout)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout)
	assert.Equal(t, 3, cfg.FormWorkers)
}
