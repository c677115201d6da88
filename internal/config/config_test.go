package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.ServerPort)
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, 30*time.Minute, cfg.TokenTTL)
	assert.Equal(t, "admin", cfg.AdminPassword)
	assert.Empty(t, cfg.RedisAddr)
	assert.False(t, cfg.ResetDB)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("TOKEN_TTL", "5m")
	t.Setenv("ADMIN_PASSWORD", "s3cret")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("RESET_DB", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, DriverMySQL, cfg.DBDriver)
	assert.Equal(t, 5*time.Minute, cfg.TokenTTL)
	assert.Equal(t, "s3cret", cfg.AdminPassword)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.True(t, cfg.ResetDB)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown driver", key: "DB_DRIVER", value: "postgres"},
		{name: "zero token ttl", key: "TOKEN_TTL", value: "0s"},
		{name: "malformed ttl", key: "TOKEN_TTL", value: "soon"},
		{name: "malformed redis db", key: "REDIS_DB", value: "one"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			cfg, err := Load()
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}
