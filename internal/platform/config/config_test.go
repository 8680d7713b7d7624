package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookup(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestLoad(t *testing.T) {
	t.Run("dev defaults select in-memory collaborators", func(t *testing.T) {
		cfg, err := Load(lookup(nil))
		require.NoError(t, err)
		assert.Equal(t, ":8080", cfg.Server.Addr)
		assert.Empty(t, cfg.Database.URL)
		assert.Empty(t, cfg.Redis.URL)
		assert.Empty(t, cfg.Notify.AMQPURL)
		assert.Empty(t, cfg.Audit.KafkaBrokers)
		assert.Equal(t, "INR", cfg.Payment.Currency)
		assert.Equal(t, devSigningKey, cfg.Auth.JWTSigningKey)
		assert.Equal(t, time.UTC, cfg.Location)
		assert.False(t, cfg.RateLimit.Disabled)
		assert.Equal(t, 30, cfg.RateLimit.PublicPerMinute)
	})

	t.Run("parses typed values", func(t *testing.T) {
		cfg, err := Load(lookup(map[string]string{
			"ACCESS_TOKEN_TTL": "90m",
			"BCRYPT_COST":      "10",
			"KAFKA_BROKERS":    "k1:9092, k2:9092,",
			"TIMEZONE":         "Asia/Kolkata",
			"PAYMENT_CURRENCY": "inr",
		}))
		require.NoError(t, err)
		assert.Equal(t, 90*time.Minute, cfg.Auth.AccessTokenTTL)
		assert.Equal(t, 10, cfg.Auth.BcryptCost)
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Audit.KafkaBrokers)
		assert.Equal(t, "Asia/Kolkata", cfg.Location.String())
		assert.Equal(t, "INR", cfg.Payment.Currency)
	})

	t.Run("reports every invalid key", func(t *testing.T) {
		_, err := Load(lookup(map[string]string{
			"BCRYPT_COST":      "many",
			"ACCESS_TOKEN_TTL": "-1h",
			"TIMEZONE":         "Mars/Olympus",
		}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "BCRYPT_COST")
		assert.Contains(t, err.Error(), "ACCESS_TOKEN_TTL")
		assert.Contains(t, err.Error(), "TIMEZONE")
	})

	t.Run("prod requires secrets", func(t *testing.T) {
		_, err := Load(lookup(map[string]string{"APP_ENV": "prod"}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JWT_SIGNING_KEY")
		assert.Contains(t, err.Error(), "PAYMENT_KEY_SECRET")
	})

	t.Run("admin seed needs both email and password", func(t *testing.T) {
		_, err := Load(lookup(map[string]string{"ADMIN_EMAIL": "admin@example.com"}))
		require.Error(t, err)
	})
}
