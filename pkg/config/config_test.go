package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", strings.Repeat("s", MinJWTSecretLength))
	t.Setenv("DB_USER", "cms")
	t.Setenv("DB_PASSWORD", "cms")
	t.Setenv("DB_NAME", "cms")
	t.Setenv("SSO_SERVER_URL", "http://sso.internal")
	t.Setenv("SSO_CLIENT_ID", "cms")
	t.Setenv("SSO_CLIENT_SECRET", "sso-secret")
	t.Setenv("METADATA_SERVER_URL", "http://metadata.internal/")
	t.Setenv("METADATA_API_KEY", "key")
}

func TestLoadAndValidateDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadAndValidate()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 24*time.Hour, cfg.JWT.ExpiresIn)
	assert.Equal(t, time.Hour, cfg.Sync.Interval)
	assert.Nil(t, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "http://metadata.internal", cfg.Metadata.ServerURL)
}

func TestValidateReportsMissingKeys(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("JWT_SECRET", "")
	t.Setenv("METADATA_API_KEY", "")

	_, err := LoadAndValidate()
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.ElementsMatch(t, []string{"JWT_SECRET", "METADATA_API_KEY"}, cfgErr.Missing)
}

func TestValidateRejectsShortSecret(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("JWT_SECRET", strings.Repeat("s", MinJWTSecretLength-1))

	_, err := LoadAndValidate()
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Empty(t, cfgErr.Missing)
	require.Len(t, cfgErr.Invalid, 1)
	assert.Contains(t, cfgErr.Invalid[0], "JWT_SECRET")
}

func TestValidateRejectsOutOfRangePorts(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "70000")
	t.Setenv("DB_PORT", "0")
	t.Setenv("SYNC_INTERVAL_MINUTES", "0")

	_, err := LoadAndValidate()
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Len(t, cfgErr.Invalid, 3)
}

func TestParseDurationAcceptsDays(t *testing.T) {
	assert.Equal(t, 48*time.Hour, parseDuration("2d", time.Minute))
	assert.Equal(t, 90*time.Minute, parseDuration("90m", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("soon", time.Minute))
}

func TestSplitAndTrimWildcard(t *testing.T) {
	assert.Nil(t, splitAndTrim("*"))
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, splitAndTrim(" https://a.example ,https://b.example,"))
}

func TestDatabaseURLEscapesCredentials(t *testing.T) {
	d := DatabaseConfig{User: "cms", Password: "p@ss:word", Host: "db", Port: 5432, Name: "cms", SSLMode: "disable"}
	assert.Equal(t, "postgres://cms:p%40ss%3Aword@db:5432/cms?sslmode=disable", d.DatabaseURL())
}
