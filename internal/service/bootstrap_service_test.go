package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cms-api/pkg/config"
)

func bootstrapConfig() *config.Config {
	return &config.Config{
		Env:       config.EnvDevelopment,
		Port:      8080,
		APIPrefix: "/api/v1",
		Database: config.DatabaseConfig{
			Host: "localhost", Port: 5432, User: "cms", Password: "secret", Name: "cms",
		},
		JWT:                config.JWTConfig{Secret: testSecret, ExpiresIn: time.Hour},
		SSO:                config.SSOConfig{ServerURL: "http://sso", ClientID: "cms", ClientSecret: "s"},
		Metadata:           config.MetadataConfig{ServerURL: "http://meta", APIKey: "k"},
		Sync:               config.SyncConfig{Interval: time.Hour},
		HealthCheckTimeout: 50 * time.Millisecond,
	}
}

func TestBootstrapProbeFailuresOnlyWarn(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	slow := HealthProbe{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}

	svc := NewBootstrapService(bootstrapConfig(), nil,
		HTTPHealthProbe("sso", healthy.URL+"/", nil),
		HTTPHealthProbe("metadata", failing.URL, nil),
		slow,
	)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Probes, 3)
	assert.True(t, report.Probes[0].Healthy)
	assert.False(t, report.Probes[1].Healthy)
	assert.Contains(t, report.Probes[1].Error, "503")
	assert.False(t, report.Probes[2].Healthy)
	assert.Contains(t, report.Probes[2].Error, "deadline")
}

func TestBootstrapRejectsInvalidConfig(t *testing.T) {
	cfg := bootstrapConfig()
	cfg.JWT.Secret = "short"
	cfg.SSO.ServerURL = ""

	_, err := NewBootstrapService(cfg, nil).Run(context.Background())
	var cfgErr *config.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, cfgErr.Missing, "SSO_SERVER_URL")
	assert.NotEmpty(t, cfgErr.Invalid)
}
