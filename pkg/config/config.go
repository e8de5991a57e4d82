package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// MinJWTSecretLength is the shortest accepted signing secret.
	MinJWTSecretLength = 32
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	SSO         SSOConfig
	Metadata    MetadataConfig
	Sync        SyncConfig
	NoticeCache NoticeCacheConfig
	RateLimit   RateLimitConfig

	HealthCheckTimeout time.Duration
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret    string
	ExpiresIn time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SSOConfig locates the identity server that issues access tokens.
type SSOConfig struct {
	ServerURL    string
	ClientID     string
	ClientSecret string
}

// MetadataConfig locates the employee metadata server.
type MetadataConfig struct {
	ServerURL string
	APIKey    string
	PageSize  int
}

// SyncConfig drives the periodic maintenance runner.
type SyncConfig struct {
	Interval           time.Duration
	MaintenanceEnabled bool
}

// NoticeCacheConfig toggles Redis caching of visible notice feeds.
type NoticeCacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// RateLimitConfig bounds how often one client may record notice views.
type RateLimitConfig struct {
	ViewsPerSecond float64
	Burst          int
}

// ConfigurationError lists missing or invalid settings. The process must not
// start while one is outstanding.
type ConfigurationError struct {
	Missing []string
	Invalid []string
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required keys: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid values: "+strings.Join(e.Invalid, "; "))
	}
	return "configuration error: " + strings.Join(parts, "; ")
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

// LoadAndValidate loads the configuration and rejects it when a required key
// is missing or malformed.
func LoadAndValidate() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:    v.GetString("JWT_SECRET"),
		ExpiresIn: parseDuration(v.GetString("JWT_EXPIRES_IN"), 0),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("CORS_ORIGIN"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.SSO = SSOConfig{
		ServerURL:    v.GetString("SSO_SERVER_URL"),
		ClientID:     v.GetString("SSO_CLIENT_ID"),
		ClientSecret: v.GetString("SSO_CLIENT_SECRET"),
	}

	cfg.Metadata = MetadataConfig{
		ServerURL: strings.TrimRight(v.GetString("METADATA_SERVER_URL"), "/"),
		APIKey:    v.GetString("METADATA_API_KEY"),
		PageSize:  v.GetInt("METADATA_PAGE_SIZE"),
	}

	cfg.Sync = SyncConfig{
		Interval:           time.Duration(v.GetInt("SYNC_INTERVAL_MINUTES")) * time.Minute,
		MaintenanceEnabled: v.GetBool("MAINTENANCE_ENABLED"),
	}

	cfg.NoticeCache = NoticeCacheConfig{
		Enabled: v.GetBool("NOTICE_CACHE_ENABLED"),
		TTL:     parseDuration(v.GetString("NOTICE_CACHE_TTL"), 30*time.Second),
	}

	cfg.RateLimit = RateLimitConfig{
		ViewsPerSecond: v.GetFloat64("VIEW_RATE_LIMIT_PER_SECOND"),
		Burst:          v.GetInt("VIEW_RATE_LIMIT_BURST"),
	}

	cfg.HealthCheckTimeout = parseDuration(v.GetString("HEALTH_CHECK_TIMEOUT"), 3*time.Second)

	return cfg
}

// Validate checks required keys and value ranges.
func (c *Config) Validate() error {
	cfgErr := &ConfigurationError{}

	required := []struct {
		key   string
		value string
	}{
		{"JWT_SECRET", c.JWT.Secret},
		{"DB_HOST", c.Database.Host},
		{"DB_USER", c.Database.User},
		{"DB_PASSWORD", c.Database.Password},
		{"DB_NAME", c.Database.Name},
		{"SSO_SERVER_URL", c.SSO.ServerURL},
		{"SSO_CLIENT_ID", c.SSO.ClientID},
		{"SSO_CLIENT_SECRET", c.SSO.ClientSecret},
		{"METADATA_SERVER_URL", c.Metadata.ServerURL},
		{"METADATA_API_KEY", c.Metadata.APIKey},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			cfgErr.Missing = append(cfgErr.Missing, r.key)
		}
	}

	if c.JWT.Secret != "" && len(c.JWT.Secret) < MinJWTSecretLength {
		cfgErr.Invalid = append(cfgErr.Invalid, fmt.Sprintf("JWT_SECRET must be at least %d characters", MinJWTSecretLength))
	}
	if c.JWT.ExpiresIn <= 0 {
		cfgErr.Invalid = append(cfgErr.Invalid, "JWT_EXPIRES_IN must be a positive duration")
	}
	if c.Port < 1 || c.Port > 65535 {
		cfgErr.Invalid = append(cfgErr.Invalid, "PORT must be between 1 and 65535")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		cfgErr.Invalid = append(cfgErr.Invalid, "DB_PORT must be between 1 and 65535")
	}
	if c.Sync.Interval <= 0 {
		cfgErr.Invalid = append(cfgErr.Invalid, "SYNC_INTERVAL_MINUTES must be positive")
	}

	if len(cfgErr.Missing) > 0 || len(cfgErr.Invalid) > 0 {
		return cfgErr
	}
	return nil
}

// DatabaseURL renders the connection settings as a postgres URL for the migrator.
func (d DatabaseConfig) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", false)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_EXPIRES_IN", "24h")

	v.SetDefault("CORS_ORIGIN", "*")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("METADATA_PAGE_SIZE", 100)
	v.SetDefault("SYNC_INTERVAL_MINUTES", 60)
	v.SetDefault("MAINTENANCE_ENABLED", false)

	v.SetDefault("NOTICE_CACHE_ENABLED", false)
	v.SetDefault("NOTICE_CACHE_TTL", "30s")

	v.SetDefault("VIEW_RATE_LIMIT_PER_SECOND", 5)
	v.SetDefault("VIEW_RATE_LIMIT_BURST", 10)

	v.SetDefault("HEALTH_CHECK_TIMEOUT", "3s")
}

// parseDuration accepts Go durations plus a trailing "d" for whole days.
func parseDuration(raw string, fallback time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	if strings.HasSuffix(raw, "d") {
		var days int
		if _, err := fmt.Sscanf(raw, "%dd", &days); err == nil && days > 0 {
			return time.Duration(days) * 24 * time.Hour
		}
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

// splitAndTrim treats "*" as "allow any origin", which the CORS middleware
// models as an empty list.
func splitAndTrim(raw string) []string {
	if raw == "" || strings.TrimSpace(raw) == "*" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

