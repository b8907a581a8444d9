package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	App        AppConfig        `koanf:"app"`
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Redis      RedisConfig      `koanf:"redis"`
	JWT        JWTConfig        `koanf:"jwt"`
	Storage    StorageConfig    `koanf:"storage"`
	RateLimit  RateLimitConfig  `koanf:"rate_limit"`
	CORS       CORSConfig       `koanf:"cors"`
	Log        LogConfig        `koanf:"log"`
	RequestLog RequestLogConfig `koanf:"request_log"`
}

type AppConfig struct {
	Name        string `koanf:"name"`
	Environment string `koanf:"environment"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	MaxUploadBytes  int64         `koanf:"max_upload_bytes"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	SlowThreshold   time.Duration `koanf:"slow_threshold"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

type RedisConfig struct {
	URL      string `koanf:"url"`
	PoolSize int    `koanf:"pool_size"`
}

type JWTConfig struct {
	Secret          string        `koanf:"secret"`
	Issuer          string        `koanf:"issuer"`
	AccessTokenTTL  time.Duration `koanf:"access_token_ttl"`
	RefreshTokenTTL time.Duration `koanf:"refresh_token_ttl"`
	CookieSecure    bool          `koanf:"cookie_secure"`
	CookieDomain    string        `koanf:"cookie_domain"`
}

type StorageConfig struct {
	Backend       string      `koanf:"backend"`
	LocalDir      string      `koanf:"local_dir"`
	PublicBaseURL string      `koanf:"public_base_url"`
	Minio         MinioConfig `koanf:"minio"`
}

type MinioConfig struct {
	Endpoint      string        `koanf:"endpoint"`
	AccessKey     string        `koanf:"access_key"`
	SecretKey     string        `koanf:"secret_key"`
	Bucket        string        `koanf:"bucket"`
	UseSSL        bool          `koanf:"use_ssl"`
	PresignExpiry time.Duration `koanf:"presign_expiry"`
}

type RateLimitConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
	Burst    int           `koanf:"burst"`
}

type CORSConfig struct {
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type RequestLogConfig struct {
	Enabled      bool   `koanf:"enabled"`
	GeoIPPath    string `koanf:"geoip_path"`
	MaxBodyBytes int    `koanf:"max_body_bytes"`
}

const (
	StorageLocal = "local"
	StorageMinio = "minio"
)

// Load layers defaults, the optional YAML file at configPath and the environment.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKeyReplacer), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":        "crowpro-api",
		"app.environment": "development",

		"server.host":             "0.0.0.0",
		"server.port":             8080,
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "15s",
		"server.max_upload_bytes": 5 << 20,

		"database.max_open_conns":    25,
		"database.max_idle_conns":    5,
		"database.conn_max_lifetime": "1h",
		"database.slow_threshold":    "1s",
		"database.auto_migrate":      true,

		"redis.pool_size": 10,

		"jwt.issuer":            "crowpro-api",
		"jwt.access_token_ttl":  "15m",
		"jwt.refresh_token_ttl": "720h",
		"jwt.cookie_secure":     true,

		"storage.backend":              StorageLocal,
		"storage.local_dir":            "media",
		"storage.public_base_url":      "http://localhost:8080/media",
		"storage.minio.bucket":         "crowpro",
		"storage.minio.presign_expiry": "1h",

		"rate_limit.enabled":  true,
		"rate_limit.requests": 20,
		"rate_limit.window":   "1m",
		"rate_limit.burst":    5,

		"cors.allowed_origins":   []string{"http://localhost:3000"},
		"cors.allowed_methods":   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		"cors.allowed_headers":   []string{"Origin", "Content-Type", "Authorization"},
		"cors.allow_credentials": true,

		"log.level":  "info",
		"log.format": "json",

		"request_log.enabled":        true,
		"request_log.max_body_bytes": 4096,
	}

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

var envKeyMap = map[string]string{
	"ENVIRONMENT":           "app.environment",
	"HOST":                  "server.host",
	"PORT":                  "server.port",
	"DATABASE_URL":          "database.url",
	"DB_AUTO_MIGRATE":       "database.auto_migrate",
	"REDIS_URL":             "redis.url",
	"JWT_SECRET":            "jwt.secret",
	"JWT_ISSUER":            "jwt.issuer",
	"JWT_ACCESS_TOKEN_TTL":  "jwt.access_token_ttl",
	"JWT_REFRESH_TOKEN_TTL": "jwt.refresh_token_ttl",
	"COOKIE_SECURE":         "jwt.cookie_secure",
	"COOKIE_DOMAIN":         "jwt.cookie_domain",
	"STORAGE_BACKEND":       "storage.backend",
	"STORAGE_LOCAL_DIR":     "storage.local_dir",
	"STORAGE_PUBLIC_URL":    "storage.public_base_url",
	"MINIO_ENDPOINT":        "storage.minio.endpoint",
	"MINIO_ACCESS_KEY":      "storage.minio.access_key",
	"MINIO_SECRET_KEY":      "storage.minio.secret_key",
	"MINIO_BUCKET":          "storage.minio.bucket",
	"MINIO_USE_SSL":         "storage.minio.use_ssl",
	"RATE_LIMIT_ENABLED":    "rate_limit.enabled",
	"RATE_LIMIT_REQUESTS":   "rate_limit.requests",
	"RATE_LIMIT_WINDOW":     "rate_limit.window",
	"LOG_LEVEL":             "log.level",
	"LOG_FORMAT":            "log.format",
	"REQUEST_LOG_ENABLED":   "request_log.enabled",
	"GEOIP_PATH":            "request_log.geoip_path",
}

func envKeyReplacer(s string) string {
	if mapped, ok := envKeyMap[s]; ok {
		return mapped
	}
	return ""
}

func validate(c *Config) error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.IsProduction() && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes in production")
	}

	if c.JWT.AccessTokenTTL <= 0 || c.JWT.RefreshTokenTTL <= c.JWT.AccessTokenTTL {
		return fmt.Errorf("refresh token ttl must exceed a positive access token ttl")
	}

	switch c.Storage.Backend {
	case StorageLocal:
		if strings.TrimSpace(c.Storage.LocalDir) == "" {
			return fmt.Errorf("storage.local_dir is required for the local backend")
		}
	case StorageMinio:
		if c.Storage.Minio.Endpoint == "" || c.Storage.Minio.Bucket == "" {
			return fmt.Errorf("MINIO_ENDPOINT and MINIO_BUCKET are required for the minio backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if c.CORS.AllowCredentials {
		for _, origin := range c.CORS.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf("CORS wildcard '*' cannot be used with AllowCredentials")
			}
		}
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
