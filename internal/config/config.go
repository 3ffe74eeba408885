package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const minGatewaySecretLen = 32

type Config struct {
	Env       string          `yaml:"env"` // development, production, test
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	JWT       JWTConfig       `yaml:"jwt"`
	Cookie    CookieConfig    `yaml:"cookie"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Redis     RedisConfig     `yaml:"redis"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	CORS      CORSConfig      `yaml:"cors"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn"`
}

type JWTConfig struct {
	Issuer        string `yaml:"issuer"`
	Audience      string `yaml:"audience"`
	KeyID         string `yaml:"key_id"`
	PrivateKeyPEM string `yaml:"private_key_pem"` // inline PEM or file path
	AccessTTLSec  int    `yaml:"access_ttl_sec"`
	RefreshTTLSec int    `yaml:"refresh_ttl_sec"`
}

type CookieConfig struct {
	Domain   string `yaml:"domain"`
	Secure   bool   `yaml:"secure"`
	SameSite string `yaml:"same_site"` // lax, strict, none
}

// GatewayConfig carries the trust-boundary settings shared by the edge
// proxy and the resource backend: the pre-shared gateway secret, the JWKS
// location of the auth service, and the upstream targets.
type GatewayConfig struct {
	Secret          string `yaml:"secret"`
	JWKSURL         string `yaml:"jwks_url"`
	AuthServiceURL  string `yaml:"auth_service_url"`
	BackendURL      string `yaml:"backend_url"`
	JWKSCacheTTLSec int    `yaml:"jwks_cache_ttl_sec"`
	JWKSPerMinute   int    `yaml:"jwks_requests_per_minute"`
}

type RateLimitConfig struct {
	AuthMax         int `yaml:"auth_max"`
	AuthWindowSec   int `yaml:"auth_window_sec"`
	ResetMax        int `yaml:"reset_max"`
	ResetWindowSec  int `yaml:"reset_window_sec"`
	GlobalMax       int `yaml:"global_max"`
	GlobalWindowSec int `yaml:"global_window_sec"`
}

// RedisConfig enables the async security-event queue and the shared
// rate-limit counters. Everything degrades to in-process fallbacks when
// disabled.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SMTPConfig configures password-reset mail delivery. When disabled the
// reset link is only logged, which is enough for development.
type SMTPConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	UseTLS   bool   `yaml:"use_tls"`
	// ResetURL is the frontend page the emailed link points at; the
	// token is appended as a query parameter.
	ResetURL string `yaml:"reset_url"`
}

type CORSConfig struct {
	Origins []string `yaml:"origins"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	var cfg *Config

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg = DefaultConfig()
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}

		fileCfg := DefaultConfig()
		if err := yaml.Unmarshal(data, fileCfg); err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	cfg.overrideFromEnv()
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Env: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "5002",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "auth.db",
		},
		JWT: JWTConfig{
			Issuer:        "studio-s-auth",
			Audience:      "studio-s-clients",
			KeyID:         "studio-s-auth-1",
			AccessTTLSec:  900,
			RefreshTTLSec: 1209600, // 14 days
		},
		Cookie: CookieConfig{
			Domain:   "localhost",
			Secure:   false,
			SameSite: "lax",
		},
		Gateway: GatewayConfig{
			JWKSURL:         "http://localhost:5002/.well-known/jwks.json",
			AuthServiceURL:  "http://localhost:5002",
			BackendURL:      "http://localhost:5001",
			JWKSCacheTTLSec: 600,
			JWKSPerMinute:   10,
		},
		RateLimit: RateLimitConfig{
			AuthMax:         5,
			AuthWindowSec:   900,
			ResetMax:        3,
			ResetWindowSec:  3600,
			GlobalMax:       100,
			GlobalWindowSec: 3600,
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
		SMTP: SMTPConfig{
			Enabled:  false,
			Port:     587,
			ResetURL: "http://localhost:5173/reset-password",
		},
		CORS: CORSConfig{
			Origins: []string{"http://localhost:5173"},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func (c *Config) overrideFromEnv() {
	if env := os.Getenv("APP_ENV"); env != "" {
		c.Env = env
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if issuer := os.Getenv("JWT_ISSUER"); issuer != "" {
		c.JWT.Issuer = issuer
	}
	if audience := os.Getenv("JWT_AUDIENCE"); audience != "" {
		c.JWT.Audience = audience
	}
	if kid := os.Getenv("JWT_KID"); kid != "" {
		c.JWT.KeyID = kid
	}
	if pem := os.Getenv("JWT_PRIVATE_PEM"); pem != "" {
		c.JWT.PrivateKeyPEM = pem
	}
	if ttl := os.Getenv("ACCESS_TOKEN_TTL_SEC"); ttl != "" {
		if v, err := strconv.Atoi(ttl); err == nil {
			c.JWT.AccessTTLSec = v
		}
	}
	if ttl := os.Getenv("REFRESH_TOKEN_TTL_SEC"); ttl != "" {
		if v, err := strconv.Atoi(ttl); err == nil {
			c.JWT.RefreshTTLSec = v
		}
	}
	if domain := os.Getenv("COOKIE_DOMAIN"); domain != "" {
		c.Cookie.Domain = domain
	}
	if secure := os.Getenv("COOKIE_SECURE"); secure != "" {
		c.Cookie.Secure = secure == "true"
	}
	if sameSite := os.Getenv("COOKIE_SAMESITE"); sameSite != "" {
		c.Cookie.SameSite = sameSite
	}
	if secret := os.Getenv("GATEWAY_SECRET"); secret != "" {
		c.Gateway.Secret = secret
	}
	if url := os.Getenv("JWKS_URL"); url != "" {
		c.Gateway.JWKSURL = url
	}
	if url := os.Getenv("AUTH_SERVICE_URL"); url != "" {
		c.Gateway.AuthServiceURL = url
	}
	if url := os.Getenv("BACKEND_URL"); url != "" {
		c.Gateway.BackendURL = url
	}
	if host := os.Getenv("SMTP_HOST"); host != "" {
		c.SMTP.Enabled = true
		c.SMTP.Host = host
	}
	if port := os.Getenv("SMTP_PORT"); port != "" {
		if v, err := strconv.Atoi(port); err == nil {
			c.SMTP.Port = v
		}
	}
	if user := os.Getenv("SMTP_USERNAME"); user != "" {
		c.SMTP.Username = user
	}
	if pass := os.Getenv("SMTP_PASSWORD"); pass != "" {
		c.SMTP.Password = pass
	}
	if from := os.Getenv("SMTP_FROM"); from != "" {
		c.SMTP.From = from
	}
	if reset := os.Getenv("PASSWORD_RESET_URL"); reset != "" {
		c.SMTP.ResetURL = reset
	}
	if origins := os.Getenv("CORS_ORIGIN"); origins != "" {
		c.CORS.Origins = strings.Split(origins, ",")
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	// Redis URL override (format: redis://:password@host:port/db)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.Enabled = true
		c.parseRedisURL(redisURL)
	}
}

// parseRedisURL parses a Redis URL and sets config values
// Format: redis://:password@host:port/db
func (c *Config) parseRedisURL(redisURL string) {
	url := strings.TrimPrefix(redisURL, "redis://")

	if atIdx := strings.Index(url, "@"); atIdx != -1 {
		authPart := url[:atIdx]
		url = url[atIdx+1:]
		if colonIdx := strings.Index(authPart, ":"); colonIdx != -1 {
			c.Redis.Password = authPart[colonIdx+1:]
		}
	}

	if slashIdx := strings.LastIndex(url, "/"); slashIdx != -1 {
		dbStr := url[slashIdx+1:]
		url = url[:slashIdx]
		if db, err := strconv.Atoi(dbStr); err == nil {
			c.Redis.DB = db
		}
	}

	c.Redis.Addr = url
}

// validateCommon checks the settings every binary depends on.
func (c *Config) validateCommon() error {
	switch c.Env {
	case "development", "production", "test":
	default:
		return fmt.Errorf("invalid env %q (expected development, production or test)", c.Env)
	}
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	return nil
}

func (c *Config) validateGatewaySecret() error {
	if c.Gateway.Secret == "" {
		return fmt.Errorf("GATEWAY_SECRET is required")
	}
	if len(c.Gateway.Secret) < minGatewaySecretLen {
		return fmt.Errorf("gateway secret must be at least %d characters", minGatewaySecretLen)
	}
	return nil
}

// ValidateAuthd checks everything the auth service needs before it binds
// a listener. Invalid configuration is fatal at startup.
func (c *Config) ValidateAuthd() error {
	if err := c.validateCommon(); err != nil {
		return err
	}
	// The auth service sits behind GatewayTrust itself, so a missing
	// secret would boot it into rejecting every request.
	if err := c.validateGatewaySecret(); err != nil {
		return err
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}
	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.JWT.Issuer == "" || c.JWT.Audience == "" {
		return fmt.Errorf("jwt issuer and audience are required")
	}
	if c.JWT.AccessTTLSec <= 0 || c.JWT.RefreshTTLSec <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	if c.IsProduction() && c.JWT.PrivateKeyPEM == "" {
		return fmt.Errorf("JWT_PRIVATE_PEM is required in production")
	}
	switch c.Cookie.SameSite {
	case "lax", "strict", "none":
	default:
		return fmt.Errorf("invalid cookie same_site %q (expected lax, strict or none)", c.Cookie.SameSite)
	}
	return nil
}

// ValidateGateway checks the edge proxy settings: upstream targets, the
// JWKS source for Tier-1 verification and the shared secret it injects.
func (c *Config) ValidateGateway() error {
	if err := c.validateCommon(); err != nil {
		return err
	}
	if err := c.validateGatewaySecret(); err != nil {
		return err
	}
	if c.Gateway.JWKSURL == "" {
		return fmt.Errorf("JWKS_URL is required")
	}
	if c.Gateway.AuthServiceURL == "" || c.Gateway.BackendURL == "" {
		return fmt.Errorf("upstream service URLs are required")
	}
	if c.JWT.Issuer == "" || c.JWT.Audience == "" {
		return fmt.Errorf("jwt issuer and audience are required")
	}
	return nil
}

// ValidateBackend checks the resource-service settings. The backend only
// needs the shared secret; it never verifies tokens itself.
func (c *Config) ValidateBackend() error {
	if err := c.validateCommon(); err != nil {
		return err
	}
	return c.validateGatewaySecret()
}

func (c *Config) Save(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}
