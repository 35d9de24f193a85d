package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for ekaya-datagate.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	Auth AuthConfig `yaml:"auth"`

	// Metadata database (data sources, permissions, audit log)
	Database DatabaseConfig `yaml:"database"`

	Connectors ConnectorsConfig `yaml:"connectors"`

	// CredentialsKey encrypts data source connection configs at rest.
	// Must be a 32-byte key, base64 encoded. Generate with: openssl rand -base64 32
	CredentialsKey string `yaml:"-" env:"DATASOURCE_CREDENTIALS_KEY"` // Secret - not in YAML
}

// AuthConfig holds caller token verification settings.
type AuthConfig struct {
	// EnableVerification controls whether bearer tokens are validated.
	// Set to false for local development; tokens are then parsed without signature checks.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2"
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`

	// HMACSecret enables HS256 tokens for deployments without a JWKS issuer.
	HMACSecret string `yaml:"-" env:"AUTH_HMAC_SECRET"` // Secret - not in YAML

	// AdminRole is the role claim required for the admin API.
	AdminRole string `yaml:"admin_role" env:"AUTH_ADMIN_ROLE" env-default:"admin"`
}

// DatabaseConfig holds the metadata PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_datagate"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MaxIdleConns   int32  `yaml:"max_idle_conns" env:"PGMAX_IDLE_CONNS" env-default:"5"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// ConnectorsConfig holds backend execution limits.
type ConnectorsConfig struct {
	// QueryTimeoutMs applies when a request does not set its own timeout.
	QueryTimeoutMs int `yaml:"query_timeout_ms" env:"CONNECTOR_QUERY_TIMEOUT_MS" env-default:"5000"`
	// DefaultLimit and MaxLimit bound List page sizes.
	DefaultLimit int `yaml:"default_limit" env:"CONNECTOR_DEFAULT_LIMIT" env-default:"100"`
	MaxLimit     int `yaml:"max_limit" env:"CONNECTOR_MAX_LIMIT" env-default:"1000"`
	// PoolMaxConns and PoolMinConns size each pgx pool opened for a Postgres data source.
	PoolMaxConns int32 `yaml:"pool_max_conns" env:"CONNECTOR_POOL_MAX_CONNS" env-default:"10"`
	PoolMinConns int32 `yaml:"pool_min_conns" env:"CONNECTOR_POOL_MIN_CONNS" env-default:"0"`
	// RESTTimeoutMs is the HTTP client timeout for REST data sources without their own.
	RESTTimeoutMs int `yaml:"rest_timeout_ms" env:"REST_TIMEOUT_MS" env-default:"10000"`
}

// QueryTimeout returns QueryTimeoutMs as a duration.
func (c ConnectorsConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutMs) * time.Millisecond
}

// RESTTimeout returns RESTTimeoutMs as a duration.
func (c ConnectorsConfig) RESTTimeout() time.Duration {
	return time.Duration(c.RESTTimeoutMs) * time.Millisecond
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile is Load with an explicit path.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.Auth.JWKSEndpoints = parseJWKSEndpoints(cfg.Auth.JWKSEndpointsStr)

	if err := cfg.validateTLS(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}
	if err := cfg.Connectors.validate(); err != nil {
		return nil, fmt.Errorf("invalid connectors configuration: %w", err)
	}

	return cfg, nil
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

func (c ConnectorsConfig) validate() error {
	if c.QueryTimeoutMs <= 0 {
		return fmt.Errorf("query_timeout_ms must be positive, got %d", c.QueryTimeoutMs)
	}
	if c.DefaultLimit <= 0 || c.MaxLimit < c.DefaultLimit {
		return fmt.Errorf("default_limit (%d) must be positive and not above max_limit (%d)", c.DefaultLimit, c.MaxLimit)
	}
	if c.PoolMinConns > c.PoolMaxConns {
		return fmt.Errorf("pool_min_conns (%d) exceeds pool_max_conns (%d)", c.PoolMinConns, c.PoolMaxConns)
	}
	return nil
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	for _, pair := range strings.Split(value, ",") {
		issuer, jwksURL, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		endpoints[strings.TrimSpace(issuer)] = strings.TrimSpace(jwksURL)
	}
	return endpoints
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
