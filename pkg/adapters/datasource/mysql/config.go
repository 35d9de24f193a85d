package mysql

import (
	"fmt"
	"time"

	driver "github.com/go-sql-driver/mysql"

	"github.com/ekaya-inc/ekaya-datagate/pkg/config"
)

// resolveHost maps loopback hosts when running in Docker.
var resolveHost = config.ResolveHostForDocker

// Config contains MySQL connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	TLS      string // "", "true", "false", "skip-verify", "preferred"
	MaxConns int
}

// DefaultPort returns the default MySQL port.
func DefaultPort() int {
	return 3306
}

// FromMap creates a Config from a generic config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{Port: DefaultPort()}

	if host, ok := config["host"].(string); ok && host != "" {
		cfg.Host = host
	} else {
		return nil, fmt.Errorf("host is required")
	}

	if port, ok := config["port"].(float64); ok { // JSON numbers are float64
		cfg.Port = int(port)
	} else if port, ok := config["port"].(int); ok {
		cfg.Port = port
	}

	if user, ok := config["user"].(string); ok && user != "" {
		cfg.User = user
	} else {
		return nil, fmt.Errorf("user is required")
	}

	if password, ok := config["password"].(string); ok {
		cfg.Password = password
	}

	if database, ok := config["database"].(string); ok && database != "" {
		cfg.Database = database
	} else {
		return nil, fmt.Errorf("database is required")
	}

	if tls, ok := config["tls"].(string); ok {
		cfg.TLS = tls
	}

	if maxConns, ok := config["max_conns"].(float64); ok {
		cfg.MaxConns = int(maxConns)
	} else if maxConns, ok := config["max_conns"].(int); ok {
		cfg.MaxConns = maxConns
	}

	return cfg, nil
}

// DSN renders the driver data source name. The driver handles escaping of
// credentials.
func (c *Config) DSN() string {
	dc := driver.NewConfig()
	dc.Net = "tcp"
	dc.Addr = fmt.Sprintf("%s:%d", resolveHost(c.Host), c.Port)
	dc.User = c.User
	dc.Passwd = c.Password
	dc.DBName = c.Database
	dc.ParseTime = true
	dc.Timeout = 10 * time.Second
	if c.TLS != "" {
		dc.TLSConfig = c.TLS
	}
	return dc.FormatDSN()
}
