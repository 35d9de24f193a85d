package rest

import (
	"fmt"
	"net/url"
	"time"

	"github.com/ekaya-inc/ekaya-datagate/pkg/jsonutil"
)

// Config describes one allow-listed REST API.
type Config struct {
	BaseURL          string
	Headers          map[string]string
	AllowedEndpoints []string // empty means every endpoint is callable
	Timeout          time.Duration
}

// FromMap creates a Config from a decrypted data source config. defaultTimeout
// applies when timeout_ms is absent.
func FromMap(config map[string]any, defaultTimeout time.Duration) (*Config, error) {
	cfg := &Config{Timeout: defaultTimeout}

	baseURL, _ := config["base_url"].(string)
	if baseURL == "" {
		return nil, fmt.Errorf("base_url is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("base_url must be an absolute http(s) URL")
	}
	cfg.BaseURL = baseURL

	headers, err := jsonutil.StringMap(config["headers"])
	if err != nil {
		return nil, fmt.Errorf("invalid headers: %w", err)
	}
	cfg.Headers = headers

	cfg.AllowedEndpoints = jsonutil.StringSlice(config["allowed_endpoints"])

	if ms, ok := jsonutil.FlexibleInt(config["timeout_ms"]); ok && ms > 0 {
		cfg.Timeout = time.Duration(ms) * time.Millisecond
	}

	return cfg, nil
}

// EndpointAllowed reports whether endpoint may be called. Matching is exact
// and case-sensitive.
func (c *Config) EndpointAllowed(endpoint string) bool {
	if len(c.AllowedEndpoints) == 0 {
		return true
	}
	for _, allowed := range c.AllowedEndpoints {
		if allowed == endpoint {
			return true
		}
	}
	return false
}
