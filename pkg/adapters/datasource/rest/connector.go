package rest

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datagate/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-datagate/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datagate/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-datagate/pkg/logging"
)

// Connector exposes an allow-listed REST API through the capability contract.
//
//   - Query: SQL is the endpoint name; GET, or POST when Params[0] is a payload object
//   - List: GET Resource with Filters as query parameters; empty Resource lists endpoints
//   - Create: POST Resource with Data
type Connector struct {
	cfg    *Config
	logger *zap.Logger

	mu     sync.RWMutex
	client *Client
}

var _ datasource.Connector = (*Connector)(nil)

// New creates an unconnected connector.
func New(cfg *Config, logger *zap.Logger) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{cfg: cfg, logger: logger}
}

// Connect builds the HTTP client. No request is sent.
func (c *Connector) Connect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		c.client = NewClient(c.cfg, c.logger)
	}
	return nil
}

func (c *Connector) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
	return nil
}

// TestConnection reports whether the base URL answers below 500.
func (c *Connector) TestConnection(ctx context.Context) bool {
	client := c.current()
	if client == nil {
		client = NewClient(c.cfg, c.logger)
		defer client.Close()
	}
	if err := client.Ping(ctx); err != nil {
		c.logger.Debug("REST connection test failed", zap.String("error", logging.SanitizeError(err)))
		return false
	}
	return true
}

func (c *Connector) Capabilities() datasource.Capabilities {
	return datasource.Capabilities{CanQuery: true, CanList: true, CanCreate: true}
}

func (c *Connector) current() *Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

func (c *Connector) connected() (*Client, error) {
	client := c.current()
	if client == nil {
		return nil, apperrors.ErrNotConnected
	}
	return client, nil
}

func (c *Connector) Query(ctx context.Context, req datasource.QueryRequest) (*datasource.Result, error) {
	var payload any
	if len(req.Params) > 0 {
		if m, ok := req.Params[0].(map[string]any); ok {
			payload = m
		}
	}
	return c.call(ctx, req.Timeout, req.BlockedColumns, func(ctx context.Context, client *Client) (any, error) {
		return client.Call(ctx, req.SQL, payload)
	})
}

func (c *Connector) List(ctx context.Context, req datasource.ListRequest) (*datasource.Result, error) {
	if req.Resource == "" {
		return c.listEndpoints(req.AllowedTables), nil
	}
	query := url.Values{}
	for k, v := range req.Filters {
		query.Set(k, jsonutil.FlexibleString(v))
	}
	return c.call(ctx, req.Timeout, req.BlockedColumns, func(ctx context.Context, client *Client) (any, error) {
		return client.do(ctx, http.MethodGet, req.Resource, query, nil)
	})
}

func (c *Connector) Create(ctx context.Context, req datasource.WriteRequest) (*datasource.Result, error) {
	data := req.Data
	if data == nil {
		data = map[string]any{}
	}
	return c.call(ctx, req.Timeout, nil, func(ctx context.Context, client *Client) (any, error) {
		return client.Call(ctx, req.Resource, data)
	})
}

func (c *Connector) Update(context.Context, datasource.WriteRequest) (*datasource.Result, error) {
	return datasource.Unsupported("update"), nil
}

func (c *Connector) Delete(context.Context, datasource.WriteRequest) (*datasource.Result, error) {
	return datasource.Unsupported("delete"), nil
}

func (c *Connector) call(ctx context.Context, timeout time.Duration, blocked []string, fn func(context.Context, *Client) (any, error)) (*datasource.Result, error) {
	client, err := c.connected()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	body, err := datasource.RunWithTimeout(ctx, timeout, func(ctx context.Context) (any, error) {
		return fn(ctx, client)
	})
	if errors.Is(err, ErrEndpointNotAllowed) {
		return datasource.Denied(err.Error()), nil
	}
	if err != nil {
		return nil, err
	}
	return datasource.Rows(datasource.FilterBlockedColumns(toRows(body), blocked), time.Since(start)), nil
}

// listEndpoints reports the configured allow-list, narrowed by allowed when
// non-empty. An unrestricted API has nothing to enumerate.
func (c *Connector) listEndpoints(allowed []string) *datasource.Result {
	endpoints := append([]string(nil), c.cfg.AllowedEndpoints...)
	sort.Strings(endpoints)

	rows := make([]map[string]any, 0, len(endpoints))
	for _, e := range endpoints {
		if !datasource.ResourceAllowed(allowed, e) {
			continue
		}
		rows = append(rows, map[string]any{"name": e})
	}
	return datasource.Rows(rows, 0)
}

// toRows maps a decoded response onto result rows: arrays become one row per
// element, objects a single row, and scalars a single {"value": v} row.
func toRows(body any) []map[string]any {
	switch v := body.(type) {
	case nil:
		return []map[string]any{}
	case []any:
		rows := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				rows = append(rows, m)
			} else {
				rows = append(rows, map[string]any{"value": item})
			}
		}
		return rows
	case map[string]any:
		return []map[string]any{v}
	default:
		return []map[string]any{{"value": v}}
	}
}
