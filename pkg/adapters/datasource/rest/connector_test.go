package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-datagate/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-datagate/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datagate/pkg/models"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   string
}

type recorder struct {
	mu   sync.Mutex
	last recordedRequest
}

func (r *recorder) Get() recordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// newTestAPI starts an API that records the last request and answers with
// the handler's response.
func newTestAPI(t *testing.T, status int, response string) (*httptest.Server, *recorder) {
	t.Helper()
	last := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		last.mu.Lock()
		last.last = recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   string(body),
		}
		last.mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, last
}

func newConnected(t *testing.T, cfg *Config) *Connector {
	t.Helper()
	c := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Disconnect() })
	return c
}

func TestCall_EmptyAllowListIsUnrestricted(t *testing.T) {
	srv, last := newTestAPI(t, http.StatusOK, `{"ok":true}`)

	client := NewClient(&Config{BaseURL: srv.URL, AllowedEndpoints: []string{}}, zaptest.NewLogger(t))
	got, err := client.Call(context.Background(), "anything/at/all", nil)

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, got)
	assert.Equal(t, http.MethodGet, last.Get().Method)
	assert.Equal(t, "/anything/at/all", last.Get().Path)
}

func TestCall_AllowListIsCaseSensitive(t *testing.T) {
	srv, last := newTestAPI(t, http.StatusOK, `[]`)

	client := NewClient(&Config{BaseURL: srv.URL, AllowedEndpoints: []string{"users"}}, zaptest.NewLogger(t))

	_, err := client.Call(context.Background(), "Users", nil)
	require.ErrorIs(t, err, ErrEndpointNotAllowed)
	assert.EqualError(t, err, "Endpoint not allowed: Users")
	assert.Empty(t, last.Get().Method, "rejected calls never reach the API")

	_, err = client.Call(context.Background(), "users", nil)
	require.NoError(t, err)
}

func TestCall_PostsJSONWithHeaders(t *testing.T) {
	srv, last := newTestAPI(t, http.StatusCreated, `{"id":7}`)

	client := NewClient(&Config{
		BaseURL: srv.URL + "/v1/",
		Headers: map[string]string{"X-Api-Key": "secret"},
	}, zaptest.NewLogger(t))

	got, err := client.Call(context.Background(), "tickets", map[string]any{"title": "broken"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": float64(7)}, got)

	assert.Equal(t, http.MethodPost, last.Get().Method)
	assert.Equal(t, "/v1/tickets", last.Get().Path)
	assert.Equal(t, "secret", last.Get().Header.Get("X-Api-Key"))
	assert.Equal(t, "application/json", last.Get().Header.Get("Content-Type"))
	assert.JSONEq(t, `{"title":"broken"}`, last.Get().Body)
}

func TestCall_Non2xxEmbedsStatusAndBody(t *testing.T) {
	srv, _ := newTestAPI(t, http.StatusNotFound, `no such thing`)

	client := NewClient(&Config{BaseURL: srv.URL}, zaptest.NewLogger(t))
	_, err := client.Call(context.Background(), "missing", nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.EqualError(t, err, "REST API error: 404 no such thing")
}

func TestConnector_QueryArrayBecomesRowsWithRedaction(t *testing.T) {
	srv, last := newTestAPI(t, http.StatusOK, `[{"id":1,"email":"a@x.io","ssn":"1"},{"id":2,"email":"b@x.io","ssn":"2"}]`)
	c := newConnected(t, &Config{BaseURL: srv.URL, AllowedEndpoints: []string{"contacts"}})

	result, err := c.Query(context.Background(), datasource.QueryRequest{
		SQL:            "contacts",
		BlockedColumns: []string{"SSN"},
	})

	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, 2, result.RowCount)
	assert.Equal(t, []map[string]any{
		{"id": float64(1), "email": "a@x.io"},
		{"id": float64(2), "email": "b@x.io"},
	}, result.Data)
	assert.Equal(t, http.MethodGet, last.Get().Method)
}

func TestConnector_QueryWithPayloadPosts(t *testing.T) {
	srv, last := newTestAPI(t, http.StatusOK, `{"total":3}`)
	c := newConnected(t, &Config{BaseURL: srv.URL})

	result, err := c.Query(context.Background(), datasource.QueryRequest{
		SQL:    "search",
		Params: []any{map[string]any{"q": "x"}},
	})

	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"total": float64(3)}}, result.Data)
	assert.Equal(t, http.MethodPost, last.Get().Method)
	assert.JSONEq(t, `{"q":"x"}`, last.Get().Body)
}

func TestConnector_DisallowedEndpointIsDenied(t *testing.T) {
	srv, _ := newTestAPI(t, http.StatusOK, `[]`)
	c := newConnected(t, &Config{BaseURL: srv.URL, AllowedEndpoints: []string{"contacts"}})

	result, err := c.Query(context.Background(), datasource.QueryRequest{SQL: "admin/users"})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "Endpoint not allowed: admin/users", result.Error)
}

func TestConnector_ListSendsFiltersAsQuery(t *testing.T) {
	srv, last := newTestAPI(t, http.StatusOK, `[{"id":1}]`)
	c := newConnected(t, &Config{BaseURL: srv.URL})

	result, err := c.List(context.Background(), datasource.ListRequest{
		Resource: "orders",
		Filters:  map[string]any{"status": "open", "page": float64(2)},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, result.RowCount)
	assert.Equal(t, "/orders", last.Get().Path)
	assert.Equal(t, "page=2&status=open", last.Get().Query)
}

func TestConnector_ListWithoutResourceEnumeratesEndpoints(t *testing.T) {
	c := newConnected(t, &Config{BaseURL: "http://example.invalid", AllowedEndpoints: []string{"orders", "contacts", "invoices"}})

	result, err := c.List(context.Background(), datasource.ListRequest{AllowedTables: []string{"orders", "contacts"}})

	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"name": "contacts"}, {"name": "orders"}}, result.Data)
}

func TestConnector_CreatePostsData(t *testing.T) {
	srv, last := newTestAPI(t, http.StatusOK, `{"id":"abc"}`)
	c := newConnected(t, &Config{BaseURL: srv.URL})

	result, err := c.Create(context.Background(), datasource.WriteRequest{
		Resource: "leads",
		Data:     map[string]any{"name": "Acme"},
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, http.MethodPost, last.Get().Method)

	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte(last.Get().Body), &sent))
	assert.Equal(t, map[string]any{"name": "Acme"}, sent)
}

func TestConnector_UpdateDeleteUnsupported(t *testing.T) {
	c := New(&Config{BaseURL: "http://example.invalid"}, zaptest.NewLogger(t))

	caps := c.Capabilities()
	assert.True(t, caps.CanCreate)
	assert.False(t, caps.CanUpdate)
	assert.False(t, caps.CanDelete)

	result, err := c.Update(context.Background(), datasource.WriteRequest{Resource: "x"})
	require.NoError(t, err)
	assert.Equal(t, "Operation not supported: update", result.Error)

	result, err = c.Delete(context.Background(), datasource.WriteRequest{Resource: "x"})
	require.NoError(t, err)
	assert.Equal(t, "Operation not supported: delete", result.Error)
}

func TestConnector_NotConnected(t *testing.T) {
	c := New(&Config{BaseURL: "http://example.invalid"}, zaptest.NewLogger(t))

	_, err := c.Query(context.Background(), datasource.QueryRequest{SQL: "x"})
	assert.ErrorIs(t, err, apperrors.ErrNotConnected)
}

func TestConnector_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := newConnected(t, &Config{BaseURL: srv.URL})
	_, err := c.Query(context.Background(), datasource.QueryRequest{SQL: "slow", Timeout: 50 * time.Millisecond})

	require.ErrorIs(t, err, apperrors.ErrQueryTimeout)
	assert.EqualError(t, err, "Query timeout after 50ms")
}

func TestConnector_TestConnection(t *testing.T) {
	ok, _ := newTestAPI(t, http.StatusUnauthorized, ``)
	assert.True(t, New(&Config{BaseURL: ok.URL}, zaptest.NewLogger(t)).TestConnection(context.Background()))

	down, _ := newTestAPI(t, http.StatusServiceUnavailable, ``)
	assert.False(t, New(&Config{BaseURL: down.URL}, zaptest.NewLogger(t)).TestConnection(context.Background()))
}

func TestFromMap(t *testing.T) {
	cfg, err := FromMap(map[string]any{
		"base_url":          "https://api.example.com",
		"headers":           map[string]any{"Authorization": "Bearer t"},
		"allowed_endpoints": []any{"users"},
		"timeout_ms":        float64(2500),
	}, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2500*time.Millisecond, cfg.Timeout)
	assert.Equal(t, []string{"users"}, cfg.AllowedEndpoints)
	assert.Equal(t, "Bearer t", cfg.Headers["Authorization"])

	cfg, err = FromMap(map[string]any{"base_url": "http://10.0.0.1:8080"}, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.Timeout)

	_, err = FromMap(map[string]any{}, time.Second)
	assert.EqualError(t, err, "base_url is required")

	_, err = FromMap(map[string]any{"base_url": "ftp://files"}, time.Second)
	assert.EqualError(t, err, "base_url must be an absolute http(s) URL")
}

func TestRegister(t *testing.T) {
	reg := datasource.NewRegistry(zaptest.NewLogger(t))
	Register(reg, 3*time.Second)

	conn, err := reg.Create(models.DataSourceTypeREST, map[string]any{"base_url": "https://api.example.com"})
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, conn.(*Connector).cfg.Timeout)
}
