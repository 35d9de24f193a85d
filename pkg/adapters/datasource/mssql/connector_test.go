package mssql

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-datagate/pkg/adapters/datasource"
)

func TestConnector_ListUsesBracketsAndOffsetFetch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	c := NewWithDB(db, zaptest.NewLogger(t))
	defer c.Disconnect()

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT * FROM [sales].[orders] WHERE [region] = @p1 ORDER BY (SELECT NULL) OFFSET 0 ROWS FETCH NEXT 25 ROWS ONLY")).
		WithArgs("emea").
		WillReturnRows(sqlmock.NewRows([]string{"id", "card_number"}).AddRow(int64(1), "4111"))

	result, err := c.List(context.Background(), datasource.ListRequest{
		Resource:       "sales.orders",
		Filters:        map[string]any{"region": "emea"},
		Limit:          25,
		AllowedTables:  []string{"orders"},
		BlockedColumns: []string{"card_number"},
	})

	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"id": int64(1)}}, result.Data)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnector_RejectsNonSelect(t *testing.T) {
	c := New(&Config{Host: "sql", Database: "app", AuthMethod: AuthSQL, Username: "sa"}, zaptest.NewLogger(t))

	result, err := c.Query(context.Background(), datasource.QueryRequest{SQL: "EXEC sp_who"})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "Only SELECT queries are allowed", result.Error)
}

func TestDialect_QuoteIdentifierEscapesBrackets(t *testing.T) {
	assert.Equal(t, "[weird]]name]", dialect{}.QuoteIdentifier("weird]name"))
}

func TestFromMap_SQLAuth(t *testing.T) {
	cfg, err := FromMap(map[string]any{
		"host":                     "sql.internal",
		"database":                 "erp",
		"user":                     "reader",
		"password":                 "p@ss#1",
		"trust_server_certificate": true,
	})
	require.NoError(t, err)
	assert.Equal(t, AuthSQL, cfg.AuthMethod)
	assert.Equal(t, "sqlserver", cfg.DriverName())

	u, err := url.Parse(cfg.URL())
	require.NoError(t, err)
	assert.Equal(t, "sql.internal:1433", u.Host)
	assert.Equal(t, "reader", u.User.Username())
	password, _ := u.User.Password()
	assert.Equal(t, "p@ss#1", password)
	assert.Equal(t, "erp", u.Query().Get("database"))
	assert.Equal(t, "true", u.Query().Get("encrypt"))
	assert.Equal(t, "true", u.Query().Get("TrustServerCertificate"))
}

func TestURL_ResolvesLoopbackHostForDocker(t *testing.T) {
	orig := resolveHost
	resolveHost = func(host string) string {
		if host == "127.0.0.1" {
			return "host.docker.internal"
		}
		return host
	}
	t.Cleanup(func() { resolveHost = orig })

	cfg, err := FromMap(map[string]any{"host": "127.0.0.1", "database": "erp", "user": "u", "password": "p"})
	require.NoError(t, err)

	u, err := url.Parse(cfg.URL())
	require.NoError(t, err)
	assert.Equal(t, "host.docker.internal:1433", u.Host)
}

func TestFromMap_ServicePrincipal(t *testing.T) {
	cfg, err := FromMap(map[string]any{
		"host":          "x.database.windows.net",
		"database":      "erp",
		"tenant_id":     "tenant",
		"client_id":     "client",
		"client_secret": "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, AuthServicePrincipal, cfg.AuthMethod)
	assert.Equal(t, "azuresql", cfg.DriverName())

	u, err := url.Parse(cfg.URL())
	require.NoError(t, err)
	assert.Equal(t, "ActiveDirectoryServicePrincipal", u.Query().Get("fedauth"))
	assert.Nil(t, u.User)
}

func TestFromMap_Errors(t *testing.T) {
	_, err := FromMap(map[string]any{"database": "d", "user": "u"})
	assert.EqualError(t, err, "host is required")

	_, err = FromMap(map[string]any{"host": "h", "user": "u"})
	assert.EqualError(t, err, "database is required")

	_, err = FromMap(map[string]any{"host": "h", "database": "d"})
	assert.Error(t, err)

	_, err = FromMap(map[string]any{"host": "h", "database": "d", "client_id": "c"})
	assert.Error(t, err)

	_, err = FromMap(map[string]any{"host": "h", "database": "d", "auth_method": "kerberos"})
	assert.Error(t, err)
}

func TestConnector_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	host := os.Getenv("MSSQL_HOST")
	user := os.Getenv("MSSQL_USER")
	password := os.Getenv("MSSQL_PASSWORD")
	database := os.Getenv("MSSQL_DATABASE")
	if host == "" || user == "" || password == "" || database == "" {
		t.Skip("skipping integration test: MSSQL_HOST, MSSQL_USER, MSSQL_PASSWORD, or MSSQL_DATABASE not set")
	}

	port := DefaultPort()
	if p := os.Getenv("MSSQL_PORT"); p != "" {
		var err error
		port, err = strconv.Atoi(p)
		require.NoError(t, err, "invalid MSSQL_PORT")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c := New(&Config{
		Host:              host,
		Port:              port,
		Database:          database,
		AuthMethod:        AuthSQL,
		Username:          user,
		Password:          password,
		ConnectionTimeout: DefaultConnectionTimeout(),
	}, zaptest.NewLogger(t))
	require.NoError(t, c.Connect(ctx))
	defer c.Disconnect()

	assert.True(t, c.TestConnection(ctx))

	result, err := c.Query(ctx, datasource.QueryRequest{SQL: fmt.Sprintf("SELECT %d AS answer", 42)})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.EqualValues(t, 42, result.Data[0]["answer"])

	_, err = c.GetSchema(ctx)
	require.NoError(t, err)
}
