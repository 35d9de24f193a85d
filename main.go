package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datagate/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-datagate/pkg/adapters/datasource/mssql"
	"github.com/ekaya-inc/ekaya-datagate/pkg/adapters/datasource/mysql"
	"github.com/ekaya-inc/ekaya-datagate/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/ekaya-datagate/pkg/adapters/datasource/rest"
	"github.com/ekaya-inc/ekaya-datagate/pkg/audit"
	"github.com/ekaya-inc/ekaya-datagate/pkg/auth"
	"github.com/ekaya-inc/ekaya-datagate/pkg/config"
	"github.com/ekaya-inc/ekaya-datagate/pkg/crypto"
	"github.com/ekaya-inc/ekaya-datagate/pkg/database"
	"github.com/ekaya-inc/ekaya-datagate/pkg/handlers"
	"github.com/ekaya-inc/ekaya-datagate/pkg/mcp"
	mcpauth "github.com/ekaya-inc/ekaya-datagate/pkg/mcp/auth"
	"github.com/ekaya-inc/ekaya-datagate/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-datagate/pkg/middleware"
	"github.com/ekaya-inc/ekaya-datagate/pkg/repositories"
	"github.com/ekaya-inc/ekaya-datagate/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", cfg.Database.User+"@"+cfg.Database.Host+"/"+cfg.Database.Database),
	)

	ctx := context.Background()

	db, err := database.NewConnection(ctx, database.ConfigFrom(&cfg.Database))
	if err != nil {
		logger.Fatal("Failed to connect to metadata database", zap.Error(err))
	}
	defer db.Close()

	if err := database.RunMigrations(db, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	sealer, err := crypto.NewConfigSealer(cfg.CredentialsKey)
	if err != nil {
		logger.Fatal("Failed to initialize credentials sealer", zap.Error(err))
	}

	// Connector types
	registry := datasource.NewRegistry(logger)
	postgres.Register(registry, postgres.Options{
		MaxConns: cfg.Connectors.PoolMaxConns,
		MinConns: cfg.Connectors.PoolMinConns,
	})
	mysql.Register(registry)
	mssql.Register(registry)
	rest.Register(registry, cfg.Connectors.RESTTimeout())

	// Repositories
	dataSourceRepo := repositories.NewDataSourceRepository(db)
	permissionRepo := repositories.NewPermissionRepository(db)
	toolScopeRepo := repositories.NewToolScopeRepository(db)
	apiLogRepo := repositories.NewApiLogRepository(db)

	// Services
	resolver := services.NewPermissionResolver(dataSourceRepo, permissionRepo, logger)
	pool := datasource.NewPool(logger)
	manager := services.NewConnectorManager(
		dataSourceRepo,
		toolScopeRepo,
		apiLogRepo,
		resolver,
		registry,
		pool,
		sealer,
		audit.NewSecurityAuditor(logger),
		services.ManagerConfig{
			QueryTimeout: cfg.Connectors.QueryTimeout(),
			DefaultLimit: cfg.Connectors.DefaultLimit,
			MaxLimit:     cfg.Connectors.MaxLimit,
		},
		logger,
	)
	dataSourceService := services.NewDataSourceService(
		dataSourceRepo, permissionRepo, toolScopeRepo, registry, manager, sealer, logger,
	)
	catalog := services.NewCatalog(resolver, toolScopeRepo, logger)

	// Authentication
	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
		HMACSecret:         cfg.Auth.HMACSecret,
	})
	if err != nil {
		logger.Fatal("Failed to initialize JWKS client", zap.Error(err))
	}
	defer jwksClient.Close()

	authService := auth.NewAuthService(jwksClient, logger)
	authMiddleware := auth.NewMiddleware(authService, logger)

	mux := http.NewServeMux()

	// Register handlers
	handlers.NewHealthHandler(cfg, pool, db, logger).RegisterRoutes(mux)
	handlers.NewExecuteHandler(manager, catalog, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewDataSourcesHandler(dataSourceService, logger).RegisterRoutes(mux, authMiddleware, cfg.Auth.AdminRole)
	handlers.NewApiLogsHandler(apiLogRepo, logger).RegisterRoutes(mux, authMiddleware, cfg.Auth.AdminRole)

	// MCP
	mcpServer := mcp.NewServer("ekaya-datagate", cfg.Version, mcp.NewToolCallLogger(logger), logger)
	tools.RegisterDataTools(mcpServer.MCP(), &tools.DataToolDeps{
		Manager: manager,
		Catalog: catalog,
		Logger:  logger,
	})
	tools.RegisterHealthTool(mcpServer.MCP(), cfg.Version, pool)
	mux.Handle("/mcp", mcpauth.NewMiddleware(authService, logger).RequireAuth(mcpServer.NewStreamableHTTPServer()))

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger.Named("http"))(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-datagate",
			zap.String("addr", srv.Addr),
			zap.Bool("tls", cfg.TLSCertPath != ""),
		)
		if cfg.TLSCertPath != "" && cfg.TLSKeyPath != "" {
			errCh <- srv.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during HTTP shutdown", zap.Error(err))
	}

	manager.DisconnectAll()
	logger.Info("Shutdown complete")
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
