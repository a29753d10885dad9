package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"veritas/backend/internal/analysis"
	"veritas/backend/internal/api"
	"veritas/backend/internal/audit"
	"veritas/backend/internal/auth"
	"veritas/backend/internal/authz"
	"veritas/backend/internal/config"
	"veritas/backend/internal/documents"
	"veritas/backend/internal/inference"
	"veritas/backend/internal/logging"
	"veritas/backend/internal/mcp"
	"veritas/backend/internal/metrics"
	"veritas/backend/internal/pdftext"
	"veritas/backend/internal/repository"
	"veritas/backend/internal/storage"
	"veritas/backend/internal/tls"
	"veritas/backend/internal/workflow"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		inMemory   bool
	)
	cmd := &cobra.Command{
		Use:          "veritas-server",
		Short:        "Compliance workflow and analysis API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, configPath, inMemory)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to config.yaml")
	cmd.Flags().BoolVar(&inMemory, "memory", false, "Use the in-memory store instead of Postgres (development only)")
	return cmd
}

func run(ctx context.Context, configPath string, inMemory bool) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("configuration loading failed: %w", err)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel)
	logger.Info("Starting Veritas",
		"environment", cfg.Environment,
		"okta_domain", cfg.Auth.OktaDomain,
		"storage", cfg.Storage.Backend,
		"inference_url", cfg.Inference.URL,
	)
	if cfg.DevModeBypass && !cfg.IsDev() {
		logger.Warn("dev_mode_bypass is set outside DEV and will be ignored")
	}

	m, err := metrics.New()
	if err != nil {
		return fmt.Errorf("metrics initialization failed: %w", err)
	}

	store, closeStore, err := openStore(ctx, cfg, inMemory, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	auditWriter := audit.NewWriter(store, logger)
	resolver := authz.NewResolver(logger,
		authz.NewPolicyTier(cfg.Policy.URL, cfg.Policy.Timeout, decisionCache(cfg, logger), logger),
		authz.NewDatabaseTier(store, logger),
		authz.NewStaticTier(authz.DefaultMatrix, cfg.IsDev()),
	)
	authorizer := authz.NewAuthorizer(resolver, auditWriter)

	docs := documents.NewService(store, blobs, pdftext.Extractor{}, auditWriter, logger)
	analyzer := analysis.NewAnalyzer(
		inference.NewOllamaClient(cfg.Inference.URL, cfg.Inference.Model),
		cfg.Inference.ReasoningTimeout, cfg.Inference.ComplianceTimeout, m, logger,
	)
	analyses := analysis.NewService(docs, store, store, analyzer, authorizer, auditWriter, m, logger)
	workflows := workflow.NewService(store, authorizer, auditWriter, logger)
	engine := workflow.NewEngine(store, authorizer, docs, analyses, auditWriter, m, logger)

	logger.Info("Service layer initialized")

	authn, err := auth.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("auth initialization failed: %w", err)
	}

	srv := &api.Server{
		Workflows:  workflows,
		Engine:     engine,
		Documents:  docs,
		Analysis:   analyses,
		Authorizer: authorizer,
		RBAC:       authz.NewRBACService(store, authorizer, auditWriter, logger),
		Audit:      auditWriter,
		DB:         store,
		Logger:     logger,
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.ErrorHandler(logger)
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("veritas"))

	e.GET("/health", srv.Health)
	e.GET("/login", echo.WrapHandler(http.HandlerFunc(authn.LoginHandler)))
	e.GET("/auth/callback", echo.WrapHandler(http.HandlerFunc(authn.CallbackHandler)))
	e.GET("/logout", echo.WrapHandler(http.HandlerFunc(authn.LogoutHandler)))

	requireAuth := echo.WrapMiddleware(authn.RequireAuth)
	apiGroup := e.Group("/api/v1", requireAuth)
	api.RegisterHandlers(apiGroup, srv)
	logger.Info("REST API handlers mounted")

	mcpServer := mcp.NewServer(resolver, workflows, api.Version)
	mcp.MountHTTPHandlers(e.Group("/mcp", requireAuth), mcpServer.GetMCPServer())
	logger.Info("MCP protocol handlers mounted")

	e.GET("/openapi.yaml", api.SpecHandler(cfg.Auth.OktaDomain))
	e.GET("/docs", api.SwaggerHandler(cfg.Auth.OktaDomain, cfg.Auth.ClientID))
	e.GET("/docs/oauth2-redirect.html", api.OAuthRedirectHandler)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           e,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      cfg.Inference.ComplianceTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", server.Addr, "tls", cfg.TLS.Enable)
		if !cfg.TLS.Enable {
			serverErrors <- server.ListenAndServe()
			return
		}
		if len(cfg.TLS.Hostnames) > 0 {
			created, err := tls.EnsureCertificate(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames)
			if err != nil {
				serverErrors <- fmt.Errorf("failed to provision certificate: %w", err)
				return
			}
			if created {
				logger.Info("generated self-signed certificate", "cert_file", cfg.TLS.CertFile)
			}
		}
		serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}
		logger.Info("Server stopped gracefully")
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, inMemory bool, logger *logging.Logger) (repository.Repository, func(), error) {
	if inMemory {
		if !cfg.IsDev() {
			return nil, nil, errors.New("the in-memory store is only available in DEV")
		}
		logger.Warn("using in-memory store; data is lost on restart")
		return repository.NewMemoryStore(), func() {}, nil
	}

	pool, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("database initialization failed: %w", err)
	}
	store := repository.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("database migration failed: %w", err)
	}
	logger.Info("Database connected")
	return store, pool.Close, nil
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

func openBlobStore(ctx context.Context, cfg *config.Config) (storage.BlobStore, error) {
	switch cfg.Storage.Backend {
	case "minio":
		mc := cfg.Storage.Minio
		return storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  mc.Endpoint,
			AccessKey: mc.AccessKey,
			SecretKey: mc.SecretKey,
			Bucket:    mc.Bucket,
			Region:    mc.Region,
			UseSSL:    mc.UseSSL,
		})
	case "local", "":
		return storage.NewLocalStore(cfg.Storage.LocalDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// decisionCache returns nil when no Redis address is configured.
func decisionCache(cfg *config.Config, logger *logging.Logger) authz.DecisionCache {
	if cfg.Redis.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return authz.NewRedisCache(client, cfg.Policy.CacheTTL, logger)
}
