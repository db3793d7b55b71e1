package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/callscope/callscope/internal/auth"
	"github.com/callscope/callscope/internal/bolna"
	"github.com/callscope/callscope/internal/config"
	"github.com/callscope/callscope/internal/mcp"
	"github.com/callscope/callscope/internal/ratelimit"
	"github.com/callscope/callscope/internal/server"
	syncsvc "github.com/callscope/callscope/internal/service/sync"
	"github.com/callscope/callscope/internal/storage"
	"github.com/callscope/callscope/internal/telemetry"
	"github.com/callscope/callscope/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("CALLSCOPE_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("callscope starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Connect to database and apply embedded migrations.
	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	// Create JWT manager.
	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	// Create Bolna client (optional; without a token the service still
	// serves stored data, it just cannot sync).
	var provider *bolna.Client
	if cfg.BolnaBearerToken != "" {
		provider, err = bolna.New(bolna.Config{
			BaseURL:     cfg.BolnaAPIURL,
			BearerToken: cfg.BolnaBearerToken,
		})
		if err != nil {
			return fmt.Errorf("bolna: %w", err)
		}
	} else {
		logger.Warn("bolna: no bearer token configured, sync disabled")
	}

	// Sync service and hourly scheduler.
	var syncService *syncsvc.Service
	if provider != nil {
		syncService = syncsvc.NewService(provider, db, cfg.SyncPageSize, logger)

		scheduler := syncsvc.NewScheduler(syncService, cfg.SyncInterval, logger)
		go scheduler.Start(ctx)

		if cfg.SyncOnStart {
			go func() {
				if n, err := syncService.SyncAll(ctx); err != nil {
					logger.Error("startup sync failed", "error", err)
				} else {
					logger.Info("startup sync complete", "synced", n)
				}
			}()
		}
	}

	// Create MCP server.
	mcpSrv := mcp.New(db, syncService, version, logger)

	// Create rate limiter for credential endpoints.
	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter(0.5, 10)
		defer func() { _ = limiter.Close() }()
		logger.Info("rate limiting: memory (in-process token bucket)")
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	// Create and start HTTP server (MCP mounted at /mcp).
	var verifier server.AgentVerifier
	if provider != nil {
		verifier = provider
	}
	srv := server.New(server.ServerConfig{
		DB:                  db,
		JWTMgr:              jwtMgr,
		SyncSvc:             syncService,
		Verifier:            verifier,
		Limiter:             limiter,
		MCPServer:           mcpSrv.MCPServer(),
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("callscope stopped")
	return nil
}
