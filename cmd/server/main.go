package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/rl1809/inventory-ledger/internal/adapter/handler"
	"github.com/rl1809/inventory-ledger/internal/adapter/storage"
	"github.com/rl1809/inventory-ledger/internal/config"
	"github.com/rl1809/inventory-ledger/internal/core/service"
	"github.com/rl1809/inventory-ledger/internal/logging"
	"github.com/rl1809/inventory-ledger/internal/metrics"
	"github.com/rl1809/inventory-ledger/internal/port"
)

const serviceName = "inventory-ledger"

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:          "inventory-server",
		Short:        "Inventory ledger, allocation and depletion forecast service",
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the gRPC health service",
		RunE:  runServe,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply the MySQL schema",
		RunE:  runMigrate,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger := logging.New(logging.Config{
		Level:       cfg.LogLevel,
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})
	return cfg, logger, nil
}

func openMySQL(ctx context.Context, cfg config.MySQLConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping mysql: %w", err)
	}
	return db, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store != config.StoreMySQL {
		return fmt.Errorf("migrate needs the mysql store, config uses %q", cfg.Store)
	}

	db, err := openMySQL(cmd.Context(), cfg.MySQL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := storage.NewMySQLAdapter(db).Migrate(cmd.Context()); err != nil {
		return err
	}
	logger.Info("schema applied")
	return nil
}

// backends holds whichever store the config selected. cache stays nil when
// redis is disabled.
type backends struct {
	ledger  port.LedgerRepository
	orders  port.OrderReader
	catalog port.CatalogReader
	cache   port.CacheRepository
	checks  map[string]handler.Pinger
	closers []func() error
}

func (b *backends) close(logger *slog.Logger) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}
}

func openBackends(ctx context.Context, cfg config.Config, logger *slog.Logger) (*backends, error) {
	b := &backends{checks: make(map[string]handler.Pinger)}

	switch cfg.Store {
	case config.StoreMySQL:
		db, err := openMySQL(ctx, cfg.MySQL)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		adapter := storage.NewMySQLAdapter(db)
		b.ledger, b.orders, b.catalog = adapter, adapter, adapter
		b.checks["mysql"] = adapter
		logger.Info("connected to mysql")
	case config.StoreMemory:
		store := storage.NewMemoryStore()
		b.ledger, b.orders, b.catalog = store, store, store
		logger.Warn("using in-memory store, data is lost on exit")
	}

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			b.close(logger)
			return nil, fmt.Errorf("failed to connect redis: %w", err)
		}
		b.closers = append(b.closers, rdb.Close)
		adapter := storage.NewRedisAdapter(rdb, cfg.Forecast.CacheTTL)
		b.cache = adapter
		b.checks["redis"] = adapter
		logger.Info("connected to redis")
	}
	return b, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.close(logger)

	m := metrics.New("inventory")
	opts := service.Options{
		MaxAttempts:  cfg.Ledger.MaxRetries,
		RetryBackoff: cfg.Ledger.RetryBackoff,
		Logger:       logger,
		Metrics:      m,
	}

	var forecastCache port.CacheRepository
	if cfg.Forecast.CacheEnabled() {
		forecastCache = b.cache
	}
	forecasts, err := service.NewForecastService(b.ledger, b.orders, b.catalog, forecastCache, cfg.Forecast.Engine(), opts)
	if err != nil {
		return err
	}
	httpHandler := handler.NewHTTPHandler(
		service.NewLedgerService(b.ledger),
		service.NewAdjustmentService(b.ledger, opts),
		service.NewAllocationService(b.ledger, b.orders, b.cache, opts),
		forecasts,
		logger,
		m,
	)

	httpServer := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: httpHandler.Routes(),
	}

	grpcServer := grpc.NewServer()
	healthReporter := handler.NewHealthReporter(logger, b.checks)
	healthReporter.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("gRPC server listening", "addr", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return healthReporter.Run(gctx, cfg.Server.HealthInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP shutdown failed", "error", err)
		}
		logger.Info("HTTP server stopped")

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited", "error", err)
		return err
	}
	logger.Info("server stopped")
	return nil
}
