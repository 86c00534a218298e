package claimd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	ledgercfg "payvault/config"
	"payvault/core/state"
	"payvault/native/payroll"
	"payvault/observability"
	"payvault/observability/logging"
	telemetry "payvault/observability/otel"
	"payvault/storage"
)

// Main initialises and runs the claim daemon.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/claimd/config.yaml", "path to claimd configuration")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("PAYVAULT_ENV"))
	logger := logging.Setup("claimd", env)

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.ConfigFromEnv("claimd", env))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	engine, closeLedger, issuer, err := openLedger(cfg.LedgerConfig, logger)
	if err != nil {
		return err
	}
	defer closeLedger()

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return err
	}
	if err := AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	metrics := observability.Claimd()
	service := NewService(NewStore(db), engine, issuer,
		WithLogger(logger),
		WithMetrics(metrics),
		WithDefaultExpiry(cfg.DefaultExpiry.Duration),
	)
	auth, err := NewAuthenticator(cfg.Auth.BearerToken)
	if err != nil {
		return err
	}
	server := NewServer(ServerConfig{
		Service: service,
		Auth:    auth,
		Limiter: NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst, metrics),
		Vaults:  engine,
		Logger:  logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.TracedHandler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.Info("claimd listening", slog.String("addr", cfg.ListenAddress))
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// openLedger opens the embedded ledger described by the TOML config at path,
// applies its genesis and returns the engine with the operator identity the
// service issues codes as.
func openLedger(path string, logger *slog.Logger) (*payroll.Engine, func(), [20]byte, error) {
	var issuer [20]byte
	cfg, err := ledgercfg.Load(path)
	if err != nil {
		return nil, nil, issuer, fmt.Errorf("load ledger config: %w", err)
	}
	key, err := cfg.OperatorKey()
	if err != nil {
		return nil, nil, issuer, fmt.Errorf("operator key: %w", err)
	}
	issuer = key.PubKey().Address().Raw()

	var db storage.Database
	switch cfg.Storage {
	case ledgercfg.StorageMemory:
		db = storage.NewMemDB()
	default:
		ldb, err := storage.NewLevelDB(filepath.Clean(cfg.DataDir))
		if err != nil {
			return nil, nil, issuer, fmt.Errorf("open ledger store: %w", err)
		}
		db = ldb
	}

	manager := state.NewManager(db)
	engine := payroll.NewEngine(manager)
	engine.SetEmitter(observability.Fanout{
		observability.NewEventMetrics(),
		observability.NewEventLogger(logger),
	})
	applied, err := ledgercfg.ApplyGenesis(engine, manager, cfg.Genesis)
	if err != nil {
		db.Close()
		return nil, nil, issuer, fmt.Errorf("apply genesis: %w", err)
	}
	if applied {
		logger.Info("ledger genesis applied", slog.String("owner", cfg.Genesis.Owner))
	}
	return engine, db.Close, issuer, nil
}

func openDatabase(cfg DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		dialector = sqlite.Open(cfg.DSN)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("database connection: %w", err)
	}
	if cfg.Driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("database handle: %w", err)
		}
		// SQLite has a single writer.
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}
