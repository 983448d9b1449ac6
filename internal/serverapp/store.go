package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/taras/graphsheets/internal/config"
	"github.com/taras/graphsheets/internal/logging"
	"github.com/taras/graphsheets/internal/observability"
	"github.com/taras/graphsheets/internal/schema"
	"github.com/taras/graphsheets/internal/store"
	"github.com/taras/graphsheets/internal/store/memstore"
	"github.com/taras/graphsheets/internal/store/sheets"
	"github.com/taras/graphsheets/internal/store/sqlstore"
)

// openStore builds the configured backend and wraps it with tracing and
// metrics. The returned close function may be nil. sch is only consulted by
// the sheets backend.
func openStore(ctx context.Context, cfg *config.Config, logger *logging.Logger, metrics *observability.Metrics, sch *schema.Schema) (store.Store, func(context.Context) error, error) {
	var (
		st      store.Store
		closeFn func(context.Context) error
	)

	switch cfg.Store.Backend {
	case config.BackendMemory, "":
		logger.Warn("using in-memory store, data is lost on restart")
		st = memstore.New()

	case config.BackendSheets:
		sh, err := openSheets(ctx, cfg, logger, sch)
		if err != nil {
			return nil, nil, err
		}
		st = sh

	case config.BackendMySQL:
		db, dbStatsReg, err := connectDB(cfg, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		closeFn = func(context.Context) error {
			if dbStatsReg != nil {
				if err := dbStatsReg.Unregister(); err != nil {
					logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
				}
			}
			return db.Close()
		}
		sq, err := configureDatabase(ctx, cfg, logger, db)
		if err != nil {
			_ = closeFn(ctx)
			return nil, nil, err
		}
		st = sq

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	var storeMetrics *observability.StoreMetrics
	if metrics != nil {
		storeMetrics = metrics.Store
	}
	backend := cfg.Store.Backend
	if backend == "" {
		backend = config.BackendMemory
	}
	return store.Instrument(st, backend, storeMetrics), closeFn, nil
}

func openSheets(ctx context.Context, cfg *config.Config, logger *logging.Logger, sch *schema.Schema) (*sheets.Store, error) {
	sc := cfg.Store.Sheets
	httpClient, err := sheets.NewHTTPClient(ctx, sc.ClientSecretFile, sc.TokenFile, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load sheets credentials: %w", err)
	}
	// The OAuth2 client does not inherit a base client's timeout.
	httpClient.Timeout = sc.RequestTimeout

	st, err := sheets.New(ctx, sheets.Config{
		SpreadsheetID:     sc.SpreadsheetID,
		HTTPClient:        httpClient,
		APIBase:           sc.APIBase,
		QueryBase:         sc.QueryBase,
		RequestsPerSecond: sc.RequestsPerSecond,
		Burst:             sc.Burst,
		Logger:            logger.Logger,
	})
	if err != nil {
		return nil, err
	}
	if err := prepareSheets(ctx, cfg.Store.Migrate, logger, st, sch); err != nil {
		return nil, err
	}

	logger.Info("connected to spreadsheet",
		slog.String("spreadsheet_id", sc.SpreadsheetID),
		slog.Float64("requests_per_second", sc.RequestsPerSecond),
		slog.Int("burst", sc.Burst),
	)
	return st, nil
}

// prepareSheets provisions the spreadsheet when migrate is set, and otherwise
// only reports object types that have no sheet to write to.
func prepareSheets(ctx context.Context, migrate bool, logger *logging.Logger, st *sheets.Store, sch *schema.Schema) error {
	if sch == nil {
		return nil
	}
	if migrate {
		if _, err := st.Provision(ctx, sch); err != nil {
			return fmt.Errorf("failed to provision spreadsheet: %w", err)
		}
		return nil
	}
	missing, err := st.MissingModels(ctx, sch)
	if err != nil {
		return fmt.Errorf("failed to list spreadsheet models: %w", err)
	}
	if len(missing) > 0 {
		logger.Warn("object types have no sheet, creating them will fail",
			slog.Any("types", missing),
			slog.String("hint", "enable store.migrate to add them"),
		)
	}
	return nil
}

func connectDB(cfg *config.Config, logger *logging.Logger) (*sql.DB, interface{ Unregister() error }, error) {
	dbCfg := cfg.Store.Database

	// Register custom TLS configuration if needed (for verify-ca/verify-full modes)
	if err := dbCfg.RegisterTLS(); err != nil {
		return nil, nil, fmt.Errorf("failed to register database TLS config: %w", err)
	}

	dsn := dbCfg.DSN()

	if !cfg.Observability.MetricsEnabled && !cfg.Observability.TracingEnabled {
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, nil, err
		}
		return db, nil, nil
	}

	opts := []otelsql.Option{
		otelsql.WithAttributes(semconv.DBSystemMySQL),
	}
	if cfg.Observability.TracingEnabled {
		opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{
			DisableErrSkip: true,
		}))
	}

	db, err := otelsql.Open("mysql", dsn, opts...)
	if err != nil {
		return nil, nil, err
	}

	var dbStatsReg interface{ Unregister() error }
	if cfg.Observability.MetricsEnabled {
		dbStatsReg, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(semconv.DBSystemMySQL))
		if err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
		}
	}

	logger.Info("database instrumentation enabled",
		slog.Bool("metrics", cfg.Observability.MetricsEnabled),
		slog.Bool("tracing", cfg.Observability.TracingEnabled),
	)
	return db, dbStatsReg, nil
}

func configureDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) (*sqlstore.Store, error) {
	dbCfg := cfg.Store.Database
	db.SetMaxOpenConns(dbCfg.Pool.MaxOpen)
	db.SetMaxIdleConns(dbCfg.Pool.MaxIdle)
	db.SetConnMaxLifetime(dbCfg.Pool.MaxLifetime)

	if err := waitForDatabase(ctx, dbCfg, logger, db); err != nil {
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}

	st := sqlstore.New(db, sqlstore.Config{
		RecordsTable:       dbCfg.RecordsTable,
		RelationshipsTable: dbCfg.RelationshipsTable,
		Logger:             logger.Logger,
	})
	if cfg.Store.Migrate {
		if err := st.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate store tables: %w", err)
		}
		logger.Info("store tables migrated")
	}

	logger.Info("connected to database",
		slog.String("database", dbCfg.Database),
		slog.Int("pool_max_open", dbCfg.Pool.MaxOpen),
		slog.Int("pool_max_idle", dbCfg.Pool.MaxIdle),
		slog.Duration("pool_max_lifetime", dbCfg.Pool.MaxLifetime),
	)
	return st, nil
}

// pinger is the part of *sql.DB that waitForDatabase needs.
type pinger interface {
	PingContext(ctx context.Context) error
}

func waitForDatabase(ctx context.Context, dbCfg config.DatabaseConfig, logger *logging.Logger, db pinger) error {
	timeout := dbCfg.ConnectionTimeout
	interval := dbCfg.ConnectionRetryInterval
	if interval <= 0 {
		interval = time.Second
	}

	// A zero timeout means a single attempt.
	if timeout == 0 {
		return db.PingContext(ctx)
	}

	deadline := time.Now().Add(timeout)
	attempt := 0
	for {
		attempt++
		err := db.PingContext(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("database connection established", slog.Int("attempts", attempt))
			}
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("database not available after %v: %w", timeout, err)
		}

		logger.Warn("database not ready, retrying...",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", interval),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
		// Exponential backoff, capped at 30s
		interval = min(interval*2, 30*time.Second)
	}
}
