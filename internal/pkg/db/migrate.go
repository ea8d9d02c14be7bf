package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	pgxv5 "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

var (
	migrationsCounter   metric.Int64Counter
	migrationsCounterMu sync.Once
)

// migrateLogger routes golang-migrate output through zerolog.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...any) {
	log.Debug().Msgf(format, v...)
}

func (migrateLogger) Verbose() bool {
	return false
}

// Migrator applies the embedded schema migrations over an existing pool.
type Migrator struct {
	pool *pgxpool.Pool
}

// NewMigrator creates a Migrator for pool.
func NewMigrator(pool *pgxpool.Pool) *Migrator {
	return &Migrator{pool: pool}
}

// EnsureSchema brings the schema up to date. Safe to call repeatedly and from
// several processes at once; golang-migrate serializes runs with an advisory lock.
func (m *Migrator) EnsureSchema(ctx context.Context) error {
	return m.Up(ctx)
}

// Up applies all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	return m.run(ctx, "up", func(mg *migrate.Migrate) error {
		return mg.Up()
	})
}

// Rollback reverts the given number of migrations.
func (m *Migrator) Rollback(ctx context.Context, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("rollback steps must be positive, got %d", steps)
	}
	return m.run(ctx, "down", func(mg *migrate.Migrate) error {
		return mg.Steps(-steps)
	})
}

// Version reports the current schema version and whether the last run left it dirty.
func (m *Migrator) Version(ctx context.Context) (uint, bool, error) {
	var (
		version uint
		dirty   bool
	)
	err := m.with(ctx, func(mg *migrate.Migrate) error {
		var err error
		version, dirty, err = mg.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		return err
	})
	return version, dirty, err
}

func (m *Migrator) run(ctx context.Context, direction string, apply func(*migrate.Migrate) error) error {
	err := m.with(ctx, func(mg *migrate.Migrate) error {
		log.Info().Str("direction", direction).Msg("Running database migrations")
		return apply(mg)
	})
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		recordMigrationMetric(ctx, direction, "noop")
		log.Debug().Str("direction", direction).Msg("Database migrations up-to-date")
		return nil
	case err != nil:
		recordMigrationMetric(ctx, direction, "failed")
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	recordMigrationMetric(ctx, direction, "applied")
	log.Info().Str("direction", direction).Msg("Database migrations applied")
	return nil
}

func (m *Migrator) with(ctx context.Context, fn func(*migrate.Migrate) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	db := stdlib.OpenDBFromPool(m.pool)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping migrations database: %w", err)
	}

	var driverConfig pgxv5.Config
	driver, err := pgxv5.WithInstance(db, &driverConfig)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to initialise migrations driver: %w", err)
	}

	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	mg, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		_ = src.Close()
		_ = driver.Close()
		return fmt.Errorf("failed to initialise migrate instance: %w", err)
	}
	mg.Log = migrateLogger{}
	defer func() {
		sourceErr, dbErr := mg.Close()
		if sourceErr != nil {
			log.Warn().Err(sourceErr).Msg("Database migrations source close")
		}
		if dbErr != nil {
			log.Warn().Err(dbErr).Msg("Database migrations db close")
		}
	}()

	return fn(mg)
}

func recordMigrationMetric(ctx context.Context, direction, result string) {
	migrationsCounterMu.Do(func() {
		meter := otel.Meter("arcade-backend/db")
		counter, err := meter.Int64Counter("arcade_db_migrations_total",
			metric.WithDescription("Total migration runs executed via golang-migrate"),
			metric.WithUnit("{run}"))
		if err == nil {
			migrationsCounter = counter
		}
	})
	if migrationsCounter == nil {
		return
	}
	migrationsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("direction", direction),
		attribute.String("result", result),
	))
}
