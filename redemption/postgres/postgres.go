package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/bxcodec/dbresolver/v2"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/LerianStudio/redemption-gateway/redemption/log"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 10
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

var (
	dbOpenFn = sql.Open

	createResolverFn = func(primaryDB, replicaDB *sql.DB) (_ dbresolver.DB, err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("failed to create resolver: %v", recovered)
			}
		}()

		connectionDB := dbresolver.New(
			dbresolver.WithPrimaryDBs(primaryDB),
			dbresolver.WithReplicaDBs(replicaDB),
			dbresolver.WithLoadBalancer(dbresolver.RoundRobinLB),
		)

		if connectionDB == nil {
			return nil, errors.New("resolver returned nil connection")
		}

		return connectionDB, nil
	}

	runMigrationsFn = runMigrations

	connectionStringCredentialsPattern = regexp.MustCompile(`://[^@\s]+@`)
	connectionStringPasswordPattern    = regexp.MustCompile(`(?i)(password=)([^\s&]+)`)
	dbNamePattern                      = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)
)

// PostgresConnection manages the singleton primary/replica pair. The schema
// migrations embedded in the binary are applied against the primary on first
// connect.
type PostgresConnection struct {
	ConnectionStringPrimary string
	ConnectionStringReplica string
	DatabaseName            string
	Logger                  log.Logger
	MaxOpenConnections      int
	MaxIdleConnections      int
	connectionDB            dbresolver.DB
	primaryDB               *sql.DB
	connected               bool
	mu                      sync.RWMutex
}

// initDefaults sets sane default values for zero-value fields.
func (pc *PostgresConnection) initDefaults() {
	if pc.Logger == nil {
		pc.Logger = log.NewNop()
	}

	if pc.MaxOpenConnections <= 0 {
		pc.MaxOpenConnections = defaultMaxOpenConns
	}

	if pc.MaxIdleConnections <= 0 {
		pc.MaxIdleConnections = defaultMaxIdleConns
	}
}

// Connect establishes the primary and replica connections, runs migrations,
// and verifies connectivity with a ping.
func (pc *PostgresConnection) Connect(ctx context.Context) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	return pc.connectLocked(ctx)
}

// connectLocked performs the actual connection. Caller must hold pc.mu.
func (pc *PostgresConnection) connectLocked(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	pc.initDefaults()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled before database connection: %w", err)
	}

	if pc.connectionDB != nil {
		if err := pc.closeLocked(); err != nil {
			pc.Logger.Log(ctx, log.LevelWarn, "failed to close previous connection before reconnect", log.Err(err))
		}
	}

	pc.Logger.Log(ctx, log.LevelInfo, "connecting to primary and replica databases")

	dbPrimary, err := dbOpenFn("pgx", pc.ConnectionStringPrimary)
	if err != nil {
		sanitizedErr := sanitizeSensitiveError(err)
		pc.Logger.Log(ctx, log.LevelError, "failed to connect to primary database", log.String("error", sanitizedErr))

		return fmt.Errorf("failed to connect to primary database: %s", sanitizedErr)
	}

	// Ensure primary is cleaned up if anything downstream fails.
	var success bool

	defer func() {
		if !success {
			dbPrimary.Close()
		}
	}()

	applyPoolSettings(dbPrimary, pc.MaxOpenConnections, pc.MaxIdleConnections)

	dbReplica, err := dbOpenFn("pgx", pc.ConnectionStringReplica)
	if err != nil {
		sanitizedErr := sanitizeSensitiveError(err)
		pc.Logger.Log(ctx, log.LevelError, "failed to connect to replica database", log.String("error", sanitizedErr))

		return fmt.Errorf("failed to connect to replica database: %s", sanitizedErr)
	}

	defer func() {
		if !success {
			dbReplica.Close()
		}
	}()

	applyPoolSettings(dbReplica, pc.MaxOpenConnections, pc.MaxIdleConnections)

	connectionDB, err := createResolverFn(dbPrimary, dbReplica)
	if err != nil {
		pc.Logger.Log(ctx, log.LevelError, "failed to create resolver", log.Err(err))

		return fmt.Errorf("failed to create resolver: %w", err)
	}

	if err := runMigrationsFn(dbPrimary, pc.DatabaseName, pc.Logger); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled before ping: %w", err)
	}

	if err := connectionDB.PingContext(ctx); err != nil {
		pc.Logger.Log(ctx, log.LevelError, "failed to ping database", log.Err(err))

		return fmt.Errorf("failed to ping database: %w", err)
	}

	pc.connected = true
	pc.connectionDB = connectionDB
	pc.primaryDB = dbPrimary

	pc.Logger.Log(ctx, log.LevelInfo, "connected to postgres")

	success = true

	return nil
}

// GetDB returns the resolver handle, connecting lazily when needed.
func (pc *PostgresConnection) GetDB(ctx context.Context) (dbresolver.DB, error) {
	pc.mu.RLock()

	if pc.connectionDB != nil {
		db := pc.connectionDB
		pc.mu.RUnlock()

		return db, nil
	}

	pc.mu.RUnlock()

	pc.mu.Lock()
	defer pc.mu.Unlock()

	// Double-check after acquiring the write lock.
	if pc.connectionDB != nil {
		return pc.connectionDB, nil
	}

	if err := pc.connectLocked(ctx); err != nil {
		return nil, err
	}

	return pc.connectionDB, nil
}

// Primary returns the primary database handle for transactional work that
// must not be routed through the replica balancer.
func (pc *PostgresConnection) Primary(ctx context.Context) (*sql.DB, error) {
	pc.mu.RLock()

	if pc.primaryDB != nil {
		db := pc.primaryDB
		pc.mu.RUnlock()

		return db, nil
	}

	pc.mu.RUnlock()

	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.primaryDB != nil {
		return pc.primaryDB, nil
	}

	if err := pc.connectLocked(ctx); err != nil {
		return nil, err
	}

	return pc.primaryDB, nil
}

// Close releases database connection resources.
func (pc *PostgresConnection) Close() error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	return pc.closeLocked()
}

func (pc *PostgresConnection) closeLocked() error {
	if pc.connectionDB != nil {
		err := pc.connectionDB.Close()
		pc.connectionDB = nil
		pc.primaryDB = nil
		pc.connected = false

		return err
	}

	return nil
}

// IsConnected reports whether the database resolver is initialized.
func (pc *PostgresConnection) IsConnected() bool {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	return pc.connected
}

func applyPoolSettings(db *sql.DB, maxOpen, maxIdle int) {
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)
}

func sanitizeSensitiveError(err error) string {
	if err == nil {
		return ""
	}

	sanitized := connectionStringCredentialsPattern.ReplaceAllString(err.Error(), "://***@")
	sanitized = connectionStringPasswordPattern.ReplaceAllString(sanitized, "${1}***")

	return sanitized
}

func validateDBName(name string) error {
	if !dbNamePattern.MatchString(name) {
		return fmt.Errorf("invalid database name: %q", name)
	}

	return nil
}

// runMigrations applies the embedded schema migrations against the primary.
// Migrations are multi-statement, so the driver is configured to split them.
func runMigrations(dbPrimary *sql.DB, databaseName string, logger log.Logger) error {
	ctx := context.Background()

	if err := validateDBName(databaseName); err != nil {
		logger.Log(ctx, log.LevelError, "invalid database name", log.Err(err))

		return err
	}

	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		logger.Log(ctx, log.LevelError, "failed to load embedded migrations", log.Err(err))

		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	driver, err := migratepg.WithInstance(dbPrimary, &migratepg.Config{
		MultiStatementEnabled: true,
		DatabaseName:          databaseName,
		SchemaName:            "public",
	})
	if err != nil {
		logger.Log(ctx, log.LevelError, "failed to create postgres driver instance", log.Err(err))

		return fmt.Errorf("failed to create postgres driver instance: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, databaseName, driver)
	if err != nil {
		logger.Log(ctx, log.LevelError, "failed to create migration instance", log.Err(err))

		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Log(ctx, log.LevelInfo, "no new migrations found, skipping")

			return nil
		}

		var dirtyErr migrate.ErrDirty
		if errors.As(err, &dirtyErr) {
			logger.Log(ctx, log.LevelError, "migration failed with dirty version", log.Int("version", dirtyErr.Version))

			return fmt.Errorf("migration failed: dirty database version %d", dirtyErr.Version)
		}

		logger.Log(ctx, log.LevelError, "migration failed", log.Err(err))

		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}
