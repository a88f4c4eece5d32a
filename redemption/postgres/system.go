package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/LerianStudio/redemption-gateway/redemption"
	"github.com/LerianStudio/redemption-gateway/redemption/log"
	"github.com/LerianStudio/redemption-gateway/redemption/opentelemetry"
	"github.com/LerianStudio/redemption-gateway/redemption/service"
)

const systemColumns = "initialized, paused, synthetic_asset_id, underlying_asset_id, version, updated_at"

// SystemPostgresRepository persists the singleton system state. The table
// holds at most one row, pinned by a constant primary key.
type SystemPostgresRepository struct {
	connection *PostgresConnection
}

var _ service.SystemRepository = (*SystemPostgresRepository)(nil)

// NewSystemPostgresRepository wires a system state repository to the
// connection hub.
func NewSystemPostgresRepository(connection *PostgresConnection) (*SystemPostgresRepository, error) {
	if connection == nil {
		return nil, ErrConnectionRequired
	}

	return &SystemPostgresRepository{connection: connection}, nil
}

// Load reads the singleton row. Before the first Save it reports
// found=false with no error.
func (r *SystemPostgresRepository) Load(ctx context.Context) (service.SystemState, bool, error) {
	logger, tracer, _, _ := redemption.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.load_system_state")
	defer span.End()

	db, err := r.connection.GetDB(ctx)
	if err != nil {
		opentelemetry.HandleSpanError(span, "failed to get database connection", err)

		return service.SystemState{}, false, fmt.Errorf("get database connection: %w", err)
	}

	row := db.QueryRowContext(ctx,
		"SELECT "+systemColumns+" FROM system_state WHERE singleton")

	state, err := scanSystemState(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return service.SystemState{}, false, nil
		}

		opentelemetry.HandleSpanError(span, "failed to load system state", err)
		logger.Log(ctx, log.LevelError, "failed to load system state", log.Err(err))

		return service.SystemState{}, false, fmt.Errorf("loading system state: %w", err)
	}

	return state, true, nil
}

// Save upserts the singleton row with the same version gate as accounts.
func (r *SystemPostgresRepository) Save(ctx context.Context, state service.SystemState) (service.SystemState, error) {
	logger, tracer, _, _ := redemption.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.save_system_state")
	defer span.End()

	db, err := r.connection.GetDB(ctx)
	if err != nil {
		opentelemetry.HandleSpanError(span, "failed to get database connection", err)

		return service.SystemState{}, fmt.Errorf("get database connection: %w", err)
	}

	row := db.QueryRowContext(ctx,
		`INSERT INTO system_state (singleton, initialized, paused, synthetic_asset_id, underlying_asset_id, version, updated_at)
		 VALUES (TRUE, $1, $2, $3, $4, $5, $6)
		 ON CONFLICT (singleton) DO UPDATE
		 SET initialized         = EXCLUDED.initialized,
		     paused              = EXCLUDED.paused,
		     synthetic_asset_id  = EXCLUDED.synthetic_asset_id,
		     underlying_asset_id = EXCLUDED.underlying_asset_id,
		     version             = EXCLUDED.version,
		     updated_at          = EXCLUDED.updated_at
		 WHERE system_state.version = EXCLUDED.version - 1
		 RETURNING `+systemColumns,
		state.Initialized, state.Paused, state.SyntheticAssetID, state.UnderlyingAssetID,
		state.Version, time.Now().UTC())

	saved, err := scanSystemState(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return service.SystemState{}, fmt.Errorf("system state: %w", service.ErrVersionConflict)
		}

		opentelemetry.HandleSpanError(span, "failed to save system state", err)
		logger.Log(ctx, log.LevelError, "failed to save system state", log.Err(err))

		return service.SystemState{}, fmt.Errorf("saving system state: %w", err)
	}

	return saved, nil
}

func scanSystemState(scanner interface{ Scan(dest ...any) error }) (service.SystemState, error) {
	var state service.SystemState

	if err := scanner.Scan(
		&state.Initialized,
		&state.Paused,
		&state.SyntheticAssetID,
		&state.UnderlyingAssetID,
		&state.Version,
		&state.UpdatedAt,
	); err != nil {
		return service.SystemState{}, err
	}

	return state, nil
}
