package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/LerianStudio/redemption-gateway/redemption"
	"github.com/LerianStudio/redemption-gateway/redemption/ledger"
	"github.com/LerianStudio/redemption-gateway/redemption/log"
	"github.com/LerianStudio/redemption-gateway/redemption/opentelemetry"
	"github.com/LerianStudio/redemption-gateway/redemption/service"
)

const accountColumns = "holder_id, unexchanged, exchanged, version, created_at, updated_at"

// AccountPostgresRepository persists holder accounts. Saves are upserts
// gated on the optimistic version: an existing row is only replaced when the
// incoming version is exactly one above the stored one.
type AccountPostgresRepository struct {
	connection *PostgresConnection
}

var _ service.AccountRepository = (*AccountPostgresRepository)(nil)

// NewAccountPostgresRepository wires an account repository to the connection
// hub.
func NewAccountPostgresRepository(connection *PostgresConnection) (*AccountPostgresRepository, error) {
	if connection == nil {
		return nil, ErrConnectionRequired
	}

	return &AccountPostgresRepository{connection: connection}, nil
}

// Find loads the holder's account. A holder that was never referenced
// reports found=false with no error.
func (r *AccountPostgresRepository) Find(ctx context.Context, holderID string) (ledger.Account, bool, error) {
	logger, tracer, _, _ := redemption.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.find_account")
	defer span.End()

	db, err := r.connection.GetDB(ctx)
	if err != nil {
		opentelemetry.HandleSpanError(span, "failed to get database connection", err)

		return ledger.Account{}, false, fmt.Errorf("get database connection: %w", err)
	}

	row := db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE holder_id = $1", holderID)

	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Account{}, false, nil
		}

		opentelemetry.HandleSpanError(span, "failed to find account", err)
		logger.Log(ctx, log.LevelError, "failed to find account", log.Err(err))

		return ledger.Account{}, false, fmt.Errorf("finding account: %w", err)
	}

	return account, true, nil
}

// Save upserts the account. The update leg only matches when the stored
// version is exactly incoming-1; a zero-row result is a version conflict.
func (r *AccountPostgresRepository) Save(ctx context.Context, account ledger.Account) (ledger.Account, error) {
	logger, tracer, _, _ := redemption.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.save_account")
	defer span.End()

	db, err := r.connection.GetDB(ctx)
	if err != nil {
		opentelemetry.HandleSpanError(span, "failed to get database connection", err)

		return ledger.Account{}, fmt.Errorf("get database connection: %w", err)
	}

	now := time.Now().UTC()

	createdAt := account.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	row := db.QueryRowContext(ctx,
		`INSERT INTO accounts (holder_id, unexchanged, exchanged, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (holder_id) DO UPDATE
		 SET unexchanged = EXCLUDED.unexchanged,
		     exchanged   = EXCLUDED.exchanged,
		     version     = EXCLUDED.version,
		     updated_at  = EXCLUDED.updated_at
		 WHERE accounts.version = EXCLUDED.version - 1
		 RETURNING `+accountColumns,
		account.HolderID, account.Unexchanged, account.Exchanged, account.Version, createdAt, now)

	saved, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Account{}, fmt.Errorf("account %s: %w", account.HolderID, service.ErrVersionConflict)
		}

		opentelemetry.HandleSpanError(span, "failed to save account", err)
		logger.Log(ctx, log.LevelError, "failed to save account", log.Err(err))

		return ledger.Account{}, fmt.Errorf("saving account: %w", err)
	}

	return saved, nil
}

func scanAccount(scanner interface{ Scan(dest ...any) error }) (ledger.Account, error) {
	var account ledger.Account

	if err := scanner.Scan(
		&account.HolderID,
		&account.Unexchanged,
		&account.Exchanged,
		&account.Version,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		return ledger.Account{}, err
	}

	return account, nil
}
