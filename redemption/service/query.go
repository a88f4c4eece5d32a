package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/LerianStudio/redemption-gateway/redemption"
	constant "github.com/LerianStudio/redemption-gateway/redemption/constants"
	"github.com/LerianStudio/redemption-gateway/redemption/ledger"
)

// Account returns the holder's balance snapshot. A holder that was never
// referenced has no record and reports AccountNotFound; mutating operations
// treat that same holder as a zero-balance account, so the two views stay
// consistent.
func (s *Service) Account(ctx context.Context, holderID string) (ledger.Account, error) {
	_, tracer, _, _ := redemption.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "service.get_account")
	defer span.End()

	span.SetAttributes(attribute.String("app.request.holder_id", holderID))

	if err := validateHolderID(holderID); err != nil {
		return ledger.Account{}, err
	}

	account, found, err := s.accounts.Find(ctx, holderID)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("load account: %w", err)
	}

	if !found {
		return ledger.Account{}, fmt.Errorf("%w: holder %q", constant.ErrAccountNotFound, holderID)
	}

	return account, nil
}

// State returns the current system state. Before initialization it reports
// NotInitialized.
func (s *Service) State(ctx context.Context) (SystemState, error) {
	_, tracer, _, _ := redemption.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "service.get_state")
	defer span.End()

	return s.requireInitialized(ctx)
}

// Metadata returns the holder's metadata document, or nil when none was
// ever stored.
func (s *Service) Metadata(ctx context.Context, holderID string) (map[string]any, error) {
	_, tracer, _, _ := redemption.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "service.get_metadata")
	defer span.End()

	if err := validateHolderID(holderID); err != nil {
		return nil, err
	}

	if s.metadata == nil {
		return nil, ErrMetadataUnavailable
	}

	metadata, err := s.metadata.Find(ctx, holderID)
	if err != nil {
		return nil, fmt.Errorf("load metadata: %w", err)
	}

	return metadata, nil
}
