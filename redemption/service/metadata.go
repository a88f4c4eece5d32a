package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/LerianStudio/redemption-gateway/redemption"
	constant "github.com/LerianStudio/redemption-gateway/redemption/constants"
	"github.com/LerianStudio/redemption-gateway/redemption/log"
	"github.com/LerianStudio/redemption-gateway/redemption/token"
)

// UpdateMetadata replaces the holder's metadata document. Holders may update
// their own metadata; updating another holder's requires ADMIN. Metadata is
// informational only, so the pause flag does not gate it.
func (s *Service) UpdateMetadata(ctx context.Context, callerID, holderID string, metadata map[string]any) error {
	logger, tracer, _, metricFactory := redemption.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "service.update_metadata")
	defer span.End()

	span.SetAttributes(
		attribute.String("app.request.operation", operationUpdateMetadata),
		attribute.String("app.request.holder_id", holderID),
	)

	start := time.Now()

	err := s.updateMetadata(ctx, logger, callerID, holderID, metadata)
	s.observeOperation(ctx, logger, metricFactory, span, operationUpdateMetadata, start, err)

	return err
}

func (s *Service) updateMetadata(ctx context.Context, logger log.Logger, callerID, holderID string, metadata map[string]any) error {
	if err := validateHolderID(callerID); err != nil {
		return err
	}

	if err := validateHolderID(holderID); err != nil {
		return err
	}

	if metadata == nil {
		return fmt.Errorf("%w: metadata payload is required", constant.ErrInvalidInput)
	}

	if err := validateMetadata(metadata); err != nil {
		return err
	}

	if s.metadata == nil {
		return ErrMetadataUnavailable
	}

	if callerID != holderID {
		if err := s.requireRole(ctx, callerID, token.RoleAdmin); err != nil {
			return err
		}
	}

	if err := s.metadata.Upsert(ctx, holderID, metadata); err != nil {
		return fmt.Errorf("upsert metadata: %w", err)
	}

	logger.Log(ctx, log.LevelInfo, "account metadata updated",
		log.String("holder_id", holderID),
		log.Int("keys", len(metadata)),
	)

	return nil
}

// validateMetadata enforces the key and value length limits. Values are
// compared by their string rendering, matching how they are displayed and
// indexed.
func validateMetadata(metadata map[string]any) error {
	for key, value := range metadata {
		if len(key) > constant.MetadataMaxKeyLength {
			return fmt.Errorf("%w: key %q exceeds %d characters",
				constant.ErrMetadataKeyLengthExceeded, key, constant.MetadataMaxKeyLength)
		}

		if len(fmt.Sprintf("%v", value)) > constant.MetadataMaxValueLength {
			return fmt.Errorf("%w: value for key %q exceeds %d characters",
				constant.ErrMetadataValueLengthExceeded, key, constant.MetadataMaxValueLength)
		}
	}

	return nil
}
