package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/LerianStudio/redemption-gateway/redemption"
	constant "github.com/LerianStudio/redemption-gateway/redemption/constants"
	"github.com/LerianStudio/redemption-gateway/redemption/events"
	"github.com/LerianStudio/redemption-gateway/redemption/log"
	"github.com/LerianStudio/redemption-gateway/redemption/opentelemetry/metrics"
	"github.com/LerianStudio/redemption-gateway/redemption/token"
)

// Initialize performs the one-time system bootstrap: it records both asset
// identifiers, grants ADMIN to the caller through the role directory, and
// starts the gateway active (unpaused). A second call fails with
// AlreadyInitialized.
func (s *Service) Initialize(ctx context.Context, callerID, syntheticAssetID, underlyingAssetID string) (SystemState, error) {
	logger, tracer, _, metricFactory := redemption.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "service.initialize")
	defer span.End()

	span.SetAttributes(attribute.String("app.request.operation", operationInitialize))

	start := time.Now()

	state, err := s.initialize(ctx, logger, metricFactory, callerID, syntheticAssetID, underlyingAssetID)
	s.observeOperation(ctx, logger, metricFactory, span, operationInitialize, start, err)

	if err != nil {
		return SystemState{}, err
	}

	return state, nil
}

func (s *Service) initialize(
	ctx context.Context,
	logger log.Logger,
	metricFactory *metrics.MetricsFactory,
	callerID, syntheticAssetID, underlyingAssetID string,
) (SystemState, error) {
	if err := validateHolderID(callerID); err != nil {
		return SystemState{}, err
	}

	if strings.TrimSpace(syntheticAssetID) == "" || strings.TrimSpace(underlyingAssetID) == "" {
		return SystemState{}, fmt.Errorf("%w: both asset identifiers are required", constant.ErrInvalidInput)
	}

	ctx, end, err := s.beginOperation(ctx, "")
	if err != nil {
		return SystemState{}, err
	}
	defer end()

	state, _, err := s.system.Load(ctx)
	if err != nil {
		return SystemState{}, fmt.Errorf("load system state: %w", err)
	}

	if state.Initialized {
		return SystemState{}, constant.ErrAlreadyInitialized
	}

	// Grant before save: a saved-but-adminless system would be permanently
	// locked out of role management, while a granted-but-unsaved one is
	// repaired by re-running initialize.
	if err := s.roles.Grant(ctx, token.RoleAdmin, callerID); err != nil {
		return SystemState{}, fmt.Errorf("grant initial admin role: %w", err)
	}

	state.Initialized = true
	state.Paused = false
	state.SyntheticAssetID = syntheticAssetID
	state.UnderlyingAssetID = underlyingAssetID
	state.Version++

	saved, err := s.system.Save(ctx, state)
	if err != nil {
		if revokeErr := s.roles.Revoke(ctx, token.RoleAdmin, callerID); revokeErr != nil {
			logger.Log(ctx, log.LevelError, "failed to revoke admin role after aborted initialize",
				log.String("caller_id", callerID),
				log.Err(revokeErr),
			)
		}

		return SystemState{}, fmt.Errorf("save system state: %w", err)
	}

	s.recordEvent(ctx, logger, func() (*events.OperationEvent, error) {
		return events.NewInitializedEvent(ctx, callerID, syntheticAssetID, underlyingAssetID)
	})

	s.setGauge(ctx, logger, metricFactory, metrics.MetricSystemPaused, 0)

	logger.Log(ctx, log.LevelInfo, "system initialized",
		log.String("initialized_by", callerID),
		log.String("synthetic_asset_id", syntheticAssetID),
		log.String("underlying_asset_id", underlyingAssetID),
	)

	return saved, nil
}

// SetPause toggles the pause flag. Only SENTINEL or ADMIN may call it, and
// it stays available while paused so a paused system can always be resumed.
// Setting the flag to its current value is an idempotent no-op and emits no
// event.
func (s *Service) SetPause(ctx context.Context, callerID string, paused bool) (SystemState, error) {
	logger, tracer, _, metricFactory := redemption.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "service.set_pause")
	defer span.End()

	span.SetAttributes(
		attribute.String("app.request.operation", operationSetPause),
		attribute.Bool("app.request.paused", paused),
	)

	start := time.Now()

	state, err := s.setPause(ctx, logger, metricFactory, callerID, paused)
	s.observeOperation(ctx, logger, metricFactory, span, operationSetPause, start, err)

	if err != nil {
		return SystemState{}, err
	}

	return state, nil
}

func (s *Service) setPause(
	ctx context.Context,
	logger log.Logger,
	metricFactory *metrics.MetricsFactory,
	callerID string,
	paused bool,
) (SystemState, error) {
	if err := validateHolderID(callerID); err != nil {
		return SystemState{}, err
	}

	ctx, end, err := s.beginOperation(ctx, "")
	if err != nil {
		return SystemState{}, err
	}
	defer end()

	state, err := s.requireInitialized(ctx)
	if err != nil {
		return SystemState{}, err
	}

	if err := s.requireRole(ctx, callerID, token.RoleAdmin, token.RoleSentinel); err != nil {
		return SystemState{}, err
	}

	if state.Paused == paused {
		return state, nil
	}

	state.Paused = paused
	state.Version++

	saved, err := s.system.Save(ctx, state)
	if err != nil {
		return SystemState{}, fmt.Errorf("save system state: %w", err)
	}

	s.recordEvent(ctx, logger, func() (*events.OperationEvent, error) {
		return events.NewPauseChangedEvent(ctx, callerID, paused)
	})

	pausedValue := int64(0)
	if paused {
		pausedValue = 1
	}

	s.setGauge(ctx, logger, metricFactory, metrics.MetricSystemPaused, pausedValue)

	logger.Log(ctx, log.LevelInfo, "pause flag changed",
		log.String("changed_by", callerID),
		log.Bool("paused", paused),
	)

	return saved, nil
}

// GrantRole adds holderID to the given role. Membership transitions are
// owned by the role directory; the service only gates who may request them:
// ADMIN controls both ADMIN and SENTINEL membership.
func (s *Service) GrantRole(ctx context.Context, callerID string, role token.Role, holderID string) error {
	logger, tracer, _, metricFactory := redemption.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "service.grant_role")
	defer span.End()

	span.SetAttributes(
		attribute.String("app.request.operation", operationGrantRole),
		attribute.String("app.request.role", role.String()),
	)

	start := time.Now()

	err := s.changeRole(ctx, logger, operationGrantRole, callerID, role, holderID)
	s.observeOperation(ctx, logger, metricFactory, span, operationGrantRole, start, err)

	return err
}

// RevokeRole removes holderID from the given role. ADMIN-only, like
// GrantRole; revoking a membership the holder does not have is delegated to
// the directory untouched.
func (s *Service) RevokeRole(ctx context.Context, callerID string, role token.Role, holderID string) error {
	logger, tracer, _, metricFactory := redemption.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "service.revoke_role")
	defer span.End()

	span.SetAttributes(
		attribute.String("app.request.operation", operationRevokeRole),
		attribute.String("app.request.role", role.String()),
	)

	start := time.Now()

	err := s.changeRole(ctx, logger, operationRevokeRole, callerID, role, holderID)
	s.observeOperation(ctx, logger, metricFactory, span, operationRevokeRole, start, err)

	return err
}

func (s *Service) changeRole(
	ctx context.Context,
	logger log.Logger,
	operation string,
	callerID string,
	role token.Role,
	holderID string,
) error {
	if err := validateHolderID(callerID); err != nil {
		return err
	}

	if err := validateHolderID(holderID); err != nil {
		return err
	}

	if !role.IsValid() {
		return fmt.Errorf("%w: unknown role %q", constant.ErrInvalidInput, role)
	}

	ctx, end, err := s.beginOperation(ctx, "")
	if err != nil {
		return err
	}
	defer end()

	if _, err := s.requireInitialized(ctx); err != nil {
		return err
	}

	if err := s.requireRole(ctx, callerID, token.RoleAdmin); err != nil {
		return err
	}

	if operation == operationGrantRole {
		if err := s.roles.Grant(ctx, role, holderID); err != nil {
			return fmt.Errorf("grant role: %w", err)
		}

		s.recordEvent(ctx, logger, func() (*events.OperationEvent, error) {
			return events.NewRoleGrantedEvent(ctx, callerID, role, holderID)
		})
	} else {
		if err := s.roles.Revoke(ctx, role, holderID); err != nil {
			return fmt.Errorf("revoke role: %w", err)
		}

		s.recordEvent(ctx, logger, func() (*events.OperationEvent, error) {
			return events.NewRoleRevokedEvent(ctx, callerID, role, holderID)
		})
	}

	logger.Log(ctx, log.LevelInfo, "role membership changed",
		log.String("operation", operation),
		log.String("caller_id", callerID),
		log.String("role", role.String()),
		log.String("holder_id", holderID),
	)

	return nil
}
