package service

import (
	"context"
	"fmt"

	"github.com/LerianStudio/redemption-gateway/redemption"
	constant "github.com/LerianStudio/redemption-gateway/redemption/constants"
	"github.com/LerianStudio/redemption-gateway/redemption/log"
	"github.com/LerianStudio/redemption-gateway/redemption/token"
)

// operationContextKey marks a context as belonging to an in-flight operation
// of a specific Service instance.
type operationContextKey struct{}

// operationActive reports whether ctx was produced inside an operation of
// this service. Collaborators receive the operation context, so a callback
// into the service mid-operation carries the marker.
func (s *Service) operationActive(ctx context.Context) bool {
	owner, _ := ctx.Value(operationContextKey{}).(*Service)

	return owner == s
}

// beginOperation acquires everything a mutating operation needs: it rejects
// reentrant calls, takes the optional cross-instance per-holder lock, and
// enters the single-writer mutex. The reentrancy check runs before the mutex
// is attempted; a nested call would otherwise deadlock on it.
//
// The returned context must be propagated to collaborators, and the returned
// end function must be called exactly once when the operation finishes.
// lockKey is empty for system-wide operations, which skip the holder lock.
func (s *Service) beginOperation(ctx context.Context, lockKey string) (context.Context, func(), error) {
	if s.operationActive(ctx) {
		return ctx, nil, fmt.Errorf("%w: operation already in progress on this call chain", constant.ErrReentrantCall)
	}

	releaseLock := func() {}

	if s.locker != nil && lockKey != "" {
		release, err := s.locker.Acquire(ctx, lockKey)
		if err != nil {
			return ctx, nil, fmt.Errorf("%w: %w", constant.ErrOperationInFlight, err)
		}

		logger := redemption.NewLoggerFromContext(ctx)
		releaseLock = func() {
			if releaseErr := release(context.WithoutCancel(ctx)); releaseErr != nil {
				logger.Log(ctx, log.LevelWarn, "failed to release operation lock",
					log.String("holder_id", lockKey),
					log.Err(releaseErr),
				)
			}
		}
	}

	s.opMu.Lock()
	s.entered.Store(true)

	end := func() {
		s.entered.Store(false)
		s.opMu.Unlock()
		releaseLock()
	}

	return context.WithValue(ctx, operationContextKey{}, s), end, nil
}

// requireInitialized loads the system state and fails when the gateway has
// never been initialized.
func (s *Service) requireInitialized(ctx context.Context) (SystemState, error) {
	state, found, err := s.system.Load(ctx)
	if err != nil {
		return SystemState{}, fmt.Errorf("load system state: %w", err)
	}

	if !found || !state.Initialized {
		return SystemState{}, constant.ErrNotInitialized
	}

	return state, nil
}

// requireActive is the pause-axis gate: initialized and not paused.
func (s *Service) requireActive(ctx context.Context) (SystemState, error) {
	state, err := s.requireInitialized(ctx)
	if err != nil {
		return SystemState{}, err
	}

	if state.Paused {
		return SystemState{}, constant.ErrSystemPaused
	}

	return state, nil
}

// requireRole is the role-axis gate: the caller must hold at least one of
// the given roles. Roles are checked in the order given; callers list ADMIN
// first so the strongest capability short-circuits the lookup.
func (s *Service) requireRole(ctx context.Context, callerID string, roles ...token.Role) error {
	for _, role := range roles {
		held, err := s.roles.HasRole(ctx, role, callerID)
		if err != nil {
			return fmt.Errorf("role lookup for %s: %w", role, err)
		}

		if held {
			return nil
		}
	}

	return fmt.Errorf("%w: caller %q holds none of the required roles", constant.ErrUnauthorized, callerID)
}
