package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/LerianStudio/redemption-gateway/redemption"
	"github.com/LerianStudio/redemption-gateway/redemption/assert"
	constant "github.com/LerianStudio/redemption-gateway/redemption/constants"
	"github.com/LerianStudio/redemption-gateway/redemption/events"
	"github.com/LerianStudio/redemption-gateway/redemption/ledger"
	"github.com/LerianStudio/redemption-gateway/redemption/log"
	"github.com/LerianStudio/redemption-gateway/redemption/opentelemetry"
	"github.com/LerianStudio/redemption-gateway/redemption/opentelemetry/metrics"
	"github.com/LerianStudio/redemption-gateway/redemption/safe"
)

const (
	operationDeposit        = "deposit"
	operationWithdraw       = "withdraw"
	operationClaim          = "claim"
	operationInitialize     = "initialize"
	operationSetPause       = "set_pause"
	operationGrantRole      = "grant_role"
	operationRevokeRole     = "revoke_role"
	operationUpdateMetadata = "update_metadata"
)

// Deposit credits the holder's unexchanged balance by amount, then pulls the
// same amount of the synthetic asset from the holder into custody. A failed
// pull rolls the credit back and the whole operation reports TransferFailure.
func (s *Service) Deposit(ctx context.Context, holderID string, amount uint64) (ledger.Account, error) {
	logger, tracer, _, metricFactory := redemption.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "service.deposit")
	defer span.End()

	span.SetAttributes(
		attribute.String("app.request.holder_id", holderID),
		attribute.String("app.request.operation", operationDeposit),
	)

	start := time.Now()

	account, err := s.deposit(ctx, logger, holderID, amount)
	s.observeOperation(ctx, logger, metricFactory, span, operationDeposit, start, err)

	if err != nil {
		return ledger.Account{}, err
	}

	return account, nil
}

func (s *Service) deposit(ctx context.Context, logger log.Logger, holderID string, amount uint64) (ledger.Account, error) {
	if err := validateHolderID(holderID); err != nil {
		return ledger.Account{}, err
	}

	ctx, end, err := s.beginOperation(ctx, holderID)
	if err != nil {
		return ledger.Account{}, err
	}
	defer end()

	state, err := s.requireActive(ctx)
	if err != nil {
		return ledger.Account{}, err
	}

	signed, err := widenAmount(amount)
	if err != nil {
		return ledger.Account{}, err
	}

	account, err := s.loadOrCreateAccount(ctx, holderID)
	if err != nil {
		return ledger.Account{}, err
	}

	delta := ledger.DepositDelta(holderID, signed)

	updated, err := s.applyAndSave(ctx, account, delta)
	if err != nil {
		return ledger.Account{}, err
	}

	if transferErr := s.gateway.TransferIn(ctx, state.SyntheticAssetID, holderID, s.custodyAccountID, amount); transferErr != nil {
		failure := fmt.Errorf("%w: pull synthetic asset into custody: %w", constant.ErrTransferFailure, transferErr)

		if compErr := s.compensate(ctx, logger, operationDeposit, updated, delta.Inverse()); compErr != nil {
			return ledger.Account{}, errors.Join(failure, compErr)
		}

		return ledger.Account{}, failure
	}

	s.recordEvent(ctx, logger, func() (*events.OperationEvent, error) {
		return events.NewDepositEvent(ctx, holderID, amount)
	})

	logger.Log(ctx, log.LevelInfo, "deposit applied",
		log.String("holder_id", holderID),
		log.Uint64("amount", amount),
		log.Int64("unexchanged", updated.Unexchanged),
		log.Int64("exchanged", updated.Exchanged),
	)

	return updated, nil
}

// Withdraw debits the holder's unexchanged balance by amount, then returns
// the same amount of the synthetic asset from custody to the holder. An
// unfunded debit fails before any transfer; a failed return rolls the debit
// back.
func (s *Service) Withdraw(ctx context.Context, holderID string, amount uint64) (ledger.Account, error) {
	logger, tracer, _, metricFactory := redemption.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "service.withdraw")
	defer span.End()

	span.SetAttributes(
		attribute.String("app.request.holder_id", holderID),
		attribute.String("app.request.operation", operationWithdraw),
	)

	start := time.Now()

	account, err := s.withdraw(ctx, logger, holderID, amount)
	s.observeOperation(ctx, logger, metricFactory, span, operationWithdraw, start, err)

	if err != nil {
		return ledger.Account{}, err
	}

	return account, nil
}

func (s *Service) withdraw(ctx context.Context, logger log.Logger, holderID string, amount uint64) (ledger.Account, error) {
	if err := validateHolderID(holderID); err != nil {
		return ledger.Account{}, err
	}

	ctx, end, err := s.beginOperation(ctx, holderID)
	if err != nil {
		return ledger.Account{}, err
	}
	defer end()

	state, err := s.requireActive(ctx)
	if err != nil {
		return ledger.Account{}, err
	}

	signed, err := widenAmount(amount)
	if err != nil {
		return ledger.Account{}, err
	}

	account, err := s.loadOrCreateAccount(ctx, holderID)
	if err != nil {
		return ledger.Account{}, err
	}

	delta := ledger.WithdrawDelta(holderID, signed)

	updated, err := s.applyAndSave(ctx, account, delta)
	if err != nil {
		return ledger.Account{}, err
	}

	if transferErr := s.gateway.TransferOut(ctx, state.SyntheticAssetID, holderID, amount); transferErr != nil {
		failure := fmt.Errorf("%w: return synthetic asset to holder: %w", constant.ErrTransferFailure, transferErr)

		if compErr := s.compensate(ctx, logger, operationWithdraw, updated, delta.Inverse()); compErr != nil {
			return ledger.Account{}, errors.Join(failure, compErr)
		}

		return ledger.Account{}, failure
	}

	s.recordEvent(ctx, logger, func() (*events.OperationEvent, error) {
		return events.NewWithdrawalEvent(ctx, holderID, updated.Unexchanged, updated.Exchanged)
	})

	logger.Log(ctx, log.LevelInfo, "withdrawal applied",
		log.String("holder_id", holderID),
		log.Uint64("amount", amount),
		log.Int64("unexchanged", updated.Unexchanged),
		log.Int64("exchanged", updated.Exchanged),
	)

	return updated, nil
}

// Claim converts amount from the holder's unexchanged balance into the
// exchanged balance, releases the same amount of the underlying asset to the
// holder, and permanently burns the matching synthetic amount.
//
// The underlying release runs before the burn: the burn is the only
// sub-step with no compensating action, so every recoverable step precedes
// it. A failed release rolls the delta back; a failed burn pulls the
// released underlying back into custody and then rolls the delta back.
func (s *Service) Claim(ctx context.Context, holderID string, amount uint64) (ledger.Account, error) {
	logger, tracer, _, metricFactory := redemption.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "service.claim")
	defer span.End()

	span.SetAttributes(
		attribute.String("app.request.holder_id", holderID),
		attribute.String("app.request.operation", operationClaim),
	)

	start := time.Now()

	account, err := s.claim(ctx, logger, holderID, amount)
	s.observeOperation(ctx, logger, metricFactory, span, operationClaim, start, err)

	if err != nil {
		return ledger.Account{}, err
	}

	return account, nil
}

func (s *Service) claim(ctx context.Context, logger log.Logger, holderID string, amount uint64) (ledger.Account, error) {
	if err := validateHolderID(holderID); err != nil {
		return ledger.Account{}, err
	}

	ctx, end, err := s.beginOperation(ctx, holderID)
	if err != nil {
		return ledger.Account{}, err
	}
	defer end()

	state, err := s.requireActive(ctx)
	if err != nil {
		return ledger.Account{}, err
	}

	signed, err := widenAmount(amount)
	if err != nil {
		return ledger.Account{}, err
	}

	account, err := s.loadOrCreateAccount(ctx, holderID)
	if err != nil {
		return ledger.Account{}, err
	}

	delta := ledger.ClaimDelta(holderID, signed)

	updated, err := s.applyAndSave(ctx, account, delta)
	if err != nil {
		return ledger.Account{}, err
	}

	if transferErr := s.gateway.TransferOut(ctx, state.UnderlyingAssetID, holderID, amount); transferErr != nil {
		failure := fmt.Errorf("%w: release underlying asset to holder: %w", constant.ErrTransferFailure, transferErr)

		if compErr := s.compensate(ctx, logger, operationClaim, updated, delta.Inverse()); compErr != nil {
			return ledger.Account{}, errors.Join(failure, compErr)
		}

		return ledger.Account{}, failure
	}

	if burnErr := s.gateway.Burn(ctx, state.SyntheticAssetID, amount); burnErr != nil {
		failure := fmt.Errorf("%w: burn synthetic asset: %w", constant.ErrTransferFailure, burnErr)

		// The underlying already left custody. It must come back before the
		// delta can be reverted; reverting without it would credit the holder
		// twice.
		if pullbackErr := s.gateway.TransferIn(ctx, state.UnderlyingAssetID, holderID, s.custodyAccountID, amount); pullbackErr != nil {
			asserter := assert.New(ctx, logger, "service", operationClaim)
			_ = asserter.Never(ctx, "claim rollback failed: released underlying could not be recovered",
				"holder_id", holderID,
				"amount", amount,
				"error", pullbackErr.Error(),
			)

			return ledger.Account{}, errors.Join(failure, fmt.Errorf("recover released underlying: %w", pullbackErr))
		}

		if compErr := s.compensate(ctx, logger, operationClaim, updated, delta.Inverse()); compErr != nil {
			return ledger.Account{}, errors.Join(failure, compErr)
		}

		return ledger.Account{}, failure
	}

	s.recordEvent(ctx, logger, func() (*events.OperationEvent, error) {
		return events.NewClaimEvent(ctx, holderID, updated.Unexchanged, updated.Exchanged)
	})

	logger.Log(ctx, log.LevelInfo, "claim applied",
		log.String("holder_id", holderID),
		log.Uint64("amount", amount),
		log.Int64("unexchanged", updated.Unexchanged),
		log.Int64("exchanged", updated.Exchanged),
	)

	return updated, nil
}

func validateHolderID(holderID string) error {
	if strings.TrimSpace(holderID) == "" {
		return fmt.Errorf("%w: holder id is required", constant.ErrInvalidInput)
	}

	return nil
}

// widenAmount converts an unsigned API amount into the signed delta width.
// Out-of-range amounts are a distinct failure reported before any delta is
// attempted.
func widenAmount(amount uint64) (int64, error) {
	signed, err := safe.Int64FromUint64(amount)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", constant.ErrAmountOverflow, err)
	}

	return signed, nil
}

func (s *Service) loadOrCreateAccount(ctx context.Context, holderID string) (ledger.Account, error) {
	account, found, err := s.accounts.Find(ctx, holderID)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("load account: %w", err)
	}

	if !found {
		return ledger.NewAccount(holderID), nil
	}

	return account, nil
}

// applyAndSave funnels the delta through the engine and persists the result.
func (s *Service) applyAndSave(ctx context.Context, account ledger.Account, delta ledger.BalanceDelta) (ledger.Account, error) {
	updated, err := ledger.ApplyDelta(account, delta)
	if err != nil {
		return ledger.Account{}, mapLedgerError(err)
	}

	saved, err := s.accounts.Save(ctx, updated)
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return ledger.Account{}, fmt.Errorf("%w: %w", constant.ErrOperationInFlight, err)
		}

		return ledger.Account{}, fmt.Errorf("save account: %w", err)
	}

	return saved, nil
}

// mapLedgerError lifts engine-level domain errors onto the coded business
// sentinels used at the service boundary.
func mapLedgerError(err error) error {
	var domainErr ledger.DomainError
	if !errors.As(err, &domainErr) {
		return err
	}

	switch domainErr.Code {
	case ledger.ErrorInsufficientBalance:
		return fmt.Errorf("%w: %w", constant.ErrInsufficientBalance, err)
	case ledger.ErrorAmountOverflow:
		return fmt.Errorf("%w: %w", constant.ErrAmountOverflow, err)
	case ledger.ErrorInvalidInput:
		return fmt.Errorf("%w: %w", constant.ErrInvalidInput, err)
	}

	return err
}

// compensate reverts an already-persisted delta after a downstream transfer
// failure. The inverse of a just-applied delta always passes the invariant
// checks, so a failure here means the store rejected the write; that leaves
// the ledger out of sync with custody and is reported as a critical
// condition.
func (s *Service) compensate(
	ctx context.Context,
	logger log.Logger,
	operation string,
	account ledger.Account,
	inverse ledger.BalanceDelta,
) error {
	reverted, err := ledger.ApplyDelta(account, inverse)
	if err == nil {
		_, err = s.accounts.Save(ctx, reverted)
	}

	if err != nil {
		asserter := assert.New(ctx, logger, "service", operation)
		_ = asserter.Never(ctx, "compensating delta failed; ledger and custody are out of sync",
			"holder_id", account.HolderID,
			"error", err.Error(),
		)

		return fmt.Errorf("compensating delta: %w", err)
	}

	return nil
}

// recordEvent stores an outbox event for a committed operation. Event loss
// is tolerated over false events: recording happens only after every
// external effect succeeded, and a storage failure here is surfaced on the
// span and log but does not fail the already-final operation.
func (s *Service) recordEvent(ctx context.Context, logger log.Logger, build func() (*events.OperationEvent, error)) {
	if s.eventsRepo == nil {
		return
	}

	event, err := build()
	if err == nil {
		_, err = s.eventsRepo.Create(ctx, event)
	}

	if err != nil {
		opentelemetry.HandleSpanError(trace.SpanFromContext(ctx), "record operation event", err)
		logger.Log(ctx, log.LevelError, "operation committed but event was not recorded", log.Err(err))
	}
}

// observeOperation records duration, outcome counters, and span status for
// one operation call.
func (s *Service) observeOperation(
	ctx context.Context,
	logger log.Logger,
	factory *metrics.MetricsFactory,
	span trace.Span,
	operation string,
	start time.Time,
	err error,
) {
	s.recordHistogram(ctx, logger, factory, metrics.MetricOperationDuration,
		map[string]string{"operation": operation}, time.Since(start).Milliseconds())

	if err == nil {
		s.addCounter(ctx, logger, factory, metrics.MetricOperationsApplied,
			map[string]string{"operation": operation})

		return
	}

	code := businessErrorCode(err)
	if code == "" {
		opentelemetry.HandleSpanError(span, operation+" failed", err)
		code = "internal"
	} else {
		opentelemetry.HandleSpanBusinessErrorEvent(span, operation+" rejected", err)
	}

	s.addCounter(ctx, logger, factory, metrics.MetricOperationFailures,
		map[string]string{"operation": operation, "code": code})

	logger.Log(ctx, log.LevelWarn, operation+" rejected", log.String("code", code), log.Err(err))
}

// businessSentinels lists every coded business error, most frequent first.
var businessSentinels = []error{
	constant.ErrInsufficientBalance,
	constant.ErrSystemPaused,
	constant.ErrUnauthorized,
	constant.ErrTransferFailure,
	constant.ErrAmountOverflow,
	constant.ErrInvalidInput,
	constant.ErrReentrantCall,
	constant.ErrNotInitialized,
	constant.ErrAlreadyInitialized,
	constant.ErrAccountNotFound,
	constant.ErrOperationInFlight,
	constant.ErrMetadataInvalid,
	constant.ErrMetadataKeyLengthExceeded,
	constant.ErrMetadataValueLengthExceeded,
}

// businessErrorCode extracts the business error code from err, or "" when
// the error is not a coded business failure.
func businessErrorCode(err error) string {
	for _, sentinel := range businessSentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}

	var domainErr ledger.DomainError
	if errors.As(err, &domainErr) {
		return string(domainErr.Code)
	}

	return ""
}

func (s *Service) addCounter(
	ctx context.Context,
	logger log.Logger,
	factory *metrics.MetricsFactory,
	metricDef metrics.Metric,
	labels map[string]string,
) {
	counter, err := factory.Counter(metricDef)
	if err == nil {
		err = counter.WithLabels(labels).AddOne(ctx)
	}

	if err != nil {
		logger.Log(ctx, log.LevelDebug, "record operation counter", log.String("metric", metricDef.Name), log.Err(err))
	}
}

func (s *Service) recordHistogram(
	ctx context.Context,
	logger log.Logger,
	factory *metrics.MetricsFactory,
	metricDef metrics.Metric,
	labels map[string]string,
	value int64,
) {
	histogram, err := factory.Histogram(metricDef)
	if err == nil {
		err = histogram.WithLabels(labels).Record(ctx, value)
	}

	if err != nil {
		logger.Log(ctx, log.LevelDebug, "record operation histogram", log.String("metric", metricDef.Name), log.Err(err))
	}
}

func (s *Service) setGauge(
	ctx context.Context,
	logger log.Logger,
	factory *metrics.MetricsFactory,
	metricDef metrics.Metric,
	value int64,
) {
	gauge, err := factory.Gauge(metricDef)
	if err == nil {
		err = gauge.Set(ctx, value)
	}

	if err != nil {
		logger.Log(ctx, log.LevelDebug, "record gauge", log.String("metric", metricDef.Name), log.Err(err))
	}
}
