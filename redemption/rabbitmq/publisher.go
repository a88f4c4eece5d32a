package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/LerianStudio/redemption-gateway/redemption/backoff"
	"github.com/LerianStudio/redemption-gateway/redemption/log"
	"github.com/LerianStudio/redemption-gateway/redemption/runtime"
)

// Publisher confirm errors.
var (
	ErrPublisherRequired      = errors.New("confirmable publisher is required")
	ErrChannelRequired        = errors.New("rabbitmq channel is required")
	ErrPublisherNotReady      = errors.New("confirmable publisher not initialized")
	ErrConfirmModeUnavailable = errors.New("channel does not support confirm mode")
	ErrPublishNacked          = errors.New("message was nacked by broker")
	ErrConfirmTimeout         = errors.New("confirmation timed out")
	ErrPublisherClosed        = errors.New("publisher is closed")
	ErrReconnectAfterClose    = errors.New("cannot reconnect: publisher was explicitly closed")
	ErrReconnectWhileOpen     = errors.New("cannot reconnect: publisher is still open, call Close first")
	ErrRecoveryExhausted      = errors.New("automatic recovery exhausted all attempts")
)

const (
	// DefaultConfirmTimeout is the default timeout for waiting on broker
	// confirmation.
	DefaultConfirmTimeout = 5 * time.Second

	// confirmChannelBuffer is the buffer size for the confirmation channel.
	// Must cover the max number of unconfirmed messages to avoid blocking.
	confirmChannelBuffer = 256

	// DefaultMaxRecoveryAttempts is the default number of recovery attempts
	// before giving up.
	DefaultMaxRecoveryAttempts = 10

	// DefaultRecoveryBackoffInitial is the starting backoff for recovery retries.
	DefaultRecoveryBackoffInitial = 1 * time.Second

	// DefaultRecoveryBackoffMax is the maximum backoff between recovery retries.
	DefaultRecoveryBackoffMax = 30 * time.Second
)

// recoveryAttemptResult indicates the outcome of a single recovery attempt.
type recoveryAttemptResult int

const (
	recoveryAttemptRetry recoveryAttemptResult = iota
	recoveryAttemptSuccess
	recoveryAttemptAborted
)

// HealthState represents the current connection health of a ConfirmablePublisher.
type HealthState int

const (
	// HealthStateConnected indicates the publisher has a healthy AMQP channel
	// and is ready to publish.
	HealthStateConnected HealthState = iota

	// HealthStateReconnecting indicates the publisher detected a channel
	// closure and is attempting to obtain a new channel.
	HealthStateReconnecting

	// HealthStateDisconnected indicates the publisher has exhausted recovery
	// and can no longer publish. Manual intervention is required.
	HealthStateDisconnected
)

// String returns a human-readable representation of the health state.
func (h HealthState) String() string {
	switch h {
	case HealthStateConnected:
		return "connected"
	case HealthStateReconnecting:
		return "reconnecting"
	case HealthStateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// ChannelProvider returns a new AMQP channel for recovery. It is called by
// the auto-recovery goroutine when the current channel closes. The returned
// channel must be fresh and dedicated, not shared with other publishers.
type ChannelProvider func() (ConfirmableChannel, error)

// ChannelProviderFromConnection adapts a RabbitMQConnection into a recovery
// provider. Each call opens a dedicated channel, reconnecting the underlying
// connection first when needed.
func ChannelProviderFromConnection(conn *RabbitMQConnection) ChannelProvider {
	return func() (ConfirmableChannel, error) {
		ch, err := conn.NewChannel(context.Background())
		if err != nil {
			return nil, err
		}

		return ch, nil
	}
}

// HealthCallback is called when the publisher's connection health changes.
type HealthCallback func(HealthState)

// recoveryConfig holds the auto-recovery configuration. A nil recoveryConfig
// means auto-recovery is disabled.
type recoveryConfig struct {
	provider       ChannelProvider
	healthCallback HealthCallback
	maxAttempts    int
	backoffInitial time.Duration
	backoffMax     time.Duration
}

// ConfirmableChannel defines the AMQP channel operations needed for
// publishing with confirms. Satisfied by *amqp.Channel.
type ConfirmableChannel interface {
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
	PublishWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) error
	Close() error
}

// ConfirmablePublisher wraps an AMQP channel with publisher confirms enabled.
// Publishes are serialized so each confirmation maps to the in-flight message
// without delivery-tag correlation state.
type ConfirmablePublisher struct {
	ch                ConfirmableChannel
	confirms          chan amqp.Confirmation
	closedCh          chan struct{}
	closeOnce         *sync.Once
	done              chan struct{}
	logger            log.Logger
	confirmTimeout    time.Duration
	recovery          *recoveryConfig
	mu                sync.RWMutex
	publishMu         sync.Mutex
	health            HealthState
	closed            bool
	shutdown          bool
	recoveryExhausted bool
}

// ConfirmablePublisherOption configures a ConfirmablePublisher.
type ConfirmablePublisherOption func(*ConfirmablePublisher)

// WithLogger sets a structured logger for the publisher.
func WithLogger(logger log.Logger) ConfirmablePublisherOption {
	return func(pub *ConfirmablePublisher) {
		if isNilInterface(logger) {
			return
		}

		pub.logger = logger
	}
}

// WithConfirmTimeout sets the timeout for waiting on broker confirmation.
// Non-positive values are ignored and the default kept.
func WithConfirmTimeout(timeout time.Duration) ConfirmablePublisherOption {
	return func(pub *ConfirmablePublisher) {
		if timeout > 0 {
			pub.confirmTimeout = timeout
		}
	}
}

// WithAutoRecovery enables automatic channel recovery through provider.
func WithAutoRecovery(provider ChannelProvider) ConfirmablePublisherOption {
	return func(pub *ConfirmablePublisher) {
		if provider == nil {
			return
		}

		ensureRecoveryConfig(pub)

		pub.recovery.provider = provider
	}
}

// WithMaxRecoveryAttempts sets the maximum consecutive recovery attempts.
func WithMaxRecoveryAttempts(maxAttempts int) ConfirmablePublisherOption {
	return func(pub *ConfirmablePublisher) {
		if maxAttempts <= 0 {
			return
		}

		ensureRecoveryConfig(pub)

		pub.recovery.maxAttempts = maxAttempts
	}
}

// WithRecoveryBackoff sets the initial and max backoff durations for recovery.
func WithRecoveryBackoff(initial, maxBackoff time.Duration) ConfirmablePublisherOption {
	return func(pub *ConfirmablePublisher) {
		if initial <= 0 || maxBackoff <= 0 {
			return
		}

		if initial > maxBackoff {
			logIfConfigured(
				pub.logger,
				log.LevelWarn,
				fmt.Sprintf("rabbitmq: ignoring invalid recovery backoff initial=%v max=%v", initial, maxBackoff),
			)

			return
		}

		ensureRecoveryConfig(pub)

		pub.recovery.backoffInitial = initial
		pub.recovery.backoffMax = maxBackoff
	}
}

// WithHealthCallback registers a callback for health state changes.
func WithHealthCallback(fn HealthCallback) ConfirmablePublisherOption {
	return func(pub *ConfirmablePublisher) {
		if fn == nil {
			return
		}

		ensureRecoveryConfig(pub)

		pub.recovery.healthCallback = fn
	}
}

// NewConfirmablePublisher creates a publisher over the connection's current
// shared channel with confirms enabled.
func NewConfirmablePublisher(
	conn *RabbitMQConnection,
	opts ...ConfirmablePublisherOption,
) (*ConfirmablePublisher, error) {
	if conn == nil {
		return nil, ErrNilConnection
	}

	channel := conn.ChannelSnapshot()
	if channel == nil {
		return nil, ErrChannelRequired
	}

	return NewConfirmablePublisherFromChannel(channel, opts...)
}

// NewConfirmablePublisherFromChannel creates a publisher from an existing channel.
func NewConfirmablePublisherFromChannel(
	ch ConfirmableChannel,
	opts ...ConfirmablePublisherOption,
) (*ConfirmablePublisher, error) {
	if isNilInterface(ch) {
		return nil, ErrChannelRequired
	}

	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfirmModeUnavailable, err)
	}

	confirms := make(chan amqp.Confirmation, confirmChannelBuffer)
	ch.NotifyPublish(confirms)

	closeNotify := ch.NotifyClose(make(chan *amqp.Error, 1))

	publisher := &ConfirmablePublisher{
		ch:             ch,
		confirms:       confirms,
		closedCh:       make(chan struct{}),
		closeOnce:      &sync.Once{},
		done:           make(chan struct{}),
		logger:         log.NewNop(),
		confirmTimeout: DefaultConfirmTimeout,
		health:         HealthStateConnected,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(publisher)
		}
	}

	publisher.startCloseMonitor(closeNotify)

	return publisher, nil
}

// startCloseMonitor launches a goroutine that watches channel close events.
func (pub *ConfirmablePublisher) startCloseMonitor(closeNotify chan *amqp.Error) {
	monitorDone := pub.done
	monitorLogger := pub.logger

	runtime.SafeGo(monitorLogger, "rabbitmq-publisher-close-monitor", runtime.KeepRunning, func() {
		select {
		case amqpErr := <-closeNotify:
			pub.handleMonitoredClose(amqpErr)
		case <-monitorDone:
			return
		}
	})
}

func (pub *ConfirmablePublisher) handleMonitoredClose(amqpErr *amqp.Error) {
	pub.mu.Lock()
	pub.ensureCloseSignalsLocked()
	monitorCloseOnce := pub.closeOnce
	monitorClosedCh := pub.closedCh
	hasRecovery := pub.recovery != nil && pub.recovery.provider != nil
	pub.closed = true
	pub.mu.Unlock()

	monitorCloseOnce.Do(func() { close(monitorClosedCh) })

	if hasRecovery {
		pub.attemptAutoRecovery(amqpErr)

		return
	}

	pub.emitHealthState(HealthStateDisconnected)
}

func (pub *ConfirmablePublisher) attemptAutoRecovery(amqpErr *amqp.Error) {
	pub.mu.RLock()
	recovery := pub.recovery
	logger := pub.logger
	pub.mu.RUnlock()

	if recovery == nil || recovery.provider == nil {
		return
	}

	pub.emitHealthState(HealthStateReconnecting)
	pub.logChannelClosed(logger, amqpErr, recovery.maxAttempts)

	if !pub.prepareForRecovery() {
		logIfConfigured(logger, log.LevelInfo, "rabbitmq: recovery aborted, publisher is shutting down")
		pub.emitHealthState(HealthStateDisconnected)

		return
	}

	pub.mu.RLock()
	recoveryStop := pub.done
	pub.mu.RUnlock()

	for attempt := range recovery.maxAttempts {
		result := pub.executeRecoveryAttempt(recovery, logger, recoveryStop, attempt)
		if result == recoveryAttemptSuccess || result == recoveryAttemptAborted {
			return
		}
	}

	logIfConfigured(
		logger,
		log.LevelError,
		fmt.Sprintf("rabbitmq: auto-recovery failed after %d attempts, publisher is disconnected", recovery.maxAttempts),
	)

	pub.mu.Lock()
	pub.recoveryExhausted = true
	pub.mu.Unlock()

	pub.emitHealthState(HealthStateDisconnected)
}

func (pub *ConfirmablePublisher) logChannelClosed(logger log.Logger, amqpErr *amqp.Error, maxAttempts int) {
	if isNilInterface(logger) {
		return
	}

	errMsg := "unknown"
	if amqpErr != nil {
		errMsg = sanitizeAMQPErr(amqpErr, "")
	}

	logger.Log(context.Background(), log.LevelWarn,
		fmt.Sprintf("rabbitmq: channel closed (%s), starting auto-recovery (max %d attempts)", errMsg, maxAttempts))
}

func (pub *ConfirmablePublisher) executeRecoveryAttempt(
	recovery *recoveryConfig,
	logger log.Logger,
	recoveryStop <-chan struct{},
	attempt int,
) recoveryAttemptResult {
	select {
	case <-recoveryStop:
		logIfConfigured(logger, log.LevelInfo, "rabbitmq: recovery aborted (publisher closed externally)")
		pub.emitHealthState(HealthStateDisconnected)

		return recoveryAttemptAborted
	default:
	}

	if aborted := pub.waitRecoveryBackoff(recovery, logger, recoveryStop, attempt); aborted {
		return recoveryAttemptAborted
	}

	return pub.tryReconnectChannel(recovery, logger, attempt)
}

func (pub *ConfirmablePublisher) waitRecoveryBackoff(
	recovery *recoveryConfig,
	logger log.Logger,
	recoveryStop <-chan struct{},
	attempt int,
) bool {
	delay := backoff.ExponentialWithJitter(recovery.backoffInitial, attempt)
	if delay > recovery.backoffMax {
		delay = backoff.FullJitter(recovery.backoffMax)
	}

	logIfConfigured(
		logger,
		log.LevelInfo,
		fmt.Sprintf("rabbitmq: recovery attempt %d/%d, backoff %v", attempt+1, recovery.maxAttempts, delay),
	)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return false
	case <-recoveryStop:
		logIfConfigured(logger, log.LevelInfo, "rabbitmq: recovery aborted during backoff (publisher closed)")
		pub.emitHealthState(HealthStateDisconnected)

		return true
	}
}

func (pub *ConfirmablePublisher) tryReconnectChannel(
	recovery *recoveryConfig,
	logger log.Logger,
	attempt int,
) recoveryAttemptResult {
	newCh, err := recovery.provider()
	if err != nil {
		logIfConfigured(
			logger,
			log.LevelWarn,
			fmt.Sprintf("rabbitmq: recovery attempt %d/%d failed: %s", attempt+1, recovery.maxAttempts, sanitizeAMQPErr(err, "")),
		)

		return recoveryAttemptRetry
	}

	if err := pub.Reconnect(newCh); err != nil {
		logIfConfigured(
			logger,
			log.LevelWarn,
			fmt.Sprintf("rabbitmq: recovery attempt %d/%d reconnect failed: %s", attempt+1, recovery.maxAttempts, sanitizeAMQPErr(err, "")),
		)

		if !isNilInterface(newCh) {
			_ = newCh.Close()
		}

		return recoveryAttemptRetry
	}

	logIfConfigured(
		logger,
		log.LevelInfo,
		fmt.Sprintf("rabbitmq: auto-recovery succeeded on attempt %d/%d", attempt+1, recovery.maxAttempts),
	)

	pub.emitHealthState(HealthStateConnected)

	return recoveryAttemptSuccess
}

// prepareForRecovery tears down the failed channel and resets signals so
// Reconnect can install a fresh one. Returns false when the publisher is
// shutting down for good.
func (pub *ConfirmablePublisher) prepareForRecovery() bool {
	pub.publishMu.Lock()
	defer pub.publishMu.Unlock()

	pub.mu.Lock()
	if pub.shutdown {
		pub.mu.Unlock()

		return false
	}

	currentCh := pub.ch
	confirms := pub.confirms
	confirmTimeout := pub.confirmTimeout
	pub.ensureCloseSignalsLocked()

	pub.closed = true
	pub.recoveryExhausted = false
	pub.ch = nil
	safeCloseSignal(pub.done)
	pub.closeOnce.Do(func() { close(pub.closedCh) })
	pub.mu.Unlock()

	if !isNilInterface(currentCh) {
		_ = currentCh.Close()
	}

	drainConfirms(confirms, confirmTimeout)

	pub.mu.Lock()
	pub.done = make(chan struct{})
	pub.mu.Unlock()

	return true
}

func (pub *ConfirmablePublisher) emitHealthState(state HealthState) {
	pub.mu.Lock()
	pub.health = state
	recovery := pub.recovery
	pub.mu.Unlock()

	if recovery == nil || recovery.healthCallback == nil {
		return
	}

	recovery.healthCallback(state)
}

// Publish sends a message and synchronously waits for broker confirmation.
//
// Calls are serialized per publisher instance: one publish+confirm flow is
// in flight at a time, which keeps confirmations aligned with messages. For
// higher throughput, shard across multiple publisher instances.
func (pub *ConfirmablePublisher) Publish(
	ctx context.Context,
	exchange, routingKey string,
	mandatory, immediate bool,
	msg amqp.Publishing,
) error {
	if pub == nil {
		return ErrPublisherRequired
	}

	if ctx == nil {
		ctx = context.Background()
	}

	pub.publishMu.Lock()
	defer pub.publishMu.Unlock()

	pub.mu.RLock()

	if pub.closed {
		recoveryExhausted := pub.recoveryExhausted
		pub.mu.RUnlock()

		if recoveryExhausted {
			return fmt.Errorf("%w: %w", ErrPublisherClosed, ErrRecoveryExhausted)
		}

		return ErrPublisherClosed
	}

	if pub.ch == nil {
		pub.mu.RUnlock()
		return ErrPublisherNotReady
	}

	publishChannel := pub.ch
	confirms := pub.confirms
	closedCh := pub.closedCh
	confirmTimeout := pub.confirmTimeout
	pub.mu.RUnlock()

	if err := publishChannel.PublishWithContext(ctx, exchange, routingKey, mandatory, immediate, msg); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	err := waitForConfirm(ctx, confirms, closedCh, confirmTimeout)
	if err != nil && isConfirmStreamCorrupted(err) {
		// The pending confirmation would desynchronize the next wait.
		// Invalidate the channel so the close monitor triggers auto-recovery
		// once publishMu is released by the deferred unlock above.
		pub.invalidateChannel(publishChannel)
	}

	return err
}

// isConfirmStreamCorrupted reports whether the error leaves a stale entry in
// the confirmation channel that would desynchronize the next wait.
func isConfirmStreamCorrupted(err error) bool {
	return errors.Is(err, ErrConfirmTimeout) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// invalidateChannel marks the publisher closed and closes the underlying
// AMQP channel. The close event reaches the monitor goroutine, which starts
// auto-recovery (if configured) after the caller releases publishMu.
//
// Must be called while holding publishMu.
func (pub *ConfirmablePublisher) invalidateChannel(ch ConfirmableChannel) {
	pub.mu.Lock()
	pub.ensureCloseSignalsLocked()
	pub.closed = true
	pub.ch = nil
	pub.mu.Unlock()

	pub.closeOnce.Do(func() { close(pub.closedCh) })

	if !isNilInterface(ch) {
		_ = ch.Close()
	}
}

func waitForConfirm(
	ctx context.Context,
	confirms <-chan amqp.Confirmation,
	closedCh <-chan struct{},
	confirmTimeout time.Duration,
) error {
	timeout := time.NewTimer(confirmTimeout)
	defer timeout.Stop()

	select {
	case confirmed, ok := <-confirms:
		if !ok {
			return ErrPublisherClosed
		}

		if !confirmed.Ack {
			return fmt.Errorf("%w: delivery_tag=%d", ErrPublishNacked, confirmed.DeliveryTag)
		}

		return nil

	case <-closedCh:
		return ErrPublisherClosed

	case <-timeout.C:
		return ErrConfirmTimeout

	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	}
}

// Close drains pending confirmations and permanently closes the publisher.
// After Close, Reconnect is rejected and callers should create a new publisher.
func (pub *ConfirmablePublisher) Close() error {
	if pub == nil {
		return ErrPublisherRequired
	}

	pub.publishMu.Lock()
	defer pub.publishMu.Unlock()

	pub.mu.Lock()
	pub.ensureCloseSignalsLocked()

	if pub.shutdown {
		pub.mu.Unlock()

		return nil
	}

	pub.shutdown = true
	pub.closed = true
	pub.recoveryExhausted = false
	currentCh := pub.ch
	safeCloseSignal(pub.done)
	pub.closeOnce.Do(func() { close(pub.closedCh) })
	pub.mu.Unlock()

	if !isNilInterface(currentCh) {
		if err := currentCh.Close(); err != nil {
			return fmt.Errorf("closing publisher channel: %w", err)
		}
	}

	drainConfirms(pub.confirms, pub.confirmTimeout)
	pub.emitHealthState(HealthStateDisconnected)

	return nil
}

// Reconnect replaces the underlying AMQP channel with a fresh one.
//
// Caller contract:
//   - Reconnect is only valid after an operational close (auto-recovery
//     transition), when closed is true and shutdown is false.
//   - After explicit Close the publisher is in terminal shutdown and
//     Reconnect returns ErrReconnectAfterClose.
func (pub *ConfirmablePublisher) Reconnect(ch ConfirmableChannel) error {
	if pub == nil {
		return ErrPublisherRequired
	}

	if isNilInterface(ch) {
		return ErrChannelRequired
	}

	pub.publishMu.Lock()
	defer pub.publishMu.Unlock()

	pub.mu.Lock()
	defer pub.mu.Unlock()

	if !pub.closed {
		return ErrReconnectWhileOpen
	}

	if pub.shutdown {
		return ErrReconnectAfterClose
	}

	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("%w: %w", ErrConfirmModeUnavailable, err)
	}

	confirms := make(chan amqp.Confirmation, confirmChannelBuffer)
	ch.NotifyPublish(confirms)

	closeNotify := ch.NotifyClose(make(chan *amqp.Error, 1))

	pub.ch = ch
	pub.confirms = confirms
	pub.closedCh = make(chan struct{})

	pub.closeOnce = &sync.Once{}
	if pub.done == nil {
		pub.done = make(chan struct{})
	}

	pub.closed = false
	pub.recoveryExhausted = false

	pub.startCloseMonitor(closeNotify)

	return nil
}

// Channel returns the underlying channel for low-level operations. The
// result is nil when the publisher is closed, reconnecting, or not yet
// initialized.
func (pub *ConfirmablePublisher) Channel() ConfirmableChannel {
	if pub == nil {
		return nil
	}

	pub.mu.RLock()
	defer pub.mu.RUnlock()

	if pub.closed {
		return nil
	}

	return pub.ch
}

// HealthState returns the latest health state snapshot.
func (pub *ConfirmablePublisher) HealthState() HealthState {
	if pub == nil {
		return HealthStateDisconnected
	}

	pub.mu.RLock()
	defer pub.mu.RUnlock()

	return pub.health
}

func ensureRecoveryConfig(pub *ConfirmablePublisher) {
	if pub.recovery != nil {
		return
	}

	pub.recovery = &recoveryConfig{
		maxAttempts:    DefaultMaxRecoveryAttempts,
		backoffInitial: DefaultRecoveryBackoffInitial,
		backoffMax:     DefaultRecoveryBackoffMax,
	}
}

func (pub *ConfirmablePublisher) ensureCloseSignalsLocked() {
	if pub.closeOnce == nil {
		pub.closeOnce = &sync.Once{}
	}

	if pub.closedCh == nil {
		pub.closedCh = make(chan struct{})
	}
}

func safeCloseSignal(ch chan struct{}) {
	if ch == nil {
		return
	}

	select {
	case <-ch:
		return
	default:
		close(ch)
	}
}

// drainConfirms empties leftover confirmations so a later reader never sees
// stale entries. Bounded by timeout in case the stream never closes.
func drainConfirms(confirms <-chan amqp.Confirmation, timeout time.Duration) {
	if confirms == nil {
		return
	}

	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}

	grace := time.NewTimer(timeout)
	defer grace.Stop()

	for {
		select {
		case _, ok := <-confirms:
			if !ok {
				return
			}
		case <-grace.C:
			return
		}
	}
}

func logIfConfigured(logger log.Logger, level log.Level, message string) {
	if isNilInterface(logger) {
		return
	}

	logger.Log(context.Background(), level, message)
}

// isNilInterface reports whether v is nil or an interface wrapping a typed
// nil value.
func isNilInterface(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
