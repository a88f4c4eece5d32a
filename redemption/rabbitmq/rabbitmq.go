package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/LerianStudio/redemption-gateway/redemption/assert"
	"github.com/LerianStudio/redemption-gateway/redemption/backoff"
	constant "github.com/LerianStudio/redemption-gateway/redemption/constants"
	"github.com/LerianStudio/redemption-gateway/redemption/log"
	"github.com/LerianStudio/redemption-gateway/redemption/opentelemetry"
	"github.com/LerianStudio/redemption-gateway/redemption/opentelemetry/metrics"
)

var (
	// ErrNilConnection is returned when a method is called on a nil
	// RabbitMQConnection.
	ErrNilConnection = errors.New("rabbitmq connection is nil")

	// ErrInsecureTLS is returned when the health check HTTP client has TLS
	// verification disabled without acknowledging it via AllowInsecureTLS.
	ErrInsecureTLS = errors.New("rabbitmq health check client has TLS verification disabled; set AllowInsecureTLS to acknowledge the risk")

	// ErrChannelUnavailable is returned when no usable channel exists after a
	// connection attempt.
	ErrChannelUnavailable = errors.New("rabbitmq channel not available")

	// pkgLogger holds the package-level logger for nil-receiver diagnostics.
	// Defaults to a nop logger; consumers can override via SetPackageLogger.
	pkgLogger atomic.Value // stores log.Logger
)

func init() {
	pkgLogger.Store(log.NewNop())
}

// SetPackageLogger configures a package-level logger used for nil-receiver
// assertion diagnostics. Typically called once during application bootstrap.
// If l is nil, a nop logger is used.
func SetPackageLogger(l log.Logger) {
	if l == nil {
		l = log.NewNop()
	}

	pkgLogger.Store(l)
}

func resolvePackageLogger() log.Logger {
	if v := pkgLogger.Load(); v != nil {
		if l, ok := v.(log.Logger); ok {
			return l
		}
	}

	return log.NewNop()
}

// nilConnectionAssert fires a nil-receiver assertion and returns ErrNilConnection.
func nilConnectionAssert(operation string) error {
	ctx := context.Background()
	a := assert.New(ctx, resolvePackageLogger(), "rabbitmq.RabbitMQConnection", operation)
	_ = a.Never(ctx, "nil receiver on *rabbitmq.RabbitMQConnection")

	return ErrNilConnection
}

// connectionFailuresMetric defines the counter for rabbitmq connection failures.
var connectionFailuresMetric = metrics.Metric{
	Name:        "rabbitmq_connection_failures_total",
	Unit:        "1",
	Description: "Total number of rabbitmq connection failures",
}

// reconnectionsMetric defines the counter for rabbitmq reconnection attempts.
var reconnectionsMetric = metrics.Metric{
	Name:        "rabbitmq_reconnections_total",
	Unit:        "1",
	Description: "Total number of rabbitmq reconnection attempts",
}

const (
	// defaultHealthCheckTimeout bounds the management API health probe.
	defaultHealthCheckTimeout = 5 * time.Second

	// reconnectBackoffBase is the starting delay between reconnect attempts.
	reconnectBackoffBase = 500 * time.Millisecond

	// reconnectBackoffCap is the maximum delay between reconnect attempts.
	reconnectBackoffCap = 30 * time.Second
)

// RabbitMQConnection manages the shared AMQP connection and channel the
// gateway publishes operation events through. The connection is established
// lazily and rebuilt on demand when the broker drops it.
type RabbitMQConnection struct {
	// ConnectionStringSource is the full AMQP URI, typically assembled with
	// BuildRabbitMQConnectionString. It is never logged verbatim.
	ConnectionStringSource string

	// HealthCheckURL is the management API base URL, e.g. "http://host:15672".
	// The alarms endpoint path is appended automatically.
	HealthCheckURL string

	// User and Pass authenticate the management API health probe.
	User string
	Pass string

	// AllowInsecureTLS must be set to accept a health check client whose TLS
	// certificate verification is disabled.
	AllowInsecureTLS bool

	Logger         log.Logger
	MetricsFactory *metrics.MetricsFactory

	mu        sync.Mutex
	conn      *amqp.Connection
	channel   *amqp.Channel
	connected bool

	dialer         func(context.Context, string) (*amqp.Connection, error)
	channelFactory func(context.Context, *amqp.Connection) (*amqp.Channel, error)
	connCloser     func(*amqp.Connection) error
	connClosedFn   func(*amqp.Connection) bool
	chCloser       func(*amqp.Channel) error
	chClosedFn     func(*amqp.Channel) bool
	healthClient   *http.Client

	// Reconnect rate limiting keeps a dead broker from being hammered by
	// every caller at once.
	lastReconnectAttempt time.Time
	reconnectAttempts    int
}

// Connect dials the broker, opens the shared channel, and verifies broker
// health through the management API. An already-open live connection from a
// concurrent Connect is kept and the new one discarded.
func (rc *RabbitMQConnection) Connect(ctx context.Context) error {
	if rc == nil {
		return nilConnectionAssert("Connect")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("rabbitmq connect: %w", err)
	}

	tracer := otel.Tracer("rabbitmq")

	ctx, span := tracer.Start(ctx, "rabbitmq.connect")
	defer span.End()

	span.SetAttributes(attribute.String(constant.AttrDBSystem, constant.DBSystemRabbitMQ))

	rc.mu.Lock()

	if err := rc.applyDefaults(); err != nil {
		rc.mu.Unlock()

		opentelemetry.HandleSpanError(span, "Failed to apply rabbitmq defaults", err)

		return fmt.Errorf("rabbitmq connect: %w", err)
	}

	connStr := rc.ConnectionStringSource
	healthURL := rc.HealthCheckURL
	user := rc.User
	pass := rc.Pass
	healthClient := rc.healthClient
	dial := rc.dialer
	openChannel := rc.channelFactory
	connClosed := rc.connClosedFn
	closeConn := rc.connCloser
	logger := rc.loggerOrNop()
	rc.mu.Unlock()

	logger.Log(ctx, log.LevelInfo, "connecting to rabbitmq")

	conn, err := dial(ctx, connStr)
	if err != nil {
		logger.Log(ctx, log.LevelError, "failed to connect to rabbitmq", log.String("error_detail", sanitizeAMQPErr(err, connStr)))
		rc.recordConnectionFailure("connect")

		sanitizedErr := newSanitizedError(err, connStr, "failed to connect to rabbitmq")
		opentelemetry.HandleSpanError(span, "Failed to connect to rabbitmq", sanitizedErr)

		return sanitizedErr
	}

	ch, err := openChannel(ctx, conn)
	if err == nil && ch == nil {
		err = errors.New("channel factory returned nil channel")
	}

	if err != nil {
		rc.closeConnectionWith(conn, closeConn)

		logger.Log(ctx, log.LevelError, "failed to open rabbitmq channel", log.Err(err))

		opentelemetry.HandleSpanError(span, "Failed to open rabbitmq channel", err)

		return fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	if !rc.probeHealth(ctx, healthURL, user, pass, healthClient, logger) {
		rc.closeConnectionWith(conn, closeConn)

		err = errors.New("broker reported unhealthy")

		logger.Log(ctx, log.LevelError, "rabbitmq health check failed")

		opentelemetry.HandleSpanError(span, "RabbitMQ health check failed", err)

		return fmt.Errorf("rabbitmq health check failed: %w", err)
	}

	logger.Log(ctx, log.LevelInfo, "connected to rabbitmq")

	rc.mu.Lock()
	if rc.conn != nil && rc.conn != conn && !connClosed(rc.conn) {
		rc.mu.Unlock()

		rc.closeConnectionWith(conn, closeConn)

		return nil
	}

	rc.conn = conn
	rc.channel = ch
	rc.connected = true
	rc.reconnectAttempts = 0
	rc.mu.Unlock()

	return nil
}

// ensureSnapshot captures state needed by EnsureChannel under the lock.
type ensureSnapshot struct {
	connStr        string
	logger         log.Logger
	dial           func(context.Context, string) (*amqp.Connection, error)
	openChannel    func(context.Context, *amqp.Connection) (*amqp.Channel, error)
	closeConn      func(*amqp.Connection) error
	needConnection bool
	needChannel    bool
	existingConn   *amqp.Connection
}

// snapshotEnsureState applies defaults, decides what needs rebuilding, and
// enforces reconnect rate limiting, all under the lock.
func (rc *RabbitMQConnection) snapshotEnsureState() (ensureSnapshot, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if err := rc.applyDefaults(); err != nil {
		return ensureSnapshot{}, fmt.Errorf("rabbitmq ensure channel: %w", err)
	}

	needConnection := rc.conn == nil || rc.connClosedFn(rc.conn)
	needChannel := needConnection || rc.channel == nil || rc.chClosedFn(rc.channel)

	if needConnection && rc.reconnectAttempts > 0 {
		delay := backoff.ExponentialWithJitter(reconnectBackoffBase, rc.reconnectAttempts)
		if delay > reconnectBackoffCap {
			delay = reconnectBackoffCap
		}

		if elapsed := time.Since(rc.lastReconnectAttempt); elapsed < delay {
			return ensureSnapshot{}, fmt.Errorf("rabbitmq ensure channel: rate-limited (next attempt in %s)", delay-elapsed)
		}
	}

	return ensureSnapshot{
		connStr:        rc.ConnectionStringSource,
		logger:         rc.loggerOrNop(),
		dial:           rc.dialer,
		openChannel:    rc.channelFactory,
		closeConn:      rc.connCloser,
		needConnection: needConnection,
		needChannel:    needChannel,
		existingConn:   rc.conn,
	}, nil
}

// EnsureChannel guarantees a live connection and shared channel, dialing or
// reopening whichever is down. Failed dials push the next attempt out with
// exponential backoff.
func (rc *RabbitMQConnection) EnsureChannel(ctx context.Context) error {
	if rc == nil {
		return nilConnectionAssert("EnsureChannel")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("rabbitmq ensure channel: %w", err)
	}

	tracer := otel.Tracer("rabbitmq")

	ctx, span := tracer.Start(ctx, "rabbitmq.ensure_channel")
	defer span.End()

	span.SetAttributes(attribute.String(constant.AttrDBSystem, constant.DBSystemRabbitMQ))

	snap, err := rc.snapshotEnsureState()
	if err != nil {
		opentelemetry.HandleSpanError(span, "Failed to prepare rabbitmq channel state", err)

		return err
	}

	if !snap.needChannel {
		return nil
	}

	var conn *amqp.Connection

	newConnection := false

	if snap.needConnection {
		rc.mu.Lock()
		rc.lastReconnectAttempt = time.Now()
		rc.mu.Unlock()

		conn, err = snap.dial(ctx, snap.connStr)
		if err != nil {
			snap.logger.Log(ctx, log.LevelError, "failed to reconnect to rabbitmq", log.String("error_detail", sanitizeAMQPErr(err, snap.connStr)))
			rc.recordConnectionFailure("ensure_channel_connect")

			rc.mu.Lock()
			rc.connected = false
			rc.reconnectAttempts++
			rc.mu.Unlock()

			sanitizedErr := newSanitizedError(err, snap.connStr, "failed to reconnect to rabbitmq")
			opentelemetry.HandleSpanError(span, "Failed to reconnect to rabbitmq", sanitizedErr)

			return sanitizedErr
		}

		newConnection = true
	} else {
		conn = snap.existingConn
	}

	ch, err := snap.openChannel(ctx, conn)
	if err == nil && ch == nil {
		err = errors.New("channel factory returned nil channel")
	}

	if err != nil {
		rc.handleChannelFailure(conn, snap.existingConn, newConnection, snap.closeConn)
		rc.recordConnectionFailure("ensure_channel")

		snap.logger.Log(ctx, log.LevelError, "failed to open rabbitmq channel", log.Err(err))

		opentelemetry.HandleSpanError(span, "Failed to open rabbitmq channel", err)

		return fmt.Errorf("rabbitmq ensure channel: %w", err)
	}

	rc.mu.Lock()
	if newConnection {
		rc.conn = conn
		rc.reconnectAttempts = 0
	}

	rc.channel = ch
	rc.connected = true
	rc.mu.Unlock()

	if newConnection {
		rc.recordReconnection("success")
	}

	return nil
}

// GetChannel returns the shared channel, reconnecting on demand if needed.
func (rc *RabbitMQConnection) GetChannel(ctx context.Context) (*amqp.Channel, error) {
	if rc == nil {
		return nil, nilConnectionAssert("GetChannel")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rc.mu.Lock()

	if err := rc.applyDefaults(); err != nil {
		rc.mu.Unlock()

		return nil, err
	}

	if rc.connected && rc.channel != nil && !rc.chClosedFn(rc.channel) {
		ch := rc.channel
		rc.mu.Unlock()

		return ch, nil
	}
	rc.mu.Unlock()

	if err := rc.EnsureChannel(ctx); err != nil {
		rc.loggerOrNop().Log(ctx, log.LevelError, "failed to ensure rabbitmq channel", log.Err(err))

		return nil, err
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.channel == nil {
		rc.connected = false

		return nil, ErrChannelUnavailable
	}

	return rc.channel, nil
}

// NewChannel opens a dedicated channel on the shared connection, dialing
// first when the connection is down. Callers own the returned channel and
// must close it; the shared channel stays untouched.
func (rc *RabbitMQConnection) NewChannel(ctx context.Context) (*amqp.Channel, error) {
	if rc == nil {
		return nil, nilConnectionAssert("NewChannel")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if err := rc.EnsureChannel(ctx); err != nil {
		return nil, err
	}

	rc.mu.Lock()
	conn := rc.conn
	openChannel := rc.channelFactory
	rc.mu.Unlock()

	if conn == nil {
		return nil, ErrChannelUnavailable
	}

	ch, err := openChannel(ctx, conn)
	if err != nil {
		rc.recordConnectionFailure("new_channel")

		return nil, fmt.Errorf("rabbitmq new channel: %w", err)
	}

	if ch == nil {
		return nil, ErrChannelUnavailable
	}

	return ch, nil
}

// ChannelSnapshot returns the current shared channel without dialing. The
// result may be nil or already closed; callers that need a live channel
// should use GetChannel.
func (rc *RabbitMQConnection) ChannelSnapshot() *amqp.Channel {
	if rc == nil {
		return nil
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()

	return rc.channel
}

// IsConnected reports whether the last connection attempt succeeded and the
// connection has not been closed since.
func (rc *RabbitMQConnection) IsConnected() (bool, error) {
	if rc == nil {
		return false, nilConnectionAssert("IsConnected")
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()

	return rc.connected, nil
}

// HealthCheck probes the management API alarms endpoint and reports whether
// the broker considers itself healthy.
func (rc *RabbitMQConnection) HealthCheck(ctx context.Context) (bool, error) {
	if rc == nil {
		return false, nilConnectionAssert("HealthCheck")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	tracer := otel.Tracer("rabbitmq")

	ctx, span := tracer.Start(ctx, "rabbitmq.health_check")
	defer span.End()

	span.SetAttributes(attribute.String(constant.AttrDBSystem, constant.DBSystemRabbitMQ))

	rc.mu.Lock()

	if err := rc.applyDefaults(); err != nil {
		rc.loggerOrNop().Log(ctx, log.LevelWarn, "rabbitmq defaults rejected during health check", log.Err(err))
	}

	healthURL := rc.HealthCheckURL
	user := rc.User
	pass := rc.Pass
	client := rc.healthClient
	logger := rc.loggerOrNop()
	rc.mu.Unlock()

	if !rc.probeHealth(ctx, healthURL, user, pass, client, logger) {
		err := errors.New("rabbitmq health check failed")
		opentelemetry.HandleSpanError(span, "RabbitMQ health check failed", err)

		return false, err
	}

	return true, nil
}

// probeHealth runs the management API probe on pre-captured config values,
// safe to call without holding the mutex.
func (rc *RabbitMQConnection) probeHealth(ctx context.Context, rawHealthURL, user, pass string, client *http.Client, logger log.Logger) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := ctx.Err(); err != nil {
		logger.Log(ctx, log.LevelError, "context canceled during rabbitmq health check", log.Err(err))

		return false
	}

	healthURL, err := validateHealthCheckURL(rawHealthURL)
	if err != nil {
		logger.Log(ctx, log.LevelError, "invalid rabbitmq health check URL", log.Err(err))

		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		logger.Log(ctx, log.LevelError, "failed to create rabbitmq health check request", log.Err(err))

		return false
	}

	req.SetBasicAuth(user, pass)

	if client == nil {
		client = &http.Client{Timeout: defaultHealthCheckTimeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		logger.Log(ctx, log.LevelError, "failed to execute rabbitmq health check request", log.Err(err))

		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Log(ctx, log.LevelError, "rabbitmq health check failed", log.String("status", resp.Status))

		return false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		logger.Log(ctx, log.LevelError, "failed to read rabbitmq health check response", log.Err(err))

		return false
	}

	var result map[string]any

	err = json.Unmarshal(body, &result)
	if err != nil {
		logger.Log(ctx, log.LevelError, "failed to parse rabbitmq health check response", log.Err(err))

		return false
	}

	if result == nil {
		logger.Log(ctx, log.LevelError, "rabbitmq health check response is empty")

		return false
	}

	if status, ok := result["status"].(string); ok && status == "ok" {
		return true
	}

	logger.Log(ctx, log.LevelError, "rabbitmq is not healthy")

	return false
}

// Close shuts down the shared channel and connection. Close still runs when
// defaults are rejected; cleanup must not depend on health client validation.
func (rc *RabbitMQConnection) Close(ctx context.Context) error {
	if rc == nil {
		return nilConnectionAssert("Close")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("rabbitmq close: %w", err)
	}

	tracer := otel.Tracer("rabbitmq")

	ctx, span := tracer.Start(ctx, "rabbitmq.close")
	defer span.End()

	span.SetAttributes(attribute.String(constant.AttrDBSystem, constant.DBSystemRabbitMQ))

	rc.mu.Lock()
	_ = rc.applyDefaults()
	channel := rc.channel
	connection := rc.conn
	closeCh := rc.chCloser
	closeConn := rc.connCloser
	rc.conn = nil
	rc.channel = nil
	rc.connected = false
	logger := rc.loggerOrNop()
	rc.mu.Unlock()

	var closeErr error

	if channel != nil {
		if err := closeCh(channel); err != nil {
			closeErr = fmt.Errorf("failed to close rabbitmq channel: %w", err)

			logger.Log(ctx, log.LevelWarn, "failed to close rabbitmq channel", log.Err(err))
		}
	}

	if connection != nil {
		if err := closeConn(connection); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("failed to close rabbitmq connection: %w", err))

			logger.Log(ctx, log.LevelWarn, "failed to close rabbitmq connection", log.Err(err))
		}
	}

	if closeErr != nil {
		opentelemetry.HandleSpanError(span, "Failed to close rabbitmq", closeErr)
	}

	return closeErr
}

// applyDefaults fills nil seams with real AMQP implementations. Idempotent;
// caller must hold rc.mu.
func (rc *RabbitMQConnection) applyDefaults() error {
	if rc.dialer == nil {
		rc.dialer = func(_ context.Context, connectionString string) (*amqp.Connection, error) {
			return amqp.Dial(connectionString)
		}
	}

	if rc.channelFactory == nil {
		rc.channelFactory = func(_ context.Context, conn *amqp.Connection) (*amqp.Channel, error) {
			if conn == nil {
				return nil, errors.New("cannot open channel: connection is nil")
			}

			return conn.Channel()
		}
	}

	if rc.connCloser == nil {
		rc.connCloser = func(conn *amqp.Connection) error {
			if conn == nil {
				return nil
			}

			return conn.Close()
		}
	}

	if rc.connClosedFn == nil {
		rc.connClosedFn = func(conn *amqp.Connection) bool {
			if conn == nil {
				return true
			}

			return conn.IsClosed()
		}
	}

	if rc.chCloser == nil {
		rc.chCloser = func(ch *amqp.Channel) error {
			if ch == nil {
				return nil
			}

			return ch.Close()
		}
	}

	if rc.chClosedFn == nil {
		rc.chClosedFn = func(ch *amqp.Channel) bool {
			if ch == nil {
				return true
			}

			return ch.IsClosed()
		}
	}

	return rc.applyHealthDefaults()
}

func (rc *RabbitMQConnection) applyHealthDefaults() error {
	if rc.healthClient == nil {
		rc.healthClient = &http.Client{Timeout: defaultHealthCheckTimeout}

		return nil
	}

	transport, ok := rc.healthClient.Transport.(*http.Transport)
	if !ok || transport.TLSClientConfig == nil {
		return nil
	}

	if transport.TLSClientConfig.InsecureSkipVerify && !rc.AllowInsecureTLS {
		return ErrInsecureTLS
	}

	return nil
}

func (rc *RabbitMQConnection) closeConnectionWith(connection *amqp.Connection, closer func(*amqp.Connection) error) {
	if closer == nil {
		return
	}

	if err := closer(connection); err != nil {
		rc.loggerOrNop().Log(context.Background(), log.LevelWarn, "failed to close rabbitmq connection during cleanup", log.Err(err))
	}
}

// handleChannelFailure cleans up after a failed channel creation in
// EnsureChannel. A freshly dialed connection is discarded; an existing one
// is left open for the next attempt.
func (rc *RabbitMQConnection) handleChannelFailure(conn, existingConn *amqp.Connection, newConnection bool, closeConn func(*amqp.Connection) error) {
	if newConnection {
		rc.closeConnectionWith(conn, closeConn)
	}

	rc.mu.Lock()
	if newConnection && rc.conn == existingConn {
		rc.conn = nil
	}

	rc.channel = nil
	rc.connected = false
	rc.mu.Unlock()
}

func (rc *RabbitMQConnection) loggerOrNop() log.Logger {
	if rc == nil || rc.Logger == nil {
		return log.NewNop()
	}

	return rc.Logger
}

// healthCheckPath is the management API endpoint probed by health checks.
const healthCheckPath = "/api/health/checks/alarms"

// validateHealthCheckURL validates the health check URL and appends the
// alarms endpoint path when not already present. The input should be the
// management API base URL, not the full endpoint. The URL comes from trusted
// configuration; no host allowlist is applied here.
func validateHealthCheckURL(rawURL string) (string, error) {
	healthURL := strings.TrimSpace(rawURL)
	if healthURL == "" {
		return "", errors.New("rabbitmq health check URL is empty")
	}

	parsedURL, err := url.Parse(healthURL)
	if err != nil {
		return "", err
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return "", errors.New("rabbitmq health check URL must use http or https")
	}

	if parsedURL.Host == "" {
		return "", errors.New("rabbitmq health check URL must include a host")
	}

	if parsedURL.User != nil {
		return "", errors.New("rabbitmq health check URL must not include user credentials")
	}

	normalized := strings.TrimSuffix(parsedURL.String(), "/")
	if strings.HasSuffix(normalized, healthCheckPath) {
		return normalized, nil
	}

	return normalized + healthCheckPath, nil
}

// sanitizedError wraps an original error with a redacted message. Error()
// returns the sanitized message; Unwrap() returns the original so that
// errors.Is and errors.As still work.
type sanitizedError struct {
	original error
	message  string
}

func (e *sanitizedError) Error() string { return e.message }

func (e *sanitizedError) Unwrap() error { return e.original }

// newSanitizedError wraps err with a readable prefix and a redacted
// connection string.
func newSanitizedError(err error, connectionString, prefix string) error {
	return fmt.Errorf("%s: %w", prefix, &sanitizedError{
		original: err,
		message:  sanitizeAMQPErr(err, connectionString),
	})
}

// sanitizeAMQPErr strips credentials from err's message. The raw and
// URL-decoded forms of the password are both redacted since AMQP errors may
// echo either.
func sanitizeAMQPErr(err error, connectionString string) string {
	if err == nil {
		return ""
	}

	if connectionString == "" {
		return err.Error()
	}

	referenceURL, parseErr := url.Parse(connectionString)
	if parseErr != nil {
		return err.Error()
	}

	redactedURL := referenceURL.Redacted()

	errMsg := err.Error()
	if strings.Contains(errMsg, connectionString) {
		errMsg = strings.ReplaceAll(errMsg, connectionString, redactedURL)
	}

	if strings.Contains(errMsg, referenceURL.String()) {
		errMsg = strings.ReplaceAll(errMsg, referenceURL.String(), redactedURL)
	}

	if referenceURL.User != nil {
		if pass, ok := referenceURL.User.Password(); ok && pass != "" {
			errMsg = strings.ReplaceAll(errMsg, pass, "xxxxx")
		}
	}

	return errMsg
}

// recordConnectionFailure increments the rabbitmq connection failure counter.
// No-op when MetricsFactory is nil.
func (rc *RabbitMQConnection) recordConnectionFailure(operation string) {
	if rc == nil || rc.MetricsFactory == nil {
		return
	}

	counter, err := rc.MetricsFactory.Counter(connectionFailuresMetric)
	if err != nil {
		rc.loggerOrNop().Log(context.Background(), log.LevelWarn, "failed to create rabbitmq metric counter", log.Err(err))
		return
	}

	err = counter.
		WithLabels(map[string]string{
			"operation": constant.SanitizeMetricLabel(operation),
		}).
		AddOne(context.Background())
	if err != nil {
		rc.loggerOrNop().Log(context.Background(), log.LevelWarn, "failed to record rabbitmq metric", log.Err(err))
	}
}

// recordReconnection increments the rabbitmq reconnection counter.
// No-op when MetricsFactory is nil.
func (rc *RabbitMQConnection) recordReconnection(result string) {
	if rc == nil || rc.MetricsFactory == nil {
		return
	}

	counter, err := rc.MetricsFactory.Counter(reconnectionsMetric)
	if err != nil {
		rc.loggerOrNop().Log(context.Background(), log.LevelWarn, "failed to create rabbitmq reconnection metric counter", log.Err(err))
		return
	}

	err = counter.
		WithLabels(map[string]string{
			"result": result,
		}).
		AddOne(context.Background())
	if err != nil {
		rc.loggerOrNop().Log(context.Background(), log.LevelWarn, "failed to record rabbitmq reconnection metric", log.Err(err))
	}
}

// BuildRabbitMQConnectionString constructs an AMQP connection string. When
// vhost is empty the default vhost "/" is used (no path in the URL). Special
// characters in user, password, and vhost are URL-encoded automatically.
// Bare IPv6 hosts are bracketed.
func BuildRabbitMQConnectionString(protocol, user, pass, host, port, vhost string) string {
	u := &url.URL{Scheme: protocol}
	if user != "" || pass != "" {
		u.User = url.UserPassword(user, pass)
	}

	if port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else {
		if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
			u.Host = "[" + host + "]"
		} else {
			u.Host = host
		}
	}

	if vhost != "" {
		// vhost names may contain '/', which must be percent-encoded as
		// %2F in the path. QueryEscape handles that; the ReplaceAll turns
		// its query-style '+' for spaces into path-style %20.
		escapedVHost := url.QueryEscape(vhost)
		escapedVHost = strings.ReplaceAll(escapedVHost, "+", "%20")
		u.Path = "/" + vhost
		u.RawPath = "/" + escapedVHost
	}

	return u.String()
}
