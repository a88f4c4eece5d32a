package redis

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
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
	// ErrNilClient is returned when a redis client receiver is nil.
	ErrNilClient = errors.New("redis client is nil")
	// ErrInvalidConfig indicates the provided redis configuration is invalid.
	ErrInvalidConfig = errors.New("invalid redis config")

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

// nilClientAssert fires a nil-receiver assertion and returns ErrNilClient.
func nilClientAssert(ctx context.Context, operation string) error {
	a := assert.New(ctx, resolvePackageLogger(), "redis.Client", operation)
	_ = a.Never(ctx, "nil receiver on *redis.Client")

	return ErrNilClient
}

// Config defines Redis client topology, auth, TLS, and connection settings.
type Config struct {
	Topology       Topology
	TLS            *TLSConfig
	Auth           Auth
	Options        ConnectionOptions
	Logger         log.Logger
	MetricsFactory *metrics.MetricsFactory
}

// Topology selects exactly one Redis deployment mode.
type Topology struct {
	Standalone *StandaloneTopology
	Sentinel   *SentinelTopology
	Cluster    *ClusterTopology
}

// StandaloneTopology configures single-node Redis access.
type StandaloneTopology struct {
	Address string
}

// SentinelTopology configures Redis Sentinel access.
type SentinelTopology struct {
	Addresses  []string
	MasterName string
}

// ClusterTopology configures Redis cluster access.
type ClusterTopology struct {
	Addresses []string
}

// TLSConfig configures TLS validation for Redis connections.
type TLSConfig struct {
	CACertBase64 string
	MinVersion   uint16
}

// Auth selects the Redis authentication strategy.
type Auth struct {
	StaticPassword *StaticPasswordAuth
}

// StaticPasswordAuth authenticates using a static password.
type StaticPasswordAuth struct {
	Password string
}

// String returns a redacted representation to prevent accidental credential logging.
func (StaticPasswordAuth) String() string { return "StaticPasswordAuth{Password:REDACTED}" }

// GoString returns a redacted representation for fmt %#v.
func (a StaticPasswordAuth) GoString() string { return a.String() }

// ConnectionOptions configures protocol, timeouts, pools, and retries.
type ConnectionOptions struct {
	DB              int
	Protocol        int
	PoolSize        int
	MinIdleConns    int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	DialTimeout     time.Duration
	PoolTimeout     time.Duration
	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
}

// connectionFailuresMetric defines the counter for redis connection failures.
var connectionFailuresMetric = metrics.Metric{
	Name:        "redis_connection_failures_total",
	Unit:        "1",
	Description: "Total number of redis connection failures",
}

// reconnectionsMetric defines the counter for redis reconnection attempts.
var reconnectionsMetric = metrics.Metric{
	Name:        "redis_reconnections_total",
	Unit:        "1",
	Description: "Total number of redis reconnection attempts",
}

// Client wraps a redis.UniversalClient with lazy reconnection logic.
type Client struct {
	mu             sync.RWMutex
	cfg            Config
	logger         log.Logger
	metricsFactory *metrics.MetricsFactory
	client         redis.UniversalClient
	connected      bool

	// Reconnect rate limiting: enforces exponential backoff between attempts
	// so a down server does not trigger a reconnect storm.
	lastReconnectAttempt time.Time
	reconnectAttempts    int
}

// New validates config, connects to Redis, and returns a ready client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	normalized, err := normalizeConfig(cfg)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:            normalized,
		logger:         normalized.Logger,
		metricsFactory: normalized.MetricsFactory,
	}

	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

// Connect establishes a Redis connection using the current client
// configuration. An existing connection is closed and replaced.
func (c *Client) Connect(ctx context.Context) error {
	if c == nil {
		return nilClientAssert(ctx, "Connect")
	}

	tracer := otel.Tracer("redis")

	ctx, span := tracer.Start(ctx, "redis.connect")
	defer span.End()

	span.SetAttributes(attribute.String(constant.AttrDBSystem, constant.DBSystemRedis))

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.logger == nil {
		c.logger = log.NewNop()
	}

	if err := c.connectLocked(ctx); err != nil {
		c.recordConnectionFailure("connect")

		opentelemetry.HandleSpanError(span, "Failed to connect to redis", err)

		return err
	}

	return nil
}

// reconnectBackoffCap is the maximum delay between reconnect attempts.
const reconnectBackoffCap = 30 * time.Second

// GetClient returns a connected redis client, reconnecting on demand if needed.
func (c *Client) GetClient(ctx context.Context) (redis.UniversalClient, error) {
	if c == nil {
		return nil, nilClientAssert(ctx, "GetClient")
	}

	c.mu.RLock()

	if c.client != nil {
		client := c.client
		c.mu.RUnlock()

		return client, nil
	}

	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.logger == nil {
		c.logger = log.NewNop()
	}

	if c.client != nil {
		return c.client, nil
	}

	// Rate-limit reconnect attempts: if we've failed recently, enforce a
	// minimum delay before the next attempt to avoid hammering the server.
	if c.reconnectAttempts > 0 {
		delay := backoff.ExponentialWithJitter(500*time.Millisecond, c.reconnectAttempts)
		if delay > reconnectBackoffCap {
			delay = reconnectBackoffCap
		}

		if elapsed := time.Since(c.lastReconnectAttempt); elapsed < delay {
			return nil, fmt.Errorf("redis reconnect: rate-limited (next attempt in %s)", delay-elapsed)
		}
	}

	c.lastReconnectAttempt = time.Now()

	// Only trace when actually reconnecting.
	tracer := otel.Tracer("redis")

	ctx, span := tracer.Start(ctx, "redis.reconnect")
	defer span.End()

	span.SetAttributes(attribute.String(constant.AttrDBSystem, constant.DBSystemRedis))

	if err := c.connectLocked(ctx); err != nil {
		c.reconnectAttempts++
		c.recordConnectionFailure("reconnect")
		c.recordReconnection("failure")

		opentelemetry.HandleSpanError(span, "Failed to reconnect redis", err)

		return nil, err
	}

	c.reconnectAttempts = 0
	c.recordReconnection("success")

	return c.client, nil
}

// Ping checks Redis availability using the active connection.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return nilClientAssert(ctx, "Ping")
	}

	client, err := c.GetClient(ctx)
	if err != nil {
		return err
	}

	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	return nil
}

// Close closes the underlying Redis client.
func (c *Client) Close() error {
	if c == nil {
		return nilClientAssert(context.Background(), "Close")
	}

	tracer := otel.Tracer("redis")

	_, span := tracer.Start(context.Background(), "redis.close")
	defer span.End()

	span.SetAttributes(attribute.String(constant.AttrDBSystem, constant.DBSystemRedis))

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.closeClientLocked(); err != nil {
		opentelemetry.HandleSpanError(span, "Failed to close redis client", err)

		return err
	}

	return nil
}

// IsConnected reports whether the underlying client is currently connected.
func (c *Client) IsConnected() (bool, error) {
	if c == nil {
		return false, nilClientAssert(context.Background(), "IsConnected")
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.connected, nil
}

func (c *Client) connectLocked(ctx context.Context) error {
	// Config validation is performed by New/normalizeConfig at construction
	// time. Direct Connect() callers should only use properly-constructed
	// Clients.
	c.logger.Log(ctx, log.LevelInfo, "connecting to Redis/Valkey")

	if c.client != nil {
		if err := c.closeClientLocked(); err != nil {
			c.logger.Log(ctx, log.LevelWarn, "close before connect failed", log.Err(err))
		}
	}

	return c.connectClientLocked(ctx)
}

func (c *Client) connectClientLocked(ctx context.Context) error {
	opts, err := c.buildUniversalOptionsLocked()
	if err != nil {
		return fmt.Errorf("redis connect: build options: %w", err)
	}

	rdb := redis.NewUniversalClient(opts)
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()

		c.logger.Log(ctx, log.LevelError, "redis ping failed", log.Err(err))
		c.connected = false

		return fmt.Errorf("redis connect: ping: %w", err)
	}

	c.client = rdb
	c.connected = true

	switch rdb.(type) {
	case *redis.ClusterClient:
		c.logger.Log(ctx, log.LevelInfo, "connected to Redis/Valkey in cluster mode")
	case *redis.Client:
		c.logger.Log(ctx, log.LevelInfo, "connected to Redis/Valkey in standalone mode")
	case *redis.Ring:
		c.logger.Log(ctx, log.LevelInfo, "connected to Redis/Valkey in ring mode")
	default:
		c.logger.Log(ctx, log.LevelWarn, "connected to Redis/Valkey in unknown mode")
	}

	if c.cfg.TLS == nil {
		c.logger.Log(ctx, log.LevelWarn, "redis connection established without TLS; consider configuring TLS for production use")
	}

	return nil
}

func (c *Client) closeClientLocked() error {
	if c.client == nil {
		return nil
	}

	err := c.client.Close()
	c.client = nil
	c.connected = false

	return err
}

func (c *Client) buildUniversalOptionsLocked() (*redis.UniversalOptions, error) {
	o := c.cfg.Options
	opts := &redis.UniversalOptions{
		DB:              o.DB,
		Protocol:        o.Protocol,
		PoolSize:        o.PoolSize,
		MinIdleConns:    o.MinIdleConns,
		ReadTimeout:     o.ReadTimeout,
		WriteTimeout:    o.WriteTimeout,
		DialTimeout:     o.DialTimeout,
		PoolTimeout:     o.PoolTimeout,
		MaxRetries:      o.MaxRetries,
		MinRetryBackoff: o.MinRetryBackoff,
		MaxRetryBackoff: o.MaxRetryBackoff,
	}

	if c.cfg.Topology.Standalone != nil {
		opts.Addrs = []string{c.cfg.Topology.Standalone.Address}
	}

	if c.cfg.Topology.Sentinel != nil {
		opts.Addrs = c.cfg.Topology.Sentinel.Addresses
		opts.MasterName = c.cfg.Topology.Sentinel.MasterName
	}

	if c.cfg.Topology.Cluster != nil {
		opts.Addrs = c.cfg.Topology.Cluster.Addresses
	}

	// Guard against zero-value Config producing Addrs: nil, which causes
	// go-redis to silently default to localhost:6379. This can happen when
	// GetClient triggers a reconnect on a Client not created via New().
	if len(opts.Addrs) == 0 {
		return nil, configError("no topology configured: at least one address is required")
	}

	if c.cfg.Auth.StaticPassword != nil {
		opts.Password = c.cfg.Auth.StaticPassword.Password
	}

	if c.cfg.TLS != nil {
		tlsCfg, err := buildTLSConfig(*c.cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("redis: TLS config: %w", err)
		}

		opts.TLSConfig = tlsCfg
	}

	return opts, nil
}

func normalizeConfig(cfg Config) (Config, error) {
	normalizeLoggerDefault(&cfg)
	normalizeConnectionOptionsDefaults(&cfg.Options)
	normalizeTLSDefaults(cfg.TLS)

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func normalizeLoggerDefault(cfg *Config) {
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
}

const maxPoolSize = 1000

func normalizeConnectionOptionsDefaults(options *ConnectionOptions) {
	if options.PoolSize == 0 {
		options.PoolSize = 10
	}

	if options.PoolSize > maxPoolSize {
		options.PoolSize = maxPoolSize
	}

	if options.ReadTimeout == 0 {
		options.ReadTimeout = 3 * time.Second
	}

	if options.WriteTimeout == 0 {
		options.WriteTimeout = 3 * time.Second
	}

	if options.DialTimeout == 0 {
		options.DialTimeout = 5 * time.Second
	}

	if options.PoolTimeout == 0 {
		options.PoolTimeout = 2 * time.Second
	}

	if options.MaxRetries == 0 {
		options.MaxRetries = 3
	}

	if options.MinRetryBackoff == 0 {
		options.MinRetryBackoff = 8 * time.Millisecond
	}

	if options.MaxRetryBackoff == 0 {
		options.MaxRetryBackoff = 1 * time.Second
	}
}

func normalizeTLSDefaults(tlsCfg *TLSConfig) {
	if tlsCfg == nil {
		return
	}

	if tlsCfg.MinVersion < tls.VersionTLS12 {
		tlsCfg.MinVersion = tls.VersionTLS12
	}
}

func validateConfig(cfg Config) error {
	if err := validateTopology(cfg.Topology); err != nil {
		return err
	}

	if cfg.TLS != nil && strings.TrimSpace(cfg.TLS.CACertBase64) == "" {
		return configError("TLS CA cert is required when TLS is configured")
	}

	return nil
}

func validateTopology(topology Topology) error {
	count := 0

	if topology.Standalone != nil {
		count++

		if strings.TrimSpace(topology.Standalone.Address) == "" {
			return configError("standalone address is required")
		}
	}

	if topology.Sentinel != nil {
		count++

		if len(topology.Sentinel.Addresses) == 0 {
			return configError("sentinel addresses are required")
		}

		if strings.TrimSpace(topology.Sentinel.MasterName) == "" {
			return configError("sentinel master name is required")
		}

		for _, address := range topology.Sentinel.Addresses {
			if strings.TrimSpace(address) == "" {
				return configError("sentinel addresses cannot be empty")
			}
		}
	}

	if topology.Cluster != nil {
		count++

		if len(topology.Cluster.Addresses) == 0 {
			return configError("cluster addresses are required")
		}

		for _, address := range topology.Cluster.Addresses {
			if strings.TrimSpace(address) == "" {
				return configError("cluster addresses cannot be empty")
			}
		}
	}

	if count != 1 {
		return configError("exactly one topology must be configured")
	}

	return nil
}

func buildTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	caCert, err := base64.StdEncoding.DecodeString(cfg.CACertBase64)
	if err != nil {
		return nil, err
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("adding CA cert failed")
	}

	tlsConfig := &tls.Config{
		RootCAs:    caCertPool,
		MinVersion: tls.VersionTLS12,
	}

	if cfg.MinVersion == tls.VersionTLS13 {
		tlsConfig.MinVersion = tls.VersionTLS13
	}

	return tlsConfig, nil
}

// recordConnectionFailure increments the redis connection failure counter.
// No-op when metricsFactory is nil.
func (c *Client) recordConnectionFailure(operation string) {
	if c.metricsFactory == nil {
		return
	}

	counter, err := c.metricsFactory.Counter(connectionFailuresMetric)
	if err != nil {
		c.logger.Log(context.Background(), log.LevelWarn, "failed to create redis metric counter", log.Err(err))
		return
	}

	err = counter.
		WithLabels(map[string]string{
			"operation": constant.SanitizeMetricLabel(operation),
		}).
		AddOne(context.Background())
	if err != nil {
		c.logger.Log(context.Background(), log.LevelWarn, "failed to record redis metric", log.Err(err))
	}
}

// recordReconnection increments the redis reconnection counter.
// No-op when metricsFactory is nil.
func (c *Client) recordReconnection(result string) {
	if c.metricsFactory == nil {
		return
	}

	counter, err := c.metricsFactory.Counter(reconnectionsMetric)
	if err != nil {
		c.logger.Log(context.Background(), log.LevelWarn, "failed to create redis reconnection metric counter", log.Err(err))
		return
	}

	err = counter.
		WithLabels(map[string]string{
			"result": result,
		}).
		AddOne(context.Background())
	if err != nil {
		c.logger.Log(context.Background(), log.LevelWarn, "failed to record redis reconnection metric", log.Err(err))
	}
}

func configError(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
}
