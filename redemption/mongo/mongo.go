package mongo

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/LerianStudio/redemption-gateway/redemption/assert"
	"github.com/LerianStudio/redemption-gateway/redemption/backoff"
	constant "github.com/LerianStudio/redemption-gateway/redemption/constants"
	"github.com/LerianStudio/redemption-gateway/redemption/log"
	"github.com/LerianStudio/redemption-gateway/redemption/opentelemetry"
	"github.com/LerianStudio/redemption-gateway/redemption/opentelemetry/metrics"
)

const (
	defaultServerSelectionTimeout = 5 * time.Second
	defaultHeartbeatInterval      = 10 * time.Second
	maxMaxPoolSize                = 1000

	// connectBackoffCap is the maximum delay between lazy-connect retries.
	connectBackoffCap = 30 * time.Second
)

var (
	// ErrNilContext is returned when a required context is nil.
	ErrNilContext = errors.New("context cannot be nil")
	// ErrNilClient is returned when a *Client receiver is nil.
	ErrNilClient = errors.New("mongo client is nil")
	// ErrClientClosed is returned when the client is not connected.
	ErrClientClosed = errors.New("mongo client is closed")
	// ErrNilDependency is returned when an Option sets a required dependency to nil.
	ErrNilDependency = errors.New("mongo option set a required dependency to nil")
	// ErrInvalidConfig indicates the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid mongo config")
	// ErrEmptyURI is returned when the Mongo URI is empty.
	ErrEmptyURI = errors.New("mongo uri cannot be empty")
	// ErrEmptyDatabaseName is returned when the database name is empty.
	ErrEmptyDatabaseName = errors.New("database name cannot be empty")
	// ErrEmptyCollectionName is returned when the collection name is empty.
	ErrEmptyCollectionName = errors.New("collection name cannot be empty")
	// ErrEmptyIndexes is returned when no index model is provided.
	ErrEmptyIndexes = errors.New("at least one index must be provided")
	// ErrConnect wraps connection establishment failures.
	ErrConnect = errors.New("mongo connect failed")
	// ErrPing wraps connectivity probe failures.
	ErrPing = errors.New("mongo ping failed")
	// ErrDisconnect wraps disconnection failures.
	ErrDisconnect = errors.New("mongo disconnect failed")
	// ErrCreateIndex wraps index creation failures.
	ErrCreateIndex = errors.New("mongo create index failed")
	// ErrNilMongoClient is returned when the mongo driver returns a nil client.
	ErrNilMongoClient = errors.New("mongo driver returned nil client")
)

// connectionFailuresMetric defines the counter for mongo connection failures.
var connectionFailuresMetric = metrics.Metric{
	Name:        "mongo_connection_failures_total",
	Unit:        "1",
	Description: "Total number of mongo connection failures",
}

// nilClientAssert fires a telemetry assertion for nil-receiver calls and
// returns ErrNilClient.
func nilClientAssert(operation string) error {
	asserter := assert.New(context.Background(), nil, "mongo", operation)
	_ = asserter.Never(context.Background(), "mongo client receiver is nil")

	return ErrNilClient
}

// TLSConfig configures TLS validation for MongoDB connections.
type TLSConfig struct {
	CACertBase64 string
	MinVersion   uint16
}

// Config defines MongoDB connection and pool behavior.
type Config struct {
	URI                    string
	Database               string
	MaxPoolSize            uint64
	ServerSelectionTimeout time.Duration
	HeartbeatInterval      time.Duration
	TLS                    *TLSConfig
	Logger                 log.Logger
	MetricsFactory         *metrics.MetricsFactory
}

func (cfg Config) validate() error {
	if strings.TrimSpace(cfg.URI) == "" {
		return ErrEmptyURI
	}

	if strings.TrimSpace(cfg.Database) == "" {
		return ErrEmptyDatabaseName
	}

	if cfg.TLS != nil && strings.TrimSpace(cfg.TLS.CACertBase64) == "" {
		return configError("TLS CA cert is required when TLS is configured")
	}

	return nil
}

// Option customizes internal client dependencies (primarily for tests).
type Option func(*clientDeps)

// Client wraps a MongoDB client with lifecycle and index helpers.
type Client struct {
	mu             sync.RWMutex
	client         *mongo.Client
	databaseName   string
	cfg            Config
	metricsFactory *metrics.MetricsFactory
	uri            string // private copy for reconnection; cfg.URI cleared after connect
	deps           clientDeps

	// Lazy-connect rate limiting: enforces exponential backoff between
	// reconnect attempts so a down database does not trigger a storm.
	lastConnectAttempt time.Time
	connectAttempts    int
}

type clientDeps struct {
	connect     func(context.Context, *options.ClientOptions) (*mongo.Client, error)
	ping        func(context.Context, *mongo.Client) error
	disconnect  func(context.Context, *mongo.Client) error
	createIndex func(context.Context, *mongo.Client, string, string, mongo.IndexModel) error
}

func defaultDeps() clientDeps {
	return clientDeps{
		connect: func(ctx context.Context, clientOptions *options.ClientOptions) (*mongo.Client, error) {
			return mongo.Connect(ctx, clientOptions)
		},
		ping: func(ctx context.Context, client *mongo.Client) error {
			return client.Ping(ctx, nil)
		},
		disconnect: func(ctx context.Context, client *mongo.Client) error {
			return client.Disconnect(ctx)
		},
		createIndex: func(ctx context.Context, client *mongo.Client, database, collection string, index mongo.IndexModel) error {
			_, err := client.Database(database).Collection(collection).Indexes().CreateOne(ctx, index)

			return err
		},
	}
}

// NewClient validates config, connects to MongoDB, and returns a ready client.
func NewClient(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	cfg = normalizeConfig(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	deps := defaultDeps()

	for _, opt := range opts {
		if opt == nil {
			asserter := assert.New(ctx, cfg.Logger, "mongo", "NewClient")
			_ = asserter.Never(ctx, "nil mongo option received; skipping")

			continue
		}

		opt(&deps)
	}

	if deps.connect == nil || deps.ping == nil || deps.disconnect == nil || deps.createIndex == nil {
		return nil, ErrNilDependency
	}

	client := &Client{
		databaseName:   cfg.Database,
		cfg:            cfg,
		metricsFactory: cfg.MetricsFactory,
		uri:            cfg.URI,
		deps:           deps,
	}

	if err := client.Connect(ctx); err != nil {
		return nil, err
	}

	return client, nil
}

// Connect establishes a MongoDB connection if one is not already open.
func (c *Client) Connect(ctx context.Context) error {
	if c == nil {
		return nilClientAssert("connect")
	}

	if ctx == nil {
		return ErrNilContext
	}

	tracer := otel.Tracer("mongo")

	ctx, span := tracer.Start(ctx, "mongo.connect")
	defer span.End()

	span.SetAttributes(attribute.String(constant.AttrDBSystem, constant.DBSystemMongoDB))

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}

	if err := c.connectLocked(ctx); err != nil {
		c.recordConnectionFailure("connect")

		opentelemetry.HandleSpanError(span, "Failed to connect to mongo", err)

		return err
	}

	return nil
}

// connectLocked performs the actual connection logic. Caller must hold c.mu.
func (c *Client) connectLocked(ctx context.Context) error {
	clientOptions := options.Client().ApplyURI(c.uri)

	serverSelectionTimeout := c.cfg.ServerSelectionTimeout
	if serverSelectionTimeout <= 0 {
		serverSelectionTimeout = defaultServerSelectionTimeout
	}

	heartbeatInterval := c.cfg.HeartbeatInterval
	if heartbeatInterval <= 0 {
		heartbeatInterval = defaultHeartbeatInterval
	}

	clientOptions.SetServerSelectionTimeout(serverSelectionTimeout)
	clientOptions.SetHeartbeatInterval(heartbeatInterval)

	if c.cfg.MaxPoolSize > 0 {
		clientOptions.SetMaxPoolSize(c.cfg.MaxPoolSize)
	}

	if c.cfg.TLS != nil {
		tlsCfg, err := buildTLSConfig(*c.cfg.TLS)
		if err != nil {
			return fmt.Errorf("%w: TLS configuration: %w", ErrConnect, err)
		}

		clientOptions.SetTLSConfig(tlsCfg)
	}

	mongoClient, err := c.deps.connect(ctx, clientOptions)
	if err != nil {
		c.log(ctx, "mongo connect failed", log.Err(err))

		return fmt.Errorf("%w: %w", ErrConnect, err)
	}

	if mongoClient == nil {
		return ErrNilMongoClient
	}

	if err := c.deps.ping(ctx, mongoClient); err != nil {
		if disconnectErr := c.deps.disconnect(ctx, mongoClient); disconnectErr != nil {
			c.log(ctx, "failed to disconnect after ping failure", log.Err(disconnectErr))
		}

		c.log(ctx, "mongo ping failed", log.Err(err))

		return fmt.Errorf("%w: %w", ErrPing, err)
	}

	c.client = mongoClient

	if c.cfg.TLS == nil && !isTLSImplied(c.uri) {
		c.logAtLevel(ctx, log.LevelWarn, "mongo connection established without TLS; "+
			"consider configuring TLS for production use")
	}

	c.cfg.URI = ""

	return nil
}

// Client returns the underlying mongo client if connected.
//
// Note: the returned *mongo.Client may become stale if Close is called
// concurrently from another goroutine. Callers that need atomicity across
// multiple operations should coordinate externally.
func (c *Client) Client(ctx context.Context) (*mongo.Client, error) {
	if c == nil {
		return nil, nilClientAssert("client")
	}

	if ctx == nil {
		return nil, ErrNilContext
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.client == nil {
		return nil, ErrClientClosed
	}

	return c.client, nil
}

// ResolveClient returns a connected mongo client, reconnecting lazily if
// needed. Unlike Client, this method attempts to re-establish a dropped
// connection using double-checked locking with backoff rate limiting.
func (c *Client) ResolveClient(ctx context.Context) (*mongo.Client, error) {
	if c == nil {
		return nil, nilClientAssert("resolve_client")
	}

	if ctx == nil {
		return nil, ErrNilContext
	}

	// Fast path: already connected (read lock only).
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()

	if client != nil {
		return client, nil
	}

	// Slow path: write lock and double-check before connecting.
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	if c.connectAttempts > 0 {
		delay := backoff.ExponentialWithJitter(1*time.Second, c.connectAttempts)
		if delay > connectBackoffCap {
			delay = connectBackoffCap
		}

		if elapsed := time.Since(c.lastConnectAttempt); elapsed < delay {
			return nil, fmt.Errorf("mongo resolve_client: rate-limited (next attempt in %s)", delay-elapsed)
		}
	}

	c.lastConnectAttempt = time.Now()

	tracer := otel.Tracer("mongo")

	ctx, span := tracer.Start(ctx, "mongo.resolve")
	defer span.End()

	span.SetAttributes(attribute.String(constant.AttrDBSystem, constant.DBSystemMongoDB))

	if err := c.connectLocked(ctx); err != nil {
		c.connectAttempts++
		c.recordConnectionFailure("resolve")

		opentelemetry.HandleSpanError(span, "Failed to resolve mongo connection", err)

		return nil, err
	}

	c.connectAttempts = 0

	if c.client == nil {
		err := ErrClientClosed
		opentelemetry.HandleSpanError(span, "Mongo client not connected after resolve", err)

		return nil, err
	}

	return c.client, nil
}

// DatabaseName returns the configured database name.
func (c *Client) DatabaseName() (string, error) {
	if c == nil {
		return "", nilClientAssert("database_name")
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.databaseName, nil
}

// Database returns the configured mongo database handle.
func (c *Client) Database(ctx context.Context) (*mongo.Database, error) {
	client, err := c.Client(ctx)
	if err != nil {
		return nil, err
	}

	databaseName, err := c.DatabaseName()
	if err != nil {
		return nil, err
	}

	return client.Database(databaseName), nil
}

// Ping checks MongoDB availability using the active connection.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return nilClientAssert("ping")
	}

	if ctx == nil {
		return ErrNilContext
	}

	tracer := otel.Tracer("mongo")

	ctx, span := tracer.Start(ctx, "mongo.ping")
	defer span.End()

	span.SetAttributes(attribute.String(constant.AttrDBSystem, constant.DBSystemMongoDB))

	client, err := c.Client(ctx)
	if err != nil {
		opentelemetry.HandleSpanError(span, "Failed to get mongo client for ping", err)

		return err
	}

	if err := c.deps.ping(ctx, client); err != nil {
		pingErr := fmt.Errorf("%w: %w", ErrPing, err)
		opentelemetry.HandleSpanError(span, "Mongo ping failed", pingErr)

		return pingErr
	}

	return nil
}

// Close releases the MongoDB connection. The client is marked closed
// regardless of whether disconnect succeeds, so callers never retry against
// a half-closed client.
func (c *Client) Close(ctx context.Context) error {
	if c == nil {
		return nilClientAssert("close")
	}

	if ctx == nil {
		return ErrNilContext
	}

	tracer := otel.Tracer("mongo")

	ctx, span := tracer.Start(ctx, "mongo.close")
	defer span.End()

	span.SetAttributes(attribute.String(constant.AttrDBSystem, constant.DBSystemMongoDB))

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}

	err := c.deps.disconnect(ctx, c.client)
	c.client = nil

	if err != nil {
		c.log(ctx, "mongo disconnect failed", log.Err(err))

		disconnectErr := fmt.Errorf("%w: %w", ErrDisconnect, err)
		opentelemetry.HandleSpanError(span, "Failed to disconnect from mongo", disconnectErr)

		return disconnectErr
	}

	return nil
}

// EnsureIndexes creates indexes for a collection if they do not already exist.
func (c *Client) EnsureIndexes(ctx context.Context, collection string, indexes ...mongo.IndexModel) error {
	if c == nil {
		return nilClientAssert("ensure_indexes")
	}

	if ctx == nil {
		return ErrNilContext
	}

	if strings.TrimSpace(collection) == "" {
		return ErrEmptyCollectionName
	}

	if len(indexes) == 0 {
		return ErrEmptyIndexes
	}

	tracer := otel.Tracer("mongo")

	ctx, span := tracer.Start(ctx, "mongo.ensure_indexes")
	defer span.End()

	span.SetAttributes(
		attribute.String(constant.AttrDBSystem, constant.DBSystemMongoDB),
		attribute.String(constant.AttrDBMongoDBCollection, collection),
	)

	client, err := c.Client(ctx)
	if err != nil {
		opentelemetry.HandleSpanError(span, "Failed to get mongo client for ensure indexes", err)

		return err
	}

	databaseName, err := c.DatabaseName()
	if err != nil {
		opentelemetry.HandleSpanError(span, "Failed to get database name for ensure indexes", err)

		return err
	}

	var indexErrors []error

	for _, index := range indexes {
		if err := ctx.Err(); err != nil {
			indexErrors = append(indexErrors, fmt.Errorf("%w: context cancelled: %w", ErrCreateIndex, err))

			break
		}

		fields := indexKeysString(index.Keys)

		if fields == "<unknown>" {
			c.logAtLevel(ctx, log.LevelWarn, "unrecognized index key type; expected bson.D or bson.M",
				log.String("collection", collection))
		}

		c.log(ctx, "ensuring mongo index", log.String("collection", collection), log.String("fields", fields))

		if err := c.deps.createIndex(ctx, client, databaseName, collection, index); err != nil {
			c.logAtLevel(ctx, log.LevelWarn, "failed to create mongo index",
				log.String("collection", collection),
				log.String("fields", fields),
				log.Err(err),
			)

			indexErrors = append(indexErrors, fmt.Errorf("%w: collection=%s fields=%s: %w", ErrCreateIndex, collection, fields, err))
		}
	}

	if len(indexErrors) > 0 {
		joinedErr := errors.Join(indexErrors...)
		opentelemetry.HandleSpanError(span, "Failed to ensure some mongo indexes", joinedErr)

		return joinedErr
	}

	return nil
}

func (c *Client) log(ctx context.Context, message string, fields ...log.Field) {
	c.logAtLevel(ctx, log.LevelDebug, message, fields...)
}

func (c *Client) logAtLevel(ctx context.Context, level log.Level, message string, fields ...log.Field) {
	if c == nil || c.cfg.Logger == nil {
		return
	}

	if !c.cfg.Logger.Enabled(level) {
		return
	}

	c.cfg.Logger.Log(ctx, level, message, fields...)
}

// normalizeConfig applies safe defaults and clamps to a Config.
func normalizeConfig(cfg Config) Config {
	if cfg.MaxPoolSize > maxMaxPoolSize {
		cfg.MaxPoolSize = maxMaxPoolSize
	}

	if cfg.TLS != nil {
		tlsCopy := *cfg.TLS
		cfg.TLS = &tlsCopy
	}

	normalizeTLSDefaults(cfg.TLS)

	return cfg
}

// normalizeTLSDefaults enforces a minimum TLS version of 1.2.
func normalizeTLSDefaults(tlsCfg *TLSConfig) {
	if tlsCfg == nil {
		return
	}

	if tlsCfg.MinVersion < tls.VersionTLS12 {
		tlsCfg.MinVersion = tls.VersionTLS12
	}
}

// buildTLSConfig creates a *tls.Config from a TLSConfig. MinVersion must be
// tls.VersionTLS12 or tls.VersionTLS13 when set.
func buildTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	caCert, err := base64.StdEncoding.DecodeString(cfg.CACertBase64)
	if err != nil {
		return nil, fmt.Errorf("decoding CA cert: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("adding CA cert to pool failed: %w", ErrInvalidConfig)
	}

	if cfg.MinVersion != 0 && cfg.MinVersion != tls.VersionTLS12 && cfg.MinVersion != tls.VersionTLS13 {
		return nil, fmt.Errorf("%w: unsupported TLS MinVersion %#x (must be tls.VersionTLS12 or tls.VersionTLS13)", ErrInvalidConfig, cfg.MinVersion)
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

// isTLSImplied returns true if the URI scheme or query parameters indicate TLS.
func isTLSImplied(uri string) bool {
	return strings.HasPrefix(uri, "mongodb+srv://") ||
		strings.Contains(uri, "tls=true") ||
		strings.Contains(uri, "ssl=true")
}

// configError wraps a configuration validation message with ErrInvalidConfig.
func configError(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
}

// recordConnectionFailure increments the mongo connection failure counter.
// No-op when metricsFactory is nil.
func (c *Client) recordConnectionFailure(operation string) {
	if c == nil || c.metricsFactory == nil {
		return
	}

	counter, err := c.metricsFactory.Counter(connectionFailuresMetric)
	if err != nil {
		c.logAtLevel(context.Background(), log.LevelWarn, "failed to create mongo metric counter", log.Err(err))
		return
	}

	err = counter.
		WithLabels(map[string]string{
			"operation": constant.SanitizeMetricLabel(operation),
		}).
		AddOne(context.Background())
	if err != nil {
		c.logAtLevel(context.Background(), log.LevelWarn, "failed to record mongo metric", log.Err(err))
	}
}

// indexKeysString returns a readable representation of the index keys for
// logging.
func indexKeysString(keys any) string {
	switch k := keys.(type) {
	case bson.D:
		parts := make([]string, 0, len(k))
		for _, e := range k {
			parts = append(parts, e.Key)
		}

		return strings.Join(parts, ",")
	case bson.M:
		parts := make([]string, 0, len(k))
		for key := range k {
			parts = append(parts, key)
		}

		sort.Strings(parts)

		return strings.Join(parts, ",")
	default:
		return "<unknown>"
	}
}
