// Command gateway runs the redemption gateway service: the HTTP API, an
// optional gRPC health listener, and the outbox event dispatcher, wired
// over Postgres, Redis, RabbitMQ, the custody provider, and optionally
// MongoDB for operation metadata.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/LerianStudio/redemption-gateway/redemption"
	"github.com/LerianStudio/redemption-gateway/redemption/config"
	"github.com/LerianStudio/redemption-gateway/redemption/custody"
	"github.com/LerianStudio/redemption-gateway/redemption/events"
	"github.com/LerianStudio/redemption-gateway/redemption/log"
	"github.com/LerianStudio/redemption-gateway/redemption/mongo"
	gatewayhttp "github.com/LerianStudio/redemption-gateway/redemption/net/http"
	"github.com/LerianStudio/redemption-gateway/redemption/opentelemetry"
	"github.com/LerianStudio/redemption-gateway/redemption/postgres"
	"github.com/LerianStudio/redemption-gateway/redemption/rabbitmq"
	"github.com/LerianStudio/redemption-gateway/redemption/redis"
	"github.com/LerianStudio/redemption-gateway/redemption/server"
	"github.com/LerianStudio/redemption-gateway/redemption/service"
	"github.com/LerianStudio/redemption-gateway/redemption/zap"
)

const drainTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// serverApp runs the server manager and releases the dispatcher once the
// servers stop, so a single shutdown signal terminates every launcher app.
type serverApp struct {
	manager    *server.ServerManager
	dispatcher *events.Dispatcher
}

func (a *serverApp) Run(launcher *redemption.Launcher) error {
	defer a.dispatcher.Stop()

	return a.manager.Run(launcher)
}

func run() error {
	redemption.InitLocalEnvConfig()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := zap.New(zap.Config{
		Environment:     zap.Environment(cfg.EnvName),
		Level:           cfg.LogLevel,
		OTelLibraryName: cfg.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	defer func() {
		_ = logger.Sync(context.Background())
	}()

	telemetry, err := opentelemetry.NewTelemetry(opentelemetry.TelemetryConfig{
		LibraryName:               cfg.ServiceName,
		ServiceName:               cfg.ServiceName,
		ServiceVersion:            cfg.ServiceVersion,
		DeploymentEnv:             cfg.EnvName,
		CollectorExporterEndpoint: cfg.OtelExporterEndpoint,
		EnableTelemetry:           cfg.EnableTelemetry,
		Logger:                    logger,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	telemetry.ApplyGlobals()
	defer telemetry.ShutdownTelemetry()

	redis.SetPackageLogger(logger)
	rabbitmq.SetPackageLogger(logger)

	ctx := context.Background()

	pg := &postgres.PostgresConnection{
		ConnectionStringPrimary: cfg.DBPrimaryDSN,
		ConnectionStringReplica: cfg.DBReplicaDSN,
		DatabaseName:            cfg.DBName,
		Logger:                  logger,
		MaxOpenConnections:      cfg.DBMaxOpenConns,
		MaxIdleConnections:      cfg.DBMaxIdleConns,
	}
	if err := pg.Connect(ctx); err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}

	defer func() {
		_ = pg.Close()
	}()

	accounts, err := postgres.NewAccountPostgresRepository(pg)
	if err != nil {
		return fmt.Errorf("init account repository: %w", err)
	}

	system, err := postgres.NewSystemPostgresRepository(pg)
	if err != nil {
		return fmt.Errorf("init system repository: %w", err)
	}

	outbox, err := postgres.NewEventPostgresRepository(pg)
	if err != nil {
		return fmt.Errorf("init event repository: %w", err)
	}

	redisCfg := redis.Config{
		Topology:       redis.Topology{Standalone: &redis.StandaloneTopology{Address: cfg.RedisAddress}},
		Options:        redis.ConnectionOptions{DB: cfg.RedisDB},
		Logger:         logger,
		MetricsFactory: telemetry.MetricsFactory,
	}
	if cfg.RedisPassword != "" {
		redisCfg.Auth = redis.Auth{StaticPassword: &redis.StaticPasswordAuth{Password: cfg.RedisPassword}}
	}

	redisClient, err := redis.New(ctx, redisCfg)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}

	defer func() {
		_ = redisClient.Close()
	}()

	locks, err := redis.NewRedisLockManager(redisClient)
	if err != nil {
		return fmt.Errorf("init lock manager: %w", err)
	}

	locker, err := redis.NewOperationLocker(locks)
	if err != nil {
		return fmt.Errorf("init operation locker: %w", err)
	}

	roles, err := redis.NewRoleDirectory(redisClient)
	if err != nil {
		return fmt.Errorf("init role directory: %w", err)
	}

	custodyClient, err := custody.New(custody.Config{
		BaseURL: cfg.CustodyAPIURL,
		APIKey:  cfg.CustodyAPIKey,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("init custody client: %w", err)
	}

	svcOpts := []service.Option{
		service.WithEventRepository(outbox),
		service.WithOperationLocker(locker),
	}
	if cfg.CustodyAccountID != "" {
		svcOpts = append(svcOpts, service.WithCustodyAccount(cfg.CustodyAccountID))
	}

	var mongoClient *mongo.Client

	if cfg.MetadataEnabled() {
		mongoClient, err = mongo.NewClient(ctx, mongo.Config{
			URI:            cfg.MongoURI,
			Database:       cfg.MongoDatabase,
			Logger:         logger,
			MetricsFactory: telemetry.MetricsFactory,
		})
		if err != nil {
			return fmt.Errorf("connect mongo: %w", err)
		}

		defer func() {
			_ = mongoClient.Close(context.Background())
		}()

		metadata, err := mongo.NewMetadataMongoRepository(mongoClient)
		if err != nil {
			return fmt.Errorf("init metadata repository: %w", err)
		}

		svcOpts = append(svcOpts, service.WithMetadataRepository(metadata))
	}

	svc, err := service.New(accounts, system, custodyClient, roles, svcOpts...)
	if err != nil {
		return fmt.Errorf("init service: %w", err)
	}

	rabbitConn := &rabbitmq.RabbitMQConnection{
		ConnectionStringSource: rabbitmq.BuildRabbitMQConnectionString(
			cfg.RabbitProtocol, cfg.RabbitUser, cfg.RabbitPass,
			cfg.RabbitHost, cfg.RabbitPort, cfg.RabbitVHost,
		),
		HealthCheckURL: cfg.RabbitManagementURL,
		User:           cfg.RabbitUser,
		Pass:           cfg.RabbitPass,
		Logger:         logger,
		MetricsFactory: telemetry.MetricsFactory,
	}
	if err := rabbitConn.Connect(ctx); err != nil {
		return fmt.Errorf("connect rabbitmq: %w", err)
	}

	defer func() {
		_ = rabbitConn.Close(context.Background())
	}()

	channel, err := rabbitConn.GetChannel(ctx)
	if err != nil {
		return fmt.Errorf("open rabbitmq channel: %w", err)
	}

	if err := rabbitmq.DeclareEventTopology(channel,
		rabbitmq.WithEventExchange(cfg.RabbitExchange),
		rabbitmq.WithEventQueue(cfg.RabbitQueue),
	); err != nil {
		return fmt.Errorf("declare event topology: %w", err)
	}

	publisher, err := rabbitmq.NewConfirmablePublisher(rabbitConn,
		rabbitmq.WithLogger(logger),
		rabbitmq.WithAutoRecovery(rabbitmq.ChannelProviderFromConnection(rabbitConn)),
	)
	if err != nil {
		return fmt.Errorf("init publisher: %w", err)
	}

	defer func() {
		_ = publisher.Close()
	}()

	eventPublisher, err := rabbitmq.NewEventPublisher(publisher,
		rabbitmq.WithEventLogger(logger),
		rabbitmq.WithPublishExchange(cfg.RabbitExchange),
		rabbitmq.WithAppID(cfg.ServiceName),
	)
	if err != nil {
		return fmt.Errorf("init event publisher: %w", err)
	}

	registry := events.NewHandlerRegistry()
	if err := eventPublisher.RegisterAllEventTypes(registry); err != nil {
		return fmt.Errorf("register event handlers: %w", err)
	}

	tracer, err := telemetry.Tracer(cfg.ServiceName)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}

	dispatcherOpts := []events.DispatcherOption{
		events.WithMeterProvider(telemetry.MeterProvider),
	}
	if cfg.DispatchIntervalSeconds > 0 {
		dispatcherOpts = append(dispatcherOpts,
			events.WithDispatchInterval(time.Duration(cfg.DispatchIntervalSeconds)*time.Second))
	}

	if cfg.DispatchBatchSize > 0 {
		dispatcherOpts = append(dispatcherOpts, events.WithBatchSize(cfg.DispatchBatchSize))
	}

	dispatcher, err := events.NewDispatcher(outbox, registry, logger, tracer, dispatcherOpts...)
	if err != nil {
		return fmt.Errorf("init dispatcher: %w", err)
	}

	healthChecks := []gatewayhttp.DependencyCheck{
		{Name: "postgres", Check: func(ctx context.Context) error {
			db, err := pg.GetDB(ctx)
			if err != nil {
				return err
			}

			return db.PingContext(ctx)
		}},
		{Name: "redis", Check: redisClient.Ping},
		{Name: "rabbitmq", Check: func(ctx context.Context) error {
			_, err := rabbitConn.HealthCheck(ctx)

			return err
		}},
	}
	if mongoClient != nil {
		healthChecks = append(healthChecks, gatewayhttp.DependencyCheck{Name: "mongodb", Check: mongoClient.Ping})
	}

	app, err := gatewayhttp.NewRouter(gatewayhttp.RouterConfig{
		ServiceName:  cfg.ServiceName,
		Service:      svc,
		Logger:       logger,
		Telemetry:    telemetry,
		AmountScale:  int32(cfg.AmountScale),
		HealthChecks: healthChecks,
	})
	if err != nil {
		return fmt.Errorf("init router: %w", err)
	}

	manager := server.NewServerManager(telemetry, logger).
		WithHTTPServer(app, cfg.ServerAddress)

	if cfg.GRPCEnabled() {
		grpcServer := grpc.NewServer()
		healthServer := health.NewServer()
		healthpb.RegisterHealthServer(grpcServer, healthServer)
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		reflection.Register(grpcServer)

		manager = manager.WithGRPCServer(grpcServer, cfg.GRPCAddress)
	}

	logger.Log(ctx, log.LevelInfo, "starting redemption gateway",
		log.String("version", cfg.ServiceVersion),
		log.String("env", cfg.EnvName),
	)

	launcher := redemption.NewLauncher(
		redemption.WithLogger(logger),
		redemption.RunApp("servers", &serverApp{manager: manager, dispatcher: dispatcher}),
		redemption.RunApp("outbox dispatcher", dispatcher),
	)

	if err := launcher.RunWithError(); err != nil {
		return err
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	if err := dispatcher.Shutdown(drainCtx); err != nil {
		logger.Log(drainCtx, log.LevelWarn, "dispatcher drain", log.Err(err))
	}

	return nil
}
