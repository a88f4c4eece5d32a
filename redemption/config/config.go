package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/LerianStudio/redemption-gateway/redemption"
	constant "github.com/LerianStudio/redemption-gateway/redemption/constants"
)

// Defaults applied before the environment is read.
const (
	DefaultServiceName    = "redemption-gateway"
	DefaultServiceVersion = "0.0.0"
	DefaultEnvName        = "local"
	DefaultServerAddress  = ":3000"
	DefaultAmountScale    = 2
	DefaultMongoDatabase  = "redemption"

	defaultRabbitProtocol       = "amqp"
	defaultRabbitPort           = "5672"
	defaultRabbitUser           = "guest"
	defaultRabbitPass           = "guest"
	defaultRabbitManagementPort = "15672"
)

var (
	// ErrServerAddressInvalid is returned when SERVER_ADDRESS is not host:port.
	ErrServerAddressInvalid = errors.New("config: SERVER_ADDRESS must be a host:port pair")
	// ErrGRPCAddressInvalid is returned when GRPC_ADDRESS is set but not host:port.
	ErrGRPCAddressInvalid = errors.New("config: GRPC_ADDRESS must be a host:port pair when set")
	// ErrPrimaryDSNRequired is returned when DB_PRIMARY_DSN is missing.
	ErrPrimaryDSNRequired = errors.New("config: DB_PRIMARY_DSN is required")
	// ErrDatabaseNameRequired is returned when DB_NAME is missing.
	ErrDatabaseNameRequired = errors.New("config: DB_NAME is required")
	// ErrRedisAddressRequired is returned when REDIS_ADDRESS is missing. Redis
	// backs the role directory and per-holder operation locks.
	ErrRedisAddressRequired = errors.New("config: REDIS_ADDRESS is required")
	// ErrRabbitHostRequired is returned when RABBITMQ_HOST is missing.
	ErrRabbitHostRequired = errors.New("config: RABBITMQ_HOST is required")
	// ErrCustodyURLRequired is returned when CUSTODY_API_URL is missing.
	ErrCustodyURLRequired = errors.New("config: CUSTODY_API_URL is required")
	// ErrAmountScaleInvalid is returned when AMOUNT_SCALE is negative.
	ErrAmountScaleInvalid = errors.New("config: AMOUNT_SCALE cannot be negative")
)

// Config carries every setting the gateway reads at startup. Environment and
// log level strings are validated downstream by the logger constructor, which
// owns the accepted values.
type Config struct {
	ServiceName    string `env:"SERVICE_NAME"`
	ServiceVersion string `env:"VERSION"`
	EnvName        string `env:"ENV_NAME"`
	LogLevel       string `env:"LOG_LEVEL"`

	ServerAddress string `env:"SERVER_ADDRESS"`
	GRPCAddress   string `env:"GRPC_ADDRESS"`

	CustodyAPIURL    string `env:"CUSTODY_API_URL"`
	CustodyAPIKey    string `env:"CUSTODY_API_KEY"`
	CustodyAccountID string `env:"CUSTODY_ACCOUNT_ID"`
	AmountScale      int    `env:"AMOUNT_SCALE"`

	DBPrimaryDSN   string `env:"DB_PRIMARY_DSN"`
	DBReplicaDSN   string `env:"DB_REPLICA_DSN"`
	DBName         string `env:"DB_NAME"`
	DBMaxOpenConns int    `env:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns int    `env:"DB_MAX_IDLE_CONNS"`

	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DB_NAME"`

	RedisAddress  string `env:"REDIS_ADDRESS"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"`

	RabbitProtocol      string `env:"RABBITMQ_PROTOCOL"`
	RabbitHost          string `env:"RABBITMQ_HOST"`
	RabbitPort          string `env:"RABBITMQ_PORT"`
	RabbitUser          string `env:"RABBITMQ_USER"`
	RabbitPass          string `env:"RABBITMQ_PASS"`
	RabbitVHost         string `env:"RABBITMQ_VHOST"`
	RabbitManagementURL string `env:"RABBITMQ_MANAGEMENT_URL"`
	RabbitExchange      string `env:"RABBITMQ_EXCHANGE"`
	RabbitQueue         string `env:"RABBITMQ_QUEUE"`

	DispatchIntervalSeconds int `env:"EVENTS_DISPATCH_INTERVAL_SECONDS"`
	DispatchBatchSize       int `env:"EVENTS_BATCH_SIZE"`

	OtelExporterEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	EnableTelemetry      bool   `env:"ENABLE_TELEMETRY"`
}

// Load reads the environment over the defaults and validates the result.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if err := redemption.SetConfigFromEnvVars(cfg); err != nil {
		return nil, fmt.Errorf("load config from environment: %w", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		ServiceName:      DefaultServiceName,
		ServiceVersion:   DefaultServiceVersion,
		EnvName:          DefaultEnvName,
		ServerAddress:    DefaultServerAddress,
		CustodyAccountID: constant.DefaultCustodyAccountID,
		AmountScale:      DefaultAmountScale,
		MongoDatabase:    DefaultMongoDatabase,
		RabbitProtocol:   defaultRabbitProtocol,
		RabbitPort:       defaultRabbitPort,
		RabbitUser:       defaultRabbitUser,
		RabbitPass:       defaultRabbitPass,
	}
}

// normalize fills values derivable from other settings.
func (c *Config) normalize() {
	if strings.TrimSpace(c.DBReplicaDSN) == "" {
		c.DBReplicaDSN = c.DBPrimaryDSN
	}

	if strings.TrimSpace(c.RabbitManagementURL) == "" && strings.TrimSpace(c.RabbitHost) != "" {
		c.RabbitManagementURL = "http://" + net.JoinHostPort(c.RabbitHost, defaultRabbitManagementPort)
	}
}

// Validate reports every configuration problem at once so a misconfigured
// deployment fails with the full list instead of one error per restart.
func (c *Config) Validate() error {
	var errs []error

	if redemption.ValidateServerAddress(c.ServerAddress) == "" {
		errs = append(errs, fmt.Errorf("%w: %q", ErrServerAddressInvalid, c.ServerAddress))
	}

	if c.GRPCEnabled() && redemption.ValidateServerAddress(c.GRPCAddress) == "" {
		errs = append(errs, fmt.Errorf("%w: %q", ErrGRPCAddressInvalid, c.GRPCAddress))
	}

	if strings.TrimSpace(c.DBPrimaryDSN) == "" {
		errs = append(errs, ErrPrimaryDSNRequired)
	}

	if strings.TrimSpace(c.DBName) == "" {
		errs = append(errs, ErrDatabaseNameRequired)
	}

	if strings.TrimSpace(c.RedisAddress) == "" {
		errs = append(errs, ErrRedisAddressRequired)
	}

	if strings.TrimSpace(c.RabbitHost) == "" {
		errs = append(errs, ErrRabbitHostRequired)
	}

	if strings.TrimSpace(c.CustodyAPIURL) == "" {
		errs = append(errs, ErrCustodyURLRequired)
	}

	if c.AmountScale < 0 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrAmountScaleInvalid, c.AmountScale))
	}

	return errors.Join(errs...)
}

// MetadataEnabled reports whether the mongo metadata store is configured.
func (c *Config) MetadataEnabled() bool {
	return strings.TrimSpace(c.MongoURI) != ""
}

// GRPCEnabled reports whether the optional gRPC listener is configured.
func (c *Config) GRPCEnabled() bool {
	return strings.TrimSpace(c.GRPCAddress) != ""
}
