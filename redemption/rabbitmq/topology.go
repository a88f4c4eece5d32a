package rabbitmq

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Default names for the operation event topology. Routing keys are the event
// type strings ("redemption.deposit", "system.pause_changed", ...), so a
// topic exchange with a catch-all binding delivers every event to the main
// queue while still letting other consumers bind selectively.
const (
	DefaultEventExchange = "redemption.events"
	DefaultEventQueue    = "redemption.events"
	DefaultDLXExchange   = "redemption.events.dlx"
	DefaultDLQ           = "redemption.events.dlq"

	defaultExchangeType = "topic"
	defaultBindingKey   = "#"
)

// AMQPChannel defines the channel operations required for topology setup.
// Satisfied by *amqp.Channel.
type AMQPChannel interface {
	ExchangeDeclare(
		name, kind string,
		durable, autoDelete, internal, noWait bool,
		args amqp.Table,
	) error
	QueueDeclare(
		name string,
		durable, autoDelete, exclusive, noWait bool,
		args amqp.Table,
	) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// TopologyConfig names the exchanges and queues for operation events and
// their dead-letter path.
type TopologyConfig struct {
	Exchange     string
	ExchangeType string
	Queue        string
	BindingKeys  []string

	DLXExchange string
	DLQ         string
	// DLQMessageTTL sets x-message-ttl on the dead-letter queue.
	DLQMessageTTL time.Duration
	// DLQMaxLength sets x-max-length on the dead-letter queue.
	DLQMaxLength int64
}

// TopologyOption configures topology declaration.
type TopologyOption func(*TopologyConfig)

// WithEventExchange overrides the operation event exchange name.
func WithEventExchange(name string) TopologyOption {
	return func(cfg *TopologyConfig) {
		if name != "" {
			cfg.Exchange = name
		}
	}
}

// WithEventQueue overrides the operation event queue name.
func WithEventQueue(name string) TopologyOption {
	return func(cfg *TopologyConfig) {
		if name != "" {
			cfg.Queue = name
		}
	}
}

// WithExchangeType overrides the exchange type for both exchanges.
func WithExchangeType(exchangeType string) TopologyOption {
	return func(cfg *TopologyConfig) {
		if exchangeType != "" {
			cfg.ExchangeType = exchangeType
		}
	}
}

// WithBindingKeys overrides the keys binding the event queue to the
// exchange. Empty keys are dropped.
func WithBindingKeys(keys ...string) TopologyOption {
	return func(cfg *TopologyConfig) {
		filtered := make([]string, 0, len(keys))

		for _, key := range keys {
			if key != "" {
				filtered = append(filtered, key)
			}
		}

		if len(filtered) > 0 {
			cfg.BindingKeys = filtered
		}
	}
}

// WithDLXExchange overrides the dead-letter exchange name.
func WithDLXExchange(name string) TopologyOption {
	return func(cfg *TopologyConfig) {
		if name != "" {
			cfg.DLXExchange = name
		}
	}
}

// WithDLQName overrides the dead-letter queue name.
func WithDLQName(name string) TopologyOption {
	return func(cfg *TopologyConfig) {
		if name != "" {
			cfg.DLQ = name
		}
	}
}

// WithDLQMessageTTL sets x-message-ttl for the dead-letter queue.
func WithDLQMessageTTL(ttl time.Duration) TopologyOption {
	return func(cfg *TopologyConfig) {
		if ttl > 0 {
			cfg.DLQMessageTTL = ttl
		}
	}
}

// WithDLQMaxLength sets x-max-length for the dead-letter queue.
func WithDLQMaxLength(maxLength int64) TopologyOption {
	return func(cfg *TopologyConfig) {
		if maxLength > 0 {
			cfg.DLQMaxLength = maxLength
		}
	}
}

func defaultTopologyConfig() TopologyConfig {
	return TopologyConfig{
		Exchange:     DefaultEventExchange,
		ExchangeType: defaultExchangeType,
		Queue:        DefaultEventQueue,
		BindingKeys:  []string{defaultBindingKey},
		DLXExchange:  DefaultDLXExchange,
		DLQ:          DefaultDLQ,
	}
}

// dlqDeclareArgs builds the x-arguments for the dead-letter queue.
func (cfg TopologyConfig) dlqDeclareArgs() amqp.Table {
	args := make(amqp.Table)

	if cfg.DLQMessageTTL > 0 {
		ttlMillis := cfg.DLQMessageTTL.Milliseconds()
		if ttlMillis <= 0 {
			ttlMillis = 1
		}

		args["x-message-ttl"] = ttlMillis
	}

	if cfg.DLQMaxLength > 0 {
		args["x-max-length"] = cfg.DLQMaxLength
	}

	if len(args) == 0 {
		return nil
	}

	return args
}

// deadLetterArgs builds the x-arguments routing rejected event messages to
// the dead-letter exchange.
func deadLetterArgs(dlxExchange string) amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange": dlxExchange,
	}
}

// DeclareEventTopology declares the operation event exchange and queue plus
// the dead-letter pair, all durable. Rejected or expired event messages are
// routed to the dead-letter queue for inspection and replay. Declarations
// are idempotent as long as the parameters match what the broker holds.
func DeclareEventTopology(ch AMQPChannel, opts ...TopologyOption) error {
	if isNilInterface(ch) {
		return fmt.Errorf("declare event topology: %w", ErrChannelRequired)
	}

	cfg := defaultTopologyConfig()

	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	if err := ch.ExchangeDeclare(
		cfg.Exchange,
		cfg.ExchangeType,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("declare event exchange: %w", err)
	}

	if err := ch.ExchangeDeclare(
		cfg.DLXExchange,
		cfg.ExchangeType,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("declare dlx exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(
		cfg.Queue,
		true,
		false,
		false,
		false,
		deadLetterArgs(cfg.DLXExchange),
	); err != nil {
		return fmt.Errorf("declare event queue: %w", err)
	}

	for _, key := range cfg.BindingKeys {
		if err := ch.QueueBind(
			cfg.Queue,
			key,
			cfg.Exchange,
			false,
			nil,
		); err != nil {
			return fmt.Errorf("bind event queue with key %q: %w", key, err)
		}
	}

	if _, err := ch.QueueDeclare(
		cfg.DLQ,
		true,
		false,
		false,
		false,
		cfg.dlqDeclareArgs(),
	); err != nil {
		return fmt.Errorf("declare dlq queue: %w", err)
	}

	if err := ch.QueueBind(
		cfg.DLQ,
		defaultBindingKey,
		cfg.DLXExchange,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("bind dlq to dlx: %w", err)
	}

	return nil
}
