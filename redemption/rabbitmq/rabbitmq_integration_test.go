//go:build integration

package rabbitmq

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	constant "github.com/LerianStudio/redemption-gateway/redemption/constants"
	"github.com/LerianStudio/redemption-gateway/redemption/events"
	"github.com/LerianStudio/redemption-gateway/redemption/log"
)

type rabbitFixture struct {
	ctx  context.Context
	conn *RabbitMQConnection
}

// newRabbitFixture connects to the broker named by REDEMPTION_RABBITMQ_URL.
// The management API base URL must be provided through
// REDEMPTION_RABBITMQ_HEALTH_URL since connecting verifies broker health.
func newRabbitFixture(t *testing.T) *rabbitFixture {
	t.Helper()

	brokerURL := strings.TrimSpace(os.Getenv("REDEMPTION_RABBITMQ_URL"))
	if brokerURL == "" {
		t.Skip("REDEMPTION_RABBITMQ_URL not set")
	}

	healthURL := strings.TrimSpace(os.Getenv("REDEMPTION_RABBITMQ_HEALTH_URL"))
	if healthURL == "" {
		t.Skip("REDEMPTION_RABBITMQ_HEALTH_URL not set")
	}

	user := strings.TrimSpace(os.Getenv("REDEMPTION_RABBITMQ_USER"))
	if user == "" {
		user = "guest"
	}

	pass := strings.TrimSpace(os.Getenv("REDEMPTION_RABBITMQ_PASS"))
	if pass == "" {
		pass = "guest"
	}

	ctx := context.Background()

	conn := &RabbitMQConnection{
		ConnectionStringSource: brokerURL,
		HealthCheckURL:         healthURL,
		User:                   user,
		Pass:                   pass,
		Logger:                 &log.NopLogger{},
	}

	require.NoError(t, conn.Connect(ctx))

	t.Cleanup(func() {
		if err := conn.Close(context.Background()); err != nil {
			t.Errorf("cleanup: connection close: %v", err)
		}
	})

	return &rabbitFixture{ctx: ctx, conn: conn}
}

// declareScratchTopology declares an isolated event topology for one test
// and tears it down afterwards.
func declareScratchTopology(t *testing.T, fx *rabbitFixture) (exchange, queue, dlx, dlq string) {
	t.Helper()

	suffix := uuid.NewString()[:8]
	exchange = "redemption.events.it-" + suffix
	queue = "redemption.events.it-" + suffix
	dlx = exchange + ".dlx"
	dlq = queue + ".dlq"

	ch, err := fx.conn.GetChannel(fx.ctx)
	require.NoError(t, err)

	require.NoError(t, DeclareEventTopology(ch,
		WithEventExchange(exchange),
		WithEventQueue(queue),
		WithDLXExchange(dlx),
		WithDLQName(dlq),
	))

	t.Cleanup(func() {
		cleanupCh, cleanupErr := fx.conn.GetChannel(context.Background())
		if cleanupErr != nil {
			return
		}

		_, _ = cleanupCh.QueueDelete(queue, false, false, false)
		_, _ = cleanupCh.QueueDelete(dlq, false, false, false)
		_ = cleanupCh.ExchangeDelete(exchange, false, false)
		_ = cleanupCh.ExchangeDelete(dlx, false, false)
	})

	return exchange, queue, dlx, dlq
}

func receiveDelivery(t *testing.T, deliveries <-chan amqp.Delivery) amqp.Delivery {
	t.Helper()

	select {
	case delivery, ok := <-deliveries:
		require.True(t, ok, "delivery channel closed")

		return delivery
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for delivery")

		return amqp.Delivery{}
	}
}

func TestRabbitMQ_IntegrationHealthCheck(t *testing.T) {
	fx := newRabbitFixture(t)

	healthy, err := fx.conn.HealthCheck(fx.ctx)

	require.NoError(t, err)
	assert.True(t, healthy)

	connected, err := fx.conn.IsConnected()
	require.NoError(t, err)
	assert.True(t, connected)
}

func TestRabbitMQ_IntegrationPublishConsume(t *testing.T) {
	fx := newRabbitFixture(t)
	exchange, queue, _, _ := declareScratchTopology(t, fx)

	publishCh, err := fx.conn.NewChannel(fx.ctx)
	require.NoError(t, err)

	publisher, err := NewConfirmablePublisherFromChannel(publishCh)
	require.NoError(t, err)

	t.Cleanup(func() { _ = publisher.Close() })

	ep, err := NewEventPublisher(publisher, WithPublishExchange(exchange))
	require.NoError(t, err)

	payload := []byte(`{"holder_id":"hld-it","amount":"25"}`)

	event, err := events.NewOperationEvent(fx.ctx, constant.EventTypeDeposit, "hld-it", payload)
	require.NoError(t, err)

	require.NoError(t, ep.PublishEvent(fx.ctx, event))

	consumeCh, err := fx.conn.GetChannel(fx.ctx)
	require.NoError(t, err)

	deliveries, err := consumeCh.Consume(queue, "", true, false, false, false, nil)
	require.NoError(t, err)

	delivery := receiveDelivery(t, deliveries)

	assert.Equal(t, constant.EventTypeDeposit, delivery.RoutingKey)
	assert.Equal(t, exchange, delivery.Exchange)
	assert.Equal(t, payload, delivery.Body)
	assert.Equal(t, event.ID.String(), delivery.MessageId)
	assert.Equal(t, constant.EventTypeDeposit, delivery.Type)
	assert.Equal(t, DefaultEventAppID, delivery.AppId)
	assert.Equal(t, constant.EventTypeDeposit, delivery.Headers["event_type"])
	assert.Equal(t, "hld-it", delivery.Headers["holder_id"])
}

func TestRabbitMQ_IntegrationDeadLetter(t *testing.T) {
	fx := newRabbitFixture(t)
	exchange, queue, _, dlq := declareScratchTopology(t, fx)

	publishCh, err := fx.conn.NewChannel(fx.ctx)
	require.NoError(t, err)

	publisher, err := NewConfirmablePublisherFromChannel(publishCh)
	require.NoError(t, err)

	t.Cleanup(func() { _ = publisher.Close() })

	ep, err := NewEventPublisher(publisher, WithPublishExchange(exchange))
	require.NoError(t, err)

	event, err := events.NewOperationEvent(fx.ctx, constant.EventTypeClaim, "hld-dl", []byte(`{"amount":"7"}`))
	require.NoError(t, err)

	require.NoError(t, ep.PublishEvent(fx.ctx, event))

	consumeCh, err := fx.conn.GetChannel(fx.ctx)
	require.NoError(t, err)

	deliveries, err := consumeCh.Consume(queue, "", false, false, false, false, nil)
	require.NoError(t, err)

	delivery := receiveDelivery(t, deliveries)
	require.NoError(t, delivery.Nack(false, false))

	// The rejected message must surface on the dead-letter queue.
	dlqDeliveries, err := consumeCh.Consume(dlq, "", true, false, false, false, nil)
	require.NoError(t, err)

	dead := receiveDelivery(t, dlqDeliveries)

	assert.Equal(t, constant.EventTypeClaim, dead.RoutingKey)
	assert.Equal(t, event.ID.String(), dead.MessageId)
}
