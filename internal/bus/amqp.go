package bus

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const exchangeName = "cowboy.topics"

// AMQPConfig configures the production Bus, grounded on the teacher's
// queue.Config (internal/queue/queue.go).
type AMQPConfig struct {
	URL        string
	Logger     *zap.Logger
	RetryDelay time.Duration
}

// AMQPBus is the RabbitMQ-backed Bus: one topic exchange shared by every
// topic name, one durable queue per Subscribe call.
type AMQPBus struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *zap.Logger
}

func NewAMQPBus(cfg AMQPConfig) (*AMQPBus, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("bus: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("bus: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchangeName, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("bus: declare exchange: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AMQPBus{conn: conn, ch: ch, logger: logger}, nil
}

func (b *AMQPBus) Publish(ctx context.Context, routingKey string, payload []byte) error {
	return b.ch.PublishWithContext(ctx, exchangeName, routingKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         payload,
		Timestamp:    time.Now(),
	})
}

func (b *AMQPBus) Subscribe(ctx context.Context, queueName, pattern string, handler Handler) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("bus: open consumer channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("bus: declare queue %s: %w", queueName, err)
	}
	if err := ch.QueueBind(queueName, pattern, exchangeName, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("bus: bind queue %s to %s: %w", queueName, pattern, err)
	}
	if err := ch.Qos(20, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("bus: qos: %w", err)
	}
	deliveries, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("bus: consume %s: %w", queueName, err)
	}
	go b.loop(ctx, ch, deliveries, handler)
	return nil
}

func (b *AMQPBus) loop(ctx context.Context, ch *amqp.Channel, deliveries <-chan amqp.Delivery, handler Handler) {
	defer ch.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			if err := handler(ctx, d.RoutingKey, d.Body); err != nil {
				b.logger.Error("bus: handler error, dropping message", zap.String("routing_key", d.RoutingKey), zap.Error(err))
				d.Nack(false, false)
				continue
			}
			d.Ack(false)
		}
	}
}

// Conn exposes the underlying connection so a process can build an
// AMQPProvisioner sharing the same broker connection as its Bus.
func (b *AMQPBus) Conn() *amqp.Connection {
	return b.conn
}

func (b *AMQPBus) Close() error {
	if err := b.ch.Close(); err != nil {
		return err
	}
	return b.conn.Close()
}

// AMQPProvisioner declares/deletes the durable per-game queue pair used
// as the game's lifecycle resource (spec §3, §4.B, §6). These queues
// are independent of the wildcard-bound consumer queues Subscribe
// creates; every message published still reaches them too, since they
// bind with the game's exact topic name.
type AMQPProvisioner struct {
	ch           *amqp.Channel
	inputPrefix  string
	outputPrefix string
}

func NewAMQPProvisioner(conn *amqp.Connection, inputPrefix, outputPrefix string) (*AMQPProvisioner, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("bus: provisioner channel: %w", err)
	}
	return &AMQPProvisioner{ch: ch, inputPrefix: inputPrefix, outputPrefix: outputPrefix}, nil
}

func (p *AMQPProvisioner) CreateGameTopics(ctx context.Context, gameID string) (string, string, error) {
	input, output := TopicNames(p.inputPrefix, p.outputPrefix, gameID)
	for _, topic := range []string{input, output} {
		if _, err := p.ch.QueueDeclare(topic, true, false, false, false, nil); err != nil {
			return "", "", fmt.Errorf("bus: declare topic queue %s: %w", topic, err)
		}
		if err := p.ch.QueueBind(topic, topic, exchangeName, false, nil); err != nil {
			return "", "", fmt.Errorf("bus: bind topic queue %s: %w", topic, err)
		}
	}
	return input, output, nil
}

func (p *AMQPProvisioner) DeleteGameTopics(ctx context.Context, gameID string) error {
	input, output := TopicNames(p.inputPrefix, p.outputPrefix, gameID)
	for _, topic := range []string{input, output} {
		if _, err := p.ch.QueueDelete(topic, false, false, false); err != nil {
			return fmt.Errorf("bus: delete topic queue %s: %w", topic, err)
		}
	}
	return nil
}
