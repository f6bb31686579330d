package broker

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/wjixiang/aikb/pkg/logging"
)

// AMQPBroker adapts RabbitMQ to the Broker contract. Queues are declared
// durable on first use and deliveries are published persistent, matching
// the rest of the system's at-least-once discipline.
type AMQPBroker struct {
	conn *amqp.Connection

	mu       sync.Mutex
	pubCh    *amqp.Channel
	declared map[string]bool
}

func NewAMQPBroker(url string) (*AMQPBroker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("could not connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("could not open channel: %w", err)
	}
	logging.Logger.Info("Connected to RabbitMQ")
	return &AMQPBroker{
		conn:     conn,
		pubCh:    ch,
		declared: make(map[string]bool),
	}, nil
}

func (b *AMQPBroker) declareQueue(ch *amqp.Channel, queue string) error {
	b.mu.Lock()
	seen := b.declared[queue]
	b.mu.Unlock()
	if seen {
		return nil
	}
	_, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	b.mu.Lock()
	b.declared[queue] = true
	b.mu.Unlock()
	return nil
}

func (b *AMQPBroker) Publish(ctx context.Context, queue string, body []byte) error {
	b.mu.Lock()
	ch := b.pubCh
	b.mu.Unlock()

	if err := b.declareQueue(ch, queue); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Consume opens a dedicated channel for the queue and dispatches
// deliveries to the handler until ctx is cancelled.
func (b *AMQPBroker) Consume(ctx context.Context, queue string, handler Handler, opts ConsumeOptions) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("could not open consume channel: %w", err)
	}
	if err := b.declareQueue(ch, queue); err != nil {
		return err
	}
	if opts.Prefetch > 0 {
		if err := ch.Qos(opts.Prefetch, 0, false); err != nil {
			return fmt.Errorf("set qos: %w", err)
		}
	}

	deliveries, err := ch.Consume(queue, "", !opts.ManualAck, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	go func() {
		defer func() {
			if err := ch.Close(); err != nil {
				logging.Logger.Error("fail closing consume channel", "queue", queue, "error", err)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-deliveries:
				if !ok {
					return
				}
				d := &Delivery{
					Queue:       queue,
					Body:        msg.Body,
					Redelivered: msg.Redelivered,
				}
				if opts.ManualAck {
					tag := msg.DeliveryTag
					d.ack = func() error { return ch.Ack(tag, false) }
					d.nack = func(requeue bool) error { return ch.Nack(tag, false, requeue) }
				}
				if err := handler(ctx, d); err != nil {
					logging.Logger.Error("handler error", "queue", queue, "error", err)
				}
			}
		}
	}()
	return nil
}

func (b *AMQPBroker) Close() error {
	return b.conn.Close()
}
