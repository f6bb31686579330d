package broker

import "context"

// Delivery is one consumed message. The handler owns the ack decision:
// Ack only after side effects are applied, Nack(requeue=false) after the
// failure has been recorded elsewhere.
type Delivery struct {
	Queue       string
	Body        []byte
	Redelivered bool

	ack  func() error
	nack func(requeue bool) error
}

func (d *Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

func (d *Delivery) Nack(requeue bool) error {
	if d.nack == nil {
		return nil
	}
	return d.nack(requeue)
}

// Handler processes one delivery. It must end every message with exactly
// one of Ack or Nack; returning an error is informational only.
type Handler func(ctx context.Context, d *Delivery) error

type ConsumeOptions struct {
	ManualAck bool
	Prefetch  int
}

// Broker is the transport contract the pipeline is written against.
// Production runs on RabbitMQ; tests run on the in-memory adapter.
type Broker interface {
	Publish(ctx context.Context, queue string, body []byte) error
	Consume(ctx context.Context, queue string, handler Handler, opts ConsumeOptions) error
	Close() error
}
