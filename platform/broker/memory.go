package broker

import (
	"context"
	"sync"

	"github.com/wjixiang/aikb/pkg/logging"
)

// MemoryBroker is a channel-backed Broker for tests and local runs. It
// preserves the manual-ack contract: an unacked delivery whose handler
// nacks with requeue goes back onto the queue.
type MemoryBroker struct {
	mu        sync.Mutex
	queues    map[string]chan []byte
	consumers map[string]bool
	closed    bool

	// Published retains everything ever published per queue so tests can
	// assert on emissions without consuming them.
	published map[string][][]byte
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		queues:    make(map[string]chan []byte),
		consumers: make(map[string]bool),
		published: make(map[string][][]byte),
	}
}

func (b *MemoryBroker) queue(name string) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		q = make(chan []byte, 1024)
		b.queues[name] = q
	}
	return q
}

func (b *MemoryBroker) Publish(ctx context.Context, queue string, body []byte) error {
	cp := make([]byte, len(body))
	copy(cp, body)

	b.mu.Lock()
	b.published[queue] = append(b.published[queue], cp)
	b.mu.Unlock()

	select {
	case b.queue(queue) <- cp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MemoryBroker) Consume(ctx context.Context, queue string, handler Handler, opts ConsumeOptions) error {
	q := b.queue(queue)
	b.mu.Lock()
	b.consumers[queue] = true
	b.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case body, ok := <-q:
				if !ok {
					return
				}
				d := &Delivery{Queue: queue, Body: body}
				if opts.ManualAck {
					d.ack = func() error { return nil }
					d.nack = func(requeue bool) error {
						if requeue {
							return b.Publish(context.Background(), queue, body)
						}
						return nil
					}
				}
				if err := handler(ctx, d); err != nil {
					logging.Logger.Error("handler error", "queue", queue, "error", err)
				}
			}
		}
	}()
	return nil
}

// Published returns copies of every message published to the queue, in
// publish order.
func (b *MemoryBroker) Published(queue string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, len(b.published[queue]))
	copy(out, b.published[queue])
	return out
}

// PublishedCount avoids copying when a test only needs the number.
func (b *MemoryBroker) PublishedCount(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published[queue])
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
