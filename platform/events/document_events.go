package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wjixiang/aikb/models"
	"github.com/wjixiang/aikb/pkg/logging"
)

const (
	DocumentEventChannel = "document:events"
)

// EventPublisher fans document progress out over redis pub/sub for
// observers outside the pipeline (UI, websockets). Best-effort: a missed
// event never affects pipeline state.
type EventPublisher struct {
	redisClient *redis.Client
}

func NewEventPublisher(redisClient *redis.Client) *EventPublisher {
	return &EventPublisher{redisClient: redisClient}
}

func (p *EventPublisher) PublishDocumentEvent(event *models.DocumentEvent) error {
	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		logging.Logger.Error("fail PublishDocumentEvent", "error", err)
		return err
	}
	ctx := context.Background()
	if err := p.redisClient.Publish(ctx, DocumentEventChannel, string(data)).Err(); err != nil {
		logging.Logger.Error("fail PublishDocumentEvent", "error", err)
		return err
	}
	return nil
}

func (p *EventPublisher) SubscribeDocumentEvents(ctx context.Context) (<-chan *models.DocumentEvent, error) {
	pubsub := p.redisClient.Subscribe(ctx, DocumentEventChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		logging.Logger.Error("fail SubscribeDocumentEvents", "error", err)
		return nil, err
	}
	ch := make(chan *models.DocumentEvent, 100)

	go func() {
		defer close(ch)
		defer func(pubsub *redis.PubSub) {
			if err := pubsub.Close(); err != nil {
				logging.Logger.Error("fail SubscribeDocumentEvents", "error", err)
			}
		}(pubsub)

		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-pubsub.Channel():
				var event models.DocumentEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					logging.Logger.Error("Failed to unmarshal event", "error", err)
					continue
				}

				select {
				case ch <- &event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}
