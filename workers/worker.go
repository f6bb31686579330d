package workers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wjixiang/aikb/models"
	"github.com/wjixiang/aikb/pkg/logging"
	"github.com/wjixiang/aikb/platform/broker"
)

func publishJSON(ctx context.Context, b broker.Broker, queue string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Publish(ctx, queue, body)
}

// retryOrFail implements the propagation policy: a transient error with
// budget left republishes the same logical request (fresh messageId,
// retryCount+1) to the worker's own input queue; anything else becomes
// a *.failed event. Either way the caller acks the original afterwards,
// so every message ends in exactly one terminal outcome.
//
// rebuild receives the incremented envelope and returns the full request
// message to republish. Returns true when a retry was scheduled.
func retryOrFail(
	ctx context.Context,
	b broker.Broker,
	inputQueue string,
	env models.Envelope,
	rebuild func(models.Envelope) interface{},
	failQueue string,
	failEventType string,
	partIndex *int,
	cause error,
	started time.Time,
) (bool, error) {
	elapsed := time.Since(started).Milliseconds()

	if models.IsTransient(cause) && env.CanRetry() {
		next := env.Retry()
		if err := publishJSON(ctx, b, inputQueue, rebuild(next)); err != nil {
			logging.Logger.Error("fail republishing retry",
				"error", err, "queue", inputQueue, "itemID", env.ItemID)
			return false, err
		}
		logging.Logger.Info("retry scheduled",
			"queue", inputQueue,
			"itemID", env.ItemID,
			"attempt", next.RetryCount,
			"maxRetries", next.MaxRetries,
			"cause", cause.Error())
		return true, nil
	}

	failEnv := env
	failEnv.EventType = failEventType
	event := models.FailureEvent{
		Envelope:       failEnv,
		PartIndex:      partIndex,
		Error:          cause.Error(),
		CanRetry:       false,
		ProcessingTime: elapsed,
	}
	if err := publishJSON(ctx, b, failQueue, event); err != nil {
		logging.Logger.Error("fail publishing failure event",
			"error", err, "queue", failQueue, "itemID", env.ItemID)
		return false, err
	}
	logging.Logger.Error("message failed permanently",
		"queue", failQueue,
		"itemID", env.ItemID,
		"retryCount", env.RetryCount,
		"cause", cause.Error())
	return false, nil
}

func notify(n ProgressNotifier, event *models.DocumentEvent) {
	if n == nil {
		return
	}
	if err := n.PublishDocumentEvent(event); err != nil {
		logging.Logger.Error("fail publishing progress event",
			"error", err, "docID", event.DocID)
	}
}

// ack/nack helpers keep the handlers readable; broker errors here are
// logged, not propagated, because the message outcome is already decided.
func ackMessage(d *broker.Delivery) {
	if err := d.Ack(); err != nil {
		logging.Logger.Error("fail ack", "error", err, "queue", d.Queue)
	}
}

func nackMessage(d *broker.Delivery) {
	if err := d.Nack(false); err != nil {
		logging.Logger.Error("fail nack", "error", err, "queue", d.Queue)
	}
}

// requeueMessage hands the message back for redelivery. Used when no
// outcome could be recorded because a publish failed: dropping the
// message here would lose it with neither a retry nor a failure event.
func requeueMessage(d *broker.Delivery) {
	if err := d.Nack(true); err != nil {
		logging.Logger.Error("fail nack with requeue", "error", err, "queue", d.Queue)
	}
}
