package workers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wjixiang/aikb/models"
	"github.com/wjixiang/aikb/platform/broker"
)

func TestRetryOrFail(t *testing.T) {
	tests := []struct {
		name       string
		retryCount int
		cause      error
		wantRetry  bool
	}{
		{
			name:       "transient with budget retries",
			retryCount: 0,
			cause:      models.NewTransientError("convert", "timeout", errors.New("504")),
			wantRetry:  true,
		},
		{
			name:       "transient on last attempt retries",
			retryCount: 2,
			cause:      models.NewTransientError("convert", "timeout", nil),
			wantRetry:  true,
		},
		{
			name:       "transient with budget spent fails",
			retryCount: 3,
			cause:      models.NewTransientError("convert", "timeout", nil),
			wantRetry:  false,
		},
		{
			name:       "permanent fails immediately",
			retryCount: 0,
			cause:      models.NewPermanentError("convert", "bad input", nil),
			wantRetry:  false,
		},
		{
			name:       "unclassified error is treated as transient",
			retryCount: 0,
			cause:      errors.New("something odd"),
			wantRetry:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			b := broker.NewMemoryBroker()

			env := models.NewEnvelope(models.EventConversionRequest, "doc-1")
			env.RetryCount = tt.retryCount
			original := models.ConversionRequest{Envelope: env, SourceLocation: "uploads/doc-1.pdf"}

			retried, err := retryOrFail(ctx, b, models.QueueConversionRequest, original.Envelope,
				func(next models.Envelope) interface{} {
					req := original
					req.Envelope = next
					return req
				},
				models.QueueConversionFailed, models.EventConversionFailed, nil,
				tt.cause, time.Now().Add(-25*time.Millisecond))
			require.NoError(t, err)
			assert.Equal(t, tt.wantRetry, retried)

			if tt.wantRetry {
				require.Equal(t, 1, b.PublishedCount(models.QueueConversionRequest))
				assert.Equal(t, 0, b.PublishedCount(models.QueueConversionFailed))

				var republished models.ConversionRequest
				require.NoError(t, json.Unmarshal(b.Published(models.QueueConversionRequest)[0], &republished))
				assert.Equal(t, tt.retryCount+1, republished.RetryCount)
				assert.NotEqual(t, env.MessageID, republished.MessageID, "retry carries a fresh messageId")
				assert.Equal(t, original.SourceLocation, republished.SourceLocation)
				assert.Equal(t, env.EventType, republished.EventType)
			} else {
				require.Equal(t, 0, b.PublishedCount(models.QueueConversionRequest))
				require.Equal(t, 1, b.PublishedCount(models.QueueConversionFailed))

				var event models.FailureEvent
				require.NoError(t, json.Unmarshal(b.Published(models.QueueConversionFailed)[0], &event))
				assert.Equal(t, models.EventConversionFailed, event.EventType)
				assert.Equal(t, "doc-1", event.ItemID)
				assert.False(t, event.CanRetry)
				assert.Contains(t, event.Error, tt.cause.Error())
				assert.GreaterOrEqual(t, event.ProcessingTime, int64(25))
			}
		})
	}
}

func TestRetryOrFail_PartIndexPropagates(t *testing.T) {
	ctx := context.Background()
	b := broker.NewMemoryBroker()

	env := models.NewEnvelope(models.EventPartConversionRequest, "doc-1")
	partIndex := 4
	cause := models.NewPermanentError("convert", "bad part", nil)

	retried, err := retryOrFail(ctx, b, models.QueuePartConversionRequest, env,
		func(next models.Envelope) interface{} { return nil },
		models.QueuePartConversionFailed, models.EventPartConversionFailed, &partIndex,
		cause, time.Now())
	require.NoError(t, err)
	assert.False(t, retried)

	var event models.FailureEvent
	require.NoError(t, json.Unmarshal(b.Published(models.QueuePartConversionFailed)[0], &event))
	require.NotNil(t, event.PartIndex)
	assert.Equal(t, 4, *event.PartIndex)
	assert.Equal(t, models.EventPartConversionFailed, event.EventType)
}
