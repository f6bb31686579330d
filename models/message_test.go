package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	env := NewEnvelope(EventAnalysisRequest, "doc-1")

	assert.NotEmpty(t, env.MessageID)
	assert.Equal(t, EventAnalysisRequest, env.EventType)
	assert.Equal(t, "doc-1", env.ItemID)
	assert.Equal(t, 0, env.RetryCount)
	assert.Equal(t, DefaultMaxRetries, env.MaxRetries)
	assert.Equal(t, PriorityNormal, env.Priority)
	assert.WithinDuration(t, time.Now(), env.Timestamp, time.Second)

	other := NewEnvelope(EventAnalysisRequest, "doc-1")
	assert.NotEqual(t, env.MessageID, other.MessageID)
}

func TestEnvelope_Retry(t *testing.T) {
	env := NewEnvelope(EventConversionRequest, "doc-1")

	next := env.Retry()
	assert.NotEqual(t, env.MessageID, next.MessageID, "a retry is a new message")
	assert.Equal(t, env.ItemID, next.ItemID)
	assert.Equal(t, env.EventType, next.EventType)
	assert.Equal(t, 1, next.RetryCount)
	assert.Equal(t, 0, env.RetryCount, "original envelope is unchanged")
}

func TestEnvelope_CanRetry(t *testing.T) {
	tests := []struct {
		name       string
		retryCount int
		maxRetries int
		want       bool
	}{
		{name: "fresh message", retryCount: 0, maxRetries: 3, want: true},
		{name: "last attempt available", retryCount: 2, maxRetries: 3, want: true},
		{name: "budget spent", retryCount: 3, maxRetries: 3, want: false},
		{name: "over budget", retryCount: 4, maxRetries: 3, want: false},
		{name: "no retries allowed", retryCount: 0, maxRetries: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := Envelope{RetryCount: tt.retryCount, MaxRetries: tt.maxRetries}
			assert.Equal(t, tt.want, env.CanRetry())
		})
	}
}

func TestEnvelope_RetryExhaustion(t *testing.T) {
	env := NewEnvelope(EventStorageRequest, "doc-1")
	attempts := 0
	for env.CanRetry() {
		env = env.Retry()
		attempts++
	}
	assert.Equal(t, DefaultMaxRetries, attempts)
}

func TestProcessingError(t *testing.T) {
	cause := errors.New("connection refused")

	transient := NewTransientError("convert", "call converter", cause)
	require.True(t, IsTransient(transient))
	assert.Contains(t, transient.Error(), "convert")
	assert.Contains(t, transient.Error(), "connection refused")
	assert.ErrorIs(t, transient, cause)

	permanent := NewPermanentError("analyze", "unreadable pdf", nil)
	assert.False(t, IsTransient(permanent))
	assert.Equal(t, "analyze: unreadable pdf", permanent.Error())

	// wrapped classification survives
	wrapped := NewTransientError("store", "save markdown", permanent)
	assert.True(t, wrapped.Transient)

	assert.True(t, IsTransient(errors.New("who knows")), "unclassified errors default to transient")
}

func TestProcessingStatus(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusProcessing.Terminal())

	assert.True(t, StatusPending.Valid())
	assert.False(t, ProcessingStatus("unknown").Valid())
}
