package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/pkg/constants"
	"github.com/turtacn/realmkeys/pkg/logger"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func testEvent(eventType constants.KeyEventType) models.KeyLifecycleEvent {
	return models.NewKeyLifecycleEvent(eventType, &models.KeyRecord{
		ID:         "k1",
		TenantID:   "test",
		ProviderID: constants.ProviderRSAGenerated,
		Algorithm:  constants.AlgorithmRS256,
		Priority:   100,
	})
}

func TestKafkaProducer_LogEvent(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaProducer(w, "s3cret", logger.NewNoopLogger())

	event := testEvent(constants.KeyEventCreated)
	require.NoError(t, p.LogEvent(context.Background(), event))
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, "test", string(msg.Key))
	var decoded models.KeyLifecycleEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.EventID, decoded.EventID)
	assert.Equal(t, constants.KeyEventCreated, decoded.EventType)

	require.Len(t, msg.Headers, 1)
	assert.Equal(t, SignatureHeader, msg.Headers[0].Key)
	assert.True(t, VerifyPayload(msg.Value, string(msg.Headers[0].Value), "s3cret"))
	assert.False(t, VerifyPayload(msg.Value, string(msg.Headers[0].Value), "other"))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaProducer_Unsigned(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaProducer(w, "", logger.NewNoopLogger())
	require.NoError(t, p.LogEvent(context.Background(), testEvent(constants.KeyEventRemoved)))
	assert.Empty(t, w.messages[0].Headers)
}

func TestMultiRegistry(t *testing.T) {
	mem := NewMemoryRegistry()
	failing := newKafkaProducer(&fakeWriter{err: errors.New("broker down")}, "", logger.NewNoopLogger())
	multi := NewMultiRegistry(logger.NewNoopLogger(), mem, nil, failing)

	err := multi.LogEvent(context.Background(), testEvent(constants.KeyEventCreated))
	assert.Error(t, err)

	events, err := mem.ListEvents(context.Background(), "test")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "k1", events[0].KeyID)

	events, err = mem.ListEvents(context.Background(), "other")
	require.NoError(t, err)
	assert.Empty(t, events)

	assert.NoError(t, NewMultiRegistry(logger.NewNoopLogger(), mem).LogEvent(context.Background(), testEvent(constants.KeyEventRemoved)))
}
