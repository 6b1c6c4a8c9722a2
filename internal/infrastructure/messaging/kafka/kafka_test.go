package kafka

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/logging"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/metrics"
	"github.com/dealdeskhq/dealdesk/pkg/errors"
)

type mockWriter struct {
	messages []kafka.Message
	err      error
}

func (m *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msgs...)
	return nil
}

func (m *mockWriter) Close() error { return nil }

type mockReader struct {
	queue   []kafka.Message
	commits []kafka.Message
}

func (m *mockReader) FetchMessage(_ context.Context) (kafka.Message, error) {
	if len(m.queue) == 0 {
		return kafka.Message{}, io.EOF
	}
	msg := m.queue[0]
	m.queue = m.queue[1:]
	return msg, nil
}

func (m *mockReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	m.commits = append(m.commits, msgs...)
	return nil
}

func (m *mockReader) Close() error { return nil }

func TestEnvelopeRoundTrip(t *testing.T) {
	payload := ContractEventPayload{ContractID: "c1", OwnerID: "u1", TransactionID: "c1", Status: "under_contract"}
	env, err := NewEventEnvelope(TopicContractCreated, "apiserver", payload)
	require.NoError(t, err)
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, "v1", env.SchemaVersion)

	var got ContractEventPayload
	require.NoError(t, env.DecodePayload(&got))
	assert.Equal(t, payload, got)
}

func TestPublish(t *testing.T) {
	w := &mockWriter{}
	p := NewProducerWithWriter(w, "apiserver", logging.NewNopLogger())

	err := p.Publish(context.Background(), TopicContractCreated, "c1",
		ContractEventPayload{ContractID: "c1", OwnerID: "u1"})
	require.NoError(t, err)
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, TopicContractCreated, msg.Topic)
	assert.Equal(t, []byte("c1"), msg.Key)

	var env EventEnvelope
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, TopicContractCreated, env.EventType)
	assert.Equal(t, "apiserver", env.Source)
}

func TestPublishAfterClose(t *testing.T) {
	p := NewProducerWithWriter(&mockWriter{}, "apiserver", logging.NewNopLogger())
	require.NoError(t, p.Close())
	err := p.Publish(context.Background(), TopicContractCreated, "c1", struct{}{})
	assert.Error(t, err)
}

func TestConsumerDispatchesAndCommits(t *testing.T) {
	env, err := NewEventEnvelope(TopicReminderDue, "worker",
		ReminderDuePayload{OwnerID: "u1", ContractID: "c1", Milestone: "closing"})
	require.NoError(t, err)
	value, err := json.Marshal(env)
	require.NoError(t, err)

	r := &mockReader{queue: []kafka.Message{{Topic: TopicReminderDue, Value: value}}}
	c := NewConsumerWithReader(r, TopicReminderDue, ConsumerOptions{}, logging.NewNopLogger())

	var handled []string
	err = c.Run(context.Background(), func(_ context.Context, env *EventEnvelope) error {
		var p ReminderDuePayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		handled = append(handled, string(p.ContractID))
		return nil
	})
	// Run exits with the fetch error once the queue drains.
	assert.Error(t, err)
	assert.Equal(t, []string{"c1"}, handled)
	assert.Len(t, r.commits, 1)
}

func TestConsumerRetriesThenDrops(t *testing.T) {
	env, err := NewEventEnvelope(TopicContractUpdated, "apiserver", ContractEventPayload{ContractID: "c1"})
	require.NoError(t, err)
	value, _ := json.Marshal(env)

	r := &mockReader{queue: []kafka.Message{{Value: value}}}
	c := NewConsumerWithReader(r, TopicContractUpdated,
		ConsumerOptions{MaxRetries: 2, RetryBackoff: 1}, logging.NewNopLogger())

	attempts := 0
	_ = c.Run(context.Background(), func(_ context.Context, _ *EventEnvelope) error {
		attempts++
		return errors.Internal("boom")
	})

	assert.Equal(t, 3, attempts, "initial attempt plus two retries")
	assert.Len(t, r.commits, 1, "poison messages are committed, not redelivered forever")
}

func TestConsumerCountsOutcomes(t *testing.T) {
	good, err := NewEventEnvelope(TopicReminderDue, "worker", ReminderDuePayload{ContractID: "c1"})
	require.NoError(t, err)
	goodValue, _ := json.Marshal(good)
	bad, err := NewEventEnvelope(TopicReminderDue, "worker", ReminderDuePayload{ContractID: "c2"})
	require.NoError(t, err)
	badValue, _ := json.Marshal(bad)

	m := metrics.New()
	r := &mockReader{queue: []kafka.Message{{Value: goodValue}, {Value: badValue}}}
	c := NewConsumerWithReader(r, TopicReminderDue,
		ConsumerOptions{MaxRetries: 1, RetryBackoff: 1, Metrics: m}, logging.NewNopLogger())

	_ = c.Run(context.Background(), func(_ context.Context, env *EventEnvelope) error {
		var p ReminderDuePayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		if p.ContractID == "c2" {
			return errors.Internal("boom")
		}
		return nil
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `dealdesk_messages_processed_total{outcome="ok",topic="reminder.due"} 1`)
	assert.Contains(t, body, `dealdesk_messages_processed_total{outcome="dropped",topic="reminder.due"} 1`)
}

func TestConsumerSkipsUndecodableMessage(t *testing.T) {
	r := &mockReader{queue: []kafka.Message{{Value: []byte("not json")}}}
	c := NewConsumerWithReader(r, TopicContractCreated, ConsumerOptions{}, logging.NewNopLogger())

	called := false
	_ = c.Run(context.Background(), func(_ context.Context, _ *EventEnvelope) error {
		called = true
		return nil
	})
	assert.False(t, called)
	assert.Len(t, r.commits, 1)
}
