package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/jwtly10/tradegate/internal/types"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var events = []types.Event{
	{Type: types.OpportunityLatch, Symbol: "QQQ", Timestamp: 1704205800000, Data: map[string]any{"side": "LONG"}},
	{Type: types.PlayArmed, Symbol: "SPY", Timestamp: 1704206100000, Data: map[string]any{"id": "p1"}},
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestMessages(t *testing.T) {
	msgs, err := Messages(events)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, "QQQ", string(msgs[0].Key), "events are keyed by symbol")
	assert.Equal(t, int64(1704205800000), msgs[0].Time.UnixMilli())
	assert.Equal(t, "OPPORTUNITY_LATCHED", string(msgs[0].Headers[0].Value))

	var decoded types.Event
	require.NoError(t, json.Unmarshal(msgs[1].Value, &decoded))
	assert.Equal(t, types.PlayArmed, decoded.Type)
	assert.Equal(t, "SPY", decoded.Symbol)
}

func TestMessages_UnencodablePayload(t *testing.T) {
	_, err := Messages([]types.Event{{Type: types.DecisionMade, Data: make(chan int)}})
	assert.Error(t, err)
}

func TestKafkaSink_Publish(t *testing.T) {
	w := &fakeWriter{}
	sink := &KafkaSink{w: w, topic: "t"}

	require.NoError(t, sink.Publish(context.Background(), nil))
	assert.Empty(t, w.msgs, "nothing is written for an empty tick")

	require.NoError(t, sink.Publish(context.Background(), events))
	assert.Len(t, w.msgs, 2)

	w.err = errors.New("broker down")
	err := sink.Publish(context.Background(), events)
	assert.ErrorContains(t, err, "broker down")

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}

func TestNewKafkaSink_RequiresBrokersAndTopic(t *testing.T) {
	_, err := NewKafkaSink(KafkaConfig{Topic: "t"})
	assert.Error(t, err)

	_, err = NewKafkaSink(KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)

	sink, err := NewKafkaSink(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t", Compression: "zstd"})
	require.NoError(t, err)
	assert.NoError(t, sink.Close())
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, sink.Publish(context.Background(), events))
	assert.Contains(t, buf.String(), `"type":"OPPORTUNITY_LATCHED"`)
	assert.Contains(t, buf.String(), `"symbol":"SPY"`)
}

type failingSink struct{ Discard }

func (failingSink) Publish(context.Context, []types.Event) error { return errors.New("nope") }

func TestMulti_JoinsErrors(t *testing.T) {
	w := &fakeWriter{}
	m := Multi{Discard{}, failingSink{}, &KafkaSink{w: w, topic: "t"}}

	err := m.Publish(context.Background(), events)
	assert.ErrorContains(t, err, "nope")
	assert.Len(t, w.msgs, 2, "a failing sink does not stop the others")
	assert.NoError(t, m.Close())
}
