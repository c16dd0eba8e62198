package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jhoicas/stock-ledger/internal/application/tasks"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/kafka"
)

type fakeProducer struct {
	mu   sync.Mutex
	msgs []kafkago.Message
	err  error
}

func (p *fakeProducer) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

// fakeConsumer entrega los mensajes en orden y luego devuelve io.EOF.
type fakeConsumer struct {
	mu        sync.Mutex
	pending   []kafkago.Message
	committed []kafkago.Message
}

func (c *fakeConsumer) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return kafkago.Message{}, err
	}
	if len(c.pending) == 0 {
		return kafkago.Message{}, io.EOF
	}
	msg := c.pending[0]
	c.pending = c.pending[1:]
	return msg, nil
}

func (c *fakeConsumer) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.committed = append(c.committed, msgs...)
	return nil
}

func (c *fakeConsumer) Close() error { return nil }

func withRemoteSpan(t *testing.T) (context.Context, trace.TraceID) {
	t.Helper()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled, Remote: true})
	return trace.ContextWithRemoteSpanContext(context.Background(), sc), traceID
}

func header(msg kafkago.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestQueue_PublicaConClaveDeGrupoYTraza(t *testing.T) {
	ctx, _ := withRemoteSpan(t)
	producer := &fakeProducer{}
	q := kafka.NewQueue(producer, nil, 2, nil, nil)

	require.NoError(t, q.Publish(ctx, "stocking_batch", []any{1, 2, 3}, "store-1"))
	require.Len(t, producer.msgs, 2)
	for i, msg := range producer.msgs {
		assert.Equal(t, "store-1", string(msg.Key))
		assert.Equal(t, "stocking_batch", header(msg, "task-kind"))
		assert.NotEmpty(t, header(msg, "traceparent"))

		var env tasks.Envelope
		require.NoError(t, json.Unmarshal(msg.Value, &env))
		assert.Equal(t, i, env.ChunkIndex)
		assert.Equal(t, 2, env.ChunkCount)
	}
}

func TestQueue_ProcesaEnOrdenYConfirmaAunConFallo(t *testing.T) {
	ctx, traceID := withRemoteSpan(t)
	producer := &fakeProducer{}
	pub := kafka.NewQueue(producer, nil, 1, nil, nil)
	require.NoError(t, pub.Publish(ctx, "k", []any{"a", "b", "c"}, "g"))

	consumer := &fakeConsumer{pending: producer.msgs}
	var failed []int
	q := kafka.NewQueue(&fakeProducer{}, []kafka.Consumer{consumer}, 1, nil, func(_ context.Context, env tasks.Envelope, _ error) {
		failed = append(failed, env.ChunkIndex)
	})

	var seen []string
	var traces []trace.TraceID
	require.NoError(t, q.Subscribe("k", func(ctx context.Context, env tasks.Envelope) error {
		var v string
		require.NoError(t, json.Unmarshal(env.Items[0], &v))
		seen = append(seen, v)
		traces = append(traces, trace.SpanContextFromContext(ctx).TraceID())
		if v == "b" {
			return errors.New("falla")
		}
		return nil
	}))

	runCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Run(runCtx))

	assert.Equal(t, []string{"a", "b", "c"}, seen)
	assert.Equal(t, []int{1}, failed)
	assert.Len(t, consumer.committed, 3)
	for _, id := range traces {
		assert.Equal(t, traceID, id)
	}
}

func TestQueue_TipoDesconocidoAlSumidero(t *testing.T) {
	producer := &fakeProducer{}
	pub := kafka.NewQueue(producer, nil, 0, nil, nil)
	require.NoError(t, pub.Publish(context.Background(), "nadie", []any{1}, "g"))

	var failures int
	consumer := &fakeConsumer{pending: producer.msgs}
	q := kafka.NewQueue(&fakeProducer{}, []kafka.Consumer{consumer}, 0, nil, func(context.Context, tasks.Envelope, error) { failures++ })
	require.NoError(t, q.Run(context.Background()))

	assert.Equal(t, 1, failures)
	assert.Len(t, consumer.committed, 1)
}

func TestStockEventPublisher_ClavePorProducto(t *testing.T) {
	producer := &fakeProducer{}
	pub := kafka.NewStockEventPublisher(producer, nil)

	pub.MutationsCommitted(context.Background(), []*entity.StockHistoryEntry{
		{ID: "e1", StoreID: "s", ProductID: "p1", Delta: -2, ResultingQuantity: 3, UnitCost: decimal.NewFromInt(10), SourceKind: entity.SourceSale, SourceID: "sale"},
		{ID: "e2", StoreID: "s", ProductID: "p2", Delta: 1, ResultingQuantity: 1, SourceKind: entity.SourceStocking},
	})
	require.Len(t, producer.msgs, 2)
	assert.Equal(t, "p1", string(producer.msgs[0].Key))

	var ev kafka.StockEvent
	require.NoError(t, json.Unmarshal(producer.msgs[0].Value, &ev))
	assert.Equal(t, "e1", ev.EntryID)
	assert.Equal(t, -2, ev.Delta)
	assert.Equal(t, "sale", ev.SourceKind)
	assert.True(t, decimal.NewFromInt(10).Equal(ev.UnitCost))
}
