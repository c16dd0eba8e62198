// Package kafka transporta la cola de tareas y los eventos de stock sobre Kafka.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jhoicas/stock-ledger/internal/application/tasks"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

const (
	headerKind     = "task-kind"
	instrumentName = "stock-ledger/tasks"
)

var _ tasks.Queue = (*Queue)(nil)

// Queue cola de tareas sobre un tópico. La clave del mensaje es el groupKey, así que todos los
// sobres de un grupo caen en la misma partición y un único lector los procesa en orden.
// La entrega es al-menos-una-vez: el offset se confirma después del handler, falle o no.
type Queue struct {
	producer  Producer
	consumers []Consumer
	chunkSize int
	log       *logger.Logger
	onFailure tasks.FailureSink
	tracer    trace.Tracer

	mu       sync.RWMutex
	handlers map[string]tasks.Handler
}

// NewQueue construye la cola. consumers puede estar vacío en procesos que solo publican.
func NewQueue(producer Producer, consumers []Consumer, chunkSize int, log *logger.Logger, onFailure tasks.FailureSink) *Queue {
	return &Queue{
		producer:  producer,
		consumers: consumers,
		chunkSize: chunkSize,
		log:       log,
		onFailure: onFailure,
		tracer:    otel.Tracer(instrumentName),
		handlers:  map[string]tasks.Handler{},
	}
}

// NewQueueFromConfig crea escritor y lectores reales.
func NewQueueFromConfig(cfg Config, log *logger.Logger, onFailure tasks.FailureSink) *Queue {
	readers := make([]Consumer, 0, cfg.Readers)
	for i := 0; i < cfg.Readers; i++ {
		readers = append(readers, NewReader(cfg.Brokers, cfg.TaskTopic, cfg.GroupID))
	}
	return NewQueue(NewWriter(cfg.Brokers, cfg.TaskTopic), readers, cfg.ChunkSize, log, onFailure)
}

// Subscribe registra el handler de un tipo de tarea.
func (q *Queue) Subscribe(kind string, h tasks.Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.handlers[kind]; ok {
		return fmt.Errorf("%w: ya hay un handler para %q", domain.ErrDuplicate, kind)
	}
	q.handlers[kind] = h
	return nil
}

// Publish escribe los sobres en una sola llamada para conservar su orden en la partición.
func (q *Queue) Publish(ctx context.Context, kind string, items []any, groupKey string) error {
	envs, err := tasks.Chunk(kind, items, groupKey, q.chunkSize, time.Now())
	if err != nil {
		return err
	}
	msgs := make([]kafkago.Message, 0, len(envs))
	for _, env := range envs {
		msg, err := encode(ctx, env)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := q.producer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func encode(ctx context.Context, env tasks.Envelope) (kafkago.Message, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serializar sobre: %w", err)
	}
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	headers := []kafkago.Header{{Key: headerKind, Value: []byte(env.Kind)}}
	for k, v := range carrier {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(v)})
	}
	return kafkago.Message{Key: []byte(env.GroupKey), Value: payload, Headers: headers}, nil
}

// Run consume con todos los lectores hasta que ctx se cancele.
func (q *Queue) Run(ctx context.Context) error {
	if len(q.consumers) == 0 {
		return fmt.Errorf("%w: cola sin lectores", domain.ErrInvalidState)
	}
	var wg sync.WaitGroup
	for _, c := range q.consumers {
		wg.Add(1)
		go func(c Consumer) {
			defer wg.Done()
			q.consume(ctx, c)
		}(c)
	}
	wg.Wait()
	return nil
}

func (q *Queue) consume(ctx context.Context, c Consumer) {
	for {
		msg, err := c.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
				return
			}
			if q.log != nil {
				q.log.Error().Err(err).Msg("kafka fetch")
			}
			continue
		}
		q.handle(ctx, msg)
		if err := c.CommitMessages(ctx, msg); err != nil && q.log != nil {
			q.log.Error().Err(err).Int64("offset", msg.Offset).Msg("kafka commit")
		}
	}
}

// handle procesa un mensaje dentro de un span hijo del contexto propagado en los headers.
func (q *Queue) handle(ctx context.Context, msg kafkago.Message) {
	carrier := propagation.MapCarrier{}
	for _, h := range msg.Headers {
		carrier[h.Key] = string(h.Value)
	}
	msgCtx := otel.GetTextMapPropagator().Extract(ctx, carrier)
	msgCtx, span := q.tracer.Start(msgCtx, "task.handle", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.kafka.message.key", string(msg.Key)),
		attribute.Int("messaging.kafka.partition", msg.Partition),
		attribute.Int64("messaging.kafka.offset", msg.Offset),
	)

	var env tasks.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		span.SetStatus(codes.Error, "sobre inválido")
		q.fail(msgCtx, env, fmt.Errorf("%w: sobre inválido: %v", domain.ErrInvalidArgument, err))
		return
	}
	span.SetAttributes(attribute.String("task.kind", env.Kind), attribute.Int("task.chunk", env.ChunkIndex))

	q.mu.RLock()
	h := q.handlers[env.Kind]
	q.mu.RUnlock()
	if h == nil {
		span.SetStatus(codes.Error, "sin handler")
		q.fail(msgCtx, env, fmt.Errorf("%w: sin handler para %q", domain.ErrNotFound, env.Kind))
		return
	}
	if err := h(msgCtx, env); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		q.fail(msgCtx, env, err)
	}
}

func (q *Queue) fail(ctx context.Context, env tasks.Envelope, err error) {
	if q.log != nil {
		q.log.Error().Err(err).Str("envelope_id", env.ID).Str("kind", env.Kind).
			Str("group_key", env.GroupKey).Msg("tarea fallida")
	}
	if q.onFailure != nil {
		q.onFailure(ctx, env, err)
	}
}

// Close cierra escritor y lectores.
func (q *Queue) Close() error {
	var errs []error
	if err := q.producer.Close(); err != nil {
		errs = append(errs, err)
	}
	for _, c := range q.consumers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
