// Package queue implementa la cola de tareas en proceso con carriles por groupKey.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jhoicas/stock-ledger/internal/application/tasks"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

var _ tasks.Queue = (*Local)(nil)

// Config parámetros de la cola local.
type Config struct {
	ChunkSize int
	Workers   int // sobres procesándose a la vez entre carriles distintos
}

// Local cola en memoria. Cada groupKey tiene un carril con una sola goroutine activa, así que
// sus sobres se procesan en orden de publicación; carriles distintos corren en paralelo
// limitados por Workers.
type Local struct {
	cfg       Config
	log       *logger.Logger
	onFailure tasks.FailureSink

	ctx    context.Context
	cancel context.CancelFunc
	sem    chan struct{}
	wg     sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	handlers map[string]tasks.Handler
	lanes    map[string][]tasks.Envelope
}

// NewLocal construye la cola. onFailure puede ser nil.
func NewLocal(cfg Config, log *logger.Logger, onFailure tasks.FailureSink) *Local {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = tasks.DefaultChunkSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Local{
		cfg:       cfg,
		log:       log,
		onFailure: onFailure,
		ctx:       ctx,
		cancel:    cancel,
		sem:       make(chan struct{}, cfg.Workers),
		handlers:  map[string]tasks.Handler{},
		lanes:     map[string][]tasks.Envelope{},
	}
}

// Subscribe registra el handler de un tipo de tarea (uno por tipo).
func (q *Local) Subscribe(kind string, h tasks.Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return domain.ErrQueueClosed
	}
	if _, ok := q.handlers[kind]; ok {
		return fmt.Errorf("%w: ya hay un handler para %q", domain.ErrDuplicate, kind)
	}
	q.handlers[kind] = h
	return nil
}

// Publish divide items en sobres y los encola en el carril de groupKey.
func (q *Local) Publish(ctx context.Context, kind string, items []any, groupKey string) error {
	envs, err := tasks.Chunk(kind, items, groupKey, q.cfg.ChunkSize, time.Now())
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return domain.ErrQueueClosed
	}
	_, active := q.lanes[groupKey]
	q.lanes[groupKey] = append(q.lanes[groupKey], envs...)
	if !active {
		q.wg.Add(1)
		go q.runLane(groupKey)
	}
	return nil
}

// runLane consume el carril hasta vaciarlo.
func (q *Local) runLane(key string) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		pending := q.lanes[key]
		if len(pending) == 0 {
			delete(q.lanes, key)
			q.mu.Unlock()
			return
		}
		env := pending[0]
		q.lanes[key] = pending[1:]
		h := q.handlers[env.Kind]
		q.mu.Unlock()

		q.deliver(env, h)
	}
}

func (q *Local) deliver(env tasks.Envelope, h tasks.Handler) {
	select {
	case q.sem <- struct{}{}:
	case <-q.ctx.Done():
		q.fail(env, q.ctx.Err())
		return
	}
	defer func() { <-q.sem }()

	if h == nil {
		q.fail(env, fmt.Errorf("%w: sin handler para %q", domain.ErrNotFound, env.Kind))
		return
	}
	if err := h(q.ctx, env); err != nil {
		q.fail(env, err)
	}
}

func (q *Local) fail(env tasks.Envelope, err error) {
	if q.log != nil {
		q.log.Error().Err(err).Str("envelope_id", env.ID).Str("kind", env.Kind).
			Str("group_key", env.GroupKey).Int("chunk", env.ChunkIndex).Msg("tarea fallida")
	}
	if q.onFailure != nil {
		q.onFailure(context.WithoutCancel(q.ctx), env, err)
	}
}

// Close deja de aceptar publicaciones y espera a que se vacíen los carriles. Si ctx vence
// antes, cancela los handlers en curso.
func (q *Local) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}
