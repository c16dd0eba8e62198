package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

// Timeouts por defecto cuando la configuración no los define.
const (
	DefaultTimeout      = 5 * time.Second
	DefaultBatchTimeout = 2 * time.Minute
)

// RunOptions opciones del límite transaccional. Solo aplican en el límite más externo.
type RunOptions struct {
	Batch bool // usa el timeout extendido de operaciones masivas
}

// CoordinatorConfig timeouts del coordinador.
type CoordinatorConfig struct {
	Timeout      time.Duration
	BatchTimeout time.Duration
}

// Coordinator ejecuta funciones dentro de un único límite transaccional (runAtomic).
type Coordinator struct {
	cfg      CoordinatorConfig
	notifier Notifier
	log      *logger.Logger
}

// NewCoordinator construye el coordinador. notifier puede ser nil.
func NewCoordinator(cfg CoordinatorConfig, notifier Notifier, log *logger.Logger) *Coordinator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Coordinator{cfg: cfg, notifier: notifier, log: log}
}

type boundaryKey struct{}

// boundary acumula lo ocurrido dentro del límite más externo.
type boundary struct {
	mu      sync.Mutex
	entries []*entity.StockHistoryEntry
}

func (b *boundary) add(e *entity.StockHistoryEntry) {
	b.mu.Lock()
	b.entries = append(b.entries, e)
	b.mu.Unlock()
}

// collect registra una entrada para anunciarla tras el commit del límite más externo.
func collect(ctx context.Context, e *entity.StockHistoryEntry) {
	if b, ok := ctx.Value(boundaryKey{}).(*boundary); ok {
		b.add(e)
	}
}

// InBoundary indica si ctx ya está dentro de un límite del coordinador.
func InBoundary(ctx context.Context) bool {
	_, ok := ctx.Value(boundaryKey{}).(*boundary)
	return ok
}

// Run ejecuta fn en la transacción de sc. Las llamadas anidadas reutilizan la transacción
// externa y no aplican timeout propio. Un error de fn se devuelve sin cambios; un vencimiento
// del plazo se reporta como domain.ErrTransient.
func (c *Coordinator) Run(ctx context.Context, sc StoreContext, opts RunOptions, fn func(ctx context.Context, repos Repos) error) error {
	if InBoundary(ctx) {
		return sc.Transaction(ctx, fn)
	}

	timeout := c.cfg.Timeout
	if opts.Batch {
		timeout = c.cfg.BatchTimeout
	}
	b := &boundary{}
	tctx, cancel := context.WithTimeout(context.WithValue(ctx, boundaryKey{}, b), timeout)
	defer cancel()

	err := sc.Transaction(tctx, fn)
	if err != nil {
		if errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil && !errors.Is(err, domain.ErrTransient) {
			return fmt.Errorf("%w: %w", domain.ErrTransient, err)
		}
		return err
	}

	if len(b.entries) > 0 {
		c.notifier.MutationsCommitted(context.WithoutCancel(ctx), b.entries)
	}
	if c.log != nil {
		c.log.Debug().Str("store_id", sc.StoreID()).Int("entries", len(b.entries)).Msg("transacción confirmada")
	}
	return nil
}

// RunAtomic igual que Run pero devuelve el resultado de fn.
func RunAtomic[T any](ctx context.Context, c *Coordinator, sc StoreContext, opts RunOptions, fn func(ctx context.Context, repos Repos) (T, error)) (T, error) {
	var out T
	err := c.Run(ctx, sc, opts, func(ctx context.Context, repos Repos) error {
		v, err := fn(ctx, repos)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
