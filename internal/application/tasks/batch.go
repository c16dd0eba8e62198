package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/stock-ledger/internal/application/ledger"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

// Tipos de tarea de lotes masivos.
const (
	KindStockingBatch = "stocking_batch"
	KindLossBatch     = "loss_batch"
)

// KindFor tipo de tarea de un lote masivo.
func KindFor(k entity.BatchKind) (string, error) {
	switch k {
	case entity.BatchStocking:
		return KindStockingBatch, nil
	case entity.BatchLoss:
		return KindLossBatch, nil
	}
	return "", fmt.Errorf("%w: tipo de lote %q", domain.ErrInvalidArgument, k)
}

// BatchItem ítem publicado: una línea de un lote masivo.
type BatchItem struct {
	BatchID string           `json:"batch_id"`
	StoreID string           `json:"store_id"`
	Index   int              `json:"index"`
	Line    entity.BatchLine `json:"line"`
}

// IdempotencyKey clave de la línea en el historial.
func (it BatchItem) IdempotencyKey() string {
	return fmt.Sprintf("%s:%d", it.BatchID, it.Index)
}

// SubmitInput entrada de BatchService.Submit.
type SubmitInput struct {
	Kind      entity.BatchKind
	GroupKey  string // vacío = id de la tienda
	Lines     []entity.BatchLine
	OriginRef string
}

// BatchService persiste lotes masivos y los publica en la cola.
type BatchService struct {
	coord *ledger.Coordinator
	queue Queue
	log   *logger.Logger
	now   func() time.Time
}

// NewBatchService construye el servicio.
func NewBatchService(coord *ledger.Coordinator, queue Queue, log *logger.Logger) *BatchService {
	return &BatchService{coord: coord, queue: queue, log: log, now: time.Now}
}

// Submit guarda el lote en PENDING y publica sus líneas bajo su groupKey.
func (s *BatchService) Submit(ctx context.Context, sc ledger.StoreContext, in SubmitInput) (*entity.Batch, error) {
	kind, err := KindFor(in.Kind)
	if err != nil {
		return nil, err
	}
	if len(in.Lines) == 0 {
		return nil, domain.ErrInvalidArgument
	}
	for i, l := range in.Lines {
		if l.ProductID == "" || l.Count <= 0 {
			return nil, fmt.Errorf("%w: línea %d", domain.ErrInvalidArgument, i)
		}
		if in.Kind == entity.BatchStocking && l.TotalCost == nil && l.UnitCost == nil {
			return nil, fmt.Errorf("%w: línea %d sin costo", domain.ErrInvalidArgument, i)
		}
	}
	groupKey := strings.TrimSpace(in.GroupKey)
	if groupKey == "" {
		groupKey = sc.StoreID()
	}

	b := &entity.Batch{
		ID:        uuid.New().String(),
		StoreID:   sc.StoreID(),
		Kind:      in.Kind,
		GroupKey:  groupKey,
		Lines:     in.Lines,
		OriginRef: in.OriginRef,
		Status:    entity.BatchPending,
		CreatedAt: s.now(),
	}
	err = s.coord.Run(ctx, sc, ledger.RunOptions{}, func(ctx context.Context, r ledger.Repos) error {
		return r.Batches.Create(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	items := make([]any, 0, len(b.Lines))
	for i, l := range b.Lines {
		items = append(items, BatchItem{BatchID: b.ID, StoreID: b.StoreID, Index: i, Line: l})
	}
	if err := s.queue.Publish(ctx, kind, items, groupKey); err != nil {
		return nil, fmt.Errorf("publicar lote %s: %w", b.ID, err)
	}
	if s.log != nil {
		s.log.Info().Str("batch_id", b.ID).Str("kind", kind).Int("lines", len(b.Lines)).Msg("lote publicado")
	}
	return b, nil
}

// BatchHandler aplica los sobres de lotes masivos en el ledger.
type BatchHandler struct {
	coord  *ledger.Coordinator
	ledger *ledger.Ledger
	stores ledger.StoreResolver
	log    *logger.Logger
	now    func() time.Time
}

// NewBatchHandler construye el handler.
func NewBatchHandler(coord *ledger.Coordinator, l *ledger.Ledger, stores ledger.StoreResolver, log *logger.Logger) *BatchHandler {
	return &BatchHandler{coord: coord, ledger: l, stores: stores, log: log, now: time.Now}
}

// Register suscribe el handler a ambos tipos de lote.
func (h *BatchHandler) Register(q Queue) error {
	for _, kind := range []string{KindStockingBatch, KindLossBatch} {
		if err := q.Subscribe(kind, h.Handle); err != nil {
			return err
		}
	}
	return nil
}

// Handle aplica todas las líneas del sobre en una transacción con timeout de lote.
// Un lote archivado se ignora (reentrega); el último trozo archiva el lote.
func (h *BatchHandler) Handle(ctx context.Context, env Envelope) error {
	items := make([]BatchItem, 0, len(env.Items))
	for i, raw := range env.Items {
		var it BatchItem
		if err := json.Unmarshal(raw, &it); err != nil {
			return fmt.Errorf("%w: ítem %d del sobre %s: %v", domain.ErrInvalidArgument, i, env.ID, err)
		}
		items = append(items, it)
	}
	if len(items) == 0 {
		return nil
	}
	batchID, storeID := items[0].BatchID, items[0].StoreID
	for _, it := range items {
		if it.BatchID != batchID || it.StoreID != storeID {
			return fmt.Errorf("%w: sobre %s mezcla lotes", domain.ErrInvalidArgument, env.ID)
		}
	}
	sc, err := h.stores.ForStore(storeID)
	if err != nil {
		return err
	}

	skipped := false
	err = h.coord.Run(ctx, sc, ledger.RunOptions{Batch: true}, func(ctx context.Context, r ledger.Repos) error {
		b, err := r.Batches.GetForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		if b == nil {
			return fmt.Errorf("lote %s: %w", batchID, domain.ErrNotFound)
		}
		if b.Status == entity.BatchArchived {
			skipped = true
			return nil
		}
		for _, it := range items {
			if err := h.apply(ctx, sc, b, it); err != nil {
				return fmt.Errorf("lote %s línea %d: %w", batchID, it.Index, err)
			}
		}
		if env.Last() {
			return r.Batches.MarkArchived(ctx, b.ID, h.now())
		}
		return nil
	})
	if err != nil {
		return err
	}
	if h.log != nil {
		h.log.Info().Str("batch_id", batchID).Int("chunk", env.ChunkIndex).Int("of", env.ChunkCount).
			Bool("skipped", skipped).Msg("sobre de lote procesado")
	}
	return nil
}

func (h *BatchHandler) apply(ctx context.Context, sc ledger.StoreContext, b *entity.Batch, it BatchItem) error {
	switch b.Kind {
	case entity.BatchStocking:
		_, err := h.ledger.Increase(ctx, sc, ledger.IncreaseInput{
			ProductID:      it.Line.ProductID,
			Count:          it.Line.Count,
			Cost:           ledger.CostInput{TotalCost: it.Line.TotalCost, UnitCost: it.Line.UnitCost},
			SourceKind:     entity.SourceStocking,
			SourceID:       b.ID,
			Description:    it.Line.Description,
			Actor:          b.OriginRef,
			IdempotencyKey: it.IdempotencyKey(),
		})
		return err
	case entity.BatchLoss:
		_, err := h.ledger.Decrease(ctx, sc, ledger.DecreaseInput{
			ProductID:        it.Line.ProductID,
			Count:            it.Line.Count,
			SourceKind:       entity.SourceLoss,
			SourceID:         b.ID,
			Description:      it.Line.Description,
			Actor:            b.OriginRef,
			SpecificUnitCost: it.Line.UnitCost,
			IdempotencyKey:   it.IdempotencyKey(),
		})
		return err
	}
	return fmt.Errorf("%w: tipo de lote %q", domain.ErrInvalidArgument, b.Kind)
}
