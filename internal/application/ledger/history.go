package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// Límites de paginación de lecturas del historial.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// History registra y lee el historial de stock (solo-agregar).
type History struct {
	coord *Coordinator
	now   func() time.Time
}

// NewHistory construye el registrador de historial.
func NewHistory(coord *Coordinator) *History {
	return &History{coord: coord, now: time.Now}
}

// Record valida y agrega la entrada dentro de la transacción en curso. Debe llamarse con los
// repos del mismo límite que modificó la cantidad.
func (h *History) Record(ctx context.Context, repos Repos, entry *entity.StockHistoryEntry) error {
	if entry.ProductID == "" || entry.Delta == 0 || !entry.SourceKind.Valid() {
		return fmt.Errorf("%w: entrada de historial incompleta", domain.ErrInvalidArgument)
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = h.now()
	}
	if err := repos.History.Append(ctx, entry); err != nil {
		return err
	}
	collect(ctx, entry)
	return nil
}

// HistoryQuery filtros de ListByProduct.
type HistoryQuery struct {
	From, To      *time.Time
	Limit, Offset int
}

// ListByProduct devuelve el historial del producto, más reciente primero.
func (h *History) ListByProduct(ctx context.Context, sc StoreContext, productID string, q HistoryQuery) ([]*entity.StockHistoryEntry, error) {
	if productID == "" || q.Offset < 0 || q.Limit < 0 {
		return nil, domain.ErrInvalidArgument
	}
	switch {
	case q.Limit == 0:
		q.Limit = DefaultHistoryLimit
	case q.Limit > MaxHistoryLimit:
		q.Limit = MaxHistoryLimit
	}
	return RunAtomic(ctx, h.coord, sc, RunOptions{}, func(ctx context.Context, r Repos) ([]*entity.StockHistoryEntry, error) {
		p, err := r.Products.GetByID(ctx, productID)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, domain.ErrNotFound
		}
		return r.History.ListByProduct(ctx, productID, q.From, q.To, q.Limit, q.Offset)
	})
}

// ListBySource devuelve las entradas generadas por un origen (p. ej. un traslado).
func (h *History) ListBySource(ctx context.Context, sc StoreContext, kind entity.SourceKind, sourceID string) ([]*entity.StockHistoryEntry, error) {
	if !kind.Valid() || sourceID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return RunAtomic(ctx, h.coord, sc, RunOptions{}, func(ctx context.Context, r Repos) ([]*entity.StockHistoryEntry, error) {
		return r.History.ListBySource(ctx, kind, sourceID)
	})
}
