package ledger

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

// NopNotifier descarta las notificaciones.
type NopNotifier struct{}

// MutationsCommitted no hace nada.
func (NopNotifier) MutationsCommitted(context.Context, []*entity.StockHistoryEntry) {}

// LogNotifier registra cada mutación confirmada en el log estructurado.
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier construye el notificador.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// MutationsCommitted implementa Notifier.
func (n *LogNotifier) MutationsCommitted(_ context.Context, entries []*entity.StockHistoryEntry) {
	for _, e := range entries {
		n.log.Info().
			Str("store_id", e.StoreID).
			Str("product_id", e.ProductID).
			Int("delta", e.Delta).
			Int("resulting_quantity", e.ResultingQuantity).
			Str("source_kind", string(e.SourceKind)).
			Str("source_id", e.SourceID).
			Msg("movimiento de stock")
	}
}

// MultiNotifier reparte las notificaciones entre varios destinos.
type MultiNotifier []Notifier

// MutationsCommitted implementa Notifier.
func (m MultiNotifier) MutationsCommitted(ctx context.Context, entries []*entity.StockHistoryEntry) {
	for _, n := range m {
		n.MutationsCommitted(ctx, entries)
	}
}
