package repository

import (
	"context"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// StockHistoryRepository puerto del historial de stock. Solo-agregar: no hay Update ni Delete.
type StockHistoryRepository interface {
	Append(ctx context.Context, entry *entity.StockHistoryEntry) error
	GetByIdempotencyKey(ctx context.Context, key string) (*entity.StockHistoryEntry, error)
	ListByProduct(ctx context.Context, productID string, from, to *time.Time, limit, offset int) ([]*entity.StockHistoryEntry, error)
	ListBySource(ctx context.Context, kind entity.SourceKind, sourceID string) ([]*entity.StockHistoryEntry, error)
}
