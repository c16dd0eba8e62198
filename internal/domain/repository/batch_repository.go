package repository

import (
	"context"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// BatchRepository puerto de lotes masivos (importaciones).
type BatchRepository interface {
	Create(ctx context.Context, batch *entity.Batch) error
	GetForUpdate(ctx context.Context, id string) (*entity.Batch, error)
	MarkArchived(ctx context.Context, id string, at time.Time) error
}
