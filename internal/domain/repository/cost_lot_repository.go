package repository

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// CostLotRepository puerto de persistencia de lotes de costo y de sus consumos.
type CostLotRepository interface {
	// ListByProduct devuelve los lotes vivos ordenados por antigüedad (acquired_at, seq).
	ListByProduct(ctx context.Context, productID string) ([]entity.CostLot, error)
	Create(ctx context.Context, lot *entity.CostLot) error
	UpdateRemaining(ctx context.Context, id string, remaining int) error
	Delete(ctx context.Context, id string) error

	RecordConsumption(ctx context.Context, c *entity.CostConsumption) error
	ListConsumptions(ctx context.Context, productID string, kind entity.SourceKind, sourceID string) ([]entity.CostConsumption, error)
}
