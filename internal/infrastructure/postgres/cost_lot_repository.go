package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.CostLotRepository = (*CostLotRepo)(nil)

// CostLotRepo lotes de costo y consumos sobre PostgreSQL.
type CostLotRepo struct {
	q       Querier
	storeID string
}

// NewCostLotRepository construye el repositorio.
func NewCostLotRepository(q Querier, storeID string) *CostLotRepo {
	return &CostLotRepo{q: q, storeID: storeID}
}

// ListByProduct lotes vivos en orden FIFO. Se llama con la fila del producto ya bloqueada.
func (r *CostLotRepo) ListByProduct(ctx context.Context, productID string) ([]entity.CostLot, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, store_id, product_id, remaining, unit_cost, acquired_at, seq, source_kind, source_id
		FROM cost_lots WHERE store_id = $1 AND product_id = $2
		ORDER BY acquired_at, seq`,
		r.storeID, productID,
	)
	if err != nil {
		return nil, fmt.Errorf("list cost lots: %w", err)
	}
	lots, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (entity.CostLot, error) {
		var l entity.CostLot
		err := row.Scan(&l.ID, &l.StoreID, &l.ProductID, &l.Remaining, &l.UnitCost, &l.AcquiredAt, &l.Seq, &l.SourceKind, &l.SourceID)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan cost lots: %w", err)
	}
	return lots, nil
}

// Create inserta el lote; seq lo asigna la secuencia de la tabla.
func (r *CostLotRepo) Create(ctx context.Context, lot *entity.CostLot) error {
	lot.StoreID = r.storeID
	err := r.q.QueryRow(ctx, `
		INSERT INTO cost_lots (id, store_id, product_id, remaining, unit_cost, acquired_at, source_kind, source_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq`,
		lot.ID, lot.StoreID, lot.ProductID, lot.Remaining, lot.UnitCost, lot.AcquiredAt, lot.SourceKind, lot.SourceID,
	).Scan(&lot.Seq)
	if err != nil {
		return fmt.Errorf("insert cost lot: %w", err)
	}
	return nil
}

// UpdateRemaining ajusta las unidades restantes de un lote.
func (r *CostLotRepo) UpdateRemaining(ctx context.Context, id string, remaining int) error {
	cmd, err := r.q.Exec(ctx,
		`UPDATE cost_lots SET remaining = $3 WHERE id = $1 AND store_id = $2`,
		id, r.storeID, remaining,
	)
	if err != nil {
		return fmt.Errorf("update cost lot: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete elimina un lote agotado.
func (r *CostLotRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM cost_lots WHERE id = $1 AND store_id = $2`, id, r.storeID); err != nil {
		return fmt.Errorf("delete cost lot: %w", err)
	}
	return nil
}

// RecordConsumption guarda el costo consumido por un decremento.
func (r *CostLotRepo) RecordConsumption(ctx context.Context, c *entity.CostConsumption) error {
	c.StoreID = r.storeID
	_, err := r.q.Exec(ctx, `
		INSERT INTO cost_consumptions (id, store_id, product_id, source_kind, source_id, quantity, unit_cost, acquired_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.StoreID, c.ProductID, c.SourceKind, c.SourceID, c.Quantity, c.UnitCost, c.AcquiredAt, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert cost consumption: %w", err)
	}
	return nil
}

// ListConsumptions consumos de un origen para un producto, en el orden en que se tomaron.
func (r *CostLotRepo) ListConsumptions(ctx context.Context, productID string, kind entity.SourceKind, sourceID string) ([]entity.CostConsumption, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, store_id, product_id, source_kind, source_id, quantity, unit_cost, acquired_at, created_at
		FROM cost_consumptions
		WHERE store_id = $1 AND product_id = $2 AND source_kind = $3 AND source_id = $4
		ORDER BY created_at, acquired_at`,
		r.storeID, productID, kind, sourceID,
	)
	if err != nil {
		return nil, fmt.Errorf("list cost consumptions: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (entity.CostConsumption, error) {
		var c entity.CostConsumption
		err := row.Scan(&c.ID, &c.StoreID, &c.ProductID, &c.SourceKind, &c.SourceID, &c.Quantity, &c.UnitCost, &c.AcquiredAt, &c.CreatedAt)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan cost consumptions: %w", err)
	}
	return out, nil
}
