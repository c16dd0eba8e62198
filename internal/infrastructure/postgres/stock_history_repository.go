package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.StockHistoryRepository = (*StockHistoryRepo)(nil)

const historyColumns = `id, store_id, product_id, delta, resulting_quantity, unit_cost, total_cost, source_kind, source_id, idempotency_key, description, actor, created_at`

// StockHistoryRepo historial solo-agregar sobre PostgreSQL (un trigger rechaza UPDATE/DELETE).
type StockHistoryRepo struct {
	q       Querier
	storeID string
}

// NewStockHistoryRepository construye el repositorio.
func NewStockHistoryRepository(q Querier, storeID string) *StockHistoryRepo {
	return &StockHistoryRepo{q: q, storeID: storeID}
}

// Append inserta una entrada. Una clave de idempotencia repetida devuelve domain.ErrDuplicate.
func (r *StockHistoryRepo) Append(ctx context.Context, e *entity.StockHistoryEntry) error {
	e.StoreID = r.storeID
	_, err := r.q.Exec(ctx, `
		INSERT INTO stock_history (`+historyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, e.StoreID, e.ProductID, e.Delta, e.ResultingQuantity, e.UnitCost, e.TotalCost,
		e.SourceKind, e.SourceID, e.IdempotencyKey, e.Description, e.Actor, e.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert stock history: %w", err)
	}
	return nil
}

// GetByIdempotencyKey devuelve nil, nil si la clave no se usó.
func (r *StockHistoryRepo) GetByIdempotencyKey(ctx context.Context, key string) (*entity.StockHistoryEntry, error) {
	row := r.q.QueryRow(ctx,
		`SELECT `+historyColumns+` FROM stock_history WHERE store_id = $1 AND idempotency_key = $2`,
		r.storeID, key,
	)
	e, err := scanHistory(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get stock history: %w", err)
	}
	return e, nil
}

// ListByProduct historial del producto, más reciente primero, con rango [from, to) opcional.
func (r *StockHistoryRepo) ListByProduct(ctx context.Context, productID string, from, to *time.Time, limit, offset int) ([]*entity.StockHistoryEntry, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + historyColumns + ` FROM stock_history WHERE store_id = $1 AND product_id = $2`)
	args := []any{r.storeID, productID}
	if from != nil {
		args = append(args, *from)
		fmt.Fprintf(&sb, " AND created_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		fmt.Fprintf(&sb, " AND created_at < $%d", len(args))
	}
	args = append(args, limit, offset)
	fmt.Fprintf(&sb, " ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	return r.list(ctx, sb.String(), args...)
}

// ListBySource entradas de un origen en orden cronológico.
func (r *StockHistoryRepo) ListBySource(ctx context.Context, kind entity.SourceKind, sourceID string) ([]*entity.StockHistoryEntry, error) {
	return r.list(ctx,
		`SELECT `+historyColumns+` FROM stock_history WHERE store_id = $1 AND source_kind = $2 AND source_id = $3 ORDER BY created_at, id`,
		r.storeID, kind, sourceID,
	)
}

func (r *StockHistoryRepo) list(ctx context.Context, query string, args ...any) ([]*entity.StockHistoryEntry, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stock history: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*entity.StockHistoryEntry, error) {
		return scanHistory(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan stock history: %w", err)
	}
	return out, nil
}

func scanHistory(row pgx.Row) (*entity.StockHistoryEntry, error) {
	var e entity.StockHistoryEntry
	err := row.Scan(&e.ID, &e.StoreID, &e.ProductID, &e.Delta, &e.ResultingQuantity, &e.UnitCost, &e.TotalCost,
		&e.SourceKind, &e.SourceID, &e.IdempotencyKey, &e.Description, &e.Actor, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
