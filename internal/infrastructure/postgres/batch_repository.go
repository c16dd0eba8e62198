package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.BatchRepository = (*BatchRepo)(nil)

// BatchRepo lotes masivos; las líneas se guardan como JSONB.
type BatchRepo struct {
	q       Querier
	storeID string
}

// NewBatchRepository construye el repositorio.
func NewBatchRepository(q Querier, storeID string) *BatchRepo {
	return &BatchRepo{q: q, storeID: storeID}
}

func (r *BatchRepo) Create(ctx context.Context, b *entity.Batch) error {
	b.StoreID = r.storeID
	lines, err := json.Marshal(b.Lines)
	if err != nil {
		return fmt.Errorf("marshal batch lines: %w", err)
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO batches (id, store_id, kind, group_key, lines, origin_ref, status, created_at, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		b.ID, b.StoreID, b.Kind, b.GroupKey, lines, b.OriginRef, b.Status, b.CreatedAt, b.ArchivedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// GetForUpdate bloquea el lote; dos entregas del mismo bloque se serializan aquí.
func (r *BatchRepo) GetForUpdate(ctx context.Context, id string) (*entity.Batch, error) {
	var (
		b     entity.Batch
		lines []byte
	)
	err := r.q.QueryRow(ctx, `
		SELECT id, store_id, kind, group_key, lines, origin_ref, status, created_at, archived_at
		FROM batches WHERE id = $1 AND store_id = $2 FOR UPDATE`,
		id, r.storeID,
	).Scan(&b.ID, &b.StoreID, &b.Kind, &b.GroupKey, &lines, &b.OriginRef, &b.Status, &b.CreatedAt, &b.ArchivedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}
	if err := json.Unmarshal(lines, &b.Lines); err != nil {
		return nil, fmt.Errorf("unmarshal batch lines: %w", err)
	}
	return &b, nil
}

func (r *BatchRepo) MarkArchived(ctx context.Context, id string, at time.Time) error {
	cmd, err := r.q.Exec(ctx,
		`UPDATE batches SET status = $3, archived_at = $4 WHERE id = $1 AND store_id = $2`,
		id, r.storeID, entity.BatchArchived, at,
	)
	if err != nil {
		return fmt.Errorf("archive batch: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
