package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var (
	_ repository.ShipmentRepository  = (*ShipmentRepo)(nil)
	_ repository.ReceivingRepository = (*ReceivingRepo)(nil)
)

const shipmentColumns = `id, store_id, destination_store_id, status, description, actor, created_at, shipped_at, closed_at`

// ShipmentRepo traslados de la tienda origen. Las líneas viven en shipment_lines.
type ShipmentRepo struct {
	q       Querier
	storeID string
}

// NewShipmentRepository construye el repositorio.
func NewShipmentRepository(q Querier, storeID string) *ShipmentRepo {
	return &ShipmentRepo{q: q, storeID: storeID}
}

// Create inserta cabecera y líneas. Debe llamarse dentro de una transacción.
func (r *ShipmentRepo) Create(ctx context.Context, s *entity.Shipment) error {
	s.StoreID = r.storeID
	_, err := r.q.Exec(ctx, `
		INSERT INTO shipments (`+shipmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.StoreID, s.DestinationStoreID, s.Status, s.Description, s.Actor, s.CreatedAt, s.ShippedAt, s.ClosedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert shipment: %w", err)
	}
	for i, l := range s.Lines {
		_, err := r.q.Exec(ctx, `
			INSERT INTO shipment_lines (shipment_id, position, product_id, destination_product_id, quantity)
			VALUES ($1, $2, $3, $4, $5)`,
			s.ID, i, l.ProductID, l.DestinationProductID, l.Quantity,
		)
		if err != nil {
			return fmt.Errorf("insert shipment line: %w", err)
		}
	}
	return nil
}

// GetByID devuelve nil, nil si el traslado no existe en esta tienda.
func (r *ShipmentRepo) GetByID(ctx context.Context, id string) (*entity.Shipment, error) {
	return r.get(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE id = $1 AND store_id = $2`, id)
}

// GetForUpdate bloquea la cabecera del traslado; serializa las transiciones de estado.
func (r *ShipmentRepo) GetForUpdate(ctx context.Context, id string) (*entity.Shipment, error) {
	return r.get(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE id = $1 AND store_id = $2 FOR UPDATE`, id)
}

func (r *ShipmentRepo) get(ctx context.Context, query, id string) (*entity.Shipment, error) {
	var s entity.Shipment
	err := r.q.QueryRow(ctx, query, id, r.storeID).Scan(
		&s.ID, &s.StoreID, &s.DestinationStoreID, &s.Status, &s.Description, &s.Actor, &s.CreatedAt, &s.ShippedAt, &s.ClosedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get shipment: %w", err)
	}

	rows, err := r.q.Query(ctx, `
		SELECT product_id, destination_product_id, quantity
		FROM shipment_lines WHERE shipment_id = $1 ORDER BY position`, s.ID)
	if err != nil {
		return nil, fmt.Errorf("list shipment lines: %w", err)
	}
	s.Lines, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (entity.ShipmentLine, error) {
		var l entity.ShipmentLine
		err := row.Scan(&l.ProductID, &l.DestinationProductID, &l.Quantity)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan shipment lines: %w", err)
	}
	return &s, nil
}

// UpdateStatus cambia el estado. SHIPPED fija shipped_at; los estados terminales fijan closed_at.
func (r *ShipmentRepo) UpdateStatus(ctx context.Context, id string, status entity.ShipmentStatus, at time.Time) error {
	cmd, err := r.q.Exec(ctx, `
		UPDATE shipments SET status = $3,
			shipped_at = CASE WHEN $3 = 'SHIPPED' THEN $4 ELSE shipped_at END,
			closed_at  = CASE WHEN $3 IN ('RECEIVED', 'ROLLBACK') THEN $4 ELSE closed_at END
		WHERE id = $1 AND store_id = $2`,
		id, r.storeID, string(status), at,
	)
	if err != nil {
		return fmt.Errorf("update shipment status: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ReceivingRepo recepciones pendientes de la tienda destino.
type ReceivingRepo struct {
	q       Querier
	storeID string
}

// NewReceivingRepository construye el repositorio.
func NewReceivingRepository(q Querier, storeID string) *ReceivingRepo {
	return &ReceivingRepo{q: q, storeID: storeID}
}

func (r *ReceivingRepo) Create(ctx context.Context, rc *entity.Receiving) error {
	rc.StoreID = r.storeID
	_, err := r.q.Exec(ctx, `
		INSERT INTO receivings (id, store_id, shipment_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rc.ID, rc.StoreID, rc.ShipmentID, rc.Status, rc.CreatedAt, rc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert receiving: %w", err)
	}
	return nil
}

func (r *ReceivingRepo) GetByShipment(ctx context.Context, shipmentID string) (*entity.Receiving, error) {
	var rc entity.Receiving
	err := r.q.QueryRow(ctx, `
		SELECT id, store_id, shipment_id, status, created_at, updated_at
		FROM receivings WHERE shipment_id = $1 AND store_id = $2`,
		shipmentID, r.storeID,
	).Scan(&rc.ID, &rc.StoreID, &rc.ShipmentID, &rc.Status, &rc.CreatedAt, &rc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get receiving: %w", err)
	}
	return &rc, nil
}

func (r *ReceivingRepo) UpdateStatus(ctx context.Context, id string, status entity.ReceivingStatus, at time.Time) error {
	cmd, err := r.q.Exec(ctx,
		`UPDATE receivings SET status = $3, updated_at = $4 WHERE id = $1 AND store_id = $2`,
		id, r.storeID, status, at,
	)
	if err != nil {
		return fmt.Errorf("update receiving status: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
