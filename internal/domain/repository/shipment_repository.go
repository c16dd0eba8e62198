package repository

import (
	"context"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// ShipmentRepository puerto de traslados (lado tienda origen). Las líneas se escriben una sola vez.
type ShipmentRepository interface {
	Create(ctx context.Context, shipment *entity.Shipment) error
	GetByID(ctx context.Context, id string) (*entity.Shipment, error)
	GetForUpdate(ctx context.Context, id string) (*entity.Shipment, error)
	UpdateStatus(ctx context.Context, id string, status entity.ShipmentStatus, at time.Time) error
}

// ReceivingRepository puerto de recepciones pendientes (lado tienda destino).
type ReceivingRepository interface {
	Create(ctx context.Context, r *entity.Receiving) error
	GetByShipment(ctx context.Context, shipmentID string) (*entity.Receiving, error)
	UpdateStatus(ctx context.Context, id string, status entity.ReceivingStatus, at time.Time) error
}
