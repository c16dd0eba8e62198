package entity

import "time"

// ShipmentStatus estado del traslado entre tiendas.
type ShipmentStatus string

const (
	ShipmentDraft    ShipmentStatus = "DRAFT"
	ShipmentShipped  ShipmentStatus = "SHIPPED"
	ShipmentReceived ShipmentStatus = "RECEIVED"
	ShipmentRollback ShipmentStatus = "ROLLBACK"
)

// Terminal indica si el estado ya no admite transiciones.
func (s ShipmentStatus) Terminal() bool {
	return s == ShipmentReceived || s == ShipmentRollback
}

// Shipment traslado de stock desde StoreID hacia DestinationStoreID.
// Las líneas son inmutables; solo cambia Status.
type Shipment struct {
	ID                 string
	StoreID            string
	DestinationStoreID string
	Lines              []ShipmentLine
	Status             ShipmentStatus
	Description        string
	Actor              string
	CreatedAt          time.Time
	ShippedAt          *time.Time
	ClosedAt           *time.Time
}

// ShipmentLine línea del traslado. DestinationProductID se resuelve al crear el borrador.
type ShipmentLine struct {
	ProductID            string
	DestinationProductID string
	Quantity             int
}

// ReceivingStatus estado de la recepción pendiente en la tienda destino.
type ReceivingStatus string

const (
	ReceivingPending   ReceivingStatus = "PENDING"
	ReceivingReceived  ReceivingStatus = "RECEIVED"
	ReceivingCancelled ReceivingStatus = "CANCELLED"
)

// Receiving registro de recepción pendiente que el envío crea en la tienda destino.
type Receiving struct {
	ID         string
	StoreID    string
	ShipmentID string
	Status     ReceivingStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
