package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// BatchKind tipo de lote masivo.
type BatchKind string

const (
	BatchStocking BatchKind = "stocking" // incrementos (importación de compras)
	BatchLoss     BatchKind = "loss"     // decrementos (bajas masivas)
)

// BatchStatus estado del lote masivo.
type BatchStatus string

const (
	BatchPending  BatchStatus = "PENDING"
	BatchArchived BatchStatus = "ARCHIVED"
)

// Batch unidad de envío masivo: se consume una vez por el ledger y luego se archiva.
type Batch struct {
	ID         string
	StoreID    string
	Kind       BatchKind
	GroupKey   string
	Lines      []BatchLine
	OriginRef  string // p. ej. proveedor
	Status     BatchStatus
	CreatedAt  time.Time
	ArchivedAt *time.Time
}

// BatchLine línea del lote. TotalCost o UnitCost aplica a lotes de entrada.
type BatchLine struct {
	ProductID   string           `json:"product_id"`
	Count       int              `json:"count"`
	TotalCost   *decimal.Decimal `json:"total_cost,omitempty"`
	UnitCost    *decimal.Decimal `json:"unit_cost,omitempty"`
	Description string           `json:"description,omitempty"`
}
