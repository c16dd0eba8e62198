package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceKind origen de un movimiento de stock.
type SourceKind string

// Tipos de origen de movimiento.
const (
	SourceStocking         SourceKind = "stocking"
	SourceSale             SourceKind = "sale"
	SourceLoss             SourceKind = "loss"
	SourceTransferOut      SourceKind = "transfer_out"
	SourceTransferIn       SourceKind = "transfer_in"
	SourceTransferRollback SourceKind = "transfer_rollback"
	SourceDisassembly      SourceKind = "disassembly"
	SourceConsignment      SourceKind = "consignment"
	SourceManualAdjustment SourceKind = "manual_adjustment"
)

// Valid indica si el tipo de origen es conocido.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceStocking, SourceSale, SourceLoss, SourceTransferOut, SourceTransferIn,
		SourceTransferRollback, SourceDisassembly, SourceConsignment, SourceManualAdjustment:
		return true
	}
	return false
}

// StockHistoryEntry registro inmutable de una mutación de stock. Exactamente uno por mutación;
// nunca se actualiza ni se elimina.
type StockHistoryEntry struct {
	ID                string
	StoreID           string
	ProductID         string
	Delta             int // positivo entrada, negativo salida
	ResultingQuantity int
	UnitCost          decimal.Decimal // costo ponderado de las unidades movidas
	TotalCost         decimal.Decimal
	SourceKind        SourceKind
	SourceID          string
	IdempotencyKey    string
	Description       string
	Actor             string
	CreatedAt         time.Time
}
