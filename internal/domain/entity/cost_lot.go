package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// CostLot es un lote de adquisición: unidades que comparten un mismo costo unitario.
// Se crea en los incrementos y se consume (FIFO) en los decrementos; se elimina al llegar a cero.
type CostLot struct {
	ID         string
	StoreID    string
	ProductID  string
	Remaining  int
	UnitCost   decimal.Decimal
	AcquiredAt time.Time
	Seq        int64 // desempate estable del orden FIFO (asignado por el repositorio)
	SourceKind SourceKind
	SourceID   string
}

// Value costo total restante del lote.
func (l CostLot) Value() decimal.Decimal {
	return l.UnitCost.Mul(decimal.NewFromInt(int64(l.Remaining)))
}

// CostConsumption registra qué costos consumió un decremento, indexado por (producto, origen).
// Permite que las reversiones y recepciones de traslados restauren la base de costo exacta.
type CostConsumption struct {
	ID         string
	StoreID    string
	ProductID  string
	SourceKind SourceKind
	SourceID   string
	Quantity   int
	UnitCost   decimal.Decimal
	AcquiredAt time.Time // fecha de adquisición del lote consumido
	CreatedAt  time.Time
}
