package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product representa una variante de producto con stock, acotada a una tienda.
// Quantity solo se modifica a través del ledger (Increase/Decrease), nunca directamente.
type Product struct {
	ID                string
	StoreID           string
	SKU               string // código único por tienda
	Name              string
	Quantity          int  // >= 0 salvo InfiniteStock
	InfiniteStock     bool // sin control de cantidad ni lotes de costo
	SellPriceOverride *decimal.Decimal
	BuyPriceOverride  *decimal.Decimal
	Disabled          bool // deshabilitado lógico; los productos no se borran
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TracksLots indica si el producto mantiene lotes de costo (invariante suma(lotes) == Quantity).
func (p *Product) TracksLots() bool {
	return !p.InfiniteStock
}
