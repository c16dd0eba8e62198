package repository

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// ProductRepository define el puerto de persistencia para Product (DIP).
// Cada implementación está acotada a una tienda; GetByID devuelve nil, nil si no existe.
type ProductRepository interface {
	Create(ctx context.Context, product *entity.Product) error
	GetByID(ctx context.Context, id string) (*entity.Product, error)
	// GetForUpdate bloquea la fila del producto hasta el fin de la transacción (SELECT FOR UPDATE).
	GetForUpdate(ctx context.Context, id string) (*entity.Product, error)
	GetBySKU(ctx context.Context, sku string) (*entity.Product, error)
	// UpdateQuantity solo debe invocarse desde el ledger.
	UpdateQuantity(ctx context.Context, id string, quantity int) error
	// UpdateMetadata actualiza precios y flags; no toca Quantity.
	UpdateMetadata(ctx context.Context, product *entity.Product) error
}
