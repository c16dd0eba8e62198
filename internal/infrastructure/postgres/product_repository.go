package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.ProductRepository = (*ProductRepo)(nil)

const productColumns = `id, store_id, sku, name, quantity, infinite_stock, sell_price_override, buy_price_override, disabled, created_at, updated_at`

// ProductRepo implementación del puerto ProductRepository sobre PostgreSQL (usable con pool o tx).
type ProductRepo struct {
	q       Querier
	storeID string
}

// NewProductRepository construye el adaptador de persistencia para productos de una tienda.
func NewProductRepository(q Querier, storeID string) *ProductRepo {
	return &ProductRepo{q: q, storeID: storeID}
}

// Create persiste un nuevo producto.
func (r *ProductRepo) Create(ctx context.Context, p *entity.Product) error {
	p.StoreID = r.storeID
	_, err := r.q.Exec(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.StoreID, p.SKU, p.Name, p.Quantity, p.InfiniteStock,
		p.SellPriceOverride, p.BuyPriceOverride, p.Disabled, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// GetByID obtiene un producto por ID.
func (r *ProductRepo) GetByID(ctx context.Context, id string) (*entity.Product, error) {
	return r.getOne(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 AND store_id = $2`, id)
}

// GetForUpdate obtiene el producto bloqueando su fila hasta el fin de la transacción.
func (r *ProductRepo) GetForUpdate(ctx context.Context, id string) (*entity.Product, error) {
	return r.getOne(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 AND store_id = $2 FOR UPDATE`, id)
}

// GetBySKU obtiene un producto por SKU dentro de la tienda.
func (r *ProductRepo) GetBySKU(ctx context.Context, sku string) (*entity.Product, error) {
	return r.getOne(ctx, `SELECT `+productColumns+` FROM products WHERE sku = $1 AND store_id = $2`, sku)
}

func (r *ProductRepo) getOne(ctx context.Context, query, arg string) (*entity.Product, error) {
	var p entity.Product
	err := r.q.QueryRow(ctx, query, arg, r.storeID).Scan(
		&p.ID, &p.StoreID, &p.SKU, &p.Name, &p.Quantity, &p.InfiniteStock,
		&p.SellPriceOverride, &p.BuyPriceOverride, &p.Disabled, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

// UpdateQuantity actualiza solo la cantidad (uso exclusivo del ledger).
func (r *ProductRepo) UpdateQuantity(ctx context.Context, id string, quantity int) error {
	cmd, err := r.q.Exec(ctx,
		`UPDATE products SET quantity = $3, updated_at = now() WHERE id = $1 AND store_id = $2`,
		id, r.storeID, quantity,
	)
	if err != nil {
		return fmt.Errorf("update product quantity: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateMetadata actualiza nombre, precios y flags. No permite modificar la cantidad.
func (r *ProductRepo) UpdateMetadata(ctx context.Context, p *entity.Product) error {
	cmd, err := r.q.Exec(ctx, `
		UPDATE products SET name = $3, infinite_stock = $4, sell_price_override = $5,
			buy_price_override = $6, disabled = $7, updated_at = $8
		WHERE id = $1 AND store_id = $2`,
		p.ID, r.storeID, p.Name, p.InfiniteStock, p.SellPriceOverride, p.BuyPriceOverride, p.Disabled, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
