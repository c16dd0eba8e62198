package ledger

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// Repos repositorios de una tienda atados a la transacción en curso.
type Repos struct {
	Products   repository.ProductRepository
	Lots       repository.CostLotRepository
	History    repository.StockHistoryRepository
	Shipments  repository.ShipmentRepository
	Receivings repository.ReceivingRepository
	Batches    repository.BatchRepository
}

// StoreContext manejador transaccional de una tienda. Se inyecta en cada operación;
// no hay registro global de tiendas.
type StoreContext interface {
	StoreID() string
	// Transaction ejecuta fn con repos de esta tienda. Si ctx ya lleva una transacción abierta
	// sobre la misma base, fn corre dentro de ella (incluso si la abrió otra tienda).
	// Un error de fn descarta todas las escrituras y se devuelve sin modificar.
	Transaction(ctx context.Context, fn func(ctx context.Context, repos Repos) error) error
}

// StoreResolver construye el StoreContext de otra tienda (p. ej. destino de un traslado).
type StoreResolver interface {
	ForStore(storeID string) (StoreContext, error)
}

// Notifier recibe las entradas de historial ya confirmadas (capa de notificación en tiempo real).
type Notifier interface {
	MutationsCommitted(ctx context.Context, entries []*entity.StockHistoryEntry)
}

