package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/stock-ledger/internal/application/ledger"
	"github.com/jhoicas/stock-ledger/internal/domain"
)

var (
	_ ledger.StoreContext  = (*Store)(nil)
	_ ledger.StoreResolver = (*DB)(nil)
)

// DB base compartida por todas las tiendas.
type DB struct {
	pool *pgxpool.Pool
}

// NewDB construye la base sobre el pool.
func NewDB(pool *pgxpool.Pool) *DB {
	return &DB{pool: pool}
}

// Store contexto transaccional de una tienda.
func (db *DB) Store(storeID string) *Store {
	return &Store{db: db, storeID: storeID}
}

// ForStore implementa ledger.StoreResolver.
func (db *DB) ForStore(storeID string) (ledger.StoreContext, error) {
	if storeID == "" {
		return nil, fmt.Errorf("%w: tienda vacía", domain.ErrInvalidArgument)
	}
	return db.Store(storeID), nil
}

type txKey struct{}

type txState struct {
	db *DB
	tx pgx.Tx
}

// Store ejecuta callbacks con repositorios de una tienda atados a una transacción PostgreSQL.
type Store struct {
	db      *DB
	storeID string
}

// StoreID id de la tienda.
func (s *Store) StoreID() string { return s.storeID }

// Transaction inicia una transacción, ejecuta fn con repos atados a la tx y hace Commit o Rollback.
// Si ctx ya lleva una transacción de la misma base (de esta u otra tienda), fn corre dentro de ella.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context, repos ledger.Repos) error) error {
	if st, ok := ctx.Value(txKey{}).(*txState); ok && st.db == s.db {
		return fn(ctx, s.repos(st.tx))
	}

	tx, err := s.db.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify(fmt.Errorf("begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(context.WithValue(ctx, txKey{}, &txState{db: s.db, tx: tx}), s.repos(tx)); err != nil {
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

func (s *Store) repos(q Querier) ledger.Repos {
	return ledger.Repos{
		Products:   NewProductRepository(q, s.storeID),
		Lots:       NewCostLotRepository(q, s.storeID),
		History:    NewStockHistoryRepository(q, s.storeID),
		Shipments:  NewShipmentRepository(q, s.storeID),
		Receivings: NewReceivingRepository(q, s.storeID),
		Batches:    NewBatchRepository(q, s.storeID),
	}
}

// Ping verifica la conexión (health check).
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}
