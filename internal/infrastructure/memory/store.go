// Package memory implementa los repositorios del ledger en memoria. Cada DB serializa sus
// transacciones (equivale a un bloqueo de tabla) y descarta todas las escrituras ante un error.
package memory

import (
	"context"
	"fmt"
	"slices"

	"github.com/jhoicas/stock-ledger/internal/application/ledger"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

var (
	_ ledger.StoreContext  = (*Store)(nil)
	_ ledger.StoreResolver = (*DB)(nil)
)

type state struct {
	products     map[string]entity.Product
	lots         map[string]entity.CostLot
	consumptions []entity.CostConsumption
	history      []entity.StockHistoryEntry
	shipments    map[string]entity.Shipment
	receivings   map[string]entity.Receiving
	batches      map[string]entity.Batch
	seq          int64
}

func newState() *state {
	return &state{
		products:   map[string]entity.Product{},
		lots:       map[string]entity.CostLot{},
		shipments:  map[string]entity.Shipment{},
		receivings: map[string]entity.Receiving{},
		batches:    map[string]entity.Batch{},
	}
}

func (s *state) clone() *state {
	c := &state{
		products:     make(map[string]entity.Product, len(s.products)),
		lots:         make(map[string]entity.CostLot, len(s.lots)),
		consumptions: slices.Clone(s.consumptions),
		history:      slices.Clone(s.history),
		shipments:    make(map[string]entity.Shipment, len(s.shipments)),
		receivings:   make(map[string]entity.Receiving, len(s.receivings)),
		batches:      make(map[string]entity.Batch, len(s.batches)),
		seq:          s.seq,
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.lots {
		c.lots[k] = v
	}
	for k, v := range s.shipments {
		v.Lines = slices.Clone(v.Lines)
		c.shipments[k] = v
	}
	for k, v := range s.receivings {
		c.receivings[k] = v
	}
	for k, v := range s.batches {
		v.Lines = slices.Clone(v.Lines)
		c.batches[k] = v
	}
	return c
}

// DB base de datos en memoria compartida por todas las tiendas.
type DB struct {
	sem   chan struct{}
	state *state
}

// NewDB crea una base vacía.
func NewDB() *DB {
	return &DB{sem: make(chan struct{}, 1), state: newState()}
}

// Store devuelve el contexto transaccional de una tienda.
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

type tx struct {
	db *DB
	st *state
}

// Store contexto de una tienda sobre la DB en memoria.
type Store struct {
	db      *DB
	storeID string
}

// StoreID id de la tienda.
func (s *Store) StoreID() string { return s.storeID }

// Transaction ejecuta fn sobre una copia del estado y la confirma solo si fn no falla.
// Si ctx ya lleva una transacción de la misma DB, fn corre dentro de ella.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context, repos ledger.Repos) error) error {
	if t, ok := ctx.Value(txKey{}).(*tx); ok && t.db == s.db {
		return fn(ctx, s.repos(t))
	}

	select {
	case s.db.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.db.sem }()

	t := &tx{db: s.db, st: s.db.state.clone()}
	if err := fn(context.WithValue(ctx, txKey{}, t), s.repos(t)); err != nil {
		return err
	}
	// La transacción no se confirma si el plazo venció durante fn.
	if err := ctx.Err(); err != nil {
		return err
	}
	s.db.state = t.st
	return nil
}

func (s *Store) repos(t *tx) ledger.Repos {
	return ledger.Repos{
		Products:   &productRepo{t: t, storeID: s.storeID},
		Lots:       &lotRepo{t: t, storeID: s.storeID},
		History:    &historyRepo{t: t, storeID: s.storeID},
		Shipments:  &shipmentRepo{t: t, storeID: s.storeID},
		Receivings: &receivingRepo{t: t, storeID: s.storeID},
		Batches:    &batchRepo{t: t, storeID: s.storeID},
	}
}

// Snapshot lectura consistente fuera de transacción (tests y diagnósticos).
type Snapshot struct {
	Products map[string]entity.Product
	Lots     []entity.CostLot
	History  []entity.StockHistoryEntry
}

// Snapshot copia el estado confirmado de una tienda.
func (s *Store) Snapshot(ctx context.Context) (Snapshot, error) {
	select {
	case s.db.sem <- struct{}{}:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	defer func() { <-s.db.sem }()

	snap := Snapshot{Products: map[string]entity.Product{}}
	for id, p := range s.db.state.products {
		if p.StoreID == s.storeID {
			snap.Products[id] = p
		}
	}
	for _, l := range s.db.state.lots {
		if l.StoreID == s.storeID {
			snap.Lots = append(snap.Lots, l)
		}
	}
	slices.SortFunc(snap.Lots, func(a, b entity.CostLot) int { return int(a.Seq - b.Seq) })
	for _, h := range s.db.state.history {
		if h.StoreID == s.storeID {
			snap.History = append(snap.History, h)
		}
	}
	return snap, nil
}
