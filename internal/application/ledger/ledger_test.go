package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/internal/application/ledger"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/inventory"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/memory"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

type recordingNotifier struct {
	mu      sync.Mutex
	batches [][]*entity.StockHistoryEntry
}

func (n *recordingNotifier) MutationsCommitted(_ context.Context, entries []*entity.StockHistoryEntry) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches = append(n.batches, entries)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.batches)
}

type fixture struct {
	db       *memory.DB
	store    *memory.Store
	coord    *ledger.Coordinator
	history  *ledger.History
	ledger   *ledger.Ledger
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := memory.NewDB()
	n := &recordingNotifier{}
	coord := ledger.NewCoordinator(ledger.CoordinatorConfig{}, n, nil)
	h := ledger.NewHistory(coord)
	return &fixture{
		db:       db,
		store:    db.Store("store-1"),
		coord:    coord,
		history:  h,
		ledger:   ledger.NewLedger(coord, h),
		notifier: n,
	}
}

func dec(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func (f *fixture) product(t *testing.T, sc ledger.StoreContext, sku string) *entity.Product {
	t.Helper()
	p, err := f.ledger.CreateProduct(context.Background(), sc, ledger.NewProductInput{SKU: sku, Name: "Producto " + sku})
	require.NoError(t, err)
	return p
}

func (f *fixture) stock(t *testing.T, sc ledger.StoreContext, productID string, count int, unitCost int64) {
	t.Helper()
	_, err := f.ledger.Increase(context.Background(), sc, ledger.IncreaseInput{
		ProductID:  productID,
		Count:      count,
		Cost:       ledger.CostInput{UnitCost: dec(unitCost)},
		SourceKind: entity.SourceStocking,
		SourceID:   "stocking-seed",
	})
	require.NoError(t, err)
}

func (f *fixture) snapshot(t *testing.T, s *memory.Store) memory.Snapshot {
	t.Helper()
	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	return snap
}

func lotsOf(snap memory.Snapshot, productID string) []entity.CostLot {
	var out []entity.CostLot
	for _, l := range snap.Lots {
		if l.ProductID == productID {
			out = append(out, l)
		}
	}
	return out
}

func lotSum(snap memory.Snapshot, productID string) int {
	n := 0
	for _, l := range lotsOf(snap, productID) {
		n += l.Remaining
	}
	return n
}

// ──────────────────────────────────────────────────────────────────────────────
// Increase / Decrease
// ──────────────────────────────────────────────────────────────────────────────

func TestLedger_BajaYAltaConCostoTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, f.store, "A")
	f.stock(t, f.store, p.ID, 10, 100)

	out, err := f.ledger.Decrease(ctx, f.store, ledger.DecreaseInput{
		ProductID: p.ID, Count: 4, SourceKind: entity.SourceSale, SourceID: "sale-1",
	})
	require.NoError(t, err)
	assert.Equal(t, -4, out.Delta)
	assert.Equal(t, 6, out.ResultingQuantity)
	assert.True(t, decimal.NewFromInt(100).Equal(out.UnitCost))
	assert.True(t, decimal.NewFromInt(400).Equal(out.TotalCost))

	snap := f.snapshot(t, f.store)
	assert.Equal(t, 6, snap.Products[p.ID].Quantity)
	lots := lotsOf(snap, p.ID)
	require.Len(t, lots, 1)
	assert.Equal(t, 6, lots[0].Remaining)

	in, err := f.ledger.Increase(ctx, f.store, ledger.IncreaseInput{
		ProductID:  p.ID,
		Count:      5,
		Cost:       ledger.CostInput{TotalCost: dec(600)},
		SourceKind: entity.SourceStocking,
		SourceID:   "po-2",
	})
	require.NoError(t, err)
	assert.Equal(t, 5, in.Delta)
	assert.Equal(t, 11, in.ResultingQuantity)

	snap = f.snapshot(t, f.store)
	assert.Equal(t, 11, snap.Products[p.ID].Quantity)
	lots = lotsOf(snap, p.ID)
	require.Len(t, lots, 2)
	assert.Equal(t, 5, lots[1].Remaining)
	assert.True(t, decimal.NewFromInt(120).Equal(lots[1].UnitCost))
}

func TestLedger_StockInsuficienteNoCambiaNada(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, f.store, "A")
	f.stock(t, f.store, p.ID, 3, 50)
	before := f.snapshot(t, f.store)

	_, err := f.ledger.Decrease(context.Background(), f.store, ledger.DecreaseInput{
		ProductID: p.ID, Count: 4, SourceKind: entity.SourceLoss, SourceID: "loss-1",
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	after := f.snapshot(t, f.store)
	assert.Equal(t, before.Products, after.Products)
	assert.Equal(t, before.Lots, after.Lots)
	assert.Len(t, after.History, len(before.History))
}

func TestLedger_DosEntradasDeHistorial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, f.store, "A")
	f.stock(t, f.store, p.ID, 4, 80)
	f.stock(t, f.store, p.ID, 4, 100)

	_, err := f.ledger.Decrease(ctx, f.store, ledger.DecreaseInput{ProductID: p.ID, Count: 2, SourceKind: entity.SourceSale, SourceID: "s"})
	require.NoError(t, err)
	_, err = f.ledger.Increase(ctx, f.store, ledger.IncreaseInput{
		ProductID: p.ID, Count: 2, Cost: ledger.CostInput{UnitCost: dec(100)}, SourceKind: entity.SourceStocking, SourceID: "r",
	})
	require.NoError(t, err)

	snap := f.snapshot(t, f.store)
	assert.Equal(t, 8, snap.Products[p.ID].Quantity)
	assert.Len(t, snap.History, 4)
	// FIFO consumió el lote más antiguo (80), la reposición entra a 100.
	lots := lotsOf(snap, p.ID)
	require.Len(t, lots, 3)
	assert.Equal(t, 2, lots[0].Remaining)
	assert.True(t, decimal.NewFromInt(80).Equal(lots[0].UnitCost))
}

func TestLedger_SumaLotesIgualCantidad(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, f.store, "A")

	steps := []int{+7, -3, +5, -6, -2, +10, -1, -9, +3}
	for i, s := range steps {
		var err error
		if s > 0 {
			_, err = f.ledger.Increase(ctx, f.store, ledger.IncreaseInput{
				ProductID: p.ID, Count: s, Cost: ledger.CostInput{TotalCost: dec(int64(s*37 + i))},
				SourceKind: entity.SourceStocking, SourceID: "po",
			})
		} else {
			_, err = f.ledger.Decrease(ctx, f.store, ledger.DecreaseInput{
				ProductID: p.ID, Count: -s, SourceKind: entity.SourceSale, SourceID: "sale",
			})
		}
		require.NoError(t, err, "paso %d", i)
		snap := f.snapshot(t, f.store)
		assert.Equal(t, snap.Products[p.ID].Quantity, lotSum(snap, p.ID), "paso %d", i)
	}
}

func TestLedger_ConcurrenciaNoSobrevende(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, f.store, "A")
	f.stock(t, f.store, p.ID, 7, 10)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.ledger.Decrease(context.Background(), f.store, ledger.DecreaseInput{
				ProductID: p.ID, Count: 5, SourceKind: entity.SourceSale, SourceID: "sale",
			})
		}(i)
	}
	wg.Wait()

	ok, insufficient := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrInsufficientStock):
			insufficient++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, insufficient)
	snap := f.snapshot(t, f.store)
	assert.Equal(t, 2, snap.Products[p.ID].Quantity)
	assert.Equal(t, 2, lotSum(snap, p.ID))
}

func TestLedger_CostoEspecificoConsumeSoloEsosLotes(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, f.store, "A")
	f.stock(t, f.store, p.ID, 3, 50)
	f.stock(t, f.store, p.ID, 3, 90)

	out, err := f.ledger.Decrease(context.Background(), f.store, ledger.DecreaseInput{
		ProductID: p.ID, Count: 2, SourceKind: entity.SourceLoss, SourceID: "loss",
		SpecificUnitCost: dec(90),
	})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(90).Equal(out.UnitCost))
	assert.True(t, decimal.NewFromInt(180).Equal(out.TotalCost))

	lots := lotsOf(f.snapshot(t, f.store), p.ID)
	require.Len(t, lots, 2)
	assert.Equal(t, 3, lots[0].Remaining)
	assert.Equal(t, 1, lots[1].Remaining)
}

func TestLedger_CostoEspecificoSinLotesNoCambiaNada(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, f.store, "A")
	f.stock(t, f.store, p.ID, 10, 100)
	f.stock(t, f.store, p.ID, 2, 90)
	before := f.snapshot(t, f.store)

	_, err := f.ledger.Decrease(ctx, f.store, ledger.DecreaseInput{
		ProductID: p.ID, Count: 4, SourceKind: entity.SourceLoss, SourceID: "baja", SpecificUnitCost: dec(7),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	// hay 2 unidades a 90: no se completan con las de 100
	_, err = f.ledger.Decrease(ctx, f.store, ledger.DecreaseInput{
		ProductID: p.ID, Count: 3, SourceKind: entity.SourceLoss, SourceID: "baja", SpecificUnitCost: dec(90),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	after := f.snapshot(t, f.store)
	assert.Equal(t, before.Products[p.ID].Quantity, after.Products[p.ID].Quantity)
	assert.Equal(t, before.Lots, after.Lots)
	assert.Len(t, after.History, len(before.History))
}

func TestLedger_FaltanteFIFOEsAnomaliaYRevierte(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, f.store, "A")
	f.stock(t, f.store, p.ID, 5, 100)

	// Descuadre sembrado directamente en los repositorios: cantidad 5, lotes 1.
	err := f.store.Transaction(ctx, func(ctx context.Context, r ledger.Repos) error {
		lots, err := r.Lots.ListByProduct(ctx, p.ID)
		if err != nil {
			return err
		}
		return r.Lots.UpdateRemaining(ctx, lots[0].ID, 1)
	})
	require.NoError(t, err)
	before := f.snapshot(t, f.store)
	require.Equal(t, 5, before.Products[p.ID].Quantity)
	require.Equal(t, 1, lotSum(before, p.ID))
	notified := f.notifier.count()

	_, err = f.ledger.Decrease(ctx, f.store, ledger.DecreaseInput{ProductID: p.ID, Count: 3, SourceKind: entity.SourceSale, SourceID: "venta"})
	require.ErrorIs(t, err, domain.ErrAnomaly)

	after := f.snapshot(t, f.store)
	assert.Equal(t, 5, after.Products[p.ID].Quantity)
	assert.Equal(t, before.Lots, after.Lots)
	assert.Len(t, after.History, len(before.History))
	assert.Equal(t, notified, f.notifier.count(), "sin notificación tras el rollback")
}

func TestLedger_LotesPredivididosSeCompletan(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, f.store, "A")

	out, err := f.ledger.Increase(context.Background(), f.store, ledger.IncreaseInput{
		ProductID: p.ID,
		Count:     4,
		Cost: ledger.CostInput{
			TotalCost: dec(1000),
			Lots:      []inventory.LotSpec{{Count: 2, UnitCost: dec(200)}, {Count: 2}},
		},
		SourceKind: entity.SourceStocking,
		SourceID:   "po",
	})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1000).Equal(out.TotalCost))
	assert.True(t, decimal.NewFromInt(250).Equal(out.UnitCost))
	assert.Equal(t, 4, lotSum(f.snapshot(t, f.store), p.ID))
}

func TestLedger_StockInfinitoSinLotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.ledger.CreateProduct(ctx, f.store, ledger.NewProductInput{SKU: "SRV", Name: "Servicio", InfiniteStock: true})
	require.NoError(t, err)

	out, err := f.ledger.Decrease(ctx, f.store, ledger.DecreaseInput{ProductID: p.ID, Count: 3, SourceKind: entity.SourceSale, SourceID: "s"})
	require.NoError(t, err)
	assert.Equal(t, -3, out.ResultingQuantity)
	assert.Empty(t, lotsOf(f.snapshot(t, f.store), p.ID))
}

func TestLedger_ArgumentosInvalidos(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, f.store, "A")

	_, err := f.ledger.Increase(ctx, f.store, ledger.IncreaseInput{ProductID: p.ID, Count: 0, Cost: ledger.CostInput{UnitCost: dec(1)}, SourceKind: entity.SourceStocking})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = f.ledger.Increase(ctx, f.store, ledger.IncreaseInput{ProductID: p.ID, Count: 2, SourceKind: entity.SourceStocking})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument, "sin información de costo")

	_, err = f.ledger.Increase(ctx, f.store, ledger.IncreaseInput{ProductID: p.ID, Count: 2, SourceKind: entity.SourceConsignment, SourceID: "c"})
	assert.NoError(t, err, "la consignación admite costo cero")

	_, err = f.ledger.Decrease(ctx, f.store, ledger.DecreaseInput{ProductID: p.ID, Count: -1, SourceKind: entity.SourceSale})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = f.ledger.Decrease(ctx, f.store, ledger.DecreaseInput{ProductID: p.ID, Count: 1, SourceKind: "gift"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestLedger_ProductoInexistenteODeshabilitado(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.Decrease(ctx, f.store, ledger.DecreaseInput{ProductID: "missing", Count: 1, SourceKind: entity.SourceSale})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	p := f.product(t, f.store, "A")
	disabled := true
	_, err = f.ledger.Update(ctx, f.store, p.ID, ledger.ProductPatch{Disabled: &disabled})
	require.NoError(t, err)

	_, err = f.ledger.Increase(ctx, f.store, ledger.IncreaseInput{ProductID: p.ID, Count: 1, Cost: ledger.CostInput{UnitCost: dec(1)}, SourceKind: entity.SourceStocking})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Otra tienda no ve el producto.
	_, err = f.ledger.Product(ctx, f.db.Store("store-2"), p.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLedger_ClaveIdempotenteDevuelveEntrada(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, f.store, "A")
	f.stock(t, f.store, p.ID, 5, 10)

	in := ledger.DecreaseInput{ProductID: p.ID, Count: 2, SourceKind: entity.SourceSale, SourceID: "s", IdempotencyKey: "sale-s:1"}
	first, err := f.ledger.Decrease(ctx, f.store, in)
	require.NoError(t, err)
	second, err := f.ledger.Decrease(ctx, f.store, in)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	snap := f.snapshot(t, f.store)
	assert.Equal(t, 3, snap.Products[p.ID].Quantity)
	assert.Len(t, snap.History, 2)
}

func TestLedger_UpdateSoloMetadatos(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, f.store, "A")
	f.stock(t, f.store, p.ID, 5, 10)
	before := f.snapshot(t, f.store)

	name := "Nuevo nombre"
	updated, err := f.ledger.Update(ctx, f.store, p.ID, ledger.ProductPatch{Name: &name, SellPriceOverride: dec(25)})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	require.NotNil(t, updated.SellPriceOverride)
	assert.True(t, decimal.NewFromInt(25).Equal(*updated.SellPriceOverride))

	after := f.snapshot(t, f.store)
	assert.Equal(t, 5, after.Products[p.ID].Quantity)
	assert.Equal(t, before.Lots, after.Lots)
	assert.Len(t, after.History, len(before.History))

	// Con stock no se puede activar el stock infinito.
	on := true
	_, err = f.ledger.Update(ctx, f.store, p.ID, ledger.ProductPatch{InfiniteStock: &on})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.False(t, f.snapshot(t, f.store).Products[p.ID].InfiniteStock)
}

func TestLedger_StockInfinitoNoDejaLotesHuerfanos(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, f.store, "A")
	f.stock(t, f.store, p.ID, 10, 100)
	on, off := true, false

	_, err := f.ledger.Update(ctx, f.store, p.ID, ledger.ProductPatch{InfiniteStock: &on})
	require.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.ledger.Decrease(ctx, f.store, ledger.DecreaseInput{ProductID: p.ID, Count: 10, SourceKind: entity.SourceSale, SourceID: "venta"})
	require.NoError(t, err)
	snap := f.snapshot(t, f.store)
	require.Equal(t, 0, snap.Products[p.ID].Quantity)
	require.Equal(t, 0, lotSum(snap, p.ID))

	// Sin stock ni lotes el cambio se permite en ambos sentidos.
	_, err = f.ledger.Update(ctx, f.store, p.ID, ledger.ProductPatch{InfiniteStock: &on})
	require.NoError(t, err)
	_, err = f.ledger.Decrease(ctx, f.store, ledger.DecreaseInput{ProductID: p.ID, Count: 4, SourceKind: entity.SourceSale, SourceID: "venta-2"})
	require.NoError(t, err)

	// Con cantidad negativa no se vuelve a finito.
	_, err = f.ledger.Update(ctx, f.store, p.ID, ledger.ProductPatch{InfiniteStock: &off})
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.ledger.Increase(ctx, f.store, ledger.IncreaseInput{
		ProductID: p.ID, Count: 4, Cost: ledger.CostInput{UnitCost: dec(100)}, SourceKind: entity.SourceManualAdjustment, SourceID: "ajuste",
	})
	require.NoError(t, err)
	_, err = f.ledger.Update(ctx, f.store, p.ID, ledger.ProductPatch{InfiniteStock: &off})
	require.NoError(t, err)

	snap = f.snapshot(t, f.store)
	assert.False(t, snap.Products[p.ID].InfiniteStock)
	assert.Equal(t, snap.Products[p.ID].Quantity, lotSum(snap, p.ID))
}

func TestLedger_SKUDuplicado(t *testing.T) {
	f := newFixture(t)
	f.product(t, f.store, "A")
	_, err := f.ledger.CreateProduct(context.Background(), f.store, ledger.NewProductInput{SKU: "A", Name: "otro"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}
