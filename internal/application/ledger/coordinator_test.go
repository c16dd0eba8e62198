package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/internal/application/ledger"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

func TestCoordinator_ErrorDescartaTodo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, f.store, "A")
	f.stock(t, f.store, p.ID, 10, 100)
	before := f.snapshot(t, f.store)
	notified := f.notifier.count()

	boom := errors.New("boom")
	err := f.coord.Run(ctx, f.store, ledger.RunOptions{}, func(ctx context.Context, _ ledger.Repos) error {
		if _, err := f.ledger.Decrease(ctx, f.store, ledger.DecreaseInput{ProductID: p.ID, Count: 3, SourceKind: entity.SourceSale, SourceID: "s"}); err != nil {
			return err
		}
		return boom
	})
	assert.Same(t, boom, err)

	after := f.snapshot(t, f.store)
	assert.Equal(t, before.Products, after.Products)
	assert.Equal(t, before.Lots, after.Lots)
	assert.Len(t, after.History, len(before.History))
	assert.Equal(t, notified, f.notifier.count(), "sin commit no se notifica")
}

func TestCoordinator_AnidadasCompartenTransaccion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, f.store, "A")
	f.stock(t, f.store, p.ID, 10, 100)
	notified := f.notifier.count()

	entries, err := ledger.RunAtomic(ctx, f.coord, f.store, ledger.RunOptions{}, func(ctx context.Context, _ ledger.Repos) (int, error) {
		n := 0
		for i := 0; i < 3; i++ {
			if _, err := f.ledger.Decrease(ctx, f.store, ledger.DecreaseInput{ProductID: p.ID, Count: 1, SourceKind: entity.SourceSale, SourceID: "s"}); err != nil {
				return 0, err
			}
			n++
		}
		return n, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, entries)
	assert.Equal(t, 7, f.snapshot(t, f.store).Products[p.ID].Quantity)

	// Una sola notificación con las tres entradas, tras el commit externo.
	require.Equal(t, notified+1, f.notifier.count())
	assert.Len(t, f.notifier.batches[len(f.notifier.batches)-1], 3)
}

func TestCoordinator_TimeoutEsTransitorio(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fast := ledger.NewCoordinator(ledger.CoordinatorConfig{Timeout: 30 * time.Millisecond}, nil, nil)

	hold := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- f.coord.Run(ctx, f.store, ledger.RunOptions{Batch: true}, func(context.Context, ledger.Repos) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	err := fast.Run(ctx, f.store, ledger.RunOptions{}, func(context.Context, ledger.Repos) error { return nil })
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(hold)
	require.NoError(t, <-done)
}

func TestCoordinator_OtraTiendaSeUne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := f.db.Store("store-2")
	a := f.product(t, f.store, "A")
	b := f.product(t, other, "A")

	err := f.coord.Run(ctx, f.store, ledger.RunOptions{}, func(ctx context.Context, _ ledger.Repos) error {
		if _, err := f.ledger.Increase(ctx, f.store, ledger.IncreaseInput{
			ProductID: a.ID, Count: 2, Cost: ledger.CostInput{UnitCost: dec(10)}, SourceKind: entity.SourceStocking, SourceID: "x",
		}); err != nil {
			return err
		}
		if _, err := f.ledger.Increase(ctx, other, ledger.IncreaseInput{
			ProductID: b.ID, Count: 2, Cost: ledger.CostInput{UnitCost: dec(10)}, SourceKind: entity.SourceStocking, SourceID: "x",
		}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	assert.Equal(t, 0, f.snapshot(t, f.store).Products[a.ID].Quantity)
	assert.Equal(t, 0, f.snapshot(t, other).Products[b.ID].Quantity)
	assert.Empty(t, f.snapshot(t, other).History)
}
