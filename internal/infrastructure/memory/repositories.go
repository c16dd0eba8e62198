package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var (
	_ repository.ProductRepository      = (*productRepo)(nil)
	_ repository.CostLotRepository      = (*lotRepo)(nil)
	_ repository.StockHistoryRepository = (*historyRepo)(nil)
	_ repository.ShipmentRepository     = (*shipmentRepo)(nil)
	_ repository.ReceivingRepository    = (*receivingRepo)(nil)
	_ repository.BatchRepository        = (*batchRepo)(nil)
)

type productRepo struct {
	t       *tx
	storeID string
}

func (r *productRepo) Create(_ context.Context, p *entity.Product) error {
	if _, ok := r.t.st.products[p.ID]; ok {
		return domain.ErrDuplicate
	}
	for _, other := range r.t.st.products {
		if other.StoreID == r.storeID && other.SKU == p.SKU {
			return domain.ErrDuplicate
		}
	}
	p.StoreID = r.storeID
	r.t.st.products[p.ID] = *p
	return nil
}

func (r *productRepo) GetByID(_ context.Context, id string) (*entity.Product, error) {
	p, ok := r.t.st.products[id]
	if !ok || p.StoreID != r.storeID {
		return nil, nil
	}
	return &p, nil
}

// GetForUpdate no necesita bloqueo propio: la transacción en memoria ya es exclusiva.
func (r *productRepo) GetForUpdate(ctx context.Context, id string) (*entity.Product, error) {
	return r.GetByID(ctx, id)
}

func (r *productRepo) GetBySKU(_ context.Context, sku string) (*entity.Product, error) {
	for _, p := range r.t.st.products {
		if p.StoreID == r.storeID && p.SKU == sku {
			return &p, nil
		}
	}
	return nil, nil
}

func (r *productRepo) UpdateQuantity(_ context.Context, id string, quantity int) error {
	p, ok := r.t.st.products[id]
	if !ok || p.StoreID != r.storeID {
		return domain.ErrNotFound
	}
	p.Quantity = quantity
	r.t.st.products[id] = p
	return nil
}

func (r *productRepo) UpdateMetadata(_ context.Context, in *entity.Product) error {
	p, ok := r.t.st.products[in.ID]
	if !ok || p.StoreID != r.storeID {
		return domain.ErrNotFound
	}
	quantity := p.Quantity
	p = *in
	p.StoreID = r.storeID
	p.Quantity = quantity
	r.t.st.products[in.ID] = p
	return nil
}

type lotRepo struct {
	t       *tx
	storeID string
}

func (r *lotRepo) ListByProduct(_ context.Context, productID string) ([]entity.CostLot, error) {
	var out []entity.CostLot
	for _, l := range r.t.st.lots {
		if l.StoreID == r.storeID && l.ProductID == productID {
			out = append(out, l)
		}
	}
	slices.SortFunc(out, func(a, b entity.CostLot) int {
		if c := a.AcquiredAt.Compare(b.AcquiredAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})
	return out, nil
}

func (r *lotRepo) Create(_ context.Context, lot *entity.CostLot) error {
	if lot.Remaining <= 0 {
		return domain.ErrInvalidArgument
	}
	r.t.st.seq++
	lot.Seq = r.t.st.seq
	lot.StoreID = r.storeID
	r.t.st.lots[lot.ID] = *lot
	return nil
}

func (r *lotRepo) UpdateRemaining(_ context.Context, id string, remaining int) error {
	l, ok := r.t.st.lots[id]
	if !ok || l.StoreID != r.storeID {
		return domain.ErrNotFound
	}
	l.Remaining = remaining
	r.t.st.lots[id] = l
	return nil
}

func (r *lotRepo) Delete(_ context.Context, id string) error {
	if l, ok := r.t.st.lots[id]; ok && l.StoreID == r.storeID {
		delete(r.t.st.lots, id)
	}
	return nil
}

func (r *lotRepo) RecordConsumption(_ context.Context, c *entity.CostConsumption) error {
	c.StoreID = r.storeID
	r.t.st.consumptions = append(r.t.st.consumptions, *c)
	return nil
}

func (r *lotRepo) ListConsumptions(_ context.Context, productID string, kind entity.SourceKind, sourceID string) ([]entity.CostConsumption, error) {
	var out []entity.CostConsumption
	for _, c := range r.t.st.consumptions {
		if c.StoreID == r.storeID && c.ProductID == productID && c.SourceKind == kind && c.SourceID == sourceID {
			out = append(out, c)
		}
	}
	return out, nil
}

type historyRepo struct {
	t       *tx
	storeID string
}

func (r *historyRepo) Append(_ context.Context, e *entity.StockHistoryEntry) error {
	if e.IdempotencyKey != "" {
		for _, h := range r.t.st.history {
			if h.StoreID == r.storeID && h.IdempotencyKey == e.IdempotencyKey {
				return domain.ErrDuplicate
			}
		}
	}
	e.StoreID = r.storeID
	r.t.st.history = append(r.t.st.history, *e)
	return nil
}

func (r *historyRepo) GetByIdempotencyKey(_ context.Context, key string) (*entity.StockHistoryEntry, error) {
	for _, h := range r.t.st.history {
		if h.StoreID == r.storeID && h.IdempotencyKey == key {
			return &h, nil
		}
	}
	return nil, nil
}

func (r *historyRepo) ListByProduct(_ context.Context, productID string, from, to *time.Time, limit, offset int) ([]*entity.StockHistoryEntry, error) {
	var out []*entity.StockHistoryEntry
	// más reciente primero
	for i := len(r.t.st.history) - 1; i >= 0; i-- {
		h := r.t.st.history[i]
		if h.StoreID != r.storeID || h.ProductID != productID {
			continue
		}
		if from != nil && h.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && !h.CreatedAt.Before(*to) {
			continue
		}
		out = append(out, &h)
	}
	if offset >= len(out) {
		return []*entity.StockHistoryEntry{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *historyRepo) ListBySource(_ context.Context, kind entity.SourceKind, sourceID string) ([]*entity.StockHistoryEntry, error) {
	var out []*entity.StockHistoryEntry
	for _, h := range r.t.st.history {
		h := h
		if h.StoreID == r.storeID && h.SourceKind == kind && h.SourceID == sourceID {
			out = append(out, &h)
		}
	}
	return out, nil
}

type shipmentRepo struct {
	t       *tx
	storeID string
}

func (r *shipmentRepo) Create(_ context.Context, s *entity.Shipment) error {
	if _, ok := r.t.st.shipments[s.ID]; ok {
		return domain.ErrDuplicate
	}
	s.StoreID = r.storeID
	c := *s
	c.Lines = slices.Clone(s.Lines)
	r.t.st.shipments[s.ID] = c
	return nil
}

func (r *shipmentRepo) GetByID(_ context.Context, id string) (*entity.Shipment, error) {
	s, ok := r.t.st.shipments[id]
	if !ok || s.StoreID != r.storeID {
		return nil, nil
	}
	s.Lines = slices.Clone(s.Lines)
	return &s, nil
}

func (r *shipmentRepo) GetForUpdate(ctx context.Context, id string) (*entity.Shipment, error) {
	return r.GetByID(ctx, id)
}

func (r *shipmentRepo) UpdateStatus(_ context.Context, id string, status entity.ShipmentStatus, at time.Time) error {
	s, ok := r.t.st.shipments[id]
	if !ok || s.StoreID != r.storeID {
		return domain.ErrNotFound
	}
	s.Status = status
	if status == entity.ShipmentShipped {
		s.ShippedAt = &at
	} else if status.Terminal() {
		s.ClosedAt = &at
	}
	r.t.st.shipments[id] = s
	return nil
}

type receivingRepo struct {
	t       *tx
	storeID string
}

func (r *receivingRepo) Create(_ context.Context, rec *entity.Receiving) error {
	for _, other := range r.t.st.receivings {
		if other.ShipmentID == rec.ShipmentID {
			return domain.ErrDuplicate
		}
	}
	rec.StoreID = r.storeID
	r.t.st.receivings[rec.ID] = *rec
	return nil
}

func (r *receivingRepo) GetByShipment(_ context.Context, shipmentID string) (*entity.Receiving, error) {
	for _, rec := range r.t.st.receivings {
		if rec.StoreID == r.storeID && rec.ShipmentID == shipmentID {
			return &rec, nil
		}
	}
	return nil, nil
}

func (r *receivingRepo) UpdateStatus(_ context.Context, id string, status entity.ReceivingStatus, at time.Time) error {
	rec, ok := r.t.st.receivings[id]
	if !ok || rec.StoreID != r.storeID {
		return domain.ErrNotFound
	}
	rec.Status = status
	rec.UpdatedAt = at
	r.t.st.receivings[id] = rec
	return nil
}

type batchRepo struct {
	t       *tx
	storeID string
}

func (r *batchRepo) Create(_ context.Context, b *entity.Batch) error {
	if _, ok := r.t.st.batches[b.ID]; ok {
		return domain.ErrDuplicate
	}
	b.StoreID = r.storeID
	c := *b
	c.Lines = slices.Clone(b.Lines)
	r.t.st.batches[b.ID] = c
	return nil
}

func (r *batchRepo) GetForUpdate(_ context.Context, id string) (*entity.Batch, error) {
	b, ok := r.t.st.batches[id]
	if !ok || b.StoreID != r.storeID {
		return nil, nil
	}
	b.Lines = slices.Clone(b.Lines)
	return &b, nil
}

func (r *batchRepo) MarkArchived(_ context.Context, id string, at time.Time) error {
	b, ok := r.t.st.batches[id]
	if !ok || b.StoreID != r.storeID {
		return domain.ErrNotFound
	}
	b.Status = entity.BatchArchived
	b.ArchivedAt = &at
	r.t.st.batches[id] = b
	return nil
}
