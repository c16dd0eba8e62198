package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/inventory"
)

// Ledger sistema de registro de la cantidad de cada producto y de su base de costo.
// Toda lectura y escritura de cantidad/lotes ocurre en la misma transacción (SELECT FOR UPDATE).
type Ledger struct {
	coord   *Coordinator
	history *History
	now     func() time.Time
}

// NewLedger construye el ledger.
func NewLedger(coord *Coordinator, history *History) *Ledger {
	return &Ledger{coord: coord, history: history, now: time.Now}
}

// CarriedLot unidades que vuelven a entrar con una base de costo ya conocida
// (recepción o reversión de traslados). AcquiredAt cero = momento de la entrada.
type CarriedLot struct {
	Count      int
	UnitCost   decimal.Decimal
	AcquiredAt time.Time
}

// CostInput información de costo de un incremento. Se usa el primer campo presente en este
// orden: Carried, Lots (con TotalCost opcional para completar), UnitCost, TotalCost.
type CostInput struct {
	TotalCost *decimal.Decimal
	UnitCost  *decimal.Decimal
	Lots      []inventory.LotSpec
	Carried   []CarriedLot
}

// IncreaseInput entrada de Increase.
type IncreaseInput struct {
	ProductID      string
	Count          int
	Cost           CostInput
	SourceKind     entity.SourceKind
	SourceID       string
	Description    string
	Actor          string
	IdempotencyKey string // opcional; repetir la clave devuelve la entrada ya registrada
}

// DecreaseInput entrada de Decrease.
type DecreaseInput struct {
	ProductID        string
	Count            int
	SourceKind       entity.SourceKind
	SourceID         string
	Description      string
	Actor            string
	SpecificUnitCost *decimal.Decimal // bajas con costo manual
	IdempotencyKey   string
}

// ProductPatch campos de metadatos. nil = sin cambio.
type ProductPatch struct {
	Name              *string
	SellPriceOverride *decimal.Decimal
	BuyPriceOverride  *decimal.Decimal
	ClearSellPrice    bool
	ClearBuyPrice     bool
	InfiniteStock     *bool
	Disabled          *bool
}

// NewProductInput alta de una variante en una tienda.
type NewProductInput struct {
	SKU           string
	Name          string
	InfiniteStock bool
}

type lotPlan struct {
	count      int
	unitCost   decimal.Decimal
	acquiredAt time.Time
}

func (in IncreaseInput) validate() error {
	if strings.TrimSpace(in.ProductID) == "" || !in.SourceKind.Valid() {
		return domain.ErrInvalidArgument
	}
	if in.Count <= 0 {
		return fmt.Errorf("%w: la cantidad debe ser mayor a cero", domain.ErrInvalidArgument)
	}
	return nil
}

// plan resuelve los lotes a crear a partir de la información de costo.
func (in IncreaseInput) plan() ([]lotPlan, error) {
	c := in.Cost
	switch {
	case len(c.Carried) > 0:
		plans := make([]lotPlan, 0, len(c.Carried))
		n := 0
		for _, cl := range c.Carried {
			if cl.Count <= 0 || cl.UnitCost.IsNegative() {
				return nil, domain.ErrInvalidArgument
			}
			n += cl.Count
			plans = append(plans, lotPlan{count: cl.Count, unitCost: cl.UnitCost, acquiredAt: cl.AcquiredAt})
		}
		if n != in.Count {
			return nil, fmt.Errorf("%w: los lotes trasladados suman %d, se esperaban %d", domain.ErrInvalidArgument, n, in.Count)
		}
		return plans, nil
	case len(c.Lots) > 0:
		drafts, err := inventory.FillLots(c.Lots, c.TotalCost)
		if err != nil {
			return nil, err
		}
		if inventory.TotalCount(drafts) != in.Count {
			return nil, fmt.Errorf("%w: los lotes no suman la cantidad", domain.ErrInvalidArgument)
		}
		return fromDrafts(drafts), nil
	case c.UnitCost != nil:
		if c.UnitCost.IsNegative() {
			return nil, domain.ErrInvalidArgument
		}
		return []lotPlan{{count: in.Count, unitCost: *c.UnitCost}}, nil
	case c.TotalCost != nil:
		drafts, err := inventory.GenerateLots(*c.TotalCost, in.Count)
		if err != nil {
			return nil, err
		}
		return fromDrafts(drafts), nil
	case in.SourceKind == entity.SourceConsignment:
		return []lotPlan{{count: in.Count, unitCost: decimal.Zero}}, nil
	}
	return nil, fmt.Errorf("%w: falta información de costo", domain.ErrInvalidArgument)
}

func fromDrafts(drafts []inventory.LotDraft) []lotPlan {
	plans := make([]lotPlan, 0, len(drafts))
	for _, d := range drafts {
		plans = append(plans, lotPlan{count: d.Count, unitCost: d.UnitCost})
	}
	return plans
}

func (in DecreaseInput) validate() error {
	if strings.TrimSpace(in.ProductID) == "" || !in.SourceKind.Valid() {
		return domain.ErrInvalidArgument
	}
	if in.Count <= 0 {
		return fmt.Errorf("%w: la cantidad debe ser mayor a cero", domain.ErrInvalidArgument)
	}
	if in.SpecificUnitCost != nil && in.SpecificUnitCost.IsNegative() {
		return domain.ErrInvalidArgument
	}
	return nil
}

// Increase agrega count unidades con su base de costo y registra una entrada de historial.
func (l *Ledger) Increase(ctx context.Context, sc StoreContext, in IncreaseInput) (*entity.StockHistoryEntry, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	plans, err := in.plan()
	if err != nil {
		return nil, err
	}
	return RunAtomic(ctx, l.coord, sc, RunOptions{}, func(ctx context.Context, r Repos) (*entity.StockHistoryEntry, error) {
		if prior, err := replay(ctx, r, in.IdempotencyKey); err != nil || prior != nil {
			return prior, err
		}
		p, err := lockProduct(ctx, r, in.ProductID)
		if err != nil {
			return nil, err
		}
		now := l.now()
		total := decimal.Zero
		for _, pl := range plans {
			total = total.Add(pl.unitCost.Mul(decimal.NewFromInt(int64(pl.count))))
			if !p.TracksLots() {
				continue
			}
			acquired := pl.acquiredAt
			if acquired.IsZero() {
				acquired = now
			}
			lot := &entity.CostLot{
				ID:         uuid.New().String(),
				StoreID:    sc.StoreID(),
				ProductID:  p.ID,
				Remaining:  pl.count,
				UnitCost:   pl.unitCost,
				AcquiredAt: acquired,
				SourceKind: in.SourceKind,
				SourceID:   in.SourceID,
			}
			if err := r.Lots.Create(ctx, lot); err != nil {
				return nil, err
			}
		}

		p.Quantity += in.Count
		if err := r.Products.UpdateQuantity(ctx, p.ID, p.Quantity); err != nil {
			return nil, err
		}
		entry := &entity.StockHistoryEntry{
			StoreID:           sc.StoreID(),
			ProductID:         p.ID,
			Delta:             in.Count,
			ResultingQuantity: p.Quantity,
			UnitCost:          inventory.WeightedUnitCost(total, in.Count),
			TotalCost:         total,
			SourceKind:        in.SourceKind,
			SourceID:          in.SourceID,
			IdempotencyKey:    in.IdempotencyKey,
			Description:       in.Description,
			Actor:             in.Actor,
			CreatedAt:         now,
		}
		if err := l.history.Record(ctx, r, entry); err != nil {
			return nil, err
		}
		return entry, nil
	})
}

// Decrease retira count unidades consumiendo lotes FIFO (o con el costo indicado) y registra
// una entrada de historial. Sin stock suficiente no cambia nada y devuelve ErrInsufficientStock.
func (l *Ledger) Decrease(ctx context.Context, sc StoreContext, in DecreaseInput) (*entity.StockHistoryEntry, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	return RunAtomic(ctx, l.coord, sc, RunOptions{}, func(ctx context.Context, r Repos) (*entity.StockHistoryEntry, error) {
		if prior, err := replay(ctx, r, in.IdempotencyKey); err != nil || prior != nil {
			return prior, err
		}
		p, err := lockProduct(ctx, r, in.ProductID)
		if err != nil {
			return nil, err
		}
		if p.TracksLots() && p.Quantity < in.Count {
			return nil, fmt.Errorf("%w: disponible %d, solicitado %d", domain.ErrInsufficientStock, p.Quantity, in.Count)
		}
		now := l.now()

		total := decimal.Zero
		if p.TracksLots() {
			cons, err := l.consume(ctx, sc, r, p, in, now)
			if err != nil {
				return nil, err
			}
			total = cons.TotalCost()
		}
		unit := inventory.WeightedUnitCost(total, in.Count)
		if in.SpecificUnitCost != nil {
			unit = *in.SpecificUnitCost
			total = unit.Mul(decimal.NewFromInt(int64(in.Count)))
		}

		p.Quantity -= in.Count
		if err := r.Products.UpdateQuantity(ctx, p.ID, p.Quantity); err != nil {
			return nil, err
		}
		entry := &entity.StockHistoryEntry{
			StoreID:           sc.StoreID(),
			ProductID:         p.ID,
			Delta:             -in.Count,
			ResultingQuantity: p.Quantity,
			UnitCost:          unit,
			TotalCost:         total,
			SourceKind:        in.SourceKind,
			SourceID:          in.SourceID,
			IdempotencyKey:    in.IdempotencyKey,
			Description:       in.Description,
			Actor:             in.Actor,
			CreatedAt:         now,
		}
		if err := l.history.Record(ctx, r, entry); err != nil {
			return nil, err
		}
		return entry, nil
	})
}

// consume drena los lotes del producto y guarda qué costos se consumieron.
func (l *Ledger) consume(ctx context.Context, sc StoreContext, r Repos, p *entity.Product, in DecreaseInput, now time.Time) (inventory.Consumption, error) {
	lots, err := r.Lots.ListByProduct(ctx, p.ID)
	if err != nil {
		return inventory.Consumption{}, err
	}
	var cons inventory.Consumption
	if in.SpecificUnitCost != nil {
		cons, err = inventory.ConsumePreferring(lots, in.Count, *in.SpecificUnitCost)
	} else {
		cons, err = inventory.ConsumeFIFO(lots, in.Count)
	}
	if err != nil {
		return inventory.Consumption{}, fmt.Errorf("producto %s: %w", p.ID, err)
	}
	for _, lot := range cons.Updated {
		if err := r.Lots.UpdateRemaining(ctx, lot.ID, lot.Remaining); err != nil {
			return inventory.Consumption{}, err
		}
	}
	for _, id := range cons.Emptied {
		if err := r.Lots.Delete(ctx, id); err != nil {
			return inventory.Consumption{}, err
		}
	}
	for _, d := range cons.Draws {
		err := r.Lots.RecordConsumption(ctx, &entity.CostConsumption{
			ID:         uuid.New().String(),
			StoreID:    sc.StoreID(),
			ProductID:  p.ID,
			SourceKind: in.SourceKind,
			SourceID:   in.SourceID,
			Quantity:   d.Quantity,
			UnitCost:   d.UnitCost,
			AcquiredAt: d.AcquiredAt,
			CreatedAt:  now,
		})
		if err != nil {
			return inventory.Consumption{}, err
		}
	}
	return cons, nil
}

// Update modifica metadatos del producto. No toca lotes ni genera historial.
// Un producto deshabilitado se puede actualizar (p. ej. para rehabilitarlo).
func (l *Ledger) Update(ctx context.Context, sc StoreContext, productID string, patch ProductPatch) (*entity.Product, error) {
	if strings.TrimSpace(productID) == "" {
		return nil, domain.ErrInvalidArgument
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, domain.ErrInvalidArgument
	}
	for _, d := range []*decimal.Decimal{patch.SellPriceOverride, patch.BuyPriceOverride} {
		if d != nil && d.IsNegative() {
			return nil, domain.ErrInvalidArgument
		}
	}
	return RunAtomic(ctx, l.coord, sc, RunOptions{}, func(ctx context.Context, r Repos) (*entity.Product, error) {
		p, err := r.Products.GetForUpdate(ctx, productID)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, domain.ErrNotFound
		}
		if patch.Name != nil {
			p.Name = strings.TrimSpace(*patch.Name)
		}
		switch {
		case patch.ClearSellPrice:
			p.SellPriceOverride = nil
		case patch.SellPriceOverride != nil:
			v := *patch.SellPriceOverride
			p.SellPriceOverride = &v
		}
		switch {
		case patch.ClearBuyPrice:
			p.BuyPriceOverride = nil
		case patch.BuyPriceOverride != nil:
			v := *patch.BuyPriceOverride
			p.BuyPriceOverride = &v
		}
		if patch.InfiniteStock != nil && *patch.InfiniteStock != p.InfiniteStock {
			// En ambos sentidos se parte de cero: suma(lotes) == cantidad debe valer al volver a finito.
			if err := checkEmptyForToggle(ctx, r, p); err != nil {
				return nil, err
			}
			p.InfiniteStock = *patch.InfiniteStock
		}
		if patch.Disabled != nil {
			p.Disabled = *patch.Disabled
		}
		p.UpdatedAt = l.now()
		if err := r.Products.UpdateMetadata(ctx, p); err != nil {
			return nil, err
		}
		return p, nil
	})
}

// CreateProduct da de alta una variante con cantidad 0.
func (l *Ledger) CreateProduct(ctx context.Context, sc StoreContext, in NewProductInput) (*entity.Product, error) {
	sku := strings.TrimSpace(in.SKU)
	if sku == "" || strings.TrimSpace(in.Name) == "" {
		return nil, domain.ErrInvalidArgument
	}
	return RunAtomic(ctx, l.coord, sc, RunOptions{}, func(ctx context.Context, r Repos) (*entity.Product, error) {
		return createProduct(ctx, r, sc.StoreID(), sku, in.Name, in.InfiniteStock, l.now())
	})
}

// Product devuelve un producto activo.
func (l *Ledger) Product(ctx context.Context, sc StoreContext, productID string) (*entity.Product, error) {
	return RunAtomic(ctx, l.coord, sc, RunOptions{}, func(ctx context.Context, r Repos) (*entity.Product, error) {
		p, err := r.Products.GetByID(ctx, productID)
		if err != nil {
			return nil, err
		}
		if p == nil || p.Disabled {
			return nil, domain.ErrNotFound
		}
		return p, nil
	})
}

func createProduct(ctx context.Context, r Repos, storeID, sku, name string, infinite bool, now time.Time) (*entity.Product, error) {
	existing, err := r.Products.GetBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrDuplicate
	}
	p := &entity.Product{
		ID:            uuid.New().String(),
		StoreID:       storeID,
		SKU:           sku,
		Name:          strings.TrimSpace(name),
		InfiniteStock: infinite,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := r.Products.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// lockProduct bloquea la fila del producto; desconocido o deshabilitado => ErrNotFound.
func lockProduct(ctx context.Context, r Repos, id string) (*entity.Product, error) {
	p, err := r.Products.GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil || p.Disabled {
		return nil, fmt.Errorf("producto %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

// checkEmptyForToggle exige cantidad 0 y ningún lote vivo para cambiar el modo de stock.
func checkEmptyForToggle(ctx context.Context, r Repos, p *entity.Product) error {
	if p.Quantity != 0 {
		return fmt.Errorf("%w: la cantidad debe ser 0 para cambiar el stock infinito (actual %d)", domain.ErrInvalidState, p.Quantity)
	}
	lots, err := r.Lots.ListByProduct(ctx, p.ID)
	if err != nil {
		return err
	}
	if len(lots) > 0 {
		return fmt.Errorf("%w: el producto conserva %d lotes de costo", domain.ErrInvalidState, len(lots))
	}
	return nil
}

func replay(ctx context.Context, r Repos, key string) (*entity.StockHistoryEntry, error) {
	if key == "" {
		return nil, nil
	}
	return r.History.GetByIdempotencyKey(ctx, key)
}
