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
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

// TransferOrchestrator máquina de estados de traslados entre tiendas:
// DRAFT -> SHIPPED -> RECEIVED, o SHIPPED -> ROLLBACK. La tienda origen es dueña de la
// transacción; las escrituras en la tienda destino quedan anidadas dentro de ella.
type TransferOrchestrator struct {
	coord  *Coordinator
	ledger *Ledger
	stores StoreResolver
	log    *logger.Logger
	now    func() time.Time
}

// NewTransferOrchestrator construye el orquestador de traslados.
func NewTransferOrchestrator(coord *Coordinator, ledger *Ledger, stores StoreResolver, log *logger.Logger) *TransferOrchestrator {
	return &TransferOrchestrator{coord: coord, ledger: ledger, stores: stores, log: log, now: time.Now}
}

// DraftLine producto de la tienda origen y cantidad a trasladar.
type DraftLine struct {
	ProductID string
	Quantity  int
}

// DraftInput entrada de CreateDraft.
type DraftInput struct {
	DestinationStoreID string
	Lines              []DraftLine
	Description        string
	Actor              string
}

func (in DraftInput) validate(sourceStoreID string) error {
	dest := strings.TrimSpace(in.DestinationStoreID)
	if dest == "" || dest == sourceStoreID || len(in.Lines) == 0 {
		return domain.ErrInvalidArgument
	}
	seen := make(map[string]bool, len(in.Lines))
	for _, l := range in.Lines {
		if l.ProductID == "" || l.Quantity <= 0 || seen[l.ProductID] {
			return domain.ErrInvalidArgument
		}
		seen[l.ProductID] = true
	}
	return nil
}

// CreateDraft registra el traslado en DRAFT sin tocar stock. Cada línea se vincula al producto
// de la tienda destino con el mismo SKU, que se crea si no existe.
func (o *TransferOrchestrator) CreateDraft(ctx context.Context, src StoreContext, in DraftInput) (*entity.Shipment, error) {
	if err := in.validate(src.StoreID()); err != nil {
		return nil, err
	}
	dst, err := o.stores.ForStore(in.DestinationStoreID)
	if err != nil {
		return nil, err
	}
	return RunAtomic(ctx, o.coord, src, RunOptions{}, func(ctx context.Context, r Repos) (*entity.Shipment, error) {
		now := o.now()
		s := &entity.Shipment{
			ID:                 uuid.New().String(),
			StoreID:            src.StoreID(),
			DestinationStoreID: dst.StoreID(),
			Status:             entity.ShipmentDraft,
			Description:        in.Description,
			Actor:              in.Actor,
			CreatedAt:          now,
		}
		for _, line := range in.Lines {
			p, err := r.Products.GetByID(ctx, line.ProductID)
			if err != nil {
				return nil, err
			}
			if p == nil || p.Disabled {
				return nil, fmt.Errorf("producto %s: %w", line.ProductID, domain.ErrNotFound)
			}
			destID, err := o.destinationProduct(ctx, dst, p, now)
			if err != nil {
				return nil, err
			}
			s.Lines = append(s.Lines, entity.ShipmentLine{
				ProductID:            p.ID,
				DestinationProductID: destID,
				Quantity:             line.Quantity,
			})
		}
		if err := r.Shipments.Create(ctx, s); err != nil {
			return nil, err
		}
		return s, nil
	})
}

func (o *TransferOrchestrator) destinationProduct(ctx context.Context, dst StoreContext, p *entity.Product, now time.Time) (string, error) {
	var id string
	err := o.coord.Run(ctx, dst, RunOptions{}, func(ctx context.Context, dr Repos) error {
		dp, err := dr.Products.GetBySKU(ctx, p.SKU)
		if err != nil {
			return err
		}
		if dp == nil {
			dp, err = createProduct(ctx, dr, dst.StoreID(), p.SKU, p.Name, p.InfiniteStock, now)
			if err != nil {
				return err
			}
		}
		if dp.Disabled {
			return fmt.Errorf("producto destino %s: %w", p.SKU, domain.ErrNotFound)
		}
		id = dp.ID
		return nil
	})
	return id, err
}

// Get devuelve un traslado de la tienda origen.
func (o *TransferOrchestrator) Get(ctx context.Context, src StoreContext, id string) (*entity.Shipment, error) {
	return RunAtomic(ctx, o.coord, src, RunOptions{}, func(ctx context.Context, r Repos) (*entity.Shipment, error) {
		s, err := r.Shipments.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, domain.ErrNotFound
		}
		return s, nil
	})
}

// Ship DRAFT -> SHIPPED: descuenta el stock origen (transfer_out) y crea la recepción
// pendiente en la tienda destino.
func (o *TransferOrchestrator) Ship(ctx context.Context, src StoreContext, id string) (*entity.Shipment, error) {
	return o.transition(ctx, src, id, entity.ShipmentDraft, entity.ShipmentShipped,
		func(ctx context.Context, r Repos, dst StoreContext, s *entity.Shipment, now time.Time) error {
			for _, line := range s.Lines {
				_, err := o.ledger.Decrease(ctx, src, DecreaseInput{
					ProductID:   line.ProductID,
					Count:       line.Quantity,
					SourceKind:  entity.SourceTransferOut,
					SourceID:    s.ID,
					Description: s.Description,
					Actor:       s.Actor,
				})
				if err != nil {
					return err
				}
			}
			return o.coord.Run(ctx, dst, RunOptions{}, func(ctx context.Context, dr Repos) error {
				return dr.Receivings.Create(ctx, &entity.Receiving{
					ID:         uuid.New().String(),
					StoreID:    dst.StoreID(),
					ShipmentID: s.ID,
					Status:     entity.ReceivingPending,
					CreatedAt:  now,
					UpdatedAt:  now,
				})
			})
		})
}

// Receive SHIPPED -> RECEIVED: ingresa el stock en destino (transfer_in) con la base de costo
// consumida en origen y cierra la recepción.
func (o *TransferOrchestrator) Receive(ctx context.Context, src StoreContext, id string) (*entity.Shipment, error) {
	return o.transition(ctx, src, id, entity.ShipmentShipped, entity.ShipmentReceived,
		func(ctx context.Context, r Repos, dst StoreContext, s *entity.Shipment, now time.Time) error {
			for _, line := range s.Lines {
				cost, err := o.shippedCost(ctx, r, s, line, false)
				if err != nil {
					return err
				}
				_, err = o.ledger.Increase(ctx, dst, IncreaseInput{
					ProductID:   line.DestinationProductID,
					Count:       line.Quantity,
					Cost:        cost,
					SourceKind:  entity.SourceTransferIn,
					SourceID:    s.ID,
					Description: s.Description,
					Actor:       s.Actor,
				})
				if err != nil {
					return err
				}
			}
			return o.closeReceiving(ctx, dst, s.ID, entity.ReceivingReceived, now)
		})
}

// Rollback SHIPPED -> ROLLBACK: devuelve el stock a origen con una entrada compensatoria
// (transfer_rollback) restaurando los lotes consumidos, y cancela la recepción pendiente.
// La entrada transfer_out original no se modifica.
func (o *TransferOrchestrator) Rollback(ctx context.Context, src StoreContext, id string) (*entity.Shipment, error) {
	return o.transition(ctx, src, id, entity.ShipmentShipped, entity.ShipmentRollback,
		func(ctx context.Context, r Repos, dst StoreContext, s *entity.Shipment, now time.Time) error {
			for _, line := range s.Lines {
				cost, err := o.shippedCost(ctx, r, s, line, true)
				if err != nil {
					return err
				}
				_, err = o.ledger.Increase(ctx, src, IncreaseInput{
					ProductID:   line.ProductID,
					Count:       line.Quantity,
					Cost:        cost,
					SourceKind:  entity.SourceTransferRollback,
					SourceID:    s.ID,
					Description: s.Description,
					Actor:       s.Actor,
				})
				if err != nil {
					return err
				}
			}
			return o.closeReceiving(ctx, dst, s.ID, entity.ReceivingCancelled, now)
		})
}

type transitionFunc func(ctx context.Context, r Repos, dst StoreContext, s *entity.Shipment, now time.Time) error

// transition bloquea el traslado, valida el estado origen, construye el contexto de la tienda
// destino antes de tocar stock y ejecuta step dentro de la transacción de la tienda origen.
func (o *TransferOrchestrator) transition(ctx context.Context, src StoreContext, id string, from, to entity.ShipmentStatus, step transitionFunc) (*entity.Shipment, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrInvalidArgument
	}
	s, err := RunAtomic(ctx, o.coord, src, RunOptions{}, func(ctx context.Context, r Repos) (*entity.Shipment, error) {
		s, err := r.Shipments.GetForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, fmt.Errorf("traslado %s: %w", id, domain.ErrNotFound)
		}
		if s.Status != from {
			return nil, fmt.Errorf("%w: traslado %s en %s, no se puede pasar a %s", domain.ErrInvalidState, id, s.Status, to)
		}
		dst, err := o.stores.ForStore(s.DestinationStoreID)
		if err != nil {
			return nil, err
		}
		now := o.now()
		if err := step(ctx, r, dst, s, now); err != nil {
			return nil, err
		}
		if err := r.Shipments.UpdateStatus(ctx, s.ID, to, now); err != nil {
			return nil, err
		}
		s.Status = to
		if to == entity.ShipmentShipped {
			s.ShippedAt = &now
		} else {
			s.ClosedAt = &now
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	if o.log != nil {
		o.log.Info().Str("shipment_id", s.ID).Str("status", string(s.Status)).Msg("traslado actualizado")
	}
	return s, nil
}

// shippedCost base de costo de las unidades que salieron en transfer_out. keepAcquired conserva
// la fecha de adquisición original (reversión); si no, las unidades se adquieren al recibir.
func (o *TransferOrchestrator) shippedCost(ctx context.Context, r Repos, s *entity.Shipment, line entity.ShipmentLine, keepAcquired bool) (CostInput, error) {
	cons, err := r.Lots.ListConsumptions(ctx, line.ProductID, entity.SourceTransferOut, s.ID)
	if err != nil {
		return CostInput{}, err
	}
	if len(cons) > 0 {
		carried := make([]CarriedLot, 0, len(cons))
		for _, c := range cons {
			cl := CarriedLot{Count: c.Quantity, UnitCost: c.UnitCost}
			if keepAcquired {
				cl.AcquiredAt = c.AcquiredAt
			}
			carried = append(carried, cl)
		}
		return CostInput{Carried: carried}, nil
	}

	// Producto sin lotes (stock infinito): se usa el costo registrado en la salida.
	entries, err := r.History.ListBySource(ctx, entity.SourceTransferOut, s.ID)
	if err != nil {
		return CostInput{}, err
	}
	for _, e := range entries {
		if e.ProductID == line.ProductID {
			unit := e.UnitCost
			return CostInput{UnitCost: &unit}, nil
		}
	}
	zero := decimal.Zero
	return CostInput{UnitCost: &zero}, nil
}

func (o *TransferOrchestrator) closeReceiving(ctx context.Context, dst StoreContext, shipmentID string, status entity.ReceivingStatus, now time.Time) error {
	return o.coord.Run(ctx, dst, RunOptions{}, func(ctx context.Context, dr Repos) error {
		rec, err := dr.Receivings.GetByShipment(ctx, shipmentID)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("%w: recepción del traslado %s no encontrada", domain.ErrAnomaly, shipmentID)
		}
		if rec.Status != entity.ReceivingPending {
			return fmt.Errorf("%w: recepción %s en %s", domain.ErrInvalidState, rec.ID, rec.Status)
		}
		return dr.Receivings.UpdateStatus(ctx, rec.ID, status, now)
	})
}
