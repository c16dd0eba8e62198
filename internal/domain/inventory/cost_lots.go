package inventory

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// LotDraft lote a crear: Count unidades a UnitCost.
type LotDraft struct {
	Count    int
	UnitCost decimal.Decimal
}

// LotSpec lote pre-dividido de entrada. UnitCost nil = se completa con el costo no distribuido.
type LotSpec struct {
	Count    int
	UnitCost *decimal.Decimal
}

// GenerateLots reparte totalCost entre count unidades (servicio de dominio).
// Base = floor(total / count); el resto entero suma +1 a las primeras unidades y la fracción
// restante (si la hay) se concentra en la primera unidad. Las unidades se agrupan por costo.
// Mismo input => mismo resultado, porque alimenta auditoría y márgenes.
func GenerateLots(totalCost decimal.Decimal, count int) ([]LotDraft, error) {
	if count <= 0 || totalCost.IsNegative() {
		return nil, domain.ErrInvalidArgument
	}
	base, rem := totalCost.QuoRem(decimal.NewFromInt(int64(count)), 0)
	k := rem.Floor()
	frac := rem.Sub(k)
	plusOne := int(k.IntPart())

	var out []LotDraft
	one := decimal.NewFromInt(1)
	switch {
	case plusOne > 0 && frac.IsPositive():
		out = append(out, LotDraft{Count: 1, UnitCost: base.Add(one).Add(frac)})
		if plusOne > 1 {
			out = append(out, LotDraft{Count: plusOne - 1, UnitCost: base.Add(one)})
		}
	case plusOne > 0:
		out = append(out, LotDraft{Count: plusOne, UnitCost: base.Add(one)})
	case frac.IsPositive():
		out = append(out, LotDraft{Count: 1, UnitCost: base.Add(frac)})
		plusOne = 1 // la unidad con la fracción ya está emitida
	}
	if rest := count - plusOne; rest > 0 {
		out = append(out, LotDraft{Count: rest, UnitCost: base})
	}
	return out, nil
}

// FillLots completa lotes pre-divididos. Los lotes con costo explícito se conservan; el costo
// aún no distribuido (totalCost - explícitos) se divide en partes iguales (floor) entre las
// unidades sin costo, y el residuo final se concentra en una unidad del primer lote sin costo.
func FillLots(specs []LotSpec, totalCost *decimal.Decimal) ([]LotDraft, error) {
	if len(specs) == 0 {
		return nil, domain.ErrInvalidArgument
	}
	explicit := decimal.Zero
	unsetUnits := 0
	firstUnset := -1
	for i, s := range specs {
		if s.Count <= 0 {
			return nil, domain.ErrInvalidArgument
		}
		if s.UnitCost == nil {
			unsetUnits += s.Count
			if firstUnset < 0 {
				firstUnset = i
			}
			continue
		}
		if s.UnitCost.IsNegative() {
			return nil, domain.ErrInvalidArgument
		}
		explicit = explicit.Add(s.UnitCost.Mul(decimal.NewFromInt(int64(s.Count))))
	}

	out := make([]LotDraft, 0, len(specs)+1)
	if unsetUnits == 0 {
		for _, s := range specs {
			out = append(out, LotDraft{Count: s.Count, UnitCost: *s.UnitCost})
		}
		return out, nil
	}
	if totalCost == nil {
		return nil, fmt.Errorf("%w: faltan costos unitarios y no hay costo total", domain.ErrInvalidArgument)
	}
	undistributed := totalCost.Sub(explicit)
	if undistributed.IsNegative() {
		return nil, fmt.Errorf("%w: los costos explícitos superan el costo total", domain.ErrInvalidArgument)
	}
	base, residual := undistributed.QuoRem(decimal.NewFromInt(int64(unsetUnits)), 0)

	for i, s := range specs {
		switch {
		case s.UnitCost != nil:
			out = append(out, LotDraft{Count: s.Count, UnitCost: *s.UnitCost})
		case i == firstUnset && residual.IsPositive():
			out = append(out, LotDraft{Count: 1, UnitCost: base.Add(residual)})
			if s.Count > 1 {
				out = append(out, LotDraft{Count: s.Count - 1, UnitCost: base})
			}
		default:
			out = append(out, LotDraft{Count: s.Count, UnitCost: base})
		}
	}
	return out, nil
}

// TotalCount suma de unidades de los borradores.
func TotalCount(drafts []LotDraft) int {
	n := 0
	for _, d := range drafts {
		n += d.Count
	}
	return n
}

// Draw unidades tomadas de un lote durante un consumo.
type Draw struct {
	LotID      string
	Quantity   int
	UnitCost   decimal.Decimal
	AcquiredAt time.Time
}

// Consumption resultado de consumir lotes: qué se tomó y cómo quedan los lotes tocados.
type Consumption struct {
	Draws   []Draw
	Updated []entity.CostLot // lotes con Remaining reducido (> 0)
	Emptied []string         // IDs de lotes que llegaron a cero y deben eliminarse
}

// TotalCost costo total de las unidades consumidas.
func (c Consumption) TotalCost() decimal.Decimal {
	total := decimal.Zero
	for _, d := range c.Draws {
		total = total.Add(d.UnitCost.Mul(decimal.NewFromInt(int64(d.Quantity))))
	}
	return total
}

// Quantity unidades consumidas.
func (c Consumption) Quantity() int {
	n := 0
	for _, d := range c.Draws {
		n += d.Quantity
	}
	return n
}

// ConsumeFIFO consume count unidades de los lotes más antiguos primero (AcquiredAt, Seq).
// Si los lotes no alcanzan devuelve ErrAnomaly: con el invariante suma(lotes) == cantidad
// no debería ocurrir, y no se rellena con costo cero.
func ConsumeFIFO(lots []entity.CostLot, count int) (Consumption, error) {
	ordered := sortedFIFO(lots)
	var c Consumption
	need := drain(ordered, count, &c)
	if need > 0 {
		return Consumption{}, fmt.Errorf("%w: faltan %d unidades en lotes", domain.ErrAnomaly, need)
	}
	return c, nil
}

// ConsumePreferring consume count unidades solo de los lotes con el costo unitario indicado,
// más antiguos primero. Usado en bajas con costo manual: si no hay lotes a ese costo o no
// alcanzan devuelve ErrInvalidArgument y no consume nada.
func ConsumePreferring(lots []entity.CostLot, count int, unitCost decimal.Decimal) (Consumption, error) {
	var matching []entity.CostLot
	for _, l := range lots {
		if l.UnitCost.Equal(unitCost) {
			matching = append(matching, l)
		}
	}
	if len(matching) == 0 {
		return Consumption{}, fmt.Errorf("%w: no hay lotes con costo %s", domain.ErrInvalidArgument, unitCost)
	}
	var c Consumption
	if need := drain(sortedFIFO(matching), count, &c); need > 0 {
		return Consumption{}, fmt.Errorf("%w: faltan %d unidades con costo %s", domain.ErrInvalidArgument, need, unitCost)
	}
	return c, nil
}

// WeightedUnitCost costo promedio ponderado (total / unidades) redondeado a 2 decimales.
// NuevoCosto = suma(cantidad * costo) / suma(cantidad)
func WeightedUnitCost(total decimal.Decimal, units int) decimal.Decimal {
	if units <= 0 {
		return decimal.Zero
	}
	return total.DivRound(decimal.NewFromInt(int64(units)), 2)
}

func sortedFIFO(lots []entity.CostLot) []entity.CostLot {
	ordered := make([]entity.CostLot, len(lots))
	copy(ordered, lots)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].AcquiredAt.Equal(ordered[j].AcquiredAt) {
			return ordered[i].AcquiredAt.Before(ordered[j].AcquiredAt)
		}
		return ordered[i].Seq < ordered[j].Seq
	})
	return ordered
}

// drain consume de lots (ya ordenados) hasta need unidades; devuelve lo que falte.
func drain(lots []entity.CostLot, need int, c *Consumption) int {
	for _, lot := range lots {
		if need == 0 {
			break
		}
		if lot.Remaining <= 0 {
			c.Emptied = append(c.Emptied, lot.ID)
			continue
		}
		take := min(lot.Remaining, need)
		need -= take
		c.Draws = append(c.Draws, Draw{
			LotID:      lot.ID,
			Quantity:   take,
			UnitCost:   lot.UnitCost,
			AcquiredAt: lot.AcquiredAt,
		})
		lot.Remaining -= take
		if lot.Remaining == 0 {
			c.Emptied = append(c.Emptied, lot.ID)
		} else {
			c.Updated = append(c.Updated, lot)
		}
	}
	return need
}
