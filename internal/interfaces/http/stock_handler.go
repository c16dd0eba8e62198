package http

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/application/ledger"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// StockHandler expone lecturas de existencias, historial y traslados por tienda.
type StockHandler struct {
	stores    ledger.StoreResolver
	ledger    *ledger.Ledger
	history   *ledger.History
	transfers *ledger.TransferOrchestrator
}

// NewStockHandler construye el handler.
func NewStockHandler(stores ledger.StoreResolver, l *ledger.Ledger, h *ledger.History, t *ledger.TransferOrchestrator) *StockHandler {
	return &StockHandler{stores: stores, ledger: l, history: h, transfers: t}
}

// GetProduct godoc
// @Summary      Producto con su existencia actual
// @Tags         stock
// @Produce      json
// @Success      200  {object}  dto.ProductResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/stores/{storeID}/products/{productID} [get]
func (h *StockHandler) GetProduct(c *fiber.Ctx) error {
	sc, err := h.stores.ForStore(c.Params("storeID"))
	if err != nil {
		return respondError(c, err)
	}
	p, err := h.ledger.Product(c.UserContext(), sc, c.Params("productID"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.FromProduct(p))
}

// ProductHistory godoc
// @Summary      Historial de stock del producto (más reciente primero)
// @Tags         stock
// @Produce      json
// @Param        limit   query  int     false  "máximo 500, por defecto 50"
// @Param        offset  query  int     false  "desplazamiento"
// @Param        from    query  string  false  "RFC3339, inclusivo"
// @Param        to      query  string  false  "RFC3339, exclusivo"
// @Success      200  {object}  dto.HistoryListResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/stores/{storeID}/products/{productID}/history [get]
func (h *StockHandler) ProductHistory(c *fiber.Ctx) error {
	sc, err := h.stores.ForStore(c.Params("storeID"))
	if err != nil {
		return respondError(c, err)
	}
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_QUERY", Message: "limit/offset inválidos"})
	}
	q := ledger.HistoryQuery{Limit: page.Limit, Offset: page.Offset}
	if q.From, err = parseTime(c.Query("from")); err != nil {
		return respondError(c, err)
	}
	if q.To, err = parseTime(c.Query("to")); err != nil {
		return respondError(c, err)
	}

	entries, err := h.history.ListByProduct(c.UserContext(), sc, c.Params("productID"), q)
	if err != nil {
		return respondError(c, err)
	}
	limit := q.Limit
	if limit == 0 {
		limit = ledger.DefaultHistoryLimit
	}
	return c.JSON(dto.HistoryListResponse{
		Items: dto.FromHistory(entries),
		Page:  dto.PageResponse{Limit: min(limit, ledger.MaxHistoryLimit), Offset: q.Offset, Count: len(entries)},
	})
}

// SourceHistory godoc
// @Summary      Movimientos generados por un origen (venta, traslado, lote)
// @Tags         stock
// @Produce      json
// @Param        source_kind  query  string  true  "tipo de origen"
// @Param        source_id    query  string  true  "id del origen"
// @Success      200  {array}   dto.HistoryEntryResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/stores/{storeID}/history [get]
func (h *StockHandler) SourceHistory(c *fiber.Ctx) error {
	sc, err := h.stores.ForStore(c.Params("storeID"))
	if err != nil {
		return respondError(c, err)
	}
	kind := entity.SourceKind(c.Query("source_kind"))
	entries, err := h.history.ListBySource(c.UserContext(), sc, kind, c.Query("source_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.FromHistory(entries))
}

// GetShipment godoc
// @Summary      Traslado visto desde la tienda origen
// @Tags         transfers
// @Produce      json
// @Success      200  {object}  dto.ShipmentResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/stores/{storeID}/shipments/{shipmentID} [get]
func (h *StockHandler) GetShipment(c *fiber.Ctx) error {
	sc, err := h.stores.ForStore(c.Params("storeID"))
	if err != nil {
		return respondError(c, err)
	}
	s, err := h.transfers.Get(c.UserContext(), sc, c.Params("shipmentID"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.FromShipment(s))
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("%w: fecha %q no es RFC3339", domain.ErrInvalidArgument, s)
	}
	return &t, nil
}
