package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/application/ledger"
	"github.com/jhoicas/stock-ledger/internal/application/tasks"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// BatchHandler recibe lotes masivos y los encola; la aplicación al ledger es asíncrona.
type BatchHandler struct {
	stores  ledger.StoreResolver
	batches *tasks.BatchService
}

// NewBatchHandler construye el handler.
func NewBatchHandler(stores ledger.StoreResolver, batches *tasks.BatchService) *BatchHandler {
	return &BatchHandler{stores: stores, batches: batches}
}

// Submit godoc
// @Summary      Encolar lote masivo (stocking | loss)
// @Tags         batches
// @Accept       json
// @Produce      json
// @Param        body  body  dto.SubmitBatchRequest  true  "kind, group_key, origin_ref, lines"
// @Success      202   {object}  dto.BatchResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      503   {object}  dto.ErrorResponse
// @Router       /api/stores/{storeID}/batches [post]
func (h *BatchHandler) Submit(c *fiber.Ctx) error {
	sc, err := h.stores.ForStore(c.Params("storeID"))
	if err != nil {
		return respondError(c, err)
	}
	var in dto.SubmitBatchRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	b, err := h.batches.Submit(c.UserContext(), sc, tasks.SubmitInput{
		Kind:      entity.BatchKind(in.Kind),
		GroupKey:  in.GroupKey,
		Lines:     in.Lines,
		OriginRef: in.OriginRef,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(dto.FromBatch(b))
}
