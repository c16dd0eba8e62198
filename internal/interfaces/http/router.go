package http

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stock-ledger/internal/application/ledger"
	"github.com/jhoicas/stock-ledger/internal/application/tasks"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Stores    ledger.StoreResolver
	Ledger    *ledger.Ledger
	History   *ledger.History
	Transfers *ledger.TransferOrchestrator
	Batches   *tasks.BatchService // nil = sin ingreso de lotes
	Health    func(ctx context.Context) error
	Service   string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	app.Get("/health", healthHandler(deps.Health, deps.Service))

	stores := app.Group("/api/stores/:storeID")
	h := NewStockHandler(deps.Stores, deps.Ledger, deps.History, deps.Transfers)

	// Lecturas (sin mutaciones)
	stores.Get("/products/:productID", h.GetProduct)
	stores.Get("/products/:productID/history", h.ProductHistory)
	stores.Get("/history", h.SourceHistory)
	stores.Get("/shipments/:shipmentID", h.GetShipment)

	if deps.Batches != nil {
		b := NewBatchHandler(deps.Stores, deps.Batches)
		stores.Post("/batches", b.Submit)
	}
}

func healthHandler(check func(ctx context.Context) error, service string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if check != nil {
			if err := check(c.UserContext()); err != nil {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "down", "service": service, "error": err.Error()})
			}
		}
		return c.JSON(fiber.Map{"status": "ok", "service": service})
	}
}
