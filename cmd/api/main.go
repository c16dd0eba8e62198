package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jhoicas/stock-ledger/internal/app"
	"github.com/jhoicas/stock-ledger/internal/application/tasks"
	httpRouter "github.com/jhoicas/stock-ledger/internal/interfaces/http"
)

func main() {
	ctx := context.Background()
	c, err := app.NewContainer(ctx, "api")
	if err != nil {
		panic("iniciar aplicación: " + err.Error())
	}
	cfg, log := c.Config, c.Log
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("queue", cfg.Queue.Driver).
		Msg("iniciando api")

	// Con cola local los lotes se aplican en este mismo proceso; con Kafka los aplica cmd/worker.
	var (
		q          tasks.Queue
		closeQueue func(context.Context) error
	)
	switch cfg.Queue.Driver {
	case "kafka":
		kq := c.KafkaQueue(false)
		q, closeQueue = kq, func(context.Context) error { return kq.Close() }
	default:
		lq := c.LocalQueue()
		if err := c.BatchHandler().Register(lq); err != nil {
			log.Fatal().Err(err).Msg("registrar handler de lotes")
		}
		q, closeQueue = lq, lq.Close
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	httpRouter.Router(app, httpRouter.RouterDeps{
		Stores:    c.DB,
		Ledger:    c.Ledger,
		History:   c.History,
		Transfers: c.Transfers,
		Batches:   tasks.NewBatchService(c.Coord, q, log.Component("batches")),
		Health:    c.DB.Ping,
		Service:   cfg.App.Name,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Ledger.BatchTimeout+10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}
	if err := closeQueue(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("cierre de la cola")
	}
	if err := c.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("liberar recursos")
	}

	log.Info().Msg("aplicación detenida")
}
