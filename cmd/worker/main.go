package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jhoicas/stock-ledger/internal/app"
)

// worker consume los lotes masivos publicados en Kafka y los aplica al ledger.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := app.NewContainer(ctx, "worker")
	if err != nil {
		panic("iniciar worker: " + err.Error())
	}
	cfg, log := c.Config, c.Log
	if cfg.Queue.Driver != "kafka" {
		log.Fatal().Str("queue", cfg.Queue.Driver).Msg("el worker requiere QUEUE_DRIVER=kafka")
	}

	q := c.KafkaQueue(true)
	if err := c.BatchHandler().Register(q); err != nil {
		log.Fatal().Err(err).Msg("registrar handler de lotes")
	}

	log.Info().
		Str("topic", cfg.Kafka.TaskTopic).
		Str("group", cfg.Kafka.GroupID).
		Int("readers", max(cfg.Kafka.Readers, 1)).
		Msg("worker consumiendo")

	if err := q.Run(ctx); err != nil {
		log.Error().Err(err).Msg("consumo finalizado")
	}

	log.Info().Msg("señal de apagado recibida, cerrando worker...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := q.Close(); err != nil {
		log.Error().Err(err).Msg("cierre de la cola")
	}
	if err := c.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("liberar recursos")
	}
	log.Info().Msg("worker detenido")
}
