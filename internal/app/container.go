package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/stock-ledger/internal/application/ledger"
	"github.com/jhoicas/stock-ledger/internal/application/tasks"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/kafka"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/postgres"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/queue"
	"github.com/jhoicas/stock-ledger/pkg/config"
	"github.com/jhoicas/stock-ledger/pkg/logger"
	"github.com/jhoicas/stock-ledger/pkg/telemetry"
)

// Container recursos compartidos por los binarios api y worker.
type Container struct {
	Config    *config.Config
	Log       *logger.Logger
	Pool      *pgxpool.Pool
	DB        *postgres.DB
	Coord     *ledger.Coordinator
	History   *ledger.History
	Ledger    *ledger.Ledger
	Transfers *ledger.TransferOrchestrator

	events            *kafka.StockEventPublisher
	telemetryShutdown telemetry.Shutdown
}

// NewContainer carga la configuración y construye logger, trazas, pool y servicios del ledger.
func NewContainer(ctx context.Context, service string) (*Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("cargar configuración: %w", err)
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel, Service: service})

	shutdown, err := telemetry.Setup(ctx, cfg.App.Name+"-"+service, cfg.Otel)
	if err != nil {
		// sin exportador se sigue propagando el contexto de traza
		log.Warn().Err(err).Msg("exportador OTLP no disponible")
		shutdown = func(context.Context) error { return nil }
	}

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("conexión a PostgreSQL: %w", err)
	}
	if cfg.DB.Migrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		log.Info().Msg("esquema aplicado")
	}

	c := &Container{Config: cfg, Log: log, Pool: pool, DB: postgres.NewDB(pool), telemetryShutdown: shutdown}

	notifiers := ledger.MultiNotifier{ledger.NewLogNotifier(log.Component("ledger"))}
	if cfg.Kafka.EventsTopic != "" {
		c.events = kafka.NewStockEventPublisher(kafka.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic), log.Component("events"))
		notifiers = append(notifiers, c.events)
	}

	c.Coord = ledger.NewCoordinator(ledger.CoordinatorConfig{
		Timeout:      cfg.Ledger.Timeout,
		BatchTimeout: cfg.Ledger.BatchTimeout,
	}, notifiers, log.Component("coordinator"))
	c.History = ledger.NewHistory(c.Coord)
	c.Ledger = ledger.NewLedger(c.Coord, c.History)
	c.Transfers = ledger.NewTransferOrchestrator(c.Coord, c.Ledger, c.DB, log.Component("transfers"))
	return c, nil
}

// BatchHandler handler de lotes masivos listo para suscribirse a una cola.
func (c *Container) BatchHandler() *tasks.BatchHandler {
	return tasks.NewBatchHandler(c.Coord, c.Ledger, c.DB, c.Log.Component("batches"))
}

// LocalQueue cola en proceso.
func (c *Container) LocalQueue() *queue.Local {
	return queue.NewLocal(queue.Config{
		ChunkSize: c.Config.Queue.ChunkSize,
		Workers:   c.Config.Queue.Workers,
	}, c.Log.Component("queue"), c.failureSink())
}

// KafkaQueue cola sobre Kafka. Sin consume solo publica (sin lectores del grupo).
func (c *Container) KafkaQueue(consume bool) *kafka.Queue {
	kc := kafka.Config{
		Brokers:   c.Config.Kafka.Brokers,
		TaskTopic: c.Config.Kafka.TaskTopic,
		GroupID:   c.Config.Kafka.GroupID,
		ChunkSize: c.Config.Queue.ChunkSize,
	}
	if consume {
		kc.Readers = max(c.Config.Kafka.Readers, 1)
	}
	return kafka.NewQueueFromConfig(kc, c.Log.Component("queue"), c.failureSink())
}

// failureSink registra los sobres fallidos. No hay reintento: el operador reenvía el lote.
func (c *Container) failureSink() tasks.FailureSink {
	log := c.Log.Component("tasks")
	return func(_ context.Context, env tasks.Envelope, err error) {
		log.Error().Err(err).
			Str("envelope_id", env.ID).
			Str("kind", env.Kind).
			Str("group_key", env.GroupKey).
			Int("chunk", env.ChunkIndex).
			Int("chunks", env.ChunkCount).
			Msg("tarea fallida")
	}
}

// Close libera publicador de eventos, pool y exportador de trazas.
func (c *Container) Close(ctx context.Context) error {
	var err error
	if c.events != nil {
		err = errors.Join(err, c.events.Close())
	}
	c.Pool.Close()
	return errors.Join(err, c.telemetryShutdown(ctx))
}
