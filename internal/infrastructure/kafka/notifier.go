package kafka

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/application/ledger"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

var _ ledger.Notifier = (*StockEventPublisher)(nil)

// StockEvent mutación confirmada anunciada en el tópico de eventos de stock.
type StockEvent struct {
	EntryID           string          `json:"entry_id"`
	StoreID           string          `json:"store_id"`
	ProductID         string          `json:"product_id"`
	Delta             int             `json:"delta"`
	ResultingQuantity int             `json:"resulting_quantity"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	SourceKind        string          `json:"source_kind"`
	SourceID          string          `json:"source_id"`
	CreatedAt         time.Time       `json:"created_at"`
}

// NewStockEvent convierte una entrada de historial.
func NewStockEvent(e *entity.StockHistoryEntry) StockEvent {
	return StockEvent{
		EntryID:           e.ID,
		StoreID:           e.StoreID,
		ProductID:         e.ProductID,
		Delta:             e.Delta,
		ResultingQuantity: e.ResultingQuantity,
		UnitCost:          e.UnitCost,
		SourceKind:        string(e.SourceKind),
		SourceID:          e.SourceID,
		CreatedAt:         e.CreatedAt,
	}
}

// StockEventPublisher publica las mutaciones confirmadas, con clave = producto.
// Los errores solo se registran: la transacción ya está confirmada.
type StockEventPublisher struct {
	producer Producer
	log      *logger.Logger
}

// NewStockEventPublisher construye el publicador.
func NewStockEventPublisher(producer Producer, log *logger.Logger) *StockEventPublisher {
	return &StockEventPublisher{producer: producer, log: log}
}

// MutationsCommitted implementa ledger.Notifier.
func (p *StockEventPublisher) MutationsCommitted(ctx context.Context, entries []*entity.StockHistoryEntry) {
	msgs := make([]kafkago.Message, 0, len(entries))
	for _, e := range entries {
		payload, err := json.Marshal(NewStockEvent(e))
		if err != nil {
			p.logError(err, e.ID)
			continue
		}
		msgs = append(msgs, kafkago.Message{Key: []byte(e.ProductID), Value: payload})
	}
	if len(msgs) == 0 {
		return
	}
	if err := p.producer.WriteMessages(ctx, msgs...); err != nil {
		p.logError(err, "")
	}
}

func (p *StockEventPublisher) logError(err error, entryID string) {
	if p.log == nil {
		return
	}
	p.log.Error().Err(err).Str("entry_id", entryID).Msg("publicar evento de stock")
}

// Close cierra el escritor.
func (p *StockEventPublisher) Close() error {
	return p.producer.Close()
}
