// Package tasks define la cola asíncrona de tareas: publicación por grupos (groupKey) y
// suscripción por tipo de tarea. Mismo groupKey => orden de envío y un solo worker a la vez.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/stock-ledger/internal/domain"
)

// DefaultChunkSize ítems por sobre cuando no se configura.
const DefaultChunkSize = 100

// Envelope unidad de entrega de la cola: un trozo de los ítems publicados.
type Envelope struct {
	ID          string            `json:"id"`
	PublishID   string            `json:"publish_id"`
	Kind        string            `json:"kind"`
	GroupKey    string            `json:"group_key"`
	ChunkIndex  int               `json:"chunk_index"`
	ChunkCount  int               `json:"chunk_count"`
	Items       []json.RawMessage `json:"items"`
	PublishedAt time.Time         `json:"published_at"`
}

// Last indica si es el último trozo de la publicación.
func (e Envelope) Last() bool {
	return e.ChunkIndex == e.ChunkCount-1
}

// Handler procesa un sobre. La entrega es al-menos-una-vez: debe ser idempotente.
type Handler func(ctx context.Context, env Envelope) error

// FailureSink recibe los sobres cuyo handler falló. La cola no reintenta.
type FailureSink func(ctx context.Context, env Envelope, err error)

// Queue cola de tareas.
type Queue interface {
	Publish(ctx context.Context, kind string, items []any, groupKey string) error
	Subscribe(kind string, handler Handler) error
}

// Chunk serializa items y los reparte en sobres de a lo sumo size ítems.
func Chunk(kind string, items []any, groupKey string, size int, now time.Time) ([]Envelope, error) {
	if strings.TrimSpace(kind) == "" || strings.TrimSpace(groupKey) == "" || len(items) == 0 {
		return nil, domain.ErrInvalidArgument
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	raw := make([]json.RawMessage, 0, len(items))
	for i, it := range items {
		b, err := json.Marshal(it)
		if err != nil {
			return nil, fmt.Errorf("serializar ítem %d: %w", i, err)
		}
		raw = append(raw, b)
	}

	publishID := uuid.New().String()
	count := (len(raw) + size - 1) / size
	out := make([]Envelope, 0, count)
	for i := 0; i < count; i++ {
		end := min((i+1)*size, len(raw))
		out = append(out, Envelope{
			ID:          uuid.New().String(),
			PublishID:   publishID,
			Kind:        kind,
			GroupKey:    groupKey,
			ChunkIndex:  i,
			ChunkCount:  count,
			Items:       raw[i*size : end],
			PublishedAt: now,
		})
	}
	return out, nil
}
