package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// ProductResponse salida de un producto con su existencia actual.
type ProductResponse struct {
	ID                string           `json:"id"`
	StoreID           string           `json:"store_id"`
	SKU               string           `json:"sku"`
	Name              string           `json:"name"`
	Quantity          int              `json:"quantity"`
	InfiniteStock     bool             `json:"infinite_stock"`
	SellPriceOverride *decimal.Decimal `json:"sell_price_override,omitempty"`
	BuyPriceOverride  *decimal.Decimal `json:"buy_price_override,omitempty"`
	Disabled          bool             `json:"disabled"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// FromProduct convierte la entidad en respuesta.
func FromProduct(p *entity.Product) ProductResponse {
	return ProductResponse{
		ID:                p.ID,
		StoreID:           p.StoreID,
		SKU:               p.SKU,
		Name:              p.Name,
		Quantity:          p.Quantity,
		InfiniteStock:     p.InfiniteStock,
		SellPriceOverride: p.SellPriceOverride,
		BuyPriceOverride:  p.BuyPriceOverride,
		Disabled:          p.Disabled,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

// HistoryEntryResponse una línea del historial de stock.
type HistoryEntryResponse struct {
	ID                string          `json:"id"`
	ProductID         string          `json:"product_id"`
	Delta             int             `json:"delta"`
	ResultingQuantity int             `json:"resulting_quantity"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	TotalCost         decimal.Decimal `json:"total_cost"`
	SourceKind        string          `json:"source_kind"`
	SourceID          string          `json:"source_id,omitempty"`
	Description       string          `json:"description,omitempty"`
	Actor             string          `json:"actor,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// HistoryListResponse página del historial, más reciente primero.
type HistoryListResponse struct {
	Items []HistoryEntryResponse `json:"items"`
	Page  PageResponse           `json:"page"`
}

// FromHistory convierte entradas del historial.
func FromHistory(entries []*entity.StockHistoryEntry) []HistoryEntryResponse {
	out := make([]HistoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntryResponse{
			ID:                e.ID,
			ProductID:         e.ProductID,
			Delta:             e.Delta,
			ResultingQuantity: e.ResultingQuantity,
			UnitCost:          e.UnitCost,
			TotalCost:         e.TotalCost,
			SourceKind:        string(e.SourceKind),
			SourceID:          e.SourceID,
			Description:       e.Description,
			Actor:             e.Actor,
			CreatedAt:         e.CreatedAt,
		})
	}
	return out
}

// ShipmentLineResponse línea de un traslado.
type ShipmentLineResponse struct {
	ProductID            string `json:"product_id"`
	DestinationProductID string `json:"destination_product_id"`
	Quantity             int    `json:"quantity"`
}

// ShipmentResponse traslado visto desde la tienda origen.
type ShipmentResponse struct {
	ID                 string                 `json:"id"`
	StoreID            string                 `json:"store_id"`
	DestinationStoreID string                 `json:"destination_store_id"`
	Status             string                 `json:"status"`
	Description        string                 `json:"description,omitempty"`
	Actor              string                 `json:"actor,omitempty"`
	Lines              []ShipmentLineResponse `json:"lines"`
	CreatedAt          time.Time              `json:"created_at"`
	ShippedAt          *time.Time             `json:"shipped_at,omitempty"`
	ClosedAt           *time.Time             `json:"closed_at,omitempty"`
}

// FromShipment convierte la entidad en respuesta.
func FromShipment(s *entity.Shipment) ShipmentResponse {
	lines := make([]ShipmentLineResponse, 0, len(s.Lines))
	for _, l := range s.Lines {
		lines = append(lines, ShipmentLineResponse(l))
	}
	return ShipmentResponse{
		ID:                 s.ID,
		StoreID:            s.StoreID,
		DestinationStoreID: s.DestinationStoreID,
		Status:             string(s.Status),
		Description:        s.Description,
		Actor:              s.Actor,
		Lines:              lines,
		CreatedAt:          s.CreatedAt,
		ShippedAt:          s.ShippedAt,
		ClosedAt:           s.ClosedAt,
	}
}

// SubmitBatchRequest entrada de un lote masivo (importación de compras o bajas).
type SubmitBatchRequest struct {
	Kind      string             `json:"kind"` // stocking | loss
	GroupKey  string             `json:"group_key"`
	OriginRef string             `json:"origin_ref"`
	Lines     []entity.BatchLine `json:"lines"`
}

// BatchResponse lote aceptado para procesamiento asíncrono.
type BatchResponse struct {
	ID        string    `json:"id"`
	StoreID   string    `json:"store_id"`
	Kind      string    `json:"kind"`
	GroupKey  string    `json:"group_key"`
	Status    string    `json:"status"`
	Lines     int       `json:"lines"`
	CreatedAt time.Time `json:"created_at"`
}

// FromBatch convierte la entidad en respuesta.
func FromBatch(b *entity.Batch) BatchResponse {
	return BatchResponse{
		ID:        b.ID,
		StoreID:   b.StoreID,
		Kind:      string(b.Kind),
		GroupKey:  b.GroupKey,
		Status:    string(b.Status),
		Lines:     len(b.Lines),
		CreatedAt: b.CreatedAt,
	}
}
