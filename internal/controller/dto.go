package controller

import (
	"encoding/json"
	"time"

	"github.com/cassiomorais/possync/internal/domain/catalog"
	"github.com/cassiomorais/possync/internal/domain/transaction"
)

// --- Request DTOs ---
// These DTOs handle HTTP/JSON concerns (validation tags, wire-friendly types).
// Controllers convert these before calling into the queue and services.

// EnqueueTransactionRequest holds the input for queueing a sale. The payload
// is the complete checkout document; the sync layer never inspects it.
type EnqueueTransactionRequest struct {
	Payload json.RawMessage `json:"payload" validate:"required"`
}

// SetConnectivityRequest forces the connectivity state, overriding probing.
type SetConnectivityRequest struct {
	Online *bool `json:"online" validate:"required"`
}

// --- Response DTOs ---

// EnqueueTransactionResponse returns the client-generated local id.
type EnqueueTransactionResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// TransactionResponse represents a queued transaction in API responses.
type TransactionResponse struct {
	ID         string          `json:"id"`
	Timestamp  int64           `json:"timestamp"`
	Status     string          `json:"status"`
	RetryCount int             `json:"retryCount"`
	Payload    json.RawMessage `json:"payload"`
	Error      *string         `json:"error,omitempty"`
	Conflict   bool            `json:"conflict"`
	SyncedAt   *time.Time      `json:"syncedAt,omitempty"`
	ServerID   *string         `json:"serverId,omitempty"`
}

// CountResponse reports how many records an operation touched.
type CountResponse struct {
	Count int `json:"count"`
}

// QueueStatsResponse reports per-status queue depth.
type QueueStatsResponse struct {
	Pending int `json:"pending"`
	Syncing int `json:"syncing"`
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
}

// ProductResponse represents a cached product in API responses.
type ProductResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	SKU           string    `json:"sku"`
	Barcode       string    `json:"barcode,omitempty"`
	UnitPrice     float64   `json:"unitPrice"`
	MarkedPrice   float64   `json:"markedPrice"`
	CurrentStock  float64   `json:"currentStock"`
	ReorderLevel  float64   `json:"reorderLevel"`
	Unit          string    `json:"unit"`
	CategoryID    string    `json:"categoryId"`
	Category      string    `json:"category"`
	GSTRate       float64   `json:"gstRate"`
	ImageURL      string    `json:"imageUrl,omitempty"`
	HasLocalImage bool      `json:"hasLocalImage"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// CategoryResponse represents a cached category in API responses.
type CategoryResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ProductCount int    `json:"productCount"`
}

// ConnectivityResponse reports the current connectivity state.
type ConnectivityResponse struct {
	Online bool `json:"online"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

// FromTransaction converts a queued transaction to an API response.
func FromTransaction(t *transaction.PendingTransaction) *TransactionResponse {
	resp := &TransactionResponse{
		ID:         t.ID,
		Timestamp:  t.Timestamp,
		Status:     string(t.Status),
		RetryCount: t.RetryCount,
		Payload:    t.Payload,
		Conflict:   t.ConflictFlag,
		SyncedAt:   t.SyncedAt,
	}
	if t.Error != "" {
		e := t.Error
		resp.Error = &e
	}
	if t.ServerID != "" {
		sid := t.ServerID
		resp.ServerID = &sid
	}
	return resp
}

// FromProduct converts a cached product to an API response.
func FromProduct(p *catalog.Product) *ProductResponse {
	return &ProductResponse{
		ID:            p.ID,
		Name:          p.Name,
		SKU:           p.SKU,
		Barcode:       p.Barcode,
		UnitPrice:     p.UnitPrice,
		MarkedPrice:   p.MarkedPrice,
		CurrentStock:  p.CurrentStock,
		ReorderLevel:  p.ReorderLevel,
		Unit:          p.Unit,
		CategoryID:    p.CategoryID,
		Category:      p.CategoryName,
		GSTRate:       p.GSTRate,
		ImageURL:      p.ImageURL,
		HasLocalImage: p.HasLocalImage,
		UpdatedAt:     p.UpdatedAt,
	}
}

// FromCategory converts a cached category to an API response.
func FromCategory(c *catalog.Category) *CategoryResponse {
	return &CategoryResponse{
		ID:           c.ID,
		Name:         c.Name,
		ProductCount: c.ProductCount,
	}
}
