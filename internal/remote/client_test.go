package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cassiomorais/possync/internal/config"
	domainErrors "github.com/cassiomorais/possync/internal/domain/errors"
	"github.com/cassiomorais/possync/internal/domain/transaction"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(
		config.RemoteConfig{
			BaseURL:                 server.URL,
			RequestTimeout:          5 * time.Second,
			HealthPath:              "/api/health",
			CircuitBreakerThreshold: 100,
			CircuitBreakerTimeout:   time.Second,
		},
		config.CatalogConfig{
			FetchRetries:    1,
			FetchRetryDelay: time.Millisecond,
		},
		zerolog.Nop(),
	)
}

// newDeadClient points at an address that refuses connections.
func newDeadClient(t *testing.T) *Client {
	t.Helper()
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	return NewClient(
		config.RemoteConfig{
			BaseURL:                 url,
			RequestTimeout:          time.Second,
			HealthPath:              "/api/health",
			CircuitBreakerThreshold: 100,
			CircuitBreakerTimeout:   time.Second,
		},
		config.CatalogConfig{FetchRetries: 1, FetchRetryDelay: time.Millisecond},
		zerolog.Nop(),
	)
}

func pendingTxn(id string) *transaction.PendingTransaction {
	return &transaction.PendingTransaction{
		ID:        id,
		Timestamp: 1756500000000,
		Status:    transaction.StatusPending,
		Payload:   json.RawMessage(`{"items":[{"sku":"A","qty":1}],"total":50}`),
	}
}

func TestSubmit_Success(t *testing.T) {
	var received map[string]any
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/pos/checkout", r.URL.Path)

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &received))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"transaction":   map[string]string{"id": "srv_abc"},
			"receiptNumber": "RCP-001",
		})
	}))

	result, err := client.Submit(context.Background(), pendingTxn("txn_1"))
	require.NoError(t, err)
	assert.Equal(t, "srv_abc", result.ServerID)

	// The payload travels whole, augmented with the local id and timestamp.
	assert.Equal(t, "txn_1", received["localId"])
	assert.EqualValues(t, 1756500000000, received["timestamp"])
	assert.Contains(t, received, "items")
	assert.Contains(t, received, "total")
}

func TestSubmit_FallsBackToReceiptNumber(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{"receiptNumber": "RCP-002"})
	}))

	result, err := client.Submit(context.Background(), pendingTxn("txn_1"))
	require.NoError(t, err)
	assert.Equal(t, "RCP-002", result.ServerID)
}

func TestSubmit_ConflictCarriesDetail(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{
			"error":        "duplicate transaction",
			"conflictData": map[string]string{"existingReceipt": "RCP-100"},
		})
	}))

	_, err := client.Submit(context.Background(), pendingTxn("txn_1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainErrors.ErrConflict))

	var conflictErr *domainErrors.ConflictError
	require.True(t, errors.As(err, &conflictErr))
	assert.JSONEq(t, `{"existingReceipt":"RCP-100"}`, string(conflictErr.Detail))
}

func TestSubmit_ServerErrorKeepsMessageVerbatim(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "stock service unavailable"})
	}))

	_, err := client.Submit(context.Background(), pendingTxn("txn_1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainErrors.ErrRemoteUnavailable))
	assert.Contains(t, err.Error(), "stock service unavailable")
	assert.Contains(t, err.Error(), "500")
}

func TestSubmit_TransportErrorWrapsRemoteUnavailable(t *testing.T) {
	client := newDeadClient(t)

	_, err := client.Submit(context.Background(), pendingTxn("txn_1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainErrors.ErrRemoteUnavailable))
}

func TestFetchProducts(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/pos/products/sync", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"products": []map[string]any{
				{"id": "p1", "name": "Basmati Rice", "sku": "RICE-01", "unitPrice": 120.0, "currentStock": 40.0, "categoryId": "c1", "category": "Grains", "imageUrl": "/images/p1.jpg"},
			},
		})
	}))

	products, err := client.FetchProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "p1", products[0].ID)
	assert.Equal(t, "Basmati Rice", products[0].Name)
	assert.Equal(t, 120.0, products[0].UnitPrice)
	assert.Equal(t, "/images/p1.jpg", products[0].ImageURL)
}

func TestFetchCategories(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/pos/categories", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"categories": []map[string]any{
				{"id": "c1", "name": "Grains", "productCount": 4},
			},
		})
	}))

	categories, err := client.FetchCategories(context.Background())
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.Equal(t, "Grains", categories[0].Name)
	assert.Equal(t, 4, categories[0].ProductCount)
}

func TestFetchImage_ResolvesRelativeURL(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/images/p1.jpg", r.URL.Path)
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("pngbytes"))
	}))

	data, mime, err := client.FetchImage(context.Background(), "/images/p1.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("pngbytes"), data)
	assert.Equal(t, "image/png", mime)
}

func TestFetchImage_DefaultsMimeType(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("rawbytes"))
	}))

	// The server sniffs a content type for raw bytes; either way the client
	// must hand back a usable mime type.
	_, mime, err := client.FetchImage(context.Background(), "images/p1.jpg")
	require.NoError(t, err)
	assert.NotEmpty(t, mime)
}

func TestPing(t *testing.T) {
	t.Run("any response is online", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodHead, r.Method)
			require.Equal(t, "/api/health", r.URL.Path)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))

		assert.NoError(t, client.Ping(context.Background()))
	})

	t.Run("transport failure is offline", func(t *testing.T) {
		client := newDeadClient(t)

		err := client.Ping(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, domainErrors.ErrOffline))
	})
}
