package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cassiomorais/possync/internal/config"
	domainErrors "github.com/cassiomorais/possync/internal/domain/errors"
	"github.com/cassiomorais/possync/internal/domain/transaction"
	"github.com/cassiomorais/possync/pkg/retry"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// response is a completed HTTP round trip. Any status code counts as a
// successful round trip for breaker purposes; only transport failures trip it.
type response struct {
	status      int
	body        []byte
	contentType string
}

// Client talks to the remote POS backend: transaction submission and the
// catalog read endpoints. A circuit breaker wraps all calls so a dead link
// fails fast instead of burning the per-request timeout on every record.
type Client struct {
	baseURL    string
	healthPath string
	httpClient *http.Client
	probe      *http.Client
	breaker    *gobreaker.CircuitBreaker[*response]
	retryCfg   retry.Config
	logger     zerolog.Logger
}

// NewClient creates a Client from remote and catalog configuration.
func NewClient(cfg config.RemoteConfig, catalogCfg config.CatalogConfig, logger zerolog.Logger) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		healthPath: cfg.HealthPath,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		probe:      &http.Client{Timeout: cfg.RequestTimeout},
		logger:     logger.With().Str("component", "remote").Logger(),
	}

	c.breaker = gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:    "pos-backend",
		Timeout: cfg.CircuitBreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.CircuitBreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	c.retryCfg = retry.Config{
		MaxAttempts:  catalogCfg.FetchRetries,
		InitialDelay: catalogCfg.FetchRetryDelay,
		MaxDelay:     10 * catalogCfg.FetchRetryDelay,
		OnRetry: func(n uint, err error) {
			c.logger.Warn().Uint("attempt", n).Err(err).Msg("Retrying catalog fetch")
		},
	}

	return c
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) (*response, error) {
	resp, err := c.breaker.Execute(func() (*response, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		httpResp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer httpResp.Body.Close()

		data, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return nil, err
		}
		return &response{
			status:      httpResp.StatusCode,
			body:        data,
			contentType: httpResp.Header.Get("Content-Type"),
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s: %v: %w", method, url, err, domainErrors.ErrRemoteUnavailable)
	}
	return resp, nil
}

// SubmitResult holds the server's acknowledgement of a submitted transaction.
type SubmitResult struct {
	ServerID string
}

type submitResponse struct {
	Transaction struct {
		ID string `json:"id"`
	} `json:"transaction"`
	ReceiptNumber string          `json:"receiptNumber"`
	Error         string          `json:"error"`
	ConflictData  json.RawMessage `json:"conflictData"`
}

// Submit sends a queued transaction to the checkout endpoint. The request
// carries the full opaque payload plus the client-generated id and original
// timestamp so the server can dedupe resubmissions. A 409 maps to a
// ConflictError (terminal, manual resolution); any other failure wraps
// ErrRemoteUnavailable with the server message kept verbatim.
func (c *Client) Submit(ctx context.Context, t *transaction.PendingTransaction) (*SubmitResult, error) {
	envelope := map[string]any{}
	if len(t.Payload) > 0 {
		if err := json.Unmarshal(t.Payload, &envelope); err != nil {
			return nil, fmt.Errorf("decode transaction payload: %w", err)
		}
	}
	envelope["localId"] = t.ID
	envelope["timestamp"] = t.Timestamp

	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encode submit request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/api/pos/checkout", body)
	if err != nil {
		return nil, err
	}

	var parsed submitResponse
	// A non-JSON error body is still a valid failure; keep it verbatim below.
	_ = json.Unmarshal(resp.body, &parsed)

	switch {
	case resp.status >= 200 && resp.status < 300:
		serverID := parsed.Transaction.ID
		if serverID == "" {
			serverID = parsed.ReceiptNumber
		}
		return &SubmitResult{ServerID: serverID}, nil

	case resp.status == http.StatusConflict:
		detail := parsed.ConflictData
		if len(detail) == 0 {
			detail = resp.body
		}
		return nil, domainErrors.NewConflictError(detail)

	default:
		msg := parsed.Error
		if msg == "" {
			msg = strings.TrimSpace(string(resp.body))
		}
		if msg == "" {
			msg = http.StatusText(resp.status)
		}
		return nil, fmt.Errorf("submit rejected (status %d): %s: %w",
			resp.status, msg, domainErrors.ErrRemoteUnavailable)
	}
}

// ProductData is the wire shape of a remote catalog product.
type ProductData struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	SKU          string  `json:"sku"`
	Barcode      string  `json:"barcode"`
	UnitPrice    float64 `json:"unitPrice"`
	MarkedPrice  float64 `json:"markedPrice"`
	CurrentStock float64 `json:"currentStock"`
	ReorderLevel float64 `json:"reorderLevel"`
	Unit         string  `json:"unit"`
	CategoryID   string  `json:"categoryId"`
	Category     string  `json:"category"`
	GSTRate      float64 `json:"gstRate"`
	ImageURL     string  `json:"imageUrl"`
}

// CategoryData is the wire shape of a remote catalog category.
type CategoryData struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ProductCount int    `json:"productCount"`
}

// FetchProducts returns the full remote product list.
func (c *Client) FetchProducts(ctx context.Context) ([]ProductData, error) {
	return retry.DoWithResult(ctx, c.retryCfg, func() ([]ProductData, error) {
		resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/api/pos/products/sync", nil)
		if err != nil {
			return nil, err
		}
		if resp.status != http.StatusOK {
			return nil, fmt.Errorf("fetch products (status %d): %w",
				resp.status, domainErrors.ErrRemoteUnavailable)
		}
		var parsed struct {
			Products []ProductData `json:"products"`
		}
		if err := json.Unmarshal(resp.body, &parsed); err != nil {
			return nil, fmt.Errorf("decode product list: %w", err)
		}
		return parsed.Products, nil
	})
}

// FetchCategories returns the full remote category list.
func (c *Client) FetchCategories(ctx context.Context) ([]CategoryData, error) {
	return retry.DoWithResult(ctx, c.retryCfg, func() ([]CategoryData, error) {
		resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/api/pos/categories", nil)
		if err != nil {
			return nil, err
		}
		if resp.status != http.StatusOK {
			return nil, fmt.Errorf("fetch categories (status %d): %w",
				resp.status, domainErrors.ErrRemoteUnavailable)
		}
		var parsed struct {
			Categories []CategoryData `json:"categories"`
		}
		if err := json.Unmarshal(resp.body, &parsed); err != nil {
			return nil, fmt.Errorf("decode category list: %w", err)
		}
		return parsed.Categories, nil
	})
}

// FetchImage downloads one product image. Relative references resolve against
// the backend base URL. Content type falls back to image/jpeg when the server
// does not send one.
func (c *Client) FetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	url := imageURL
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = c.baseURL + "/" + strings.TrimLeft(url, "/")
	}

	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	if resp.status != http.StatusOK {
		return nil, "", fmt.Errorf("fetch image (status %d): %w",
			resp.status, domainErrors.ErrRemoteUnavailable)
	}

	mime := resp.contentType
	if mime == "" {
		mime = "image/jpeg"
	}
	return resp.body, mime, nil
}

// Ping probes the backend health endpoint. Any HTTP response means the link
// is up; only transport failures count as offline. The probe bypasses the
// breaker so connectivity recovery is observed while the breaker is open.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+c.healthPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.probe.Do(req)
	if err != nil {
		return fmt.Errorf("probe: %v: %w", err, domainErrors.ErrOffline)
	}
	resp.Body.Close()
	return nil
}
