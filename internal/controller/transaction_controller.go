package controller

import (
	"net/http"

	domainErrors "github.com/cassiomorais/possync/internal/domain/errors"
	"github.com/cassiomorais/possync/internal/domain/transaction"
	"github.com/cassiomorais/possync/internal/queue"
	"github.com/go-chi/chi/v5"
)

// TransactionController handles the local transaction queue endpoints.
type TransactionController struct {
	queue *queue.Queue
}

// NewTransactionController creates a new TransactionController.
func NewTransactionController(q *queue.Queue) *TransactionController {
	return &TransactionController{queue: q}
}

// Enqueue handles POST /api/v1/transactions. The record is durable before the
// response is written; syncing happens in the background.
func (h *TransactionController) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueTransactionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	id, err := h.queue.Enqueue(r.Context(), req.Payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, EnqueueTransactionResponse{
		ID:     id,
		Status: string(transaction.StatusPending),
	})
}

// Get handles GET /api/v1/transactions/{id}
func (h *TransactionController) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.queue.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromTransaction(t))
}

// List handles GET /api/v1/transactions with an optional status filter.
func (h *TransactionController) List(w http.ResponseWriter, r *http.Request) {
	var (
		records []*transaction.PendingTransaction
		err     error
	)
	if s := r.URL.Query().Get("status"); s != "" {
		status := transaction.Status(s)
		if !status.Valid() {
			writeError(w, domainErrors.NewValidationError("status", "unknown status "+s))
			return
		}
		records, err = h.queue.ListByStatus(r.Context(), status)
	} else {
		records, err = h.queue.ListAll(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*TransactionResponse, 0, len(records))
	for _, t := range records {
		resp = append(resp, FromTransaction(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Stats handles GET /api/v1/transactions/stats
func (h *TransactionController) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.queue.Counts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, QueueStatsResponse{
		Pending: counts[transaction.StatusPending],
		Syncing: counts[transaction.StatusSyncing],
		Synced:  counts[transaction.StatusSynced],
		Failed:  counts[transaction.StatusFailed],
	})
}

// ResetFailed handles POST /api/v1/transactions/reset-failed. Failed records
// become retry-eligible again with a fresh retry budget.
func (h *TransactionController) ResetFailed(w http.ResponseWriter, r *http.Request) {
	n, err := h.queue.ResetFailed(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// PurgeSynced handles DELETE /api/v1/transactions/synced
func (h *TransactionController) PurgeSynced(w http.ResponseWriter, r *http.Request) {
	n, err := h.queue.PurgeSynced(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// PurgeFailed handles DELETE /api/v1/transactions/failed
func (h *TransactionController) PurgeFailed(w http.ResponseWriter, r *http.Request) {
	n, err := h.queue.PurgeFailed(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}
