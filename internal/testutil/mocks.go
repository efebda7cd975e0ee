package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/cassiomorais/possync/internal/domain/catalog"
	domainErrors "github.com/cassiomorais/possync/internal/domain/errors"
	"github.com/cassiomorais/possync/internal/domain/transaction"
	"github.com/cassiomorais/possync/internal/remote"
)

// --- Transaction Repository Mock ---

// MockTransactionRepository is an in-memory implementation of
// transaction.Repository. Set the Func fields to override individual methods.
type MockTransactionRepository struct {
	mu      sync.Mutex
	records map[string]*transaction.PendingTransaction

	InsertFunc       func(ctx context.Context, t *transaction.PendingTransaction) error
	GetFunc          func(ctx context.Context, id string) (*transaction.PendingTransaction, error)
	ListByStatusFunc func(ctx context.Context, status transaction.Status) ([]*transaction.PendingTransaction, error)
	UpdateFunc       func(ctx context.Context, id string, mutate func(*transaction.PendingTransaction) error) error
}

func NewMockTransactionRepository() *MockTransactionRepository {
	return &MockTransactionRepository{
		records: make(map[string]*transaction.PendingTransaction),
	}
}

func (m *MockTransactionRepository) Insert(ctx context.Context, t *transaction.PendingTransaction) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.records[t.ID] = &cp
	return nil
}

func (m *MockTransactionRepository) Get(ctx context.Context, id string) (*transaction.PendingTransaction, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.records[id]
	if !ok {
		return nil, domainErrors.ErrTransactionNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MockTransactionRepository) ListByStatus(ctx context.Context, status transaction.Status) ([]*transaction.PendingTransaction, error) {
	if m.ListByStatusFunc != nil {
		return m.ListByStatusFunc(ctx, status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*transaction.PendingTransaction
	for _, t := range m.records {
		if t.Status == status {
			cp := *t
			out = append(out, &cp)
		}
	}
	sortByTimestamp(out)
	return out, nil
}

func (m *MockTransactionRepository) ListAll(ctx context.Context) ([]*transaction.PendingTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*transaction.PendingTransaction, 0, len(m.records))
	for _, t := range m.records {
		cp := *t
		out = append(out, &cp)
	}
	sortByTimestamp(out)
	return out, nil
}

func (m *MockTransactionRepository) Update(ctx context.Context, id string, mutate func(*transaction.PendingTransaction) error) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, id, mutate)
	}
	return m.ApplyUpdate(ctx, id, mutate)
}

// ApplyUpdate runs the default in-memory update, bypassing UpdateFunc. Lets
// an UpdateFunc override fail selectively and delegate the rest.
func (m *MockTransactionRepository) ApplyUpdate(ctx context.Context, id string, mutate func(*transaction.PendingTransaction) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.records[id]
	if !ok {
		return domainErrors.ErrTransactionNotFound
	}
	cp := *t
	if err := mutate(&cp); err != nil {
		return err
	}
	m.records[id] = &cp
	return nil
}

func (m *MockTransactionRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return domainErrors.ErrTransactionNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *MockTransactionRepository) DeleteByStatus(ctx context.Context, status transaction.Status) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, t := range m.records {
		if t.Status == status {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

func (m *MockTransactionRepository) CountByStatus(ctx context.Context) (map[transaction.Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[transaction.Status]int{
		transaction.StatusPending: 0,
		transaction.StatusSyncing: 0,
		transaction.StatusSynced:  0,
		transaction.StatusFailed:  0,
	}
	for _, t := range m.records {
		counts[t.Status]++
	}
	return counts, nil
}

func sortByTimestamp(ts []*transaction.PendingTransaction) {
	sort.SliceStable(ts, func(i, j int) bool {
		return ts[i].Timestamp < ts[j].Timestamp
	})
}

// --- Submitter Mock ---

// MockSubmitter scripts per-transaction submit outcomes and records the order
// submissions arrive in.
type MockSubmitter struct {
	mu        sync.Mutex
	Submitted []string

	// Results maps transaction id to the outcome of each successive submit.
	// Once a transaction's result list is exhausted the last entry repeats.
	Results map[string][]SubmitOutcome

	SubmitFunc func(ctx context.Context, t *transaction.PendingTransaction) (*remote.SubmitResult, error)
}

// SubmitOutcome is one scripted response for a submit call.
type SubmitOutcome struct {
	Result *remote.SubmitResult
	Err    error
}

func NewMockSubmitter() *MockSubmitter {
	return &MockSubmitter{Results: make(map[string][]SubmitOutcome)}
}

func (m *MockSubmitter) Submit(ctx context.Context, t *transaction.PendingTransaction) (*remote.SubmitResult, error) {
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Submitted = append(m.Submitted, t.ID)

	outcomes, ok := m.Results[t.ID]
	if !ok || len(outcomes) == 0 {
		return &remote.SubmitResult{ServerID: "srv_" + t.ID}, nil
	}
	outcome := outcomes[0]
	if len(outcomes) > 1 {
		m.Results[t.ID] = outcomes[1:]
	}
	return outcome.Result, outcome.Err
}

// SubmittedIDs returns a copy of the submission order.
func (m *MockSubmitter) SubmittedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Submitted...)
}

// --- Catalog Fetcher Mock ---

// MockFetcher serves scripted catalog data.
type MockFetcher struct {
	Products   []remote.ProductData
	Categories []remote.CategoryData
	Images     map[string][]byte // keyed by image URL

	FetchProductsFunc   func(ctx context.Context) ([]remote.ProductData, error)
	FetchCategoriesFunc func(ctx context.Context) ([]remote.CategoryData, error)
	FetchImageFunc      func(ctx context.Context, imageURL string) ([]byte, string, error)
}

func (m *MockFetcher) FetchProducts(ctx context.Context) ([]remote.ProductData, error) {
	if m.FetchProductsFunc != nil {
		return m.FetchProductsFunc(ctx)
	}
	return m.Products, nil
}

func (m *MockFetcher) FetchCategories(ctx context.Context) ([]remote.CategoryData, error) {
	if m.FetchCategoriesFunc != nil {
		return m.FetchCategoriesFunc(ctx)
	}
	return m.Categories, nil
}

func (m *MockFetcher) FetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	if m.FetchImageFunc != nil {
		return m.FetchImageFunc(ctx, imageURL)
	}
	data, ok := m.Images[imageURL]
	if !ok {
		return nil, "", domainErrors.ErrImageNotCached
	}
	return data, "image/jpeg", nil
}

// --- Metadata Repository Mock ---

// MockMetadataRepository is an in-memory catalog.MetadataRepository.
type MockMetadataRepository struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMockMetadataRepository() *MockMetadataRepository {
	return &MockMetadataRepository{values: make(map[string]string)}
}

func (m *MockMetadataRepository) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *MockMetadataRepository) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

var _ catalog.MetadataRepository = (*MockMetadataRepository)(nil)
var _ transaction.Repository = (*MockTransactionRepository)(nil)
