package controller

import (
	"net/http"

	"github.com/cassiomorais/possync/internal/catalogsync"
	"github.com/cassiomorais/possync/internal/domain/catalog"
	"github.com/go-chi/chi/v5"
)

// CatalogController exposes the local catalog mirror.
type CatalogController struct {
	service *catalogsync.Service
	images  catalog.ImageRepository
}

// NewCatalogController creates a new CatalogController.
func NewCatalogController(service *catalogsync.Service, images catalog.ImageRepository) *CatalogController {
	return &CatalogController{service: service, images: images}
}

// Sync handles POST /api/v1/catalog/sync. Runs a full snapshot refresh
// synchronously and returns the resulting counts.
func (h *CatalogController) Sync(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.SyncAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Progress handles GET /api/v1/catalog/sync/progress
func (h *CatalogController) Progress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.GetProgress())
}

// ListProducts handles GET /api/v1/catalog/products. Served entirely from the
// local cache; works with zero connectivity.
func (h *CatalogController) ListProducts(w http.ResponseWriter, r *http.Request) {
	filter := catalog.Filter{
		Search:     r.URL.Query().Get("search"),
		CategoryID: r.URL.Query().Get("categoryId"),
	}

	products, err := h.service.GetProducts(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*ProductResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, FromProduct(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListCategories handles GET /api/v1/catalog/categories
func (h *CatalogController) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.GetCategories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*CategoryResponse, 0, len(categories))
	for _, c := range categories {
		resp = append(resp, FromCategory(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ProductImage handles GET /api/v1/catalog/products/{id}/image, serving the
// cached blob directly.
func (h *CatalogController) ProductImage(w http.ResponseWriter, r *http.Request) {
	img, err := h.images.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", img.MimeType)
	w.Header().Set("Cache-Control", "max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(img.Data)
}

// Stats handles GET /api/v1/catalog/stats
func (h *CatalogController) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ClearCache handles DELETE /api/v1/catalog/cache
func (h *CatalogController) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearCache(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
