package catalogsync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cassiomorais/possync/internal/domain/catalog"
)

// ImageCache materializes cached image blobs as local files the UI can
// display, memoized per process. Handles must be released to keep the image
// directory from growing without bound.
type ImageCache struct {
	images catalog.ImageRepository
	dir    string

	mu    sync.Mutex
	paths map[string]string
}

// NewImageCache creates an ImageCache writing under dir.
func NewImageCache(images catalog.ImageRepository, dir string) *ImageCache {
	return &ImageCache{
		images: images,
		dir:    dir,
		paths:  make(map[string]string),
	}
}

// Path returns a local file path for the product's cached image, writing the
// blob out on first use. Returns ErrImageNotCached when no blob is stored.
func (c *ImageCache) Path(ctx context.Context, productID string) (string, error) {
	c.mu.Lock()
	if path, ok := c.paths[productID]; ok {
		c.mu.Unlock()
		return path, nil
	}
	c.mu.Unlock()

	img, err := c.images.Get(ctx, productID)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("create image directory: %w", err)
	}

	path := filepath.Join(c.dir, productID+extensionForMime(img.MimeType))
	if err := os.WriteFile(path, img.Data, 0o644); err != nil {
		return "", fmt.Errorf("write image for product %s: %w", productID, err)
	}

	c.mu.Lock()
	// Another caller may have raced us here; both wrote identical bytes.
	c.paths[productID] = path
	c.mu.Unlock()

	return path, nil
}

// Release removes the materialized file for one product. Idempotent.
func (c *ImageCache) Release(productID string) {
	c.mu.Lock()
	path, ok := c.paths[productID]
	delete(c.paths, productID)
	c.mu.Unlock()

	if ok {
		os.Remove(path)
	}
}

// ReleaseAll removes every materialized file.
func (c *ImageCache) ReleaseAll() {
	c.mu.Lock()
	paths := c.paths
	c.paths = make(map[string]string)
	c.mu.Unlock()

	for _, path := range paths {
		os.Remove(path)
	}
}

func extensionForMime(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}
