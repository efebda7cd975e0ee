package catalog

import "context"

// ProductRepository stores the local product mirror. ReplaceAll clears the
// collection and bulk-inserts the new snapshot in one storage transaction.
type ProductRepository interface {
	ReplaceAll(ctx context.Context, products []*Product) error
	Get(ctx context.Context, id string) (*Product, error)
	List(ctx context.Context, filter Filter) ([]*Product, error)
	MarkLocalImages(ctx context.Context, productIDs []string) error
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// CategoryRepository stores the local category mirror.
type CategoryRepository interface {
	ReplaceAll(ctx context.Context, categories []*Category) error
	List(ctx context.Context) ([]*Category, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// ImageRepository stores cached image blobs keyed by product id. Put
// overwrites any existing blob for the product, so a partially-completed
// image pass is safe to repeat.
type ImageRepository interface {
	Put(ctx context.Context, img *ProductImage) error
	Get(ctx context.Context, productID string) (*ProductImage, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// MetadataRepository is a generic key/value bag for sync bookkeeping, e.g.
// the last catalog sync timestamp.
type MetadataRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}
