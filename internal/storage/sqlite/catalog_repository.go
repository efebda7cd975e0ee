package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cassiomorais/possync/internal/domain/catalog"
	domainErrors "github.com/cassiomorais/possync/internal/domain/errors"
)

const productColumns = `id, name, sku, barcode, unit_price, marked_price, current_stock,
	reorder_level, unit, category_id, category_name, gst_rate, image_url, has_local_image, updated_at`

// ProductRepository implements catalog.ProductRepository on the local store.
type ProductRepository struct {
	store *Store
}

// NewProductRepository creates a new ProductRepository.
func NewProductRepository(store *Store) *ProductRepository {
	return &ProductRepository{store: store}
}

func scanProduct(s scanner) (*catalog.Product, error) {
	var (
		p         catalog.Product
		hasImage  int
		updatedAt int64
	)
	if err := s.Scan(
		&p.ID, &p.Name, &p.SKU, &p.Barcode, &p.UnitPrice, &p.MarkedPrice,
		&p.CurrentStock, &p.ReorderLevel, &p.Unit, &p.CategoryID,
		&p.CategoryName, &p.GSTRate, &p.ImageURL, &hasImage, &updatedAt,
	); err != nil {
		return nil, err
	}
	p.HasLocalImage = hasImage != 0
	p.UpdatedAt = time.UnixMilli(updatedAt)
	return &p, nil
}

// ReplaceAll swaps the whole product mirror for the given snapshot in one
// transaction. Products absent from the snapshot disappear from reads.
func (r *ProductRepository) ReplaceAll(ctx context.Context, products []*catalog.Product) error {
	return r.store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cached_products`); err != nil {
			return fmt.Errorf("clear products: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO cached_products (`+productColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare product insert: %w", err)
		}
		defer stmt.Close()

		for _, p := range products {
			hasImage := 0
			if p.HasLocalImage {
				hasImage = 1
			}
			if _, err := stmt.ExecContext(ctx,
				p.ID, p.Name, p.SKU, p.Barcode, p.UnitPrice, p.MarkedPrice,
				p.CurrentStock, p.ReorderLevel, p.Unit, p.CategoryID,
				p.CategoryName, p.GSTRate, p.ImageURL, hasImage, p.UpdatedAt.UnixMilli(),
			); err != nil {
				return fmt.Errorf("insert product %s: %w", p.ID, err)
			}
		}
		return nil
	})
}

// Get returns a single cached product, or ErrProductNotFound.
func (r *ProductRepository) Get(ctx context.Context, id string) (*catalog.Product, error) {
	db, err := r.store.DB(ctx)
	if err != nil {
		return nil, err
	}
	p, err := scanProduct(db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM cached_products WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainErrors.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	return p, nil
}

// List returns cached products matching the filter, in-stock items first and
// then alphabetical by name. Checkout screens rely on this ordering.
func (r *ProductRepository) List(ctx context.Context, filter catalog.Filter) ([]*catalog.Product, error) {
	db, err := r.store.DB(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + productColumns + ` FROM cached_products`
	var conds []string
	var args []any

	if filter.Search != "" {
		needle := "%" + strings.ToLower(filter.Search) + "%"
		conds = append(conds, `(lower(name) LIKE ? OR lower(sku) LIKE ? OR lower(barcode) LIKE ?)`)
		args = append(args, needle, needle, needle)
	}
	if filter.CategoryID != "" {
		conds = append(conds, `category_id = ?`)
		args = append(args, filter.CategoryID)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY (current_stock > 0) DESC, name COLLATE NOCASE ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var result []*catalog.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// MarkLocalImages flips has_local_image for the given product ids.
func (r *ProductRepository) MarkLocalImages(ctx context.Context, productIDs []string) error {
	if len(productIDs) == 0 {
		return nil
	}
	return r.store.WithTx(ctx, func(tx *sql.Tx) error {
		placeholders := strings.Repeat("?,", len(productIDs))
		placeholders = placeholders[:len(placeholders)-1]

		args := make([]any, len(productIDs))
		for i, id := range productIDs {
			args[i] = id
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE cached_products SET has_local_image = 1 WHERE id IN (`+placeholders+`)`,
			args...)
		return err
	})
}

// Count returns the number of cached products.
func (r *ProductRepository) Count(ctx context.Context) (int, error) {
	return r.store.count(ctx, `cached_products`)
}

// Clear removes every cached product.
func (r *ProductRepository) Clear(ctx context.Context) error {
	return r.store.clear(ctx, `cached_products`)
}

// CategoryRepository implements catalog.CategoryRepository on the local store.
type CategoryRepository struct {
	store *Store
}

// NewCategoryRepository creates a new CategoryRepository.
func NewCategoryRepository(store *Store) *CategoryRepository {
	return &CategoryRepository{store: store}
}

// ReplaceAll swaps the whole category mirror for the given snapshot.
func (r *CategoryRepository) ReplaceAll(ctx context.Context, categories []*catalog.Category) error {
	return r.store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cached_categories`); err != nil {
			return fmt.Errorf("clear categories: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO cached_categories (id, name, product_count, updated_at)
			VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare category insert: %w", err)
		}
		defer stmt.Close()

		for _, c := range categories {
			if _, err := stmt.ExecContext(ctx, c.ID, c.Name, c.ProductCount, c.UpdatedAt.UnixMilli()); err != nil {
				return fmt.Errorf("insert category %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

// List returns all cached categories ordered by name.
func (r *CategoryRepository) List(ctx context.Context) ([]*catalog.Category, error) {
	db, err := r.store.DB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, product_count, updated_at FROM cached_categories
		ORDER BY name COLLATE NOCASE ASC`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var result []*catalog.Category
	for rows.Next() {
		var c catalog.Category
		var updatedAt int64
		if err := rows.Scan(&c.ID, &c.Name, &c.ProductCount, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.UpdatedAt = time.UnixMilli(updatedAt)
		result = append(result, &c)
	}
	return result, rows.Err()
}

// Count returns the number of cached categories.
func (r *CategoryRepository) Count(ctx context.Context) (int, error) {
	return r.store.count(ctx, `cached_categories`)
}

// Clear removes every cached category.
func (r *CategoryRepository) Clear(ctx context.Context) error {
	return r.store.clear(ctx, `cached_categories`)
}

// ImageRepository implements catalog.ImageRepository on the local store.
type ImageRepository struct {
	store *Store
}

// NewImageRepository creates a new ImageRepository.
func NewImageRepository(store *Store) *ImageRepository {
	return &ImageRepository{store: store}
}

// Put stores an image blob, overwriting any previous blob for the product.
// Overwrite semantics make a repeated image pass idempotent.
func (r *ImageRepository) Put(ctx context.Context, img *catalog.ProductImage) error {
	return r.store.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO product_images (product_id, data, mime_type, cached_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (product_id) DO UPDATE SET
				data = excluded.data,
				mime_type = excluded.mime_type,
				cached_at = excluded.cached_at`,
			img.ProductID, img.Data, img.MimeType, img.CachedAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("store image for product %s: %w", img.ProductID, err)
		}
		return nil
	})
}

// Get returns the cached image for a product, or ErrImageNotCached.
func (r *ImageRepository) Get(ctx context.Context, productID string) (*catalog.ProductImage, error) {
	db, err := r.store.DB(ctx)
	if err != nil {
		return nil, err
	}
	var img catalog.ProductImage
	var cachedAt int64
	err = db.QueryRowContext(ctx, `
		SELECT product_id, data, mime_type, cached_at FROM product_images
		WHERE product_id = ?`, productID,
	).Scan(&img.ProductID, &img.Data, &img.MimeType, &cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainErrors.ErrImageNotCached
	}
	if err != nil {
		return nil, fmt.Errorf("get image for product %s: %w", productID, err)
	}
	img.CachedAt = time.UnixMilli(cachedAt)
	return &img, nil
}

// Count returns the number of cached images.
func (r *ImageRepository) Count(ctx context.Context) (int, error) {
	return r.store.count(ctx, `product_images`)
}

// Clear removes every cached image.
func (r *ImageRepository) Clear(ctx context.Context) error {
	return r.store.clear(ctx, `product_images`)
}

func (s *Store) count(ctx context.Context, table string) (int, error) {
	db, err := s.DB(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (s *Store) clear(ctx context.Context, table string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM `+table)
		return err
	})
}
