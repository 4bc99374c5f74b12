package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/inventoryd/internal/domain"
	"github.com/utafrali/inventoryd/pkg/database"
	apperrors "github.com/utafrali/inventoryd/pkg/errors"
)

// CatalogRepository serves the read-only Product and Store lookups. Neither
// table is ever written to by this service; rows are seeded out of band.
type CatalogRepository struct {
	pool database.DBTX
}

// NewCatalogRepository creates a PostgreSQL-backed catalog reader.
func NewCatalogRepository(pool database.DBTX) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func (r *CatalogRepository) ListProducts(ctx context.Context, offset, limit int) ([]domain.Product, int, error) {
	query := `
		SELECT id, sku, name, description, category, unit_price_minor, created_at, updated_at,
		       count(*) OVER() AS total_count
		FROM products
		ORDER BY name ASC
		LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var (
		products   []domain.Product
		totalCount int
	)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Category, &p.UnitPriceMinor, &p.CreatedAt, &p.UpdatedAt, &totalCount); err != nil {
			return nil, 0, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate product rows: %w", err)
	}
	if products == nil {
		products = []domain.Product{}
	}
	return products, totalCount, nil
}

func (r *CatalogRepository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	query := `
		SELECT id, sku, name, description, category, unit_price_minor, created_at, updated_at
		FROM products
		WHERE id = $1`

	var p domain.Product
	err := r.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Category, &p.UnitPriceMinor, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

func (r *CatalogRepository) ListStores(ctx context.Context) ([]domain.Store, error) {
	query := `
		SELECT id, name, address, city, country, zip_code, status, timezone, created_at, updated_at
		FROM stores
		ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	defer rows.Close()

	var stores []domain.Store
	for rows.Next() {
		var s domain.Store
		if err := rows.Scan(&s.ID, &s.Name, &s.Address, &s.City, &s.Country, &s.ZipCode, &s.Status, &s.Timezone, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan store row: %w", err)
		}
		stores = append(stores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate store rows: %w", err)
	}
	if stores == nil {
		stores = []domain.Store{}
	}
	return stores, nil
}

func (r *CatalogRepository) GetStore(ctx context.Context, id string) (*domain.Store, error) {
	query := `
		SELECT id, name, address, city, country, zip_code, status, timezone, created_at, updated_at
		FROM stores
		WHERE id = $1`

	var s domain.Store
	err := r.pool.QueryRow(ctx, query, id).Scan(&s.ID, &s.Name, &s.Address, &s.City, &s.Country, &s.ZipCode, &s.Status, &s.Timezone, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get store: %w", err)
	}
	return &s, nil
}
