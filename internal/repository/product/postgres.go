package product

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"storefront/internal/domain"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &postgresRepo{pool: pool, logger: logger}
}

const productColumns = `id::text, handle, title, COALESCE(description, ''), images, variants, created_at`

func (r *postgresRepo) List(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at DESC, handle`)
	if err != nil {
		r.logger.Error("product repo: list", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var result []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("product repo: list rows", zap.Error(err))
		return nil, err
	}
	r.logger.Debug("product repo: list", zap.Int("count", len(result)))
	return result, nil
}

func (r *postgresRepo) GetByHandle(ctx context.Context, handle string) (*domain.Product, error) {
	return r.getOne(ctx, `SELECT `+productColumns+` FROM products WHERE handle = $1`, handle)
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	return r.getOne(ctx, `SELECT `+productColumns+` FROM products WHERE id::text = $1`, id)
}

func (r *postgresRepo) GetByVariantID(ctx context.Context, variantID string) (*domain.Product, error) {
	filter, err := json.Marshal([]map[string]string{{"id": variantID}})
	if err != nil {
		return nil, err
	}
	return r.getOne(ctx, `SELECT `+productColumns+` FROM products WHERE variants @> $1::jsonb LIMIT 1`, string(filter))
}

func (r *postgresRepo) getOne(ctx context.Context, q string, arg string) (*domain.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, q, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error("product repo: get", zap.String("arg", arg), zap.Error(err))
		return nil, err
	}
	return p, nil
}

func (r *postgresRepo) Upsert(ctx context.Context, product domain.Product) (*domain.Product, error) {
	images, err := json.Marshal(nonNil(product.Images))
	if err != nil {
		return nil, err
	}
	variants, err := json.Marshal(nonNilVariants(product.Variants))
	if err != nil {
		return nil, err
	}
	const q = `
INSERT INTO products (id, handle, title, description, images, variants)
VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, NULLIF($4, ''), $5, $6)
ON CONFLICT (handle) DO UPDATE SET
    title = EXCLUDED.title,
    description = EXCLUDED.description,
    images = EXCLUDED.images,
    variants = EXCLUDED.variants
RETURNING id::text, created_at
`
	res := product
	err = r.pool.QueryRow(ctx, q, product.ID, product.Handle, product.Title, product.Description, images, variants).
		Scan(&res.ID, &res.CreatedAt)
	if err != nil {
		r.logger.Error("product repo: upsert", zap.String("handle", product.Handle), zap.Error(err))
		return nil, err
	}
	if product.ID != "" && res.ID != product.ID {
		return nil, fmt.Errorf("product repo: id mismatch for handle=%s existing_id=%s import_id=%s", product.Handle, res.ID, product.ID)
	}
	r.logger.Debug("product repo: upserted", zap.String("handle", res.Handle), zap.String("id", res.ID))
	return &res, nil
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var p domain.Product
	var images, variants []byte
	if err := row.Scan(&p.ID, &p.Handle, &p.Title, &p.Description, &images, &variants, &p.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(images, &p.Images); err != nil {
		return nil, fmt.Errorf("decode images for %s: %w", p.Handle, err)
	}
	if err := json.Unmarshal(variants, &p.Variants); err != nil {
		return nil, fmt.Errorf("decode variants for %s: %w", p.Handle, err)
	}
	return &p, nil
}

func nonNil(images []domain.Image) []domain.Image {
	if images == nil {
		return []domain.Image{}
	}
	return images
}

func nonNilVariants(v []domain.Variant) []domain.Variant {
	if v == nil {
		return []domain.Variant{}
	}
	return v
}
