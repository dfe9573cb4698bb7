package review

import (
	"context"
	"errors"

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

const reviewColumns = `id::text, product_id, name, email, location, rating, comment, helpful, reports, created_at`

// orderBy maps the accepted sort keys to SQL; id breaks ties so paging is stable.
var orderBy = map[string]string{
	domain.SortNewest:       "created_at DESC, id",
	domain.SortOldest:       "created_at ASC, id",
	domain.SortHighestRated: "rating DESC, created_at DESC, id",
	domain.SortLowestRated:  "rating ASC, created_at DESC, id",
	domain.SortMostHelpful:  "helpful DESC, created_at DESC, id",
}

func (r *postgresRepo) Create(ctx context.Context, productID string, in domain.ReviewInput) (*domain.Review, error) {
	const q = `
INSERT INTO reviews (product_id, name, email, location, rating, comment)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + reviewColumns
	rv, err := scanReview(r.pool.QueryRow(ctx, q, productID, in.Name, in.Email, in.Location, in.Rating, in.Comment))
	if err != nil {
		r.logger.Error("review repo: create", zap.String("product_id", productID), zap.Error(err))
		return nil, err
	}
	return rv, nil
}

func (r *postgresRepo) List(ctx context.Context, productID string, q domain.ReviewQuery) ([]domain.Review, int, error) {
	q = q.Normalize()
	var total int
	if err := r.pool.QueryRow(ctx, `
SELECT COUNT(*) FROM reviews WHERE product_id = $1 AND reports < $2
`, productID, domain.ReviewHideThreshold).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
SELECT `+reviewColumns+`
FROM reviews
WHERE product_id = $1 AND reports < $2
ORDER BY `+orderBy[q.Sort]+`
LIMIT $3 OFFSET $4
`, productID, domain.ReviewHideThreshold, q.Limit, q.Offset())
	if err != nil {
		r.logger.Error("review repo: list", zap.String("product_id", productID), zap.Error(err))
		return nil, 0, err
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *rv)
	}
	return out, total, rows.Err()
}

func (r *postgresRepo) MarkHelpful(ctx context.Context, productID, reviewID string) (*domain.Review, error) {
	return r.bump(ctx, `
UPDATE reviews SET helpful = helpful + 1
WHERE id::text = $1 AND product_id = $2
RETURNING `+reviewColumns, reviewID, productID)
}

func (r *postgresRepo) Report(ctx context.Context, productID, reviewID, reason string) (*domain.Review, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rv, err := scanReview(tx.QueryRow(ctx, `
UPDATE reviews SET reports = reports + 1
WHERE id::text = $1 AND product_id = $2
RETURNING `+reviewColumns, reviewID, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO review_reports (review_id, reason) VALUES ($1::uuid, $2)`, rv.ID, reason); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return rv, nil
}

func (r *postgresRepo) RatingCounts(ctx context.Context, productID string) (map[int]int, error) {
	rows, err := r.pool.Query(ctx, `
SELECT rating, COUNT(*)
FROM reviews
WHERE product_id = $1 AND reports < $2
GROUP BY rating
`, productID, domain.ReviewHideThreshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int, 5)
	for rows.Next() {
		var rating, n int
		if err := rows.Scan(&rating, &n); err != nil {
			return nil, err
		}
		counts[rating] = n
	}
	return counts, rows.Err()
}

func (r *postgresRepo) bump(ctx context.Context, q string, args ...interface{}) (*domain.Review, error) {
	rv, err := scanReview(r.pool.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return rv, nil
}

func scanReview(row pgx.Row) (*domain.Review, error) {
	var rv domain.Review
	if err := row.Scan(
		&rv.ID,
		&rv.ProductID,
		&rv.Name,
		&rv.Email,
		&rv.Location,
		&rv.Rating,
		&rv.Comment,
		&rv.Helpful,
		&rv.Reports,
		&rv.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &rv, nil
}
