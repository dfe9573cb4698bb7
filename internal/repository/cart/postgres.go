package cart

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"storefront/internal/domain"
)

type postgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) Repository {
	return &postgresRepo{pool: pool}
}

func (r *postgresRepo) CreateWithLines(ctx context.Context, currency string, lines []NewLine) (*domain.Cart, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var cartID string
	if err := tx.QueryRow(ctx, `
INSERT INTO carts (currency, total_cents, state)
VALUES ($1, 0, 'active')
RETURNING id::text
`, currency).Scan(&cartID); err != nil {
		return nil, err
	}
	if err := upsertLines(ctx, tx, cartID, lines); err != nil {
		return nil, err
	}
	if err := updateCartTotal(ctx, tx, cartID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, cartID)
}

func (r *postgresRepo) AddLines(ctx context.Context, cartID string, lines []NewLine) (*domain.Cart, error) {
	return r.changeActive(ctx, cartID, func(tx pgx.Tx) error {
		return upsertLines(ctx, tx, cartID, lines)
	})
}

func (r *postgresRepo) SetLines(ctx context.Context, cartID string, lines []NewLine, remove []string) (*domain.Cart, error) {
	return r.changeActive(ctx, cartID, func(tx pgx.Tx) error {
		if len(remove) > 0 {
			if _, err := tx.Exec(ctx, `DELETE FROM cart_lines WHERE cart_id::text = $1 AND variant_id = ANY($2)`, cartID, remove); err != nil {
				return err
			}
		}
		const q = `
INSERT INTO cart_lines (cart_id, variant_id, product_id, quantity, unit_price_cents, total_cents, snapshot)
VALUES ($1, $2, $3, $4, $5, $5 * $4, $6)
ON CONFLICT (cart_id, variant_id) DO UPDATE
SET quantity    = EXCLUDED.quantity,
    total_cents = cart_lines.unit_price_cents * EXCLUDED.quantity
`
		for _, l := range lines {
			if _, err := tx.Exec(ctx, q, cartID, l.VariantID, l.ProductID, l.Quantity, l.UnitPriceCents, l.Snapshot); err != nil {
				return err
			}
		}
		return nil
	})
}

// changeActive runs change on a locked active cart and recomputes its total.
// A missing or closed cart yields domain.ErrNotFound.
func (r *postgresRepo) changeActive(ctx context.Context, cartID string, change func(pgx.Tx) error) (*domain.Cart, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var state string
	err = tx.QueryRow(ctx, `SELECT state FROM carts WHERE id::text = $1 FOR UPDATE`, cartID).Scan(&state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if state != "active" {
		return nil, domain.ErrNotFound
	}
	if err := change(tx); err != nil {
		return nil, err
	}
	if err := updateCartTotal(ctx, tx, cartID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, cartID)
}

// upsertLines merges lines by variant; the stored unit price of an existing
// line is kept.
func upsertLines(ctx context.Context, tx pgx.Tx, cartID string, lines []NewLine) error {
	const q = `
INSERT INTO cart_lines (cart_id, variant_id, product_id, quantity, unit_price_cents, total_cents, snapshot)
VALUES ($1, $2, $3, $4, $5, $5 * $4, $6)
ON CONFLICT (cart_id, variant_id) DO UPDATE
SET quantity    = cart_lines.quantity + EXCLUDED.quantity,
    total_cents = cart_lines.unit_price_cents * (cart_lines.quantity + EXCLUDED.quantity)
`
	for _, l := range lines {
		if _, err := tx.Exec(ctx, q, cartID, l.VariantID, l.ProductID, l.Quantity, l.UnitPriceCents, l.Snapshot); err != nil {
			return err
		}
	}
	return nil
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Cart, error) {
	var cart domain.Cart
	err := r.pool.QueryRow(ctx, `
SELECT id::text, currency, total_cents, state, created_at
FROM carts
WHERE id::text = $1
`, id).Scan(
		&cart.ID,
		&cart.Currency,
		&cart.TotalCents,
		&cart.State,
		&cart.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	const linesQuery = `
SELECT id::text, cart_id::text, variant_id, product_id::text, quantity, unit_price_cents, total_cents, snapshot, created_at
FROM cart_lines
WHERE cart_id = $1
ORDER BY created_at ASC
`
	rows, err := r.pool.Query(ctx, linesQuery, cart.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(
			&line.ID,
			&line.CartID,
			&line.VariantID,
			&line.ProductID,
			&line.Quantity,
			&line.UnitPriceCents,
			&line.TotalCents,
			&line.Snapshot,
			&line.CreatedAt,
		); err != nil {
			return nil, err
		}
		cart.Lines = append(cart.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &cart, nil
}

func updateCartTotal(ctx context.Context, tx pgx.Tx, cartID string) error {
	_, err := tx.Exec(ctx, `
UPDATE carts
SET total_cents = COALESCE((
	SELECT SUM(total_cents)
	FROM cart_lines
	WHERE cart_id = $1
), 0)
WHERE id = $1
`, cartID)
	return err
}
