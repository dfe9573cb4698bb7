package customer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"storefront/internal/domain"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres returns a Repository backed by Postgres.
func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &postgresRepo{pool: pool, logger: logger}
}

const customerColumns = `id::text, email, password_hash, first_name, last_name, phone, default_address, created_at`

func (r *postgresRepo) Create(ctx context.Context, c domain.Customer) (*domain.Customer, error) {
	addrJSON, err := marshalAddress(c.DefaultAddress)
	if err != nil {
		return nil, err
	}
	q := `
INSERT INTO customers (email, password_hash, first_name, last_name, phone, default_address)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + customerColumns
	return r.scanCustomer(r.pool.QueryRow(
		ctx,
		q,
		strings.ToLower(strings.TrimSpace(c.Email)),
		c.PasswordHash,
		c.FirstName,
		c.LastName,
		c.Phone,
		addrJSON,
	))
}

func (r *postgresRepo) GetByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	q := `SELECT ` + customerColumns + `
FROM customers
WHERE lower(email) = lower($1)
LIMIT 1`
	return r.scanCustomer(r.pool.QueryRow(ctx, q, strings.TrimSpace(email)))
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Customer, error) {
	q := `SELECT ` + customerColumns + `
FROM customers
WHERE id::text = $1
LIMIT 1`
	return r.scanCustomer(r.pool.QueryRow(ctx, q, id))
}

// Update writes the non-nil patch fields; absent fields keep their value.
func (r *postgresRepo) Update(ctx context.Context, id string, patch domain.CustomerPatch) (*domain.Customer, error) {
	addrJSON, err := marshalAddress(patch.DefaultAddress)
	if err != nil {
		return nil, err
	}
	q := `
UPDATE customers SET
    first_name      = COALESCE($2, first_name),
    last_name       = COALESCE($3, last_name),
    phone           = COALESCE($4, phone),
    default_address = COALESCE($5::jsonb, default_address)
WHERE id::text = $1
RETURNING ` + customerColumns
	return r.scanCustomer(r.pool.QueryRow(ctx, q, id, patch.FirstName, patch.LastName, patch.Phone, addrJSON))
}

func marshalAddress(a *domain.CustomerAddress) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

func (r *postgresRepo) scanCustomer(row pgx.Row) (*domain.Customer, error) {
	var c domain.Customer
	var addrJSON []byte
	err := row.Scan(
		&c.ID,
		&c.Email,
		&c.PasswordHash,
		&c.FirstName,
		&c.LastName,
		&c.Phone,
		&addrJSON,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrAlreadyExists
		}
		r.logger.Error("customer repo: scan", zap.Error(err))
		return nil, err
	}
	if len(addrJSON) > 0 {
		var addr domain.CustomerAddress
		if err := json.Unmarshal(addrJSON, &addr); err != nil {
			r.logger.Error("customer repo: decode address", zap.String("customer_id", c.ID), zap.Error(err))
			return nil, err
		}
		c.DefaultAddress = &addr
	}
	return &c, nil
}
