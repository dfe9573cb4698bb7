package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type postgresStore struct {
	pool      *pgxpool.Pool
	namespace string
	logger    *zap.Logger
}

// PostgresFactory returns a Factory backed by the storefront_state table.
func PostgresFactory(pool *pgxpool.Pool, logger *zap.Logger) Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(namespace string) Store {
		return &postgresStore{pool: pool, namespace: namespace, logger: logger}
	}
}

func (s *postgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	const q = `
SELECT value
FROM storefront_state
WHERE namespace = $1 AND key = $2
`
	var value string
	if err := s.pool.QueryRow(ctx, q, s.namespace, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		s.logger.Warn("state get failed", zap.String("namespace", s.namespace), zap.String("key", key), zap.Error(err))
		return "", false, err
	}
	return value, true, nil
}

func (s *postgresStore) Set(ctx context.Context, key, value string) error {
	const q = `
INSERT INTO storefront_state (namespace, key, value, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (namespace, key) DO UPDATE
SET value = EXCLUDED.value,
    updated_at = now()
`
	_, err := s.pool.Exec(ctx, q, s.namespace, key, value)
	return err
}

func (s *postgresStore) Delete(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM storefront_state WHERE namespace = $1 AND key = $2`, s.namespace, key)
	return err
}
