package customer

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap/zaptest"

	"storefront/internal/domain"
	"storefront/internal/migrate"
	customerrepo "storefront/internal/repository/customer"
	tokenrepo "storefront/internal/repository/token"
)

func TestSignupLoginUpdate_Integration(t *testing.T) {
	ctx := context.Background()
	pool := integrationPool(ctx, t)
	defer pool.Close()

	if err := migrate.Apply(ctx, pool, nil); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	resetTables(ctx, t, pool)

	logger := zaptest.NewLogger(t)
	repo := customerrepo.NewPostgres(pool, logger)
	tokenRepo := tokenrepo.NewPostgres(pool)
	svc := New(repo, tokenRepo, Options{}, logger)

	password := "Abcdefg1"
	cust, _, err := svc.Signup(ctx, SignupInput{
		Email:     "integration@example.com",
		Password:  password,
		FirstName: "Int",
		LastName:  "User",
	})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if cust == nil || cust.ID == "" {
		t.Fatalf("expected created customer, got %+v", cust)
	}

	_, tok, err := svc.Login(ctx, "Integration@Example.com", password)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if tok.Token == "" {
		t.Fatalf("expected token")
	}

	city := "Pune"
	updated, err := svc.UpdateProfile(ctx, tok.Token, domain.CustomerPatch{DefaultAddress: &domain.CustomerAddress{Address1: "1 Main St", City: city}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.DefaultAddress == nil || updated.DefaultAddress.City != city || updated.FirstName != "Int" {
		t.Fatalf("unexpected updated customer %+v", updated)
	}
}

func integrationPool(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Fatalf("ping db: %v", err)
	}
	return pool
}

func resetTables(ctx context.Context, t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	if _, err := pool.Exec(ctx, `TRUNCATE tokens, customers RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}
