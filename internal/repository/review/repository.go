package review

import (
	"context"

	"storefront/internal/domain"
)

type Repository interface {
	Create(ctx context.Context, productID string, in domain.ReviewInput) (*domain.Review, error)
	// List returns one page of the product's listed reviews and how many
	// listed reviews the product has in total.
	List(ctx context.Context, productID string, q domain.ReviewQuery) ([]domain.Review, int, error)
	// MarkHelpful increments the helpful count. A review that does not
	// belong to the product yields domain.ErrNotFound.
	MarkHelpful(ctx context.Context, productID, reviewID string) (*domain.Review, error)
	// Report records a report against the review.
	Report(ctx context.Context, productID, reviewID, reason string) (*domain.Review, error)
	// RatingCounts returns the number of listed reviews per star rating.
	RatingCounts(ctx context.Context, productID string) (map[int]int, error)
}
