package review

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/domain"
	reviewrepo "storefront/internal/repository/review"
)

const maxReasonRunes = 500

type productLookup interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
}

type Service struct {
	repo     reviewrepo.Repository
	products productLookup
	logger   *zap.Logger
}

func New(repo reviewrepo.Repository, products productLookup, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, products: products, logger: logger}
}

// List returns one page of the product's reviews. Reviews reported
// domain.ReviewHideThreshold times or more are not listed.
func (s *Service) List(ctx context.Context, productID string, q domain.ReviewQuery) (domain.ReviewPage, error) {
	productID, err := s.product(ctx, productID)
	if err != nil {
		return domain.ReviewPage{}, err
	}
	q = q.Normalize()
	reviews, total, err := s.repo.List(ctx, productID, q)
	if err != nil {
		return domain.ReviewPage{}, err
	}
	return domain.NewReviewPage(reviews, q, total), nil
}

func (s *Service) Submit(ctx context.Context, productID string, in domain.ReviewInput) (*domain.Review, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	productID, err := s.product(ctx, productID)
	if err != nil {
		return nil, err
	}
	rv, err := s.repo.Create(ctx, productID, in)
	if err != nil {
		return nil, err
	}
	s.logger.Info("review submitted", zap.String("product_id", productID), zap.String("review_id", rv.ID), zap.Int("rating", rv.Rating))
	return rv, nil
}

func (s *Service) MarkHelpful(ctx context.Context, productID, reviewID string) (*domain.Review, error) {
	reviewID = strings.TrimSpace(reviewID)
	if reviewID == "" {
		return nil, domain.ErrNotFound
	}
	return s.repo.MarkHelpful(ctx, strings.TrimSpace(productID), reviewID)
}

func (s *Service) Report(ctx context.Context, productID, reviewID, reason string) (*domain.Review, error) {
	reviewID = strings.TrimSpace(reviewID)
	reason = strings.TrimSpace(reason)
	if reviewID == "" {
		return nil, domain.ErrNotFound
	}
	if reason == "" {
		return nil, domain.NewError(domain.ErrValidation, "A reason is required to report a review")
	}
	if utf8.RuneCountInString(reason) > maxReasonRunes {
		return nil, domain.NewError(domain.ErrValidation, "Reason must be at most %d characters", maxReasonRunes)
	}
	rv, err := s.repo.Report(ctx, strings.TrimSpace(productID), reviewID, reason)
	if err != nil {
		return nil, err
	}
	if rv.Reports == domain.ReviewHideThreshold {
		s.logger.Warn("review hidden after reports", zap.String("review_id", rv.ID), zap.Int("reports", rv.Reports))
	}
	return rv, nil
}

// Stats counts listed reviews per rating. The average is rounded to one
// decimal place and is zero when there are no reviews.
func (s *Service) Stats(ctx context.Context, productID string) (domain.ReviewStats, error) {
	productID, err := s.product(ctx, productID)
	if err != nil {
		return domain.ReviewStats{}, err
	}
	counts, err := s.repo.RatingCounts(ctx, productID)
	if err != nil {
		return domain.ReviewStats{}, err
	}
	stats := domain.ReviewStats{ProductID: productID, Distribution: make(map[int]int, 5)}
	sum := 0
	for rating := 1; rating <= 5; rating++ {
		n := counts[rating]
		stats.Distribution[rating] = n
		stats.Count += n
		sum += rating * n
	}
	if stats.Count > 0 {
		avg := decimal.NewFromInt(int64(sum)).DivRound(decimal.NewFromInt(int64(stats.Count)), 1)
		stats.Average = avg.InexactFloat64()
	}
	return stats, nil
}

func (s *Service) product(ctx context.Context, productID string) (string, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return "", domain.ErrNotFound
	}
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return "", err
	}
	return productID, nil
}
