package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// ReviewHideThreshold is the number of reports after which a review is
	// no longer listed.
	ReviewHideThreshold = 3

	DefaultReviewLimit = 10
	MaxReviewLimit     = 50
	maxCommentRunes    = 2000
	maxNameRunes       = 100
)

// Review is a shopper's rating of a product. The reviewer's email is kept
// by the backend but never served.
type Review struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	Name      string    `json:"name"`
	Email     string    `json:"-"`
	Location  string    `json:"location,omitempty"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	Helpful   int       `json:"helpful"`
	Reports   int       `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

type ReviewInput struct {
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Location string `json:"location,omitempty"`
	Rating   int    `json:"rating"`
	Comment  string `json:"comment"`
}

// Normalize trims every text field.
func (in ReviewInput) Normalize() ReviewInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Location = strings.TrimSpace(in.Location)
	in.Comment = strings.TrimSpace(in.Comment)
	return in
}

// Validate checks a normalized input.
func (in ReviewInput) Validate() error {
	if in.Name == "" || in.Comment == "" || in.Rating == 0 {
		return NewError(ErrValidation, "Name, comment, and rating are required")
	}
	if in.Rating < 1 || in.Rating > 5 {
		return NewError(ErrValidation, "Rating must be between 1 and 5")
	}
	if utf8.RuneCountInString(in.Name) > maxNameRunes {
		return NewError(ErrValidation, "Name must be at most %d characters", maxNameRunes)
	}
	if utf8.RuneCountInString(in.Comment) > maxCommentRunes {
		return NewError(ErrValidation, "Comment must be at most %d characters", maxCommentRunes)
	}
	return nil
}

// Review sort orders accepted by listings; a leading "-" means descending.
const (
	SortNewest       = "-createdAt"
	SortOldest       = "createdAt"
	SortHighestRated = "-rating"
	SortLowestRated  = "rating"
	SortMostHelpful  = "-helpful"
)

// ReviewQuery selects one page of a product's reviews.
type ReviewQuery struct {
	Page  int
	Limit int
	Sort  string
}

// Normalize clamps paging to sane bounds and falls back to newest first
// for an unknown sort.
func (q ReviewQuery) Normalize() ReviewQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultReviewLimit
	}
	if q.Limit > MaxReviewLimit {
		q.Limit = MaxReviewLimit
	}
	switch q.Sort {
	case SortNewest, SortOldest, SortHighestRated, SortLowestRated, SortMostHelpful:
	default:
		q.Sort = SortNewest
	}
	return q
}

// Offset is the number of reviews before the page.
func (q ReviewQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

type ReviewPage struct {
	Reviews    []Review `json:"reviews"`
	Page       int      `json:"page"`
	Limit      int      `json:"limit"`
	Total      int      `json:"total"`
	TotalPages int      `json:"totalPages"`
}

// NewReviewPage fills in the paging fields for reviews of q out of total.
func NewReviewPage(reviews []Review, q ReviewQuery, total int) ReviewPage {
	if reviews == nil {
		reviews = []Review{}
	}
	pages := 0
	if q.Limit > 0 {
		pages = (total + q.Limit - 1) / q.Limit
	}
	return ReviewPage{Reviews: reviews, Page: q.Page, Limit: q.Limit, Total: total, TotalPages: pages}
}

// ReviewStats summarises the listed reviews of a product. Distribution is
// keyed by star rating 1 to 5.
type ReviewStats struct {
	ProductID    string      `json:"productId"`
	Count        int         `json:"count"`
	Average      float64     `json:"average"`
	Distribution map[int]int `json:"distribution"`
}
