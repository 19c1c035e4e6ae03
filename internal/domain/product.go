package domain

import (
	"fmt"
	"time"
)

// Gender is the audience a product is merchandised for.
type Gender string

const (
	GenderMens   Gender = "mens"
	GenderWomens Gender = "womens"
	GenderUnisex Gender = "unisex"
)

// ParseGender validates s. An empty string yields GenderUnisex.
func ParseGender(s string) (Gender, error) {
	switch g := Gender(s); g {
	case "":
		return GenderUnisex, nil
	case GenderMens, GenderWomens, GenderUnisex:
		return g, nil
	}
	return "", fmt.Errorf("invalid gender %q", s)
}

// Image is a stored picture. PublicID is the handle used to delete it.
type Image struct {
	URL      string `json:"url"`
	PublicID string `json:"publicId"`
}

// Product is a catalog entry. Ratings is derived from Reviews and must be
// kept in step through the review methods below.
type Product struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Price            int64     `json:"price"`
	Gender           Gender    `json:"gender"`
	Category         string    `json:"category"`
	SubCategory      string    `json:"subCategory"`
	CoverImage       Image     `json:"coverImage"`
	AdditionalImages []Image   `json:"additionalImages"`
	CountInStock     int       `json:"countInStock"`
	IsFeatured       bool      `json:"isFeatured"`
	Ratings          float64   `json:"ratings"`
	Reviews          []Review  `json:"reviews,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Images returns the cover image followed by the additional images.
func (p *Product) Images() []Image {
	out := make([]Image, 0, len(p.AdditionalImages)+1)
	if p.CoverImage.PublicID != "" {
		out = append(out, p.CoverImage)
	}
	return append(out, p.AdditionalImages...)
}

// RecomputeRatings sets Ratings to the mean review rating, or 0 without reviews.
func (p *Product) RecomputeRatings() {
	if len(p.Reviews) == 0 {
		p.Ratings = 0
		return
	}
	total := 0
	for _, r := range p.Reviews {
		total += r.Rating
	}
	p.Ratings = float64(total) / float64(len(p.Reviews))
}

// ReviewBy returns the review written by userID, or nil.
func (p *Product) ReviewBy(userID string) *Review {
	for i := range p.Reviews {
		if p.Reviews[i].UserID == userID {
			return &p.Reviews[i]
		}
	}
	return nil
}

// AddReview appends r and recomputes Ratings. Callers check for an existing
// review by the same user first.
func (p *Product) AddReview(r Review) {
	p.Reviews = append(p.Reviews, r)
	p.RecomputeRatings()
}

// EditReviewBy overwrites the supplied fields of userID's review and
// recomputes Ratings. It returns the updated review, or nil when the user
// has none.
func (p *Product) EditReviewBy(userID string, rating *int, comment *string, at time.Time) *Review {
	r := p.ReviewBy(userID)
	if r == nil {
		return nil
	}
	if rating != nil {
		r.Rating = *rating
	}
	if comment != nil {
		r.Comment = *comment
	}
	r.UpdatedAt = at
	p.RecomputeRatings()
	return r
}

// RemoveReviewBy deletes userID's review and recomputes Ratings. It reports
// whether a review was removed.
func (p *Product) RemoveReviewBy(userID string) bool {
	for i := range p.Reviews {
		if p.Reviews[i].UserID == userID {
			p.Reviews = append(p.Reviews[:i], p.Reviews[i+1:]...)
			p.RecomputeRatings()
			return true
		}
	}
	return false
}

// ProductSnapshot is the slice of a product shown next to a cart line.
type ProductSnapshot struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Price       int64  `json:"price"`
	CoverImage  string `json:"coverImage,omitempty"`
	Category    string `json:"category"`
	SubCategory string `json:"subCategory"`
	Description string `json:"description"`
}

// Snapshot returns the cart-facing view of p.
func (p *Product) Snapshot() ProductSnapshot {
	return ProductSnapshot{
		ID:          p.ID,
		Name:        p.Name,
		Price:       p.Price,
		CoverImage:  p.CoverImage.URL,
		Category:    p.Category,
		SubCategory: p.SubCategory,
		Description: p.Description,
	}
}
