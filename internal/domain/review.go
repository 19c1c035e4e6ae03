package domain

import "time"

const (
	MinRating = 1
	MaxRating = 5
)

// Review is one user's rating of a product. A user has at most one review
// per product.
type Review struct {
	ID        string        `json:"id"`
	ProductID string        `json:"productId"`
	UserID    string        `json:"userId"`
	Rating    int           `json:"rating"`
	Comment   string        `json:"comment"`
	Author    *ReviewAuthor `json:"user"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// ReviewAuthor is resolved when reviews are read. It is nil once the
// author's account no longer exists.
type ReviewAuthor struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// ValidRating reports whether r is within MinRating..MaxRating.
func ValidRating(r int) bool {
	return r >= MinRating && r <= MaxRating
}
