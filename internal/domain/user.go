package domain

import "time"

// Role controls access to catalog administration.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is a storefront account.
type User struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	Avatar           Image     `json:"avatar"`
	PasswordHash     string    `json:"-"`
	Role             Role      `json:"role"`
	RefreshTokenHash string    `json:"-"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}
