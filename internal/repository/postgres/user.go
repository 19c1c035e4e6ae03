package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	"github.com/utafrali/storefront/pkg/database"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

const userColumns = `id, username, email, avatar_url, avatar_public_id, password_hash, role,
	refresh_token_hash, created_at, updated_at`

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	pool database.DBTX
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(pool database.DBTX) *UserRepository {
	return &UserRepository{pool: pool}
}

var _ repository.UserRepository = (*UserRepository)(nil)

// Create inserts a new user. Email and username are stored lower-cased.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) (err error) {
	u.Email = strings.ToLower(u.Email)
	u.Username = strings.ToLower(u.Username)

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	ctx, end := database.TraceQuery(ctx, "users.create", query)
	defer func() { end(err) }()

	_, err = r.pool.Exec(ctx, query,
		u.ID,
		u.Username,
		u.Email,
		u.Avatar.URL,
		u.Avatar.PublicID,
		u.PasswordHash,
		u.Role,
		u.RefreshTokenHash,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			if database.ConstraintName(err) == "users_username_key" {
				return apperrors.AlreadyExists("user", "username", u.Username)
			}
			return apperrors.AlreadyExists("user", "email", u.Email)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, "users.get", `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail retrieves a user by email, ignoring case.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, "users.get_by_email", `SELECT `+userColumns+` FROM users WHERE LOWER(email) = $1`, strings.ToLower(email))
}

// Exists reports whether username or email is already taken.
func (r *UserRepository) Exists(ctx context.Context, username, email string) (_ bool, err error) {
	query := `SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(username) = $1 OR LOWER(email) = $2)`

	ctx, end := database.TraceQuery(ctx, "users.exists", query)
	defer func() { end(err) }()

	var exists bool
	if err = r.pool.QueryRow(ctx, query, strings.ToLower(username), strings.ToLower(email)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return exists, nil
}

// SetRefreshTokenHash stores hash as the user's only valid refresh token.
// An empty hash signs the user out everywhere.
func (r *UserRepository) SetRefreshTokenHash(ctx context.Context, id, hash string) (err error) {
	query := `UPDATE users SET refresh_token_hash = $1, updated_at = NOW() WHERE id = $2`

	ctx, end := database.TraceQuery(ctx, "users.set_refresh_token", query)
	defer func() { end(err) }()

	ct, err := r.pool.Exec(ctx, query, hash, id)
	if err != nil {
		return fmt.Errorf("update refresh token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", id)
	}
	return nil
}

// UpdateAvatar replaces the user's avatar.
func (r *UserRepository) UpdateAvatar(ctx context.Context, id string, avatar domain.Image) (err error) {
	query := `UPDATE users SET avatar_url = $1, avatar_public_id = $2, updated_at = NOW() WHERE id = $3`

	ctx, end := database.TraceQuery(ctx, "users.update_avatar", query)
	defer func() { end(err) }()

	ct, err := r.pool.Exec(ctx, query, avatar.URL, avatar.PublicID, id)
	if err != nil {
		return fmt.Errorf("update avatar: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", id)
	}
	return nil
}

// UpdatePassword stores a new password hash. The refresh token is cleared
// in the same statement so older sessions cannot be refreshed.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, hash string) (err error) {
	query := `UPDATE users SET password_hash = $1, refresh_token_hash = '', updated_at = NOW() WHERE id = $2`

	ctx, end := database.TraceQuery(ctx, "users.update_password", query)
	defer func() { end(err) }()

	ct, err := r.pool.Exec(ctx, query, hash, id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", id)
	}
	return nil
}

func (r *UserRepository) getOne(ctx context.Context, op, query string, arg any) (_ *domain.User, err error) {
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() { end(err) }()

	var u domain.User
	err = r.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.Avatar.URL,
		&u.Avatar.PublicID,
		&u.PasswordHash,
		&u.Role,
		&u.RefreshTokenHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFoundMessage("user not found")
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}
