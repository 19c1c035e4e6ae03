package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/utafrali/storefront/internal/auth"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	"github.com/utafrali/storefront/internal/storage"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

const (
	bcryptCost        = 10
	minPasswordLength = 8
	avatarFolder      = "avatars"
)

// RegisterInput holds the parameters for registering a new user.
type RegisterInput struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// LoginInput holds the parameters for user login.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ChangePasswordInput holds the parameters for changing the current
// user's password.
type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
}

// UserService implements registration and session handling.
type UserService struct {
	users   repository.UserRepository
	storage storage.Storage
	jwt     *auth.JWTManager
	logger  *slog.Logger
	now     func() time.Time
}

// NewUserService creates a new user service.
func NewUserService(users repository.UserRepository, store storage.Storage, jwt *auth.JWTManager, logger *slog.Logger) *UserService {
	return &UserService{
		users:   users,
		storage: store,
		jwt:     jwt,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Register creates an account. An avatar, when given, is uploaded first and
// deleted again if the account cannot be stored.
func (s *UserService) Register(ctx context.Context, input RegisterInput, avatar *storage.UploadInput) (*domain.User, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(input.Email)
	if username == "" || email == "" || input.Password == "" {
		return nil, apperrors.InvalidInput("All fields are required")
	}
	if len(input.Password) < minPasswordLength {
		return nil, apperrors.InvalidInput(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	exists, err := s.users.Exists(ctx, username, email)
	if err != nil {
		return nil, fmt.Errorf("check existing user: %w", err)
	}
	if exists {
		return nil, apperrors.Conflict("User already exists")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var avatarImage domain.Image
	if avatar != nil {
		avatar.Folder = avatarFolder
		images, err := uploadAll(ctx, s.storage, []*storage.UploadInput{avatar}, s.logger)
		if err != nil {
			return nil, err
		}
		avatarImage = images[0]
	}

	now := s.now()
	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		Avatar:       avatarImage,
		PasswordHash: string(hashed),
		Role:         domain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		rollbackImages(ctx, s.storage, imageIDs([]domain.Image{avatarImage}), s.logger)
		if apperrors.IsAppError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// Login checks the credentials and issues a token pair. The refresh token's
// hash is stored so it can be revoked by Logout or rotated by Refresh.
func (s *UserService) Login(ctx context.Context, input LoginInput) (*domain.User, *auth.TokenPair, error) {
	if input.Email == "" {
		return nil, nil, apperrors.InvalidInput("Email is required")
	}
	if input.Password == "" {
		return nil, nil, apperrors.InvalidInput("Password is required")
	}

	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(input.Email))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, apperrors.Unauthorized("invalid email or password")
		}
		return nil, nil, fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, nil, apperrors.Unauthorized("invalid email or password")
	}

	tokens, err := s.issue(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	s.logger.InfoContext(ctx, "user logged in", slog.String("user_id", user.ID))
	return user, tokens, nil
}

// Logout revokes the user's refresh token.
func (s *UserService) Logout(ctx context.Context, userID string) error {
	if err := s.users.SetRefreshTokenHash(ctx, userID, ""); err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	s.logger.InfoContext(ctx, "user logged out", slog.String("user_id", userID))
	return nil
}

// Refresh exchanges a valid, current refresh token for a new pair. The old
// refresh token stops working.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*domain.User, *auth.TokenPair, error) {
	if refreshToken == "" {
		return nil, nil, apperrors.Unauthorized("refresh token is required")
	}

	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, nil, apperrors.Unauthorized("invalid or expired refresh token")
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, apperrors.Unauthorized("invalid refresh token")
		}
		return nil, nil, fmt.Errorf("get user: %w", err)
	}

	if user.RefreshTokenHash == "" ||
		subtle.ConstantTimeCompare([]byte(user.RefreshTokenHash), []byte(hashToken(refreshToken))) != 1 {
		return nil, nil, apperrors.Unauthorized("refresh token is expired or used")
	}

	tokens, err := s.issue(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	s.logger.InfoContext(ctx, "tokens refreshed", slog.String("user_id", user.ID))
	return user, tokens, nil
}

// Profile returns the user's account.
func (s *UserService) Profile(ctx context.Context, userID string) (*domain.User, error) {
	return s.users.GetByID(ctx, userID)
}

// UpdateAvatar uploads avatar and makes it the user's avatar. The new image
// is deleted again if it cannot be saved; the previous one is deleted only
// after the save, and a failure there is logged, not returned.
func (s *UserService) UpdateAvatar(ctx context.Context, userID string, avatar *storage.UploadInput) (*domain.User, error) {
	if avatar == nil {
		return nil, apperrors.InvalidInput("Please upload an avatar image")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	avatar.Folder = avatarFolder
	images, err := uploadAll(ctx, s.storage, []*storage.UploadInput{avatar}, s.logger)
	if err != nil {
		return nil, err
	}
	previous := user.Avatar

	if err := s.users.UpdateAvatar(ctx, userID, images[0]); err != nil {
		rollbackImages(ctx, s.storage, imageIDs(images), s.logger)
		if apperrors.IsAppError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("update avatar: %w", err)
	}
	user.Avatar = images[0]

	if previous.PublicID != "" {
		if failed := deleteImages(ctx, s.storage, []string{previous.PublicID}, s.logger); failed > 0 {
			s.logger.WarnContext(ctx, "previous avatar left in storage",
				slog.String("user_id", userID),
				slog.String("public_id", previous.PublicID),
			)
		}
	}

	s.logger.InfoContext(ctx, "avatar updated",
		slog.String("user_id", userID),
		slog.String("public_id", user.Avatar.PublicID),
	)
	return user, nil
}

// ChangePassword replaces the user's password once the current one checks
// out. The stored refresh token is revoked, so other sessions must log in
// again when their access token expires.
func (s *UserService) ChangePassword(ctx context.Context, userID string, input ChangePasswordInput) error {
	if input.CurrentPassword == "" || input.NewPassword == "" {
		return apperrors.InvalidInput("Current and new password are required")
	}
	if len(input.NewPassword) < minPasswordLength {
		return apperrors.InvalidInput(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.CurrentPassword)); err != nil {
		return apperrors.Unauthorized("Current password is incorrect")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.NewPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, string(hashed)); err != nil {
		if apperrors.IsAppError(err) {
			return err
		}
		return fmt.Errorf("update password: %w", err)
	}

	s.logger.InfoContext(ctx, "password changed", slog.String("user_id", userID))
	return nil
}

func (s *UserService) issue(ctx context.Context, user *domain.User) (*auth.TokenPair, error) {
	tokens, err := s.jwt.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("generate tokens: %w", err)
	}
	if err := s.users.SetRefreshTokenHash(ctx, user.ID, hashToken(tokens.RefreshToken)); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return tokens, nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
