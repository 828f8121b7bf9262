package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitdeck/backend/internal/domain"
	"github.com/rabbitdeck/backend/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserService authentication and user management
type UserService struct {
	repo   repository.UserRepository
	logger *zap.Logger
}

// NewUserService creates the user service
func NewUserService(repo repository.UserRepository, logger *zap.Logger) *UserService {
	return &UserService{repo: repo, logger: logger}
}

// Authenticate verifies credentials and returns the user. Unknown usernames
// and wrong passwords both come back as ErrInvalidCredentials so callers
// can't probe for accounts.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := s.repo.UpdateLastLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("Failed to update last login time",
			zap.Error(err),
			zap.String("username", username),
		)
	}
	return user, nil
}

// CreateUser registers a new console user with a bcrypt-hashed password
func (s *UserService) CreateUser(ctx context.Context, username, password string, role domain.Role) (*domain.User, error) {
	if username == "" {
		return nil, &ValidationError{Field: "username", Message: "username is required"}
	}
	if len(password) < 8 {
		return nil, &ValidationError{Field: "password", Message: "password must be at least 8 characters"}
	}
	if role != domain.RoleAdministrator && role != domain.RoleUser {
		return nil, &ValidationError{Field: "role", Message: "unknown role: " + string(role)}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetByID loads a user with their cluster assignments
func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.repo.FindByID(ctx, id)
}
