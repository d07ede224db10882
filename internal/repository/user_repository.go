package repository

import (
	"context"
	"errors"
	"time"

	"github.com/straye-as/indicator-api/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetByID retrieves a user by identity-provider id; returns nil when unknown
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	err := r.db.WithContext(ctx).Order("email ASC").Find(&users).Error
	return users, err
}

// RecordLogin inserts the user on first sight and refreshes profile fields afterwards.
// The role column is never touched here, so manually assigned roles survive logins.
func (r *UserRepository) RecordLogin(ctx context.Context, id, email, displayName string) error {
	now := time.Now().UTC()
	user := &domain.User{
		ID:          id,
		Email:       email,
		DisplayName: displayName,
		Role:        domain.RoleUser,
		LastLoginAt: &now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "display_name", "last_login_at", "updated_at"}),
	}).Create(user).Error
}

// SetRole changes a user's role, creating the user row if it does not exist yet
func (r *UserRepository) SetRole(ctx context.Context, id string, role domain.UserRoleType) error {
	user := &domain.User{ID: id, Role: role}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role", "updated_at"}),
	}).Create(user).Error
}
