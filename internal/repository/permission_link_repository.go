package repository

import (
	"context"
	"errors"

	"github.com/straye-as/indicator-api/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PermissionLinkRepository handles user-to-directorate access links
type PermissionLinkRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewPermissionLinkRepository creates a new permission link repository
func NewPermissionLinkRepository(db *gorm.DB, logger *zap.Logger) *PermissionLinkRepository {
	return &PermissionLinkRepository{
		db:     db,
		logger: logger,
	}
}

// Get returns the link for a user and directorate, or nil when none exists
func (r *PermissionLinkRepository) Get(ctx context.Context, userID, directorateID string) (*domain.PermissionLink, error) {
	var link domain.PermissionLink
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND directorate_id = ?", userID, directorateID).
		First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// ListByUser returns every link held by a user
func (r *PermissionLinkRepository) ListByUser(ctx context.Context, userID string) ([]domain.PermissionLink, error) {
	var links []domain.PermissionLink
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("directorate_id ASC").
		Find(&links).Error
	return links, err
}

// ListByDirectorate returns every link to a directorate
func (r *PermissionLinkRepository) ListByDirectorate(ctx context.Context, directorateID string) ([]domain.PermissionLink, error) {
	var links []domain.PermissionLink
	err := r.db.WithContext(ctx).
		Where("directorate_id = ?", directorateID).
		Order("user_id ASC").
		Find(&links).Error
	return links, err
}

// List returns every link ordered by directorate and user
func (r *PermissionLinkRepository) List(ctx context.Context) ([]domain.PermissionLink, error) {
	var links []domain.PermissionLink
	err := r.db.WithContext(ctx).
		Order("directorate_id ASC").
		Order("user_id ASC").
		Find(&links).Error
	return links, err
}

// Upsert creates the link or replaces its unit access
func (r *PermissionLinkRepository) Upsert(ctx context.Context, link *domain.PermissionLink) (*domain.PermissionLink, error) {
	// allowed_units is always assigned so that switching to "all units" writes NULL
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "directorate_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"allowed_units", "granted_by", "updated_at"}),
	}).Create(link).Error
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, link.UserID, link.DirectorateID)
}

// Delete removes a link; it reports whether a link existed
func (r *PermissionLinkRepository) Delete(ctx context.Context, userID, directorateID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND directorate_id = ?", userID, directorateID).
		Delete(&domain.PermissionLink{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
