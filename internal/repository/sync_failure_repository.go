package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/indicator-api/internal/domain"
	"gorm.io/gorm"
)

// SyncFailureFilters narrows the failure listing
type SyncFailureFilters struct {
	DirectorateID string
	Kind          domain.SyncFailureKind
	// IncludeResolved also returns failures that were re-driven successfully
	IncludeResolved bool
}

type SyncFailureRepository struct {
	db *gorm.DB
}

func NewSyncFailureRepository(db *gorm.DB) *SyncFailureRepository {
	return &SyncFailureRepository{db: db}
}

func (r *SyncFailureRepository) Create(ctx context.Context, failure *domain.SyncFailure) error {
	if failure.LastAttemptAt.IsZero() {
		failure.LastAttemptAt = time.Now().UTC()
	}
	if failure.Attempts == 0 {
		failure.Attempts = 1
	}
	return r.db.WithContext(ctx).Create(failure).Error
}

// RecordOpen stores a failed block write. An open failure for the same submission block
// is updated in place and its attempt count restarts, since the write came from a fresh
// submission rather than a re-drive; otherwise a new row is inserted.
// It reports whether a row was created.
func (r *SyncFailureRepository) RecordOpen(ctx context.Context, failure *domain.SyncFailure) (bool, error) {
	created, err := r.recordOpen(ctx, failure)
	if err != nil && created {
		// lost an insert race against the open-block unique index; the winner's row exists now
		failure.ID = uuid.Nil
		return r.recordOpen(ctx, failure)
	}
	return created, err
}

func (r *SyncFailureRepository) recordOpen(ctx context.Context, failure *domain.SyncFailure) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.SyncFailure
		err := tx.Where("submission_id = ? AND block_index = ? AND resolved_at IS NULL", failure.SubmissionID, failure.BlockIndex).
			Order("last_attempt_at DESC").
			First(&existing).Error
		if failure.Attempts == 0 {
			failure.Attempts = 1
		}
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			created = true
			if failure.LastAttemptAt.IsZero() {
				failure.LastAttemptAt = time.Now().UTC()
			}
			return tx.Create(failure).Error
		case err != nil:
			return err
		}

		now := time.Now().UTC()
		if err := tx.Model(&domain.SyncFailure{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{
				"attempts":        failure.Attempts,
				"kind":            failure.Kind,
				"message":         failure.Message,
				"spreadsheet_id":  failure.SpreadsheetID,
				"sheet_name":      failure.SheetName,
				"last_attempt_at": now,
				"updated_at":      now,
			}).Error; err != nil {
			return err
		}
		return tx.First(failure, "id = ?", existing.ID).Error
	})
	return created, err
}

func (r *SyncFailureRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.SyncFailure, error) {
	var failure domain.SyncFailure
	err := r.db.WithContext(ctx).First(&failure, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &failure, nil
}

// ListUnresolved returns open failures of one kind, oldest attempt first, below maxAttempts.
// maxAttempts <= 0 disables the attempt filter.
func (r *SyncFailureRepository) ListUnresolved(ctx context.Context, kind domain.SyncFailureKind, maxAttempts, limit int) ([]domain.SyncFailure, error) {
	var failures []domain.SyncFailure
	query := r.db.WithContext(ctx).
		Where("resolved_at IS NULL AND kind = ?", kind)
	if maxAttempts > 0 {
		query = query.Where("attempts < ?", maxAttempts)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Order("last_attempt_at ASC").Find(&failures).Error
	return failures, err
}

// List returns a page of failures, newest first, and the total count
func (r *SyncFailureRepository) List(ctx context.Context, page, pageSize int, filters SyncFailureFilters) ([]domain.SyncFailure, int64, error) {
	var failures []domain.SyncFailure
	var total int64

	query := r.db.WithContext(ctx).Model(&domain.SyncFailure{})
	if filters.DirectorateID != "" {
		query = query.Where("directorate_id = ?", filters.DirectorateID)
	}
	if filters.Kind != "" {
		query = query.Where("kind = ?", filters.Kind)
	}
	if !filters.IncludeResolved {
		query = query.Where("resolved_at IS NULL")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&failures).Error
	return failures, total, err
}

// MarkResolved closes every open failure for the same submission block
func (r *SyncFailureRepository) MarkResolved(ctx context.Context, failure *domain.SyncFailure) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&domain.SyncFailure{}).
		Where("submission_id = ? AND block_index = ? AND resolved_at IS NULL", failure.SubmissionID, failure.BlockIndex).
		Updates(map[string]interface{}{
			"resolved_at": now,
			"updated_at":  now,
		}).Error
}

// RecordAttempt bumps the attempt counter and stores the latest outcome
func (r *SyncFailureRepository) RecordAttempt(ctx context.Context, id uuid.UUID, kind domain.SyncFailureKind, message string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&domain.SyncFailure{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":        gorm.Expr("attempts + 1"),
			"kind":            kind,
			"message":         message,
			"last_attempt_at": now,
			"updated_at":      now,
		}).Error
}
