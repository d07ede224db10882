package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/indicator-api/internal/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// patchAttempts bounds the optimistic read-modify-write loop in PatchField
const patchAttempts = 5

// ErrVersionConflict is returned when a patch keeps losing the race against concurrent writers
var ErrVersionConflict = errors.New("submission was modified concurrently")

// SubmissionKey is the natural key of a submission. Unit is "" for directorate-level records.
type SubmissionKey struct {
	DirectorateID string
	Unit          string
	Period        domain.Period
}

// SubmissionRepository persists submissions keyed by (directorate, unit, period)
type SubmissionRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSubmissionRepository creates a new submission repository
func NewSubmissionRepository(db *gorm.DB, logger *zap.Logger) *SubmissionRepository {
	return &SubmissionRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts or fully replaces the record for key in a single statement.
// created reports whether this statement inserted the row: an insert returns the id generated
// here, a conflicting update returns the id of the existing row.
func (r *SubmissionRepository) Upsert(ctx context.Context, key SubmissionKey, reportType domain.ReportType, data map[string]any, userID string) (*domain.Submission, bool, error) {
	if data == nil {
		data = map[string]any{}
	}
	now := time.Now().UTC()
	insertID := uuid.New()
	submission := &domain.Submission{
		DirectorateID: key.DirectorateID,
		Unit:          key.Unit,
		Year:          key.Period.Year,
		Month:         key.Period.Month,
		Day:           key.Period.Day,
		ReportType:    reportType,
		Data:          datatypes.JSONMap(data),
		Version:       1,
		CreatedBy:     userID,
		UpdatedBy:     userID,
	}
	submission.ID = insertID
	submission.CreatedAt = now
	submission.UpdatedAt = now

	err := r.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{
				{Name: "directorate_id"}, {Name: "unit"}, {Name: "year"}, {Name: "month"}, {Name: "day"},
			},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"data":        datatypes.JSONMap(data),
				"report_type": reportType,
				"updated_by":  userID,
				"updated_at":  now,
				"version":     gorm.Expr("submissions.version + 1"),
			}),
		},
		clause.Returning{Columns: []clause.Column{{Name: "id"}}},
	).Create(submission).Error
	if err != nil {
		return nil, false, fmt.Errorf("upsert submission: %w", err)
	}
	created := submission.ID == insertID

	stored, err := r.GetByID(ctx, submission.ID)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, fmt.Errorf("upsert submission: record vanished after write")
	}
	return stored, created, nil
}

// GetByPeriod returns the record for the natural key, or nil when absent
func (r *SubmissionRepository) GetByPeriod(ctx context.Context, directorateID, unit string, period domain.Period) (*domain.Submission, error) {
	var submission domain.Submission
	err := r.db.WithContext(ctx).
		Where("directorate_id = ? AND unit = ? AND year = ? AND month = ? AND day = ?",
			directorateID, unit, period.Year, period.Month, period.Day).
		First(&submission).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &submission, nil
}

// GetByID returns the record with the given id, or nil when absent
func (r *SubmissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Submission, error) {
	var submission domain.Submission
	err := r.db.WithContext(ctx).First(&submission, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &submission, nil
}

// GetRangeByYear returns every record of a directorate for one year ordered by month, day and unit
func (r *SubmissionRepository) GetRangeByYear(ctx context.Context, directorateID string, year int) ([]domain.Submission, error) {
	var submissions []domain.Submission
	err := r.db.WithContext(ctx).
		Where("directorate_id = ? AND year = ?", directorateID, year).
		Order("month ASC").
		Order("day ASC").
		Order("unit ASC").
		Find(&submissions).Error
	return submissions, err
}

// PatchField sets one field of a record without disturbing concurrent patches to other fields.
// A nil value removes the field. When unit is given it must match the record's unit.
func (r *SubmissionRepository) PatchField(ctx context.Context, id uuid.UUID, fieldID string, value any, unit *string, userID string) (*domain.Submission, error) {
	for attempt := 1; attempt <= patchAttempts; attempt++ {
		current, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if current == nil || (unit != nil && *unit != current.Unit) {
			return nil, gorm.ErrRecordNotFound
		}

		data := make(datatypes.JSONMap, len(current.Data)+1)
		for k, v := range current.Data {
			data[k] = v
		}
		if value == nil {
			delete(data, fieldID)
		} else {
			data[fieldID] = value
		}

		result := r.db.WithContext(ctx).
			Model(&domain.Submission{}).
			Where("id = ? AND version = ?", id, current.Version).
			Updates(map[string]interface{}{
				"data":       data,
				"version":    current.Version + 1,
				"updated_by": userID,
				"updated_at": time.Now().UTC(),
			})
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 1 {
			return r.GetByID(ctx, id)
		}

		r.logger.Debug("submission patch lost version race, retrying",
			zap.String("submission_id", id.String()),
			zap.Int("version", current.Version),
			zap.Int("attempt", attempt),
		)
	}
	return nil, ErrVersionConflict
}

// DeletePeriod removes the records of one month, daily entries included.
// A nil unit deletes every unit and the directorate-level record.
func (r *SubmissionRepository) DeletePeriod(ctx context.Context, directorateID string, year, month int, unit *string) (int64, error) {
	query := r.db.WithContext(ctx).
		Where("directorate_id = ? AND year = ? AND month = ?", directorateID, year, month)
	if unit != nil {
		query = query.Where("unit = ?", *unit)
	}
	result := query.Delete(&domain.Submission{})
	return result.RowsAffected, result.Error
}
