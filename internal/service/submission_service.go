package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/indicator-api/internal/catalog"
	"github.com/straye-as/indicator-api/internal/config"
	"github.com/straye-as/indicator-api/internal/domain"
	applog "github.com/straye-as/indicator-api/internal/logger"
	"github.com/straye-as/indicator-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NoUnit is accepted as an explicit spelling of the directorate-level record
const NoUnit = "none"

// SubmitInput is one submission attempt
type SubmitInput struct {
	UserID        string
	DirectorateID string
	Unit          string
	Period        domain.Period
	ReportType    domain.ReportType
	Data          map[string]any
}

// SubmitResult reports both phases of a submission. The store phase always
// succeeded when a result is returned; the mirror phase may have degraded.
type SubmitResult struct {
	SubmissionID    uuid.UUID
	Created         bool
	Period          domain.Period
	MirrorAttempted bool
	Mirrored        bool
	MirrorError     error
}

// PeriodData is the raw stored data of one period
type PeriodData struct {
	DirectorateID string
	Unit          string
	Period        domain.Period
	Found         bool
	Data          map[string]any
}

// SubmissionService orchestrates submissions: permission, validation,
// carry-forward defaults, the store write and the best-effort mirror.
type SubmissionService struct {
	catalog        *catalog.Catalog
	permissions    *PermissionService
	carryForward   *CarryForwardService
	submissionRepo *repository.SubmissionRepository
	mirror         *MirrorService
	limits         config.SubmissionsConfig
	logger         *zap.Logger
}

// NewSubmissionService creates a new submission service
func NewSubmissionService(
	cat *catalog.Catalog,
	permissions *PermissionService,
	carryForward *CarryForwardService,
	submissionRepo *repository.SubmissionRepository,
	mirror *MirrorService,
	limits config.SubmissionsConfig,
	logger *zap.Logger,
) *SubmissionService {
	return &SubmissionService{
		catalog:        cat,
		permissions:    permissions,
		carryForward:   carryForward,
		submissionRepo: submissionRepo,
		mirror:         mirror,
		limits:         limits,
		logger:         logger,
	}
}

// Submit stores a submission and mirrors it to the directorate's sheet
func (s *SubmissionService) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	in.Unit = normalizeUnit(in.Unit)
	if in.ReportType == "" {
		in.ReportType = domain.ReportTypeIndicators
	}
	log := s.logger.With(applog.SubmissionFields(in.DirectorateID, in.Unit, in.Period.String())...).
		With(zap.String("user_id", in.UserID))

	d, ok := s.catalog.Directorate(in.DirectorateID)
	if !ok {
		return nil, stepErr(StepLookup, fmt.Errorf("%w: directorate %q", ErrNotFound, in.DirectorateID))
	}

	if !s.permissions.CanAccessUnit(ctx, in.UserID, d.ID, in.Unit) {
		log.Warn("Submission denied")
		return nil, stepErr(StepPermission, fmt.Errorf("%w: no access to directorate %q unit %q", ErrForbidden, d.ID, in.Unit))
	}

	if err := s.validateSubmission(d, in); err != nil {
		return nil, stepErr(StepValidate, err)
	}

	data := make(map[string]any, len(in.Data)+1)
	if in.ReportType == domain.ReportTypeIndicators {
		defaults, err := s.firstSubmissionDefaults(ctx, d, in.Unit, in.Period)
		if err != nil {
			return nil, stepErr(StepStore, err)
		}
		for k, v := range defaults {
			data[k] = v
		}
	}
	for k, v := range in.Data {
		data[k] = v
	}
	data[domain.ReportTypeKey] = string(in.ReportType)

	key := repository.SubmissionKey{DirectorateID: d.ID, Unit: in.Unit, Period: in.Period}
	stored, created, err := s.submissionRepo.Upsert(ctx, key, in.ReportType, data, in.UserID)
	if err != nil {
		log.Error("Failed to store submission", zap.Error(err))
		return nil, stepErr(StepStore, fmt.Errorf("%w: %v", ErrStoreFailure, err))
	}

	result := &SubmitResult{
		SubmissionID: stored.ID,
		Created:      created,
		Period:       in.Period,
	}
	if in.ReportType == domain.ReportTypeIndicators {
		mirror := s.mirror.Mirror(ctx, d, stored)
		result.MirrorAttempted = mirror.Attempted
		result.Mirrored = mirror.Mirrored
		result.MirrorError = mirror.Err
	}

	log.Info("Submission stored",
		zap.String("submission_id", stored.ID.String()),
		zap.Bool("created", created),
		zap.Int("version", stored.Version),
		zap.Bool("mirrored", result.Mirrored))
	return result, nil
}

// firstSubmissionDefaults returns carry-forward values when nothing is stored yet for the period
func (s *SubmissionService) firstSubmissionDefaults(ctx context.Context, d *catalog.Directorate, unit string, period domain.Period) (map[string]any, error) {
	rules := s.catalog.RulesFor(d)
	if len(rules) == 0 {
		return nil, nil
	}
	existing, err := s.submissionRepo.GetByPeriod(ctx, d.ID, unit, period)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreFailure, err)
	}
	if existing != nil {
		return nil, nil
	}
	return s.carryForward.ComputeInitialValues(ctx, d.ID, unit, period, rules)
}

func (s *SubmissionService) validateSubmission(d *catalog.Directorate, in SubmitInput) error {
	var errs []error

	if err := in.Period.Validate(s.limits.MinYear, s.limits.MaxYear); err != nil {
		errs = append(errs, err)
	}
	if in.Period.IsDaily() && !d.Daily {
		errs = append(errs, fmt.Errorf("directorate %q does not accept daily reports", d.ID))
	}
	if err := validateUnit(d, in.Unit); err != nil {
		errs = append(errs, err)
	}

	switch in.ReportType {
	case domain.ReportTypeIndicators:
		errs = append(errs, validateIndicatorData(d, in.Data)...)
	case domain.ReportTypeNarrative:
		for key, value := range in.Data {
			if !domain.IsScalar(value) {
				errs = append(errs, fmt.Errorf("%s: value must be a scalar", key))
			}
		}
	default:
		errs = append(errs, fmt.Errorf("unknown report type %q", in.ReportType))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrInvalidInput, errors.Join(errs...))
}

func validateUnit(d *catalog.Directorate, unit string) error {
	if unit == "" {
		return nil
	}
	if !d.HasUnits() {
		return fmt.Errorf("directorate %q has no units", d.ID)
	}
	if !d.HasUnit(unit) {
		return fmt.Errorf("unit %q does not belong to directorate %q", unit, d.ID)
	}
	return nil
}

func validateIndicatorData(d *catalog.Directorate, data map[string]any) []error {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, key := range keys {
		value := data[key]
		if domain.IsMetadataKey(key) {
			if !domain.IsScalar(value) {
				errs = append(errs, fmt.Errorf("%s: metadata must be a scalar", key))
			}
			continue
		}
		field, ok := d.Field(key)
		if !ok {
			errs = append(errs, fmt.Errorf("%s: not a field of directorate %q", key, d.ID))
			continue
		}
		if err := field.CheckValue(value); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// SubmitReport stores a monthly report. The report type is read from the
// _report_type metadata key and defaults to indicators.
func (s *SubmissionService) SubmitReport(ctx context.Context, userID string, data map[string]any, month, year int, directorateID, unit string) (*SubmitResult, error) {
	reportType := domain.ReportTypeIndicators
	if raw, ok := data[domain.ReportTypeKey].(string); ok && raw != "" {
		reportType = domain.ReportType(raw)
	}
	return s.Submit(ctx, SubmitInput{
		UserID:        userID,
		DirectorateID: directorateID,
		Unit:          unit,
		Period:        domain.MonthlyPeriod(year, month),
		ReportType:    reportType,
		Data:          data,
	})
}

// SubmitDailyReport stores a report keyed by calendar date (YYYY-MM-DD).
// Daily records are never mirrored.
func (s *SubmissionService) SubmitDailyReport(ctx context.Context, userID, date, directorateID, unit string, data map[string]any) (*SubmitResult, error) {
	day, err := time.Parse("2006-01-02", strings.TrimSpace(date))
	if err != nil {
		return nil, stepErr(StepValidate, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidInput, date))
	}
	return s.Submit(ctx, SubmitInput{
		UserID:        userID,
		DirectorateID: directorateID,
		Unit:          unit,
		Period:        domain.DailyPeriod(day),
		ReportType:    domain.ReportTypeIndicators,
		Data:          data,
	})
}

// authorizeRead resolves the directorate and checks unit access for a read
func (s *SubmissionService) authorizeRead(ctx context.Context, userID, directorateID, unit string, period domain.Period) (*catalog.Directorate, error) {
	d, ok := s.catalog.Directorate(directorateID)
	if !ok {
		return nil, fmt.Errorf("%w: directorate %q", ErrNotFound, directorateID)
	}
	if !s.permissions.CanAccessUnit(ctx, userID, d.ID, unit) {
		return nil, fmt.Errorf("%w: no access to directorate %q unit %q", ErrForbidden, d.ID, unit)
	}
	if err := validateUnit(d, unit); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := period.Validate(s.limits.MinYear, s.limits.MaxYear); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return d, nil
}

// GetPreviousMonthData returns the raw record of the month before month/year
func (s *SubmissionService) GetPreviousMonthData(ctx context.Context, userID, directorateID string, month, year int, unit string) (*PeriodData, error) {
	unit = normalizeUnit(unit)
	period := domain.MonthlyPeriod(year, month)
	if _, err := s.authorizeRead(ctx, userID, directorateID, unit, period); err != nil {
		return nil, err
	}

	record, err := s.carryForward.PreviousPeriodData(ctx, directorateID, unit, period)
	if err != nil {
		return nil, err
	}
	out := &PeriodData{
		DirectorateID: directorateID,
		Unit:          unit,
		Period:        period.Previous(),
		Data:          map[string]any{},
	}
	if record != nil {
		out.Found = true
		out.Data = record.Data
	}
	return out, nil
}

// InitialValues returns the carry-forward prefill for a period
func (s *SubmissionService) InitialValues(ctx context.Context, userID, directorateID, unit string, period domain.Period) (map[string]any, error) {
	unit = normalizeUnit(unit)
	d, err := s.authorizeRead(ctx, userID, directorateID, unit, period)
	if err != nil {
		return nil, err
	}
	return s.carryForward.ComputeInitialValues(ctx, d.ID, unit, period, s.catalog.RulesFor(d))
}

// GetPeriod returns the stored record of one period
func (s *SubmissionService) GetPeriod(ctx context.Context, userID, directorateID, unit string, period domain.Period) (*domain.Submission, error) {
	unit = normalizeUnit(unit)
	if _, err := s.authorizeRead(ctx, userID, directorateID, unit, period); err != nil {
		return nil, err
	}
	record, err := s.submissionRepo.GetByPeriod(ctx, directorateID, unit, period)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreFailure, err)
	}
	if record == nil {
		return nil, fmt.Errorf("%w: no submission for %s", ErrNotFound, period)
	}
	return record, nil
}

// GetYear returns a directorate's records for one year, limited to the units the caller may see
func (s *SubmissionService) GetYear(ctx context.Context, userID, directorateID string, year int) ([]domain.Submission, error) {
	d, ok := s.catalog.Directorate(directorateID)
	if !ok {
		return nil, fmt.Errorf("%w: directorate %q", ErrNotFound, directorateID)
	}
	access := s.permissions.AllowedUnits(ctx, userID, d.ID)
	if !access.HasLink() {
		return nil, fmt.Errorf("%w: no access to directorate %q", ErrForbidden, d.ID)
	}
	if year < s.limits.MinYear || year > s.limits.MaxYear {
		return nil, fmt.Errorf("%w: year %d outside %d-%d", ErrInvalidInput, year, s.limits.MinYear, s.limits.MaxYear)
	}

	records, err := s.submissionRepo.GetRangeByYear(ctx, d.ID, year)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreFailure, err)
	}
	if !d.HasUnits() || access.IsAll() {
		return records, nil
	}

	visible := make([]domain.Submission, 0, len(records))
	for _, r := range records {
		if r.Unit != "" && access.Allows(r.Unit) {
			visible = append(visible, r)
		}
	}
	return visible, nil
}

// UpdateSubmissionCell sets one field of a stored record. Administrators only.
// The record is re-mirrored best-effort; the returned MirrorResult reports the outcome.
func (s *SubmissionService) UpdateSubmissionCell(ctx context.Context, userID string, submissionID uuid.UUID, fieldID string, value any, unit *string) (*domain.Submission, MirrorResult, error) {
	if !s.permissions.IsAdmin(ctx, userID) {
		return nil, MirrorResult{}, fmt.Errorf("%w: administrator role required", ErrForbidden)
	}

	record, err := s.submissionRepo.GetByID(ctx, submissionID)
	if err != nil {
		return nil, MirrorResult{}, fmt.Errorf("%w: %v", ErrStoreFailure, err)
	}
	if record == nil {
		return nil, MirrorResult{}, fmt.Errorf("%w: submission %s", ErrNotFound, submissionID)
	}
	d, ok := s.catalog.Directorate(record.DirectorateID)
	if !ok {
		return nil, MirrorResult{}, fmt.Errorf("%w: directorate %q", ErrNotFound, record.DirectorateID)
	}
	field, ok := d.Field(fieldID)
	if !ok {
		return nil, MirrorResult{}, fmt.Errorf("%w: %q is not a field of directorate %q", ErrInvalidInput, fieldID, d.ID)
	}
	if err := field.CheckValue(value); err != nil {
		return nil, MirrorResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if unit != nil {
		normalized := normalizeUnit(*unit)
		unit = &normalized
	}

	patched, err := s.submissionRepo.PatchField(ctx, submissionID, fieldID, value, unit, userID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, MirrorResult{}, fmt.Errorf("%w: submission %s", ErrNotFound, submissionID)
	case errors.Is(err, repository.ErrVersionConflict):
		return nil, MirrorResult{}, fmt.Errorf("%w: %v", ErrConflict, err)
	case err != nil:
		return nil, MirrorResult{}, fmt.Errorf("%w: %v", ErrStoreFailure, err)
	}

	s.logger.Info("Submission cell updated",
		zap.String("submission_id", submissionID.String()),
		zap.String("field_id", fieldID),
		zap.String("user_id", userID),
		zap.Int("version", patched.Version))

	var mirror MirrorResult
	if patched.ReportType == domain.ReportTypeIndicators {
		mirror = s.mirror.Mirror(ctx, d, patched)
	}
	return patched, mirror, nil
}

// DeleteMonthData removes a month's records. Administrators only.
// A nil unit removes every unit and the directorate-level record.
// The spreadsheet mirror is left untouched.
func (s *SubmissionService) DeleteMonthData(ctx context.Context, userID, directorateID string, month, year int, unit *string) (int64, error) {
	if !s.permissions.IsAdmin(ctx, userID) {
		return 0, fmt.Errorf("%w: administrator role required", ErrForbidden)
	}
	d, ok := s.catalog.Directorate(directorateID)
	if !ok {
		return 0, fmt.Errorf("%w: directorate %q", ErrNotFound, directorateID)
	}
	if err := domain.MonthlyPeriod(year, month).Validate(s.limits.MinYear, s.limits.MaxYear); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if unit != nil {
		normalized := normalizeUnit(*unit)
		if err := validateUnit(d, normalized); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		unit = &normalized
	}

	deleted, err := s.submissionRepo.DeletePeriod(ctx, d.ID, year, month, unit)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreFailure, err)
	}

	fields := []zap.Field{
		zap.String("directorate_id", d.ID),
		zap.String("period", domain.MonthlyPeriod(year, month).String()),
		zap.String("user_id", userID),
		zap.Int64("deleted", deleted),
	}
	if unit != nil {
		fields = append(fields, zap.String("unit", *unit))
	}
	s.logger.Info("Month data deleted", fields...)
	return deleted, nil
}

func normalizeUnit(unit string) string {
	unit = strings.TrimSpace(unit)
	if strings.EqualFold(unit, NoUnit) {
		return ""
	}
	return unit
}
