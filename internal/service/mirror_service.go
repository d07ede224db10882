package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/straye-as/indicator-api/internal/catalog"
	"github.com/straye-as/indicator-api/internal/config"
	"github.com/straye-as/indicator-api/internal/domain"
	applog "github.com/straye-as/indicator-api/internal/logger"
	"github.com/straye-as/indicator-api/internal/repository"
	"github.com/straye-as/indicator-api/internal/sheets"
	"go.uber.org/zap"
)

// MirrorResult is the outcome of mirroring one stored submission
type MirrorResult struct {
	// Attempted is false when no sheet target applies or the mirror is disabled
	Attempted bool
	Mirrored  bool
	Err       error
}

// RedriveSummary counts the outcome of one re-drive pass
type RedriveSummary struct {
	Processed int
	Resolved  int
	Failed    int
}

// RetryResult is the outcome of a manual re-drive of one failure
type RetryResult struct {
	FailureID uuid.UUID
	Resolved  bool
	Err       error
}

// MirrorService writes stored submissions to the spreadsheet mirror and owns the
// failure channel operators use to see and re-drive degraded writes.
type MirrorService struct {
	adapter        *sheets.Adapter
	catalog        *catalog.Catalog
	submissionRepo *repository.SubmissionRepository
	failureRepo    *repository.SyncFailureRepository
	permissions    *PermissionService
	redrive        config.MirrorRedriveJobConfig
	logger         *zap.Logger
}

// NewMirrorService creates a mirror service. A nil adapter disables mirroring.
func NewMirrorService(
	adapter *sheets.Adapter,
	cat *catalog.Catalog,
	submissionRepo *repository.SubmissionRepository,
	failureRepo *repository.SyncFailureRepository,
	permissions *PermissionService,
	redrive config.MirrorRedriveJobConfig,
	logger *zap.Logger,
) *MirrorService {
	return &MirrorService{
		adapter:        adapter,
		catalog:        cat,
		submissionRepo: submissionRepo,
		failureRepo:    failureRepo,
		permissions:    permissions,
		redrive:        redrive,
		logger:         logger,
	}
}

// Enabled reports whether a mirror backend is configured
func (s *MirrorService) Enabled() bool {
	return s.adapter != nil
}

// Mirror writes every block of the submission's sheet target. Failures are
// logged and recorded per block; they never propagate as an error return.
func (s *MirrorService) Mirror(ctx context.Context, d *catalog.Directorate, sub *domain.Submission) MirrorResult {
	if s.adapter == nil || sub.Period().IsDaily() {
		return MirrorResult{}
	}
	cfg := d.SheetFor(sub.Unit)
	if cfg == nil {
		return MirrorResult{}
	}

	var errs []error
	for i, target := range sheets.Targets(cfg) {
		if err := s.writeBlock(ctx, d, cfg, i, target, sub); err != nil {
			s.logWriteFailure(sub, target, err)
			s.RecordFailure(ctx, sub, target, err)
			errs = append(errs, err)
			continue
		}
		// a successful write supersedes earlier failures for the same block
		if err := s.failureRepo.MarkResolved(ctx, &domain.SyncFailure{SubmissionID: sub.ID, BlockIndex: i}); err != nil {
			s.logger.Warn("failed to resolve earlier mirror failures",
				zap.String("submission_id", sub.ID.String()),
				zap.Error(err))
		}
	}

	if len(errs) > 0 {
		return MirrorResult{Attempted: true, Err: errors.Join(errs...)}
	}
	return MirrorResult{Attempted: true, Mirrored: true}
}

func (s *MirrorService) writeBlock(ctx context.Context, d *catalog.Directorate, cfg *catalog.SheetConfig, index int, target sheets.Target, sub *domain.Submission) error {
	values := sheets.OrderedBlockValues(d, cfg.Blocks[index], sub.Data)
	return s.adapter.Write(ctx, target, sub.Month, values)
}

func (s *MirrorService) logWriteFailure(sub *domain.Submission, target sheets.Target, err error) {
	fields := append(applog.SubmissionFields(sub.DirectorateID, sub.Unit, sub.Period().String()),
		zap.String("submission_id", sub.ID.String()),
		zap.String("spreadsheet_id", target.SpreadsheetID),
		zap.String("sheet_name", target.SheetName),
		zap.Int("block_index", target.BlockIndex),
		zap.String("kind", sheets.KindOf(err).String()),
		zap.Error(err),
	)
	if sheets.IsRetryable(err) {
		s.logger.Warn("Mirror write failed", fields...)
		return
	}
	// auth and config failures need an operator
	s.logger.Error("Mirror write failed", fields...)
}

// RecordFailure persists a failed block write to the failure channel.
// Repeated failures of one submission block share a single open row.
func (s *MirrorService) RecordFailure(ctx context.Context, sub *domain.Submission, target sheets.Target, writeErr error) {
	failure := &domain.SyncFailure{
		SubmissionID:  sub.ID,
		DirectorateID: sub.DirectorateID,
		Unit:          sub.Unit,
		Year:          sub.Year,
		Month:         sub.Month,
		SpreadsheetID: target.SpreadsheetID,
		SheetName:     target.SheetName,
		BlockIndex:    target.BlockIndex,
		Kind:          failureKind(writeErr),
		Message:       writeErr.Error(),
	}
	if _, err := s.failureRepo.RecordOpen(ctx, failure); err != nil {
		s.logger.Error("failed to record mirror failure",
			zap.String("submission_id", sub.ID.String()),
			zap.Int("block_index", target.BlockIndex),
			zap.NamedError("write_error", writeErr),
			zap.Error(err))
	}
}

func failureKind(err error) domain.SyncFailureKind {
	return domain.SyncFailureKind(sheets.KindOf(err).String())
}

// RedriveTransient re-mirrors open transient failures from the stored record.
// Failures that reach the attempt limit stay open for an operator.
func (s *MirrorService) RedriveTransient(ctx context.Context) (RedriveSummary, error) {
	var summary RedriveSummary
	if s.adapter == nil {
		return summary, nil
	}

	failures, err := s.failureRepo.ListUnresolved(ctx, domain.SyncFailureTransient, s.redrive.MaxAttempts, s.redrive.BatchSize)
	if err != nil {
		return summary, fmt.Errorf("%w: list mirror failures: %v", ErrStoreFailure, err)
	}

	for i := range failures {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		summary.Processed++
		resolved, err := s.redriveOne(ctx, &failures[i])
		if err != nil {
			return summary, err
		}
		if resolved {
			summary.Resolved++
		} else {
			summary.Failed++
		}
	}
	return summary, nil
}

// redriveOne re-writes one failed block. It returns an error only when the store itself fails.
func (s *MirrorService) redriveOne(ctx context.Context, failure *domain.SyncFailure) (bool, error) {
	log := s.logger.With(
		zap.String("failure_id", failure.ID.String()),
		zap.String("submission_id", failure.SubmissionID.String()),
		zap.Int("block_index", failure.BlockIndex),
	)

	sub, err := s.submissionRepo.GetByID(ctx, failure.SubmissionID)
	if err != nil {
		return false, fmt.Errorf("%w: load submission: %v", ErrStoreFailure, err)
	}
	if sub == nil {
		log.Info("Submission no longer exists, closing mirror failure")
		return true, s.failureRepo.MarkResolved(ctx, failure)
	}

	target, cfg, d, err := s.resolveTarget(sub, failure.BlockIndex)
	if err != nil {
		log.Error("Mirror failure no longer maps to a sheet block", zap.Error(err))
		return false, s.failureRepo.RecordAttempt(ctx, failure.ID, domain.SyncFailureConfig, err.Error())
	}

	if err := s.writeBlock(ctx, d, cfg, failure.BlockIndex, target, sub); err != nil {
		s.logWriteFailure(sub, target, err)
		return false, s.failureRepo.RecordAttempt(ctx, failure.ID, failureKind(err), err.Error())
	}

	log.Info("Mirror failure re-driven")
	return true, s.failureRepo.MarkResolved(ctx, failure)
}

func (s *MirrorService) resolveTarget(sub *domain.Submission, blockIndex int) (sheets.Target, *catalog.SheetConfig, *catalog.Directorate, error) {
	d, ok := s.catalog.Directorate(sub.DirectorateID)
	if !ok {
		return sheets.Target{}, nil, nil, fmt.Errorf("directorate %q is not in the catalog", sub.DirectorateID)
	}
	cfg := d.SheetFor(sub.Unit)
	targets := sheets.Targets(cfg)
	if blockIndex < 0 || blockIndex >= len(targets) {
		return sheets.Target{}, nil, nil, fmt.Errorf("block %d is not configured for unit %q", blockIndex, sub.Unit)
	}
	return targets[blockIndex], cfg, d, nil
}

// ReportTerminal logs every open failure that needs an operator and returns their count
func (s *MirrorService) ReportTerminal(ctx context.Context) (int, error) {
	total := 0
	for _, kind := range []domain.SyncFailureKind{domain.SyncFailureAuth, domain.SyncFailureConfig} {
		failures, err := s.failureRepo.ListUnresolved(ctx, kind, 0, 0)
		if err != nil {
			return total, fmt.Errorf("%w: list mirror failures: %v", ErrStoreFailure, err)
		}
		for _, f := range failures {
			s.logger.Error("Mirror failure requires operator action",
				zap.String("failure_id", f.ID.String()),
				zap.String("kind", string(f.Kind)),
				zap.String("directorate_id", f.DirectorateID),
				zap.String("unit", f.Unit),
				zap.String("spreadsheet_id", f.SpreadsheetID),
				zap.String("sheet_name", f.SheetName),
				zap.String("message", f.Message),
				zap.Int("attempts", f.Attempts))
		}
		total += len(failures)
	}

	exhausted, err := s.failureRepo.ListUnresolved(ctx, domain.SyncFailureTransient, 0, 0)
	if err != nil {
		return total, fmt.Errorf("%w: list mirror failures: %v", ErrStoreFailure, err)
	}
	for _, f := range exhausted {
		if s.redrive.MaxAttempts > 0 && f.Attempts >= s.redrive.MaxAttempts {
			s.logger.Error("Mirror failure exhausted automatic retries",
				zap.String("failure_id", f.ID.String()),
				zap.String("directorate_id", f.DirectorateID),
				zap.Int("attempts", f.Attempts))
			total++
		}
	}
	return total, nil
}

// Retry re-drives one failure on behalf of an administrator, whatever its kind
func (s *MirrorService) Retry(ctx context.Context, userID string, failureID uuid.UUID) (*RetryResult, error) {
	if !s.permissions.IsAdmin(ctx, userID) {
		return nil, fmt.Errorf("%w: administrator role required", ErrForbidden)
	}
	if s.adapter == nil {
		return nil, fmt.Errorf("%w: spreadsheet mirror is disabled", ErrSyncFailure)
	}

	failure, err := s.failureRepo.GetByID(ctx, failureID)
	if err != nil {
		return nil, fmt.Errorf("%w: load mirror failure: %v", ErrStoreFailure, err)
	}
	if failure == nil {
		return nil, fmt.Errorf("%w: mirror failure %s", ErrNotFound, failureID)
	}
	if failure.ResolvedAt != nil {
		return &RetryResult{FailureID: failureID, Resolved: true}, nil
	}

	sub, err := s.submissionRepo.GetByID(ctx, failure.SubmissionID)
	if err != nil {
		return nil, fmt.Errorf("%w: load submission: %v", ErrStoreFailure, err)
	}
	if sub == nil {
		if err := s.failureRepo.MarkResolved(ctx, failure); err != nil {
			return nil, fmt.Errorf("%w: resolve mirror failure: %v", ErrStoreFailure, err)
		}
		return &RetryResult{FailureID: failureID, Resolved: true}, nil
	}

	target, cfg, d, err := s.resolveTarget(sub, failure.BlockIndex)
	if err == nil {
		err = s.writeBlock(ctx, d, cfg, failure.BlockIndex, target, sub)
	}
	if err != nil {
		s.logger.Warn("Manual mirror re-drive failed",
			zap.String("failure_id", failureID.String()),
			zap.String("user_id", userID),
			zap.Error(err))
		if recErr := s.failureRepo.RecordAttempt(ctx, failure.ID, failureKind(err), err.Error()); recErr != nil {
			return nil, fmt.Errorf("%w: record attempt: %v", ErrStoreFailure, recErr)
		}
		return &RetryResult{FailureID: failureID, Err: err}, nil
	}

	if err := s.failureRepo.MarkResolved(ctx, failure); err != nil {
		return nil, fmt.Errorf("%w: resolve mirror failure: %v", ErrStoreFailure, err)
	}
	s.logger.Info("Mirror failure re-driven manually",
		zap.String("failure_id", failureID.String()),
		zap.String("user_id", userID))
	return &RetryResult{FailureID: failureID, Resolved: true}, nil
}

// ListFailures returns a page of mirror failures for administrators
func (s *MirrorService) ListFailures(ctx context.Context, userID string, page, pageSize int, filters repository.SyncFailureFilters) ([]domain.SyncFailure, int64, error) {
	if !s.permissions.IsAdmin(ctx, userID) {
		return nil, 0, fmt.Errorf("%w: administrator role required", ErrForbidden)
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	failures, total, err := s.failureRepo.List(ctx, page, pageSize, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list mirror failures: %v", ErrStoreFailure, err)
	}
	return failures, total, nil
}
