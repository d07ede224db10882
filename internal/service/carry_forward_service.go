package service

import (
	"context"
	"fmt"

	"github.com/straye-as/indicator-api/internal/catalog"
	"github.com/straye-as/indicator-api/internal/domain"
	applog "github.com/straye-as/indicator-api/internal/logger"
	"github.com/straye-as/indicator-api/internal/repository"
	"go.uber.org/zap"
)

// CarryForwardService derives opening values of a period from the closing values of the previous one
type CarryForwardService struct {
	submissionRepo *repository.SubmissionRepository
	logger         *zap.Logger
}

// NewCarryForwardService creates a new carry-forward service
func NewCarryForwardService(submissionRepo *repository.SubmissionRepository, logger *zap.Logger) *CarryForwardService {
	return &CarryForwardService{
		submissionRepo: submissionRepo,
		logger:         logger,
	}
}

// PreviousPeriodData returns the record of the period before period, or nil when none exists
func (s *CarryForwardService) PreviousPeriodData(ctx context.Context, directorateID, unit string, period domain.Period) (*domain.Submission, error) {
	prev := period.Previous()
	record, err := s.submissionRepo.GetByPeriod(ctx, directorateID, unit, prev)
	if err != nil {
		s.logger.Error("failed to read previous period",
			append(applog.SubmissionFields(directorateID, unit, prev.String()), zap.Error(err))...)
		return nil, fmt.Errorf("%w: read previous period: %v", ErrStoreFailure, err)
	}
	return record, nil
}

// ComputeInitialValues applies rules to the previous period's record.
// Each rule yields initial = final - exits, with missing or non-numeric inputs
// counted as zero. No previous record yields an empty map.
func (s *CarryForwardService) ComputeInitialValues(ctx context.Context, directorateID, unit string, period domain.Period, rules []catalog.CarryForwardRule) (map[string]any, error) {
	values := make(map[string]any, len(rules))
	if len(rules) == 0 {
		return values, nil
	}

	prev, err := s.PreviousPeriodData(ctx, directorateID, unit, period)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		return values, nil
	}

	return ApplyCarryForward(prev.Data, rules), nil
}

// ApplyCarryForward evaluates rules against a record's data
func ApplyCarryForward(data map[string]any, rules []catalog.CarryForwardRule) map[string]any {
	values := make(map[string]any, len(rules))
	for _, rule := range rules {
		initial := domain.NumericValue(data[rule.Final])
		if rule.Exits != "" {
			initial -= domain.NumericValue(data[rule.Exits])
		}
		values[rule.Initial] = initial
	}
	return values
}
