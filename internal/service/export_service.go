package service

import (
	"context"
	"fmt"

	"github.com/straye-as/indicator-api/internal/catalog"
	"github.com/straye-as/indicator-api/internal/config"
	"github.com/straye-as/indicator-api/internal/domain"
	"github.com/straye-as/indicator-api/internal/repository"
	"github.com/straye-as/indicator-api/internal/sheets"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	// defaultExportSheet names the tab used when a record has no mirror layout
	defaultExportSheet = "Report"
	xlsxContentType    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var monthHeaders = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// ExportService renders a year of stored submissions in the mirror layout
type ExportService struct {
	catalog        *catalog.Catalog
	permissions    *PermissionService
	submissionRepo *repository.SubmissionRepository
	limits         config.SubmissionsConfig
	logger         *zap.Logger
}

// NewExportService creates a new export service
func NewExportService(
	cat *catalog.Catalog,
	permissions *PermissionService,
	submissionRepo *repository.SubmissionRepository,
	limits config.SubmissionsConfig,
	logger *zap.Logger,
) *ExportService {
	return &ExportService{
		catalog:        cat,
		permissions:    permissions,
		submissionRepo: submissionRepo,
		limits:         limits,
		logger:         logger,
	}
}

// ContentType is the media type of ExportYear output
func (s *ExportService) ContentType() string {
	return xlsxContentType
}

// ExportYear builds an .xlsx workbook for one directorate record series: labels
// in column A and one column per month (B..M). Records with a sheet layout get
// one tab per block at the configured rows; others get a single tab listing
// every form field.
func (s *ExportService) ExportYear(ctx context.Context, userID, directorateID, unit string, year int) ([]byte, error) {
	unit = normalizeUnit(unit)
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
	if year < s.limits.MinYear || year > s.limits.MaxYear {
		return nil, fmt.Errorf("%w: year %d outside %d-%d", ErrInvalidInput, year, s.limits.MinYear, s.limits.MaxYear)
	}

	records, err := s.submissionRepo.GetRangeByYear(ctx, d.ID, year)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreFailure, err)
	}
	byMonth := make(map[int]map[string]any)
	for _, r := range records {
		if r.Unit != unit || r.Period().IsDaily() || r.ReportType != domain.ReportTypeIndicators {
			continue
		}
		byMonth[r.Month] = r.Data
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("failed to close export workbook", zap.Error(err))
		}
	}()

	if cfg := d.SheetFor(unit); cfg != nil && len(cfg.Blocks) > 0 {
		err = s.writeMirrorLayout(f, d, cfg, byMonth)
	} else {
		err = s.writeFormLayout(f, d, byMonth)
	}
	if err != nil {
		return nil, fmt.Errorf("build export workbook: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode export workbook: %w", err)
	}

	s.logger.Info("Year exported",
		zap.String("directorate_id", d.ID),
		zap.String("unit", unit),
		zap.Int("year", year),
		zap.Int("months", len(byMonth)),
		zap.String("user_id", userID))
	return buf.Bytes(), nil
}

func (s *ExportService) writeMirrorLayout(f *excelize.File, d *catalog.Directorate, cfg *catalog.SheetConfig, byMonth map[int]map[string]any) error {
	for i, block := range cfg.Blocks {
		tab, err := ensureSheet(f, cfg.TabFor(block))
		if err != nil {
			return err
		}
		rows := sheets.BlockRows(d, block)
		if err := writeRows(f, tab, block.StartRow, rows, d, block, byMonth); err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
	}
	return nil
}

func (s *ExportService) writeFormLayout(f *excelize.File, d *catalog.Directorate, byMonth map[int]map[string]any) error {
	tab, err := ensureSheet(f, defaultExportSheet)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(tab, "A1", d.Name); err != nil {
		return err
	}
	for m, header := range monthHeaders {
		column, _ := sheets.ColumnForMonth(m + 1)
		if err := f.SetCellValue(tab, column+"1", header); err != nil {
			return err
		}
	}
	whole := catalog.Block{}
	return writeRows(f, tab, 2, sheets.BlockRows(d, whole), d, whole, byMonth)
}

func writeRows(f *excelize.File, tab string, startRow int, rows []sheets.Row, d *catalog.Directorate, block catalog.Block, byMonth map[int]map[string]any) error {
	for i, row := range rows {
		if err := f.SetCellValue(tab, fmt.Sprintf("%s%d", sheets.LabelColumn, startRow+i), row.Label); err != nil {
			return err
		}
	}
	for month := 1; month <= 12; month++ {
		data, ok := byMonth[month]
		if !ok {
			continue
		}
		column, _ := sheets.ColumnForMonth(month)
		for i, value := range sheets.OrderedBlockValues(d, block, data) {
			if err := f.SetCellValue(tab, fmt.Sprintf("%s%d", column, startRow+i), value); err != nil {
				return err
			}
		}
	}
	return nil
}

// ensureSheet returns the tab name, creating it; the workbook's initial empty tab is reused first
func ensureSheet(f *excelize.File, name string) (string, error) {
	if idx, err := f.GetSheetIndex(name); err == nil && idx >= 0 {
		return name, nil
	}
	list := f.GetSheetList()
	if len(list) == 1 && list[0] == "Sheet1" && name != "Sheet1" {
		if rows, err := f.GetRows("Sheet1"); err == nil && len(rows) == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return "", err
			}
			return name, nil
		}
	}
	if _, err := f.NewSheet(name); err != nil {
		return "", err
	}
	return name, nil
}
