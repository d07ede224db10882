package service_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/straye-as/indicator-api/internal/domain"
	"github.com/straye-as/indicator-api/internal/service"
	"github.com/straye-as/indicator-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func openExport(t *testing.T, raw []byte) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func cell(t *testing.T, f *excelize.File, sheet, ref string) string {
	t.Helper()
	v, err := f.GetCellValue(sheet, ref)
	require.NoError(t, err)
	return v
}

func TestExportService_ExportYear_MirrorLayout(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	testutil.GrantAccess(t, h.db, "u", socialAssistance, domain.OnlyUnits("north"))

	testutil.CreateTestSubmission(t, h.db, socialAssistance, "north", domain.MonthlyPeriod(2024, 1),
		map[string]any{"new_cases": 4, "referrals": 1, "followup_final": 9})
	testutil.CreateTestSubmission(t, h.db, socialAssistance, "north", domain.MonthlyPeriod(2024, 12),
		map[string]any{"new_cases": 6})
	testutil.CreateTestSubmission(t, h.db, socialAssistance, "south", domain.MonthlyPeriod(2024, 1),
		map[string]any{"new_cases": 100})

	raw, err := h.export.ExportYear(ctx, "u", socialAssistance, "north", 2024)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	assert.Contains(t, h.export.ContentType(), "spreadsheetml")

	f := openExport(t, raw)
	assert.Equal(t, []string{"North"}, f.GetSheetList())

	assert.Equal(t, "New cases registered", cell(t, f, "North", "A3"))
	assert.Equal(t, "4", cell(t, f, "North", "B3"))
	assert.Equal(t, "1", cell(t, f, "North", "B4"))
	assert.Equal(t, "9", cell(t, f, "North", "B10"))
	assert.Equal(t, "6", cell(t, f, "North", "M3"))
	assert.Equal(t, "", cell(t, f, "North", "C3"))
}

func TestExportService_ExportYear_FormLayout(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	testutil.GrantAccess(t, h.db, "u", familyServices, domain.AllUnits())
	testutil.CreateTestSubmission(t, h.db, familyServices, "central", domain.MonthlyPeriod(2024, 2),
		map[string]any{"caseload_final": 11, "home_visits": 3})

	raw, err := h.export.ExportYear(ctx, "u", familyServices, "central", 2024)
	require.NoError(t, err)

	f := openExport(t, raw)
	assert.Equal(t, []string{"Report"}, f.GetSheetList())
	assert.Equal(t, "Family Services Directorate", cell(t, f, "Report", "A1"))
	assert.Equal(t, "Feb", cell(t, f, "Report", "C1"))
	assert.Equal(t, "Open cases at start of period", cell(t, f, "Report", "A2"))
	assert.Equal(t, "11", cell(t, f, "Report", "C3"))
	assert.Equal(t, "3", cell(t, f, "Report", "C4"))
}

func TestExportService_ExportYear_Rejections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	testutil.GrantAccess(t, h.db, "u", socialAssistance, domain.OnlyUnits("north"))

	_, err := h.export.ExportYear(ctx, "u", socialAssistance, "south", 2024)
	assert.ErrorIs(t, err, service.ErrForbidden)

	_, err = h.export.ExportYear(ctx, "u", "nope", "", 2024)
	assert.ErrorIs(t, err, service.ErrNotFound)

	_, err = h.export.ExportYear(ctx, "u", socialAssistance, "north", 3000)
	assert.ErrorIs(t, err, service.ErrInvalidInput)
}
