package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/straye-as/indicator-api/internal/domain"
	"github.com/straye-as/indicator-api/internal/mapper"
	"github.com/straye-as/indicator-api/internal/service"
	"go.uber.org/zap"
)

type SubmissionHandler struct {
	submissions *service.SubmissionService
	export      *service.ExportService
	logger      *zap.Logger
}

func NewSubmissionHandler(submissions *service.SubmissionService, export *service.ExportService, logger *zap.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		submissions: submissions,
		export:      export,
		logger:      logger,
	}
}

func toSubmitReportResponse(result *service.SubmitResult) domain.SubmitReportResponse {
	return domain.SubmitReportResponse{
		Success:      true,
		SubmissionID: result.SubmissionID,
		Created:      result.Created,
		Period:       result.Period.String(),
		Mirror:       mapper.ToMirrorStatusDTO(result.MirrorAttempted, result.Mirrored, result.MirrorError),
	}
}

// statusForSubmit returns 201 for the first write of a period and 200 for a resubmission
func statusForSubmit(result *service.SubmitResult) int {
	if result.Created {
		return http.StatusCreated
	}
	return http.StatusOK
}

// SubmitReport godoc
// @Summary Submit a monthly report
// @Description Stores the report for (directorate, unit, month) and mirrors it to the directorate's spreadsheet.
// @Description A mirror failure never fails the request; it is reported in mirror.error.
// @Tags Reports
// @Accept json
// @Produce json
// @Param id path string true "Directorate ID"
// @Param request body domain.SubmitReportRequest true "Report"
// @Success 200 {object} domain.SubmitReportResponse "Existing report replaced"
// @Success 201 {object} domain.SubmitReportResponse "First report for the period"
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /directorates/{id}/reports [post]
func (h *SubmissionHandler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req domain.SubmitReportRequest
	if !decodeBody(w, r, &req) {
		return
	}

	reportType := req.ReportType
	if reportType == "" {
		if raw, ok := req.Data[domain.ReportTypeKey].(string); ok && raw != "" {
			reportType = domain.ReportType(raw)
		}
	}

	result, err := h.submissions.Submit(r.Context(), service.SubmitInput{
		UserID:        user.UserID,
		DirectorateID: chi.URLParam(r, "id"),
		Unit:          req.Unit,
		Period:        domain.MonthlyPeriod(req.Year, req.Month),
		ReportType:    reportType,
		Data:          req.Data,
	})
	if err != nil {
		respondServiceError(w, h.logger, err, "submit report")
		return
	}

	respondJSON(w, statusForSubmit(result), toSubmitReportResponse(result))
}

// SubmitDailyReport godoc
// @Summary Submit a daily report
// @Description Stores a report keyed by calendar date. Daily reports are not mirrored.
// @Tags Reports
// @Accept json
// @Produce json
// @Param id path string true "Directorate ID"
// @Param request body domain.SubmitDailyReportRequest true "Daily report"
// @Success 200 {object} domain.SubmitReportResponse
// @Success 201 {object} domain.SubmitReportResponse
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /directorates/{id}/daily-reports [post]
func (h *SubmissionHandler) SubmitDailyReport(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req domain.SubmitDailyReportRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.submissions.SubmitDailyReport(r.Context(), user.UserID, req.Date, chi.URLParam(r, "id"), req.Unit, req.Data)
	if err != nil {
		respondServiceError(w, h.logger, err, "submit daily report")
		return
	}

	respondJSON(w, statusForSubmit(result), toSubmitReportResponse(result))
}

// GetYear godoc
// @Summary List a year's reports
// @Description Every stored record of the directorate in the year, limited to the caller's units
// @Tags Reports
// @Produce json
// @Param id path string true "Directorate ID"
// @Param year path int true "Year"
// @Success 200 {object} domain.YearReportDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /directorates/{id}/reports/{year} [get]
func (h *SubmissionHandler) GetYear(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	year, ok := intParam(w, r, "year")
	if !ok {
		return
	}

	directorateID := chi.URLParam(r, "id")
	records, err := h.submissions.GetYear(r.Context(), user.UserID, directorateID, year)
	if err != nil {
		respondServiceError(w, h.logger, err, "list reports")
		return
	}

	respondJSON(w, http.StatusOK, domain.YearReportDTO{
		DirectorateID: directorateID,
		Year:          year,
		Submissions:   mapper.ToSubmissionDTOs(records),
	})
}

// GetPeriod godoc
// @Summary Get one month's report
// @Tags Reports
// @Produce json
// @Param id path string true "Directorate ID"
// @Param year path int true "Year"
// @Param month path int true "Month (1-12)"
// @Param unit query string false "Unit; omit or 'none' for the directorate-level report"
// @Success 200 {object} domain.SubmissionDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /directorates/{id}/reports/{year}/{month} [get]
func (h *SubmissionHandler) GetPeriod(w http.ResponseWriter, r *http.Request) {
	user, year, month, ok := h.periodRequest(w, r)
	if !ok {
		return
	}

	record, err := h.submissions.GetPeriod(r.Context(), user, chi.URLParam(r, "id"), r.URL.Query().Get("unit"), domain.MonthlyPeriod(year, month))
	if err != nil {
		respondServiceError(w, h.logger, err, "get report")
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToSubmissionDTO(record))
}

// GetPreviousMonthData godoc
// @Summary Get the previous month's data
// @Description Raw stored data of the month before year/month (January reads December of the previous year).
// @Description found is false and data is empty when nothing was stored.
// @Tags Reports
// @Produce json
// @Param id path string true "Directorate ID"
// @Param year path int true "Year"
// @Param month path int true "Month (1-12)"
// @Param unit query string false "Unit"
// @Success 200 {object} domain.PeriodDataDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /directorates/{id}/reports/{year}/{month}/previous [get]
func (h *SubmissionHandler) GetPreviousMonthData(w http.ResponseWriter, r *http.Request) {
	user, year, month, ok := h.periodRequest(w, r)
	if !ok {
		return
	}

	data, err := h.submissions.GetPreviousMonthData(r.Context(), user, chi.URLParam(r, "id"), month, year, r.URL.Query().Get("unit"))
	if err != nil {
		respondServiceError(w, h.logger, err, "get previous month data")
		return
	}

	respondJSON(w, http.StatusOK, domain.PeriodDataDTO{
		DirectorateID: data.DirectorateID,
		Unit:          data.Unit,
		Year:          data.Period.Year,
		Month:         data.Period.Month,
		Found:         data.Found,
		Data:          data.Data,
	})
}

// GetInitialValues godoc
// @Summary Get carry-forward prefill values
// @Description Initial values derived from the previous period's final and exit counts
// @Tags Reports
// @Produce json
// @Param id path string true "Directorate ID"
// @Param year path int true "Year"
// @Param month path int true "Month (1-12)"
// @Param unit query string false "Unit"
// @Success 200 {object} domain.InitialValuesDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /directorates/{id}/reports/{year}/{month}/initial-values [get]
func (h *SubmissionHandler) GetInitialValues(w http.ResponseWriter, r *http.Request) {
	user, year, month, ok := h.periodRequest(w, r)
	if !ok {
		return
	}

	directorateID := chi.URLParam(r, "id")
	unit := r.URL.Query().Get("unit")
	period := domain.MonthlyPeriod(year, month)
	values, err := h.submissions.InitialValues(r.Context(), user, directorateID, unit, period)
	if err != nil {
		respondServiceError(w, h.logger, err, "compute initial values")
		return
	}

	respondJSON(w, http.StatusOK, domain.InitialValuesDTO{
		DirectorateID: directorateID,
		Unit:          unit,
		Period:        period.String(),
		Values:        values,
	})
}

// DeleteMonth godoc
// @Summary Delete a month's reports
// @Description Administrators only. Without unit every record of the month is removed. The spreadsheet is not changed.
// @Tags Reports
// @Produce json
// @Param id path string true "Directorate ID"
// @Param year path int true "Year"
// @Param month path int true "Month (1-12)"
// @Param unit query string false "Unit; 'none' targets only the directorate-level record"
// @Success 200 {object} domain.DeleteResultDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /directorates/{id}/reports/{year}/{month} [delete]
func (h *SubmissionHandler) DeleteMonth(w http.ResponseWriter, r *http.Request) {
	user, year, month, ok := h.periodRequest(w, r)
	if !ok {
		return
	}

	deleted, err := h.submissions.DeleteMonthData(r.Context(), user, chi.URLParam(r, "id"), month, year, optionalQuery(r, "unit"))
	if err != nil {
		respondServiceError(w, h.logger, err, "delete month data")
		return
	}

	respondJSON(w, http.StatusOK, domain.DeleteResultDTO{Deleted: deleted})
}

// UpdateCell godoc
// @Summary Update one field of a stored report
// @Description Administrators only. The value must match the field's kind; the report is re-mirrored.
// @Tags Reports
// @Accept json
// @Produce json
// @Param id path string true "Submission ID" format(uuid)
// @Param request body domain.UpdateCellRequest true "Field update"
// @Success 200 {object} domain.SubmissionDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /submissions/{id}/cells [patch]
func (h *SubmissionHandler) UpdateCell(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid submission ID format")
		return
	}

	var req domain.UpdateCellRequest
	if !decodeBody(w, r, &req) {
		return
	}

	record, mirror, err := h.submissions.UpdateSubmissionCell(r.Context(), user.UserID, id, req.FieldID, req.Value, req.Unit)
	if err != nil {
		respondServiceError(w, h.logger, err, "update submission cell")
		return
	}
	if mirror.Err != nil {
		w.Header().Set("X-Mirror-Error", mirror.Err.Error())
	}

	respondJSON(w, http.StatusOK, mapper.ToSubmissionDTO(record))
}

// ExportYear godoc
// @Summary Export a year as a workbook
// @Description Builds an .xlsx with the spreadsheet mirror layout: labels in column A, January to December in B to M
// @Tags Reports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path string true "Directorate ID"
// @Param year path int true "Year"
// @Param unit query string false "Unit"
// @Success 200 {file} binary
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /directorates/{id}/export/{year} [get]
func (h *SubmissionHandler) ExportYear(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	year, ok := intParam(w, r, "year")
	if !ok {
		return
	}

	directorateID := chi.URLParam(r, "id")
	unit := r.URL.Query().Get("unit")
	raw, err := h.export.ExportYear(r.Context(), user.UserID, directorateID, unit, year)
	if err != nil {
		respondServiceError(w, h.logger, err, "export year")
		return
	}

	filename := fmt.Sprintf("%s-%d.xlsx", directorateID, year)
	if unit != "" {
		filename = fmt.Sprintf("%s-%s-%d.xlsx", directorateID, unit, year)
	}
	w.Header().Set("Content-Type", h.export.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// periodRequest reads the caller and the {year}/{month} path parameters
func (h *SubmissionHandler) periodRequest(w http.ResponseWriter, r *http.Request) (string, int, int, bool) {
	user, ok := currentUser(w, r)
	if !ok {
		return "", 0, 0, false
	}
	year, ok := intParam(w, r, "year")
	if !ok {
		return "", 0, 0, false
	}
	month, ok := intParam(w, r, "month")
	if !ok {
		return "", 0, 0, false
	}
	return user.UserID, year, month, true
}
