package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/straye-as/indicator-api/internal/auth"
	"github.com/straye-as/indicator-api/internal/catalog"
	"github.com/straye-as/indicator-api/internal/config"
	"github.com/straye-as/indicator-api/internal/domain"
	"github.com/straye-as/indicator-api/internal/http/handler"
	"github.com/straye-as/indicator-api/internal/http/middleware"
	"github.com/straye-as/indicator-api/internal/http/router"
	"github.com/straye-as/indicator-api/internal/repository"
	"github.com/straye-as/indicator-api/internal/service"
	"github.com/straye-as/indicator-api/internal/sheets"
	"github.com/straye-as/indicator-api/internal/storage"
	"github.com/straye-as/indicator-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	socialAssistance = "social-assistance"
	workbookID       = "1AbCdEfGhIjKlMnOpQrStUvWxYz-social-assistance"
	adminID          = "admin-1"
	apiKey           = "test-api-key"
)

// tokenValidator accepts any bearer token and uses it as the user id
type tokenValidator struct{}

func (tokenValidator) ValidateToken(_ context.Context, token string) (*auth.UserContext, error) {
	if token == "invalid" {
		return nil, auth.ErrInvalidToken
	}
	return &auth.UserContext{
		UserID:      token,
		DisplayName: "User " + token,
		Email:       token + "@example.org",
		AuthType:    auth.AuthTypeJWT,
	}, nil
}

type testServer struct {
	handler http.Handler
	db      *gorm.DB
	store   storage.Storage
	backend *sheets.WorkbookBackend
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()

	db := testutil.SetupTestDB(t)
	cat, err := catalog.Load("../../../config/directorates.yaml")
	require.NoError(t, err)

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	backend := sheets.NewWorkbookBackend(store, "mirrors", logger)

	cfg := &config.Config{
		App:         config.AppConfig{Name: "indicator-api", Environment: "development", Port: 8080},
		ApiKey:      config.ApiKeyConfig{Value: apiKey, UserID: "integration"},
		Admin:       config.AdminConfig{AllowList: []string{adminID}},
		Submissions: config.SubmissionsConfig{MinYear: 2020, MaxYear: 2050},
		Sheets:      config.SheetsConfig{Backend: "workbook", WriteTimeout: 5, RetryBackoff: 1},
		Security:    config.SecurityConfig{ContentTypeNosniff: true, FrameOptions: "DENY"},
		Jobs:        config.JobsConfig{MirrorRedrive: config.MirrorRedriveJobConfig{MaxAttempts: 3, BatchSize: 10}},
	}

	userRepo := repository.NewUserRepository(db)
	linkRepo := repository.NewPermissionLinkRepository(db, logger)
	submissionRepo := repository.NewSubmissionRepository(db, logger)
	failureRepo := repository.NewSyncFailureRepository(db)

	adapter := sheets.NewAdapter(backend, &cfg.Sheets, logger)
	permissions := service.NewPermissionService(userRepo, linkRepo, cat, cfg.Admin, logger)
	carryForward := service.NewCarryForwardService(submissionRepo, logger)
	mirror := service.NewMirrorService(adapter, cat, submissionRepo, failureRepo, permissions, cfg.Jobs.MirrorRedrive, logger)
	submissions := service.NewSubmissionService(cat, permissions, carryForward, submissionRepo, mirror, cfg.Submissions, logger)
	export := service.NewExportService(cat, permissions, submissionRepo, cfg.Submissions, logger)

	authMiddleware := auth.NewMiddlewareWithValidator(tokenValidator{}, cfg.ApiKey, userRepo, permissions, logger)

	rt := router.NewRouter(
		cfg,
		logger,
		db,
		cat,
		mirror,
		authMiddleware,
		middleware.NewRateLimiter(&cfg.RateLimit, logger),
		handler.NewDirectorateHandler(cat, permissions, logger),
		handler.NewSubmissionHandler(submissions, export, logger),
		handler.NewAdminHandler(permissions, mirror, logger),
		handler.NewAuthHandler(permissions, logger),
	)

	return &testServer{handler: rt.Setup(), db: db, store: store, backend: backend}
}

// seedWorkbook creates the mirror workbook with the given tabs
func (s *testServer) seedWorkbook(t *testing.T, tabs ...string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for _, tab := range tabs {
		_, err := f.NewSheet(tab)
		require.NoError(t, err)
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	_, err = s.store.Put(context.Background(), s.backend.ObjectName(workbookID), "application/octet-stream", bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
}

func (s *testServer) cell(t *testing.T, tab, ref string) string {
	t.Helper()
	rc, err := s.store.Get(context.Background(), s.backend.ObjectName(workbookID))
	require.NoError(t, err)
	defer rc.Close()
	f, err := excelize.OpenReader(rc)
	require.NoError(t, err)
	defer f.Close()
	v, err := f.GetCellValue(tab, ref)
	require.NoError(t, err)
	return v
}

func (s *testServer) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+user)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (s *testServer) grant(t *testing.T, userID string, units ...string) {
	t.Helper()
	req := domain.GrantPermissionRequest{UserID: userID, DirectorateID: socialAssistance, AllUnits: len(units) == 0, Units: units}
	w := s.do(t, http.MethodPut, "/api/v1/admin/permissions", adminID, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func report(year, month int, unit string, data map[string]any) domain.SubmitReportRequest {
	return domain.SubmitReportRequest{Year: year, Month: month, Unit: unit, Data: data}
}

// ============================================================================
// Health and authentication
// ============================================================================

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = s.do(t, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "healthy", body["status"])
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "enabled", checks["spreadsheet_mirror"].(map[string]any)["status"])

	w = s.do(t, http.MethodGet, "/health/db", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPI_Authentication(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/directorates", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/directorates", "invalid", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("x-api-key", apiKey)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[domain.AuthUserDTO](t, rec)
	assert.Equal(t, "integration", me.User.ID)
	assert.Equal(t, string(auth.AuthTypeAPIKey), me.AuthType)
}

func TestAuthMe_RecordsUser(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/auth/me", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[domain.AuthUserDTO](t, w)
	assert.Equal(t, "user-1", me.User.ID)
	assert.Equal(t, "user-1@example.org", me.User.Email)
	assert.False(t, me.User.IsAdmin)
	assert.Empty(t, me.Directorates)

	var user domain.User
	require.NoError(t, s.db.First(&user, "id = ?", "user-1").Error)
	assert.NotNil(t, user.LastLoginAt)
}

// ============================================================================
// Directorates and access administration
// ============================================================================

func TestDirectorates_VisibilityFollowsLinks(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/directorates", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]domain.DirectorateDTO](t, w))

	w = s.do(t, http.MethodGet, "/api/v1/directorates/"+socialAssistance, "user-1", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	s.grant(t, "user-1", "north")

	w = s.do(t, http.MethodGet, "/api/v1/directorates", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]domain.DirectorateDTO](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, socialAssistance, list[0].ID)
	assert.Equal(t, []string{"north"}, list[0].Units)
	assert.False(t, list[0].AllUnits)

	w = s.do(t, http.MethodGet, "/api/v1/directorates/"+socialAssistance, "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode[domain.DirectorateDetailDTO](t, w)
	assert.NotEmpty(t, detail.Form.Sections)

	w = s.do(t, http.MethodGet, "/api/v1/directorates/unknown", "user-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmin_RequiresAdmin(t *testing.T) {
	s := newTestServer(t)

	paths := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/admin/users"},
		{http.MethodGet, "/api/v1/admin/permissions"},
		{http.MethodGet, "/api/v1/admin/sync-failures"},
	}
	for _, p := range paths {
		t.Run(p.path, func(t *testing.T) {
			w := s.do(t, p.method, p.path, "user-1", nil)
			assert.Equal(t, http.StatusForbidden, w.Code)

			w = s.do(t, p.method, p.path, adminID, nil)
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestAdmin_GrantRevokeAndRoles(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPut, "/api/v1/admin/permissions", adminID,
		domain.GrantPermissionRequest{UserID: "user-2", DirectorateID: socialAssistance, Units: []string{"west"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.grant(t, "user-2", "south")
	w = s.do(t, http.MethodGet, "/api/v1/admin/permissions?userId=user-2", adminID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	links := decode[[]domain.PermissionLinkDTO](t, w)
	require.Len(t, links, 1)
	assert.Equal(t, []string{"south"}, links[0].Units)
	assert.Equal(t, adminID, links[0].GrantedBy)

	w = s.do(t, http.MethodGet, "/api/v1/auth/me", "user-2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[domain.AuthUserDTO](t, w)
	require.Len(t, me.Directorates, 1)
	assert.Equal(t, []string{"south"}, me.Directorates[0].Units)

	w = s.do(t, http.MethodDelete, "/api/v1/admin/permissions/user-2/"+socialAssistance, adminID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodDelete, "/api/v1/admin/permissions/user-2/"+socialAssistance, adminID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPut, "/api/v1/admin/users/user-2/role", adminID, domain.SetRoleRequest{Role: domain.RoleAdmin})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[domain.UserDTO](t, w).IsAdmin)

	w = s.do(t, http.MethodGet, "/api/v1/admin/users", "user-2", nil)
	assert.Equal(t, http.StatusOK, w.Code, "promoted user passes the admin guard")

	w = s.do(t, http.MethodPut, "/api/v1/admin/users/user-2/role", adminID, map[string]string{"role": "owner"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ============================================================================
// Reports
// ============================================================================

func TestReports_SubmitMirrorsAndReads(t *testing.T) {
	s := newTestServer(t)
	s.seedWorkbook(t, "Directorate", "North", "South")
	s.grant(t, "user-1", "north")

	data := map[string]any{"new_cases": 5, "referrals": 2, "followup_entries": 1, "followup_exits": 0, "followup_final": 10}

	w := s.do(t, http.MethodPost, "/api/v1/directorates/"+socialAssistance+"/reports", "user-1", report(2024, 3, "north", data))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := decode[domain.SubmitReportResponse](t, w)
	assert.True(t, first.Created)
	assert.Equal(t, "2024-03", first.Period)
	assert.True(t, first.Mirror.Mirrored, first.Mirror.Error)

	assert.Equal(t, "5", s.cell(t, "North", "D3"))
	assert.Equal(t, "2", s.cell(t, "North", "D4"))
	assert.Equal(t, "10", s.cell(t, "North", "D10"))

	data["new_cases"] = 6
	w = s.do(t, http.MethodPost, "/api/v1/directorates/"+socialAssistance+"/reports", "user-1", report(2024, 3, "north", data))
	require.Equal(t, http.StatusOK, w.Code)
	second := decode[domain.SubmitReportResponse](t, w)
	assert.False(t, second.Created)
	assert.Equal(t, first.SubmissionID, second.SubmissionID)
	assert.Equal(t, "6", s.cell(t, "North", "D3"))

	w = s.do(t, http.MethodGet, "/api/v1/directorates/"+socialAssistance+"/reports/2024/3?unit=north", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stored := decode[domain.SubmissionDTO](t, w)
	assert.Equal(t, 2, stored.Version)
	assert.EqualValues(t, 6, stored.Data["new_cases"])

	w = s.do(t, http.MethodGet, "/api/v1/directorates/"+socialAssistance+"/reports/2024/4/previous?unit=north", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	prev := decode[domain.PeriodDataDTO](t, w)
	assert.True(t, prev.Found)
	assert.Equal(t, 3, prev.Month)

	w = s.do(t, http.MethodGet, "/api/v1/directorates/"+socialAssistance+"/reports/2024/4/initial-values?unit=north", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	initial := decode[domain.InitialValuesDTO](t, w)
	assert.EqualValues(t, 10, initial.Values["followup_initial"])

	w = s.do(t, http.MethodGet, "/api/v1/directorates/"+socialAssistance+"/reports/2024", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	year := decode[domain.YearReportDTO](t, w)
	assert.Len(t, year.Submissions, 1)
}

func TestReports_Rejections(t *testing.T) {
	s := newTestServer(t)
	s.grant(t, "user-1", "north")
	path := "/api/v1/directorates/" + socialAssistance + "/reports"

	tests := []struct {
		name   string
		user   string
		body   any
		status int
	}{
		{"invalid month", "user-1", report(2024, 13, "north", map[string]any{}), http.StatusBadRequest},
		{"year outside configured range", "user-1", report(2010, 1, "north", map[string]any{}), http.StatusBadRequest},
		{"unknown field", "user-1", report(2024, 1, "north", map[string]any{"bogus": 1}), http.StatusBadRequest},
		{"wrong kind", "user-1", report(2024, 1, "north", map[string]any{"new_cases": "many"}), http.StatusBadRequest},
		{"unit not permitted", "user-1", report(2024, 1, "south", map[string]any{}), http.StatusForbidden},
		{"no link", "user-9", report(2024, 1, "north", map[string]any{}), http.StatusForbidden},
		{"malformed body", "user-1", "not an object", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, path, tt.user, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			apiErr := decode[domain.APIError](t, w)
			assert.Equal(t, tt.status, apiErr.Status)
		})
	}

	w := s.do(t, http.MethodPost, "/api/v1/directorates/unknown/reports", "user-1", report(2024, 1, "", map[string]any{}))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReports_MirrorFailureIsRecordedAndRetried(t *testing.T) {
	s := newTestServer(t)
	s.grant(t, "user-1", "north")

	// no workbook yet: the store write succeeds and the mirror degrades
	w := s.do(t, http.MethodPost, "/api/v1/directorates/"+socialAssistance+"/reports", "user-1",
		report(2024, 5, "north", map[string]any{"new_cases": 3}))
	require.Equal(t, http.StatusCreated, w.Code)
	result := decode[domain.SubmitReportResponse](t, w)
	assert.True(t, result.Mirror.Attempted)
	assert.False(t, result.Mirror.Mirrored)
	assert.NotEmpty(t, result.Mirror.Error)

	w = s.do(t, http.MethodGet, "/api/v1/admin/sync-failures?kind=config", adminID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[struct {
		Data  []domain.SyncFailureDTO `json:"data"`
		Total int64                   `json:"total"`
	}](t, w)
	require.Len(t, page.Data, 2, "one failure per sheet block")
	assert.EqualValues(t, 2, page.Total)
	for _, f := range page.Data {
		assert.Equal(t, domain.SyncFailureConfig, f.Kind)
		assert.Equal(t, "North", f.SheetName)
	}

	w = s.do(t, http.MethodPost, "/api/v1/admin/sync-failures/not-a-uuid/retry", adminID, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.seedWorkbook(t, "Directorate", "North", "South")
	for _, f := range page.Data {
		w = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/sync-failures/%s/retry", f.ID), adminID, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		retry := decode[domain.RetryResultDTO](t, w)
		assert.True(t, retry.Resolved, retry.Error)
	}
	assert.Equal(t, "3", s.cell(t, "North", "F3"))

	w = s.do(t, http.MethodGet, "/api/v1/admin/sync-failures", adminID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":0`)
}

func TestReports_DailyAndDelete(t *testing.T) {
	s := newTestServer(t)
	s.grant(t, "user-1")

	w := s.do(t, http.MethodPost, "/api/v1/directorates/"+socialAssistance+"/daily-reports", "user-1",
		domain.SubmitDailyReportRequest{Date: "2024-06-14", Unit: "north", Data: map[string]any{"new_cases": 1}})
	assert.Equal(t, http.StatusBadRequest, w.Code, "social assistance does not take daily reports")

	w = s.do(t, http.MethodPost, "/api/v1/directorates/"+socialAssistance+"/reports", "user-1",
		report(2024, 6, "north", map[string]any{"new_cases": 1}))
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodDelete, "/api/v1/directorates/"+socialAssistance+"/reports/2024/6", "user-1", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodDelete, "/api/v1/directorates/"+socialAssistance+"/reports/2024/6?unit=north", adminID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[domain.DeleteResultDTO](t, w).Deleted)

	w = s.do(t, http.MethodGet, "/api/v1/directorates/"+socialAssistance+"/reports/2024/6?unit=north", "user-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmissionCells_AdminPatch(t *testing.T) {
	s := newTestServer(t)
	s.seedWorkbook(t, "Directorate", "North", "South")
	s.grant(t, "user-1")
	record := testutil.CreateTestSubmission(t, s.db, socialAssistance, "north", domain.MonthlyPeriod(2024, 2),
		map[string]any{"new_cases": 3, "referrals": 1})
	path := fmt.Sprintf("/api/v1/submissions/%s/cells", record.ID)

	w := s.do(t, http.MethodPatch, path, "user-1", domain.UpdateCellRequest{FieldID: "new_cases", Value: 7})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPatch, path, adminID, domain.UpdateCellRequest{FieldID: "new_cases", Value: 7})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Empty(t, w.Header().Get("X-Mirror-Error"))
	patched := decode[domain.SubmissionDTO](t, w)
	assert.EqualValues(t, 7, patched.Data["new_cases"])
	assert.EqualValues(t, 1, patched.Data["referrals"])
	assert.Equal(t, "7", s.cell(t, "North", "C3"))

	w = s.do(t, http.MethodPatch, path, adminID, map[string]any{"value": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPatch, "/api/v1/submissions/not-a-uuid/cells", adminID, domain.UpdateCellRequest{FieldID: "new_cases", Value: 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportYear(t *testing.T) {
	s := newTestServer(t)
	s.grant(t, "user-1")
	testutil.CreateTestSubmission(t, s.db, socialAssistance, "north", domain.MonthlyPeriod(2024, 1),
		map[string]any{"new_cases": 4})

	w := s.do(t, http.MethodGet, "/api/v1/directorates/"+socialAssistance+"/export/2024?unit=north", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "application/vnd.openxmlformats"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "social-assistance-north-2024.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	assert.NotEmpty(t, f.GetSheetList())

	w = s.do(t, http.MethodGet, "/api/v1/directorates/"+socialAssistance+"/export/2024", "user-9", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
