package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/straye-as/indicator-api/internal/catalog"
	"github.com/straye-as/indicator-api/internal/config"
	"github.com/straye-as/indicator-api/internal/repository"
	"github.com/straye-as/indicator-api/internal/service"
	"github.com/straye-as/indicator-api/internal/sheets"
	"github.com/straye-as/indicator-api/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	socialAssistance = "social-assistance"
	emergencyShelter = "emergency-shelter"
	familyServices   = "family-services"
)

type columnWrite struct {
	SpreadsheetID string
	SheetName     string
	Column        string
	StartRow      int
	Values        []any
}

// fakeBackend records writes and fails with the configured error
type fakeBackend struct {
	mu     sync.Mutex
	writes []columnWrite
	fail   error
}

func (b *fakeBackend) WriteColumn(_ context.Context, spreadsheetID, sheetName, column string, startRow int, values []any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes = append(b.writes, columnWrite{spreadsheetID, sheetName, column, startRow, values})
	return b.fail
}

func (b *fakeBackend) setFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail = err
}

func (b *fakeBackend) calls() []columnWrite {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]columnWrite, len(b.writes))
	copy(out, b.writes)
	return out
}

func (b *fakeBackend) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes = nil
}

type harnessOptions struct {
	backend   sheets.Backend
	noMirror  bool
	allowList []string
}

type harnessOption func(*harnessOptions)

func withoutMirror() harnessOption {
	return func(o *harnessOptions) { o.noMirror = true }
}

func withBackend(b sheets.Backend) harnessOption {
	return func(o *harnessOptions) { o.backend = b }
}

func withAllowList(ids ...string) harnessOption {
	return func(o *harnessOptions) { o.allowList = ids }
}

type harness struct {
	db             *gorm.DB
	catalog        *catalog.Catalog
	backend        *fakeBackend
	submissionRepo *repository.SubmissionRepository
	failureRepo    *repository.SyncFailureRepository
	permissions    *service.PermissionService
	carryForward   *service.CarryForwardService
	mirror         *service.MirrorService
	submissions    *service.SubmissionService
	export         *service.ExportService
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	var o harnessOptions
	for _, opt := range opts {
		opt(&o)
	}

	db := testutil.SetupTestDB(t)
	cat, err := catalog.Load("../../config/directorates.yaml")
	require.NoError(t, err)

	logger := zap.NewNop()
	limits := config.SubmissionsConfig{MinYear: 2020, MaxYear: 2050}
	redrive := config.MirrorRedriveJobConfig{MaxAttempts: 3, BatchSize: 50}

	h := &harness{db: db, catalog: cat, backend: &fakeBackend{}}

	var adapter *sheets.Adapter
	if !o.noMirror {
		var backend sheets.Backend = h.backend
		if o.backend != nil {
			backend = o.backend
		}
		adapter = sheets.NewAdapter(backend, &config.SheetsConfig{WriteTimeout: 2, RetryBackoff: 1}, logger)
	}

	userRepo := repository.NewUserRepository(db)
	linkRepo := repository.NewPermissionLinkRepository(db, logger)
	h.submissionRepo = repository.NewSubmissionRepository(db, logger)
	h.failureRepo = repository.NewSyncFailureRepository(db)

	h.permissions = service.NewPermissionService(userRepo, linkRepo, cat, config.AdminConfig{AllowList: o.allowList}, logger)
	h.carryForward = service.NewCarryForwardService(h.submissionRepo, logger)
	h.mirror = service.NewMirrorService(adapter, cat, h.submissionRepo, h.failureRepo, h.permissions, redrive, logger)
	h.submissions = service.NewSubmissionService(cat, h.permissions, h.carryForward, h.submissionRepo, h.mirror, limits, logger)
	h.export = service.NewExportService(cat, h.permissions, h.submissionRepo, limits, logger)
	return h
}

// closeDB makes every further query fail
func (h *harness) closeDB(t *testing.T) {
	t.Helper()
	sqlDB, err := h.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}

func configError(msg string) error {
	return &sheets.Error{Kind: sheets.KindConfig, Op: "test", Err: errorString(msg)}
}

func authError(msg string) error {
	return &sheets.Error{Kind: sheets.KindAuth, Op: "test", Err: errorString(msg)}
}

func transientError(msg string) error {
	return &sheets.Error{Kind: sheets.KindTransient, Op: "test", Err: errorString(msg)}
}

type errorString string

func (e errorString) Error() string { return string(e) }
