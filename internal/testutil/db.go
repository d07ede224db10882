// Package testutil provides shared fixtures for package tests
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/straye-as/indicator-api/internal/database"
	"github.com/straye-as/indicator-api/internal/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbCounter atomic.Int64

// SetupTestDB opens a private in-memory SQLite database with the schema migrated.
// Each call gets its own database, so tests can run in parallel.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared&_busy_timeout=5000", dbCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps the in-memory database alive and serializes writers
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

// CreateTestUser inserts a user with the given role
func CreateTestUser(t *testing.T, db *gorm.DB, id string, role domain.UserRoleType) *domain.User {
	t.Helper()
	user := &domain.User{
		ID:          id,
		Email:       id + "@example.org",
		DisplayName: "Test " + id,
		Role:        role,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// GrantAccess links a user to a directorate with the given unit access
func GrantAccess(t *testing.T, db *gorm.DB, userID, directorateID string, access domain.UnitAccess) *domain.PermissionLink {
	t.Helper()
	link := &domain.PermissionLink{UserID: userID, DirectorateID: directorateID}
	link.SetUnitAccess(access)
	require.NoError(t, db.Create(link).Error)
	return link
}

// CreateTestSubmission stores a submission directly, bypassing the service layer
func CreateTestSubmission(t *testing.T, db *gorm.DB, directorateID, unit string, period domain.Period, data map[string]any) *domain.Submission {
	t.Helper()
	s := &domain.Submission{
		DirectorateID: directorateID,
		Unit:          unit,
		Year:          period.Year,
		Month:         period.Month,
		Day:           period.Day,
		ReportType:    domain.ReportTypeIndicators,
		Data:          datatypes.JSONMap(data),
		Version:       1,
		CreatedBy:     "fixture",
		UpdatedBy:     "fixture",
	}
	require.NoError(t, db.Create(s).Error)
	return s
}
