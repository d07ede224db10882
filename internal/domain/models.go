package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// BeforeCreate assigns an ID when the caller did not set one
func (m *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// UserRoleType represents the role attribute stored on a user
type UserRoleType string

const (
	RoleAdmin UserRoleType = "admin"
	RoleUser  UserRoleType = "user"
)

// IsValidRole reports whether r is a known role
func IsValidRole(r string) bool {
	switch UserRoleType(r) {
	case RoleAdmin, RoleUser:
		return true
	}
	return false
}

// User represents an authenticated person known to the system
type User struct {
	ID          string       `gorm:"type:varchar(100);primaryKey" json:"id"`
	Email       string       `gorm:"type:varchar(255);index" json:"email"`
	DisplayName string       `gorm:"type:varchar(200);column:display_name" json:"displayName"`
	Role        UserRoleType `gorm:"type:varchar(20);not null;default:'user'" json:"role"`
	LastLoginAt *time.Time   `gorm:"column:last_login_at" json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time    `gorm:"not null" json:"createdAt"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updatedAt"`
}

// PermissionLink grants a user access to one directorate.
// AllowedUnits is stored as JSON: NULL means every unit, [] means no unit,
// and a non-empty array lists the permitted unit names.
type PermissionLink struct {
	BaseModel
	UserID        string         `gorm:"type:varchar(100);not null;uniqueIndex:idx_permission_link_user_directorate;column:user_id"`
	DirectorateID string         `gorm:"type:varchar(100);not null;uniqueIndex:idx_permission_link_user_directorate;index;column:directorate_id"`
	AllowedUnits  datatypes.JSON `gorm:"column:allowed_units"`
	GrantedBy     string         `gorm:"type:varchar(100);column:granted_by"`
}

// UnitAccess converts the stored allowed_units column into the tagged variant.
// A malformed column resolves to an empty unit set so that bad data never widens access.
func (l *PermissionLink) UnitAccess() UnitAccess {
	if len(l.AllowedUnits) == 0 || string(l.AllowedUnits) == "null" {
		return AllUnits()
	}
	var units []string
	if err := json.Unmarshal(l.AllowedUnits, &units); err != nil {
		return OnlyUnits()
	}
	return OnlyUnits(units...)
}

// SetUnitAccess stores access back into the allowed_units column.
// NoAccess cannot be stored on a link; it is represented by the absence of a link.
func (l *PermissionLink) SetUnitAccess(access UnitAccess) {
	if access.IsAll() {
		l.AllowedUnits = nil
		return
	}
	units := access.Units()
	if units == nil {
		units = []string{}
	}
	raw, _ := json.Marshal(units)
	l.AllowedUnits = datatypes.JSON(raw)
}

// ReportType discriminates submissions sharing the store
type ReportType string

const (
	ReportTypeIndicators ReportType = "indicators"
	ReportTypeNarrative  ReportType = "narrative"
)

// ReportTypeKey is the metadata key carrying the report type inside submission data
const ReportTypeKey = "_report_type"

// Submission is the stored record for one (directorate, unit, period) key.
// Unit is "" for directorate-level records; Day is 0 for monthly records.
type Submission struct {
	BaseModel
	DirectorateID string            `gorm:"type:varchar(100);not null;uniqueIndex:idx_submission_period;column:directorate_id"`
	Unit          string            `gorm:"type:varchar(100);not null;default:'';uniqueIndex:idx_submission_period"`
	Year          int               `gorm:"not null;uniqueIndex:idx_submission_period"`
	Month         int               `gorm:"not null;uniqueIndex:idx_submission_period"`
	Day           int               `gorm:"not null;default:0;uniqueIndex:idx_submission_period"`
	ReportType    ReportType        `gorm:"type:varchar(50);not null;default:'indicators';column:report_type"`
	Data          datatypes.JSONMap `gorm:"not null"`
	Version       int               `gorm:"not null;default:1"`
	CreatedBy     string            `gorm:"type:varchar(100);column:created_by"`
	UpdatedBy     string            `gorm:"type:varchar(100);column:updated_by"`
}

// Period returns the reporting period the submission is keyed by
func (s *Submission) Period() Period {
	return Period{Year: s.Year, Month: s.Month, Day: s.Day}
}

// SyncFailureKind mirrors the failure taxonomy of the spreadsheet adapter
type SyncFailureKind string

const (
	SyncFailureAuth      SyncFailureKind = "auth"
	SyncFailureConfig    SyncFailureKind = "config"
	SyncFailureTransient SyncFailureKind = "transient"
)

// SyncFailure records a mirror write that did not reach the spreadsheet.
// Rows are the operator-facing channel for mirror degradation.
type SyncFailure struct {
	BaseModel
	SubmissionID  uuid.UUID       `gorm:"type:uuid;not null;index;column:submission_id"`
	DirectorateID string          `gorm:"type:varchar(100);not null;index;column:directorate_id"`
	Unit          string          `gorm:"type:varchar(100);not null;default:''"`
	Year          int             `gorm:"not null"`
	Month         int             `gorm:"not null"`
	SpreadsheetID string          `gorm:"type:varchar(255);column:spreadsheet_id"`
	SheetName     string          `gorm:"type:varchar(255);column:sheet_name"`
	BlockIndex    int             `gorm:"not null;default:0;column:block_index"`
	Kind          SyncFailureKind `gorm:"type:varchar(20);not null;index"`
	Message       string          `gorm:"type:text"`
	Attempts      int             `gorm:"not null;default:1"`
	LastAttemptAt time.Time       `gorm:"not null;column:last_attempt_at"`
	ResolvedAt    *time.Time      `gorm:"column:resolved_at;index"`
}

// IsRetryable reports whether the failure may be re-driven automatically
func (f *SyncFailure) IsRetryable() bool {
	return f.Kind == SyncFailureTransient
}
