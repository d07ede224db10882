package domain

import (
	"github.com/google/uuid"
)

// ============================================================================
// Directorate DTOs
// ============================================================================

// DirectorateDTO is a directorate as seen by the requesting user
type DirectorateDTO struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Units          []string `json:"units"`
	AllUnits       bool     `json:"allUnits"`
	HasSheet       bool     `json:"hasSheet"`
	HasUnitSheets  bool     `json:"hasUnitSheets"`
	CarryForward   bool     `json:"carryForward"`
	SupportsDaily  bool     `json:"supportsDaily"`
	AvailableUnits []string `json:"availableUnits,omitempty"`
}

// DirectorateDetailDTO adds the form definition used to render and validate submissions
type DirectorateDetailDTO struct {
	DirectorateDTO
	Form FormDTO `json:"form"`
}

type FormDTO struct {
	Sections []SectionDTO `json:"sections"`
}

type SectionDTO struct {
	ID     string     `json:"id"`
	Title  string     `json:"title"`
	Fields []FieldDTO `json:"fields"`
}

type FieldDTO struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Kind     string `json:"kind"`
	Required bool   `json:"required"`
	Computed bool   `json:"computed"`
}

// ============================================================================
// Submission DTOs
// ============================================================================

type SubmissionDTO struct {
	ID            uuid.UUID      `json:"id"`
	DirectorateID string         `json:"directorateId"`
	Unit          string         `json:"unit,omitempty"`
	Year          int            `json:"year"`
	Month         int            `json:"month"`
	Day           int            `json:"day,omitempty"`
	Period        string         `json:"period"`
	ReportType    ReportType     `json:"reportType"`
	Data          map[string]any `json:"data"`
	Version       int            `json:"version"`
	CreatedBy     string         `json:"createdBy,omitempty"`
	UpdatedBy     string         `json:"updatedBy,omitempty"`
	CreatedAt     string         `json:"createdAt"` // ISO 8601
	UpdatedAt     string         `json:"updatedAt"` // ISO 8601
}

// SubmitReportRequest is the body of a monthly report submission
type SubmitReportRequest struct {
	Year       int            `json:"year" validate:"required,gte=1900,lte=9999"`
	Month      int            `json:"month" validate:"required,min=1,max=12"`
	Unit       string         `json:"unit,omitempty" validate:"max=100"`
	ReportType ReportType     `json:"reportType,omitempty" validate:"omitempty,oneof=indicators narrative"`
	Data       map[string]any `json:"data" validate:"required"`
}

// SubmitDailyReportRequest is the body of a daily report submission
type SubmitDailyReportRequest struct {
	Date string         `json:"date" validate:"required,datetime=2006-01-02"`
	Unit string         `json:"unit,omitempty" validate:"max=100"`
	Data map[string]any `json:"data" validate:"required"`
}

// MirrorStatusDTO reports the outcome of the spreadsheet mirror phase
type MirrorStatusDTO struct {
	Attempted bool   `json:"attempted"`
	Mirrored  bool   `json:"mirrored"`
	Error     string `json:"error,omitempty"`
}

// SubmitReportResponse is returned once the store write succeeded
type SubmitReportResponse struct {
	Success      bool            `json:"success"`
	SubmissionID uuid.UUID       `json:"submissionId"`
	Created      bool            `json:"created"`
	Period       string          `json:"period"`
	Mirror       MirrorStatusDTO `json:"mirror"`
}

// UpdateCellRequest patches one field of an existing submission
type UpdateCellRequest struct {
	FieldID string  `json:"fieldId" validate:"required,max=200"`
	Value   any     `json:"value"`
	Unit    *string `json:"unit,omitempty" validate:"omitempty,max=100"`
}

// PeriodDataDTO carries a raw record's data for one period; Data is empty when nothing is stored
type PeriodDataDTO struct {
	DirectorateID string         `json:"directorateId"`
	Unit          string         `json:"unit,omitempty"`
	Year          int            `json:"year"`
	Month         int            `json:"month"`
	Found         bool           `json:"found"`
	Data          map[string]any `json:"data"`
}

// InitialValuesDTO carries derived carry-forward values for a period
type InitialValuesDTO struct {
	DirectorateID string         `json:"directorateId"`
	Unit          string         `json:"unit,omitempty"`
	Period        string         `json:"period"`
	Values        map[string]any `json:"values"`
}

// YearReportDTO lists every stored record for a directorate in one year
type YearReportDTO struct {
	DirectorateID string          `json:"directorateId"`
	Year          int             `json:"year"`
	Submissions   []SubmissionDTO `json:"submissions"`
}

type DeleteResultDTO struct {
	Deleted int64 `json:"deleted"`
}

// ============================================================================
// Access administration DTOs
// ============================================================================

type PermissionLinkDTO struct {
	ID            uuid.UUID `json:"id"`
	UserID        string    `json:"userId"`
	DirectorateID string    `json:"directorateId"`
	AllUnits      bool      `json:"allUnits"`
	Units         []string  `json:"units"`
	GrantedBy     string    `json:"grantedBy,omitempty"`
	CreatedAt     string    `json:"createdAt"` // ISO 8601
	UpdatedAt     string    `json:"updatedAt"` // ISO 8601
}

// GrantPermissionRequest creates or replaces a user's link to a directorate.
// AllUnits and Units are mutually exclusive; an empty Units list with AllUnits false grants no unit.
type GrantPermissionRequest struct {
	UserID        string   `json:"userId" validate:"required,max=100"`
	DirectorateID string   `json:"directorateId" validate:"required,max=100"`
	AllUnits      bool     `json:"allUnits"`
	Units         []string `json:"units,omitempty" validate:"omitempty,dive,required,max=100"`
}

type UserDTO struct {
	ID          string       `json:"id"`
	Email       string       `json:"email"`
	DisplayName string       `json:"displayName,omitempty"`
	Role        UserRoleType `json:"role"`
	IsAdmin     bool         `json:"isAdmin"`
	LastLoginAt string       `json:"lastLoginAt,omitempty"` // ISO 8601
}

type SetRoleRequest struct {
	Role UserRoleType `json:"role" validate:"required,oneof=admin user"`
}

// ============================================================================
// Mirror failure DTOs
// ============================================================================

type SyncFailureDTO struct {
	ID            uuid.UUID       `json:"id"`
	SubmissionID  uuid.UUID       `json:"submissionId"`
	DirectorateID string          `json:"directorateId"`
	Unit          string          `json:"unit,omitempty"`
	Year          int             `json:"year"`
	Month         int             `json:"month"`
	SpreadsheetID string          `json:"spreadsheetId"`
	SheetName     string          `json:"sheetName"`
	BlockIndex    int             `json:"blockIndex"`
	Kind          SyncFailureKind `json:"kind"`
	Message       string          `json:"message"`
	Attempts      int             `json:"attempts"`
	Retryable     bool            `json:"retryable"`
	LastAttemptAt string          `json:"lastAttemptAt"` // ISO 8601
	ResolvedAt    string          `json:"resolvedAt,omitempty"`
	CreatedAt     string          `json:"createdAt"` // ISO 8601
}

// RetryResultDTO reports a manual mirror re-drive
type RetryResultDTO struct {
	FailureID uuid.UUID `json:"failureId"`
	Resolved  bool      `json:"resolved"`
	Error     string    `json:"error,omitempty"`
}

// PaginatedResponse wraps list endpoints
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"pageSize"`
	TotalPages int         `json:"totalPages"`
}

// ============================================================================
// Auth DTOs
// ============================================================================

// AuthUserDTO describes the caller and what the caller may report for
type AuthUserDTO struct {
	User         UserDTO          `json:"user"`
	AuthType     string           `json:"authType"`
	Directorates []DirectorateDTO `json:"directorates"`
}
