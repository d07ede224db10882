package mapper

import (
	"time"

	"github.com/straye-as/indicator-api/internal/catalog"
	"github.com/straye-as/indicator-api/internal/domain"
)

const timestampLayout = "2006-01-02T15:04:05Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// ToDirectorateDTO converts a catalog directorate to DirectorateDTO for a caller with the given access
func ToDirectorateDTO(d *catalog.Directorate, access domain.UnitAccess) domain.DirectorateDTO {
	units := []string{}
	if d.HasUnits() {
		units = access.Filter(d.Units)
	}

	dto := domain.DirectorateDTO{
		ID:            d.ID,
		Name:          d.Name,
		Units:         units,
		AllUnits:      access.IsAll(),
		HasSheet:      d.Sheet != nil,
		HasUnitSheets: len(d.UnitSheets) > 0,
		CarryForward:  len(d.Rulesets) > 0,
		SupportsDaily: d.Daily,
	}
	if access.IsAll() && d.HasUnits() {
		dto.AvailableUnits = append([]string(nil), d.Units...)
	}
	return dto
}

// ToDirectorateDetailDTO adds the form definition to ToDirectorateDTO
func ToDirectorateDetailDTO(d *catalog.Directorate, access domain.UnitAccess) domain.DirectorateDetailDTO {
	form := domain.FormDTO{Sections: make([]domain.SectionDTO, 0, len(d.Form.Sections))}
	for _, s := range d.Form.Sections {
		section := domain.SectionDTO{
			ID:     s.ID,
			Title:  s.Title,
			Fields: make([]domain.FieldDTO, 0, len(s.Fields)),
		}
		for _, f := range s.Fields {
			section.Fields = append(section.Fields, domain.FieldDTO{
				ID:       f.ID,
				Label:    f.Label,
				Kind:     string(f.Kind),
				Required: f.Required,
				Computed: f.Computed,
			})
		}
		form.Sections = append(form.Sections, section)
	}

	return domain.DirectorateDetailDTO{
		DirectorateDTO: ToDirectorateDTO(d, access),
		Form:           form,
	}
}

// ToSubmissionDTO converts Submission to SubmissionDTO
func ToSubmissionDTO(s *domain.Submission) domain.SubmissionDTO {
	data := map[string]any(s.Data)
	if data == nil {
		data = map[string]any{}
	}
	return domain.SubmissionDTO{
		ID:            s.ID,
		DirectorateID: s.DirectorateID,
		Unit:          s.Unit,
		Year:          s.Year,
		Month:         s.Month,
		Day:           s.Day,
		Period:        s.Period().String(),
		ReportType:    s.ReportType,
		Data:          data,
		Version:       s.Version,
		CreatedBy:     s.CreatedBy,
		UpdatedBy:     s.UpdatedBy,
		CreatedAt:     formatTime(s.CreatedAt),
		UpdatedAt:     formatTime(s.UpdatedAt),
	}
}

// ToSubmissionDTOs converts a slice of submissions
func ToSubmissionDTOs(submissions []domain.Submission) []domain.SubmissionDTO {
	out := make([]domain.SubmissionDTO, 0, len(submissions))
	for i := range submissions {
		out = append(out, ToSubmissionDTO(&submissions[i]))
	}
	return out
}

// ToMirrorStatusDTO reports the mirror phase of a write
func ToMirrorStatusDTO(attempted, mirrored bool, err error) domain.MirrorStatusDTO {
	dto := domain.MirrorStatusDTO{Attempted: attempted, Mirrored: mirrored}
	if err != nil {
		dto.Error = err.Error()
	}
	return dto
}

// ToPermissionLinkDTO converts PermissionLink to PermissionLinkDTO
func ToPermissionLinkDTO(link *domain.PermissionLink) domain.PermissionLinkDTO {
	access := link.UnitAccess()
	units := access.Units()
	if units == nil {
		units = []string{}
	}
	return domain.PermissionLinkDTO{
		ID:            link.ID,
		UserID:        link.UserID,
		DirectorateID: link.DirectorateID,
		AllUnits:      access.IsAll(),
		Units:         units,
		GrantedBy:     link.GrantedBy,
		CreatedAt:     formatTime(link.CreatedAt),
		UpdatedAt:     formatTime(link.UpdatedAt),
	}
}

// ToUserDTO converts User to UserDTO; isAdmin is the resolved admin status
func ToUserDTO(user *domain.User, isAdmin bool) domain.UserDTO {
	dto := domain.UserDTO{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        user.Role,
		IsAdmin:     isAdmin,
	}
	if user.LastLoginAt != nil {
		dto.LastLoginAt = formatTime(*user.LastLoginAt)
	}
	return dto
}

// ToSyncFailureDTO converts SyncFailure to SyncFailureDTO
func ToSyncFailureDTO(f *domain.SyncFailure) domain.SyncFailureDTO {
	dto := domain.SyncFailureDTO{
		ID:            f.ID,
		SubmissionID:  f.SubmissionID,
		DirectorateID: f.DirectorateID,
		Unit:          f.Unit,
		Year:          f.Year,
		Month:         f.Month,
		SpreadsheetID: f.SpreadsheetID,
		SheetName:     f.SheetName,
		BlockIndex:    f.BlockIndex,
		Kind:          f.Kind,
		Message:       f.Message,
		Attempts:      f.Attempts,
		Retryable:     f.IsRetryable(),
		LastAttemptAt: formatTime(f.LastAttemptAt),
		CreatedAt:     formatTime(f.CreatedAt),
	}
	if f.ResolvedAt != nil {
		dto.ResolvedAt = formatTime(*f.ResolvedAt)
	}
	return dto
}

// UnitAccessFromRequest builds the access a grant request asks for
func UnitAccessFromRequest(req *domain.GrantPermissionRequest) domain.UnitAccess {
	if req.AllUnits {
		return domain.AllUnits()
	}
	return domain.OnlyUnits(req.Units...)
}
