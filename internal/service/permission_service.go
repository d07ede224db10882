package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/straye-as/indicator-api/internal/catalog"
	"github.com/straye-as/indicator-api/internal/config"
	"github.com/straye-as/indicator-api/internal/domain"
	"github.com/straye-as/indicator-api/internal/repository"
	"go.uber.org/zap"
)

// VisibleDirectorate pairs a directorate with the caller's effective unit access
type VisibleDirectorate struct {
	Directorate *catalog.Directorate
	Access      domain.UnitAccess
}

// PermissionService resolves which directorates and units a user may act on.
// Resolution never returns an error: any lookup failure is logged and denies access.
type PermissionService struct {
	userRepo *repository.UserRepository
	linkRepo *repository.PermissionLinkRepository
	catalog  *catalog.Catalog
	admin    config.AdminConfig
	logger   *zap.Logger
}

// NewPermissionService creates a new permission service
func NewPermissionService(
	userRepo *repository.UserRepository,
	linkRepo *repository.PermissionLinkRepository,
	cat *catalog.Catalog,
	admin config.AdminConfig,
	logger *zap.Logger,
) *PermissionService {
	return &PermissionService{
		userRepo: userRepo,
		linkRepo: linkRepo,
		catalog:  cat,
		admin:    admin,
		logger:   logger,
	}
}

// IsAdmin reports whether the user holds the admin role or is on the configured allow-list
func (s *PermissionService) IsAdmin(ctx context.Context, userID string) bool {
	if userID == "" {
		return false
	}
	// allow-listed identities need no users row
	if s.admin.IsAllowListed(userID) {
		return true
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		s.logger.Error("failed to load user for admin check",
			zap.String("user_id", userID),
			zap.Error(err))
		return false
	}
	if user == nil {
		return false
	}
	if user.Role == domain.RoleAdmin {
		return true
	}
	return s.admin.IsAllowListed(user.Email)
}

// CanAccessDirectorate reports whether the user is an admin or holds a link to the directorate
func (s *PermissionService) CanAccessDirectorate(ctx context.Context, userID, directorateID string) bool {
	return s.AllowedUnits(ctx, userID, directorateID).HasLink()
}

// AllowedUnits resolves the user's unit access within a directorate
func (s *PermissionService) AllowedUnits(ctx context.Context, userID, directorateID string) domain.UnitAccess {
	if s.IsAdmin(ctx, userID) {
		return domain.AllUnits()
	}
	link, err := s.linkRepo.Get(ctx, userID, directorateID)
	if err != nil {
		s.logger.Error("failed to load permission link",
			zap.String("user_id", userID),
			zap.String("directorate_id", directorateID),
			zap.Error(err))
		return domain.NoAccess()
	}
	if link == nil {
		return domain.NoAccess()
	}
	return link.UnitAccess()
}

// CanAccessUnit reports whether the user may act on one unit of a directorate.
// For directorates without sub-units the unit is ignored. For directorates with
// sub-units, an empty unit addresses the directorate-wide record and needs access
// to every unit.
func (s *PermissionService) CanAccessUnit(ctx context.Context, userID, directorateID, unit string) bool {
	d, ok := s.catalog.Directorate(directorateID)
	if !ok {
		return false
	}
	access := s.AllowedUnits(ctx, userID, directorateID)
	if !d.HasUnits() {
		return access.HasLink()
	}
	if unit == "" {
		return access.IsAll()
	}
	return access.Allows(unit)
}

// VisibleDirectorates lists every directorate the user can see, ordered by id
func (s *PermissionService) VisibleDirectorates(ctx context.Context, userID string) []VisibleDirectorate {
	directorates := s.catalog.List()

	if s.IsAdmin(ctx, userID) {
		out := make([]VisibleDirectorate, 0, len(directorates))
		for _, d := range directorates {
			out = append(out, VisibleDirectorate{Directorate: d, Access: domain.AllUnits()})
		}
		return out
	}

	links, err := s.linkRepo.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Error("failed to list permission links",
			zap.String("user_id", userID),
			zap.Error(err))
		return []VisibleDirectorate{}
	}
	byDirectorate := make(map[string]domain.UnitAccess, len(links))
	for i := range links {
		byDirectorate[links[i].DirectorateID] = links[i].UnitAccess()
	}

	out := make([]VisibleDirectorate, 0, len(links))
	for _, d := range directorates {
		access, ok := byDirectorate[d.ID]
		if !ok {
			continue
		}
		out = append(out, VisibleDirectorate{Directorate: d, Access: access})
	}
	return out
}

// Grant creates or replaces a user's access to a directorate.
// Every listed unit must belong to the directorate; directorates without
// sub-units only accept access to all units.
func (s *PermissionService) Grant(ctx context.Context, grantedBy, userID, directorateID string, access domain.UnitAccess) (*domain.PermissionLink, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	d, ok := s.catalog.Directorate(directorateID)
	if !ok {
		return nil, fmt.Errorf("%w: directorate %q", ErrNotFound, directorateID)
	}
	if access.IsNone() {
		return nil, fmt.Errorf("%w: use revoke to remove access", ErrInvalidInput)
	}
	if !access.IsAll() {
		if !d.HasUnits() {
			return nil, fmt.Errorf("%w: directorate %q has no units", ErrInvalidInput, directorateID)
		}
		for _, u := range access.Units() {
			if !d.HasUnit(u) {
				return nil, fmt.Errorf("%w: unit %q does not belong to directorate %q", ErrInvalidInput, u, directorateID)
			}
		}
	}

	link := &domain.PermissionLink{
		UserID:        userID,
		DirectorateID: directorateID,
		GrantedBy:     grantedBy,
	}
	link.SetUnitAccess(access)

	stored, err := s.linkRepo.Upsert(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("%w: grant access: %v", ErrStoreFailure, err)
	}

	s.logger.Info("access granted",
		zap.String("user_id", userID),
		zap.String("directorate_id", directorateID),
		zap.String("access", access.String()),
		zap.Strings("units", access.Units()),
		zap.String("granted_by", grantedBy))
	return stored, nil
}

// Revoke removes a user's link to a directorate
func (s *PermissionService) Revoke(ctx context.Context, revokedBy, userID, directorateID string) error {
	existed, err := s.linkRepo.Delete(ctx, userID, directorateID)
	if err != nil {
		return fmt.Errorf("%w: revoke access: %v", ErrStoreFailure, err)
	}
	if !existed {
		return fmt.Errorf("%w: no access for user %q on directorate %q", ErrNotFound, userID, directorateID)
	}
	s.logger.Info("access revoked",
		zap.String("user_id", userID),
		zap.String("directorate_id", directorateID),
		zap.String("revoked_by", revokedBy))
	return nil
}

// ListLinks returns links filtered by user or directorate; both empty lists everything
func (s *PermissionService) ListLinks(ctx context.Context, userID, directorateID string) ([]domain.PermissionLink, error) {
	var (
		links []domain.PermissionLink
		err   error
	)
	switch {
	case userID != "":
		links, err = s.linkRepo.ListByUser(ctx, userID)
		if err == nil && directorateID != "" {
			filtered := links[:0]
			for _, l := range links {
				if l.DirectorateID == directorateID {
					filtered = append(filtered, l)
				}
			}
			links = filtered
		}
	case directorateID != "":
		links, err = s.linkRepo.ListByDirectorate(ctx, directorateID)
	default:
		links, err = s.linkRepo.List(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: list access: %v", ErrStoreFailure, err)
	}
	return links, nil
}

// SetRole assigns the admin or user role
func (s *PermissionService) SetRole(ctx context.Context, userID, role string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if !domain.IsValidRole(role) {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if err := s.userRepo.SetRole(ctx, userID, domain.UserRoleType(role)); err != nil {
		return fmt.Errorf("%w: set role: %v", ErrStoreFailure, err)
	}
	s.logger.Info("role assigned", zap.String("user_id", userID), zap.String("role", role))
	return nil
}

// ListUsers returns every known user
func (s *PermissionService) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list users: %v", ErrStoreFailure, err)
	}
	return users, nil
}

// GetUser returns a user, or ErrNotFound
func (s *PermissionService) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: get user: %v", ErrStoreFailure, err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %q", ErrNotFound, userID)
	}
	return user, nil
}
