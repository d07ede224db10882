package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/straye-as/indicator-api/internal/domain"
	"github.com/straye-as/indicator-api/internal/mapper"
	"github.com/straye-as/indicator-api/internal/repository"
	"github.com/straye-as/indicator-api/internal/service"
	"go.uber.org/zap"
)

// AdminHandler serves access provisioning and mirror failure management.
// Routes are mounted behind the admin middleware.
type AdminHandler struct {
	permissions *service.PermissionService
	mirror      *service.MirrorService
	logger      *zap.Logger
}

func NewAdminHandler(permissions *service.PermissionService, mirror *service.MirrorService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		permissions: permissions,
		mirror:      mirror,
		logger:      logger,
	}
}

// ListUsers godoc
// @Summary List users
// @Tags Admin
// @Produce json
// @Success 200 {array} domain.UserDTO
// @Failure 403 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /admin/users [get]
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.permissions.ListUsers(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, err, "list users")
		return
	}

	dtos := make([]domain.UserDTO, 0, len(users))
	for i := range users {
		dtos = append(dtos, mapper.ToUserDTO(&users[i], h.permissions.IsAdmin(r.Context(), users[i].ID)))
	}
	respondJSON(w, http.StatusOK, dtos)
}

// SetRole godoc
// @Summary Set a user's role
// @Tags Admin
// @Accept json
// @Produce json
// @Param userId path string true "User ID"
// @Param request body domain.SetRoleRequest true "Role"
// @Success 200 {object} domain.UserDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /admin/users/{userId}/role [put]
func (h *AdminHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	var req domain.SetRoleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	userID := chi.URLParam(r, "userId")
	if err := h.permissions.SetRole(r.Context(), userID, string(req.Role)); err != nil {
		respondServiceError(w, h.logger, err, "set role")
		return
	}

	user, err := h.permissions.GetUser(r.Context(), userID)
	if err != nil {
		respondServiceError(w, h.logger, err, "get user")
		return
	}
	respondJSON(w, http.StatusOK, mapper.ToUserDTO(user, h.permissions.IsAdmin(r.Context(), userID)))
}

// ListPermissions godoc
// @Summary List access links
// @Tags Admin
// @Produce json
// @Param userId query string false "Filter by user"
// @Param directorateId query string false "Filter by directorate"
// @Success 200 {array} domain.PermissionLinkDTO
// @Failure 403 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /admin/permissions [get]
func (h *AdminHandler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	links, err := h.permissions.ListLinks(r.Context(), r.URL.Query().Get("userId"), r.URL.Query().Get("directorateId"))
	if err != nil {
		respondServiceError(w, h.logger, err, "list permissions")
		return
	}

	dtos := make([]domain.PermissionLinkDTO, 0, len(links))
	for i := range links {
		dtos = append(dtos, mapper.ToPermissionLinkDTO(&links[i]))
	}
	respondJSON(w, http.StatusOK, dtos)
}

// GrantPermission godoc
// @Summary Grant or replace access to a directorate
// @Description allUnits grants every unit; otherwise units lists the permitted units
// @Tags Admin
// @Accept json
// @Produce json
// @Param request body domain.GrantPermissionRequest true "Access"
// @Success 200 {object} domain.PermissionLinkDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /admin/permissions [put]
func (h *AdminHandler) GrantPermission(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req domain.GrantPermissionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	link, err := h.permissions.Grant(r.Context(), user.UserID, req.UserID, req.DirectorateID, mapper.UnitAccessFromRequest(&req))
	if err != nil {
		respondServiceError(w, h.logger, err, "grant permission")
		return
	}
	respondJSON(w, http.StatusOK, mapper.ToPermissionLinkDTO(link))
}

// RevokePermission godoc
// @Summary Revoke access to a directorate
// @Tags Admin
// @Param userId path string true "User ID"
// @Param directorateId path string true "Directorate ID"
// @Success 204
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /admin/permissions/{userId}/{directorateId} [delete]
func (h *AdminHandler) RevokePermission(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	err := h.permissions.Revoke(r.Context(), user.UserID, chi.URLParam(r, "userId"), chi.URLParam(r, "directorateId"))
	if err != nil {
		respondServiceError(w, h.logger, err, "revoke permission")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSyncFailures godoc
// @Summary List spreadsheet mirror failures
// @Tags Admin
// @Produce json
// @Param directorateId query string false "Filter by directorate"
// @Param kind query string false "Failure kind" Enums(auth, config, transient)
// @Param includeResolved query bool false "Include resolved failures"
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Items per page (max 200)" default(50)
// @Success 200 {object} domain.PaginatedResponse{data=[]domain.SyncFailureDTO}
// @Failure 403 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /admin/sync-failures [get]
func (h *AdminHandler) ListSyncFailures(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "pageSize", 50)
	if pageSize > 200 {
		pageSize = 200
	}
	includeResolved, _ := strconv.ParseBool(query.Get("includeResolved"))
	filters := repository.SyncFailureFilters{
		DirectorateID:   query.Get("directorateId"),
		Kind:            domain.SyncFailureKind(query.Get("kind")),
		IncludeResolved: includeResolved,
	}

	failures, total, err := h.mirror.ListFailures(r.Context(), user.UserID, page, pageSize, filters)
	if err != nil {
		respondServiceError(w, h.logger, err, "list sync failures")
		return
	}

	dtos := make([]domain.SyncFailureDTO, 0, len(failures))
	for i := range failures {
		dtos = append(dtos, mapper.ToSyncFailureDTO(&failures[i]))
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	respondJSON(w, http.StatusOK, domain.PaginatedResponse{
		Data:       dtos,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	})
}

// RetrySyncFailure godoc
// @Summary Re-drive a spreadsheet mirror failure
// @Description Re-sends the stored record's block to the spreadsheet, whatever the failure kind.
// @Description A failed attempt keeps the failure open and is reported in error.
// @Tags Admin
// @Produce json
// @Param id path string true "Failure ID" format(uuid)
// @Success 200 {object} domain.RetryResultDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 502 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /admin/sync-failures/{id}/retry [post]
func (h *AdminHandler) RetrySyncFailure(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid failure ID format")
		return
	}

	result, err := h.mirror.Retry(r.Context(), user.UserID, id)
	if err != nil {
		respondServiceError(w, h.logger, err, "retry sync failure")
		return
	}

	dto := domain.RetryResultDTO{FailureID: result.FailureID, Resolved: result.Resolved}
	if result.Err != nil {
		dto.Error = result.Err.Error()
	}
	respondJSON(w, http.StatusOK, dto)
}
