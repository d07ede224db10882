package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/straye-as/indicator-api/internal/catalog"
	"github.com/straye-as/indicator-api/internal/domain"
	"github.com/straye-as/indicator-api/internal/mapper"
	"github.com/straye-as/indicator-api/internal/service"
	"go.uber.org/zap"
)

type DirectorateHandler struct {
	catalog     *catalog.Catalog
	permissions *service.PermissionService
	logger      *zap.Logger
}

func NewDirectorateHandler(cat *catalog.Catalog, permissions *service.PermissionService, logger *zap.Logger) *DirectorateHandler {
	return &DirectorateHandler{
		catalog:     cat,
		permissions: permissions,
		logger:      logger,
	}
}

// List godoc
// @Summary List directorates
// @Description Directorates the caller may report for, each with the units the caller may use
// @Tags Directorates
// @Produce json
// @Success 200 {array} domain.DirectorateDTO
// @Failure 401 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /directorates [get]
func (h *DirectorateHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	visible := h.permissions.VisibleDirectorates(r.Context(), user.UserID)
	dtos := make([]domain.DirectorateDTO, 0, len(visible))
	for _, v := range visible {
		dtos = append(dtos, mapper.ToDirectorateDTO(v.Directorate, v.Access))
	}
	respondJSON(w, http.StatusOK, dtos)
}

// GetByID godoc
// @Summary Get directorate
// @Description Form definition and mirror configuration summary of one directorate
// @Tags Directorates
// @Produce json
// @Param id path string true "Directorate ID"
// @Success 200 {object} domain.DirectorateDetailDTO
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /directorates/{id} [get]
func (h *DirectorateHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	d, found := h.catalog.Directorate(chi.URLParam(r, "id"))
	if !found {
		respondWithError(w, http.StatusNotFound, "Directorate not found")
		return
	}

	access := h.permissions.AllowedUnits(r.Context(), user.UserID, d.ID)
	if !access.HasLink() {
		respondWithError(w, http.StatusForbidden, "No access to this directorate")
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToDirectorateDetailDTO(d, access))
}
