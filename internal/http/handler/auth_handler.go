package handler

import (
	"net/http"

	"github.com/straye-as/indicator-api/internal/domain"
	"github.com/straye-as/indicator-api/internal/mapper"
	"github.com/straye-as/indicator-api/internal/service"
	"go.uber.org/zap"
)

type AuthHandler struct {
	permissions *service.PermissionService
	logger      *zap.Logger
}

func NewAuthHandler(permissions *service.PermissionService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		permissions: permissions,
		logger:      logger,
	}
}

// Me godoc
// @Summary Get current authenticated user
// @Description Returns the caller, the caller's admin status and the directorates the caller may report for
// @Tags Auth
// @Produce json
// @Success 200 {object} domain.AuthUserDTO
// @Failure 401 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /auth/me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userCtx, ok := currentUser(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	user := &domain.User{
		ID:          userCtx.UserID,
		Email:       userCtx.Email,
		DisplayName: userCtx.DisplayName,
		Role:        domain.RoleUser,
	}
	if stored, err := h.permissions.GetUser(ctx, userCtx.UserID); err == nil {
		user = stored
	} else {
		h.logger.Debug("user not stored yet", zap.String("user_id", userCtx.UserID), zap.Error(err))
	}

	visible := h.permissions.VisibleDirectorates(ctx, userCtx.UserID)
	directorates := make([]domain.DirectorateDTO, 0, len(visible))
	for _, v := range visible {
		directorates = append(directorates, mapper.ToDirectorateDTO(v.Directorate, v.Access))
	}

	respondJSON(w, http.StatusOK, domain.AuthUserDTO{
		User:         mapper.ToUserDTO(user, h.permissions.IsAdmin(ctx, userCtx.UserID)),
		AuthType:     string(userCtx.AuthType),
		Directorates: directorates,
	})
}
