package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"zapleads/internal/connection"
	"zapleads/internal/repo"
	"zapleads/pkg/models"
)

// InstanceHandler manages the shared instance pool (admin only)
type InstanceHandler struct {
	instanceRepo *repo.InstanceRepository
	machine      *connection.StateMachine
}

// NewInstanceHandler creates a new instance handler
func NewInstanceHandler(instanceRepo *repo.InstanceRepository, machine *connection.StateMachine) *InstanceHandler {
	return &InstanceHandler{instanceRepo: instanceRepo, machine: machine}
}

// CreateInstanceRequest registers a gateway instance in the pool
type CreateInstanceRequest struct {
	Name               string `json:"name" validate:"required"`
	ExternalInstanceID string `json:"external_instance_id" validate:"required"`
	APIKey             string `json:"api_key" validate:"required"`
	Host               string `json:"host" validate:"required,url"`
	MaxFreeUsers       int    `json:"max_free_users"`
}

// UpdateInstanceRequest updates pool entry settings
type UpdateInstanceRequest struct {
	Name         string `json:"name"`
	APIKey       string `json:"api_key"`
	Host         string `json:"host"`
	IsAvailable  *bool  `json:"is_available"`
	MaxFreeUsers *int   `json:"max_free_users"`
}

// List godoc
// @Summary List pool instances
// @Tags admin
// @Produce json
// @Param page query int false "Page number"
// @Param limit query int false "Items per page"
// @Success 200 {object} map[string]interface{}
// @Router /admin/instances [get]
// @Security BearerAuth
func (h *InstanceHandler) List(c echo.Context) error {
	page, limit := paginationParams(c)
	instances, total, err := h.instanceRepo.List(c.Request().Context(), limit, (page-1)*limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	// The capacity counter is the allocation authority; held_users reports
	// the actual assignment rows so drift is visible to the operator.
	items := make([]instanceListItem, 0, len(instances))
	for _, instance := range instances {
		held, err := h.instanceRepo.CountAssignments(c.Request().Context(), instance.ID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		items = append(items, instanceListItem{Instance: instance, HeldUsers: held})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  items,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// instanceListItem is an instance row with the number of assignment rows
// currently pointing at it.
type instanceListItem struct {
	models.Instance
	HeldUsers int64 `json:"held_users"`
}

// Create godoc
// @Summary Register a gateway instance
// @Tags admin
// @Accept json
// @Produce json
// @Param request body CreateInstanceRequest true "Instance data"
// @Success 201 {object} models.Instance
// @Failure 400 {object} map[string]string
// @Router /admin/instances [post]
// @Security BearerAuth
func (h *InstanceHandler) Create(c echo.Context) error {
	var req CreateInstanceRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	maxFreeUsers := req.MaxFreeUsers
	if maxFreeUsers <= 0 {
		maxFreeUsers = 5
	}
	instance := &models.Instance{
		Name:               req.Name,
		ExternalInstanceID: req.ExternalInstanceID,
		APIKey:             req.APIKey,
		Host:               req.Host,
		IsAvailable:        true,
		MaxFreeUsers:       maxFreeUsers,
	}
	if err := h.instanceRepo.Create(c.Request().Context(), instance); err != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}

	log.Info().Str("instance_id", instance.ID.String()).Str("host", instance.Host).Msg("pool instance registered")
	return c.JSON(http.StatusCreated, instance)
}

// Update godoc
// @Summary Update a pool instance
// @Tags admin
// @Accept json
// @Produce json
// @Param id path string true "Instance ID"
// @Param request body UpdateInstanceRequest true "Instance data"
// @Success 200 {object} models.Instance
// @Failure 404 {object} map[string]string
// @Router /admin/instances/{id} [put]
// @Security BearerAuth
func (h *InstanceHandler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid instance id"})
	}

	var req UpdateInstanceRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	instance, err := h.instanceRepo.GetInstance(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "instance not found"})
	}

	if req.Name != "" {
		instance.Name = req.Name
	}
	if req.APIKey != "" {
		instance.APIKey = req.APIKey
	}
	if req.Host != "" {
		instance.Host = req.Host
	}
	if req.IsAvailable != nil {
		instance.IsAvailable = *req.IsAvailable
	}
	if req.MaxFreeUsers != nil && *req.MaxFreeUsers > 0 {
		instance.MaxFreeUsers = *req.MaxFreeUsers
	}
	if err := h.instanceRepo.Update(c.Request().Context(), instance); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, instance)
}

// Delete godoc
// @Summary Remove a pool instance
// @Description Refused while users still hold slots on the instance
// @Tags admin
// @Produce json
// @Param id path string true "Instance ID"
// @Success 200 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /admin/instances/{id} [delete]
// @Security BearerAuth
func (h *InstanceHandler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid instance id"})
	}

	if err := h.instanceRepo.Delete(c.Request().Context(), id); err != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "instance deleted"})
}

// ForceDisconnect godoc
// @Summary Force-disconnect a user connection
// @Description Bypasses the active-campaign release guard
// @Tags admin
// @Produce json
// @Param id path string true "Connection ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /admin/connections/{id}/force-disconnect [post]
// @Security BearerAuth
func (h *InstanceHandler) ForceDisconnect(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid connection id"})
	}

	if err := h.machine.ForceDisconnect(c.Request().Context(), id); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	log.Warn().Str("connection_id", id.String()).Msg("connection force-disconnected by admin")
	return c.JSON(http.StatusOK, map[string]string{"status": models.ConnectionStatusDisconnected})
}
