package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"zapleads/internal/repo"
	"zapleads/internal/services"
	"zapleads/pkg/models"
)

// CampaignHandler handles outreach campaign endpoints
type CampaignHandler struct {
	campaignRepo    *repo.CampaignRepository
	leadRepo        *repo.LeadRepository
	campaignService *services.CampaignService
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaignRepo *repo.CampaignRepository, leadRepo *repo.LeadRepository, campaignService *services.CampaignService) *CampaignHandler {
	return &CampaignHandler{
		campaignRepo:    campaignRepo,
		leadRepo:        leadRepo,
		campaignService: campaignService,
	}
}

// CreateCampaignRequest represents the request to create a campaign
type CreateCampaignRequest struct {
	Name              string `json:"name" validate:"required"`
	Description       string `json:"description"`
	MessageTemplateID string `json:"message_template_id"`
}

// AddCampaignLeadsRequest attaches saved leads to a campaign
type AddCampaignLeadsRequest struct {
	LeadIDs           []string `json:"lead_ids" validate:"required,min=1"`
	MessageTemplateID string   `json:"message_template_id"`
}

// List godoc
// @Summary List user's campaigns
// @Tags campaigns
// @Produce json
// @Param page query int false "Page number"
// @Param limit query int false "Items per page"
// @Success 200 {object} map[string]interface{}
// @Router /campaigns [get]
// @Security BearerAuth
func (h *CampaignHandler) List(c echo.Context) error {
	userID, ok := c.Get("user_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "user_id not found in context"})
	}

	page, limit := paginationParams(c)
	campaigns, total, err := h.campaignRepo.ListByOwner(c.Request().Context(), userID, limit, (page-1)*limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  campaigns,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// Create godoc
// @Summary Create a campaign in draft status
// @Tags campaigns
// @Accept json
// @Produce json
// @Param request body CreateCampaignRequest true "Campaign data"
// @Success 201 {object} models.Campaign
// @Failure 400 {object} map[string]string
// @Router /campaigns [post]
// @Security BearerAuth
func (h *CampaignHandler) Create(c echo.Context) error {
	userID, ok := c.Get("user_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "user_id not found in context"})
	}

	var req CreateCampaignRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	campaign := &models.Campaign{
		OwnerUserID: userID,
		Name:        req.Name,
		Description: req.Description,
		Status:      models.CampaignStatusDraft,
	}
	if req.MessageTemplateID != "" {
		templateID, err := uuid.Parse(req.MessageTemplateID)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid message_template_id"})
		}
		campaign.MessageTemplateID = &templateID
	}

	if err := h.campaignRepo.Create(c.Request().Context(), campaign); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, campaign)
}

// GetByID godoc
// @Summary Get a campaign with its counters
// @Tags campaigns
// @Produce json
// @Param id path string true "Campaign ID"
// @Success 200 {object} models.Campaign
// @Failure 404 {object} map[string]string
// @Router /campaigns/{id} [get]
// @Security BearerAuth
func (h *CampaignHandler) GetByID(c echo.Context) error {
	userID, campaignID, errResp := h.ownerAndID(c)
	if errResp != nil {
		return errResp
	}

	campaign, err := h.campaignRepo.GetByIDAndOwner(c.Request().Context(), campaignID, userID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "campaign not found"})
	}
	return c.JSON(http.StatusOK, campaign)
}

// AddLeads godoc
// @Summary Attach saved leads to a campaign
// @Tags campaigns
// @Accept json
// @Produce json
// @Param id path string true "Campaign ID"
// @Param request body AddCampaignLeadsRequest true "Lead IDs"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /campaigns/{id}/leads [post]
// @Security BearerAuth
func (h *CampaignHandler) AddLeads(c echo.Context) error {
	userID, campaignID, errResp := h.ownerAndID(c)
	if errResp != nil {
		return errResp
	}

	var req AddCampaignLeadsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	campaign, err := h.campaignRepo.GetByIDAndOwner(c.Request().Context(), campaignID, userID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "campaign not found"})
	}
	if campaign.Status == models.CampaignStatusCompleted {
		return c.JSON(http.StatusConflict, map[string]string{"error": "campaign already completed"})
	}

	var templateID *uuid.UUID
	if req.MessageTemplateID != "" {
		id, err := uuid.Parse(req.MessageTemplateID)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid message_template_id"})
		}
		templateID = &id
	} else {
		templateID = campaign.MessageTemplateID
	}

	leadIDs := make([]uuid.UUID, 0, len(req.LeadIDs))
	for _, raw := range req.LeadIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid lead id: " + raw})
		}
		leadIDs = append(leadIDs, id)
	}

	// Only leads owned by the caller are attached.
	leads, err := h.leadRepo.ListByIDs(c.Request().Context(), userID, leadIDs)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if len(leads) != len(leadIDs) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "one or more leads not found"})
	}

	campaignLeads := make([]models.CampaignLead, 0, len(leads))
	for _, lead := range leads {
		campaignLeads = append(campaignLeads, models.CampaignLead{
			CampaignID:        campaignID,
			LeadID:            lead.ID,
			MessageTemplateID: templateID,
			Status:            models.CampaignLeadStatusPending,
		})
	}

	if err := h.campaignRepo.AddLeads(c.Request().Context(), campaignID, campaignLeads); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"added": len(campaignLeads),
	})
}

// Activate godoc
// @Summary Activate a campaign and start dispatching
// @Tags campaigns
// @Produce json
// @Param id path string true "Campaign ID"
// @Success 200 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /campaigns/{id}/activate [post]
// @Security BearerAuth
func (h *CampaignHandler) Activate(c echo.Context) error {
	userID, campaignID, errResp := h.ownerAndID(c)
	if errResp != nil {
		return errResp
	}

	if err := h.campaignService.Start(c.Request().Context(), campaignID, userID); err != nil {
		if errors.Is(err, services.ErrCampaignNotStartable) {
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": models.CampaignStatusActive})
}

// Pause godoc
// @Summary Pause an active campaign
// @Tags campaigns
// @Produce json
// @Param id path string true "Campaign ID"
// @Success 200 {object} map[string]string
// @Router /campaigns/{id}/pause [post]
// @Security BearerAuth
func (h *CampaignHandler) Pause(c echo.Context) error {
	userID, campaignID, errResp := h.ownerAndID(c)
	if errResp != nil {
		return errResp
	}

	if err := h.campaignService.Pause(c.Request().Context(), campaignID, userID); err != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": models.CampaignStatusPaused})
}

// Dispatch godoc
// @Summary Kick a dispatch run for an active campaign
// @Tags campaigns
// @Produce json
// @Param id path string true "Campaign ID"
// @Success 202 {object} map[string]string
// @Router /campaigns/{id}/dispatch [post]
// @Security BearerAuth
func (h *CampaignHandler) Dispatch(c echo.Context) error {
	userID, campaignID, errResp := h.ownerAndID(c)
	if errResp != nil {
		return errResp
	}

	if err := h.campaignService.Dispatch(c.Request().Context(), campaignID, userID); err != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "dispatching"})
}

func (h *CampaignHandler) ownerAndID(c echo.Context) (uuid.UUID, uuid.UUID, error) {
	userID, ok := c.Get("user_id").(uuid.UUID)
	if !ok {
		return uuid.Nil, uuid.Nil, c.JSON(http.StatusUnauthorized, map[string]string{"error": "user_id not found in context"})
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid campaign id"})
	}
	return userID, id, nil
}

func paginationParams(c echo.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
