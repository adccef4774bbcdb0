package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"zapleads/internal/repo"
	"zapleads/pkg/models"
)

// MessageTemplateHandler manages a user's personal message templates
type MessageTemplateHandler struct {
	templateRepo *repo.MessageTemplateRepository
}

// NewMessageTemplateHandler creates a new message template handler
func NewMessageTemplateHandler(templateRepo *repo.MessageTemplateRepository) *MessageTemplateHandler {
	return &MessageTemplateHandler{templateRepo: templateRepo}
}

// CreateTemplateRequest represents the request to create a template
type CreateTemplateRequest struct {
	Title       string `json:"title" validate:"required"`
	Content     string `json:"content" validate:"required"`
	Variables   string `json:"variables"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// UpdateTemplateRequest represents the request to update a template
type UpdateTemplateRequest struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	Variables   string `json:"variables"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// List godoc
// @Summary List user's message templates
// @Tags message-templates
// @Produce json
// @Param category query string false "Filter by category"
// @Param page query int false "Page number"
// @Param limit query int false "Items per page"
// @Success 200 {array} models.MessageTemplate
// @Router /message-templates [get]
// @Security BearerAuth
func (h *MessageTemplateHandler) List(c echo.Context) error {
	userID, ok := c.Get("user_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "user_id not found in context"})
	}

	page, limit := paginationParams(c)
	templates, err := h.templateRepo.ListByUser(c.Request().Context(), userID, c.QueryParam("category"), limit, (page-1)*limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, templates)
}

// Create godoc
// @Summary Create a message template
// @Tags message-templates
// @Accept json
// @Produce json
// @Param request body CreateTemplateRequest true "Template data"
// @Success 201 {object} models.MessageTemplate
// @Failure 400 {object} map[string]string
// @Router /message-templates [post]
// @Security BearerAuth
func (h *MessageTemplateHandler) Create(c echo.Context) error {
	userID, ok := c.Get("user_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "user_id not found in context"})
	}

	var req CreateTemplateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	template := &models.MessageTemplate{
		UserID:      userID,
		Title:       req.Title,
		Content:     req.Content,
		Variables:   req.Variables,
		Category:    req.Category,
		Description: req.Description,
		IsActive:    true,
	}
	if err := h.templateRepo.Create(c.Request().Context(), template); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, template)
}

// GetByID godoc
// @Summary Get a message template
// @Tags message-templates
// @Produce json
// @Param id path string true "Template ID"
// @Success 200 {object} models.MessageTemplate
// @Failure 404 {object} map[string]string
// @Router /message-templates/{id} [get]
// @Security BearerAuth
func (h *MessageTemplateHandler) GetByID(c echo.Context) error {
	userID, ok := c.Get("user_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "user_id not found in context"})
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid template id"})
	}

	template, err := h.templateRepo.GetByIDAndUser(c.Request().Context(), id, userID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "template not found"})
	}
	return c.JSON(http.StatusOK, template)
}

// Update godoc
// @Summary Update a message template
// @Tags message-templates
// @Accept json
// @Produce json
// @Param id path string true "Template ID"
// @Param request body UpdateTemplateRequest true "Template data"
// @Success 200 {object} models.MessageTemplate
// @Failure 404 {object} map[string]string
// @Router /message-templates/{id} [put]
// @Security BearerAuth
func (h *MessageTemplateHandler) Update(c echo.Context) error {
	userID, ok := c.Get("user_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "user_id not found in context"})
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid template id"})
	}

	var req UpdateTemplateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	template, err := h.templateRepo.GetByIDAndUser(c.Request().Context(), id, userID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "template not found"})
	}

	if req.Title != "" {
		template.Title = req.Title
	}
	if req.Content != "" {
		template.Content = req.Content
	}
	if req.Variables != "" {
		template.Variables = req.Variables
	}
	if req.Category != "" {
		template.Category = req.Category
	}
	if req.Description != "" {
		template.Description = req.Description
	}
	if err := h.templateRepo.Update(c.Request().Context(), template); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, template)
}

// Delete godoc
// @Summary Deactivate a message template
// @Tags message-templates
// @Produce json
// @Param id path string true "Template ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /message-templates/{id} [delete]
// @Security BearerAuth
func (h *MessageTemplateHandler) Delete(c echo.Context) error {
	userID, ok := c.Get("user_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "user_id not found in context"})
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid template id"})
	}

	if err := h.templateRepo.Delete(c.Request().Context(), id, userID); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "template not found"})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "template deleted"})
}

// Categories godoc
// @Summary List distinct template categories
// @Tags message-templates
// @Produce json
// @Success 200 {array} string
// @Router /message-templates/categories [get]
// @Security BearerAuth
func (h *MessageTemplateHandler) Categories(c echo.Context) error {
	userID, ok := c.Get("user_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "user_id not found in context"})
	}

	categories, err := h.templateRepo.Categories(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, categories)
}
