package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"zapleads/internal/repo"
	"zapleads/pkg/models"
)

// CompanyHandler exposes the read-only prospect database
type CompanyHandler struct {
	companyRepo *repo.CompanyRepository
}

// NewCompanyHandler creates a new company handler
func NewCompanyHandler(companyRepo *repo.CompanyRepository) *CompanyHandler {
	return &CompanyHandler{companyRepo: companyRepo}
}

// List godoc
// @Summary Browse the company database
// @Tags companies
// @Produce json
// @Param segment query string false "Filter by segment"
// @Param city query string false "Filter by city"
// @Param state query string false "Filter by state (UF)"
// @Param search query string false "Search by name"
// @Param page query int false "Page number"
// @Param limit query int false "Items per page"
// @Success 200 {object} map[string]interface{}
// @Router /companies [get]
// @Security BearerAuth
func (h *CompanyHandler) List(c echo.Context) error {
	filter := repo.CompanyFilter{
		Segment: c.QueryParam("segment"),
		City:    c.QueryParam("city"),
		State:   c.QueryParam("state"),
		Search:  c.QueryParam("search"),
	}
	page, limit := paginationParams(c)

	companies, total, err := h.companyRepo.List(c.Request().Context(), filter, limit, (page-1)*limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  companies,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// GetByID godoc
// @Summary Get a company
// @Tags companies
// @Produce json
// @Param id path string true "Company ID"
// @Success 200 {object} models.Company
// @Failure 404 {object} map[string]string
// @Router /companies/{id} [get]
// @Security BearerAuth
func (h *CompanyHandler) GetByID(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid company id"})
	}

	company, err := h.companyRepo.GetByID(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "company not found"})
	}
	return c.JSON(http.StatusOK, company)
}

// Segments godoc
// @Summary List distinct company segments
// @Tags companies
// @Produce json
// @Success 200 {array} string
// @Router /companies/segments [get]
// @Security BearerAuth
func (h *CompanyHandler) Segments(c echo.Context) error {
	segments, err := h.companyRepo.Segments(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, segments)
}

// LeadHandler manages a user's saved prospects
type LeadHandler struct {
	leadRepo    *repo.LeadRepository
	companyRepo *repo.CompanyRepository
}

// NewLeadHandler creates a new lead handler
func NewLeadHandler(leadRepo *repo.LeadRepository, companyRepo *repo.CompanyRepository) *LeadHandler {
	return &LeadHandler{leadRepo: leadRepo, companyRepo: companyRepo}
}

// CreateLeadRequest saves a company as a prospect
type CreateLeadRequest struct {
	CompanyID string `json:"company_id" validate:"required"`
	Phone     string `json:"phone" validate:"required"`
	Name      string `json:"name"`
	Notes     string `json:"notes"`
}

// UpdateLeadRequest updates a saved prospect
type UpdateLeadRequest struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
	Notes string `json:"notes"`
}

// List godoc
// @Summary List user's saved leads
// @Tags leads
// @Produce json
// @Param page query int false "Page number"
// @Param limit query int false "Items per page"
// @Success 200 {object} map[string]interface{}
// @Router /leads [get]
// @Security BearerAuth
func (h *LeadHandler) List(c echo.Context) error {
	userID, ok := c.Get("user_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "user_id not found in context"})
	}

	page, limit := paginationParams(c)
	leads, total, err := h.leadRepo.ListByOwner(c.Request().Context(), userID, limit, (page-1)*limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  leads,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// Create godoc
// @Summary Save a company as a lead
// @Tags leads
// @Accept json
// @Produce json
// @Param request body CreateLeadRequest true "Lead data"
// @Success 201 {object} models.Lead
// @Failure 400 {object} map[string]string
// @Router /leads [post]
// @Security BearerAuth
func (h *LeadHandler) Create(c echo.Context) error {
	userID, ok := c.Get("user_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "user_id not found in context"})
	}

	var req CreateLeadRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	companyID, err := uuid.Parse(req.CompanyID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid company_id"})
	}
	company, err := h.companyRepo.GetByID(c.Request().Context(), companyID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "company not found"})
	}

	name := req.Name
	if name == "" {
		name = company.Name
	}
	lead := &models.Lead{
		OwnerUserID: userID,
		CompanyID:   companyID,
		Phone:       req.Phone,
		Name:        name,
		Notes:       req.Notes,
	}
	if err := h.leadRepo.Create(c.Request().Context(), lead); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, lead)
}

// GetByID godoc
// @Summary Get a saved lead
// @Tags leads
// @Produce json
// @Param id path string true "Lead ID"
// @Success 200 {object} models.Lead
// @Failure 404 {object} map[string]string
// @Router /leads/{id} [get]
// @Security BearerAuth
func (h *LeadHandler) GetByID(c echo.Context) error {
	userID, ok := c.Get("user_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "user_id not found in context"})
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid lead id"})
	}

	lead, err := h.leadRepo.GetByIDAndOwner(c.Request().Context(), id, userID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "lead not found"})
	}
	return c.JSON(http.StatusOK, lead)
}

// Update godoc
// @Summary Update a saved lead
// @Tags leads
// @Accept json
// @Produce json
// @Param id path string true "Lead ID"
// @Param request body UpdateLeadRequest true "Lead data"
// @Success 200 {object} models.Lead
// @Failure 404 {object} map[string]string
// @Router /leads/{id} [put]
// @Security BearerAuth
func (h *LeadHandler) Update(c echo.Context) error {
	userID, ok := c.Get("user_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "user_id not found in context"})
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid lead id"})
	}

	var req UpdateLeadRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	lead, err := h.leadRepo.GetByIDAndOwner(c.Request().Context(), id, userID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "lead not found"})
	}

	if req.Phone != "" {
		lead.Phone = req.Phone
	}
	if req.Name != "" {
		lead.Name = req.Name
	}
	if req.Notes != "" {
		lead.Notes = req.Notes
	}
	if err := h.leadRepo.Update(c.Request().Context(), lead); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, lead)
}

// Delete godoc
// @Summary Delete a saved lead
// @Tags leads
// @Produce json
// @Param id path string true "Lead ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /leads/{id} [delete]
// @Security BearerAuth
func (h *LeadHandler) Delete(c echo.Context) error {
	userID, ok := c.Get("user_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "user_id not found in context"})
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid lead id"})
	}

	if err := h.leadRepo.Delete(c.Request().Context(), id, userID); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "lead not found"})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "lead deleted"})
}
