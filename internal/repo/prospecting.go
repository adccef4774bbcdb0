package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"zapleads/pkg/models"
)

// CompanyFilter narrows the company browse query. Zero values mean no filter.
type CompanyFilter struct {
	Segment string
	City    string
	State   string
	Search  string
}

// CompanyRepository handles read-only access to the company database
type CompanyRepository struct {
	db *gorm.DB
}

// NewCompanyRepository creates a new company repository
func NewCompanyRepository(db *gorm.DB) *CompanyRepository {
	return &CompanyRepository{db: db}
}

// List browses companies with filters and pagination
func (r *CompanyRepository) List(ctx context.Context, filter CompanyFilter, limit, offset int) ([]models.Company, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Company{})

	if filter.Segment != "" {
		query = query.Where("segment = ?", filter.Segment)
	}
	if filter.City != "" {
		query = query.Where("city ILIKE ?", filter.City)
	}
	if filter.State != "" {
		query = query.Where("state = ?", filter.State)
	}
	if filter.Search != "" {
		query = query.Where("name ILIKE ?", "%"+filter.Search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var companies []models.Company
	err := query.Order("name ASC").Limit(limit).Offset(offset).Find(&companies).Error
	return companies, total, err
}

// GetByID gets a company by ID
func (r *CompanyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	var company models.Company
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&company).Error
	if err != nil {
		return nil, err
	}
	return &company, nil
}

// Segments lists the distinct segments present in the company database
func (r *CompanyRepository) Segments(ctx context.Context) ([]string, error) {
	var segments []string
	err := r.db.WithContext(ctx).Model(&models.Company{}).
		Distinct("segment").
		Where("segment != ''").
		Order("segment ASC").
		Pluck("segment", &segments).Error
	return segments, err
}

// LeadRepository handles lead data access
type LeadRepository struct {
	db *gorm.DB
}

// NewLeadRepository creates a new lead repository
func NewLeadRepository(db *gorm.DB) *LeadRepository {
	return &LeadRepository{db: db}
}

// Create creates a new lead
func (r *LeadRepository) Create(ctx context.Context, lead *models.Lead) error {
	return r.db.WithContext(ctx).Create(lead).Error
}

// GetByIDAndOwner gets a lead scoped to its owner
func (r *LeadRepository) GetByIDAndOwner(ctx context.Context, id, ownerUserID uuid.UUID) (*models.Lead, error) {
	var lead models.Lead
	err := r.db.WithContext(ctx).
		Preload("Company").
		Where("id = ? AND owner_user_id = ?", id, ownerUserID).
		First(&lead).Error
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

// ListByOwner lists a user's leads with pagination
func (r *LeadRepository) ListByOwner(ctx context.Context, ownerUserID uuid.UUID, limit, offset int) ([]models.Lead, int64, error) {
	var leads []models.Lead
	var total int64

	base := r.db.WithContext(ctx).Model(&models.Lead{}).Where("owner_user_id = ?", ownerUserID)
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := base.Preload("Company").Order("created_at DESC").Limit(limit).Offset(offset).Find(&leads).Error
	return leads, total, err
}

// ListByIDs loads a user's leads by id, for campaign assembly
func (r *LeadRepository) ListByIDs(ctx context.Context, ownerUserID uuid.UUID, ids []uuid.UUID) ([]models.Lead, error) {
	var leads []models.Lead
	err := r.db.WithContext(ctx).
		Where("owner_user_id = ? AND id IN ?", ownerUserID, ids).
		Find(&leads).Error
	return leads, err
}

// Update updates a lead
func (r *LeadRepository) Update(ctx context.Context, lead *models.Lead) error {
	return r.db.WithContext(ctx).Save(lead).Error
}

// Delete removes a lead
func (r *LeadRepository) Delete(ctx context.Context, id, ownerUserID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ? AND owner_user_id = ?", id, ownerUserID).
		Delete(&models.Lead{}).Error
}
